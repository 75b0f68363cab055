package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

// --- Queries ---

func (c *Client) Find(ctx context.Context, entityType string, filters entity.Filters, fields []string, limit int) ([]entity.Record, error) {
	if filters.Operator == "" {
		filters.Operator = "and"
	}
	if filters.Conditions == nil {
		filters.Conditions = []entity.Condition{}
	}
	if len(fields) == 0 {
		fields = []string{"id"}
	}

	perPage := c.pageSize
	if limit > 0 && limit < perPage {
		perPage = limit
	}

	var out []entity.Record
	for page := 1; ; page++ {
		payload := map[string]any{
			"type":          entityType,
			"return_fields": fields,
			"filters":       filters,
			"return_only":   "active",
			"paging":        map[string]int{"entities_per_page": perPage, "current_page": page},
		}
		var results struct {
			Entities []entity.Record `json:"entities"`
		}
		if err := c.call(ctx, "read", payload, &results); err != nil {
			return nil, fmt.Errorf("find %s: %w", entityType, err)
		}
		out = append(out, results.Entities...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if len(results.Entities) < perPage {
			return out, nil
		}
	}
}

func (c *Client) FindOne(ctx context.Context, entityType string, filters entity.Filters, fields []string) (entity.Record, error) {
	records, err := c.Find(ctx, entityType, filters, fields, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// --- Writes ---

func (c *Client) Create(ctx context.Context, entityType string, data entity.Record) (entity.Record, error) {
	var rec entity.Record
	if err := c.call(ctx, "create", createPayload(entityType, data), &rec); err != nil {
		return nil, fmt.Errorf("create %s: %w", entityType, err)
	}
	return rec, nil
}

func (c *Client) Update(ctx context.Context, entityType string, id int64, data entity.Record) (entity.Record, error) {
	var rec entity.Record
	if err := c.call(ctx, "update", updatePayload(entityType, id, data), &rec); err != nil {
		return nil, fmt.Errorf("update %s %d: %w", entityType, id, err)
	}
	return rec, nil
}

func (c *Client) Delete(ctx context.Context, entityType string, id int64) (bool, error) {
	var ok bool
	if err := c.call(ctx, "delete", map[string]any{"type": entityType, "id": id}, &ok); err != nil {
		return false, fmt.Errorf("delete %s %d: %w", entityType, id, err)
	}
	return ok, nil
}

func (c *Client) Batch(ctx context.Context, requests []entity.BatchRequest) ([]entity.Value, error) {
	payload := make([]map[string]any, len(requests))
	for i, r := range requests {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		var p map[string]any
		switch r.RequestType {
		case "create":
			p = createPayload(r.EntityType, r.Data)
		case "update":
			p = updatePayload(r.EntityType, r.EntityID, r.Data)
		case "delete":
			p = map[string]any{"type": r.EntityType, "id": r.EntityID}
		}
		p["request_type"] = r.RequestType
		payload[i] = p
	}
	var results []entity.Value
	if err := c.call(ctx, "batch", payload, &results); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	return results, nil
}

func createPayload(entityType string, data entity.Record) map[string]any {
	returnFields := []string{"id"}
	for k := range data {
		if k != "id" && k != "type" {
			returnFields = append(returnFields, k)
		}
	}
	return map[string]any{
		"type":          entityType,
		"fields":        fieldList(data),
		"return_fields": returnFields,
	}
}

func updatePayload(entityType string, id int64, data entity.Record) map[string]any {
	return map[string]any{
		"type":   entityType,
		"id":     id,
		"fields": fieldList(data),
	}
}

type fieldValue struct {
	FieldName string       `json:"field_name"`
	Value     entity.Value `json:"value"`
}

func fieldList(data entity.Record) []fieldValue {
	out := make([]fieldValue, 0, len(data))
	for k, v := range data {
		if k == "id" || k == "type" {
			continue
		}
		out = append(out, fieldValue{FieldName: k, Value: v})
	}
	return out
}

// --- Schema ---

func (c *Client) SchemaRead(ctx context.Context) (map[string]entity.Schema, error) {
	var raw map[string]map[string]entity.Value
	if err := c.call(ctx, "schema_read", nil, &raw); err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	out := make(map[string]entity.Schema, len(raw))
	for typeName, fields := range raw {
		out[typeName] = convertSchema(fields)
	}
	return out, nil
}

func (c *Client) SchemaFieldRead(ctx context.Context, entityType, field string) (entity.Schema, error) {
	payload := map[string]any{"type": entityType}
	if field != "" {
		payload["field_name"] = field
	}
	var raw map[string]entity.Value
	if err := c.call(ctx, "schema_field_read", payload, &raw); err != nil {
		return nil, fmt.Errorf("read schema of %s.%s: %w", entityType, field, err)
	}
	return convertSchema(raw), nil
}

// convertSchema flattens the API's {"data_type": {"value": ...}} wrappers.
func convertSchema(fields map[string]entity.Value) entity.Schema {
	s := make(entity.Schema, len(fields))
	for name, desc := range fields {
		fs := entity.FieldSchema{
			DataType:  unwrap(desc, "data_type").AsString(),
			Mandatory: unwrap(desc, "mandatory").AsBool(),
		}
		if props, ok := desc.Get("properties"); ok && len(props.Fields()) > 0 {
			fs.Properties = make(map[string]entity.Value, len(props.Fields()))
			for k, p := range props.Fields() {
				if inner, ok := p.Get("value"); ok {
					p = inner
				}
				fs.Properties[k] = p
			}
		}
		s[name] = fs
	}
	return s
}

func unwrap(desc entity.Value, key string) entity.Value {
	v, _ := desc.Get(key)
	if inner, ok := v.Get("value"); ok {
		return inner
	}
	return v
}

// --- Server ---

func (c *Client) ServerInfo(ctx context.Context) (entity.ServerInfo, error) {
	var raw struct {
		Version []int `json:"version"`
	}
	if err := c.call(ctx, "info", nil, &raw); err != nil {
		return entity.ServerInfo{}, fmt.Errorf("read server info: %w", err)
	}
	return entity.ServerInfo{Version: raw.Version, Backend: "remote " + c.baseURL}, nil
}

// --- Uploads ---

// UploadThumbnail attaches the image at path as the thumbnail of an entity
// and returns the attachment id.
func (c *Client) UploadThumbnail(ctx context.Context, entityType string, id int64, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open thumbnail: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"script_name": c.scriptName,
		"script_key":  c.scriptKey,
		"entity_type": entityType,
		"entity_id":   strconv.FormatInt(id, 10),
	} {
		if err := mw.WriteField(k, v); err != nil {
			return 0, fmt.Errorf("write form field: %w", err)
		}
	}
	part, err := mw.CreateFormFile("thumb_image", filepath.Base(path))
	if err != nil {
		return 0, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return 0, fmt.Errorf("copy thumbnail: %w", err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, &body)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return 0, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	// The upload endpoint answers "1:<attachment id>" on success.
	text := strings.TrimSpace(string(respBody))
	status, rest, _ := strings.Cut(text, ":")
	if status != "1" {
		return 0, &APIError{StatusCode: resp.StatusCode, Message: "upload failed: " + text}
	}
	rest, _, _ = strings.Cut(rest, "\n")
	attachment, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attachment id %q: %w", rest, err)
	}
	return attachment, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("HTTP %d: API error %d: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type auth struct {
	ScriptName string `json:"script_name"`
	ScriptKey  string `json:"script_key"`
}

type envelope struct {
	MethodName string `json:"method_name"`
	Params     []any  `json:"params"`
}

// call invokes one API method and decodes its "results" member into result.
func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	params := []any{auth{ScriptName: c.scriptName, ScriptKey: c.scriptKey}}
	if payload != nil {
		params = append(params, payload)
	}
	data, err := json.Marshal(envelope{MethodName: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPath, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var decoded struct {
		Results   json.RawMessage `json:"results"`
		Exception bool            `json:"exception"`
		Message   string          `json:"message"`
		ErrorCode int             `json:"error_code"`
	}
	jsonErr := json.Unmarshal(respBody, &decoded)

	if resp.StatusCode >= 400 {
		if jsonErr == nil && decoded.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Code: decoded.ErrorCode, Message: decoded.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if jsonErr != nil {
		return fmt.Errorf("decoding response: %w", jsonErr)
	}
	if decoded.Exception {
		return &APIError{StatusCode: resp.StatusCode, Code: decoded.ErrorCode, Message: decoded.Message}
	}

	if result != nil && len(decoded.Results) > 0 {
		if err := json.Unmarshal(decoded.Results, result); err != nil {
			return fmt.Errorf("decoding results: %w", err)
		}
	}
	return nil
}
