package conn

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

// Memory is an in-memory Connection for tests and fixtures. Records are kept
// per type, keyed by id, and always copied on the way in and out.
type Memory struct {
	mu      sync.Mutex
	db      map[string]map[int64]entity.Record
	schemas map[string]entity.Schema
	info    entity.ServerInfo
}

var _ Connection = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{}
	m.Clear()
	return m
}

// Clear drops all records and schemas and resets the server info.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.db = map[string]map[int64]entity.Record{}
	m.schemas = map[string]entity.Schema{}
	m.info = entity.ServerInfo{Version: []int{4, 3, 9}, Backend: "memory"}
}

// SetEntities replaces all records of entityType. Every record needs an id;
// its type is set to entityType.
func (m *Memory) SetEntities(entityType string, records []entity.Record) error {
	table := make(map[int64]entity.Record, len(records))
	for _, r := range records {
		id, ok := r["id"]
		if !ok || id.Kind() != entity.KindInt {
			return fmt.Errorf("set %s entities: record without integer id: %s", entityType, r)
		}
		cp := r.Clone()
		cp["type"] = entity.String(entityType)
		table[id.AsInt()] = cp
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.db[entityType] = table
	return nil
}

// SetEntitySchema replaces the schema of entityType.
func (m *Memory) SetEntitySchema(entityType string, s entity.Schema) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[entityType] = s.Clone()
}

func (m *Memory) SetServerInfo(info entity.ServerInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = info
}

// DB returns a copy of all records, by type, ordered by id.
func (m *Memory) DB() map[string][]entity.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]entity.Record, len(m.db))
	for t := range m.db {
		out[t] = m.sorted(t)
	}
	return out
}

func (m *Memory) sorted(entityType string) []entity.Record {
	table := m.db[entityType]
	out := make([]entity.Record, 0, len(table))
	for _, r := range table {
		out = append(out, r.Clone())
	}
	entity.SortByID(out)
	return out
}

func (m *Memory) Find(ctx context.Context, entityType string, filters entity.Filters, fields []string, limit int) ([]entity.Record, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Record
	for _, r := range m.sorted(entityType) {
		ok, err := filters.Match(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, r.Select(fields))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) FindOne(ctx context.Context, entityType string, filters entity.Filters, fields []string) (entity.Record, error) {
	records, err := m.Find(ctx, entityType, filters, fields, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

func (m *Memory) Create(ctx context.Context, entityType string, data entity.Record) (entity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(entityType, data)
}

func (m *Memory) create(entityType string, data entity.Record) (entity.Record, error) {
	table := m.db[entityType]
	if table == nil {
		table = map[int64]entity.Record{}
		m.db[entityType] = table
	}
	rec := data.Clone()
	if rec == nil {
		rec = entity.Record{}
	}
	id := rec.ID()
	if id == 0 {
		for existing := range table {
			if existing > id {
				id = existing
			}
		}
		id++
	} else if _, exists := table[id]; exists {
		return nil, fmt.Errorf("create %s %d: %w", entityType, id, entity.ErrAlreadyExists)
	}
	rec["id"] = entity.Int(id)
	rec["type"] = entity.String(entityType)
	table[id] = rec
	return rec.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, entityType string, id int64, data entity.Record) (entity.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(entityType, id, data)
}

func (m *Memory) update(entityType string, id int64, data entity.Record) (entity.Record, error) {
	cur, ok := m.db[entityType][id]
	if !ok {
		return nil, fmt.Errorf("update %s %d: %w", entityType, id, entity.ErrNotFound)
	}
	rec := cur.Clone()
	for k, v := range data {
		if k == "id" || k == "type" {
			continue
		}
		rec[k] = v.Clone()
	}
	m.db[entityType][id] = rec
	return rec.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, entityType string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.db[entityType][id]; !ok {
		return false, nil
	}
	delete(m.db[entityType], id)
	return true, nil
}

// Batch applies the requests in order. A failing request leaves the earlier
// ones applied.
func (m *Memory) Batch(ctx context.Context, requests []entity.BatchRequest) ([]entity.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.Value, 0, len(requests))
	for _, r := range requests {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		switch r.RequestType {
		case "create":
			rec, err := m.create(r.EntityType, r.Data)
			if err != nil {
				return nil, err
			}
			out = append(out, rec.Value())
		case "update":
			rec, err := m.update(r.EntityType, r.EntityID, r.Data)
			if err != nil {
				return nil, err
			}
			out = append(out, rec.Value())
		case "delete":
			_, ok := m.db[r.EntityType][r.EntityID]
			delete(m.db[r.EntityType], r.EntityID)
			out = append(out, entity.Bool(ok))
		}
	}
	return out, nil
}

func (m *Memory) SchemaRead(ctx context.Context) (map[string]entity.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]entity.Schema, len(m.schemas))
	for t, s := range m.schemas {
		out[t] = s.Clone()
	}
	return out, nil
}

// SchemaFieldRead returns the schema of one field, or of the whole type when
// field is empty.
func (m *Memory) SchemaFieldRead(ctx context.Context, entityType, field string) (entity.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schemas[entityType]
	if !ok {
		return nil, fmt.Errorf("schema of %s: %w", entityType, entity.ErrNotFound)
	}
	if field == "" {
		return s.Clone(), nil
	}
	f, ok := s[field]
	if !ok {
		return nil, fmt.Errorf("schema of %s.%s: %w", entityType, field, entity.ErrNotFound)
	}
	return entity.Schema{field: f}.Clone(), nil
}

func (m *Memory) UploadThumbnail(ctx context.Context, entityType string, id int64, path string) (int64, error) {
	return 0, fmt.Errorf("upload thumbnail: %w", entity.ErrUnsupported)
}

func (m *Memory) ServerInfo(ctx context.Context) (entity.ServerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info, nil
}

// TypeNames returns the types that hold records or a schema, sorted.
func (m *Memory) TypeNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	for t := range m.db {
		seen[t] = true
	}
	for t := range m.schemas {
		seen[t] = true
	}
	names := make([]string, 0, len(seen))
	for t := range seen {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}
