package mirror

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanRecord scans an "id" column followed by one JSON column per entry of
// columns.
func scanRecord(row scannable, typeName string, columns []string) (entity.Record, error) {
	var id int64
	raw := make([]sql.NullString, len(columns))
	dest := make([]any, 0, len(columns)+1)
	dest = append(dest, &id)
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	rec := make(entity.Record, len(columns)+2)
	rec["type"] = entity.String(typeName)
	rec["id"] = entity.Int(id)
	for i, col := range columns {
		v, err := decodeColumn(raw[i])
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s of %d: %w", typeName, col, id, err)
		}
		rec[col] = v
	}
	return rec, nil
}

func decodeColumn(ns sql.NullString) (entity.Value, error) {
	if !ns.Valid {
		return entity.Null(), nil
	}
	var v entity.Value
	if err := json.Unmarshal([]byte(ns.String), &v); err != nil {
		return entity.Value{}, err
	}
	return v, nil
}

// encodeColumn stores null as SQL NULL and everything else as canonical JSON.
func encodeColumn(v entity.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// scanFieldSchema scans a mirror_fields row.
func scanFieldSchema(row scannable) (typeName, field string, fs entity.FieldSchema, err error) {
	var props sql.NullString
	if err = row.Scan(&typeName, &field, &fs.DataType, &fs.Mandatory, &props); err != nil {
		return "", "", entity.FieldSchema{}, err
	}
	if props.Valid {
		v, err := decodeColumn(props)
		if err != nil {
			return "", "", entity.FieldSchema{}, fmt.Errorf("decode properties of %s.%s: %w", typeName, field, err)
		}
		fs.Properties = v.Fields()
	}
	return typeName, field, fs, nil
}
