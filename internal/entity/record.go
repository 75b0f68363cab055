package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Record is one entity as returned by a query: a mapping from field name to
// value that always carries "type" and "id".
type Record map[string]Value

// NewRecord returns a record for the given type and id with the extra fields
// copied in.
func NewRecord(typeName string, id int64, fields map[string]Value) Record {
	r := make(Record, len(fields)+2)
	for k, v := range fields {
		r[k] = v
	}
	r["type"] = String(typeName)
	r["id"] = Int(id)
	return r
}

// RecordFromValue converts an object value into a record.
func RecordFromValue(v Value) (Record, error) {
	if v.Kind() != KindObject {
		return nil, fmt.Errorf("record must be an object, got %s", v.Kind())
	}
	return Record(v.Fields()).Clone(), nil
}

func (r Record) Type() string { return r["type"].AsString() }
func (r Record) ID() int64    { return r["id"].AsInt() }

// Value returns r as an object value sharing r's storage.
func (r Record) Value() Value { return Object(r) }

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports whether r and o hold the same fields with equal values.
func (r Record) Equal(o Record) bool {
	return Object(r).Equal(Object(o))
}

// Select returns a copy of r restricted to fields plus "type" and "id".
// An empty field list returns a full copy.
func (r Record) Select(fields []string) Record {
	if len(fields) == 0 {
		return r.Clone()
	}
	out := make(Record, len(fields)+2)
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v.Clone()
		}
	}
	out["type"] = r["type"]
	out["id"] = r["id"]
	return out
}

// String returns the canonical JSON encoding of r.
func (r Record) String() string { return Object(r).String() }

// EqualRecords reports whether a and b hold equal records in the same order.
func EqualRecords(a, b []Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// CloneRecords deep-copies a record list.
func CloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// SortByID orders records by ascending id.
func SortByID(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ID() < records[j].ID()
	})
}

// Fetcher yields all records of one entity type.
type Fetcher func(ctx context.Context, typeName string) ([]Record, error)

// FromAny converts plain Go data into a Value. Values that have no JSON
// counterpart, such as time.Time, are converted through their string form.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case Record:
		return Object(t.Clone())
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case string:
		return String(t)
	case json.Number:
		return numberValue(string(t))
	case []Value:
		return Array(t...)
	case map[string]Value:
		return Object(t)
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = FromAny(it)
		}
		return Array(items...)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, f := range t {
			fields[k] = FromAny(f)
		}
		return Object(fields)
	case fmt.Stringer:
		return String(t.String())
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromAny(rv.Index(i).Interface())
		}
		return Array(items...)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			fields := make(map[string]Value, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				fields[iter.Key().String()] = FromAny(iter.Value().Interface())
			}
			return Object(fields)
		}
	case reflect.Uint, reflect.Uint64:
		return Int(int64(rv.Uint()))
	case reflect.Pointer:
		if rv.IsNil() {
			return Null()
		}
		return FromAny(rv.Elem().Interface())
	}
	return String(fmt.Sprint(x))
}
