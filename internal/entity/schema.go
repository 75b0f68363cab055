package entity

import "sort"

// FieldSchema describes one field of an entity type.
type FieldSchema struct {
	DataType   string           `json:"data_type"`
	Mandatory  bool             `json:"mandatory,omitempty"`
	Properties map[string]Value `json:"properties,omitempty"`
}

// Equal reports whether f and o describe the same field.
func (f FieldSchema) Equal(o FieldSchema) bool {
	return f.DataType == o.DataType &&
		f.Mandatory == o.Mandatory &&
		Object(f.Properties).Equal(Object(o.Properties))
}

// Schema maps field names of one entity type to their descriptions.
type Schema map[string]FieldSchema

// FieldNames returns the schema's field names in sorted order.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether s and o hold the same fields.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for name, f := range s {
		g, ok := o[name]
		if !ok || !f.Equal(g) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of s.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	for name, f := range s {
		cp := FieldSchema{DataType: f.DataType, Mandatory: f.Mandatory}
		if f.Properties != nil {
			cp.Properties = Object(f.Properties).Clone().Fields()
		}
		out[name] = cp
	}
	return out
}

// SortedTypeNames returns the keys of a full schema description in sorted order.
func SortedTypeNames(schemas map[string]Schema) []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
