// Package entity defines the record, schema and filter types shared by every
// connection implementation.
package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a JSON-like field value: null, bool, int, float, string, an ordered
// sequence of values or a mapping of names to values. The zero Value is null.
//
// Values are treated as immutable. Use Clone before handing nested arrays or
// objects to code that may modify them.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

func Null() Value                { return Value{} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Object returns an object value backed by fields. A nil map yields an empty object.
func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, obj: fields}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v, or false for any other kind.
func (v Value) AsBool() bool { return v.kind == KindBool && v.b }

// AsInt returns v as an integer. Floats are truncated; other kinds yield 0.
func (v Value) AsInt() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	}
	return 0
}

// AsFloat returns v as a float. Integers are converted; other kinds yield 0.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	}
	return 0
}

// AsString returns the string held by v, or "" for any other kind.
func (v Value) AsString() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// Items returns the elements of an array value, nil otherwise.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Fields returns the members of an object value, nil otherwise.
func (v Value) Fields() map[string]Value {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// Get returns the member named key of an object value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	m, ok := v.obj[key]
	return m, ok
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.arr))
		for i, it := range v.arr {
			items[i] = it.Clone()
		}
		return Value{kind: KindArray, arr: items}
	case KindObject:
		fields := make(map[string]Value, len(v.obj))
		for k, f := range v.obj {
			fields[k] = f.Clone()
		}
		return Value{kind: KindObject, obj: fields}
	}
	return v
}

// Equal reports whether v and o hold the same kind and the same data.
// An int and a float never compare equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, f := range v.obj {
			g, ok := o.obj[k]
			if !ok || !f.Equal(g) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts v to plain Go values: nil, bool, int64, float64, string,
// []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, it := range v.arr {
			out[i] = it.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, f := range v.obj {
			out[k] = f.Interface()
		}
		return out
	}
	return nil
}

// String returns the canonical JSON encoding of v.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid %s: %v>", v.kind, err)
	}
	return string(b)
}

// MarshalJSON encodes v as canonical JSON: object keys are sorted and floats
// always carry a fraction or exponent so they decode back as floats.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil)
}

func (v Value) appendJSON(buf []byte) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindBool:
		return strconv.AppendBool(buf, v.b), nil
	case KindInt:
		return strconv.AppendInt(buf, v.i, 10), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("unsupported float value %v", v.f)
		}
		start := len(buf)
		buf = strconv.AppendFloat(buf, v.f, 'g', -1, 64)
		if !bytes.ContainsAny(buf[start:], ".e") {
			buf = append(buf, ".0"...)
		}
		return buf, nil
	case KindString:
		return appendJSONString(buf, v.s), nil
	case KindArray:
		buf = append(buf, '[')
		for i, it := range v.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = it.appendJSON(buf); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendJSONString(buf, k)
			buf = append(buf, ':')
			var err error
			if buf, err = v.obj[k].appendJSON(buf); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

func appendJSONString(buf []byte, s string) []byte {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // strings always encode
	return append(buf, bytes.TrimRight(out.Bytes(), "\n")...)
}

// UnmarshalJSON decodes any JSON document into v. Numbers without a fraction
// or exponent that fit in an int64 become ints, all others floats.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = fromDecoded(raw)
	return nil
}

func fromDecoded(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case json.Number:
		return numberValue(string(x))
	case string:
		return String(x)
	case []any:
		items := make([]Value, len(x))
		for i, it := range x {
			items[i] = fromDecoded(it)
		}
		return Array(items...)
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, f := range x {
			fields[k] = fromDecoded(f)
		}
		return Object(fields)
	}
	return String(fmt.Sprint(raw))
}

func numberValue(s string) Value {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return String(s)
	}
	return Float(f)
}
