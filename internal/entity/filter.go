package entity

import (
	"fmt"
	"strings"
)

// Relation is a filter predicate.
type Relation string

const (
	RelationIs    Relation = "is"
	RelationIsNot Relation = "is_not"
	RelationIn    Relation = "in"
	RelationNotIn Relation = "not_in"
)

// Supported reports whether r is one of the relations every connection in
// this module can evaluate.
func (r Relation) Supported() bool {
	switch r {
	case RelationIs, RelationIsNot, RelationIn, RelationNotIn:
		return true
	}
	return false
}

// Condition is one predicate over a record field.
type Condition struct {
	Field    string   `json:"path"`
	Relation Relation `json:"relation"`
	Values   []Value  `json:"values"`
}

func (c Condition) String() string {
	vals := make([]string, len(c.Values))
	for i, v := range c.Values {
		vals[i] = v.String()
	}
	return fmt.Sprintf("[%q %q %s]", c.Field, string(c.Relation), strings.Join(vals, " "))
}

// Filters is a flat group of conditions joined by "and" or "or". The zero
// value matches every record.
type Filters struct {
	Operator   string      `json:"logical_operator"`
	Conditions []Condition `json:"conditions"`
}

// Where returns an "and" group of the given conditions.
func Where(conds ...Condition) Filters {
	return Filters{Operator: "and", Conditions: conds}
}

// AnyOf returns an "or" group of the given conditions.
func AnyOf(conds ...Condition) Filters {
	return Filters{Operator: "or", Conditions: conds}
}

func Is(field string, v Value) Condition {
	return Condition{Field: field, Relation: RelationIs, Values: []Value{v}}
}

func IsNot(field string, v Value) Condition {
	return Condition{Field: field, Relation: RelationIsNot, Values: []Value{v}}
}

func In(field string, vs ...Value) Condition {
	return Condition{Field: field, Relation: RelationIn, Values: vs}
}

func NotIn(field string, vs ...Value) Condition {
	return Condition{Field: field, Relation: RelationNotIn, Values: vs}
}

// IsOr reports whether the group is joined by "or".
func (f Filters) IsOr() bool { return strings.EqualFold(f.Operator, "or") }

// Validate checks that the operator is known and every relation is supported.
func (f Filters) Validate() error {
	switch strings.ToLower(f.Operator) {
	case "", "and", "or":
	default:
		return &UnsupportedFilterError{Filter: f.Operator, Reason: "unknown logical operator"}
	}
	for _, c := range f.Conditions {
		if c.Field == "" {
			return &UnsupportedFilterError{Filter: c.String(), Reason: "missing field"}
		}
		if !c.Relation.Supported() {
			return &UnsupportedFilterError{Filter: c.String(), Reason: fmt.Sprintf("relation %q", c.Relation)}
		}
		if (c.Relation == RelationIs || c.Relation == RelationIsNot) && len(c.Values) != 1 {
			return &UnsupportedFilterError{Filter: c.String(), Reason: "expected exactly one value"}
		}
	}
	return nil
}

// Match evaluates f against r. Link values (objects carrying an id) compare
// equal when type and id agree; numbers compare numerically.
func (f Filters) Match(r Record) (bool, error) {
	if err := f.Validate(); err != nil {
		return false, err
	}
	if len(f.Conditions) == 0 {
		return true, nil
	}
	or := f.IsOr()
	for _, c := range f.Conditions {
		ok := c.match(r)
		if or && ok {
			return true, nil
		}
		if !or && !ok {
			return false, nil
		}
	}
	return !or, nil
}

func (c Condition) match(r Record) bool {
	field := r[c.Field]
	switch c.Relation {
	case RelationIs:
		return Matches(field, c.Values[0])
	case RelationIsNot:
		return !Matches(field, c.Values[0])
	case RelationIn:
		return matchesAny(field, c.Values)
	case RelationNotIn:
		return !matchesAny(field, c.Values)
	}
	return false
}

func matchesAny(field Value, vs []Value) bool {
	for _, v := range vs {
		if Matches(field, v) {
			return true
		}
	}
	return false
}

// Matches reports whether a stored field value satisfies an equality
// predicate against want.
func Matches(field, want Value) bool {
	if isNumber(field) && isNumber(want) {
		return field.AsFloat() == want.AsFloat()
	}
	if field.Kind() == KindObject && want.Kind() == KindObject {
		fid, fok := field.Get("id")
		wid, wok := want.Get("id")
		if fok && wok {
			ft, _ := field.Get("type")
			wt, _ := want.Get("type")
			return Matches(fid, wid) && (wt.IsNull() || ft.Equal(wt))
		}
	}
	return field.Equal(want)
}

func isNumber(v Value) bool {
	return v.Kind() == KindInt || v.Kind() == KindFloat
}

// ParseFilters reads filters in either of the remote store's notations: a list
// of [field, relation, value...] triples joined by "and", or an object with
// "logical_operator" and "conditions". Nested groups are not supported.
func ParseFilters(v Value) (Filters, error) {
	switch v.Kind() {
	case KindNull:
		return Filters{Operator: "and"}, nil
	case KindArray:
		f := Filters{Operator: "and"}
		for _, item := range v.Items() {
			c, err := parseCondition(item)
			if err != nil {
				return Filters{}, err
			}
			f.Conditions = append(f.Conditions, c)
		}
		return f, f.Validate()
	case KindObject:
		op, _ := v.Get("logical_operator")
		f := Filters{Operator: strings.ToLower(op.AsString())}
		if f.Operator == "" {
			f.Operator = "and"
		}
		conds, _ := v.Get("conditions")
		for _, item := range conds.Items() {
			c, err := parseCondition(item)
			if err != nil {
				return Filters{}, err
			}
			f.Conditions = append(f.Conditions, c)
		}
		return f, f.Validate()
	}
	return Filters{}, &UnsupportedFilterError{Filter: v.String(), Reason: "expected a list or an object"}
}

func parseCondition(item Value) (Condition, error) {
	switch item.Kind() {
	case KindArray:
		parts := item.Items()
		if len(parts) < 2 || parts[0].Kind() != KindString || parts[1].Kind() != KindString {
			return Condition{}, &UnsupportedFilterError{Filter: item.String(), Reason: "expected [field, relation, value...]"}
		}
		c := Condition{Field: parts[0].AsString(), Relation: Relation(parts[1].AsString())}
		c.Values = flattenValues(c.Relation, parts[2:])
		return c, nil
	case KindObject:
		if _, nested := item.Get("conditions"); nested {
			return Condition{}, &UnsupportedFilterError{Filter: item.String(), Reason: "nested filter groups"}
		}
		path, _ := item.Get("path")
		rel, _ := item.Get("relation")
		vals, _ := item.Get("values")
		if path.Kind() != KindString || rel.Kind() != KindString {
			return Condition{}, &UnsupportedFilterError{Filter: item.String(), Reason: "expected path and relation"}
		}
		c := Condition{Field: path.AsString(), Relation: Relation(rel.AsString())}
		if vals.Kind() == KindArray {
			c.Values = flattenValues(c.Relation, vals.Items())
		} else {
			c.Values = []Value{vals}
		}
		return c, nil
	}
	return Condition{}, &UnsupportedFilterError{Filter: item.String(), Reason: "expected a list or an object"}
}

// flattenValues unwraps the single-array form of in/not_in, as in
// ["id", "in", [1, 2]].
func flattenValues(rel Relation, vals []Value) []Value {
	if (rel == RelationIn || rel == RelationNotIn) && len(vals) == 1 && vals[0].Kind() == KindArray {
		return append([]Value(nil), vals[0].Items()...)
	}
	return append([]Value(nil), vals...)
}
