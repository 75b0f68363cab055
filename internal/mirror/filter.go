package mirror

import (
	"math"
	"strings"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

// whereBuilder translates entity.Filters into a SQL WHERE clause. Field values
// are compared by their canonical JSON text; "id" compares as an integer.
type whereBuilder struct {
	d        dialect
	typeName string
	columns  map[string]bool
	args     []any
}

func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return b.d.placeholder(len(b.args))
}

// build returns the clause without the WHERE keyword, or "" when f has no
// conditions.
func (b *whereBuilder) build(f entity.Filters) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	if len(f.Conditions) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		clause, err := b.condition(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+clause+")")
	}
	join := " AND "
	if f.IsOr() {
		join = " OR "
	}
	return strings.Join(parts, join), nil
}

func (b *whereBuilder) condition(c entity.Condition) (string, error) {
	switch c.Field {
	case "type":
		return b.typeCondition(c), nil
	case "id":
		return b.membership(c, quoteIdent("id"), idForms)
	}
	if !b.columns[c.Field] {
		return "", &entity.UnsupportedFilterError{Filter: c.String(), Reason: "unknown field " + c.Field + " of " + b.typeName}
	}
	return b.membership(c, quoteIdent(c.Field), jsonForms)
}

// typeCondition evaluates a predicate on the record type statically: every
// row of a table has the same type.
func (b *whereBuilder) typeCondition(c entity.Condition) string {
	hit := false
	for _, v := range c.Values {
		if v.Kind() == entity.KindString && v.AsString() == b.typeName {
			hit = true
		}
	}
	if c.Relation == entity.RelationIsNot || c.Relation == entity.RelationNotIn {
		hit = !hit
	}
	if hit {
		return "1=1"
	}
	return "1=0"
}

// membership renders is, is_not, in and not_in. A field that is NULL never
// equals a non-null value, so negated predicates include NULL rows.
func (b *whereBuilder) membership(c entity.Condition, col string, forms func(entity.Condition, entity.Value) ([]any, error)) (string, error) {
	var (
		args    []any
		hasNull bool
	)
	for _, v := range c.Values {
		if v.IsNull() {
			hasNull = true
			continue
		}
		fv, err := forms(c, v)
		if err != nil {
			return "", err
		}
		args = append(args, fv...)
	}

	list := ""
	if len(args) == 1 {
		list = " = " + b.arg(args[0])
	} else if len(args) > 1 {
		ph := make([]string, len(args))
		for i, a := range args {
			ph[i] = b.arg(a)
		}
		list = " IN (" + strings.Join(ph, ", ") + ")"
	}

	negated := c.Relation == entity.RelationIsNot || c.Relation == entity.RelationNotIn
	switch {
	case !negated && list == "" && hasNull:
		return col + " IS NULL", nil
	case !negated && list == "":
		return "1=0", nil
	case !negated && hasNull:
		return col + list + " OR " + col + " IS NULL", nil
	case !negated:
		return col + list, nil
	case list == "" && hasNull:
		return col + " IS NOT NULL", nil
	case list == "":
		return "1=1", nil
	case hasNull:
		return col + " IS NOT NULL AND NOT (" + col + list + ")", nil
	}
	return col + " IS NULL OR NOT (" + col + list + ")", nil
}

// idForms accepts integers and integral floats.
func idForms(c entity.Condition, v entity.Value) ([]any, error) {
	switch v.Kind() {
	case entity.KindInt:
		return []any{v.AsInt()}, nil
	case entity.KindFloat:
		if f := v.AsFloat(); f == math.Trunc(f) {
			return []any{int64(f)}, nil
		}
	}
	return nil, &entity.UnsupportedFilterError{Filter: c.String(), Reason: "id must be compared to integers"}
}

// jsonForms encodes v as canonical JSON. Integral numbers match both their
// int and float encodings. Link objects are not supported.
func jsonForms(c entity.Condition, v entity.Value) ([]any, error) {
	switch v.Kind() {
	case entity.KindObject:
		return nil, &entity.UnsupportedFilterError{Filter: c.String(), Reason: "object values cannot be compared"}
	case entity.KindInt:
		return []any{entity.Int(v.AsInt()).String(), entity.Float(float64(v.AsInt())).String()}, nil
	case entity.KindFloat:
		f := v.AsFloat()
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return []any{v.String(), entity.Int(int64(f)).String()}, nil
		}
	}
	s, err := encodeColumn(v)
	if err != nil {
		return nil, &entity.UnsupportedFilterError{Filter: c.String(), Reason: err.Error()}
	}
	return []any{s}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
