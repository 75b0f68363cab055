// Package scramble anonymizes string values of records so production data
// can be shared as fixtures. Structure, type names, dates and numbers survive.
package scramble

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

// Marker is appended to every scrambled string.
const Marker = "😄"

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?)?$`)

// Scrambler replaces strings by a stable hash. The zero value scrambles
// everything eligible.
type Scrambler struct {
	whitelist map[string]bool
}

// New returns a Scrambler that leaves the whitelisted values alone. A
// whitelist entry matches either the original or the scrambled form.
func New(whitelist ...string) *Scrambler {
	s := &Scrambler{whitelist: make(map[string]bool, len(whitelist))}
	for _, w := range whitelist {
		s.whitelist[w] = true
	}
	return s
}

// Hash returns the scrambled form of str.
func Hash(str string) string {
	sum := md5.Sum([]byte(str))
	return hex.EncodeToString(sum[:]) + Marker
}

// IsScrambled reports whether str already is the output of Hash.
func IsScrambled(str string) bool {
	hexPart, ok := strings.CutSuffix(str, Marker)
	if !ok || len(hexPart) != 2*md5.Size {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}

func keepKey(key string) bool {
	return strings.HasSuffix(key, "type")
}

// keepString reports whether str is a date, a number or already scrambled.
func keepString(str string) bool {
	if dateRe.MatchString(str) || IsScrambled(str) {
		return true
	}
	if !strings.ContainsAny(str, "0123456789") {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	return err == nil
}

func (s *Scrambler) scrambleString(str string) string {
	if keepString(str) || s.whitelist[str] {
		return str
	}
	h := Hash(str)
	if s.whitelist[h] {
		return str
	}
	return h
}

// Value returns a scrambled copy of v. Strings nested in arrays and objects
// are scrambled too, except object members whose key ends in "type".
func (s *Scrambler) Value(v entity.Value) entity.Value {
	switch v.Kind() {
	case entity.KindString:
		return entity.String(s.scrambleString(v.AsString()))
	case entity.KindArray:
		items := v.Items()
		out := make([]entity.Value, len(items))
		for i, it := range items {
			out[i] = s.Value(it)
		}
		return entity.Array(out...)
	case entity.KindObject:
		fields := v.Fields()
		out := make(map[string]entity.Value, len(fields))
		for k, f := range fields {
			out[k] = s.member(k, f)
		}
		return entity.Object(out)
	}
	return v
}

func (s *Scrambler) member(key string, v entity.Value) entity.Value {
	if keepKey(key) {
		return v.Clone()
	}
	return s.Value(v)
}

// Record returns a scrambled copy of r.
func (s *Scrambler) Record(r entity.Record) entity.Record {
	if r == nil {
		return nil
	}
	out := make(entity.Record, len(r))
	for k, v := range r {
		out[k] = s.member(k, v)
	}
	return out
}

// Records returns scrambled copies of rs.
func (s *Scrambler) Records(rs []entity.Record) []entity.Record {
	out := make([]entity.Record, len(rs))
	for i, r := range rs {
		out[i] = s.Record(r)
	}
	return out
}

// Fetcher wraps f so every fetched record is scrambled.
func (s *Scrambler) Fetcher(f entity.Fetcher) entity.Fetcher {
	return func(ctx context.Context, typeName string) ([]entity.Record, error) {
		records, err := f(ctx, typeName)
		if err != nil {
			return nil, err
		}
		return s.Records(records), nil
	}
}
