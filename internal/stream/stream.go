// Package stream writes records of several types as a sequence of indented
// JSON documents.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

// TypeStreamer fetches every type in TypeNames, in order, and streams the
// records.
type TypeStreamer struct {
	Fetcher   entity.Fetcher
	TypeNames []string
}

// Stream writes each record to w as a two-space indented JSON document
// followed by a newline. Non-ASCII characters are escaped. It returns the
// number of records written.
func (s TypeStreamer) Stream(ctx context.Context, w io.Writer) (int, error) {
	n := 0
	var buf bytes.Buffer
	for _, typeName := range s.TypeNames {
		records, err := s.Fetcher(ctx, typeName)
		if err != nil {
			return n, fmt.Errorf("fetch %s: %w", typeName, err)
		}
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			buf.Reset()
			if err := encode(&buf, rec); err != nil {
				return n, fmt.Errorf("encode %s %d: %w", typeName, rec.ID(), err)
			}
			if _, err := w.Write(buf.Bytes()); err != nil {
				return n, fmt.Errorf("write %s %d: %w", typeName, rec.ID(), err)
			}
			n++
		}
	}
	return n, nil
}

func encode(buf *bytes.Buffer, rec entity.Record) error {
	var indented bytes.Buffer
	enc := json.NewEncoder(&indented)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return err
	}
	appendASCII(buf, indented.Bytes())
	return nil
}

// appendASCII copies JSON text, escaping every non-ASCII rune as \uXXXX.
// Runes outside the basic plane become surrogate pairs. Such runes can only
// occur inside string literals, so the result stays valid JSON.
func appendASCII(buf *bytes.Buffer, b []byte) {
	for len(b) > 0 {
		if b[0] < utf8.RuneSelf {
			buf.WriteByte(b[0])
			b = b[1:]
			continue
		}
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if r > 0xFFFF {
			r1, r2 := utf16.EncodeRune(r)
			writeEscape(buf, r1)
			writeEscape(buf, r2)
			continue
		}
		writeEscape(buf, r)
	}
}

func writeEscape(buf *bytes.Buffer, r rune) {
	s := strconv.FormatInt(int64(r), 16)
	buf.WriteString(`\u`)
	for i := len(s); i < 4; i++ {
		buf.WriteByte('0')
	}
	buf.WriteString(s)
}
