// Package jsonz reads and writes zlib-compressed JSON files.
package jsonz

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"

	"github.com/alfredjeanlab/sgcache/internal/idgen"
)

// BestCompression is the zlib level used for every file.
const BestCompression = zlib.BestCompression

// Encode writes v to w as compressed JSON. A non-empty indent pretty-prints
// the document.
func Encode(w io.Writer, v any, indent string) error {
	zw, err := zlib.NewWriterLevel(w, BestCompression)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		zw.Close()
		return fmt.Errorf("encode json: %w", err)
	}
	return zw.Close()
}

// Decode reads one compressed JSON document from r into v.
func Decode(r io.Reader, v any) error {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return fmt.Errorf("open zlib stream: %w", err)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// ReadFile decodes the file at path into v. A missing file yields an error
// matching os.ErrNotExist.
func ReadFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Decode(bufio.NewReader(f), v); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// WriteFile encodes v to path. The data goes to a temporary sibling first and
// is renamed into place, so readers see either the old or the new file.
func WriteFile(path string, v any, indent string) error {
	return WriteAtomic(path, func(w io.Writer) error { return Encode(w, v, indent) })
}

// WriteAtomic writes path through a temporary sibling file renamed into place
// once write succeeds.
func WriteAtomic(path string, write func(io.Writer) error) (err error) {
	tmp, err := idgen.TempPath(path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// IsNotExist reports whether err means the file is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
