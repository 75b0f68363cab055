// Package schema caches per-type entity schemas on disk and serves them
// through type factories.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alfredjeanlab/sgcache/internal/entity"
	"github.com/alfredjeanlab/sgcache/internal/jsonz"
)

// Extension is the file suffix of a schema file.
const Extension = ".jsonz"

// Store keeps one compressed schema file per type under a directory.
type Store struct {
	dir string
}

func NewStore(dir string) Store { return Store{dir: dir} }

func (s Store) Dir() string { return s.dir }

// Path returns the file that holds the schema of typeName.
func (s Store) Path(typeName string) string {
	return filepath.Join(s.dir, typeName+Extension)
}

// Read loads the schema of typeName. A missing file yields an error wrapping
// entity.ErrNotFound.
func (s Store) Read(typeName string) (entity.Schema, error) {
	var sch entity.Schema
	if err := jsonz.ReadFile(s.Path(typeName), &sch); err != nil {
		if jsonz.IsNotExist(err) {
			return nil, fmt.Errorf("schema %s in %s: %w", typeName, s.dir, entity.ErrNotFound)
		}
		return nil, err
	}
	if sch == nil {
		sch = entity.Schema{}
	}
	return sch, nil
}

// Write stores sch as the schema of typeName, replacing any existing file.
func (s Store) Write(typeName string, sch entity.Schema) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create schema tree: %w", err)
	}
	return jsonz.WriteFile(s.Path(typeName), sch, "")
}

// TypeNames lists the types that have a schema file, sorted. A missing
// directory holds no types.
func (s Store) TypeNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list schema tree: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Extension) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, Extension))
	}
	sort.Strings(names)
	return names, nil
}
