package sync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alfredjeanlab/sgcache/internal/dataset"
)

// ManifestName is the file listing everything pushed for a sample.
const ManifestName = "manifest.jsonl"

// File is one object to push. Key is slash-separated and starts with the
// sample name.
type File struct {
	Key  string
	Data []byte
}

// header is the first line of a manifest. It carries no timestamp so an
// unchanged sample produces an unchanged manifest.
type header struct {
	Version   string `json:"version"`
	Type      string `json:"type"`
	Sample    string `json:"sample"`
	FileCount int    `json:"file_count"`
}

// record wraps a single manifest line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type fileEntry struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
}

// Collect reads the schema files and record snapshots of d, sorted by key,
// followed by a manifest. Fast caches and temporary files are left out.
func Collect(d *dataset.Dataset) ([]File, error) {
	if !d.Exists() {
		return nil, fmt.Errorf("collect dataset %s: %w", d.Dir(), os.ErrNotExist)
	}

	var files []File
	err := filepath.WalkDir(d.Dir(), func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || !shareable(e.Name()) {
			return nil
		}
		rel, err := filepath.Rel(d.Dir(), p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, File{Key: path.Join(d.Name(), filepath.ToSlash(rel)), Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect dataset %s: %w", d.Dir(), err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })

	manifest, err := encodeManifest(d.Name(), files)
	if err != nil {
		return nil, err
	}
	return append(files, File{Key: path.Join(d.Name(), ManifestName), Data: manifest}), nil
}

func shareable(name string) bool {
	return !strings.HasPrefix(name, ".") && !strings.HasSuffix(name, ".bson_tmp") && name != ManifestName
}

func encodeManifest(sample string, files []File) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:   "1",
		Type:      "header",
		Sample:    sample,
		FileCount: len(files),
	}); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	for _, f := range files {
		if err := enc.Encode(record{Type: "file", Data: fileEntry{Key: f.Key, Size: len(f.Data)}}); err != nil {
			return nil, fmt.Errorf("encode manifest entry %s: %w", f.Key, err)
		}
	}
	return buf.Bytes(), nil
}
