package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alfredjeanlab/sgcache/internal/conn"
	"github.com/alfredjeanlab/sgcache/internal/entity"
	"github.com/alfredjeanlab/sgcache/internal/mirror"
)

// SampleMirror is a read-only relational view of a sample.
type SampleMirror struct {
	conn.ReadOnly
	m *mirror.Mirror
}

// Close releases the database.
func (s *SampleMirror) Close() error { return s.m.Close() }

// Mirror returns the underlying mirror, for its type listing.
func (s *SampleMirror) Mirror() *mirror.Mirror { return s.m }

// MirrorPath is the sqlite file backing the sample's mirror. It sits next to
// the sample, not inside it, and is never meant to be shared.
func (d *Dataset) MirrorPath() string {
	return filepath.Join(d.root, "sqlite."+d.sample+".db_tmp")
}

func (d *Dataset) mirrorURL() string { return "sqlite://" + d.MirrorPath() }

// Mirror opens the read-only mirror of the sample, building it from the
// snapshots first when the database file is missing.
func (d *Dataset) Mirror(ctx context.Context) (*SampleMirror, error) {
	m, err := mirror.Open(ctx, d.mirrorURL(), mirror.WithLogger(d.logger))
	if errors.Is(err, entity.ErrNotFound) {
		return d.RebuildMirror(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &SampleMirror{ReadOnly: conn.NewReadOnly(m), m: m}, nil
}

// RebuildMirror replaces the mirror database with a fresh copy of the sample.
func (d *Dataset) RebuildMirror(ctx context.Context) (*SampleMirror, error) {
	if !d.Exists() {
		return nil, fmt.Errorf("mirror dataset %s: %w", d.Dir(), entity.ErrNotFound)
	}
	if err := os.Remove(d.MirrorPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale mirror: %w", err)
	}
	m, err := mirror.InitDatabase(ctx, d.mirrorURL(), d.TypeFactory(), d.Records, mirror.WithLogger(d.logger))
	if err != nil {
		return nil, err
	}
	return &SampleMirror{ReadOnly: conn.NewReadOnly(m), m: m}, nil
}
