package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/alfredjeanlab/sgcache/internal/conn"
	"github.com/alfredjeanlab/sgcache/internal/dataset"
	"github.com/alfredjeanlab/sgcache/internal/entity"
	"github.com/alfredjeanlab/sgcache/internal/mirror"
	"github.com/alfredjeanlab/sgcache/internal/schema"
)

// source is where records are read from: the live remote store, a
// relational mirror or a dataset sample.
type source struct {
	name    string
	types   []string
	fetch   entity.Fetcher
	schemas schema.SchemaReader
	// factory serves the schemas of types.
	factory *schema.TreeFactory

	// connect opens a Connection over the source.
	connect func(ctx context.Context) (conn.Connection, error)
	closers []func() error
}

func (s *source) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("close source", "source", s.name, "err", err)
		}
	}
}

// openSource resolves name: empty means the live remote store, a URL a
// mirror, anything else a sample under the samples root.
func openSource(ctx context.Context, name string) (*source, error) {
	switch {
	case name == "":
		return openRemote(ctx)
	case strings.Contains(name, "://") || mirror.IsDatabaseURL(name):
		return openMirror(ctx, name)
	}
	return openSample(name)
}

func fieldsOf(ctx context.Context, f schema.Factory) func(string) ([]string, error) {
	return func(typeName string) ([]string, error) {
		s, err := f.SchemaByName(ctx, typeName)
		if err != nil {
			return nil, err
		}
		return s.FieldNames(), nil
	}
}

// openRemote reads records from the live store. Field lists come from
// cache.schema_tree, filled from the remote when empty; without a configured
// tree a scratch tree is used for the run. Schemas are always read from the
// remote.
func openRemote(ctx context.Context) (*source, error) {
	remote := conn.NewRemote(cfg.Connection, conn.WithLogger(logger))
	s := &source{
		name:    cfg.Connection.Host,
		schemas: remote,
		connect: func(context.Context) (conn.Connection, error) { return remote, nil },
	}

	tree := cfg.Cache.SchemaTree
	if tree == "" {
		dir, err := os.MkdirTemp("", "sgc-schema-")
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { return os.RemoveAll(dir) })
		tree = dir
	}
	s.factory = schema.NewTreeFactory(tree,
		schema.WithRefresh(remote),
		schema.WithLogger(logger),
		schema.WithPublisher(publisher),
	)

	types, err := s.factory.TypeNames()
	if err == nil && len(types) == 0 {
		if err = s.factory.UpdateSchema(ctx, remote); err == nil {
			types, err = s.factory.TypeNames()
		}
	}
	if err != nil {
		s.Close()
		return nil, err
	}
	s.types = types
	s.fetch = conn.FetcherFor(remote, fieldsOf(ctx, s.factory))
	return s, nil
}

// schemaSource returns the schema reader for name without touching any
// cached schema tree: the remote itself when name is empty.
func schemaSource(ctx context.Context, name string) (schema.SchemaReader, func(), error) {
	if name == "" {
		return conn.NewRemote(cfg.Connection, conn.WithLogger(logger)), func() {}, nil
	}
	src, err := openSource(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return src.schemas, src.Close, nil
}

func openMirror(ctx context.Context, url string) (*source, error) {
	m, err := mirror.Open(ctx, url, mirror.WithLogger(logger), mirror.WithPublisher(publisher))
	if err != nil {
		return nil, err
	}
	s := &source{
		name:    m.URL(),
		types:   m.TypeNames(),
		fetch:   conn.FetcherFor(m, m.FieldsByTypename),
		schemas: m,
		connect: func(context.Context) (conn.Connection, error) { return m, nil },
		closers: []func() error{m.Close},
	}
	// Mirrors keep their schemas in tables; stage them in a scratch tree.
	tree, err := os.MkdirTemp("", "sgc-schema-")
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, func() error { return os.RemoveAll(tree) })
	s.factory = schema.NewTreeFactory(tree, schema.WithLogger(logger))
	if err := s.factory.UpdateSchema(ctx, m); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func openSample(name string) (*source, error) {
	d := dataset.New(cfg.Cache.SamplesRoot, name, dataset.WithLogger(logger), dataset.WithPublisher(publisher))
	if !d.Exists() {
		return nil, fmt.Errorf("dataset %s: %w", d.Dir(), entity.ErrNotFound)
	}
	factory := d.TypeFactory()
	types, err := factory.TypeNames()
	if err != nil {
		return nil, err
	}
	s := &source{
		name:    name,
		types:   types,
		fetch:   d.Records,
		schemas: schema.Reader{Factory: factory},
		factory: factory,
	}
	s.connect = func(ctx context.Context) (conn.Connection, error) {
		sm, err := d.Mirror(ctx)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sm.Close)
		return sm, nil
	}
	return s, nil
}

// selectTypes restricts all to want, keeping the order of all. An empty want
// selects everything; unknown names are an error.
func selectTypes(all, want []string) ([]string, error) {
	if len(want) == 0 {
		return all, nil
	}
	for _, w := range want {
		if !slices.Contains(all, w) {
			return nil, fmt.Errorf("type %s: %w", w, entity.ErrNotFound)
		}
	}
	var out []string
	for _, t := range all {
		if slices.Contains(want, t) {
			out = append(out, t)
		}
	}
	return out, nil
}
