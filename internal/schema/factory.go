package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/sgcache/internal/entity"
	"github.com/alfredjeanlab/sgcache/internal/events"
)

// SchemaReader is the part of a connection a factory needs to refresh.
type SchemaReader interface {
	SchemaRead(ctx context.Context) (map[string]entity.Schema, error)
}

// Factory knows the entity types of a store and their schemas.
type Factory interface {
	TypeNames() ([]string, error)
	SchemaByName(ctx context.Context, name string) (entity.Schema, error)
	UpdateSchema(ctx context.Context, r SchemaReader) error
}

// TreeFactory serves schemas from a Store. Loaded schemas are memoized until
// the next UpdateSchema.
type TreeFactory struct {
	store       Store
	refresh     SchemaReader
	refreshKeep func(string) bool // limits the types a refresh writes; nil keeps all
	logger      *slog.Logger
	publisher   events.Publisher

	mu   sync.Mutex
	memo map[string]entity.Schema
}

var _ Factory = (*TreeFactory)(nil)

type Option func(*TreeFactory)

// WithRefresh makes SchemaByName update the tree from r once when a schema
// file is missing.
func WithRefresh(r SchemaReader) Option {
	return func(f *TreeFactory) { f.refresh = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *TreeFactory) { f.logger = l }
}

// WithPublisher emits a SchemaUpdated event after every update.
func WithPublisher(p events.Publisher) Option {
	return func(f *TreeFactory) { f.publisher = events.Or(p) }
}

// NewTreeFactory returns a factory over the schema tree at dir.
func NewTreeFactory(dir string, opts ...Option) *TreeFactory {
	f := &TreeFactory{
		store:     NewStore(dir),
		logger:    slog.Default(),
		publisher: &events.NoopPublisher{},
		memo:      map[string]entity.Schema{},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *TreeFactory) Store() Store { return f.store }

// TypeNames returns the types with a schema file in the tree.
func (f *TreeFactory) TypeNames() ([]string, error) {
	return f.store.TypeNames()
}

// SchemaByName returns the schema of name. The returned schema must not be
// modified.
func (f *TreeFactory) SchemaByName(ctx context.Context, name string) (entity.Schema, error) {
	f.mu.Lock()
	if s, ok := f.memo[name]; ok {
		f.mu.Unlock()
		return s, nil
	}
	f.mu.Unlock()

	s, err := f.store.Read(name)
	if errors.Is(err, entity.ErrNotFound) && f.refresh != nil {
		f.logger.Info("schema missing, refreshing tree", "type", name, "tree", f.store.Dir())
		if err := f.update(ctx, f.refresh, f.refreshKeep); err != nil {
			return nil, err
		}
		s, err = f.store.Read(name)
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.memo[name] = s
	f.mu.Unlock()
	return s, nil
}

// UpdateSchema reads the full schema from r once and writes every type to
// its own file, replacing existing files.
func (f *TreeFactory) UpdateSchema(ctx context.Context, r SchemaReader) error {
	return f.update(ctx, r, nil)
}

func (f *TreeFactory) update(ctx context.Context, r SchemaReader, keep func(string) bool) error {
	start := time.Now()
	schemas, err := r.SchemaRead(ctx)
	if err != nil {
		return fmt.Errorf("update schema tree %s: %w", f.store.Dir(), err)
	}

	var written []string
	for _, name := range entity.SortedTypeNames(schemas) {
		if keep != nil && !keep(name) {
			continue
		}
		if err := f.store.Write(name, schemas[name]); err != nil {
			return fmt.Errorf("write schema %s: %w", name, err)
		}
		written = append(written, name)
	}

	f.mu.Lock()
	f.memo = map[string]entity.Schema{}
	f.mu.Unlock()

	f.logger.Info("schema tree updated", "tree", f.store.Dir(), "types", len(written), "elapsed", time.Since(start))
	if err := f.publisher.Publish(ctx, events.TopicSchemaUpdated, events.SchemaUpdated{Tree: f.store.Dir(), Types: written}); err != nil {
		f.logger.Warn("publish schema update", "err", err)
	}
	return nil
}

// FilteredFactory restricts a TreeFactory to an allow-list and/or a
// deny-list of type names. An empty allow-list allows every type.
type FilteredFactory struct {
	*TreeFactory
	allow map[string]bool
	deny  map[string]bool
}

var _ Factory = (*FilteredFactory)(nil)

// NewFilteredFactory wraps f. Refreshes triggered by f from then on only
// write the types the filter allows.
func NewFilteredFactory(f *TreeFactory, allow, deny []string) *FilteredFactory {
	ff := &FilteredFactory{TreeFactory: f, allow: set(allow), deny: set(deny)}
	f.refreshKeep = ff.Allowed
	return ff
}

func set(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Allowed reports whether name passes the filter.
func (f *FilteredFactory) Allowed(name string) bool {
	if f.deny[name] {
		return false
	}
	return f.allow == nil || f.allow[name]
}

func (f *FilteredFactory) TypeNames() ([]string, error) {
	names, err := f.TreeFactory.TypeNames()
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if f.Allowed(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *FilteredFactory) SchemaByName(ctx context.Context, name string) (entity.Schema, error) {
	if !f.Allowed(name) {
		return nil, fmt.Errorf("schema %s: filtered out: %w", name, entity.ErrNotFound)
	}
	return f.TreeFactory.SchemaByName(ctx, name)
}

// UpdateSchema writes only the types that pass the filter.
func (f *FilteredFactory) UpdateSchema(ctx context.Context, r SchemaReader) error {
	return f.TreeFactory.update(ctx, r, f.Allowed)
}

// Reader adapts a Factory to SchemaReader so one tree can seed another.
type Reader struct {
	Factory Factory
}

func (r Reader) SchemaRead(ctx context.Context) (map[string]entity.Schema, error) {
	names, err := r.Factory.TypeNames()
	if err != nil {
		return nil, err
	}
	out := make(map[string]entity.Schema, len(names))
	for _, name := range names {
		s, err := r.Factory.SchemaByName(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = s.Clone()
	}
	return out, nil
}
