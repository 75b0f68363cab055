// Package dataset stores snapshots of remote records on disk, one compressed
// JSON file per entity type, with an optional fast binary cache beside each.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alfredjeanlab/sgcache/internal/entity"
	"github.com/alfredjeanlab/sgcache/internal/events"
	"github.com/alfredjeanlab/sgcache/internal/jsonz"
	"github.com/alfredjeanlab/sgcache/internal/schema"
)

const (
	// DataSubdir holds the record snapshots of a sample.
	DataSubdir = "data.jsonz"
	// SchemaSubdir holds the schema tree of a sample.
	SchemaSubdir = "schema.jsonz"

	// EnvNoCache disables the fast cache when set to any value.
	EnvNoCache = "SGCACHE_NO_DATASET_CACHE"

	snapshotExt  = ".json.z"
	fastCacheExt = ".bson_tmp"
	indent       = "    "
)

// Dataset is a named sample under a samples root directory.
type Dataset struct {
	root      string
	sample    string
	fastCache bool
	logger    *slog.Logger
	publisher events.Publisher
}

type Option func(*Dataset)

// WithFastCache enables or disables the fast cache. It is enabled by default.
func WithFastCache(enabled bool) Option {
	return func(d *Dataset) { d.fastCache = enabled }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dataset) { d.logger = l }
}

// WithPublisher emits a DatasetRebuilt event after every rebuild.
func WithPublisher(p events.Publisher) Option {
	return func(d *Dataset) { d.publisher = events.Or(p) }
}

// New returns the sample named sample under root. Nothing is read or created.
func New(root, sample string, opts ...Option) *Dataset {
	d := &Dataset{
		root:      root,
		sample:    sample,
		fastCache: true,
		logger:    slog.Default(),
		publisher: &events.NoopPublisher{},
	}
	for _, o := range opts {
		o(d)
	}
	if _, ok := os.LookupEnv(EnvNoCache); ok {
		d.fastCache = false
	}
	return d
}

// Build creates the sample name under root from the records fetch yields for
// types. It fails with entity.ErrAlreadyExists before touching anything if
// the sample is present.
func Build(ctx context.Context, root, name string, types []string, fetch entity.Fetcher, opts ...Option) (*Dataset, error) {
	d := New(root, name, opts...)
	if d.Exists() {
		return nil, fmt.Errorf("build dataset %s: %w", d.Dir(), entity.ErrAlreadyExists)
	}
	if err := d.RebuildDatabase(ctx, types, fetch); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dataset) Name() string { return d.sample }

// Dir is the directory holding everything of the sample.
func (d *Dataset) Dir() string { return filepath.Join(d.root, d.sample) }

func (d *Dataset) DataTree() string   { return filepath.Join(d.Dir(), DataSubdir) }
func (d *Dataset) SchemaTree() string { return filepath.Join(d.Dir(), SchemaSubdir) }

// TypeFactory returns a factory over the sample's schema tree.
func (d *Dataset) TypeFactory(opts ...schema.Option) *schema.TreeFactory {
	opts = append([]schema.Option{schema.WithLogger(d.logger)}, opts...)
	return schema.NewTreeFactory(d.SchemaTree(), opts...)
}

// Exists reports whether the sample directory is present.
func (d *Dataset) Exists() bool {
	info, err := os.Stat(d.Dir())
	return err == nil && info.IsDir()
}

func (d *Dataset) snapshotPath(typeName string) string {
	return filepath.Join(d.DataTree(), typeName+snapshotExt)
}

func (d *Dataset) fastCachePath(typeName string) string {
	return d.snapshotPath(typeName) + fastCacheExt
}

// HasRecords reports whether a snapshot of typeName exists.
func (d *Dataset) HasRecords(typeName string) bool {
	info, err := os.Stat(d.snapshotPath(typeName))
	return err == nil && info.Mode().IsRegular()
}

// TypeNames returns the types with a snapshot, sorted.
func (d *Dataset) TypeNames() ([]string, error) {
	entries, err := os.ReadDir(d.DataTree())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.DataTree(), err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, snapshotExt))
	}
	sort.Strings(names)
	return names, nil
}

// Records returns a fresh copy of every record of typeName, or an empty list
// when the sample has no snapshot of it. The fast cache is read when present
// and written after decoding the snapshot otherwise. Records satisfies
// entity.Fetcher.
func (d *Dataset) Records(ctx context.Context, typeName string) ([]entity.Record, error) {
	if !d.HasRecords(typeName) {
		return []entity.Record{}, nil
	}
	start := time.Now()
	fast := d.fastCachePath(typeName)

	if d.fastCache {
		records, err := readFastCache(fast)
		if err == nil {
			d.logger.Debug("loaded dataset", "type", typeName, "cache", "fast", "records", len(records), "elapsed", time.Since(start))
			return records, nil
		}
		if !jsonz.IsNotExist(err) {
			d.logger.Warn("ignoring unreadable fast cache", "path", fast, "err", err)
		}
	}

	var records []entity.Record
	if err := jsonz.ReadFile(d.snapshotPath(typeName), &records); err != nil {
		return nil, fmt.Errorf("load %s records: %w", typeName, err)
	}
	if records == nil {
		records = []entity.Record{}
	}
	d.logger.Debug("loaded dataset", "type", typeName, "cache", "json", "records", len(records), "elapsed", time.Since(start))

	if d.fastCache {
		wstart := time.Now()
		if err := writeFastCache(fast, records); err != nil {
			d.logger.Warn("write fast cache", "path", fast, "err", err)
		} else {
			d.logger.Debug("wrote fast cache", "type", typeName, "records", len(records), "elapsed", time.Since(wstart))
		}
	}
	return records, nil
}

// SerializeRecords replaces the snapshot of typeName with records and drops
// its fast cache.
func (d *Dataset) SerializeRecords(typeName string, records []entity.Record) error {
	start := time.Now()
	if err := os.MkdirAll(d.DataTree(), 0o755); err != nil {
		return fmt.Errorf("create data tree: %w", err)
	}
	if records == nil {
		records = []entity.Record{}
	}
	if err := jsonz.WriteFile(d.snapshotPath(typeName), records, indent); err != nil {
		return fmt.Errorf("serialize %s records: %w", typeName, err)
	}
	if err := os.Remove(d.fastCachePath(typeName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("drop fast cache of %s: %w", typeName, err)
	}
	d.logger.Debug("serialized records", "type", typeName, "records", len(records), "elapsed", time.Since(start))
	return nil
}

// RebuildDatabase fetches every type in types and overwrites its snapshot.
// The data and schema trees are created when missing; the schema itself is
// not written.
func (d *Dataset) RebuildDatabase(ctx context.Context, types []string, fetch entity.Fetcher) error {
	for _, dir := range []string{d.DataTree(), d.SchemaTree()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	counts := make(map[string]int, len(types))
	for _, typeName := range types {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		d.logger.Info("dumping records", "type", typeName, "path", d.snapshotPath(typeName))
		records, err := fetch(ctx, typeName)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", typeName, err)
		}
		if err := d.SerializeRecords(typeName, records); err != nil {
			return err
		}
		counts[typeName] = len(records)
		d.logger.Info("obtained records", "type", typeName, "records", len(records), "elapsed", time.Since(start))
	}

	if err := d.publisher.Publish(ctx, events.TopicDatasetRebuilt, events.DatasetRebuilt{Sample: d.sample, Records: counts}); err != nil {
		d.logger.Warn("publish dataset rebuild", "err", err)
	}
	return nil
}
