// Package mirror implements a Connection over a relational copy of the
// remote store: one table per entity type, one JSON text column per field.
package mirror

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/alfredjeanlab/sgcache/internal/entity"
	"github.com/alfredjeanlab/sgcache/internal/events"
	"github.com/alfredjeanlab/sgcache/internal/schema"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Mirror is a Connection backed by a relational database.
type Mirror struct {
	db        *sql.DB
	target    target
	logger    *slog.Logger
	publisher events.Publisher

	mu      sync.RWMutex
	schemas map[string]entity.Schema
}

type Option func(*Mirror)

func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) { m.logger = l }
}

// WithPublisher emits entity events after every committed write.
func WithPublisher(p events.Publisher) Option {
	return func(m *Mirror) { m.publisher = events.Or(p) }
}

func newMirror(db *sql.DB, t target, opts []Option) *Mirror {
	m := &Mirror{
		db:        db,
		target:    t,
		logger:    slog.Default(),
		publisher: &events.NoopPublisher{},
		schemas:   map[string]entity.Schema{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func openDB(ctx context.Context, t target) (*sql.DB, error) {
	db, err := sql.Open(t.dialect.driver, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if t.dialect == dialectPostgres {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func newMigrator(db *sql.DB, d dialect) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	var dbDriver database.Driver
	if d == dialectPostgres {
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	} else {
		dbDriver, err = sqlite.WithInstance(db, &sqlite.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, d.name, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

func runMigrations(db *sql.DB, d dialect) error {
	m, err := newMigrator(db, d)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Open attaches to a mirror created by InitDatabase. A database without
// mirror tables yields an error wrapping entity.ErrNotFound.
func Open(ctx context.Context, rawURL string, opts ...Option) (*Mirror, error) {
	t, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if t.dialect == dialectSQLite {
		if _, err := os.Stat(t.path); err != nil {
			return nil, fmt.Errorf("open mirror %s: %w", t.display, entity.ErrNotFound)
		}
	}
	db, err := openDB(ctx, t)
	if err != nil {
		return nil, err
	}
	if t.dialect == dialectPostgres {
		ok, err := queryMirrorExists(ctx, db)
		if err == nil && !ok {
			err = fmt.Errorf("open mirror %s: %w", t.display, entity.ErrNotFound)
		}
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	m := newMirror(db, t, opts)
	if err := m.reloadSchemas(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// InitDatabase creates a mirror at rawURL from every type factory knows and
// the records fetch yields for them. The target must not hold a database yet;
// otherwise entity.ErrAlreadyExists is returned before anything is fetched.
// All tables and rows are written in one transaction.
func InitDatabase(ctx context.Context, rawURL string, factory schema.Factory, fetch entity.Fetcher, opts ...Option) (*Mirror, error) {
	t, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	if t.dialect == dialectSQLite {
		if _, err := os.Stat(t.path); err == nil {
			return nil, fmt.Errorf("init mirror %s: %w", t.display, entity.ErrAlreadyExists)
		}
		if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
			return nil, fmt.Errorf("create mirror directory: %w", err)
		}
	}
	db, err := openDB(ctx, t)
	if err != nil {
		return nil, err
	}
	if t.dialect == dialectPostgres {
		exists, err := queryMirrorExists(ctx, db)
		if err == nil && exists {
			err = fmt.Errorf("init mirror %s: %w", t.display, entity.ErrAlreadyExists)
		}
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	m := newMirror(db, t, opts)
	if err := m.populate(ctx, factory, fetch); err != nil {
		m.discard(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Mirror) populate(ctx context.Context, factory schema.Factory, fetch entity.Fetcher) error {
	if err := runMigrations(m.db, m.target.dialect); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	typeNames, err := factory.TypeNames()
	if err != nil {
		return fmt.Errorf("list types: %w", err)
	}

	start := time.Now()
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	total := 0
	for _, typeName := range typeNames {
		n, err := m.populateType(ctx, tx, factory, fetch, typeName)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	m.logger.Info("mirror initialized", "url", m.target.display, "types", len(typeNames), "records", total, "elapsed", time.Since(start))
	return m.reloadSchemas(ctx)
}

func (m *Mirror) populateType(ctx context.Context, tx *sql.Tx, factory schema.Factory, fetch entity.Fetcher, typeName string) (int, error) {
	start := time.Now()
	s, err := factory.SchemaByName(ctx, typeName)
	if err != nil {
		return 0, fmt.Errorf("schema of %s: %w", typeName, err)
	}
	d := m.target.dialect
	columns := dataColumns(s)
	if err := queryCreateTypeTable(ctx, tx, d, typeName, columns); err != nil {
		return 0, err
	}
	if err := queryInsertTypeMeta(ctx, tx, d, typeName, s, time.Now()); err != nil {
		return 0, err
	}
	records, err := fetch(ctx, typeName)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", typeName, err)
	}
	for _, rec := range records {
		if err := queryInsertRecord(ctx, tx, d, typeName, columns, rec); err != nil {
			return 0, err
		}
	}
	m.logger.Debug("mirrored type", "type", typeName, "records", len(records), "elapsed", time.Since(start))
	return len(records), nil
}

// discard closes the database after a failed initialization and removes
// what was created.
func (m *Mirror) discard(ctx context.Context) {
	if m.target.dialect == dialectSQLite {
		m.db.Close()
		for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
			os.Remove(m.target.path + suffix)
		}
		return
	}
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS mirror_fields`,
		`DROP TABLE IF EXISTS mirror_types`,
		`DROP TABLE IF EXISTS schema_migrations`,
	} {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			m.logger.Warn("clean up failed mirror", "url", m.target.display, "err", err)
		}
	}
	m.db.Close()
}

func (m *Mirror) reloadSchemas(ctx context.Context) error {
	schemas, err := queryLoadSchemas(ctx, m.db)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.schemas = schemas
	m.mu.Unlock()
	return nil
}

// Close closes the underlying database connection.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// URL returns the database URL without credentials.
func (m *Mirror) URL() string { return m.target.display }

// TypeNames returns the mirrored entity types, sorted.
func (m *Mirror) TypeNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return entity.SortedTypeNames(m.schemas)
}

// FieldsByTypename returns the field names of a mirrored type, sorted.
func (m *Mirror) FieldsByTypename(typeName string) ([]string, error) {
	s, err := m.schemaOf(typeName)
	if err != nil {
		return nil, err
	}
	return s.FieldNames(), nil
}

func (m *Mirror) schemaOf(typeName string) (entity.Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schemas[typeName]
	if !ok {
		return nil, fmt.Errorf("type %s is not mirrored in %s: %w", typeName, m.target.display, entity.ErrNotFound)
	}
	return s, nil
}

func columnSet(columns []string) map[string]bool {
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	return set
}

// selectColumns restricts columns to the requested fields; no fields selects
// every column.
func selectColumns(columns, fields []string) []string {
	if len(fields) == 0 {
		return columns
	}
	known := columnSet(columns)
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		if known[f] && !seen[f] {
			out = append(out, f)
			seen[f] = true
		}
	}
	sort.Strings(out)
	return out
}
