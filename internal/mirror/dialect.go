package mirror

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

// dialect captures the SQL differences between the supported engines.
type dialect struct {
	name   string // migrate database name, also reported by ServerInfo
	driver string // database/sql driver name
	idType string
}

var (
	dialectPostgres = dialect{name: "postgres", driver: "postgres", idType: "BIGINT"}
	dialectSQLite   = dialect{name: "sqlite", driver: "sqlite", idType: "INTEGER"}
)

func (d dialect) placeholder(n int) string {
	if d == dialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// target is a parsed database URL.
type target struct {
	dialect dialect
	dsn     string
	path    string // sqlite file, empty for postgres
	display string // URL without credentials
}

// parseURL accepts sqlite://<path>, sqlite:///<abs path>, file:<path>,
// postgres:// and postgresql:// URLs.
func parseURL(raw string) (target, error) {
	switch {
	case strings.HasPrefix(raw, "sqlite://"):
		return sqliteTarget(raw, strings.TrimPrefix(raw, "sqlite://"))
	case strings.HasPrefix(raw, "file:"):
		return sqliteTarget(raw, strings.TrimPrefix(raw, "file:"))
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		u, err := url.Parse(raw)
		if err != nil {
			return target{}, fmt.Errorf("parse database url: %w", err)
		}
		return target{dialect: dialectPostgres, dsn: raw, display: u.Redacted()}, nil
	}
	return target{}, fmt.Errorf("database url %q: %w", raw, entity.ErrUnsupported)
}

func sqliteTarget(raw, rest string) (target, error) {
	path, _, _ := strings.Cut(rest, "?")
	if path == "" {
		return target{}, fmt.Errorf("database url %q: missing file path", raw)
	}
	return target{
		dialect: dialectSQLite,
		dsn:     path + "?_pragma=busy_timeout(5000)",
		path:    path,
		display: raw,
	}, nil
}

// IsDatabaseURL reports whether s names a database this package can open.
func IsDatabaseURL(s string) bool {
	_, err := parseURL(s)
	return err == nil
}
