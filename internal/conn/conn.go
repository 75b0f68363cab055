// Package conn defines the connection contract shared by the remote store,
// relational mirrors and in-memory fixtures, and the adapters that dispatch
// to them.
package conn

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

// Connection is the capability set every backend exposes. Methods mirror the
// remote store's API; FindOne returns a nil Record when nothing matches.
type Connection interface {
	Find(ctx context.Context, entityType string, filters entity.Filters, fields []string, limit int) ([]entity.Record, error)
	FindOne(ctx context.Context, entityType string, filters entity.Filters, fields []string) (entity.Record, error)
	Create(ctx context.Context, entityType string, data entity.Record) (entity.Record, error)
	Update(ctx context.Context, entityType string, id int64, data entity.Record) (entity.Record, error)
	Delete(ctx context.Context, entityType string, id int64) (bool, error)
	Batch(ctx context.Context, requests []entity.BatchRequest) ([]entity.Value, error)
	SchemaRead(ctx context.Context) (map[string]entity.Schema, error)
	SchemaFieldRead(ctx context.Context, entityType, field string) (entity.Schema, error)
	UploadThumbnail(ctx context.Context, entityType string, id int64, path string) (int64, error)
	ServerInfo(ctx context.Context) (entity.ServerInfo, error)
}

// MutatingMethods names the Connection methods that change the store.
var MutatingMethods = []string{"Create", "Update", "Delete", "Batch", "UploadThumbnail"}

// IsMutating reports whether method is listed in MutatingMethods.
func IsMutating(method string) bool {
	for _, m := range MutatingMethods {
		if m == method {
			return true
		}
	}
	return false
}

// ErrNoDelegate is returned when a Forwarder is built without a resolver.
var ErrNoDelegate = errors.New("connection proxy has no delegate")

// Resolver yields the connection a Forwarder dispatches to.
type Resolver interface {
	Resolve(ctx context.Context) (Connection, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context) (Connection, error)

func (f ResolverFunc) Resolve(ctx context.Context) (Connection, error) { return f(ctx) }

// Static returns a Resolver that always yields c.
func Static(c Connection) Resolver {
	return ResolverFunc(func(context.Context) (Connection, error) { return c, nil })
}

// FetcherFor returns a Fetcher that reads every record of a type through c,
// requesting the given fields for each type.
func FetcherFor(c Connection, fieldsByType func(typeName string) ([]string, error)) entity.Fetcher {
	return func(ctx context.Context, typeName string) ([]entity.Record, error) {
		var fields []string
		if fieldsByType != nil {
			var err error
			if fields, err = fieldsByType(typeName); err != nil {
				return nil, err
			}
		}
		return c.Find(ctx, typeName, entity.Filters{}, fields, 0)
	}
}
