package conn

import (
	"context"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

// Forwarder passes every call to the connection its Resolver yields,
// arguments and results unchanged.
type Forwarder struct {
	resolver Resolver
}

var _ Connection = (*Forwarder)(nil)

// NewForwarder returns a Forwarder over r. A nil r is a configuration error.
func NewForwarder(r Resolver) (*Forwarder, error) {
	if r == nil {
		return nil, ErrNoDelegate
	}
	return &Forwarder{resolver: r}, nil
}

func (f *Forwarder) Find(ctx context.Context, entityType string, filters entity.Filters, fields []string, limit int) ([]entity.Record, error) {
	c, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return c.Find(ctx, entityType, filters, fields, limit)
}

func (f *Forwarder) FindOne(ctx context.Context, entityType string, filters entity.Filters, fields []string) (entity.Record, error) {
	c, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return c.FindOne(ctx, entityType, filters, fields)
}

func (f *Forwarder) Create(ctx context.Context, entityType string, data entity.Record) (entity.Record, error) {
	c, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return c.Create(ctx, entityType, data)
}

func (f *Forwarder) Update(ctx context.Context, entityType string, id int64, data entity.Record) (entity.Record, error) {
	c, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return c.Update(ctx, entityType, id, data)
}

func (f *Forwarder) Delete(ctx context.Context, entityType string, id int64) (bool, error) {
	c, err := f.resolver.Resolve(ctx)
	if err != nil {
		return false, err
	}
	return c.Delete(ctx, entityType, id)
}

func (f *Forwarder) Batch(ctx context.Context, requests []entity.BatchRequest) ([]entity.Value, error) {
	c, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return c.Batch(ctx, requests)
}

func (f *Forwarder) SchemaRead(ctx context.Context) (map[string]entity.Schema, error) {
	c, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return c.SchemaRead(ctx)
}

func (f *Forwarder) SchemaFieldRead(ctx context.Context, entityType, field string) (entity.Schema, error) {
	c, err := f.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return c.SchemaFieldRead(ctx, entityType, field)
}

func (f *Forwarder) UploadThumbnail(ctx context.Context, entityType string, id int64, path string) (int64, error) {
	c, err := f.resolver.Resolve(ctx)
	if err != nil {
		return 0, err
	}
	return c.UploadThumbnail(ctx, entityType, id, path)
}

func (f *Forwarder) ServerInfo(ctx context.Context) (entity.ServerInfo, error) {
	c, err := f.resolver.Resolve(ctx)
	if err != nil {
		return entity.ServerInfo{}, err
	}
	return c.ServerInfo(ctx)
}
