package conn

import (
	"context"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

// ReadOnly wraps a Connection and rejects every method in MutatingMethods with
// a *entity.WriteNotPermittedError. Reads go straight to the wrapped
// connection.
type ReadOnly struct {
	Connection
}

var _ Connection = ReadOnly{}

// NewReadOnly wraps c.
func NewReadOnly(c Connection) ReadOnly { return ReadOnly{Connection: c} }

func denied(method string) error { return &entity.WriteNotPermittedError{Method: method} }

func (ReadOnly) Create(context.Context, string, entity.Record) (entity.Record, error) {
	return nil, denied("Create")
}

func (ReadOnly) Update(context.Context, string, int64, entity.Record) (entity.Record, error) {
	return nil, denied("Update")
}

func (ReadOnly) Delete(context.Context, string, int64) (bool, error) {
	return false, denied("Delete")
}

func (ReadOnly) Batch(context.Context, []entity.BatchRequest) ([]entity.Value, error) {
	return nil, denied("Batch")
}

func (ReadOnly) UploadThumbnail(context.Context, string, int64, string) (int64, error) {
	return 0, denied("UploadThumbnail")
}

// Unwrap returns the wrapped connection.
func (r ReadOnly) Unwrap() Connection { return r.Connection }
