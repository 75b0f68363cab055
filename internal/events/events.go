// Package events publishes notifications about mirror writes, dataset
// rebuilds and schema updates.
package events

import (
	"context"

	"github.com/alfredjeanlab/sgcache/internal/entity"
)

const (
	TopicEntityCreated  = "sgcache.entity.created"
	TopicEntityUpdated  = "sgcache.entity.updated"
	TopicEntityDeleted  = "sgcache.entity.deleted"
	TopicDatasetRebuilt = "sgcache.dataset.rebuilt"
	TopicSchemaUpdated  = "sgcache.schema.updated"

	// TopicAll matches every topic above.
	TopicAll = "sgcache.>"
)

type EntityCreated struct {
	Source string        `json:"source"`
	Record entity.Record `json:"record"`
}

type EntityUpdated struct {
	Source  string        `json:"source"`
	Record  entity.Record `json:"record"`
	Changes entity.Record `json:"changes"`
}

type EntityDeleted struct {
	Source string `json:"source"`
	Type   string `json:"type"`
	ID     int64  `json:"id"`
}

type DatasetRebuilt struct {
	Sample  string         `json:"sample"`
	Records map[string]int `json:"records"` // type name -> record count
}

type SchemaUpdated struct {
	Tree  string   `json:"tree"`
	Types []string `json:"types"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
