package entity

import "fmt"

// BatchRequest is one write inside a Batch call.
type BatchRequest struct {
	RequestType string `json:"request_type"` // "create", "update" or "delete"
	EntityType  string `json:"entity_type"`
	EntityID    int64  `json:"entity_id,omitempty"`
	Data        Record `json:"data,omitempty"`
}

// Validate checks the request type and the fields it requires.
func (r BatchRequest) Validate() error {
	if r.EntityType == "" {
		return fmt.Errorf("batch request: missing entity_type")
	}
	switch r.RequestType {
	case "create":
	case "update", "delete":
		if r.EntityID == 0 {
			return fmt.Errorf("batch %s %s: missing entity_id", r.RequestType, r.EntityType)
		}
	default:
		return fmt.Errorf("batch request: unknown request_type %q", r.RequestType)
	}
	return nil
}

// ServerInfo describes the store behind a connection.
type ServerInfo struct {
	Version []int  `json:"version"`
	Backend string `json:"backend"`
}
