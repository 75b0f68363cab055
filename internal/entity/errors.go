package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a schema, sample or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a target that must be new is present.
	ErrAlreadyExists = errors.New("already exists")
	// ErrUnsupported is returned for operations a backend cannot perform.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrWriteNotPermitted matches every *WriteNotPermittedError.
	ErrWriteNotPermitted = errors.New("write not permitted")
)

// WriteNotPermittedError is returned by read-only connections for every
// mutating call.
type WriteNotPermittedError struct {
	Method string
}

func (e *WriteNotPermittedError) Error() string {
	return fmt.Sprintf("%s: cannot change database in read-only mode", e.Method)
}

func (e *WriteNotPermittedError) Is(target error) bool {
	return target == ErrWriteNotPermitted
}

// UnsupportedFilterError names a filter predicate a backend cannot translate.
type UnsupportedFilterError struct {
	Filter string
	Reason string
}

func (e *UnsupportedFilterError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unsupported filter %s", e.Filter)
	}
	return fmt.Sprintf("unsupported filter %s: %s", e.Filter, e.Reason)
}
