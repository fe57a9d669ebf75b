package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable means the collection file is missing, not a regular
	// file, or not readable and writable.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCorrupt means the file parsed but does not hold a valid entity array.
	ErrCorrupt = errors.New("store is corrupt")
	// ErrReadFailure covers any other failure to read or parse the file.
	ErrReadFailure = errors.New("couldn't fetch items")
	// ErrWriteFailure means the collection could not be persisted.
	ErrWriteFailure = errors.New("couldn't write into store")
	// ErrItemNotFound means no record in the full set has the requested id.
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidPatch means a patch could not be applied to the stored record.
	ErrInvalidPatch = errors.New("invalid patch")
)

// Error carries the failure kind together with the collection and record it
// concerns.
type Error struct {
	Kind   error
	Entity string
	ID     string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Entity + ": " + e.Kind.Error()
	if e.ID != "" {
		msg += fmt.Sprintf(" (id %s)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is and
// errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, entity, id string, err error) *Error {
	return &Error{Kind: kind, Entity: entity, ID: id, Err: err}
}
