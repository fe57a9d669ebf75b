package domain

import (
	"errors"
	"fmt"
	"time"
)

// Entity is the contract a record must satisfy to live in a collection.
// WithID returns a copy of the record carrying the given identifier.
type Entity[T any] interface {
	GetID() string
	IsArchived() bool
	WithID(id string) T
}

// Lifecycle is the two-state tag derived from the archived flag.
type Lifecycle string

const (
	Live     Lifecycle = "live"
	Archived Lifecycle = "archived"
)

// LifecycleOf reports the lifecycle state of a record.
func LifecycleOf[T Entity[T]](e T) Lifecycle {
	if e.IsArchived() {
		return Archived
	}
	return Live
}

// ErrInvalid marks a record that failed validation.
var ErrInvalid = errors.New("invalid entity")

// ValidationError describes which field of a record is invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets callers match any validation failure with errors.Is(err, ErrInvalid).
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Validator is implemented by entities that can check their own fields.
type Validator interface {
	Validate() error
}

// LastUpdatedField is the JSON field that Touch sets.
const LastUpdatedField = "lastUpdated"

// Toucher is implemented by entities that track their last modification.
type Toucher[T any] interface {
	Touch(now time.Time) T
}

// Searchable is implemented by entities that expose free text for search.
type Searchable interface {
	SearchText() string
}
