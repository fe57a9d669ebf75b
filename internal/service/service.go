package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"yahalom/internal/codec"
	"yahalom/internal/domain"
	"yahalom/internal/metrics"
	"yahalom/internal/repository"
)

// ErrNotFound is returned by Get when no live record has the id
var ErrNotFound = errors.New("not found")

// Store is the repository surface a CollectionService needs
type Store[T domain.Entity[T]] interface {
	Kind() string
	GetAll(ctx context.Context) ([]T, error)
	GetByID(ctx context.Context, id string) (T, bool, error)
	Lookup(ctx context.Context, id string) (T, error)
	Add(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, id string, patch repository.Patch) (T, error)
	Delete(ctx context.Context, id string) (T, error)
	Snapshot(ctx context.Context) ([]byte, error)
}

// CollectionService provides business logic for one collection
type CollectionService[T domain.Entity[T]] struct {
	name     string
	store    Store[T]
	eventBus *EventBus
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewCollectionService creates a service for the collection called name
func NewCollectionService[T domain.Entity[T]](name string, store Store[T], eventBus *EventBus) *CollectionService[T] {
	return &CollectionService[T]{
		name:     name,
		store:    store,
		eventBus: eventBus,
		now:      time.Now,
	}
}

// SetMetrics enables operation metrics
func (s *CollectionService[T]) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Name returns the collection name
func (s *CollectionService[T]) Name() string {
	return s.name
}

// List returns the live records. A non-empty query keeps only records whose
// search text contains it, ignoring case.
func (s *CollectionService[T]) List(ctx context.Context, query string) (items []T, err error) {
	defer s.observe("list", time.Now(), &err)

	items, err = s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return items, nil
	}

	filtered := make([]T, 0, len(items))
	for _, item := range items {
		searchable, ok := any(item).(domain.Searchable)
		if !ok || strings.Contains(strings.ToLower(searchable.SearchText()), query) {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

// Get retrieves a live record by ID
func (s *CollectionService[T]) Get(ctx context.Context, id string) (item T, err error) {
	defer s.observe("get", time.Now(), &err)

	item, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		return item, err
	}
	if !ok {
		return item, fmt.Errorf("%s %s: %w", s.store.Kind(), id, ErrNotFound)
	}
	return item, nil
}

// GetAny retrieves a record by ID whether or not it is archived
func (s *CollectionService[T]) GetAny(ctx context.Context, id string) (item T, err error) {
	defer s.observe("lookup", time.Now(), &err)
	return s.store.Lookup(ctx, id)
}

// Create validates and stores a new record. The stored record gets a fresh id.
func (s *CollectionService[T]) Create(ctx context.Context, item T) (created T, err error) {
	defer s.observe("add", time.Now(), &err)

	if err := s.validate(item); err != nil {
		return created, err
	}
	if toucher, ok := any(item).(domain.Toucher[T]); ok {
		item = toucher.Touch(s.now())
	}

	created, err = s.store.Add(ctx, item)
	if err != nil {
		return created, err
	}

	s.publish(EventCreated, created.GetID())
	return created, nil
}

// Update merges patch into the record with the given id
func (s *CollectionService[T]) Update(ctx context.Context, id string, patch repository.Patch) (updated T, err error) {
	defer s.observe("update", time.Now(), &err)

	if _, ok := any(updated).(domain.Toucher[T]); ok {
		stamped, err := json.Marshal(s.now().UTC())
		if err != nil {
			return updated, err
		}
		next := make(repository.Patch, len(patch)+1)
		for k, v := range patch {
			next[k] = v
		}
		next[domain.LastUpdatedField] = stamped
		patch = next
	}

	updated, err = s.store.Update(ctx, id, patch)
	if err != nil {
		return updated, err
	}

	if updated.IsArchived() {
		s.publish(EventArchived, id)
	} else {
		s.publish(EventUpdated, id)
	}
	return updated, nil
}

// Archive soft-deletes the record with the given id
func (s *CollectionService[T]) Archive(ctx context.Context, id string) (archived T, err error) {
	defer s.observe("delete", time.Now(), &err)

	archived, err = s.store.Delete(ctx, id)
	if err != nil {
		return archived, err
	}

	s.publish(EventArchived, id)
	return archived, nil
}

// Snapshot returns the stored collection, archived records included
func (s *CollectionService[T]) Snapshot(ctx context.Context) (data []byte, err error) {
	defer s.observe("snapshot", time.Now(), &err)
	return s.store.Snapshot(ctx)
}

// Export writes the stored collection in the given format
func (s *CollectionService[T]) Export(ctx context.Context, format string, w io.Writer) error {
	c, err := codec.ForFormat(format)
	if err != nil {
		return err
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	return c.Export(snapshot, w)
}

// ImportFailure describes one record an import rejected
type ImportFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Created []string        `json:"created"`
	Failed  []ImportFailure `json:"failed,omitempty"`
}

// Import parses data in the given format and creates one record per item.
// Items that fail to decode or validate are reported and skipped; a storage
// failure stops the import.
func (s *CollectionService[T]) Import(ctx context.Context, format string, data []byte) (*ImportResult, error) {
	c, err := codec.ForFormat(format)
	if err != nil {
		return nil, err
	}

	items, err := c.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}

	result := &ImportResult{Created: make([]string, 0, len(items))}
	for i, raw := range items {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			result.Failed = append(result.Failed, ImportFailure{Index: i, Error: err.Error()})
			continue
		}

		created, err := s.Create(ctx, item)
		if errors.Is(err, domain.ErrInvalid) {
			result.Failed = append(result.Failed, ImportFailure{Index: i, Error: err.Error()})
			continue
		}
		if err != nil {
			return result, err
		}
		result.Created = append(result.Created, created.GetID())
	}

	if len(result.Created) > 0 {
		s.eventBus.Publish(Event{
			Type:    EventImported,
			Payload: Change{Collection: s.name, Count: len(result.Created)},
		})
	}
	return result, nil
}

func (s *CollectionService[T]) validate(item T) error {
	if v, ok := any(item).(domain.Validator); ok && !item.IsArchived() {
		return v.Validate()
	}
	return nil
}

func (s *CollectionService[T]) publish(t EventType, id string) {
	s.eventBus.Publish(Event{
		Type:    t,
		Payload: Change{Collection: s.name, ID: id},
	})
}

func (s *CollectionService[T]) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveStore(s.name, op, start, *err)
}
