package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"yahalom/internal/domain"
)

// document is the storage a Repository reads and replaces as a whole.
type document interface {
	Read() ([]byte, error)
	Write(data []byte) error
}

// Option configures a Repository.
type Option[T domain.Entity[T]] func(*Repository[T])

// WithIDGenerator replaces the uuid generator used by Add.
func WithIDGenerator[T domain.Entity[T]](gen func() string) Option[T] {
	return func(r *Repository[T]) { r.newID = gen }
}

// WithValidator sets a check run on every live record before it is stored by
// Add or Update. Archived records are not checked.
func WithValidator[T domain.Entity[T]](check func(T) error) Option[T] {
	return func(r *Repository[T]) { r.validate = check }
}

// Repository is the store for one collection of entities of type T.
type Repository[T domain.Entity[T]] struct {
	mu       sync.Mutex
	doc      document
	path     string
	kind     string
	newID    func() string
	validate func(T) error

	loaded bool
	full   []record[T]
	live   []T
}

// Open binds a repository to the collection file at path. kind names the
// entity type in error messages. The file is checked but not read.
func Open[T domain.Entity[T]](path, kind string, opts ...Option[T]) (*Repository[T], error) {
	f, err := OpenFile(path)
	if err != nil {
		return nil, newError(ErrStoreUnavailable, kind, "", err)
	}
	r := &Repository[T]{
		doc:   f,
		path:  f.Path(),
		kind:  kind,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Kind returns the entity type name of the collection.
func (r *Repository[T]) Kind() string { return r.kind }

// Path returns the collection file path.
func (r *Repository[T]) Path() string { return r.path }

// GetAll returns the live records in file order.
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make([]T, len(r.live))
	for i, v := range r.live {
		out[i] = v.WithID(v.GetID())
	}
	return out, nil
}

// GetByID looks up a live record. Absence is reported through ok, not as an
// error.
func (r *Repository[T]) GetByID(ctx context.Context, id string) (T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if err := r.ensureLoaded(ctx); err != nil {
		return zero, false, err
	}
	for _, v := range r.live {
		if v.GetID() == id {
			return v.WithID(id), true, nil
		}
	}
	return zero, false, nil
}

// Lookup finds a record in the full set, archived records included. It fails
// with ErrItemNotFound when the id is unknown.
func (r *Repository[T]) Lookup(ctx context.Context, id string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if err := r.ensureLoaded(ctx); err != nil {
		return zero, err
	}
	i, err := r.indexOf(id)
	if err != nil {
		return zero, err
	}
	return r.full[i].value.WithID(id), nil
}

// Add stores entity under a newly generated id, replacing any id it carried.
func (r *Repository[T]) Add(ctx context.Context, entity T) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if err := r.ensureLoaded(ctx); err != nil {
		return zero, err
	}
	stored := entity.WithID(r.uniqueID())
	if err := r.check(stored); err != nil {
		return zero, err
	}

	rec, err := newRecord(stored)
	if err != nil {
		return zero, newError(ErrWriteFailure, r.kind, stored.GetID(), err)
	}

	next := make([]record[T], len(r.full), len(r.full)+1)
	copy(next, r.full)
	next = append(next, rec)
	if err := r.persist(next); err != nil {
		return zero, err
	}
	return stored.WithID(stored.GetID()), nil
}

// Update merges patch over the record with the given id. The id itself is
// never changed. Archived records can be updated.
func (r *Repository[T]) Update(ctx context.Context, id string, patch Patch) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(ctx, id, patch)
}

// Delete archives the record with the given id. Records are never removed
// from the file.
func (r *Repository[T]) Delete(ctx context.Context, id string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(ctx, id, archivePatch)
}

// Snapshot returns the full collection, archived records included, encoded
// exactly as it is written to disk.
func (r *Repository[T]) Snapshot(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	data, err := encodeCollection(r.full)
	if err != nil {
		return nil, newError(ErrReadFailure, r.kind, "", err)
	}
	return data, nil
}

func (r *Repository[T]) update(ctx context.Context, id string, patch Patch) (T, error) {
	var zero T
	if err := r.ensureLoaded(ctx); err != nil {
		return zero, err
	}
	i, err := r.indexOf(id)
	if err != nil {
		return zero, err
	}
	merged, err := merge(r.full[i], patch)
	if err != nil {
		return zero, newError(ErrInvalidPatch, r.kind, id, err)
	}
	if err := r.check(merged.value); err != nil {
		return zero, err
	}

	next := make([]record[T], len(r.full))
	copy(next, r.full)
	next[i] = merged
	if err := r.persist(next); err != nil {
		return zero, err
	}
	return merged.value.WithID(id), nil
}

// ensureLoaded reads the collection file on first use.
func (r *Repository[T]) ensureLoaded(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.loaded {
		return nil
	}
	data, err := r.doc.Read()
	if err != nil {
		return newError(ErrReadFailure, r.kind, "", err)
	}
	records, err := decodeCollection[T](data)
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			se.Entity = r.kind
			return se
		}
		return newError(ErrReadFailure, r.kind, "", err)
	}
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		id := rec.value.GetID()
		if id == "" {
			return newError(ErrCorrupt, r.kind, "", fmt.Errorf("record %d has no id", i))
		}
		if _, dup := seen[id]; dup {
			return newError(ErrCorrupt, r.kind, id, errors.New("duplicate id"))
		}
		seen[id] = struct{}{}
	}
	r.commit(records)
	r.loaded = true
	return nil
}

// persist writes next to disk and only then makes it the cached state.
func (r *Repository[T]) persist(next []record[T]) error {
	data, err := encodeCollection(next)
	if err != nil {
		return newError(ErrWriteFailure, r.kind, "", err)
	}
	if err := r.doc.Write(data); err != nil {
		return newError(ErrWriteFailure, r.kind, "", err)
	}
	r.commit(next)
	return nil
}

// commit replaces the full set and recomputes the live projection.
func (r *Repository[T]) commit(full []record[T]) {
	r.full = full
	live := make([]T, 0, len(full))
	for _, rec := range full {
		if !rec.value.IsArchived() {
			live = append(live, rec.value)
		}
	}
	r.live = live
}

func (r *Repository[T]) indexOf(id string) (int, error) {
	for i, rec := range r.full {
		if rec.value.GetID() == id {
			return i, nil
		}
	}
	return -1, newError(ErrItemNotFound, r.kind, id, nil)
}

// uniqueID draws ids until one is unused. A generator that keeps colliding
// is abandoned in favour of a random uuid.
func (r *Repository[T]) uniqueID() string {
	for attempt := 0; attempt < 16; attempt++ {
		id := r.newID()
		if id == "" {
			continue
		}
		if _, err := r.indexOf(id); err != nil {
			return id
		}
	}
	return uuid.NewString()
}

func (r *Repository[T]) check(v T) error {
	if r.validate == nil || v.IsArchived() {
		return nil
	}
	return r.validate(v)
}
