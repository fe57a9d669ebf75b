// Package replica copies collection snapshots to backup sinks.
//
// The collection files stay the source of truth. After every mutation event
// the Replicator reads the changed collection's snapshot and pushes it to
// each configured Sink. Push failures are logged and counted; they never
// reach the request that caused the mutation.
package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"yahalom/internal/metrics"
	"yahalom/internal/service"
)

// ErrNotFound is returned by Fetcher.Get when a sink holds no snapshot for
// the collection
var ErrNotFound = errors.New("snapshot not found")

// ErrInvalidSnapshot is returned by Restore when a fetched snapshot is not a
// collection
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Source provides the current snapshot of one collection
type Source interface {
	Name() string
	Snapshot(ctx context.Context) ([]byte, error)
}

// Sink stores collection snapshots
type Sink interface {
	Name() string
	Put(ctx context.Context, collection string, snapshot []byte) error
}

// Fetcher is a Sink that can return what it stored
type Fetcher interface {
	Sink
	Get(ctx context.Context, collection string) ([]byte, error)
}

// Replicator pushes snapshots of changed collections to its sinks
type Replicator struct {
	sources map[string]Source
	sinks   []Sink
	metrics *metrics.Metrics
	timeout time.Duration
}

// New creates a Replicator for the given collections and sinks
func New(sources []Source, sinks []Sink) *Replicator {
	r := &Replicator{
		sources: make(map[string]Source, len(sources)),
		sinks:   sinks,
		timeout: 30 * time.Second,
	}
	for _, src := range sources {
		r.sources[src.Name()] = src
	}
	return r
}

// SetMetrics enables push metrics
func (r *Replicator) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Run consumes bus events until ctx is done or events is closed. Events for
// the same collection that queue up while a push is running are collapsed
// into one push.
func (r *Replicator) Run(ctx context.Context, events <-chan service.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			pending := map[string]struct{}{}
			addPending(pending, ev)
		drain:
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						break drain
					}
					addPending(pending, ev)
				default:
					break drain
				}
			}

			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				if err := r.Sync(ctx, name); err != nil {
					log.Printf("Replica sync of %s failed: %v", name, err)
				}
			}
		}
	}
}

func addPending(pending map[string]struct{}, ev service.Event) {
	if change, ok := ev.Payload.(service.Change); ok && change.Collection != "" {
		pending[change.Collection] = struct{}{}
	}
}

// Sync pushes the current snapshot of one collection to every sink
func (r *Replicator) Sync(ctx context.Context, collection string) error {
	src, ok := r.sources[collection]
	if !ok {
		return fmt.Errorf("unknown collection %q", collection)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	snapshot, err := src.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", collection, err)
	}

	var errs []error
	for _, sink := range r.sinks {
		err := sink.Put(ctx, collection, snapshot)
		r.metrics.ObservePush(sink.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// SyncAll pushes every collection
func (r *Replicator) SyncAll(ctx context.Context) error {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := r.Sync(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Restore writes the snapshot f holds for collection to a new file at path.
// It fails with os.ErrExist when the file is already there, with ErrNotFound
// when f has no snapshot and with ErrInvalidSnapshot when the snapshot is not
// a JSON array of objects.
func Restore(ctx context.Context, f Fetcher, collection, path string) error {
	snapshot, err := f.Get(ctx, collection)
	if err != nil {
		return err
	}
	if err := checkSnapshot(snapshot); err != nil {
		return fmt.Errorf("%s snapshot from %s: %w: %v", collection, f.Name(), ErrInvalidSnapshot, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := file.Write(snapshot); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return file.Close()
}

// checkSnapshot accepts a JSON array of objects
func checkSnapshot(snapshot []byte) error {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(snapshot, &records); err != nil {
		return err
	}
	if records == nil {
		return errors.New("not an array")
	}
	for i, rec := range records {
		if rec == nil {
			return fmt.Errorf("item %d is not an object", i)
		}
	}
	return nil
}
