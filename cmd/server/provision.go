package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"yahalom/internal/config"
	"yahalom/internal/loader"
	"yahalom/internal/replica"
	replicas3 "yahalom/internal/replica/s3"
	"yahalom/internal/replica/sqlstore"
	"yahalom/internal/service"
)

// provision creates every missing collection file. A file is restored from
// the replica when fetcher holds a snapshot of it, and starts as an empty
// array otherwise. Existing files are never touched.
func provision(ctx context.Context, paths map[string]string, fetcher replica.Fetcher) error {
	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := paths[name]
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		if fetcher != nil {
			err := replica.Restore(ctx, fetcher, name, path)
			if err == nil {
				log.Printf("Restored %s from %s replica", path, fetcher.Name())
				continue
			}
			if !errors.Is(err, replica.ErrNotFound) {
				return fmt.Errorf("restore %s: %w", name, err)
			}
		}

		if err := createEmpty(path); err != nil {
			return err
		}
		log.Printf("Created empty collection file %s", path)
	}
	return nil
}

func createEmpty(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write([]byte("[]")); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// openSinks builds the configured replica sinks. The returned fetcher is the
// sink used to restore missing files, or nil when there is none.
func openSinks(ctx context.Context, cfg config.ReplicaConfig) ([]replica.Sink, replica.Fetcher, func(), error) {
	var (
		sinks   []replica.Sink
		fetcher replica.Fetcher
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Printf("Replica close error: %v", err)
			}
		}
	}

	if !cfg.Enabled {
		return nil, nil, closeAll, nil
	}

	if cfg.SQL != nil {
		store, err := sqlstore.Open(ctx, cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, nil, closeAll, err
		}
		closers = append(closers, store.Close)
		sinks = append(sinks, store)
		fetcher = store
	}

	if cfg.S3 != nil {
		sink, err := replicas3.New(ctx, replicas3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     os.Getenv("YAHALOM_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("YAHALOM_S3_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		sinks = append(sinks, sink)
		if fetcher == nil {
			fetcher = sink
		}
	}

	return sinks, fetcher, closeAll, nil
}

// seedTarget is a collection that can be seeded
type seedTarget interface {
	Snapshot(ctx context.Context) ([]byte, error)
	Import(ctx context.Context, format string, data []byte) (*service.ImportResult, error)
}

// seed imports the records of the seed file into every collection that has
// no records yet, archived ones included
func seed(ctx context.Context, path string, targets map[string]seedTarget) error {
	records, err := loader.LoadSeed(path)
	if err != nil {
		return err
	}

	for _, name := range records.Collections() {
		target, ok := targets[name]
		if !ok {
			continue
		}

		snapshot, err := target.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		var existing []json.RawMessage
		if err := json.Unmarshal(snapshot, &existing); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		if len(existing) > 0 {
			continue
		}

		result, err := target.Import(ctx, "json", records[name])
		if err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
		log.Printf("Seeded %s: %d created, %d rejected", name, len(result.Created), len(result.Failed))
		for _, f := range result.Failed {
			log.Printf("Seed %s[%d] rejected: %s", name, f.Index, f.Error)
		}
	}
	return nil
}
