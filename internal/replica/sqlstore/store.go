// Package sqlstore keeps collection snapshots in a SQL table. SQLite
// (modernc.org/sqlite) and PostgreSQL (pgx) are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"yahalom/internal/replica"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var schemas = map[string]string{
	DriverSQLite: `CREATE TABLE IF NOT EXISTS snapshots (
		collection TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	DriverPostgres: `CREATE TABLE IF NOT EXISTS snapshots (
		collection TEXT PRIMARY KEY,
		payload BYTEA NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
}

var sqlDrivers = map[string]string{
	DriverSQLite:   "sqlite",
	DriverPostgres: "pgx",
}

// Store is a replica sink backed by database/sql
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Snapshot is one stored row
type Snapshot struct {
	Collection string
	Payload    []byte
	UpdatedAt  time.Time
}

// Open connects to the database and creates the snapshots table
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	name, ok := sqlDrivers[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single connection keeps in-memory databases alive and serializes writers
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, schemas[driver]); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}

	return &Store{db: db, driver: driver, now: time.Now}, nil
}

// Name returns the driver name
func (s *Store) Name() string {
	return s.driver
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Put replaces the snapshot of collection
func (s *Store) Put(ctx context.Context, collection string, snapshot []byte) error {
	query := s.rebind(`INSERT INTO snapshots(collection, payload, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(collection) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)

	if _, err := s.db.ExecContext(ctx, query, collection, snapshot, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("upsert %s: %w", collection, err)
	}
	return nil
}

// Get returns the stored snapshot of collection
func (s *Store) Get(ctx context.Context, collection string) ([]byte, error) {
	snap, err := s.Load(ctx, collection)
	if err != nil {
		return nil, err
	}
	return snap.Payload, nil
}

// Load returns the stored row of collection
func (s *Store) Load(ctx context.Context, collection string) (*Snapshot, error) {
	query := s.rebind(`SELECT payload, updated_at FROM snapshots WHERE collection = ?`)

	var (
		payload []byte
		millis  int64
	)
	err := s.db.QueryRowContext(ctx, query, collection).Scan(&payload, &millis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", collection, replica.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}

	return &Snapshot{
		Collection: collection,
		Payload:    payload,
		UpdatedAt:  time.UnixMilli(millis),
	}, nil
}

// Collections lists the collections that have a snapshot
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT collection FROM snapshots ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("select collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// rebind rewrites ? placeholders to $n for postgres
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
