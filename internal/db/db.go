// Package db provides PostgreSQL storage for harvest checkpoints, directory
// grants and the run history.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	kvTable   = "harvester_kv"
	runsTable = "harvest_runs"
)

// psql builds statements with PostgreSQL placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// schemaStatements create the tables used by this package. They are safe to
// run on every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS harvester_kv (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (namespace, key)
	)`,
	`CREATE TABLE IF NOT EXISTS harvest_runs (
		id            UUID PRIMARY KEY,
		status        TEXT NOT NULL,
		queue_length  INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		error_count   INTEGER NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at  TIMESTAMPTZ
	)`,
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// EnsureSchema creates the key-value and run tables when missing
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func getQuery(namespace, key string) (string, []any, error) {
	return psql.Select("value").
		From(kvTable).
		Where(sq.Eq{"namespace": namespace, "key": key}).
		ToSql()
}

func putQuery(namespace, key string, value []byte, at time.Time) (string, []any, error) {
	return psql.Insert(kvTable).
		Columns("namespace", "key", "value", "updated_at").
		Values(namespace, key, value, at).
		Suffix("ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
}

func deleteQuery(namespace, key string) (string, []any, error) {
	return psql.Delete(kvTable).
		Where(sq.Eq{"namespace": namespace, "key": key}).
		ToSql()
}

// Get returns the stored value, or nil when the key is absent
func (db *DB) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	query, args, err := getQuery(namespace, key)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	var value []byte
	if err := db.pool.QueryRow(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

// Put inserts or replaces a value
func (db *DB) Put(ctx context.Context, namespace, key string, value []byte) error {
	query, args, err := putQuery(namespace, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	if _, err := db.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes a value. Deleting an absent key is not an error.
func (db *DB) Delete(ctx context.Context, namespace, key string) error {
	query, args, err := deleteQuery(namespace, key)
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	if _, err := db.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", namespace, key, err)
	}
	return nil
}
