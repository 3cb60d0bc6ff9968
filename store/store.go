// Package store wraps the shared Postgres connection pool and schema used
// by every other koi-node component (C11).
package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Config holds the Postgres connection parameters for the shared store.
type Config struct {
	DSN             string
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

// Store wraps the process-wide pgx connection pool every operation acquires
// and releases a single connection from.
type Store struct {
	Pool *pgxpool.Pool
}

// New opens a connection pool against cfg.DSN.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: parsing DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: creating connection pool: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Ping verifies connectivity; used directly by health.DatabaseHealthCheck.
func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.Pool.Close()
}

// Migrate applies the embedded schema. It is idempotent: every statement is
// CREATE ... IF NOT EXISTS, so running it against an already-migrated
// database is a no-op. This deliberately is not a migration engine (spec.md
// Non-goals) — a single schema file applied once per process start.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("store: applying schema: %w", err)
	}
	return nil
}
