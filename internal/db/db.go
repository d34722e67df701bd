package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolInterface defines the pool operations repositories need. Both
// *pgxpool.Pool and pgxmock pools satisfy it.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DB wraps the shared PostgreSQL pool all stores hang off.
type DB struct {
	pool *pgxpool.Pool
}

// New opens a pool against databaseURL and verifies it with a ping.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().Msg("Database connection pool created successfully")
	return &DB{pool: pool}, nil
}

// Close releases the pool. Safe on a zero-value DB.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
		log.Info().Msg("Database connection pool closed")
	}
}

// Pool exposes the underlying pool for stores that need raw access.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// SetPool replaces the underlying pool. Used by test helpers that build
// the pool themselves (e.g. against a testcontainer).
func (db *DB) SetPool(pool *pgxpool.Pool) {
	db.pool = pool
}

// Health reports whether the database answers a ping.
func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Ping is an alias for Health kept for readiness probes.
func (db *DB) Ping(ctx context.Context) error {
	return db.Health(ctx)
}
