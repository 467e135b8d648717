// Package postgres implements the repository interfaces on PostgreSQL
// through a pgx connection pool.
//
// It runs the same catalogue queries as the sqlite package (see the query
// package); only the write statements and error translation live here.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/game-market/internal/repository"
	"github.com/sakif/game-market/internal/repository/query"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a pgx connection pool.
type DB struct {
	pool    *pgxpool.Pool
	dialect query.Dialect
	now     func() time.Time
}

// Options tunes the pool. Zero values keep pgx defaults.
type Options struct {
	MaxConns int32
	MinConns int32
}

// New connects to databaseURL. It does not run migrations: call Migrate
// first (the server does this at startup, the CLI via "migrate up").
func New(ctx context.Context, databaseURL string, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing database URL: %w", err)
	}

	// Timestamps are written and compared in UTC everywhere.
	cfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening pool: %w", err)
	}

	// Fail fast
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &DB{pool: pool, dialect: query.Postgres, now: utcNow}, nil
}

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Close releases every pooled connection. It always returns nil; the
// error is there to satisfy repository.Store.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
