// Package storage provides the snapshot database and the query cache.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portfolio-tracker/internal/config"
)

const connectTimeout = 10 * time.Second

// PostgresDB holds the pool backing the crypto_total table
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB opens a pool from the same URL the migrator uses and checks it answers
func NewPostgresDB(ctx context.Context, cfg *config.PostgresConfig) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - small configured value
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s:%s/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Pool is shared with SnapshotRepository
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close is safe to call more than once
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}
