// Package storage provides database connections and repository implementations.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whale-role-bot/internal/config"
	apperrors "github.com/whale-role-bot/internal/errors"
)

const postgresConnectTimeout = 10 * time.Second

// PostgresDB wraps the pgxpool connection shared by the repositories
type PostgresDB struct {
	pool *pgxpool.Pool
}

// newPoolConfig builds the pool settings. The bot runs a handful of
// sequential queries per cycle, so one warm connection is enough.
func newPoolConfig(cfg *config.PostgresConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("invalid postgres configuration: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - MaxConnections is a small configured value
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.ConnectTimeout = postgresConnectTimeout

	return poolConfig, nil
}

// NewPostgresDB connects to Postgres and verifies the connection.
// Connection failures are database errors and may be retried; a bad
// configuration is not.
func NewPostgresDB(ctx context.Context, cfg *config.PostgresConfig) (*PostgresDB, error) {
	poolConfig, err := newPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, postgresConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, apperrors.NewDatabaseError("connect postgres", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, apperrors.NewDatabaseError("ping postgres", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the connection pool
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// WithTx runs fn in a transaction, committing when it returns nil
func (db *PostgresDB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, db.pool, fn)
}
