package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"driftwatch/internal/config"
	"driftwatch/internal/types"
)

// NewPool creates a pgx connection pool from the database configuration and
// verifies connectivity before returning. Workers call this once at cold
// start and fail fast on a bad configuration.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to parse database URL", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create connection pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to ping database", err)
	}

	return pool, nil
}
