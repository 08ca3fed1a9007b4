package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)


const (
	maxPoolConns  = 5
	connectDeadline = 5 * time.Second
)

// NewPool opens a pgx connection pool and confirms it's reachable before
// returning, so a bad DSN or unreachable Postgres fails at startup
// instead of on the first query a handler runs.
func NewPool(dbURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = maxPoolConns

	ctx, cancel := context.WithTimeout(context.Background(), connectDeadline)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}