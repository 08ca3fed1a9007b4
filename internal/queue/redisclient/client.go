package redisclient

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = 2 * time.Second

// Client wraps a go-redis connection pool shared by the per-job heartbeat
// writer and the State Store's job-record cache. Shard assignment and
// singleton leadership live in Postgres, not here.
type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  dialTimeout,
		WriteTimeout: dialTimeout,
	})

	return &Client{redisdb: redisdb}
}

// Ping checks connectivity, used by the startup health check before the
// runner accepts cluster traffic.
func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// Raw exposes the underlying go-redis client for callers (heartbeat
// writer, State Store cache) that need commands this wrapper
// doesn't expose directly.
func (c *Client) Raw() *redis.Client {
	return c.redisdb
}
