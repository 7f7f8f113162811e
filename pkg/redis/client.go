// Package redis wraps go-redis/v9 with a byte-oriented get/set surface and
// pattern-based key invalidation for cache maintenance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fundergrid/research-service/pkg/config"
	"github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

// Client wraps a pooled go-redis connection.
type Client struct {
	rdb *redis.Client
}

// Dial connects to Redis and verifies the connection with a PING before
// returning. The PING is bounded by dialTimeout even when ctx has no
// deadline of its own.
func Dial(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Get returns the value stored under key. A missing key is reported through
// the boolean, not as an error.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return data, true, nil
}

// Set stores value under key with the given TTL. A zero TTL keeps the key
// until it is explicitly deleted.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// FlushByPattern deletes every key matching the glob pattern, batching the
// deletes so a large keyspace does not turn into one DEL per key. Returns
// the number of keys removed.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int, error) {
	const batchSize = 100
	var (
		deleted int
		batch   []string
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("deleting %d keys for pattern %s: %w", len(batch), pattern, err)
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	iter := c.rdb.Scan(ctx, 0, pattern, batchSize).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning pattern %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// Ping verifies the connection, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
