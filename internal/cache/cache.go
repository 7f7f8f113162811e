// Package cache provides an optional Redis-backed cache for search-tool
// responses, with singleflight dogpile suppression. The store itself is
// immutable for the process lifetime, so entries only turn stale across
// restarts and a TTL is plenty.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/fundergrid/research-service/pkg/config"
	pkgredis "github.com/fundergrid/research-service/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "tool:search:"

// SearchCache stores the id projections returned by the search tool.
type SearchCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a SearchCache over an established Redis client.
func New(client *pkgredis.Client, cfg config.RedisConfig) *SearchCache {
	return &SearchCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "search-cache"),
	}
}

// Get returns the cached id list for the query/method pair.
func (c *SearchCache) Get(ctx context.Context, query string, method string) ([]string, bool) {
	key := c.buildKey(query, method)
	data, ok, err := c.client.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if !ok || err != nil {
		c.misses.Add(1)
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return ids, true
}

// Set stores the id list for the query/method pair.
func (c *SearchCache) Set(ctx context.Context, query string, method string, ids []string) {
	key := c.buildKey(query, method)
	data, err := json.Marshal(ids)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached ids or computes and stores them, collapsing
// concurrent lookups for the same key into a single computation.
func (c *SearchCache) GetOrCompute(
	ctx context.Context,
	query string,
	method string,
	computeFn func() ([]string, error),
) ([]string, bool, error) {
	if ids, ok := c.Get(ctx, query, method); ok {
		return ids, true, nil
	}
	key := c.buildKey(query, method)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if ids, ok := c.Get(ctx, query, method); ok {
			return ids, nil
		}
		ids, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, method, ids)
		return ids, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]string), false, nil
}

// Invalidate drops every cached search response.
func (c *SearchCache) Invalidate(ctx context.Context) (int, error) {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("invalidating search cache: %w", err)
	}
	c.logger.Info("search cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns hit and miss counts since startup.
func (c *SearchCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *SearchCache) buildKey(query string, method string) string {
	raw := strings.ToLower(query) + "|method=" + method
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
