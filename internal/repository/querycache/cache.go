// Package querycache memoizes query results in the backing key-value store.
// Keys are content-addressed, writes are idempotent, and every failure path
// degrades to a miss so an unavailable cache never fails a request.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/khana-cloud/khoj/internal/db"
	"github.com/khana-cloud/khoj/internal/domain"
)

// KeyPrefix namespaces every cache key in the backing store.
const KeyPrefix = domain.KeyPrefix + "cache:"

// TTL defaults. Search results live shorter than the default because the
// underlying candidate sets drift as the pipeline ingests new recipes.
const (
	DefaultTTL = time.Hour
	SearchTTL  = 30 * time.Minute
)

// Key derives a deterministic cache key from a namespace and query parameters.
// A free function on purpose: the key depends only on explicit arguments,
// never on instance-bound state, so identical inputs always collide.
// The JSON encoder sorts map keys, which makes the serialization canonical.
func Key(namespace string, params any) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal cache params: %w", err)
	}
	h := sha256.Sum256(data)
	return KeyPrefix + namespace + ":" + hex.EncodeToString(h[:]), nil
}

// store is the consumer interface for the cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	DelMulti(ctx context.Context, keys []string) (int, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Stats is a point-in-time cache report.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Keys    int     `json:"total_keys"`
}

// Cache is the query-result cache layer.
type Cache struct {
	store      store
	cacheTotal *prometheus.CounterVec
	defaultTTL time.Duration
	logger     *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache layer.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(s store, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	return &Cache{store: s, cacheTotal: cacheTotal, defaultTTL: DefaultTTL, logger: logger}
}

// WithDefaultTTL overrides the TTL used when Set receives a non-positive one.
func (c *Cache) WithDefaultTTL(d time.Duration) *Cache {
	if d > 0 {
		c.defaultTTL = d
	}
	return c
}

// Get loads and decodes a cached value into dest. Returns false on miss.
// Store errors and undecodable values are both treated as misses.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		c.miss()
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("Cached value undecodable, treating as miss", zap.String("key", key), zap.Error(err))
		c.miss()
		return false
	}

	c.hit()
	return true
}

// Set encodes and stores a value. ttl<=0 uses the cache's default TTL.
// Write failures are logged, not returned: the caller already has the value.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to encode cache value", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		c.logger.Warn("Failed to write cache value", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes a single key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.store.Del(ctx, key); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// InvalidatePattern enumerates keys matching pattern under the cache prefix
// and deletes them in bulk. Returns the number of keys removed.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := c.store.Scan(ctx, KeyPrefix+pattern)
	if err != nil {
		return 0, fmt.Errorf("cache scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := c.store.DelMulti(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("cache bulk delete: %w", err)
	}
	return n, nil
}

// FlushAll clears the entire cache namespace. Destructive, operator use only.
func (c *Cache) FlushAll(ctx context.Context) (int, error) {
	return c.InvalidatePattern(ctx, "*")
}

// ListKeys returns up to limit keys matching pattern under the cache prefix.
func (c *Cache) ListKeys(ctx context.Context, pattern string, limit int) ([]string, error) {
	keys, err := c.store.Scan(ctx, KeyPrefix+pattern)
	if err != nil {
		return nil, fmt.Errorf("cache scan %s: %w", pattern, err)
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// Stats reports hit/miss counters and the current key count.
// The key count comes from a live scan; a scan failure leaves it at zero
// rather than failing the report.
func (c *Cache) Stats(ctx context.Context) Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	keys, err := c.store.Scan(ctx, KeyPrefix+"*")
	if err != nil {
		c.logger.Warn("Cache key count scan failed", zap.Error(err))
	}

	return Stats{Hits: hits, Misses: misses, HitRate: rate, Keys: len(keys)}
}

func (c *Cache) hit() {
	c.hits.Add(1)
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues("hit").Inc()
	}
}

func (c *Cache) miss() {
	c.misses.Add(1)
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues("miss").Inc()
	}
}
