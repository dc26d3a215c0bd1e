// Package cache keeps rendered directory responses in Redis, keyed by the
// operation, its normalized parameters and the index build sequence, so a
// reload never serves pages computed from an older snapshot.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "dir:"

// KV is the subset of the Redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// ResponseCache is safe for concurrent use. A nil *ResponseCache is valid
// and caches nothing.
type ResponseCache struct {
	kv      KV
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(kv KV, ttl time.Duration, m *metrics.Metrics) *ResponseCache {
	return &ResponseCache{
		kv:      kv,
		ttl:     ttl,
		logger:  slog.Default().With("component", "response-cache"),
		metrics: m,
	}
}

// Key builds the Redis key for op. Parts must already be normalized by
// the caller; their order is significant.
func Key(op string, seq uint64, parts ...string) string {
	raw := fmt.Sprintf("%s\x1f%d\x1f%s", op, seq, strings.Join(parts, "\x1f"))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, op, hash[:16])
}

func (c *ResponseCache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *ResponseCache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *ResponseCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ResponseCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// GetOrCompute returns the cached value under key or computes, stores and
// returns it. Identical concurrent misses share one computation. Cache
// failures degrade to computing; only compute errors are returned.
func GetOrCompute[T any](ctx context.Context, c *ResponseCache, key string, compute func() (T, error)) (T, bool, error) {
	if c == nil {
		v, err := compute()
		return v, false, err
	}
	var cached T
	if c.get(ctx, key, &cached) {
		c.hit()
		return cached, true, nil
	}
	c.miss()
	val, err, _ := c.group.Do(key, func() (any, error) {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

// Invalidate drops every cached response.
func (c *ResponseCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	deleted, err := c.kv.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating response cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

type Stats struct {
	Enabled bool  `json:"enabled"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

func (c *ResponseCache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Enabled: true, Hits: c.hits.Load(), Misses: c.misses.Load()}
}
