// Package cache memoises search responses in Redis. Keys are scoped per index
// and carry a per-index epoch that is bumped on every change, so a stale
// response can never be read back after the index it came from was mutated.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/devsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger

	nonce  string
	mu     sync.Mutex
	epochs map[string]uint64

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache over store. breaker and m may be nil.
func New(store Store, ttl time.Duration, breaker *resilience.CircuitBreaker, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		breaker: breaker,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
		nonce:   fmt.Sprintf("%x", time.Now().UnixNano()),
		epochs:  make(map[string]uint64),
	}
}

func (c *QueryCache) epoch(indexName string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochs[indexName]
}

func (c *QueryCache) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	var data string
	found := false
	err := c.guard(func() error {
		v, err := c.store.Get(ctx, key)
		if err != nil {
			if pkgredis.IsNilError(err) {
				return nil
			}
			return err
		}
		data, found = v, true
		return nil
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if !found {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	return &result, true
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.guard(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	}); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response for the query or computes, stores
// and returns it. Concurrent identical queries share one computation. The
// bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	indexName, query string,
	opts executor.Options,
	compute func() *executor.SearchResult,
) (*executor.SearchResult, bool) {
	key := c.buildKey(indexName, query, opts)
	if result, ok := c.get(ctx, key); ok {
		return result, true
	}
	val, _, _ := c.group.Do(key, func() (any, error) {
		result := compute()
		c.set(ctx, key, result)
		return result, nil
	})
	return val.(*executor.SearchResult), false
}

// InvalidateIndex makes every cached response for indexName unreachable.
// When purge is set the stale keys are also deleted from Redis.
func (c *QueryCache) InvalidateIndex(ctx context.Context, indexName string, purge bool) error {
	c.mu.Lock()
	c.epochs[indexName]++
	c.mu.Unlock()
	if !purge {
		return nil
	}
	pattern := keyPrefix + indexName + ":*"
	var deleted int64
	err := c.guard(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, pattern)
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache for %s: %w", indexName, err)
	}
	c.logger.Info("cache invalidate", "index", indexName, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) buildKey(indexName, query string, opts executor.Options) string {
	raw := fmt.Sprintf("%s|%d|%s", c.nonce, c.epoch(indexName), normalizeRequest(query, opts))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, indexName, hash[:16])
}

// normalizeRequest collapses whitespace in the query and orders the field
// list; case is kept because indexes may be case sensitive.
func normalizeRequest(query string, opts executor.Options) string {
	fields := append([]string(nil), opts.Fields...)
	sort.Strings(fields)
	return fmt.Sprintf("q=%s|fields=%s|limit=%d|offset=%d|fuzzy=%t",
		strings.Join(strings.Fields(query), " "),
		strings.Join(fields, ","),
		opts.Limit,
		opts.Offset,
		opts.Fuzzy,
	)
}
