// Package cache keeps listing pages in redis. Keys embed the index
// generation, so a newly published index never serves pages computed from
// the old one; Invalidate only reclaims the space early.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/query"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/resilience"
)

const keyPrefix = "blog:page:"

// Backend is satisfied by *redis.Client.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

type entry struct {
	Status query.Status `json:"status"`
	Page   query.Page   `json:"page"`
}

// PageCache caches listing pages per index generation.
type PageCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	hits    atomic.Int64
	misses  atomic.Int64
	logger  *slog.Logger
}

// New builds a cache over backend. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *PageCache {
	return &PageCache{
		backend: backend,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("page-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     15 * time.Second,
		}),
		metrics: m,
		logger:  slog.Default().With("component", "page-cache"),
	}
}

// GetOrCompute returns the cached page or computes, stores and returns it.
// Concurrent misses for one key share a single computation. Backend errors
// degrade to computing without the cache.
func (c *PageCache) GetOrCompute(ctx context.Context, generation string, page int, tags []string, size int,
	compute func() (query.Page, error)) (query.Page, bool, error) {
	key := buildKey(generation, page, tags, size)
	if p, ok := c.get(ctx, key); ok {
		c.hit()
		return p, true, nil
	}
	c.miss()
	val, err, _ := c.group.Do(key, func() (any, error) {
		p, err := compute()
		if err != nil {
			return query.Page{}, err
		}
		c.set(ctx, key, p)
		return p, nil
	})
	if err != nil {
		return query.Page{}, false, err
	}
	return val.(query.Page), false, nil
}

// Invalidate drops every cached page.
func (c *PageCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.DeleteByPrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating page cache: %w", err)
	}
	c.logger.Info("page cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counts since start.
func (c *PageCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *PageCache) get(ctx context.Context, key string) (query.Page, bool) {
	var (
		data  []byte
		found bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.backend.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Debug("cache get failed", "key", key, "error", err)
		return query.Page{}, false
	}
	if !found {
		return query.Page{}, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		return query.Page{}, false
	}
	e.Page.Status = e.Status
	return e.Page, true
}

func (c *PageCache) set(ctx context.Context, key string, p query.Page) {
	data, err := json.Marshal(entry{Status: p.Status, Page: p})
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Debug("cache set failed", "key", key, "error", err)
	}
}

func (c *PageCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *PageCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey ignores tag order and duplicates since the tag filter is a union.
func buildKey(generation string, page int, tags []string, size int) string {
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			normalized = append(normalized, tag)
		}
	}
	slices.Sort(normalized)
	normalized = slices.Compact(normalized)
	raw := fmt.Sprintf("page=%d;size=%d;tags=%s", page, size, strings.Join(normalized, "\x00"))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, generation, hash[:16])
}
