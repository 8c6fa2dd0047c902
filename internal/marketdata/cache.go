// Package marketdata serves normalized market records from the CoinGecko
// API behind a TTL cache and a call-spacing limiter, falling back to stale
// cache entries and synthetic tables when the provider is unavailable. It
// also hosts the simulated price poller used by the trading engine.
package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"tradedesk/internal/logging"
	"tradedesk/internal/models"
)

// Outcome describes where a cached fetch got its value.
type Outcome string

const (
	OutcomeHit     Outcome = "hit"
	OutcomeFetched Outcome = "fetched"
	OutcomeStale   Outcome = "stale"
	OutcomeMiss    Outcome = "miss"
)

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache keeps the last successful payload per request key. Entries older
// than the TTL are not served as hits but stay until replaced so they can
// back a failed refetch.
type Cache[T any] struct {
	ttl    time.Duration
	clock  clock.Clock
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry[T]
}

// NewCache creates an empty cache.
func NewCache[T any](ttl time.Duration, clk clock.Clock, logger zerolog.Logger) *Cache[T] {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache[T]{
		ttl:     ttl,
		clock:   clk,
		logger:  logger,
		entries: make(map[string]cacheEntry[T]),
	}
}

// Get returns the entry for key if it is younger than the TTL.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.clock.Since(e.fetchedAt) >= c.ttl {
		var zero T
		return zero, false
	}
	return e.value, true
}

// GetStale returns the entry for key regardless of age.
func (c *Cache[T]) GetStale(key string) (T, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return e.value, e.fetchedAt, ok
}

// Set stores value under key, stamped with the current time.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{value: value, fetchedAt: c.clock.Now()}
	c.mu.Unlock()
}

// Expire marks the entry for key as stale without dropping it.
func (c *Cache[T]) Expire(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.fetchedAt = c.clock.Now().Add(-c.ttl)
		c.entries[key] = e
	}
}

// Fetch serves key from the cache when fresh, otherwise calls fetch and
// stores the result. When fetch fails and an expired entry exists, that
// entry is returned with OutcomeStale and a nil error.
func (c *Cache[T]) Fetch(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, Outcome, error) {
	if v, ok := c.Get(key); ok {
		logging.LogCacheEvent(c.logger, key, string(OutcomeHit), 0)
		return v, OutcomeHit, nil
	}

	v, err := fetch(ctx)
	if err == nil {
		c.Set(key, v)
		logging.LogCacheEvent(c.logger, key, string(OutcomeFetched), 0)
		return v, OutcomeFetched, nil
	}

	if stale, at, ok := c.GetStale(key); ok {
		age := c.clock.Since(at)
		c.logger.Warn().Err(err).Str("key", key).Dur("age", age).Msg("Serving stale cache entry")
		logging.LogCacheEvent(c.logger, key, string(OutcomeStale), age)
		return stale, OutcomeStale, nil
	}

	logging.LogCacheEvent(c.logger, key, string(OutcomeMiss), 0)
	var zero T
	return zero, OutcomeMiss, err
}

// Clear drops every entry.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[T])
	c.mu.Unlock()
}

// Stats reports size, sorted keys and the oldest fetch time. OldestEntry
// is the current time when the cache is empty.
func (c *Cache[T]) Stats() models.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := models.CacheStats{
		Size:        len(c.entries),
		Keys:        make([]string, 0, len(c.entries)),
		OldestEntry: c.clock.Now(),
	}
	for k, e := range c.entries {
		stats.Keys = append(stats.Keys, k)
		if e.fetchedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = e.fetchedAt
		}
	}
	sort.Strings(stats.Keys)
	return stats
}
