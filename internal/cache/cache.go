// Package cache implements the TTL cache that backs every RPC read.
//
// Entries are keyed by the stable serialization of (endpoint URL, method,
// arguments), so changing the endpoint makes prior entries unreachable
// without explicit invalidation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Default TTLs.
const (
	DefaultTTL         = 15 * time.Second
	DefaultMetadataTTL = 15 * time.Minute
)

// entry is a cached value and the time it was stored.
type entry struct {
	value    any
	storedAt time.Time
}

// Options configures Cache.
type Options struct {
	// Clock decides freshness. Defaults to the wall clock.
	Clock  clock.Clock
	Logger *zap.Logger
}

// Cache is a TTL map from key to value. It is unbounded except for expiry.
type Cache struct {
	items  *ttlcache.Cache[string, entry]
	clock  clock.Clock
	group  singleflight.Group
	logger *zap.Logger
}

// New creates a cache. Call Start to run background eviction.
func New(opts Options) *Cache {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	items := ttlcache.New[string, entry](
		ttlcache.WithDisableTouchOnHit[string, entry](),
	)
	return &Cache{
		items:  items,
		clock:  opts.Clock,
		logger: opts.Logger.Named("cache"),
	}
}

// Start runs expired-entry eviction until Stop is called. It blocks.
func (c *Cache) Start() {
	c.items.Start()
}

// Stop ends eviction started by Start.
func (c *Cache) Stop() {
	c.items.Stop()
}

// Key returns the cache key for a call. Arguments are JSON encoded, so maps
// serialize with sorted keys and equal arguments always yield equal keys.
func Key(url, method string, args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(struct {
		URL    string `json:"url"`
		Method string `json:"method"`
		Args   []any  `json:"args"`
	}{url, method, args})
	if err != nil {
		return "", fmt.Errorf("cache key for %s: %w", method, err)
	}
	return string(b), nil
}

// Get returns the value under key if it was stored less than ttl ago.
func (c *Cache) Get(key string, ttl time.Duration) (any, bool) {
	item := c.items.Get(key)
	if item == nil {
		return nil, false
	}
	e := item.Value()
	if c.clock.Since(e.storedAt) >= ttl {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, overwriting any previous entry. The entry is
// evicted once ttl has elapsed.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.items.Set(key, entry{value: value, storedAt: c.clock.Now()}, ttl)
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.items.Delete(key)
}

// Len returns the number of stored entries, including ones not yet evicted.
func (c *Cache) Len() int {
	return c.items.Len()
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.items.DeleteAll()
}

// Fetch returns the fresh value under key, or calls fetch, stores its
// result and returns it. Concurrent misses for one key share one fetch.
// Errors are returned to every waiter and never stored; an existing entry
// is left untouched on failure.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, bool, error) {
	if v, ok := c.Get(key, ttl); ok {
		if t, ok := v.(T); ok {
			return t, true, nil
		}
		c.logger.Warn("cached value has unexpected type", zap.String("key", key))
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key, ttl); ok {
			if t, ok := v.(T); ok {
				return t, nil
			}
		}
		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, val, ttl)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	t, _ := v.(T)
	return t, false, nil
}
