// Package cache provides a bounded read-through cache whose concurrent misses
// for one key share a single load.
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LoaderCache keeps up to maxEntries values in an LRU and loads missing ones
// through a caller-supplied function. Concurrent misses for the same key run
// load once and share the result. Failed loads are never stored.
type LoaderCache[K comparable, V any] struct {
	entries *lru.Cache[string, V]
	flight  singleflight.Group
	keyFn   func(K) string
}

// NewLoaderCache creates a cache holding at most maxEntries values. keyFn maps
// a key to the string used for both the LRU and load coalescing.
func NewLoaderCache[K comparable, V any](maxEntries int, keyFn func(K) string) (*LoaderCache[K, V], error) {
	entries, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, err
	}

	return &LoaderCache[K, V]{entries: entries, keyFn: keyFn}, nil
}

// Get returns the cached value for key or loads it.
func (c *LoaderCache[K, V]) Get(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, error) {
	v, _, err := c.GetWithStats(ctx, key, load)

	return v, err
}

// GetWithStats is Get that also reports whether the value was already cached,
// so callers can record hit/miss metrics.
func (c *LoaderCache[K, V]) GetWithStats(ctx context.Context, key K, load func(context.Context, K) (V, error)) (V, bool, error) {
	k := c.keyFn(key)
	if v, ok := c.entries.Get(k); ok {
		return v, true, nil
	}

	res, err, _ := c.flight.Do(k, func() (any, error) {
		loaded, err := load(ctx, key)
		if err != nil {
			return nil, err
		}

		c.entries.Add(k, loaded)

		return loaded, nil
	})
	if err != nil {
		var zero V

		return zero, false, err
	}

	return res.(V), false, nil
}

// Set stores v for key, replacing any cached value. Used after a write so the
// next read does not go back to the store.
func (c *LoaderCache[K, V]) Set(key K, v V) {
	c.entries.Add(c.keyFn(key), v)
}

// Invalidate drops key. An in-flight load for key may still store its result.
func (c *LoaderCache[K, V]) Invalidate(key K) {
	c.entries.Remove(c.keyFn(key))
}

// InvalidateAll drops every entry.
func (c *LoaderCache[K, V]) InvalidateAll() {
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *LoaderCache[K, V]) Len() int {
	return c.entries.Len()
}
