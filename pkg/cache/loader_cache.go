// Package cache provides a generic loader cache combining an expiring LRU with
// singleflight to coalesce concurrent loads for the same set of missing keys.
package cache

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// LoaderCache loads missing values in batches via a callback and coalesces concurrent loads for
// the same set of missing keys using singleflight.
// Keys are converted to strings internally via keyToString for LRU and singleflight.
type LoaderCache[K comparable, V any] struct {
	lru         *expirable.LRU[string, V]
	group       singleflight.Group
	keyToString func(K) string
}

// NewLoaderCache creates a loader cache with the given max entries, entry TTL (zero or negative
// means entries never expire) and key serializer.
func NewLoaderCache[K comparable, V any](maxEntries int, ttl time.Duration, keyToString func(K) string) *LoaderCache[K, V] {
	return &LoaderCache[K, V]{
		lru:         expirable.NewLRU[string, V](maxEntries, nil, ttl),
		keyToString: keyToString,
	}
}

// GetMany returns the cached values for keys and loads every missing key with a single loadMany call.
// Keys that loadMany does not return are absent from the result and are not cached.
// hits counts the keys served from cache.
func (c *LoaderCache[K, V]) GetMany(
	ctx context.Context, keys []K, loadMany func(context.Context, []K) (map[K]V, error),
) (values map[K]V, hits int, err error) {
	values = make(map[K]V, len(keys))

	var missing []K

	seen := make(map[K]struct{}, len(keys))

	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}

		seen[k] = struct{}{}

		if v, ok := c.lru.Get(c.keyToString(k)); ok {
			values[k] = v
			hits++

			continue
		}

		missing = append(missing, k)
	}

	if len(missing) == 0 {
		return values, hits, nil
	}

	flightKey := c.batchKey(missing)

	loaded, err, _ := c.group.Do(flightKey, func() (any, error) {
		m, loadErr := loadMany(ctx, missing)
		if loadErr != nil {
			return nil, loadErr
		}

		for k, v := range m {
			c.lru.Add(c.keyToString(k), v)
		}

		return m, nil
	})
	if err != nil {
		return nil, hits, err
	}

	for k, v := range loaded.(map[K]V) {
		values[k] = v
	}

	return values, hits, nil
}

// batchKey is the singleflight key of a set of missing keys, independent of their order.
func (c *LoaderCache[K, V]) batchKey(keys []K) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = c.keyToString(k)
	}

	sort.Strings(parts)

	return "batch\x00" + strings.Join(parts, "\x00")
}
