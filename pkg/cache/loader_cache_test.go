package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStringCache(t *testing.T, size int) *LoaderCache[string, string] {
	t.Helper()

	c, err := NewLoaderCache[string, string](size, func(s string) string { return s })
	require.NoError(t, err)

	return c
}

func TestNewLoaderCache_InvalidSize(t *testing.T) {
	_, err := NewLoaderCache[string, string](0, func(s string) string { return s })
	assert.Error(t, err)
}

func TestLoaderCache_MissThenHit(t *testing.T) {
	c := newStringCache(t, 10)
	ctx := context.Background()

	var loads atomic.Int32

	load := func(_ context.Context, key string) (string, error) {
		loads.Add(1)

		return "v-" + key, nil
	}

	v, hit, err := c.GetWithStats(ctx, "a", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "v-a", v)

	v, hit, err = c.GetWithStats(ctx, "a", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "v-a", v)
	assert.Equal(t, int32(1), loads.Load())
}

func TestLoaderCache_ConcurrentMissesShareLoad(t *testing.T) {
	c, err := NewLoaderCache[string, int](10, func(s string) string { return s })
	require.NoError(t, err)

	release := make(chan struct{})

	var loads atomic.Int32

	load := func(_ context.Context, _ string) (int, error) {
		loads.Add(1)
		<-release

		return 42, nil
	}

	var wg sync.WaitGroup

	results := make([]int, 8)
	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			v, err := c.Get(context.Background(), "x", load)
			assert.NoError(t, err)

			results[i] = v
		}()
	}

	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 42, v)
	}

	// Goroutines that start after the first load finished hit the cache instead.
	assert.GreaterOrEqual(t, loads.Load(), int32(1))
	assert.LessOrEqual(t, loads.Load(), int32(len(results)))
}

func TestLoaderCache_SetAndInvalidate(t *testing.T) {
	c := newStringCache(t, 10)
	ctx := context.Background()

	load := func(_ context.Context, key string) (string, error) { return "loaded-" + key, nil }

	c.Set("a", "primed")

	v, hit, err := c.GetWithStats(ctx, "a", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "primed", v)

	c.Invalidate("a")
	assert.Equal(t, 0, c.Len())

	v, hit, err = c.GetWithStats(ctx, "a", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "loaded-a", v)

	_, _ = c.Get(ctx, "b", load)
	assert.Equal(t, 2, c.Len())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestLoaderCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newStringCache(t, 2)
	ctx := context.Background()

	load := func(_ context.Context, key string) (string, error) { return key, nil }

	_, _ = c.Get(ctx, "a", load)
	_, _ = c.Get(ctx, "b", load)
	_, _ = c.Get(ctx, "a", load)
	_, _ = c.Get(ctx, "c", load)

	_, hit, _ := c.GetWithStats(ctx, "a", load)
	assert.True(t, hit)

	_, hit, _ = c.GetWithStats(ctx, "b", load)
	assert.False(t, hit, "b was least recently used")
}

func TestLoaderCache_LoadErrorNotCached(t *testing.T) {
	c := newStringCache(t, 10)

	loadErr := errors.New("store down")

	_, err := c.Get(context.Background(), "a", func(context.Context, string) (string, error) {
		return "", loadErr
	})
	require.ErrorIs(t, err, loadErr)
	assert.Equal(t, 0, c.Len())
}
