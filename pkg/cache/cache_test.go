package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetPut(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(nil)
	defer cache.Close()

	// Test Put
	err := cache.Put(ctx, "SELECT 1", Verdict{Valid: true})
	require.NoError(t, err)
	require.NoError(t, cache.Put(ctx, "SELEC 1", Verdict{Valid: false, EngineCode: 1064}))

	// Test Get
	v, ok := cache.Get(ctx, "SELECT 1")
	require.True(t, ok)
	assert.True(t, v.Valid)

	v, ok = cache.Get(ctx, "SELEC 1")
	require.True(t, ok)
	assert.False(t, v.Valid)
	assert.Equal(t, 1064, v.EngineCode)

	// Test Get non-existent
	_, ok = cache.Get(ctx, "nonexistent")
	assert.False(t, ok)

	stats := cache.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 2, stats.Entries)
}

func TestMemoryCache_Overwrite(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(nil)

	require.NoError(t, cache.Put(ctx, "q", Verdict{Valid: true}))
	require.NoError(t, cache.Put(ctx, "q", Verdict{Valid: false}))

	v, ok := cache.Get(ctx, "q")
	require.True(t, ok)
	assert.False(t, v.Valid)
	assert.Equal(t, int64(1+entryOverhead), cache.Stats().Size)
}

func TestMemoryCache_Eviction(t *testing.T) {
	ctx := context.Background()
	// Room for two one-byte keys.
	cache := NewMemoryCache(DefaultConfig().WithMaxSize(2 * (1 + entryOverhead)))

	clock := time.Unix(1000, 0)
	cache.now = func() time.Time { return clock }

	require.NoError(t, cache.Put(ctx, "a", Verdict{Valid: true}))
	clock = clock.Add(time.Second)
	require.NoError(t, cache.Put(ctx, "b", Verdict{Valid: true}))
	clock = clock.Add(time.Second)

	// Touch a so that b is the least recently used.
	_, ok := cache.Get(ctx, "a")
	require.True(t, ok)
	clock = clock.Add(time.Second)

	require.NoError(t, cache.Put(ctx, "c", Verdict{Valid: true}))

	_, ok = cache.Get(ctx, "b")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = cache.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), cache.Stats().Evictions)
}

func TestMemoryCache_OversizedEntryIsSkipped(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(DefaultConfig().WithMaxSize(entryOverhead))

	require.NoError(t, cache.Put(ctx, "too long", Verdict{Valid: true}))
	_, ok := cache.Get(ctx, "too long")
	assert.False(t, ok)
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(DefaultConfig().WithTTL(time.Minute))

	clock := time.Unix(1000, 0)
	cache.now = func() time.Time { return clock }

	require.NoError(t, cache.Put(ctx, "q", Verdict{Valid: true}))

	clock = clock.Add(30 * time.Second)
	_, ok := cache.Get(ctx, "q")
	assert.True(t, ok)

	clock = clock.Add(time.Minute)
	_, ok = cache.Get(ctx, "q")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Stats().Entries)
	assert.Equal(t, int64(0), cache.Stats().Size)
}

func TestMemoryCache_DeleteClear(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(nil)

	require.NoError(t, cache.Put(ctx, "a", Verdict{Valid: true}))
	require.NoError(t, cache.Put(ctx, "b", Verdict{Valid: true}))

	require.NoError(t, cache.Delete(ctx, "a"))
	require.NoError(t, cache.Delete(ctx, "missing"))
	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, cache.Clear(ctx))
	_, ok = cache.Get(ctx, "b")
	assert.False(t, ok)
	assert.Equal(t, int64(0), cache.Stats().Size)
}

func TestMemoryCache_StatsDisabled(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(DefaultConfig().WithStats(false))

	require.NoError(t, cache.Put(ctx, "a", Verdict{Valid: true}))
	_, _ = cache.Get(ctx, "a")
	assert.Equal(t, Stats{}, cache.Stats())
}

func TestMemoryCache_Concurrency(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				_ = cache.Put(ctx, key, Verdict{Valid: j%2 == 0})
				_, _ = cache.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, cache.Stats().Entries)
	assert.Equal(t, uint64(1000), cache.Stats().Hits)
}

func TestDefaultCacheKeyGenerator(t *testing.T) {
	g := &DefaultCacheKeyGenerator{}
	assert.Equal(t, g.GenerateKey("mysql", "SELECT 1"), g.GenerateKey("mysql", "SELECT 1"))
	assert.NotEqual(t, g.GenerateKey("mysql", "SELECT 1"), g.GenerateKey("sqlite", "SELECT 1"))
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(16*1024*1024), cfg.MaxSize)
	assert.Equal(t, 10*time.Minute, cfg.TTL)
	assert.True(t, cfg.EnableStats)

	cfg = cfg.WithMaxSize(1024).WithTTL(time.Second).WithStats(false)
	assert.Equal(t, int64(1024), cfg.MaxSize)
	assert.Equal(t, time.Second, cfg.TTL)
	assert.False(t, cfg.EnableStats)
}

func TestStatsCollector(t *testing.T) {
	c := NewStatsCollector()
	assert.Equal(t, float64(0), c.HitRate())

	c.RecordHit()
	c.RecordHit()
	c.RecordHit()
	c.RecordMiss()
	c.RecordEviction()
	c.UpdateSize(42)

	stats := c.GetStats()
	assert.Equal(t, uint64(3), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, int64(42), stats.Size)
	assert.False(t, stats.LastUpdated.IsZero())
	assert.InDelta(t, 0.75, c.HitRate(), 1e-9)
}
