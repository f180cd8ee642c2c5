// Package cache holds syntax verdicts so repeated statements skip the engine.
package cache

import (
	"context"
	"sync"
	"time"
)

// entryOverhead approximates the bookkeeping cost of one entry in bytes.
const entryOverhead = 64

// Verdict is the outcome of a syntax check.
type Verdict struct {
	Valid      bool `json:"valid"`
	EngineCode int  `json:"engine_code,omitempty"`
}

// Cache defines the interface for caching syntax verdicts
type Cache interface {
	// Get retrieves a verdict from the cache
	Get(ctx context.Context, key string) (Verdict, bool)
	// Put stores a verdict in the cache
	Put(ctx context.Context, key string, v Verdict) error
	// Delete removes a verdict from the cache
	Delete(ctx context.Context, key string) error
	// Clear removes all entries from the cache
	Clear(ctx context.Context) error
	// Stats returns the cache statistics
	Stats() Stats
	// Close releases any resources held by the cache
	Close() error
}

// CacheEntry represents a single cache entry with metadata
type CacheEntry struct {
	Verdict   Verdict
	CreatedAt time.Time
	LastUsed  time.Time
	Size      int64
}

// MemoryCache implements Cache interface using in-memory storage. Entries
// are evicted least recently used first once MaxSize is exceeded, and expire
// after TTL.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]*CacheEntry
	maxSize  int64
	currSize int64
	ttl      time.Duration
	stats    *StatsCollector
	now      func() time.Time
}

// NewMemoryCache creates a new memory cache. A nil cfg means DefaultConfig.
func NewMemoryCache(cfg *Config) *MemoryCache {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &MemoryCache{
		entries: make(map[string]*CacheEntry),
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		now:     time.Now,
	}
	if cfg.EnableStats {
		c.stats = NewStatsCollector()
	}
	return c
}

// Get retrieves a verdict from the cache
func (c *MemoryCache) Get(ctx context.Context, key string) (Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && c.ttl > 0 && c.now().Sub(entry.CreatedAt) > c.ttl {
		c.removeLocked(key, entry)
		ok = false
	}
	if !ok {
		c.recordMiss()
		return Verdict{}, false
	}

	entry.LastUsed = c.now()
	c.recordHit()
	return entry.Verdict, true
}

// Put stores a verdict in the cache
func (c *MemoryCache) Put(ctx context.Context, key string, v Verdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(key)) + entryOverhead
	if size > c.maxSize {
		return nil
	}

	// Remove old entry if it exists
	if old, ok := c.entries[key]; ok {
		c.currSize -= old.Size
		delete(c.entries, key)
	}

	// Evict until the new entry fits
	for c.currSize+size > c.maxSize && len(c.entries) > 0 {
		c.evictOldest()
	}

	now := c.now()
	c.entries[key] = &CacheEntry{
		Verdict:   v,
		CreatedAt: now,
		LastUsed:  now,
		Size:      size,
	}
	c.currSize += size
	c.updateSize()
	return nil
}

// Delete removes a verdict from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		c.removeLocked(key, entry)
	}
	return nil
}

// Clear removes all entries from the cache
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CacheEntry)
	c.currSize = 0
	c.updateSize()
	return nil
}

// Stats returns the cache statistics. It is zero when stats are disabled.
func (c *MemoryCache) Stats() Stats {
	if c.stats == nil {
		return Stats{}
	}
	stats := c.stats.GetStats()

	c.mu.Lock()
	stats.Entries = len(c.entries)
	c.mu.Unlock()
	return stats
}

// Close releases any resources held by the cache
func (c *MemoryCache) Close() error {
	return c.Clear(context.Background())
}

func (c *MemoryCache) removeLocked(key string, entry *CacheEntry) {
	c.currSize -= entry.Size
	delete(c.entries, key)
	c.updateSize()
}

// evictOldest removes the least recently used entry from the cache
func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.LastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.LastUsed
		}
	}

	if oldestKey != "" {
		c.currSize -= c.entries[oldestKey].Size
		delete(c.entries, oldestKey)
		if c.stats != nil {
			c.stats.RecordEviction()
		}
	}
}

func (c *MemoryCache) recordHit() {
	if c.stats != nil {
		c.stats.RecordHit()
	}
}

func (c *MemoryCache) recordMiss() {
	if c.stats != nil {
		c.stats.RecordMiss()
	}
}

func (c *MemoryCache) updateSize() {
	if c.stats != nil {
		c.stats.UpdateSize(c.currSize)
	}
}

// CacheKeyGenerator defines the interface for generating cache keys
type CacheKeyGenerator interface {
	GenerateKey(dialect, query string) string
}

// DefaultCacheKeyGenerator implements CacheKeyGenerator
type DefaultCacheKeyGenerator struct{}

// GenerateKey scopes the query text to its dialect. The text is used as is;
// statements differing only in whitespace are cached separately.
func (g *DefaultCacheKeyGenerator) GenerateKey(dialect, query string) string {
	return dialect + "\x00" + query
}
