package cache

import (
	"time"
)

// Config holds the configuration for the cache
type Config struct {
	// MaxSize is the maximum size of the cache in bytes
	MaxSize int64
	// TTL is the time-to-live for cache entries. Zero disables expiry.
	TTL time.Duration
	// EnableStats enables cache statistics collection
	EnableStats bool
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() *Config {
	return &Config{
		MaxSize:     16 * 1024 * 1024, // 16MB
		TTL:         10 * time.Minute,
		EnableStats: true,
	}
}

// WithMaxSize sets the maximum size of the cache
func (c *Config) WithMaxSize(size int64) *Config {
	c.MaxSize = size
	return c
}

// WithTTL sets the time-to-live for cache entries
func (c *Config) WithTTL(ttl time.Duration) *Config {
	c.TTL = ttl
	return c
}

// WithStats enables or disables cache statistics
func (c *Config) WithStats(enable bool) *Config {
	c.EnableStats = enable
	return c
}
