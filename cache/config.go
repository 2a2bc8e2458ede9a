package cache

import (
	"time"

	"github.com/goliatone/go-query-cache/internal/cacheinfra"
)

// ConfigError reports the first invalid configuration field.
type ConfigError = cacheinfra.ConfigError

// Config exposes store configuration options for consumers of the cache package.
type Config struct {
	Capacity  int
	NumShards int

	// TTL is how long an entry stays after its last write while nothing holds
	// it. Subscribed, fetching and pinned keys never expire.
	TTL time.Duration

	// EvictionPercentage is the share of Capacity dropped, least recently
	// written first, when a new key arrives at a full store.
	EvictionPercentage int

	// EvictionInterval is how often idle entries are swept. Zero only expires
	// them lazily, on lookup.
	EvictionInterval time.Duration

	// PrefetchConcurrency bounds concurrent fetches started by Prefetch. Zero means unbounded.
	PrefetchConcurrency int
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.PrefetchConcurrency = 8
	return cfg
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if c.PrefetchConcurrency < 0 {
		return &ConfigError{Field: "PrefetchConcurrency", Message: "must be non-negative"}
	}
	return c.toInternal().Validate()
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
