package di

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/jobs"
	"github.com/spf13/viper"
)

// Config aggregates the configuration of every component in a Container.
type Config struct {
	Cache cache.Config `mapstructure:"cache"`
	Jobs  jobs.Config  `mapstructure:"jobs"`

	// NotifyLimit caps how many notifications the recorder keeps. Zero keeps all.
	NotifyLimit int `mapstructure:"notify_limit"`
}

// DefaultConfig returns the defaults of each component and a recorder
// keeping the last 100 notifications.
func DefaultConfig() Config {
	return Config{
		Cache:       cache.DefaultConfig(),
		Jobs:        jobs.DefaultConfig(),
		NotifyLimit: 100,
	}
}

// Validate checks every component configuration.
func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Jobs.Validate(); err != nil {
		return err
	}
	if c.NotifyLimit < 0 {
		return &cache.ConfigError{Field: "NotifyLimit", Message: "must be non-negative"}
	}
	return nil
}

// envKeys maps config keys to environment variable suffixes.
var envKeys = map[string]string{
	"cache.capacity":            "CACHE_CAPACITY",
	"cache.numshards":           "CACHE_NUM_SHARDS",
	"cache.ttl":                 "CACHE_TTL",
	"cache.evictionpercentage":  "CACHE_EVICTION_PERCENTAGE",
	"cache.evictioninterval":    "CACHE_EVICTION_INTERVAL",
	"cache.prefetchconcurrency": "CACHE_PREFETCH_CONCURRENCY",
	"jobs.interval":             "JOBS_INTERVAL",
	"jobs.transientretries":     "JOBS_TRANSIENT_RETRIES",
	"jobs.retrybackoff":         "JOBS_RETRY_BACKOFF",
	"notify_limit":              "NOTIFY_LIMIT",
}

// ConfigFromEnv returns DefaultConfig overridden by environment variables
// such as PREFIX_CACHE_TTL=10m or PREFIX_JOBS_INTERVAL=500ms. Durations use
// time.ParseDuration syntax. The result is validated.
func ConfigFromEnv(prefix string) (Config, error) {
	v := viper.New()
	prefix = strings.ToUpper(strings.TrimSuffix(prefix, "_"))
	for key, suffix := range envKeys {
		name := suffix
		if prefix != "" {
			name = prefix + "_" + suffix
		}
		if err := v.BindEnv(key, name); err != nil {
			return Config{}, fmt.Errorf("di: bind %s: %w", name, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("di: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
