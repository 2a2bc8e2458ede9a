package cacheinfra

import (
	"errors"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc entry backend.
type Config struct {
	// Capacity defines the maximum number of entries the backend can hold.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of shards used for concurrent access.
	// Must be greater than 0. Default: 64
	NumShards int

	// TTL is how long an entry nothing holds survives without being written
	// again. The owner enforces it; the backend itself never expires entries.
	// Must be at least one millisecond.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of Capacity the owner
	// evicts when it is full. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often the owner sweeps idle entries.
	// Zero disables the sweep; idle entries then expire when looked up.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config sized for a single interactive session.
func DefaultConfig() Config {
	return Config{
		Capacity:           20000,
		NumShards:          64,
		TTL:                30 * time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   0,
	}
}

// noExpiry is the sturdyc TTL of every entry. Expiry and eviction are decided
// by the owner of the backend, which knows which entries are still in use.
const noExpiry = 100 * 365 * 24 * time.Hour

// ErrFull is returned by Save when the shard of a key cannot take another entry.
var ErrFull = errors.New("cacheinfra: backend shard is full")

// ToSturdycOptions returns the sturdyc options of a backend that never drops
// entries on its own: no expiry sweep and no forced eviction.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	return []sturdyc.Option{sturdyc.WithNoContinuousEvictions()}
}

// Validate checks if the configuration values are valid.
// The first failing field (in alphabetical order) is reported as a *ConfigError.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
	return FirstFieldError(err)
}

// FirstFieldError converts an ozzo-validation result into a *ConfigError for
// the alphabetically first failing field. nil stays nil.
func FirstFieldError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fields := make([]string, 0, len(fieldErrs))
	for field := range fieldErrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	first := fields[0]
	return &ConfigError{Field: first, Message: fieldErrs[first].Error()}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Backend stores values of type V in a sharded sturdyc client. Entries stay
// until they are deleted; callers own expiry, eviction, status and generations.
//
// Every shard may hold Capacity entries, so a caller that keeps the total at
// Capacity never fills a shard however keys hash.
type Backend[V any] struct {
	client *sturdyc.Client[V]
}

// NewBackend validates cfg and creates a sturdyc client for it.
func NewBackend[V any](cfg Config) (*Backend[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[V](
		cfg.Capacity*cfg.NumShards,
		cfg.NumShards,
		noExpiry,
		0,
		cfg.ToSturdycOptions()...,
	)

	return &Backend[V]{client: client}, nil
}

// Load returns the value stored under key.
func (b *Backend[V]) Load(key string) (V, bool) {
	return b.client.Get(key)
}

// Save stores value under key. A full shard refuses new keys rather than
// evicting others; Save reports that as ErrFull.
func (b *Backend[V]) Save(key string, value V) error {
	if _, ok := b.client.Get(key); ok {
		b.client.Delete(key)
	}
	b.client.Set(key, value)
	if _, ok := b.client.Get(key); !ok {
		return ErrFull
	}
	return nil
}

// Delete removes key from the backend.
func (b *Backend[V]) Delete(key string) {
	b.client.Delete(key)
}

// Keys returns every key currently held, sorted for deterministic iteration.
func (b *Backend[V]) Keys() []string {
	keys := b.client.ScanKeys()
	sort.Strings(keys)
	return keys
}

// Len returns the number of held entries.
func (b *Backend[V]) Len() int {
	return b.client.Size()
}

// Purge deletes every key.
func (b *Backend[V]) Purge() {
	for _, key := range b.client.ScanKeys() {
		b.client.Delete(key)
	}
}
