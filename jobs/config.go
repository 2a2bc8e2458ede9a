package jobs

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-query-cache/internal/cacheinfra"
)

// Config controls the polling cadence.
type Config struct {
	// Interval between two status reads of a non-terminal job.
	Interval time.Duration

	// TransientRetries is how many times a transient status read error is
	// retried before polling halts. Zero halts on the first error.
	TransientRetries uint64

	// RetryBackoff is the constant wait between retries.
	RetryBackoff time.Duration
}

// DefaultConfig polls once per second and halts on the first error.
func DefaultConfig() Config {
	return Config{
		Interval:     time.Second,
		RetryBackoff: 250 * time.Millisecond,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Interval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.TransientRetries, validation.Max(uint64(100))),
		validation.Field(&c.RetryBackoff, validation.When(c.TransientRetries > 0, validation.Required, validation.Min(time.Millisecond))),
	)
	return cacheinfra.FirstFieldError(err)
}
