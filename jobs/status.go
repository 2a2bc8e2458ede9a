package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-query-cache/cache"
)

// Status is the unified job status. It partitions into non-terminal
// {queued, deferred, scheduled, started} and terminal {finished, failed, canceled, stopped}.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusDeferred  Status = "deferred"
	StatusScheduled Status = "scheduled"
	StatusStarted   Status = "started"
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether no further transition can follow s.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCanceled, StatusStopped:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusDeferred, StatusScheduled, StatusStarted,
		StatusFinished, StatusFailed, StatusCanceled, StatusStopped:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// aliases covers the spellings used by the server's job, background job and crawler enums.
var aliases = map[string]Status{
	"waiting":     StatusQueued,
	"pending":     StatusQueued,
	"created":     StatusQueued,
	"running":     StatusStarted,
	"in_progress": StatusStarted,
	"processing":  StatusStarted,
	"completed":   StatusFinished,
	"done":        StatusFinished,
	"success":     StatusFinished,
	"errorneous":  StatusFailed,
	"erroneous":   StatusFailed,
	"error":       StatusFailed,
	"failure":     StatusFailed,
	"cancelled":   StatusCanceled,
	"aborted":     StatusCanceled,
	"killed":      StatusStopped,
}

// ParseStatus normalizes raw into a Status. Matching ignores case and surrounding space.
func ParseStatus(raw string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	if s := Status(norm); s.Valid() {
		return s, nil
	}
	if s, ok := aliases[norm]; ok {
		return s, nil
	}
	return "", fmt.Errorf("jobs: unknown status %q", raw)
}

// KeyCategory is the cache category job descriptors are stored under.
const KeyCategory = "job"

// Key returns the cache key of job id.
func Key(id string) cache.Key {
	return cache.NewKey(KeyCategory, id)
}

// Descriptor is the server's view of one background job.
type Descriptor struct {
	ID         string
	Category   string
	Status     Status
	CreatedAt  time.Time
	FinishedAt time.Time
	Result     map[string]any
	Params     map[string]any
}

// Key returns the cache key of the job.
func (d Descriptor) Key() cache.Key {
	return Key(d.ID)
}

// Param returns params[name] and whether it exists.
func (d Descriptor) Param(name string) (any, bool) {
	v, ok := d.Params[name]
	return v, ok
}

// IntParam returns params[name] as an int. JSON numbers decode as float64.
func (d Descriptor) IntParam(name string) (int, bool) {
	switch v := d.Params[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
