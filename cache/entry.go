package cache

import "time"

// Status describes the freshness of a cache entry.
type Status int

const (
	StatusAbsent Status = iota
	StatusLoading
	StatusFresh
	StatusStale
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	case StatusError:
		return "error"
	default:
		return "absent"
	}
}

// Entry is a read-only view of one cached key.
// Value is only meaningful when HasValue is true; a loading or errored entry
// keeps the last good value visible.
type Entry struct {
	Key        Key
	Value      any
	HasValue   bool
	Status     Status
	Err        error
	Generation uint64
	Fetching   bool
	UpdatedAt  time.Time
}

// Snapshot is the pre-mutation state of one key, kept for rollback.
type Snapshot struct {
	Key      Key
	Value    any
	HasValue bool
	Status   Status
}

// Absent reports whether the snapshotted key had no entry at all.
func (s Snapshot) Absent() bool {
	return s.Status == StatusAbsent && !s.HasValue
}

// ValueOf returns the entry value as T.
// It returns false when the entry has no value or the value has a different type.
func ValueOf[T any](e Entry) (T, bool) {
	var zero T
	if !e.HasValue || e.Value == nil {
		return zero, false
	}
	v, ok := e.Value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Absent reports whether the key has no entry and no value.
func (e Entry) Absent() bool {
	return e.Status == StatusAbsent && !e.HasValue
}
