// Package notify carries user-facing outcome messages out of the coordinator and the job poller.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Outcome classifies an event for presentation.
type Outcome int

const (
	Success Outcome = iota + 1
	Failure
	Info
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "error"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Event is one user-visible notification.
type Event struct {
	Outcome       Outcome
	Message       string
	Source        string
	CorrelationID string
	Err           error
	At            time.Time
}

// Sink surfaces events to the user. Implementations are fire-and-forget:
// they must not block the caller.
type Sink interface {
	Notify(ctx context.Context, event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, event Event) {
	f(ctx, event)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// Send delivers event to sink, stamping its time. A panicking sink is recovered
// and logged so it never reaches the caller.
func Send(ctx context.Context, sink Sink, event Event) {
	if sink == nil || event.Message == "" {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notification sink panicked",
				"source", event.Source,
				"correlation_id", event.CorrelationID,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	sink.Notify(ctx, event)
}

// Multi fans events out to every sink in order. Each sink is guarded separately.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, event Event) {
		for _, s := range sinks {
			Send(ctx, s, event)
		}
	})
}

// SlogSink logs events, at error level for failures.
type SlogSink struct {
	Logger *slog.Logger
}

// NewSlogSink returns a sink writing to logger, or to slog.Default when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{Logger: logger}
}

// Notify implements Sink.
func (s *SlogSink) Notify(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if event.Outcome == Failure {
		level = slog.LevelError
	}
	attrs := []any{
		"outcome", event.Outcome.String(),
		"source", event.Source,
	}
	if event.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", event.CorrelationID)
	}
	if event.Err != nil {
		attrs = append(attrs, "error", event.Err)
	}
	s.Logger.Log(ctx, level, event.Message, attrs...)
}

// Recorder keeps the most recent events in memory so a UI can drain them.
type Recorder struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewRecorder returns a recorder keeping at most limit events. Zero keeps all.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Notify implements Sink.
func (r *Recorder) Notify(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append([]Event(nil), r.events[len(r.events)-r.limit:]...)
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Drain returns the recorded events and forgets them.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
