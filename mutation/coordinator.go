package mutation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/notify"
	"github.com/google/uuid"
)

// State is the lifecycle position of one mutation invocation.
type State int

const (
	StateIdle State = iota
	StateApplying
	StateInFlight
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateApplying:
		return "applying"
	case StateInFlight:
		return "in-flight"
	case StateSettled:
		return "settled"
	default:
		return "idle"
	}
}

// Observer receives lifecycle events of every mutation run by a Coordinator.
type Observer interface {
	StateChanged(name string, state State)
	Settled(name string, err error, elapsed time.Duration)
	RolledBack(name string, keys int)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StateChanged(string, State)           {}
func (NopObserver) Settled(string, error, time.Duration) {}
func (NopObserver) RolledBack(string, int)               {}

// Coordinator runs mutations against one store. It holds no per-mutation state;
// every invocation gets its own Context.
type Coordinator struct {
	store    *cache.Store
	sink     notify.Sink
	logger   *slog.Logger
	observer Observer
	newID    func() string
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithSink sets where outcome messages go.
func WithSink(sink notify.Sink) Option {
	return func(c *Coordinator) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver installs lifecycle hooks.
func WithObserver(observer Observer) Option {
	return func(c *Coordinator) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithIDGenerator overrides how correlation ids are produced.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewCoordinator returns a coordinator writing through store.
func NewCoordinator(store *cache.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		sink:     notify.Discard,
		logger:   slog.Default(),
		observer: NopObserver{},
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the store the coordinator writes through.
func (c *Coordinator) Store() *cache.Store {
	return c.store
}

// Context is the per-invocation record: the affected keys and their
// pre-mutation snapshots. It is consumed exactly once, by rollback or by success.
type Context struct {
	ID        string
	Name      string
	State     State
	Keys      []cache.Key
	Snapshots []cache.Snapshot
	Started   time.Time

	consumed bool
}

type contextKey struct{}

// FromContext returns the mutation running in ctx, if any. Remote collaborators
// use it to pick up the correlation id.
func FromContext(ctx context.Context) (*Context, bool) {
	mc, ok := ctx.Value(contextKey{}).(*Context)
	return mc, ok
}

func (c *Coordinator) begin(name string) *Context {
	mc := &Context{ID: c.newID(), Name: name, Started: time.Now()}
	c.transition(mc, StateApplying)
	return mc
}

func (c *Coordinator) transition(mc *Context, state State) {
	mc.State = state
	c.observer.StateChanged(mc.Name, state)
}

// mustKnow panics when key's category has no fetcher: a composed key the store
// can never populate is a key composition defect.
func (c *Coordinator) mustKnow(name string, keys []cache.Key) {
	for _, key := range keys {
		if !c.store.Known(key) {
			panic(fmt.Sprintf("mutation %s: key %s has unregistered category %q", name, key, key.Category))
		}
	}
}

// rollback restores every snapshot verbatim.
func (c *Coordinator) rollback(mc *Context) {
	if mc.consumed {
		return
	}
	mc.consumed = true
	for _, snap := range mc.Snapshots {
		c.store.Restore(snap)
	}
	c.observer.RolledBack(mc.Name, len(mc.Snapshots))
	c.logger.Debug("mutation rolled back",
		"mutation", mc.Name,
		"correlation_id", mc.ID,
		"keys", len(mc.Snapshots),
	)
}

// commit discards the snapshots.
func (c *Coordinator) commit(mc *Context) {
	mc.consumed = true
	mc.Snapshots = nil
}

func (c *Coordinator) settle(ctx context.Context, mc *Context, message string, err error) {
	c.transition(mc, StateSettled)
	elapsed := time.Since(mc.Started)
	c.observer.Settled(mc.Name, err, elapsed)

	event := notify.Event{
		Outcome:       notify.Success,
		Message:       message,
		Source:        mc.Name,
		CorrelationID: mc.ID,
	}
	if err != nil {
		event.Outcome = notify.Failure
		event.Err = err
		c.logger.Warn("mutation failed",
			"mutation", mc.Name,
			"correlation_id", mc.ID,
			"status", cache.StatusCode(err),
			"error", err,
		)
	} else {
		c.logger.Debug("mutation settled",
			"mutation", mc.Name,
			"correlation_id", mc.ID,
			"elapsed", elapsed,
		)
	}
	notify.Send(ctx, c.sink, event)
}

// Callbacks are invoked by Mutate after the cache has settled.
type Callbacks[Out any] struct {
	onSuccess []func(Out, *Context)
	onError   []func(error, *Context)
	onSettled []func(Out, error, *Context)
}

// CallOption registers a per-call callback.
type CallOption[Out any] func(*Callbacks[Out])

// OnSuccess runs fn after a successful reconcile.
func OnSuccess[Out any](fn func(out Out, mc *Context)) CallOption[Out] {
	return func(cb *Callbacks[Out]) { cb.onSuccess = append(cb.onSuccess, fn) }
}

// OnError runs fn after a rollback. The type parameter cannot be inferred:
// write OnError[Annotation](fn).
func OnError[Out any](fn func(err error, mc *Context)) CallOption[Out] {
	return func(cb *Callbacks[Out]) { cb.onError = append(cb.onError, fn) }
}

// OnSettled runs fn whatever the outcome.
func OnSettled[Out any](fn func(out Out, err error, mc *Context)) CallOption[Out] {
	return func(cb *Callbacks[Out]) { cb.onSettled = append(cb.onSettled, fn) }
}

func (cb *Callbacks[Out]) run(out Out, err error, mc *Context) {
	if err != nil {
		for _, fn := range cb.onError {
			fn(err, mc)
		}
	} else {
		for _, fn := range cb.onSuccess {
			fn(out, mc)
		}
	}
	for _, fn := range cb.onSettled {
		fn(out, err, mc)
	}
}

func collectCallbacks[Out any](opts []CallOption[Out]) *Callbacks[Out] {
	cb := &Callbacks[Out]{}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}
