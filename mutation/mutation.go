package mutation

import (
	"context"

	"github.com/goliatone/go-query-cache/cache"
)

// Descriptor declares one optimistic remote write. Only Name and Remote are
// required; every other field is optional and nil means "nothing to do".
//
// The functions that compute values receive the current cached value of the
// key and must return a new value without modifying it.
type Descriptor[In, Out any] struct {
	Name string

	// Remote performs the write on the server.
	Remote func(ctx context.Context, in In) (Out, error)

	// Keys are the affected keys discoverable before the remote call.
	Keys func(in In) []cache.Key

	// Optimistic computes the speculative value of a key holding a value.
	Optimistic func(key cache.Key, in In, prev any) any

	// Reconcile replaces speculative data with the authoritative result. It is
	// applied to Keys that hold a value and to every Confirmed key.
	Reconcile func(key cache.Key, in In, out Out, prev any, ok bool) any

	// Confirmed are keys only known from the server result, such as the
	// by-id key of a created entity. They are written even when absent.
	Confirmed func(in In, out Out) []cache.Key

	// Remove are keys deleted outright after success.
	Remove func(in In, out Out) []cache.Key

	// Invalidate are denormalized views marked stale after success.
	Invalidate func(in In, out Out) []cache.Key

	// Message produces the notification text. err is nil on success.
	// An empty string suppresses the notification.
	Message func(in In, out Out, err error) string
}

// Mutation runs one Descriptor. It is safe for concurrent use; each call to
// Mutate owns a private Context.
type Mutation[In, Out any] struct {
	c *Coordinator
	d Descriptor[In, Out]
}

// New binds d to c.
func New[In, Out any](c *Coordinator, d Descriptor[In, Out]) *Mutation[In, Out] {
	if d.Remote == nil {
		panic("mutation " + d.Name + ": Remote is required")
	}
	return &Mutation[In, Out]{c: c, d: d}
}

// Name returns the descriptor name.
func (m *Mutation[In, Out]) Name() string {
	return m.d.Name
}

// Mutate applies the speculative write, calls the server and then reconciles
// or rolls back. Exactly one notification is sent per call. The remote error,
// if any, is returned after the cache has been rolled back.
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In, opts ...CallOption[Out]) (Out, error) {
	c, d := m.c, m.d
	cb := collectCallbacks(opts)
	store := c.store

	mc := c.begin(d.Name)
	if d.Keys != nil {
		mc.Keys = cache.UniqueKeys(d.Keys(in))
	}
	c.mustKnow(d.Name, mc.Keys)
	unpin := store.Pin(mc.Keys...)
	defer unpin()

	// Cancel, snapshot and speculative write happen for every key before the
	// remote call is issued.
	for _, key := range mc.Keys {
		if d.Optimistic == nil {
			store.CancelInFlight(key)
			mc.Snapshots = append(mc.Snapshots, store.Snapshot(key))
			continue
		}
		snap, _ := store.Speculate(key, func(prev any, _ bool) any {
			return d.Optimistic(key, in, prev)
		})
		mc.Snapshots = append(mc.Snapshots, snap)
	}

	c.transition(mc, StateInFlight)
	out, err := d.Remote(context.WithValue(ctx, contextKey{}, mc), in)

	if err != nil {
		c.rollback(mc)
		c.settle(ctx, mc, m.message(in, out, err), err)
		cb.run(out, err, mc)
		return out, err
	}

	c.commit(mc)
	if d.Reconcile != nil {
		for _, key := range mc.Keys {
			store.Patch(key, func(prev any, ok bool) any {
				return d.Reconcile(key, in, out, prev, ok)
			})
		}
	}
	if d.Confirmed != nil {
		confirmed := cache.UniqueKeys(d.Confirmed(in, out))
		c.mustKnow(d.Name, confirmed)
		for _, key := range confirmed {
			store.CancelInFlight(key)
			store.Update(key, func(prev any, ok bool) any {
				if d.Reconcile == nil {
					return out
				}
				return d.Reconcile(key, in, out, prev, ok)
			})
		}
	}
	if d.Remove != nil {
		store.Remove(d.Remove(in, out)...)
	}

	var stale []cache.Key
	if d.Invalidate != nil {
		stale = append(stale, d.Invalidate(in, out)...)
	}
	stale = append(stale, InvalidateFromContext(ctx)...)
	if len(stale) > 0 {
		stale = cache.UniqueKeys(stale)
		c.mustKnow(d.Name, stale)
		store.Invalidate(stale...)
	}

	c.settle(ctx, mc, m.message(in, out, nil), nil)
	cb.run(out, nil, mc)
	return out, nil
}

func (m *Mutation[In, Out]) message(in In, out Out, err error) string {
	if m.d.Message == nil {
		return ""
	}
	return m.d.Message(in, out, err)
}
