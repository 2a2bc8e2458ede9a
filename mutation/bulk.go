package mutation

import (
	"context"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/keys"
)

// BulkDescriptor declares a remote write over many entities at once. There is no
// speculative phase; on success the result is merged by id into every cached
// list or id map it touches, grouped by Composer.
type BulkDescriptor[In, E any, ID comparable] struct {
	Name     string
	Remote   func(ctx context.Context, in In) ([]E, error)
	Composer *keys.Composer[E]
	Op       keys.Operation
	ID       func(E) ID

	// Invalidate are extra keys marked stale after success, on top of the
	// composer's invalidated shapes.
	Invalidate func(in In, out []E) []cache.Key
	Message    func(in In, out []E, err error) string
}

// Bulk runs one BulkDescriptor. The batch succeeds or fails as a whole; a
// failure leaves the cache untouched.
type Bulk[In, E any, ID comparable] struct {
	c *Coordinator
	d BulkDescriptor[In, E, ID]
}

// NewBulk binds d to c.
func NewBulk[In, E any, ID comparable](c *Coordinator, d BulkDescriptor[In, E, ID]) *Bulk[In, E, ID] {
	if d.Remote == nil || d.Composer == nil || d.ID == nil {
		panic("mutation " + d.Name + ": Remote, Composer and ID are required")
	}
	if d.Op == 0 {
		d.Op = keys.OpUpdate
	}
	return &Bulk[In, E, ID]{c: c, d: d}
}

// Name returns the descriptor name.
func (b *Bulk[In, E, ID]) Name() string {
	return b.d.Name
}

// Mutate calls the server and merges the returned entities into the cache.
func (b *Bulk[In, E, ID]) Mutate(ctx context.Context, in In, opts ...CallOption[[]E]) ([]E, error) {
	c, d := b.c, b.d
	cb := collectCallbacks(opts)

	mc := c.begin(d.Name)
	c.transition(mc, StateInFlight)
	out, err := d.Remote(context.WithValue(ctx, contextKey{}, mc), in)
	if err != nil {
		c.commit(mc)
		c.settle(ctx, mc, b.message(in, out, err), err)
		cb.run(out, err, mc)
		return out, err
	}
	c.commit(mc)

	groups := d.Composer.Group(out, d.Op)
	for _, g := range groups {
		mc.Keys = append(mc.Keys, g.Key)
	}
	c.mustKnow(d.Name, mc.Keys)
	for _, g := range groups {
		b.apply(g)
	}

	stale := d.Composer.InvalidatedKeysOf(out, d.Op)
	if d.Invalidate != nil {
		stale = append(stale, d.Invalidate(in, out)...)
	}
	stale = append(stale, InvalidateFromContext(ctx)...)
	if len(stale) > 0 {
		stale = cache.UniqueKeys(stale)
		c.mustKnow(d.Name, stale)
		c.store.Invalidate(stale...)
	}

	c.settle(ctx, mc, b.message(in, out, nil), nil)
	cb.run(out, nil, mc)
	return out, nil
}

// apply merges one group into its key. Shapes it cannot merge are invalidated.
func (b *Bulk[In, E, ID]) apply(g keys.Group[E]) {
	store := b.c.store
	id := b.d.ID
	deleting := b.d.Op == keys.OpDelete

	ids := make([]ID, len(g.Entities))
	for i, e := range g.Entities {
		ids[i] = id(e)
	}

	store.CancelInFlight(g.Key)
	unmergeable := false
	store.Patch(g.Key, func(prev any, _ bool) any {
		switch current := prev.(type) {
		case []E:
			if deleting {
				out := current
				for _, target := range ids {
					out = RemoveByID(out, target, id)
				}
				return out
			}
			return MergeByID(current, g.Entities, id)
		case map[ID]E:
			if deleting {
				return DeleteFromMap(current, ids...)
			}
			return MergeMap(current, g.Entities, id)
		case E:
			if deleting {
				return current
			}
			latest := g.Entities[len(g.Entities)-1]
			if id(latest) == id(current) {
				return latest
			}
			return current
		default:
			unmergeable = true
			return prev
		}
	})

	switch {
	case unmergeable:
		b.c.logger.Warn("bulk result cannot be merged into cached value, invalidating",
			"mutation", b.d.Name,
			"key", g.Key.String(),
		)
		store.Invalidate(g.Key)
	case deleting && isSingle[E](store.Peek(g.Key)):
		store.Remove(g.Key)
	}
}

func isSingle[E any](entry cache.Entry) bool {
	_, ok := entry.Value.(E)
	return ok && entry.HasValue
}

func (b *Bulk[In, E, ID]) message(in In, out []E, err error) string {
	if b.d.Message == nil {
		return ""
	}
	return b.d.Message(in, out, err)
}
