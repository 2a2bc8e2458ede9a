package keys

import (
	"github.com/goliatone/go-query-cache/cache"
)

// Shape is one key-shape under which entities of a category are cached.
type Shape[E any] struct {
	// Name identifies the shape in logs and tests, e.g. "by-sdoc-user".
	Name string

	// Ops restricts the operations that touch this shape. Empty means all.
	Ops []Operation

	// Key derives the key of e. It returns false when the shape does not
	// apply, for example a by-id key of an entity that has no server id yet.
	Key func(e E) (cache.Key, bool)

	// AfterResponse marks shapes only discoverable from the server result,
	// such as the by-id key of a created entity.
	AfterResponse bool

	// Invalidate marks denormalized views that are marked stale instead of patched.
	Invalidate bool
}

func (s Shape[E]) appliesTo(op Operation) bool {
	if len(s.Ops) == 0 {
		return true
	}
	for _, o := range s.Ops {
		if o == op {
			return true
		}
	}
	return false
}

// Group is the set of batch entities that share one cache key.
type Group[E any] struct {
	Key      cache.Key
	Entities []E
}

// Composer enumerates every key-shape of one entity category.
// It is pure: the same entity and operation always yield the same keys in the same order.
type Composer[E any] struct {
	category string
	shapes   []Shape[E]
}

// NewComposer builds a composer for category from its key shapes. An empty
// category is derived from the type name of E, e.g. SourceDocument becomes
// "source-document".
func NewComposer[E any](category string, shapes ...Shape[E]) *Composer[E] {
	if category == "" {
		category = cache.CategoryOf[E]()
	}
	return &Composer[E]{category: category, shapes: append([]Shape[E](nil), shapes...)}
}

// Category returns the entity category the composer describes.
func (c *Composer[E]) Category() string {
	return c.category
}

// Shapes returns the registered shapes.
func (c *Composer[E]) Shapes() []Shape[E] {
	return append([]Shape[E](nil), c.shapes...)
}

// AffectedKeys returns the keys known before the remote call that hold e and must be patched.
func (c *Composer[E]) AffectedKeys(e E, op Operation) []cache.Key {
	return c.collect(e, op, func(s Shape[E]) bool { return !s.AfterResponse && !s.Invalidate })
}

// PostResponseKeys returns the keys that can only be written once the server answered.
// e must be the authoritative entity.
func (c *Composer[E]) PostResponseKeys(e E, op Operation) []cache.Key {
	return c.collect(e, op, func(s Shape[E]) bool { return s.AfterResponse && !s.Invalidate })
}

// InvalidatedKeys returns the denormalized view keys to mark stale after the remote call.
func (c *Composer[E]) InvalidatedKeys(e E, op Operation) []cache.Key {
	return c.collect(e, op, func(s Shape[E]) bool { return s.Invalidate })
}

// AllKeys returns every key under which e is cached, whatever the treatment.
func (c *Composer[E]) AllKeys(e E, op Operation) []cache.Key {
	return c.collect(e, op, func(Shape[E]) bool { return true })
}

// Group groups a bulk result by every distinct key it touches among the patched
// shapes. Groups and the entities inside each group keep order of first appearance.
func (c *Composer[E]) Group(batch []E, op Operation) []Group[E] {
	index := make(map[string]int)
	var groups []Group[E]
	for _, e := range batch {
		keys := c.collect(e, op, func(s Shape[E]) bool { return !s.Invalidate })
		for _, key := range keys {
			id := key.ID()
			i, ok := index[id]
			if !ok {
				i = len(groups)
				index[id] = i
				groups = append(groups, Group[E]{Key: key})
			}
			groups[i].Entities = append(groups[i].Entities, e)
		}
	}
	return groups
}

// InvalidatedKeysOf returns the distinct invalidated keys of a whole batch.
func (c *Composer[E]) InvalidatedKeysOf(batch []E, op Operation) []cache.Key {
	var out []cache.Key
	for _, e := range batch {
		out = append(out, c.InvalidatedKeys(e, op)...)
	}
	return cache.UniqueKeys(out)
}

func (c *Composer[E]) collect(e E, op Operation, keep func(Shape[E]) bool) []cache.Key {
	var out []cache.Key
	for _, s := range c.shapes {
		if s.Key == nil || !keep(s) || !s.appliesTo(op) {
			continue
		}
		if key, ok := s.Key(e); ok {
			out = append(out, key)
		}
	}
	return cache.UniqueKeys(out)
}
