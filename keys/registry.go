package keys

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-query-cache/cache"
)

var (
	// ErrUnknownCategory is returned for a category nobody registered a composer for.
	ErrUnknownCategory = errors.New("keys: unknown entity category")

	// ErrEntityType is returned when the entity does not match the composer's type.
	ErrEntityType = errors.New("keys: entity type does not match category")
)

type untypedComposer interface {
	Category() string
	keysOf(entity any, op Operation) ([]cache.Key, error)
}

func (c *Composer[E]) keysOf(entity any, op Operation) ([]cache.Key, error) {
	switch e := entity.(type) {
	case E:
		return c.AllKeys(e, op), nil
	case *E:
		if e != nil {
			return c.AllKeys(*e, op), nil
		}
	}
	return nil, fmt.Errorf("%w: %s got %T", ErrEntityType, c.category, entity)
}

// Registry is the central, untyped entry point over every category's composer,
// so affected keys can be asserted in one place instead of at each call site.
type Registry struct {
	mu        sync.RWMutex
	composers map[string]untypedComposer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{composers: make(map[string]untypedComposer)}
}

// Register adds c under its category and returns it for chaining.
// Registering a category twice replaces the earlier composer.
func Register[E any](r *Registry, c *Composer[E]) *Composer[E] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.composers[c.Category()] = c
	return c
}

// AffectedKeys returns every key under which entity of category is cached for op.
func (r *Registry) AffectedKeys(category string, entity any, op Operation) ([]cache.Key, error) {
	r.mu.RLock()
	c, ok := r.composers[category]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	return c.keysOf(entity, op)
}

// Categories lists the registered categories in sorted order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.composers))
	for category := range r.composers {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}
