package cache

import "context"

// Fetcher is the Remote Read collaborator: it produces the authoritative value of a key.
// It may fail with an error built by RemoteError to carry an HTTP-like status.
type Fetcher interface {
	Fetch(ctx context.Context, key Key) (any, error)
}

// FetchFunc adapts a plain function to Fetcher.
type FetchFunc func(ctx context.Context, key Key) (any, error)

// Fetch implements Fetcher.
func (f FetchFunc) Fetch(ctx context.Context, key Key) (any, error) {
	return f(ctx, key)
}

// TypedFetcher adapts a function returning T to Fetcher.
func TypedFetcher[T any](fn func(ctx context.Context, key Key) (T, error)) Fetcher {
	return FetchFunc(func(ctx context.Context, key Key) (any, error) {
		v, err := fn(ctx, key)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
}

// Observer receives store events. Calls happen while the store lock may be held,
// so implementations must be quick and must not call back into the store.
type Observer interface {
	FetchStarted(key Key)
	FetchSettled(key Key, err error)
	FetchDiscarded(key Key)
	Invalidated(key Key)
	Removed(key Key)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) FetchStarted(Key)        {}
func (NopObserver) FetchSettled(Key, error) {}
func (NopObserver) FetchDiscarded(Key)      {}
func (NopObserver) Invalidated(Key)         {}
func (NopObserver) Removed(Key)             {}

// Get is a type-safe wrapper around Store.Read.
// ok is false while the key has no value of type T.
func Get[T any](s *Store, key Key) (T, Entry, bool) {
	entry := s.Read(key)
	v, ok := ValueOf[T](entry)
	return v, entry, ok
}

// Fetch is a type-safe wrapper around Store.Await.
func Fetch[T any](ctx context.Context, s *Store, key Key) (T, error) {
	var zero T
	entry, err := s.Await(ctx, key)
	if err != nil {
		return zero, err
	}
	if !entry.HasValue {
		return zero, ErrFetchCancelled
	}
	// a nil value would make the assertion below fail for interface T
	if entry.Value == nil {
		return zero, nil
	}
	v, ok := entry.Value.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return v, nil
}

// UpdateValue is a type-safe wrapper around Store.Update. A current value of
// another type is passed to fn as the zero T with ok false.
func UpdateValue[T any](s *Store, key Key, fn func(prev T, ok bool) T) Entry {
	return s.Update(key, func(prev any, ok bool) any {
		typed, typeOK := prev.(T)
		return fn(typed, ok && typeOK)
	})
}
