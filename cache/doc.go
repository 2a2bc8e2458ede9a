// Package cache provides the keyed cache store that backs the workbench UI.
//
// # Overview
//
// The store maps a Key (an entity category plus ordered scalar discriminators)
// to an Entry: a value and its freshness status. It is the only shared mutable
// resource of the consistency layer; mutations and job pollers write through it.
//
//   - Read returns the current entry and starts a fetch when it is absent, stale or errored
//   - Write and Update replace the value and mark it fresh
//   - Invalidate marks entries stale, keeping the old value visible until the refetch lands
//   - Remove deletes entries outright
//   - CancelInFlight abandons a pending fetch before a speculative write
//
// # Basic Usage
//
//	store, err := cache.NewStore(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	store.Register("sdoc-annotations", cache.FetchFunc(func(ctx context.Context, key cache.Key) (any, error) {
//		return api.ListAnnotations(ctx, key.Part(0).(int), key.Part(1).(int))
//	}))
//
//	key := cache.NewKey("sdoc-annotations", 5, 9)
//	unsubscribe := store.Subscribe(key, func(e cache.Entry) {
//		render(e)
//	})
//	defer unsubscribe()
//
// # Keys
//
// Keys are compared structurally through their serialized form, built by the
// default KeySerializer and joined with KeySeparator:
//
//	cache.NewKey("sdoc-annotations", 5, 9).String() // "sdoc-annotations::5::9"
//
// Two keys sharing a prefix are related but not equal. Invalidating one never
// touches the other; Related enumerates the stored keys under a prefix so the
// caller can name them explicitly.
//
// # Generations
//
// Every fetch is stamped with the key's generation. CancelInFlight, Invalidate
// and Remove bump the generation, so a response that arrives after the key moved
// on is discarded instead of clobbering a newer write. Cancellation of the fetch
// context is best effort; the generation check is what guarantees safety.
//
// # Errors
//
// A failed fetch leaves the last good value in place and flags the entry with
// StatusError. Remote collaborators report server answers with RemoteError so
// StatusCode, IsTransient and IsRejection can classify them. Errors are never
// raised into render paths; they live in Entry.Err.
//
// # Backend
//
// Entries are held in a sharded sturdyc client that never drops them on its
// own. The Store applies Config's TTL and Capacity itself, skipping keys that
// are subscribed, fetching or pinned. An entry that expires or is evicted reads
// as absent and is fetched again.
package cache
