package cache

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-query-cache/internal/cacheinfra"
	"golang.org/x/sync/errgroup"
)

// Updater computes a new value from the current one. ok is false when the key
// holds no value. It runs under the store lock and must not call back into the store.
type Updater func(prev any, ok bool) any

// Listener is notified with the new entry state after every change to a key.
// Calls for one subscription never overlap and never go back in time; when
// changes outrun the listener only the latest state is delivered, possibly on
// the goroutine that is already delivering to it.
type Listener func(Entry)

// Store is the keyed cache store. It exclusively owns every entry; all writes
// go through its methods so snapshots and rollbacks stay exact.
//
// Every transition of an entry (value, status and generation together) happens
// inside one critical section. Fetches run on their own goroutines and apply
// their result only if the key's generation still matches the one they started with.
//
// Entries leave the store only through Remove, Clear, or the store's own idle
// expiry and capacity eviction. A key that has subscribers, a pending fetch or
// a Pin is never expired or evicted.
type Store struct {
	mu        sync.Mutex
	backend   *cacheinfra.Backend[*record]
	fetchers  map[string]Fetcher
	listeners map[string]map[uint64]*subscription
	pins      map[string]int
	nextID    uint64
	seq       uint64

	logger        *slog.Logger
	observer      Observer
	now           func() time.Time
	prefetchLimit int
	capacity      int
	evictCount    int
	ttl           time.Duration
	sweepInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

type record struct {
	key        Key
	value      any
	hasValue   bool
	status     Status
	err        error
	generation uint64
	updatedAt  time.Time
	fetch      *inflight
}

// inflight tracks one pending fetch. done is closed exactly once, either when the
// response is applied or discarded, or when the fetch is cancelled.
type inflight struct {
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
	finished   bool
}

func (f *inflight) finish(err error) {
	if f.finished {
		return
	}
	f.finished = true
	f.err = err
	close(f.done)
}

// subscription delivers entries to one Listener in sequence order. Whoever
// finds it idle drains it; concurrent and re-entrant deliveries only leave the
// newest entry behind for the running drain.
type subscription struct {
	fn Listener

	mu        sync.Mutex
	running   bool
	closed    bool
	pending   Entry
	queued    uint64
	delivered uint64
}

func (sub *subscription) deliver(seq uint64, entry Entry) {
	sub.mu.Lock()
	if sub.closed || seq <= sub.queued {
		sub.mu.Unlock()
		return
	}
	sub.pending = entry
	sub.queued = seq
	if sub.running {
		sub.mu.Unlock()
		return
	}
	sub.running = true
	for !sub.closed && sub.delivered < sub.queued {
		next := sub.pending
		sub.delivered = sub.queued
		sub.mu.Unlock()
		sub.fn(next)
		sub.mu.Lock()
	}
	sub.running = false
	sub.mu.Unlock()
}

func (sub *subscription) close() {
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()
}

// dispatch is one pending notification, built under the store lock and
// delivered after it is released.
type dispatch struct {
	subs  []*subscription
	seq   uint64
	entry Entry
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithLogger sets the structured logger used by the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver installs hooks called on fetch and invalidation events.
func WithObserver(observer Observer) StoreOption {
	return func(s *Store) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore constructs a Store backed by an in-memory sturdyc backend.
func NewStore(cfg Config, opts ...StoreOption) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The store bounds its own size. Held keys may take it past Capacity, so
	// the backend shards are never the limit.
	inner := cfg.toInternal()
	inner.Capacity = math.MaxInt32
	backend, err := cacheinfra.NewBackend[*record](inner)
	if err != nil {
		return nil, err
	}

	evictCount := cfg.Capacity * cfg.EvictionPercentage / 100
	if evictCount < 1 {
		evictCount = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		backend:       backend,
		fetchers:      make(map[string]Fetcher),
		listeners:     make(map[string]map[uint64]*subscription),
		pins:          make(map[string]int),
		logger:        slog.Default(),
		observer:      NopObserver{},
		now:           time.Now,
		prefetchLimit: cfg.PrefetchConcurrency,
		capacity:      cfg.Capacity,
		evictCount:    evictCount,
		ttl:           cfg.TTL,
		sweepInterval: cfg.EvictionInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	return s, nil
}

// Register binds the Remote Read collaborator for every key of category.
func (s *Store) Register(category string, fetcher Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers[category] = fetcher
}

// Known reports whether key's category has a registered fetcher.
func (s *Store) Known(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fetchers[key.Category]
	return ok
}

// Read returns the current entry of key. When the entry is absent, stale or
// errored and no fetch is pending, an asynchronous fetch is started.
func (s *Store) Read(key Key) Entry {
	s.mu.Lock()
	entry, started := s.readLocked(key)
	var d dispatch
	if started {
		d = s.dispatchLocked(entry)
	}
	s.mu.Unlock()

	s.emit(d)
	return entry
}

func (s *Store) readLocked(key Key) (Entry, bool) {
	rec := s.lookupLocked(key)
	if rec == nil {
		rec = &record{key: key, updatedAt: s.now()}
		s.saveLocked(rec)
	}
	started := s.maybeFetchLocked(rec)
	return rec.entry(), started
}

// Peek returns the current entry of key without triggering a fetch.
func (s *Store) Peek(key Key) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.lookupLocked(key)
	if rec == nil {
		return Entry{Key: key, Status: StatusAbsent}
	}
	return rec.entry()
}

// Await reads key and blocks until any fetch it started (or found pending) settles.
// The returned error is the fetch error, if the fetch failed.
func (s *Store) Await(ctx context.Context, key Key) (Entry, error) {
	s.Read(key)

	s.mu.Lock()
	rec := s.lookupLocked(key)
	var fetch *inflight
	if rec != nil {
		fetch = rec.fetch
	}
	s.mu.Unlock()

	if fetch == nil {
		entry := s.Peek(key)
		if entry.Status == StatusError {
			return entry, entry.Err
		}
		return entry, nil
	}

	select {
	case <-fetch.done:
	case <-ctx.Done():
		return s.Peek(key), ctx.Err()
	case <-s.ctx.Done():
		return s.Peek(key), ErrStoreClosed
	}

	s.mu.Lock()
	err := fetch.err
	s.mu.Unlock()
	return s.Peek(key), err
}

// Refresh marks key stale and waits for the refetch to settle.
func (s *Store) Refresh(ctx context.Context, key Key) (Entry, error) {
	s.Invalidate(key)
	return s.Await(ctx, key)
}

// RefreshIfPresent refetches key only when it is stored, and waits for the
// result. ok is false when the key is absent; nothing is fetched then, so a
// removed key is never brought back.
func (s *Store) RefreshIfPresent(ctx context.Context, key Key) (entry Entry, ok bool, err error) {
	s.mu.Lock()
	rec := s.lookupLocked(key)
	if rec == nil {
		s.mu.Unlock()
		return Entry{Key: key, Status: StatusAbsent}, false, nil
	}
	s.cancelLocked(rec)
	rec.status = StatusStale
	s.maybeFetchLocked(rec)
	fetch := rec.fetch
	entry = rec.entry()
	d := s.dispatchLocked(entry)
	s.mu.Unlock()

	s.emit(d)
	if fetch == nil {
		if entry.Status == StatusError {
			return entry, true, entry.Err
		}
		return entry, true, nil
	}

	select {
	case <-fetch.done:
	case <-ctx.Done():
		return s.Peek(key), true, ctx.Err()
	case <-s.ctx.Done():
		return s.Peek(key), true, ErrStoreClosed
	}

	s.mu.Lock()
	err = fetch.err
	s.mu.Unlock()
	entry = s.Peek(key)
	return entry, !entry.Absent(), err
}

// Write replaces the value of key and marks it fresh.
func (s *Store) Write(key Key, value any) Entry {
	return s.Update(key, func(any, bool) any { return value })
}

// Update replaces the value of key with fn applied to the current value and
// marks it fresh. fn sees the value as of this call, never a captured copy.
func (s *Store) Update(key Key, fn Updater) Entry {
	s.mu.Lock()
	rec := s.lookupLocked(key)
	if rec == nil {
		rec = &record{key: key}
	}
	rec.value = fn(rec.value, rec.hasValue)
	rec.hasValue = true
	rec.status = StatusFresh
	rec.err = nil
	rec.updatedAt = s.now()
	s.saveLocked(rec)
	entry := rec.entry()
	d := s.dispatchLocked(entry)
	s.mu.Unlock()

	s.emit(d)
	return entry
}

// Patch applies fn only when key already holds a value. It reports whether it did.
func (s *Store) Patch(key Key, fn Updater) bool {
	s.mu.Lock()
	rec := s.lookupLocked(key)
	if rec == nil || !rec.hasValue {
		s.mu.Unlock()
		return false
	}
	rec.value = fn(rec.value, true)
	rec.status = StatusFresh
	rec.err = nil
	rec.updatedAt = s.now()
	entry := rec.entry()
	d := s.dispatchLocked(entry)
	s.mu.Unlock()

	s.emit(d)
	return true
}

// Speculate abandons any pending fetch of key, captures its snapshot and applies
// fn when the key holds a value, all in one critical section, so no fetch can
// start between the snapshot and the speculative write. fn must return a new
// value rather than modify prev in place; the snapshot shares prev.
func (s *Store) Speculate(key Key, fn Updater) (Snapshot, bool) {
	s.mu.Lock()
	rec := s.lookupLocked(key)
	if rec == nil {
		s.mu.Unlock()
		return Snapshot{Key: key, Status: StatusAbsent}, false
	}
	s.cancelLocked(rec)
	snap := Snapshot{Key: key, Value: rec.value, HasValue: rec.hasValue, Status: rec.status}
	if !rec.hasValue {
		d := s.dispatchLocked(rec.entry())
		s.mu.Unlock()
		s.emit(d)
		return snap, false
	}
	rec.value = fn(rec.value, true)
	rec.status = StatusFresh
	rec.err = nil
	rec.updatedAt = s.now()
	d := s.dispatchLocked(rec.entry())
	s.mu.Unlock()

	s.emit(d)
	return snap, true
}

// Invalidate marks every key stale while keeping its value visible.
// Keys with active subscribers are refetched right away; others refetch on their next Read.
func (s *Store) Invalidate(keys ...Key) {
	var changes []dispatch

	s.mu.Lock()
	for _, key := range keys {
		rec := s.lookupLocked(key)
		if rec == nil {
			continue
		}
		s.cancelLocked(rec)
		rec.status = StatusStale
		s.observer.Invalidated(key)

		if s.subscribedLocked(key) {
			s.maybeFetchLocked(rec)
		}
		changes = append(changes, s.dispatchLocked(rec.entry()))
	}
	s.mu.Unlock()

	s.emit(changes...)
}

// Remove deletes every key outright, cancelling any pending fetch.
func (s *Store) Remove(keys ...Key) {
	var changes []dispatch

	s.mu.Lock()
	for _, key := range keys {
		rec := s.lookupLocked(key)
		if rec == nil {
			continue
		}
		s.cancelLocked(rec)
		s.backend.Delete(key.ID())
		s.observer.Removed(key)
		changes = append(changes, s.dispatchLocked(Entry{Key: key, Status: StatusAbsent}))
	}
	s.mu.Unlock()

	s.emit(changes...)
}

// CancelInFlight abandons the pending fetch of key, if any, so its response can
// never overwrite a write that follows. It reports whether a fetch was pending.
// The generation bump happens before it returns, so no acknowledgement wait is needed.
func (s *Store) CancelInFlight(key Key) bool {
	s.mu.Lock()
	rec := s.lookupLocked(key)
	if rec == nil || rec.fetch == nil {
		s.mu.Unlock()
		return false
	}
	s.cancelLocked(rec)
	d := s.dispatchLocked(rec.entry())
	s.mu.Unlock()

	s.emit(d)
	return true
}

// Snapshot captures the state of key for a later Restore.
func (s *Store) Snapshot(key Key) Snapshot {
	entry := s.Peek(key)
	return Snapshot{Key: key, Value: entry.Value, HasValue: entry.HasValue, Status: entry.Status}
}

// Restore puts key back to exactly the value it had when snapshot was taken.
// A key that was loading or stale comes back stale so it is fetched again; its
// pending fetch was cancelled before the snapshot. A key that was absent is
// removed, unless it has subscribers by now: then it is emptied and refetched,
// so a view that mounted meanwhile is not left without data.
func (s *Store) Restore(snapshot Snapshot) {
	key := snapshot.Key

	s.mu.Lock()
	subscribed := s.subscribedLocked(key)
	if snapshot.Absent() && !subscribed {
		s.mu.Unlock()
		s.Remove(key)
		return
	}

	rec := s.lookupLocked(key)
	if rec == nil {
		rec = &record{key: key}
	}
	s.cancelLocked(rec)
	rec.value = snapshot.Value
	rec.hasValue = snapshot.HasValue
	rec.err = nil
	rec.updatedAt = s.now()
	switch snapshot.Status {
	case StatusLoading, StatusStale:
		rec.status = StatusStale
	default:
		rec.status = snapshot.Status
	}
	s.saveLocked(rec)
	if subscribed {
		s.maybeFetchLocked(rec)
	}
	d := s.dispatchLocked(rec.entry())
	s.mu.Unlock()

	s.emit(d)
}

// Related enumerates the stored keys that have prefix as a component-wise prefix,
// including prefix itself when stored.
func (s *Store) Related(prefix Key) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Key
	for _, id := range s.backend.Keys() {
		rec := s.liveLocked(id)
		if rec == nil {
			continue
		}
		if rec.key.HasPrefix(prefix) {
			out = append(out, rec.key)
		}
	}
	return out
}

// Len returns the number of stored entries. Idle entries past their TTL count
// until they are next looked up or swept.
func (s *Store) Len() int {
	return s.backend.Len()
}

// Pin keeps keys from idle expiry and capacity eviction until the returned
// func is called. Pins nest. Remove and Clear still drop pinned keys.
func (s *Store) Pin(keys ...Key) func() {
	ids := make([]string, 0, len(keys))
	for _, key := range UniqueKeys(keys) {
		ids = append(ids, key.ID())
	}

	s.mu.Lock()
	for _, id := range ids {
		s.pins[id]++
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, id := range ids {
				if s.pins[id]--; s.pins[id] <= 0 {
					delete(s.pins, id)
				}
			}
		})
	}
}

// Subscribe registers fn for changes of key and reads it, the way a mounted
// view would. fn is called once with the current entry. The returned func unsubscribes.
func (s *Store) Subscribe(key Key, fn Listener) func() {
	id := key.ID()
	sub := &subscription{fn: fn}

	s.mu.Lock()
	s.nextID++
	listenerID := s.nextID
	if s.listeners[id] == nil {
		s.listeners[id] = make(map[uint64]*subscription)
	}
	s.listeners[id][listenerID] = sub
	entry, _ := s.readLocked(key)
	d := s.dispatchLocked(entry)
	s.mu.Unlock()

	s.emit(d)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners[id], listenerID)
			if len(s.listeners[id]) == 0 {
				delete(s.listeners, id)
			}
			s.mu.Unlock()
			sub.close()
		})
	}
}

// Prefetch fetches every key concurrently and waits for all of them.
// It returns the first fetch error.
func (s *Store) Prefetch(ctx context.Context, keys ...Key) error {
	g, gctx := errgroup.WithContext(ctx)
	if s.prefetchLimit > 0 {
		g.SetLimit(s.prefetchLimit)
	}
	for _, key := range UniqueKeys(keys) {
		g.Go(func() error {
			_, err := s.Await(gctx, key)
			return err
		})
	}
	return g.Wait()
}

// Clear drops every entry and cancels every pending fetch. Subscriptions survive.
// Used on logout so no state leaks into the next session.
func (s *Store) Clear() {
	s.mu.Lock()
	for _, id := range s.backend.Keys() {
		if rec, ok := s.backend.Load(id); ok {
			s.cancelLocked(rec)
		}
	}
	s.backend.Purge()
	s.mu.Unlock()

	s.logger.Debug("cache cleared")
}

// Close clears the store and waits for fetch goroutines to return.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Clear()
	s.cancel()
	s.wg.Wait()
}

func (s *Store) lookupLocked(key Key) *record {
	return s.liveLocked(key.ID())
}

// liveLocked loads the record stored under id, expiring it first when it has
// been idle past the TTL.
func (s *Store) liveLocked(id string) *record {
	rec, ok := s.backend.Load(id)
	if !ok {
		return nil
	}
	if s.expiredLocked(id, rec) {
		s.backend.Delete(id)
		s.logger.Debug("idle entry expired", "key", rec.key.String())
		return nil
	}
	return rec
}

func (s *Store) heldLocked(id string, rec *record) bool {
	return rec.fetch != nil || len(s.listeners[id]) > 0 || s.pins[id] > 0
}

func (s *Store) expiredLocked(id string, rec *record) bool {
	return s.ttl > 0 && !s.heldLocked(id, rec) && s.now().Sub(rec.updatedAt) > s.ttl
}

// saveLocked inserts rec when it is not stored yet, making room first when
// the store is at capacity.
func (s *Store) saveLocked(rec *record) {
	id := rec.key.ID()
	if cur, ok := s.backend.Load(id); ok && cur == rec {
		return
	}
	if s.backend.Len() >= s.capacity {
		s.evictLocked()
	}
	if err := s.backend.Save(id, rec); err != nil {
		s.logger.Error("entry not stored", "key", rec.key.String(), "error", err)
	}
}

// evictLocked drops the least recently written entries nothing holds.
// Held entries are kept even when that leaves the store over capacity.
func (s *Store) evictLocked() {
	type candidate struct {
		id        string
		updatedAt time.Time
	}
	var candidates []candidate
	for _, id := range s.backend.Keys() {
		rec, ok := s.backend.Load(id)
		if !ok || s.heldLocked(id, rec) {
			continue
		}
		candidates = append(candidates, candidate{id: id, updatedAt: rec.updatedAt})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].updatedAt.Before(candidates[j].updatedAt)
	})

	n := min(s.evictCount, len(candidates))
	for _, c := range candidates[:n] {
		s.backend.Delete(c.id)
	}
	if n == 0 {
		s.logger.Warn("store over capacity, every entry is held", "capacity", s.capacity, "entries", s.backend.Len())
		return
	}
	s.logger.Debug("evicted idle entries", "count", n)
}

// sweepLoop expires idle entries every sweepInterval until the store closes.
func (s *Store) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
		s.mu.Lock()
		for _, id := range s.backend.Keys() {
			s.liveLocked(id)
		}
		s.mu.Unlock()
	}
}

// maybeFetchLocked starts a fetch for rec when it needs one. It reports whether it did.
func (s *Store) maybeFetchLocked(rec *record) bool {
	if s.closed || rec.fetch != nil {
		return false
	}
	switch rec.status {
	case StatusAbsent, StatusStale, StatusError:
	default:
		return false
	}

	fetcher, ok := s.fetchers[rec.key.Category]
	if !ok {
		rec.status = StatusError
		rec.err = fmt.Errorf("%w: %s", ErrUnknownCategory, rec.key.Category)
		s.logger.Error("no fetcher registered", "key", rec.key.String(), "category", rec.key.Category)
		return false
	}

	rec.generation++
	ctx, cancel := context.WithCancel(s.ctx)
	fetch := &inflight{
		generation: rec.generation,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	rec.fetch = fetch
	rec.status = StatusLoading

	key := rec.key
	s.observer.FetchStarted(key)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		value, err := fetcher.Fetch(ctx, key)
		s.settle(key, fetch, value, err)
	}()
	return true
}

// settle applies a fetch result if fetch is still the current fetch of key.
func (s *Store) settle(key Key, fetch *inflight, value any, err error) {
	s.mu.Lock()
	rec := s.lookupLocked(key)
	if rec == nil || rec.fetch != fetch || rec.generation != fetch.generation {
		fetch.finish(ErrFetchCancelled)
		s.mu.Unlock()
		s.observer.FetchDiscarded(key)
		s.logger.Debug("discarding cancelled fetch", "key", key.String(), "generation", fetch.generation)
		return
	}

	rec.fetch = nil
	rec.updatedAt = s.now()
	if err != nil {
		rec.status = StatusError
		rec.err = err
	} else {
		rec.value = value
		rec.hasValue = true
		rec.status = StatusFresh
		rec.err = nil
	}
	fetch.finish(err)
	d := s.dispatchLocked(rec.entry())
	s.mu.Unlock()

	s.observer.FetchSettled(key, err)
	if err != nil {
		s.logger.Warn("fetch failed", "key", key.String(), "error", err)
	}
	s.emit(d)
}

// cancelLocked abandons rec's pending fetch and bumps its generation.
func (s *Store) cancelLocked(rec *record) {
	if rec.fetch == nil {
		return
	}
	rec.generation++
	rec.fetch.cancel()
	rec.fetch.finish(ErrFetchCancelled)
	rec.fetch = nil
	if rec.status == StatusLoading {
		if rec.hasValue {
			rec.status = StatusStale
		} else {
			rec.status = StatusAbsent
		}
	}
}

func (s *Store) subscribedLocked(key Key) bool {
	return len(s.listeners[key.ID()]) > 0
}

// dispatchLocked stamps entry with the next sequence number for the
// subscribers of its key. The order of sequence numbers is the order of
// transitions, whatever order the dispatches are emitted in.
func (s *Store) dispatchLocked(entry Entry) dispatch {
	set := s.listeners[entry.Key.ID()]
	if len(set) == 0 {
		return dispatch{}
	}
	s.seq++
	d := dispatch{subs: make([]*subscription, 0, len(set)), seq: s.seq, entry: entry}
	for _, sub := range set {
		d.subs = append(d.subs, sub)
	}
	return d
}

func (s *Store) emit(changes ...dispatch) {
	for _, d := range changes {
		for _, sub := range d.subs {
			sub.deliver(d.seq, d.entry)
		}
	}
}

func (r *record) entry() Entry {
	return Entry{
		Key:        r.key,
		Value:      r.value,
		HasValue:   r.hasValue,
		Status:     r.status,
		Err:        r.err,
		Generation: r.generation,
		Fetching:   r.fetch != nil,
		UpdatedAt:  r.updatedAt,
	}
}
