// Package cache is a key→entry query cache with stale-while-revalidate reads,
// generation-guarded invalidation and coalescing change subscriptions.
//
// Every entry carries a generation counter. Invalidate and Remove bump it
// synchronously, and a fetch stores its result only if the generation it
// started under is still current. So once Invalidate returns, no read that
// starts afterwards can observe data fetched before the invalidation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by Fetch after Close.
var ErrClosed = errors.New("cache closed")

// Key identifies one cached query: ("markers") for the list, ("marker", id)
// for a single marker.
type Key struct {
	Kind string
	ID   string
}

func (k Key) String() string {
	if k.ID == "" {
		return k.Kind
	}
	return k.Kind + ":" + k.ID
}

// EventType says what happened to an entry. Higher values take priority when
// a subscriber has not yet consumed an earlier event.
type EventType int

const (
	Updated EventType = iota + 1
	Invalidated
	Removed
)

func (t EventType) String() string {
	switch t {
	case Updated:
		return "updated"
	case Invalidated:
		return "invalidated"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is delivered to subscribers of Key.
type Event struct {
	Key  Key
	Type EventType
}

// Fetcher loads the value for a key from the source of truth.
type Fetcher func(ctx context.Context) (any, error)

// Recorder receives cache statistics. *metrics.Metrics implements it.
type Recorder interface {
	CacheResult(kind, result string)
	CacheInvalidated(kind, op string)
}

type entry struct {
	data        any
	hasData     bool
	fetchedAt   time.Time
	invalidated bool
	gen         uint64
	refreshing  bool
	subs        map[*subscriber]struct{}
}

// Cache is safe for concurrent use. The zero value is not usable; call New.
type Cache struct {
	staleTime time.Duration
	now       func() time.Time
	log       *slog.Logger
	rec       Recorder

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[Key]*entry
	closed  bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithStaleTime sets how long a fetched value counts as fresh. Reads of an
// older value return it immediately and refetch in the background. The
// default, zero, makes every read of a cached value trigger a refetch.
func WithStaleTime(d time.Duration) Option { return func(c *Cache) { c.staleTime = d } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithLogger sets the logger for background refetch failures.
func WithLogger(log *slog.Logger) Option { return func(c *Cache) { c.log = log } }

// WithRecorder reports hits, misses and invalidations to rec.
func WithRecorder(rec Recorder) Option { return func(c *Cache) { c.rec = rec } }

// New returns an empty cache.
func New(opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		now:     time.Now,
		log:     slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[Key]*entry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// entryLocked returns the entry for key, creating it. Callers hold c.mu.
func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// Fetch returns the value for key.
//
// A fresh value is returned as is. A stale value is returned as is while one
// background refetch per key runs. An invalidated, removed or never-fetched
// key blocks on fetch; concurrent callers for the same key and generation
// share a single call. The shared call is detached from the caller's
// cancellation, so a caller that gives up gets ctx.Err() while the fetch
// still completes and fills the cache for others.
func (c *Cache) Fetch(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entryLocked(key)

	if e.hasData && !e.invalidated {
		data := e.data
		if c.now().Sub(e.fetchedAt) < c.staleTime {
			c.mu.Unlock()
			c.record(key, "hit")
			return data, nil
		}
		if !e.refreshing {
			e.refreshing = true
			c.wg.Add(1)
			go c.refresh(key, e.gen, fetch)
		}
		c.mu.Unlock()
		c.record(key, "stale")
		return data, nil
	}

	gen := e.gen
	c.mu.Unlock()
	c.record(key, "miss")
	return c.load(ctx, key, gen, fetch)
}

// load runs fetch for key under generation gen, deduplicated by singleflight.
func (c *Cache) load(ctx context.Context, key Key, gen uint64, fetch Fetcher) (any, error) {
	ch := c.group.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		// An earlier flight for this generation may have finished between the
		// caller's miss and this call.
		if v, ok := c.current(key, gen); ok {
			return v, nil
		}
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(c.ctx, cancel)
		defer stop()

		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		c.store(key, gen, v)
		return v, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// current returns the stored value for key if it is still at generation gen.
func (c *Cache) current(key Key, gen uint64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.gen != gen || !e.hasData || e.invalidated {
		return nil, false
	}
	return e.data, true
}

// refresh is the background half of stale-while-revalidate.
func (c *Cache) refresh(key Key, gen uint64, fetch Fetcher) {
	defer c.wg.Done()

	v, err := fetch(c.ctx)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.refreshing = false
	}
	c.mu.Unlock()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.log.Warn("cache: background refetch failed", "key", key.String(), "error", err)
		}
		return
	}
	c.store(key, gen, v)
}

// store saves v unless key has moved past generation gen.
func (c *Cache) store(key Key, gen uint64, v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	if e.gen != gen || c.closed {
		return false
	}
	e.data = v
	e.hasData = true
	e.fetchedAt = c.now()
	e.invalidated = false
	c.publishLocked(key, e, Updated)
	return true
}

// Invalidate marks key stale so the next read blocks on a refetch, and
// notifies subscribers. Fetches already in flight for key will not store
// their results.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.gen++
	e.invalidated = true
	c.publishLocked(key, e, Invalidated)
	c.mu.Unlock()

	if c.rec != nil {
		c.rec.CacheInvalidated(key.Kind, "invalidate")
	}
}

// Remove drops the value for key and tells subscribers it is gone.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.gen++
	e.data = nil
	e.hasData = false
	e.invalidated = false
	c.publishLocked(key, e, Removed)
	c.mu.Unlock()

	if c.rec != nil {
		c.rec.CacheInvalidated(key.Kind, "remove")
	}
}

// Peek returns the cached value for key without fetching. ok is false when
// nothing is cached or the value has been invalidated.
func (c *Cache) Peek(key Key) (v any, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || !e.hasData || e.invalidated {
		return nil, false
	}
	return e.data, true
}

// Subscribe returns a channel of events for key and a cancel func that closes
// it. The channel holds at most one pending event; a newer event replaces a
// pending one of lower priority (Removed > Invalidated > Updated), so a slow
// subscriber never blocks the cache and never misses a removal.
func (c *Cache) Subscribe(key Key) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, 1)}

	c.mu.Lock()
	e := c.entryLocked(key)
	if e.subs == nil {
		e.subs = make(map[*subscriber]struct{})
	}
	e.subs[s] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(e.subs, s)
			close(s.ch)
			c.mu.Unlock()
		})
	}
	return s.ch, cancel
}

// publishLocked notifies every subscriber of key. Callers hold c.mu.
func (c *Cache) publishLocked(key Key, e *entry, t EventType) {
	for s := range e.subs {
		s.push(Event{Key: key, Type: t})
	}
}

// Wait blocks until all background refetches started so far have finished.
func (c *Cache) Wait() { c.wg.Wait() }

// Close cancels background refetches, waits for them, and makes later Fetch
// calls fail with ErrClosed. Subscriptions stay open until cancelled.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Cache) record(key Key, result string) {
	if c.rec != nil {
		c.rec.CacheResult(key.Kind, result)
	}
}

type subscriber struct {
	ch chan Event
}

// push delivers ev without blocking, merging with any pending event.
// Only called with the cache mutex held, so pushes never race each other.
func (s *subscriber) push(ev Event) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case pending := <-s.ch:
			if pending.Type > ev.Type {
				ev = pending
			}
		default:
		}
	}
}

// Load is Fetch with a typed result.
func Load[V any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (V, error)) (V, error) {
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	typed, ok := v.(V)
	if !ok {
		var zero V
		return zero, fmt.Errorf("cache: entry %s holds %T, want %T", key, v, zero)
	}
	return typed, nil
}
