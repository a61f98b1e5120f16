// Copyright 2024 Firekit Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package collection provides the reactive collection handle: a live,
// cached, typed view of a backend query.
//
// A handle owns at most one live backend listener for its entire lifetime.
// Results are decoded into the record type T, which must carry an
// `json:"id"` field to receive the backend-assigned document identifier.
package collection

import (
	"context"
	"sync"
	"time"

	"github.com/code-gio/firekit-go/backend"
	"github.com/code-gio/firekit-go/cache"
	"github.com/code-gio/firekit-go/internal"
	"github.com/code-gio/firekit-go/query"
)

// subState tracks the subscription lifecycle of a handle.
type subState int

const (
	stateIdle subState = iota
	stateAttaching
	stateLive
	stateResolved
	stateDisposed
)

// sharedStore is the process-wide cache shared by all handles, keyed by
// path plus serialized constraints so concurrent handles over the same
// logical query share one entry.
var sharedStore = cache.NewStore[backend.Document](cache.DefaultTTL, cache.DefaultMaxSize)

// SharedCache exposes the process-wide store, mainly so callers can evict
// or clear it wholesale.
func SharedCache() *cache.Store[backend.Document] {
	return sharedStore
}

// Collection is a reactive handle over a backend query. All exported
// methods are safe for concurrent use. The zero value is not usable;
// construct with New.
type Collection[T any] struct {
	path        string
	constraints []query.Constraint
	be          backend.Backend
	opts        Options[T]
	key         string
	store       *cache.Store[backend.Document]
	ctx         context.Context

	mu          sync.Mutex
	st          subState
	realtime    bool
	gen         int
	stop        backend.StopFunc
	records     []record[T]
	changes     []Change[T]
	loading     bool
	initialized bool
	err         *internal.FirekitError
	lastUpdated time.Time
	stats       statsCounters
}

// New constructs a handle for the given path and constraint sequence and
// immediately begins resolving it. The call returns without waiting for
// the backend: the handle starts in the loading state, served from the
// shared cache when a fresh enough entry exists.
func New[T any](ctx context.Context, be backend.Backend, path string, opts *Options[T], constraints ...query.Constraint) (*Collection[T], error) {
	if be == nil || path == "" {
		return nil, internal.NewFirekitErrorWithCode(internal.CollectionUnavailable, path, "collection handle requires a backend and a non-empty path")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var o Options[T]
	if opts != nil {
		o = *opts
	}
	store := o.Cache
	if store == nil {
		store = sharedStore
	}

	c := &Collection[T]{
		path:        path,
		constraints: append([]query.Constraint(nil), constraints...),
		be:          be,
		opts:        o,
		store:       store,
		ctx:         ctx,
		st:          stateIdle,
		realtime:    !o.OneShot,
		loading:     true,
		stats:       newStatsCounters(),
	}
	c.key = o.keyFunc()(path, c.constraints)

	c.serveFromCache()

	c.mu.Lock()
	c.startLocked()
	c.mu.Unlock()
	return c, nil
}

// serveFromCache commits a cached result set, if one exists, before any
// backend round trip completes. A valid entry resolves the handle
// immediately; a stale entry populates data but leaves the handle loading
// until revalidation finishes.
func (c *Collection[T]) serveFromCache() {
	if c.opts.DisableCache {
		return
	}
	entry, ok := c.store.Get(c.key)
	valid := ok && c.store.IsValid(c.key, c.opts.ttl())

	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok {
		c.stats.cacheMisses++
		return
	}
	if valid {
		c.stats.cacheHits++
	} else {
		c.stats.cacheMisses++
	}

	recs, err := c.processDocs(entry.Data)
	if err != nil {
		// A cache entry the hooks cannot process is treated as a miss.
		return
	}
	c.records = recs
	c.lastUpdated = entry.Timestamp
	if valid {
		c.initialized = true
		c.loading = false
	}
}

// startLocked begins resolving the handle in its current mode.
func (c *Collection[T]) startLocked() {
	if c.st == stateDisposed {
		return
	}
	if c.realtime {
		c.attachLocked()
	} else {
		c.fetchOnceLocked()
	}
}

// attachLocked opens a live listener, detaching any previous one first.
// At most one listener handle exists per Collection at any time.
func (c *Collection[T]) attachLocked() {
	c.detachLocked()
	c.st = stateAttaching
	c.gen++
	gen := c.gen

	go func() {
		stop, err := c.be.Subscribe(c.ctx, c.path, c.constraints,
			func(docs []backend.Document) { c.onSnapshot(gen, docs) },
			func(err error) { c.onListenError(gen, err) },
		)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.st == stateDisposed || gen != c.gen {
			if stop != nil {
				stop()
			}
			return
		}
		if err != nil {
			c.err = internal.NewFirekitError(c.path, err)
			c.st = stateResolved
			c.loading = false
			c.initialized = true
			return
		}
		c.stop = stop
		c.st = stateLive
	}()
}

// fetchOnceLocked resolves the handle with a one-shot fetch.
func (c *Collection[T]) fetchOnceLocked() {
	c.detachLocked()
	c.st = stateAttaching
	c.gen++
	gen := c.gen

	go func() {
		start := time.Now()
		docs, err := c.be.Execute(c.ctx, c.path, c.constraints)
		latency := time.Since(start)

		var recs []record[T]
		var perr error
		if err == nil {
			recs, perr = c.processDocs(docs)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.st == stateDisposed || gen != c.gen {
			return
		}
		c.st = stateResolved
		if err != nil {
			c.err = internal.NewFirekitError(c.path, err)
			c.loading = false
			c.initialized = true
			return
		}
		if perr != nil {
			c.err = internal.NewFirekitErrorWithCode(internal.Internal, c.path, "snapshot processing failed: %v", perr)
			c.loading = false
			c.initialized = true
			return
		}
		c.commitLocked(recs)
		c.stats.recordQuery(latency)
		c.refreshCache(docs)
	}()
}

// onSnapshot handles one pushed result set from the live listener.
func (c *Collection[T]) onSnapshot(gen int, docs []backend.Document) {
	recs, perr := c.processDocs(docs)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == stateDisposed || gen != c.gen {
		return
	}
	if perr != nil {
		c.err = internal.NewFirekitErrorWithCode(internal.Internal, c.path, "snapshot processing failed: %v", perr)
		c.loading = false
		c.initialized = true
		return
	}
	c.commitLocked(recs)
	c.stats.recordPush()
	c.refreshCache(docs)
}

// onListenError handles a transport failure reported by the live listener.
// The listener stays attached: the backend SDK may self-heal and deliver a
// later successful snapshot without caller action.
func (c *Collection[T]) onListenError(gen int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == stateDisposed || gen != c.gen {
		return
	}
	c.err = internal.NewFirekitError(c.path, err)
	c.loading = false
	c.initialized = true
}

// commitLocked is the single point where the committed result set changes.
func (c *Collection[T]) commitLocked(recs []record[T]) {
	c.changes = diffRecords(c.records, recs)
	c.records = recs
	c.lastUpdated = time.Now()
	c.initialized = true
	c.loading = false
	c.err = nil
}

func (c *Collection[T]) refreshCache(docs []backend.Document) {
	if !c.opts.DisableCache {
		c.store.Set(c.key, docs)
	}
}

func (c *Collection[T]) detachLocked() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	// Invalidate callbacks already queued for the detached listener.
	c.gen++
}

// Refresh forces a fresh one-shot fetch regardless of the current mode,
// bypassing the cache. It toggles the loading state for the duration of
// the operation and leaves the live-subscription state untouched: a Live
// handle remains Live. A failure both populates Err and is returned.
func (c *Collection[T]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.st == stateDisposed {
		c.mu.Unlock()
		return internal.NewFirekitErrorWithCode(internal.FailedPrecondition, c.path, "handle is disposed")
	}
	c.loading = true
	c.mu.Unlock()

	start := time.Now()
	docs, err := c.be.Execute(ctx, c.path, c.constraints)
	latency := time.Since(start)

	var recs []record[T]
	var perr error
	if err == nil {
		recs, perr = c.processDocs(docs)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == stateDisposed {
		// Disposed mid-flight; the result is discarded.
		return nil
	}
	if err != nil {
		fe := internal.NewFirekitError(c.path, err)
		c.err = fe
		c.loading = false
		c.initialized = true
		return fe
	}
	if perr != nil {
		fe := internal.NewFirekitErrorWithCode(internal.Internal, c.path, "snapshot processing failed: %v", perr)
		c.err = fe
		c.loading = false
		c.initialized = true
		return fe
	}
	c.commitLocked(recs)
	c.stats.recordQuery(latency)
	c.refreshCache(docs)
	return nil
}

// GetFromServer fetches the query directly from the backend, commits the
// result, and returns it. It is Refresh with the resulting records handed
// back to the caller.
func (c *Collection[T]) GetFromServer(ctx context.Context) ([]T, error) {
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c.Data(), nil
}

// SetRealtimeMode switches the handle between live and one-shot modes.
// Enabling realtime on an already-live handle is a no-op. Disabling
// detaches the listener and keeps the last-known data.
func (c *Collection[T]) SetRealtimeMode(enable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == stateDisposed {
		return
	}
	if enable {
		if c.realtime && (c.st == stateLive || c.st == stateAttaching) {
			return
		}
		c.realtime = true
		c.attachLocked()
		return
	}
	c.realtime = false
	c.detachLocked()
	c.st = stateResolved
}

// Dispose detaches the listener and permanently retires the handle. The
// committed data remains readable; the shared cache is untouched. Backend
// results still in flight at dispose time are discarded.
func (c *Collection[T]) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st == stateDisposed {
		return
	}
	c.detachLocked()
	c.st = stateDisposed
}

// ClearCache drops this handle's entry from the shared cache.
func (c *Collection[T]) ClearCache() {
	c.store.Clear(c.key)
}

// Data returns a copy of the committed result set.
func (c *Collection[T]) Data() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.records))
	for i, r := range c.records {
		out[i] = r.val
	}
	return out
}

// Changes returns the change records computed by the most recent commit.
func (c *Collection[T]) Changes() []Change[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Change[T](nil), c.changes...)
}

// Loading reports whether the handle is waiting on its first resolution or
// an explicit Refresh.
func (c *Collection[T]) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Initialized reports whether the handle has resolved at least once,
// successfully or not. It flips to true exactly once and never reverts.
func (c *Collection[T]) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Err returns the classified error from the most recent failed operation,
// or nil. Stale data and a fresh error can coexist: a failed revalidation
// does not clear previously committed data.
func (c *Collection[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return nil
	}
	return c.err
}

// Empty reports whether the committed result set has no records.
func (c *Collection[T]) Empty() bool {
	return c.Size() == 0
}

// Size returns the number of committed records.
func (c *Collection[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// LastUpdated returns the time of the most recent commit, or the zero time
// before the first one.
func (c *Collection[T]) LastUpdated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdated
}

// Stats returns a snapshot of the handle's diagnostic counters.
func (c *Collection[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.snapshot()
}

// Path returns the collection path the handle was constructed with.
func (c *Collection[T]) Path() string {
	return c.path
}

// Key returns the cache key derived for this handle's query.
func (c *Collection[T]) Key() string {
	return c.key
}

// Constraints returns a copy of the handle's constraint sequence.
func (c *Collection[T]) Constraints() []query.Constraint {
	return append([]query.Constraint(nil), c.constraints...)
}
