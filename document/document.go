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

// Package document provides the reactive single-document handle, the
// scalar counterpart of the collection handle. A missing document is a
// normal resolution with Exists() == false, not an error.
package document

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/code-gio/firekit-go/backend"
	"github.com/code-gio/firekit-go/internal"
)

type subState int

const (
	stateIdle subState = iota
	stateAttaching
	stateLive
	stateResolved
	stateDisposed
)

// Options configures a Document handle. The zero value selects realtime
// mode.
type Options[T any] struct {
	// OneShot disables the live listener; the handle resolves once per
	// construction or Refresh.
	OneShot bool

	// Transform is applied to the decoded record. An error aborts the
	// update and leaves the previous value committed.
	Transform func(T) (T, error)
}

// Document is a reactive handle over a single backend document. All
// exported methods are safe for concurrent use.
type Document[T any] struct {
	path string
	id   string
	be   backend.Backend
	opts Options[T]
	ctx  context.Context

	mu          sync.Mutex
	st          subState
	realtime    bool
	gen         int
	stop        backend.StopFunc
	val         T
	exists      bool
	loading     bool
	initialized bool
	err         *internal.FirekitError
	lastUpdated time.Time
}

// New constructs a handle for the document at path/id and immediately
// begins resolving it. The call returns without waiting for the backend.
func New[T any](ctx context.Context, be backend.Backend, path, id string, opts *Options[T]) (*Document[T], error) {
	if be == nil || path == "" || id == "" {
		return nil, internal.NewFirekitErrorWithCode(internal.ReferenceUnavailable, path, "document reference requires a backend, path and id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var o Options[T]
	if opts != nil {
		o = *opts
	}
	d := &Document[T]{
		path:     path,
		id:       id,
		be:       be,
		opts:     o,
		ctx:      ctx,
		st:       stateIdle,
		realtime: !o.OneShot,
		loading:  true,
	}
	d.mu.Lock()
	d.startLocked()
	d.mu.Unlock()
	return d, nil
}

func (d *Document[T]) startLocked() {
	if d.st == stateDisposed {
		return
	}
	if d.realtime {
		d.attachLocked()
	} else {
		d.fetchOnceLocked()
	}
}

func (d *Document[T]) attachLocked() {
	d.detachLocked()
	d.st = stateAttaching
	d.gen++
	gen := d.gen

	go func() {
		stop, err := d.be.SubscribeDoc(d.ctx, d.path, d.id,
			func(doc backend.Document, exists bool) { d.onSnapshot(gen, doc, exists) },
			func(err error) { d.onListenError(gen, err) },
		)

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.st == stateDisposed || gen != d.gen {
			if stop != nil {
				stop()
			}
			return
		}
		if err != nil {
			d.err = internal.NewFirekitError(d.path+"/"+d.id, err)
			d.st = stateResolved
			d.loading = false
			d.initialized = true
			return
		}
		d.stop = stop
		d.st = stateLive
	}()
}

func (d *Document[T]) fetchOnceLocked() {
	d.detachLocked()
	d.st = stateAttaching
	d.gen++
	gen := d.gen

	go func() {
		doc, exists, err := d.be.GetDoc(d.ctx, d.path, d.id)

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.st == stateDisposed || gen != d.gen {
			return
		}
		d.st = stateResolved
		d.resolveLocked(doc, exists, err)
	}()
}

func (d *Document[T]) onSnapshot(gen int, doc backend.Document, exists bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.st == stateDisposed || gen != d.gen {
		return
	}
	d.resolveLocked(doc, exists, nil)
}

func (d *Document[T]) onListenError(gen int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.st == stateDisposed || gen != d.gen {
		return
	}
	d.err = internal.NewFirekitError(d.path+"/"+d.id, err)
	d.loading = false
	d.initialized = true
}

// resolveLocked commits one resolution: a fetched or pushed document, a
// missing document, or a failure. It returns the classified error on
// failure.
func (d *Document[T]) resolveLocked(doc backend.Document, exists bool, err error) *internal.FirekitError {
	if err != nil {
		d.err = internal.NewFirekitError(d.path+"/"+d.id, err)
		d.loading = false
		d.initialized = true
		return d.err
	}
	if !exists {
		var zero T
		d.val = zero
		d.exists = false
		d.lastUpdated = time.Now()
		d.initialized = true
		d.loading = false
		d.err = nil
		return nil
	}
	v, derr := decodeDocument[T](doc)
	if derr == nil && d.opts.Transform != nil {
		v, derr = d.opts.Transform(v)
	}
	if derr != nil {
		d.err = internal.NewFirekitErrorWithCode(internal.Internal, d.path+"/"+d.id, "snapshot processing failed: %v", derr)
		d.loading = false
		d.initialized = true
		return d.err
	}
	d.val = v
	d.exists = true
	d.lastUpdated = time.Now()
	d.initialized = true
	d.loading = false
	d.err = nil
	return nil
}

func decodeDocument[T any](doc backend.Document) (T, error) {
	var v T
	merged := make(map[string]interface{}, len(doc.Data)+1)
	for k, val := range doc.Data {
		merged[k] = val
	}
	merged["id"] = doc.ID
	b, err := json.Marshal(merged)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Refresh forces a fresh fetch regardless of the current mode. The live
// listener, if any, stays attached. A failure both populates Err and is
// returned.
func (d *Document[T]) Refresh(ctx context.Context) error {
	d.mu.Lock()
	if d.st == stateDisposed {
		d.mu.Unlock()
		return internal.NewFirekitErrorWithCode(internal.FailedPrecondition, d.path+"/"+d.id, "handle is disposed")
	}
	d.loading = true
	d.mu.Unlock()

	doc, exists, err := d.be.GetDoc(ctx, d.path, d.id)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.st == stateDisposed {
		return nil
	}
	if fe := d.resolveLocked(doc, exists, err); fe != nil {
		return fe
	}
	return nil
}

// SetRealtimeMode switches the handle between live and one-shot modes.
// Enabling realtime on an already-live handle is a no-op.
func (d *Document[T]) SetRealtimeMode(enable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.st == stateDisposed {
		return
	}
	if enable {
		if d.realtime && (d.st == stateLive || d.st == stateAttaching) {
			return
		}
		d.realtime = true
		d.attachLocked()
		return
	}
	d.realtime = false
	d.detachLocked()
	d.st = stateResolved
}

// Dispose detaches the listener and permanently retires the handle. The
// committed value remains readable.
func (d *Document[T]) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.st == stateDisposed {
		return
	}
	d.detachLocked()
	d.st = stateDisposed
}

func (d *Document[T]) detachLocked() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
	d.gen++
}

// Set writes v to the document, replacing it unless merge is true.
func (d *Document[T]) Set(ctx context.Context, v T, merge bool) error {
	b, err := json.Marshal(v)
	if err != nil {
		return internal.NewFirekitErrorWithCode(internal.InvalidArgument, d.path+"/"+d.id, "encoding record: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return internal.NewFirekitErrorWithCode(internal.InvalidArgument, d.path+"/"+d.id, "encoding record: %v", err)
	}
	delete(m, "id")
	if err := d.be.SetDoc(ctx, d.path, d.id, m, merge); err != nil {
		return internal.NewFirekitError(d.path+"/"+d.id, err)
	}
	return nil
}

// Update applies the given field updates to the document.
func (d *Document[T]) Update(ctx context.Context, fields map[string]interface{}) error {
	if err := d.be.UpdateDoc(ctx, d.path, d.id, fields); err != nil {
		return internal.NewFirekitError(d.path+"/"+d.id, err)
	}
	return nil
}

// Delete removes the document.
func (d *Document[T]) Delete(ctx context.Context) error {
	if err := d.be.DeleteDoc(ctx, d.path, d.id); err != nil {
		return internal.NewFirekitError(d.path+"/"+d.id, err)
	}
	return nil
}

// Data returns the committed value. It is the zero value when the document
// does not exist or has not resolved yet.
func (d *Document[T]) Data() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.val
}

// Exists reports whether the committed resolution found the document.
func (d *Document[T]) Exists() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exists
}

// Loading reports whether the handle is waiting on its first resolution or
// an explicit Refresh.
func (d *Document[T]) Loading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading
}

// Initialized reports whether the handle has resolved at least once. It
// flips to true exactly once and never reverts.
func (d *Document[T]) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// Err returns the classified error from the most recent failed operation,
// or nil.
func (d *Document[T]) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		return nil
	}
	return d.err
}

// LastUpdated returns the time of the most recent commit.
func (d *Document[T]) LastUpdated() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastUpdated
}

// Path returns the document's collection path.
func (d *Document[T]) Path() string {
	return d.path
}

// ID returns the document id.
func (d *Document[T]) ID() string {
	return d.id
}
