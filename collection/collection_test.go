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

package collection

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/code-gio/firekit-go/backend"
	"github.com/code-gio/firekit-go/cache"
	"github.com/code-gio/firekit-go/errorutils"
	"github.com/code-gio/firekit-go/query"
)

type testUser struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Age    int    `json:"age,omitempty"`
	Active bool   `json:"active,omitempty"`
}

// fakeBackend is an in-memory Backend with controllable delivery. It
// understands equality filters and limits, which is all the tests need.
type fakeBackend struct {
	mu       sync.Mutex
	docs     []backend.Document
	execErr  error
	subErr   error
	execGate chan struct{} // when non-nil, Execute blocks until closed

	execCalls int
	subCalls  int
	active    int
	subs      map[int]*fakeSub
	nextSubID int

	writes []string
}

type fakeSub struct {
	constraints []query.Constraint
	onNext      func([]backend.Document)
	onError     func(error)
}

func newFakeBackend(docs ...backend.Document) *fakeBackend {
	return &fakeBackend{docs: docs, subs: make(map[int]*fakeSub)}
}

func userDoc(id string, fields map[string]interface{}) backend.Document {
	return backend.Document{ID: id, Data: fields}
}

func matchDocs(docs []backend.Document, constraints []query.Constraint) []backend.Document {
	var out []backend.Document
	limit := -1
	for _, d := range docs {
		keep := true
		for _, c := range constraints {
			if c.Kind == query.KindWhere && c.Op == query.OpEqual && d.Data[c.Field] != c.Value {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, d)
		}
	}
	for _, c := range constraints {
		if c.Kind == query.KindLimit {
			limit = c.Count
		}
	}
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeBackend) Execute(ctx context.Context, path string, constraints []query.Constraint) ([]backend.Document, error) {
	f.mu.Lock()
	f.execCalls++
	gate := f.execGate
	docs := matchDocs(f.docs, constraints)
	err := f.execErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, path string, constraints []query.Constraint, onNext func([]backend.Document), onError func(error)) (backend.StopFunc, error) {
	f.mu.Lock()
	f.subCalls++
	if f.subErr != nil {
		err := f.subErr
		f.mu.Unlock()
		return nil, err
	}
	f.active++
	id := f.nextSubID
	f.nextSubID++
	f.subs[id] = &fakeSub{constraints: constraints, onNext: onNext, onError: onError}
	initial := matchDocs(f.docs, constraints)
	f.mu.Unlock()

	go onNext(initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.active--
			f.mu.Unlock()
		})
	}, nil
}

// push replaces the stored documents and delivers a snapshot to every
// active listener, like a committed server-side change.
func (f *fakeBackend) push(docs ...backend.Document) {
	f.mu.Lock()
	f.docs = docs
	subs := make([]*fakeSub, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()
	for _, s := range subs {
		s.onNext(matchDocs(docs, s.constraints))
	}
}

// fail delivers a transport error to every active listener without
// detaching any of them.
func (f *fakeBackend) fail(err error) {
	f.mu.Lock()
	subs := make([]*fakeSub, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()
	for _, s := range subs {
		s.onError(err)
	}
}

func (f *fakeBackend) activeListeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeBackend) GetDoc(ctx context.Context, path, id string) (backend.Document, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.ID == id {
			return d, true, nil
		}
	}
	return backend.Document{}, false, nil
}

func (f *fakeBackend) SubscribeDoc(ctx context.Context, path, id string, onNext func(backend.Document, bool), onError func(error)) (backend.StopFunc, error) {
	doc, exists, _ := f.GetDoc(ctx, path, id)
	go onNext(doc, exists)
	return func() {}, nil
}

func (f *fakeBackend) Add(ctx context.Context, path string, data map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("gen-%d", len(f.docs)+1)
	f.docs = append(f.docs, backend.Document{ID: id, Data: data})
	f.writes = append(f.writes, "add")
	return id, nil
}

func (f *fakeBackend) SetDoc(ctx context.Context, path, id string, data map[string]interface{}, merge bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, "set")
	return nil
}

func (f *fakeBackend) UpdateDoc(ctx context.Context, path, id string, data map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, "update")
	return nil
}

func (f *fakeBackend) DeleteDoc(ctx context.Context, path, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, "delete")
	return nil
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func isolatedOptions() *Options[testUser] {
	return &Options[testUser]{
		Cache: cache.NewStore[backend.Document](time.Minute, 10),
	}
}

func activeUsersBackend() *fakeBackend {
	return newFakeBackend(
		userDoc("u1", map[string]interface{}{"name": "ada", "active": true}),
		userDoc("u2", map[string]interface{}{"name": "bob", "active": false}),
		userDoc("u3", map[string]interface{}{"name": "cay", "active": true}),
		userDoc("u4", map[string]interface{}{"name": "dee", "active": false}),
		userDoc("u5", map[string]interface{}{"name": "eve", "active": true}),
	)
}

func TestLiveQueryFiltersServerSide(t *testing.T) {
	be := activeUsersBackend()
	c, err := New(context.Background(), be, "users", isolatedOptions(),
		query.Where("active", query.OpEqual, true))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	waitFor(t, "initial snapshot", c.Initialized)
	if got := c.Size(); got != 3 {
		t.Errorf("Size() = %d; want 3", got)
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err() = %v; want nil", err)
	}
	for _, u := range c.Data() {
		if !u.Active {
			t.Errorf("Data() contains inactive user %q", u.ID)
		}
	}
	if c.Loading() {
		t.Error("Loading() = true after first snapshot; want false")
	}
	if c.Empty() {
		t.Error("Empty() = true with 3 records; want false")
	}
}

func TestConstructorValidation(t *testing.T) {
	if _, err := New[testUser](context.Background(), nil, "users", nil); !errorutils.IsCollectionUnavailable(err) {
		t.Errorf("New(nil backend) err = %v; want COLLECTION_UNAVAILABLE", err)
	}
	if _, err := New[testUser](context.Background(), newFakeBackend(), "", nil); !errorutils.IsCollectionUnavailable(err) {
		t.Errorf("New(empty path) err = %v; want COLLECTION_UNAVAILABLE", err)
	}
}

func TestSingleActiveListener(t *testing.T) {
	be := activeUsersBackend()
	c, err := New(context.Background(), be, "users", isolatedOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	waitFor(t, "listener attach", func() bool { return be.activeListeners() == 1 })

	// Re-enabling realtime on a live handle must not stack listeners.
	c.SetRealtimeMode(true)
	c.SetRealtimeMode(true)
	time.Sleep(20 * time.Millisecond)
	if got := be.activeListeners(); got != 1 {
		t.Errorf("active listeners = %d; want 1", got)
	}
	be.mu.Lock()
	subCalls := be.subCalls
	be.mu.Unlock()
	if subCalls != 1 {
		t.Errorf("Subscribe calls = %d; want 1", subCalls)
	}
}

func TestModeSwitchDetachesAndReattaches(t *testing.T) {
	be := activeUsersBackend()
	c, err := New(context.Background(), be, "users", isolatedOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	waitFor(t, "listener attach", func() bool { return be.activeListeners() == 1 })
	waitFor(t, "initial snapshot", c.Initialized)
	sizeBefore := c.Size()

	c.SetRealtimeMode(false)
	waitFor(t, "detach", func() bool { return be.activeListeners() == 0 })
	if got := c.Size(); got != sizeBefore {
		t.Errorf("Size() after detach = %d; want last-known %d", got, sizeBefore)
	}

	// A push while detached must not reach the handle.
	be.push(userDoc("u9", map[string]interface{}{"name": "zed"}))
	time.Sleep(20 * time.Millisecond)
	if got := c.Size(); got != sizeBefore {
		t.Errorf("Size() changed to %d while detached; want %d", got, sizeBefore)
	}

	c.SetRealtimeMode(true)
	waitFor(t, "re-attach", func() bool { return be.activeListeners() == 1 })
	waitFor(t, "snapshot after re-attach", func() bool { return c.Size() == 1 })
}

func TestInitializedMonotonic(t *testing.T) {
	be := activeUsersBackend()
	be.execErr = status.Error(codes.PermissionDenied, "denied")
	opts := isolatedOptions()
	opts.OneShot = true
	c, err := New(context.Background(), be, "users", opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	// A failed first resolution still initializes the handle.
	waitFor(t, "failed resolution", c.Initialized)
	if c.Err() == nil {
		t.Fatal("Err() = nil after failed fetch; want classified error")
	}
	if c.Loading() {
		t.Error("Loading() = true after failed fetch; want false")
	}

	be.mu.Lock()
	be.execErr = nil
	be.mu.Unlock()
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v; want nil", err)
	}
	if !c.Initialized() {
		t.Error("Initialized() reverted to false; want monotonic true")
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err() after successful refresh = %v; want nil", err)
	}
}

func TestTransformFailureIsolation(t *testing.T) {
	be := newFakeBackend(
		userDoc("a", map[string]interface{}{"name": "ada"}),
		userDoc("b", map[string]interface{}{"name": "bob"}),
	)
	opts := isolatedOptions()
	opts.Transform = func(u testUser) (testUser, error) {
		if u.Name == "bad" {
			return u, fmt.Errorf("unparseable user")
		}
		return u, nil
	}
	c, err := New(context.Background(), be, "users", opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	waitFor(t, "initial snapshot", c.Initialized)
	if got := c.Size(); got != 2 {
		t.Fatalf("Size() = %d; want 2", got)
	}

	// A throwing transform aborts the whole update: no partial commit.
	be.push(
		userDoc("a", map[string]interface{}{"name": "ada"}),
		userDoc("x", map[string]interface{}{"name": "bad"}),
	)
	waitFor(t, "processing error", func() bool { return c.Err() != nil })
	if !errorutils.IsInternal(c.Err()) {
		t.Errorf("Err() = %v; want INTERNAL_ERROR", c.Err())
	}
	if got := c.Size(); got != 2 {
		t.Errorf("Size() after failed update = %d; want pre-update 2", got)
	}
	if _, ok := c.FindByID("x"); ok {
		t.Error("FindByID(x) = hit; failed update partially committed")
	}

	// The next good snapshot clears the error.
	be.push(userDoc("a", map[string]interface{}{"name": "ada"}))
	waitFor(t, "recovery", func() bool { return c.Err() == nil && c.Size() == 1 })
}

func TestDisposeDiscardsInFlightFetch(t *testing.T) {
	be := activeUsersBackend()
	gate := make(chan struct{})
	be.execGate = gate
	opts := isolatedOptions()
	opts.OneShot = true
	opts.DisableCache = true
	c, err := New(context.Background(), be, "users", opts)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, "fetch issued", func() bool {
		be.mu.Lock()
		defer be.mu.Unlock()
		return be.execCalls == 1
	})
	c.Dispose()
	close(gate)

	time.Sleep(20 * time.Millisecond)
	if got := c.Size(); got != 0 {
		t.Errorf("Size() = %d after post-dispose resolve; want 0", got)
	}
	if c.Initialized() {
		t.Error("Initialized() = true after post-dispose resolve; want false")
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err() = %v after post-dispose resolve; want nil", err)
	}
}

func TestRefreshKeepsListenerAttached(t *testing.T) {
	be := activeUsersBackend()
	c, err := New(context.Background(), be, "users", isolatedOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()
	waitFor(t, "initial snapshot", c.Initialized)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() = %v; want nil", err)
	}
	if c.Loading() {
		t.Error("Loading() = true after Refresh returned; want false")
	}
	if got := be.activeListeners(); got != 1 {
		t.Fatalf("active listeners after Refresh = %d; want 1", got)
	}

	// A subsequent native push must still update the handle.
	be.push(userDoc("u7", map[string]interface{}{"name": "gil", "active": true}))
	waitFor(t, "post-refresh push", func() bool { return c.Size() == 1 })
}

func TestRefreshOnDisposedHandle(t *testing.T) {
	be := activeUsersBackend()
	c, err := New(context.Background(), be, "users", isolatedOptions())
	if err != nil {
		t.Fatal(err)
	}
	c.Dispose()
	if err := c.Refresh(context.Background()); !errorutils.IsFailedPrecondition(err) {
		t.Errorf("Refresh() on disposed handle = %v; want FAILED_PRECONDITION", err)
	}
}

func TestCacheServesBeforeBackend(t *testing.T) {
	store := cache.NewStore[backend.Document](time.Minute, 10)
	constraints := []query.Constraint{query.Where("active", query.OpEqual, true)}

	be1 := activeUsersBackend()
	opts1 := &Options[testUser]{Cache: store, OneShot: true}
	c1, err := New(context.Background(), be1, "users", opts1, constraints...)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first handle resolution", c1.Initialized)
	c1.Dispose()

	// The second construction serves cached data before its backend
	// round trip completes.
	be2 := activeUsersBackend()
	gate := make(chan struct{})
	be2.execGate = gate
	defer close(gate)
	opts2 := &Options[testUser]{Cache: store, OneShot: true}
	c2, err := New(context.Background(), be2, "users", opts2, constraints...)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Dispose()

	if got := c2.Size(); got != 3 {
		t.Errorf("Size() straight after construction = %d; want cached 3", got)
	}
	if c2.Loading() {
		t.Error("Loading() = true on a valid cache hit; want false")
	}
	if got := c2.Stats().CacheHits; got != 1 {
		t.Errorf("Stats().CacheHits = %d; want 1", got)
	}
	if c1.Key() != c2.Key() {
		t.Errorf("cache keys differ for identical queries: %q vs %q", c1.Key(), c2.Key())
	}
}

func TestClearCacheDropsOwnEntry(t *testing.T) {
	store := cache.NewStore[backend.Document](time.Minute, 10)
	be := activeUsersBackend()
	opts := &Options[testUser]{Cache: store, OneShot: true}
	c, err := New(context.Background(), be, "users", opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()
	waitFor(t, "resolution", c.Initialized)

	if _, ok := store.Get(c.Key()); !ok {
		t.Fatal("cache entry missing after resolution")
	}
	c.ClearCache()
	if _, ok := store.Get(c.Key()); ok {
		t.Error("ClearCache() left the entry behind")
	}
}

func TestLiveErrorKeepsDataAndListener(t *testing.T) {
	be := activeUsersBackend()
	c, err := New(context.Background(), be, "users", isolatedOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()
	waitFor(t, "initial snapshot", c.Initialized)
	sizeBefore := c.Size()

	be.fail(status.Error(codes.Unavailable, "backend unavailable"))
	waitFor(t, "listen error", func() bool { return c.Err() != nil })

	// Stale data is served together with the fresh error.
	if got := c.Size(); got != sizeBefore {
		t.Errorf("Size() = %d after listen error; want stale %d", got, sizeBefore)
	}
	if !errorutils.IsRetryable(c.Err()) {
		t.Errorf("Err() = %v; want retryable UNAVAILABLE", c.Err())
	}

	// The backend self-heals; the still-attached listener delivers.
	be.push(userDoc("u8", map[string]interface{}{"name": "hal"}))
	waitFor(t, "self-heal push", func() bool { return c.Err() == nil && c.Size() == 1 })
}

func TestGetFromServer(t *testing.T) {
	be := activeUsersBackend()
	opts := isolatedOptions()
	opts.OneShot = true
	c, err := New(context.Background(), be, "users", opts,
		query.Where("active", query.OpEqual, true))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()
	waitFor(t, "resolution", c.Initialized)

	got, err := c.GetFromServer(context.Background())
	if err != nil {
		t.Fatalf("GetFromServer() = %v; want nil", err)
	}
	if len(got) != 3 {
		t.Errorf("GetFromServer() returned %d records; want 3", len(got))
	}
}

func TestErrorClassification(t *testing.T) {
	be := activeUsersBackend()
	be.execErr = status.Error(codes.PermissionDenied, "missing or insufficient permissions")
	opts := isolatedOptions()
	opts.OneShot = true
	c, err := New(context.Background(), be, "users", opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()
	waitFor(t, "failed resolution", c.Initialized)

	if !errorutils.IsPermissionDenied(c.Err()) {
		t.Errorf("Err() = %v; want PERMISSION_DENIED", c.Err())
	}
	if errorutils.IsRetryable(c.Err()) {
		t.Error("IsRetryable(PERMISSION_DENIED) = true; want false")
	}
	if got := errorutils.Path(c.Err()); got != "users" {
		t.Errorf("Path() = %q; want %q", got, "users")
	}
}

func TestStatsCounters(t *testing.T) {
	be := activeUsersBackend()
	opts := isolatedOptions()
	opts.OneShot = true
	c, err := New(context.Background(), be, "users", opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()
	waitFor(t, "resolution", c.Initialized)

	if _, err := c.Add(context.Background(), testUser{Name: "new"}); err != nil {
		t.Fatalf("Add() = %v", err)
	}
	if err := c.Update(context.Background(), "u1", map[string]interface{}{"age": 31}); err != nil {
		t.Fatalf("Update() = %v", err)
	}
	if err := c.Delete(context.Background(), "u2"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}

	stats := c.Stats()
	if stats.Reads == 0 {
		t.Error("Stats().Reads = 0; want > 0")
	}
	if stats.Writes != 3 {
		t.Errorf("Stats().Writes = %d; want 3", stats.Writes)
	}
	if stats.HandleID == "" {
		t.Error("Stats().HandleID is empty")
	}
	if stats.LastActivity.IsZero() {
		t.Error("Stats().LastActivity is zero")
	}
}

func TestAddDropsSyntheticID(t *testing.T) {
	be := activeUsersBackend()
	opts := isolatedOptions()
	opts.OneShot = true
	c, err := New(context.Background(), be, "users", opts)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Dispose()

	id, err := c.Add(context.Background(), testUser{ID: "client-chosen", Name: "new"})
	if err != nil {
		t.Fatalf("Add() = %v", err)
	}
	if id == "client-chosen" {
		t.Error("Add() kept the synthetic id; want backend-assigned id")
	}
	be.mu.Lock()
	defer be.mu.Unlock()
	last := be.docs[len(be.docs)-1]
	if _, ok := last.Data["id"]; ok {
		t.Error("Add() wrote the synthetic id field to the backend")
	}
}
