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

// Package cache provides the in-memory result cache shared by query handles.
//
// Entries are informational: a stale read re-triggers a fresh fetch, never
// blocks one. Writes are last-writer-wins; concurrent snapshot arrivals for
// the same key simply overwrite the entry.
package cache

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultTTL is the validity window applied when a Store is created
	// with a non-positive TTL.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxSize is the entry bound applied when a Store is created
	// with a non-positive size.
	DefaultMaxSize = 100
)

// Entry is a cached result set with the time it was stored.
type Entry[T any] struct {
	Data      []T
	Timestamp time.Time
}

// Store maps cache keys to result-set entries, bounded by a TTL and a
// maximum entry count. Eviction under the size bound removes
// oldest-timestamp entries first; the timestamp is the set time, not the
// last access time.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]Entry[T]
	ttl     time.Duration
	maxSize int

	now func() time.Time // overridable in tests
}

// NewStore creates a Store with the given TTL and entry bound. Non-positive
// values select the package defaults.
func NewStore[T any](ttl time.Duration, maxSize int) *Store[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store[T]{
		entries: make(map[string]Entry[T]),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the entry stored under key, if any.
func (s *Store[T]) Get(key string) (Entry[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

// Set stores data under key, stamped with the current time. If the store
// exceeds its size bound afterward, oldest-timestamp entries are removed
// until the bound holds again.
func (s *Store[T]) Set(key string, data []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = Entry[T]{Data: data, Timestamp: s.now()}
	s.evictOverBoundLocked()
}

// IsValid reports whether an entry exists under key and is younger than the
// given TTL. A non-positive ttl selects the store's configured TTL.
func (s *Store[T]) IsValid(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.ttl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && s.now().Sub(e.Timestamp) < ttl
}

// Evict removes all entries older than the store TTL, then enforces the
// size bound by removing oldest-timestamp entries.
func (s *Store[T]) Evict() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	for k, e := range s.entries {
		if !e.Timestamp.After(cutoff) {
			delete(s.entries, k)
		}
	}
	s.evictOverBoundLocked()
}

// Clear drops the given entries, or every entry when no keys are given.
func (s *Store[T]) Clear(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(keys) == 0 {
		s.entries = make(map[string]Entry[T])
		return
	}
	for _, k := range keys {
		delete(s.entries, k)
	}
}

// Len returns the number of entries currently stored.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store[T]) evictOverBoundLocked() {
	over := len(s.entries) - s.maxSize
	if over <= 0 {
		return
	}
	type aged struct {
		key string
		ts  time.Time
	}
	all := make([]aged, 0, len(s.entries))
	for k, e := range s.entries {
		all = append(all, aged{k, e.Timestamp})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })
	for i := 0; i < over; i++ {
		delete(s.entries, all[i].key)
	}
}
