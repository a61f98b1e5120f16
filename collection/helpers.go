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

import "sort"

// The helpers below operate on the current committed snapshot only; none
// of them touch the backend or mutate handle state.

// Filter returns the committed records matching pred.
func (c *Collection[T]) Filter(pred func(T) bool) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, r := range c.records {
		if pred(r.val) {
			out = append(out, r.val)
		}
	}
	return out
}

// Find returns the first committed record matching pred.
func (c *Collection[T]) Find(pred func(T) bool) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if pred(r.val) {
			return r.val, true
		}
	}
	var zero T
	return zero, false
}

// FindByID returns the committed record with the given backend id.
func (c *Collection[T]) FindByID(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.id == id {
			return r.val, true
		}
	}
	var zero T
	return zero, false
}

// Sort returns a copy of the committed records, stable-sorted by less.
func (c *Collection[T]) Sort(less func(a, b T) bool) []T {
	out := c.Data()
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Paginate returns the given 1-based page of the committed records. Pages
// past the end are empty.
func (c *Collection[T]) Paginate(page, perPage int) []T {
	if page < 1 || perPage < 1 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	lo := (page - 1) * perPage
	if lo >= len(c.records) {
		return nil
	}
	hi := lo + perPage
	if hi > len(c.records) {
		hi = len(c.records)
	}
	out := make([]T, 0, hi-lo)
	for _, r := range c.records[lo:hi] {
		out = append(out, r.val)
	}
	return out
}

// GroupBy buckets the committed records by the given key function.
func (c *Collection[T]) GroupBy(key func(T) string) map[string][]T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]T)
	for _, r := range c.records {
		k := key(r.val)
		out[k] = append(out[k], r.val)
	}
	return out
}

// Unique returns the committed records with later duplicates (by the given
// key function) dropped, preserving first-seen order.
func (c *Collection[T]) Unique(key func(T) string) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]bool, len(c.records))
	var out []T
	for _, r := range c.records {
		k := key(r.val)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r.val)
	}
	return out
}

// Count returns the number of committed records matching pred.
func (c *Collection[T]) Count(pred func(T) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.records {
		if pred(r.val) {
			n++
		}
	}
	return n
}

// Some reports whether any committed record matches pred.
func (c *Collection[T]) Some(pred func(T) bool) bool {
	_, ok := c.Find(pred)
	return ok
}

// Every reports whether all committed records match pred. It is vacuously
// true for an empty result set.
func (c *Collection[T]) Every(pred func(T) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if !pred(r.val) {
			return false
		}
	}
	return true
}
