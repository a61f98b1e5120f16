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

package query

import "encoding/json"

// KeyFunc derives a cache key from a collection path and constraint
// sequence. Callers may supply their own to override the default.
type KeyFunc func(path string, constraints []Constraint) string

// CacheKey is the default cache key derivation: the collection path joined
// with the JSON serialization of the constraint sequence in list order.
//
// The serialization is deliberately order-sensitive: two logically
// equivalent queries built with a different constraint order occupy
// distinct cache slots. Byte-identical constraint sequences always share a
// slot.
func CacheKey(path string, constraints []Constraint) string {
	if len(constraints) == 0 {
		return path
	}
	b, err := json.Marshal(constraints)
	if err != nil {
		// Constraint values that defeat JSON encoding fall back to a
		// path-only key, so such queries still cache (coarsely) rather
		// than fail.
		return path
	}
	return path + "?" + string(b)
}
