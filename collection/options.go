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
	"time"

	"github.com/code-gio/firekit-go/backend"
	"github.com/code-gio/firekit-go/cache"
	"github.com/code-gio/firekit-go/query"
)

// Options configures a Collection handle. The zero value selects realtime
// mode with the shared cache and default TTL.
type Options[T any] struct {
	// OneShot disables the live listener; the handle resolves once per
	// construction or Refresh instead of receiving pushed snapshots.
	OneShot bool

	// CacheTTL is the validity window for cached result sets. Zero selects
	// cache.DefaultTTL.
	CacheTTL time.Duration

	// DisableCache skips the cache probe on construction and suppresses
	// cache refreshes on commit.
	DisableCache bool

	// CacheKey overrides the default order-sensitive key derivation.
	CacheKey query.KeyFunc

	// Cache overrides the process-wide shared store. Mainly for tests.
	Cache *cache.Store[backend.Document]

	// Transform is applied to each decoded record. An error aborts the
	// whole update; no partially transformed result set is ever committed.
	Transform func(T) (T, error)

	// Filter drops records for which it returns false.
	Filter func(T) bool

	// Less, if set, stable-sorts the processed result set.
	Less func(a, b T) bool
}

func (o *Options[T]) ttl() time.Duration {
	if o.CacheTTL > 0 {
		return o.CacheTTL
	}
	return cache.DefaultTTL
}

func (o *Options[T]) keyFunc() query.KeyFunc {
	if o.CacheKey != nil {
		return o.CacheKey
	}
	return query.CacheKey
}
