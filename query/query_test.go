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

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuilderAccumulatesInOrder(t *testing.T) {
	b := NewBuilder().
		Where("active", OpEqual, true).
		OrderBy("age", Desc).
		Limit(10).
		StartAfter("cursor")

	want := []Constraint{
		{Kind: KindWhere, Field: "active", Op: OpEqual, Value: true},
		{Kind: KindOrderBy, Field: "age", Direction: Desc},
		{Kind: KindLimit, Count: 10},
		{Kind: KindStartAfter, Values: []interface{}{"cursor"}},
	}
	if diff := cmp.Diff(want, b.Build()); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderSnapshotIsolation(t *testing.T) {
	b := NewBuilder().Where("a", OpEqual, 1)
	first := b.Build()
	b.Limit(5)
	second := b.Build()

	if len(first) != 1 {
		t.Errorf("first Build() has %d constraints after later append; want 1", len(first))
	}
	if len(second) != 2 {
		t.Errorf("second Build() has %d constraints; want 2", len(second))
	}
}

func TestOrderByDefaultsToAscending(t *testing.T) {
	c := OrderBy("name")
	if c.Direction != Asc {
		t.Errorf("OrderBy() direction = %q; want %q", c.Direction, Asc)
	}
}

func TestCacheKeyDeterminism(t *testing.T) {
	cs1 := NewBuilder().Where("active", OpEqual, true).Limit(3).Build()
	cs2 := NewBuilder().Where("active", OpEqual, true).Limit(3).Build()

	k1 := CacheKey("users", cs1)
	k2 := CacheKey("users", cs2)
	if k1 != k2 {
		t.Errorf("CacheKey() = %q and %q for identical constraint sequences; want equal", k1, k2)
	}
}

func TestCacheKeyIsOrderSensitive(t *testing.T) {
	// Logically equivalent queries built in a different constraint order
	// occupy distinct cache slots.
	cs1 := NewBuilder().Where("a", OpEqual, 1).Where("b", OpEqual, 2).Build()
	cs2 := NewBuilder().Where("b", OpEqual, 2).Where("a", OpEqual, 1).Build()

	if CacheKey("users", cs1) == CacheKey("users", cs2) {
		t.Error("CacheKey() treats reordered constraint sequences as equal; want distinct keys")
	}
}

func TestCacheKeyWithoutConstraints(t *testing.T) {
	if got := CacheKey("users", nil); got != "users" {
		t.Errorf("CacheKey() = %q; want %q", got, "users")
	}
}

func TestCacheKeyDistinguishesPaths(t *testing.T) {
	cs := NewBuilder().Limit(1).Build()
	if CacheKey("users", cs) == CacheKey("orders", cs) {
		t.Error("CacheKey() collides across collection paths")
	}
}
