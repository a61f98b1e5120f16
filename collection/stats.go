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

	"github.com/oklog/ulid/v2"
)

// Stats are diagnostic counters for a single handle. They never influence
// handle behavior.
type Stats struct {
	HandleID     string
	Reads        int64
	Writes       int64
	CacheHits    int64
	CacheMisses  int64
	AvgLatency   time.Duration
	LastActivity time.Time
}

// CacheHitRate returns the fraction of cache probes that hit, or zero when
// no probe has happened yet.
func (s Stats) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// statsCounters is the mutable form kept inside the handle, guarded by the
// handle mutex.
type statsCounters struct {
	handleID     string
	reads        int64
	writes       int64
	cacheHits    int64
	cacheMisses  int64
	totalLatency time.Duration
	queryCount   int64
	lastActivity time.Time
}

func newStatsCounters() statsCounters {
	return statsCounters{handleID: ulid.Make().String()}
}

func (s *statsCounters) recordQuery(latency time.Duration) {
	s.reads++
	s.totalLatency += latency
	s.queryCount++
	s.lastActivity = time.Now()
}

// recordPush counts a pushed snapshot as a read without folding it into
// the query latency average.
func (s *statsCounters) recordPush() {
	s.reads++
	s.lastActivity = time.Now()
}

func (s *statsCounters) recordWrite() {
	s.writes++
	s.lastActivity = time.Now()
}

func (s *statsCounters) snapshot() Stats {
	out := Stats{
		HandleID:     s.handleID,
		Reads:        s.reads,
		Writes:       s.writes,
		CacheHits:    s.cacheHits,
		CacheMisses:  s.cacheMisses,
		LastActivity: s.lastActivity,
	}
	if s.queryCount > 0 {
		out.AvgLatency = s.totalLatency / time.Duration(s.queryCount)
	}
	return out
}
