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
	"encoding/json"
	"fmt"
	"sort"

	"github.com/code-gio/firekit-go/backend"
)

// ChangeKind classifies a record's movement between two committed result
// sets.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change describes one record's movement in the most recent commit. For
// removed records, Record holds the last committed value.
type Change[T any] struct {
	Kind   ChangeKind
	ID     string
	Record T
}

// record is a processed document: the decoded value, its backend id, and
// the JSON encoding of the final value used for modified-detection.
type record[T any] struct {
	id  string
	val T
	enc string
}

// processDocs turns a raw backend result set into processed records, in
// fixed order: id merge, decode, transform, filter, sort. Any failure
// aborts the whole pass; the caller must not commit a partial result.
func (c *Collection[T]) processDocs(docs []backend.Document) ([]record[T], error) {
	out := make([]record[T], 0, len(docs))
	for _, d := range docs {
		v, err := decodeDocument[T](d)
		if err != nil {
			return nil, fmt.Errorf("decoding document %q: %w", d.ID, err)
		}
		if c.opts.Transform != nil {
			v, err = c.opts.Transform(v)
			if err != nil {
				return nil, fmt.Errorf("transforming document %q: %w", d.ID, err)
			}
		}
		if c.opts.Filter != nil && !c.opts.Filter(v) {
			continue
		}
		enc, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding document %q: %w", d.ID, err)
		}
		out = append(out, record[T]{id: d.ID, val: v, enc: string(enc)})
	}
	if c.opts.Less != nil {
		sort.SliceStable(out, func(i, j int) bool {
			return c.opts.Less(out[i].val, out[j].val)
		})
	}
	return out, nil
}

// decodeDocument merges the backend-assigned id into the raw payload under
// the "id" key and decodes the result into T via a JSON round trip.
func decodeDocument[T any](d backend.Document) (T, error) {
	var v T
	merged := make(map[string]interface{}, len(d.Data)+1)
	for k, val := range d.Data {
		merged[k] = val
	}
	merged["id"] = d.ID
	b, err := json.Marshal(merged)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}

// diffRecords classifies records between the previous and next committed
// sets by id. A record present in both is modified only if its JSON
// encoding differs. Added and modified changes appear in next order;
// removals follow in previous order.
func diffRecords[T any](prev, next []record[T]) []Change[T] {
	prevByID := make(map[string]record[T], len(prev))
	for _, r := range prev {
		prevByID[r.id] = r
	}
	nextIDs := make(map[string]bool, len(next))

	var changes []Change[T]
	for _, r := range next {
		nextIDs[r.id] = true
		old, ok := prevByID[r.id]
		if !ok {
			changes = append(changes, Change[T]{Kind: ChangeAdded, ID: r.id, Record: r.val})
		} else if old.enc != r.enc {
			changes = append(changes, Change[T]{Kind: ChangeModified, ID: r.id, Record: r.val})
		}
	}
	for _, r := range prev {
		if !nextIDs[r.id] {
			changes = append(changes, Change[T]{Kind: ChangeRemoved, ID: r.id, Record: r.val})
		}
	}
	return changes
}
