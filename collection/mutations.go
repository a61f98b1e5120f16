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
	"encoding/json"

	"github.com/code-gio/firekit-go/internal"
)

// Mutations pass straight through to the backend and never touch the
// committed result set: a live listener picks the write up as a pushed
// snapshot, and one-shot handles see it on the next Refresh.

// Add creates a new document from v and returns its backend-assigned id.
// The synthetic "id" field of v, if set, is dropped before writing.
func (c *Collection[T]) Add(ctx context.Context, v T) (string, error) {
	data, err := encodeRecord(v)
	if err != nil {
		return "", internal.NewFirekitErrorWithCode(internal.InvalidArgument, c.path, "encoding record: %v", err)
	}
	id, err := c.be.Add(ctx, c.path, data)
	if err != nil {
		return "", internal.NewFirekitError(c.path, err)
	}
	c.mu.Lock()
	c.stats.recordWrite()
	c.mu.Unlock()
	return id, nil
}

// Set writes v under the given document id, replacing the document unless
// merge is true.
func (c *Collection[T]) Set(ctx context.Context, id string, v T, merge bool) error {
	data, err := encodeRecord(v)
	if err != nil {
		return internal.NewFirekitErrorWithCode(internal.InvalidArgument, c.path, "encoding record: %v", err)
	}
	if err := c.be.SetDoc(ctx, c.path, id, data, merge); err != nil {
		return internal.NewFirekitError(c.path, err)
	}
	c.mu.Lock()
	c.stats.recordWrite()
	c.mu.Unlock()
	return nil
}

// Update applies the given field updates to an existing document.
func (c *Collection[T]) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	if err := c.be.UpdateDoc(ctx, c.path, id, fields); err != nil {
		return internal.NewFirekitError(c.path, err)
	}
	c.mu.Lock()
	c.stats.recordWrite()
	c.mu.Unlock()
	return nil
}

// Delete removes the document with the given id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := c.be.DeleteDoc(ctx, c.path, id); err != nil {
		return internal.NewFirekitError(c.path, err)
	}
	c.mu.Lock()
	c.stats.recordWrite()
	c.mu.Unlock()
	return nil
}

// encodeRecord flattens v into the backend's field map via a JSON round
// trip, dropping the synthetic "id" field.
func encodeRecord[T any](v T) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	delete(m, "id")
	return m, nil
}
