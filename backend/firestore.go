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

package backend

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/golang/glog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/code-gio/firekit-go/query"
)

// FirestoreBackend adapts a firestore.Client to the Backend interface.
type FirestoreBackend struct {
	client *firestore.Client
}

var _ Backend = (*FirestoreBackend)(nil)

// NewFirestoreBackend wraps the given Firestore client.
func NewFirestoreBackend(client *firestore.Client) *FirestoreBackend {
	return &FirestoreBackend{client: client}
}

// Execute runs a one-shot query and returns the matching documents in
// backend order.
func (b *FirestoreBackend) Execute(ctx context.Context, path string, constraints []query.Constraint) ([]Document, error) {
	q, err := b.applyConstraints(path, constraints)
	if err != nil {
		return nil, err
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(snaps))
	for _, s := range snaps {
		docs = append(docs, Document{ID: s.Ref.ID, Data: s.Data()})
	}
	return docs, nil
}

// Subscribe opens a snapshot listener for the query. Result sets arrive on
// onNext in commit order until the returned StopFunc is called. A terminal
// listener failure is reported once on onError; the Firestore SDK retries
// transient faults internally before surfacing one.
func (b *FirestoreBackend) Subscribe(ctx context.Context, path string, constraints []query.Constraint, onNext func([]Document), onError func(error)) (StopFunc, error) {
	q, err := b.applyConstraints(path, constraints)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	it := q.Snapshots(ctx)
	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if status.Code(err) == codes.Canceled {
					return
				}
				glog.Warningf("firestore listener for %q failed: %v", path, err)
				onError(err)
				return
			}
			docs := make([]Document, 0, snap.Size)
			for {
				ds, err := snap.Documents.Next()
				if err == iterator.Done {
					break
				}
				if err != nil {
					glog.Warningf("firestore snapshot iteration for %q failed: %v", path, err)
					break
				}
				docs = append(docs, Document{ID: ds.Ref.ID, Data: ds.Data()})
			}
			onNext(docs)
		}
	}()
	return func() { cancel() }, nil
}

// GetDoc fetches a single document. A missing document is reported with
// exists=false and a nil error.
func (b *FirestoreBackend) GetDoc(ctx context.Context, path, id string) (Document, bool, error) {
	ds, err := b.client.Collection(path).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{}, false, nil
		}
		return Document{}, false, err
	}
	return Document{ID: ds.Ref.ID, Data: ds.Data()}, true, nil
}

// SubscribeDoc opens a snapshot listener for a single document. Deletions
// arrive as exists=false.
func (b *FirestoreBackend) SubscribeDoc(ctx context.Context, path, id string, onNext func(Document, bool), onError func(error)) (StopFunc, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := b.client.Collection(path).Doc(id).Snapshots(ctx)
	go func() {
		defer it.Stop()
		for {
			ds, err := it.Next()
			if err != nil {
				if status.Code(err) == codes.Canceled {
					return
				}
				glog.Warningf("firestore listener for %q/%q failed: %v", path, id, err)
				onError(err)
				return
			}
			if !ds.Exists() {
				onNext(Document{ID: id}, false)
				continue
			}
			onNext(Document{ID: ds.Ref.ID, Data: ds.Data()}, true)
		}
	}()
	return func() { cancel() }, nil
}

// Add creates a document with a backend-assigned id.
func (b *FirestoreBackend) Add(ctx context.Context, path string, data map[string]interface{}) (string, error) {
	ref, _, err := b.client.Collection(path).Add(ctx, data)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// SetDoc writes a document, optionally merging into existing fields.
func (b *FirestoreBackend) SetDoc(ctx context.Context, path, id string, data map[string]interface{}, merge bool) error {
	var opts []firestore.SetOption
	if merge {
		opts = append(opts, firestore.MergeAll)
	}
	_, err := b.client.Collection(path).Doc(id).Set(ctx, data, opts...)
	return err
}

// UpdateDoc applies field updates to an existing document.
func (b *FirestoreBackend) UpdateDoc(ctx context.Context, path, id string, data map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(data))
	for k, v := range data {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	_, err := b.client.Collection(path).Doc(id).Update(ctx, updates)
	return err
}

// DeleteDoc removes a document. Deleting a missing document is not an error.
func (b *FirestoreBackend) DeleteDoc(ctx context.Context, path, id string) error {
	_, err := b.client.Collection(path).Doc(id).Delete(ctx)
	return err
}

func (b *FirestoreBackend) applyConstraints(path string, constraints []query.Constraint) (firestore.Query, error) {
	q := b.client.Collection(path).Query
	for _, c := range constraints {
		switch c.Kind {
		case query.KindWhere:
			q = q.Where(c.Field, string(c.Op), c.Value)
		case query.KindOrderBy:
			dir := firestore.Asc
			if c.Direction == query.Desc {
				dir = firestore.Desc
			}
			q = q.OrderBy(c.Field, dir)
		case query.KindLimit:
			q = q.Limit(c.Count)
		case query.KindStartAt:
			q = q.StartAt(c.Values...)
		case query.KindStartAfter:
			q = q.StartAfter(c.Values...)
		case query.KindEndAt:
			q = q.EndAt(c.Values...)
		case query.KindEndBefore:
			q = q.EndBefore(c.Values...)
		default:
			return firestore.Query{}, fmt.Errorf("unsupported constraint kind %q", c.Kind)
		}
	}
	return q, nil
}
