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

// Package backend defines the boundary between the reactive handles and the
// wrapped database SDK. Implementations return native SDK errors unwrapped;
// classification happens in the handle layer.
package backend

import (
	"context"

	"github.com/code-gio/firekit-go/query"
)

// Document is a raw backend row: the backend-assigned identifier plus the
// payload fields.
type Document struct {
	ID   string
	Data map[string]interface{}
}

// StopFunc detaches a live subscription. It is safe to call more than once.
type StopFunc func()

// Querier executes one-shot queries and opens live subscriptions against a
// collection path.
//
// Subscribe delivers result sets to onNext in the order the backend
// committed them, and transport failures to onError. Callbacks stop after
// the returned StopFunc is called, though an invocation already in flight
// at that point may still be delivered.
type Querier interface {
	Execute(ctx context.Context, path string, constraints []query.Constraint) ([]Document, error)
	Subscribe(ctx context.Context, path string, constraints []query.Constraint, onNext func([]Document), onError func(error)) (StopFunc, error)
}

// DocReader reads and watches a single document. A missing document is
// reported with exists=false and a nil error.
type DocReader interface {
	GetDoc(ctx context.Context, path, id string) (Document, bool, error)
	SubscribeDoc(ctx context.Context, path, id string, onNext func(Document, bool), onError func(error)) (StopFunc, error)
}

// Writer performs document mutations. Add returns the backend-assigned id
// of the created document.
type Writer interface {
	Add(ctx context.Context, path string, data map[string]interface{}) (string, error)
	SetDoc(ctx context.Context, path, id string, data map[string]interface{}, merge bool) error
	UpdateDoc(ctx context.Context, path, id string, data map[string]interface{}) error
	DeleteDoc(ctx context.Context, path, id string) error
}

// Backend is the full surface the reactive handles are constructed against.
type Backend interface {
	Querier
	DocReader
	Writer
}
