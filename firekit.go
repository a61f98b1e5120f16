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

// Package firekit is the entry point to the Firekit SDK. It provides
// functionality for initializing App instances, which serve as the central
// entities that provide access to the backend services the reactive
// handles are built on.
package firekit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"

	"cloud.google.com/go/firestore"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/transport"

	"github.com/code-gio/firekit-go/backend"
	"github.com/code-gio/firekit-go/internal"
	"github.com/code-gio/firekit-go/storage"
)

var firekitScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/datastore",
	"https://www.googleapis.com/auth/devstorage.full_control",
	"https://www.googleapis.com/auth/firebase",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Version of the Firekit SDK.
const Version = "0.1.0"

// firekitEnvName is the name of the environment variable with the Config.
const firekitEnvName = "FIREKIT_CONFIG"

// An App holds configuration and state common to all backend services that
// are exposed from the SDK.
//
// There is deliberately no default App singleton: every reactive handle is
// constructed against an explicit backend obtained from an App.
type App struct {
	creds         *google.Credentials
	projectID     string
	storageBucket string
	opts          []option.ClientOption
}

// Config represents the configuration used to initialize an App.
type Config struct {
	ProjectID     string `json:"projectId"`
	StorageBucket string `json:"storageBucket"`
}

// NewApp creates a new App from the provided config and client options.
//
// If the client options contain a valid credential (a service account file,
// a refresh token file or an oauth2.TokenSource) the App will be
// authenticated using that credential. Otherwise, NewApp attempts to
// authenticate the App with Google application default credentials.
func NewApp(ctx context.Context, config *Config, opts ...option.ClientOption) (*App, error) {
	o := []option.ClientOption{option.WithScopes(firekitScopes...)}
	o = append(o, opts...)
	if config == nil {
		config = &Config{}
	}
	creds, err := transport.Creds(ctx, o...)
	if err != nil {
		return nil, err
	}
	config, err = amendConfigWithDefaults(config)
	if err != nil {
		return nil, err
	}

	pid := config.ProjectID
	if pid == "" {
		pid = creds.ProjectID
	}
	if pid == "" {
		pid = os.Getenv("GCLOUD_PROJECT")
	}

	return &App{
		creds:         creds,
		projectID:     pid,
		storageBucket: config.StorageBucket,
		opts:          o,
	}, nil
}

// Firestore returns a new firestore.Client instance from the
// cloud.google.com/go/firestore package.
func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	if a.projectID == "" {
		return nil, errors.New("project id is required to access Firestore")
	}
	return firestore.NewClient(ctx, a.projectID, a.opts...)
}

// Backend returns a Firestore-backed implementation of the backend.Backend
// interface, ready to construct collection and document handles against.
func (a *App) Backend(ctx context.Context) (*backend.FirestoreBackend, error) {
	client, err := a.Firestore(ctx)
	if err != nil {
		return nil, err
	}
	return backend.NewFirestoreBackend(client), nil
}

// Storage returns a new instance of storage.Client.
func (a *App) Storage(ctx context.Context) (*storage.Client, error) {
	conf := &internal.StorageConfig{
		Ctx:    ctx,
		Opts:   a.opts,
		Bucket: a.storageBucket,
	}
	return storage.NewClient(conf)
}

// ProjectID returns the project this App is bound to.
func (a *App) ProjectID() string {
	return a.projectID
}

// amendConfigWithDefaults reads the default config file, named by the
// FIREKIT_CONFIG env variable, and uses those values where the given config
// is missing them.
func amendConfigWithDefaults(config *Config) (*Config, error) {
	confFileName := os.Getenv(firekitEnvName)
	if confFileName == "" {
		return config, nil
	}
	dat, err := os.ReadFile(confFileName)
	if err != nil {
		return nil, err
	}

	defaults := &Config{}
	dec := json.NewDecoder(bytes.NewReader(dat))
	dec.DisallowUnknownFields()
	if err := dec.Decode(defaults); err != nil {
		return nil, err
	}

	out := *config
	if out.ProjectID == "" {
		out.ProjectID = defaults.ProjectID
	}
	if out.StorageBucket == "" {
		out.StorageBucket = defaults.StorageBucket
	}
	return &out, nil
}
