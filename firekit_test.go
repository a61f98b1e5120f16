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

package firekit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "firekit_config.json")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAmendConfigNoEnv(t *testing.T) {
	t.Setenv(firekitEnvName, "")
	in := &Config{ProjectID: "my-project"}
	got, err := amendConfigWithDefaults(in)
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Error("amendConfigWithDefaults() copied the config with no env file set")
	}
}

func TestAmendConfigFillsBlanks(t *testing.T) {
	path := writeConfigFile(t, `{"projectId": "env-project", "storageBucket": "env-bucket"}`)
	t.Setenv(firekitEnvName, path)

	got, err := amendConfigWithDefaults(&Config{})
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{ProjectID: "env-project", StorageBucket: "env-bucket"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("amendConfigWithDefaults() mismatch (-want +got):\n%s", diff)
	}
}

func TestAmendConfigExplicitWins(t *testing.T) {
	path := writeConfigFile(t, `{"projectId": "env-project", "storageBucket": "env-bucket"}`)
	t.Setenv(firekitEnvName, path)

	got, err := amendConfigWithDefaults(&Config{ProjectID: "explicit"})
	if err != nil {
		t.Fatal(err)
	}
	if got.ProjectID != "explicit" {
		t.Errorf("ProjectID = %q; want explicit value kept", got.ProjectID)
	}
	if got.StorageBucket != "env-bucket" {
		t.Errorf("StorageBucket = %q; want filled from env file", got.StorageBucket)
	}
}

func TestAmendConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfigFile(t, `{"projectId": "p", "bogusField": true}`)
	t.Setenv(firekitEnvName, path)

	if _, err := amendConfigWithDefaults(&Config{}); err == nil {
		t.Error("amendConfigWithDefaults() = nil error for unknown config field; want error")
	}
}

func TestAmendConfigMissingFile(t *testing.T) {
	t.Setenv(firekitEnvName, filepath.Join(t.TempDir(), "does-not-exist.json"))
	if _, err := amendConfigWithDefaults(&Config{}); err == nil {
		t.Error("amendConfigWithDefaults() = nil error for missing config file; want error")
	}
}
