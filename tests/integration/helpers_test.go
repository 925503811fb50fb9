// Copyright 2024 ArchiveFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package integration

import (
	"path/filepath"
	"testing"

	"archivefs/internal/dispatch"
	"archivefs/internal/eventloop"
	"archivefs/internal/ziptest"
)

const mountPoint = "/virt/app"

// overlay is one mounted dispatcher instance backed by the shared fixture
// archive.
type overlay struct {
	loop      *eventloop.Loop
	manager   *dispatch.Manager
	zipPath   string
	cacheRoot string
}

// newOverlay builds a fixture archive, mounts it, and registers cleanup.
func newOverlay(t *testing.T) *overlay {
	t.Helper()

	zipPath := filepath.Join(t.TempDir(), "app.zip")
	ziptest.Build(t, zipPath)

	return mountOverlay(t, zipPath, filepath.Join(t.TempDir(), "cache"))
}

// mountOverlay mounts an existing archive against an existing cache root,
// so tests can exercise remounts against a warm cache.
func mountOverlay(t *testing.T, zipPath, cacheRoot string) *overlay {
	t.Helper()

	loop := eventloop.New()
	m := dispatch.New(loop)
	if err := m.SetCacheRoot(cacheRoot); err != nil {
		t.Fatalf("set cache root: %v", err)
	}
	if err := m.Mount(zipPath, mountPoint); err != nil {
		t.Fatalf("mount fixture: %v", err)
	}
	t.Cleanup(m.Release)

	return &overlay{loop: loop, manager: m, zipPath: zipPath, cacheRoot: cacheRoot}
}
