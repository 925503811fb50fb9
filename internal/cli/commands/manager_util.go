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

package commands

import (
	"errors"
	"os"

	"archivefs/internal/config"
	"archivefs/internal/dispatch"
	"archivefs/internal/eventloop"
)

// withManager builds a dispatcher from the global flags, mounts everything
// requested, runs fn, and releases. The CLI drives the dispatcher
// synchronously, so the loop never needs a Run goroutine here.
func withManager(fn func(*dispatch.Manager) error) error {
	loop := eventloop.New()
	m := dispatch.New(loop)
	defer m.Release()

	cacheRoot := flagCacheRoot

	var mounts []config.Mount
	if flagConfig != "" {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if cacheRoot == "" {
			cacheRoot = cfg.CacheRoot
		}
		mounts = cfg.Mounts
	}
	if flagArchive != "" || flagMount != "" {
		if flagArchive == "" {
			return errors.New("--mount requires --archive")
		}
		if flagMount == "" {
			return errors.New("--archive requires --mount")
		}
		mounts = append(mounts, config.Mount{Archive: flagArchive, Mount: flagMount})
	}

	if cacheRoot != "" {
		if err := m.SetCacheRoot(cacheRoot); err != nil {
			return err
		}
	}

	if flagTrace {
		m.EnableTrace(os.Stdout)
	}
	if flagTraceTo != "" {
		if err := m.EnableTraceFile(flagTraceTo); err != nil {
			return err
		}
	}

	for _, mt := range mounts {
		if err := m.Mount(mt.Archive, mt.Mount); err != nil {
			return err
		}
	}

	return fn(m)
}

// requireMounts errors out when no archive was configured.
func requireMounts(m *dispatch.Manager) error {
	if len(m.Mounts()) == 0 {
		return errors.New("no archive mounted; pass --archive/--mount or --config")
	}
	return nil
}
