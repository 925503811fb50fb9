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

// Package dispatch routes every filesystem call either to the real
// filesystem or to the archive mount owning the path or descriptor, while
// keeping the caller inside one descriptor namespace and one async contract.
package dispatch

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"archivefs/internal/archive"
	"archivefs/internal/common"
	"archivefs/internal/eventloop"
	"archivefs/internal/fsio"
)

// Manager is the dispatcher. It owns the mount list, the virtual descriptor
// table, and the real-filesystem primitives. All methods run on the loop
// goroutine.
type Manager struct {
	loop  *eventloop.Loop
	real  *fsio.RealFS
	cache *archive.CacheDir

	mounts []*archive.Archive
	known  *mappings

	trace     *logrus.Logger
	traceFile *os.File

	nextArchiveID int
}

// New creates a Manager bound to loop, with the default cache root.
func New(loop *eventloop.Loop) *Manager {
	return &Manager{
		loop:          loop,
		real:          fsio.NewRealFS(loop),
		cache:         archive.NewCacheDir(""),
		known:         newMappings(),
		nextArchiveID: 1,
	}
}

// Loop returns the loop the manager is bound to.
func (m *Manager) Loop() *eventloop.Loop { return m.loop }

// RealFS returns the real-filesystem primitives, for callers that need to
// bypass routing.
func (m *Manager) RealFS() *fsio.RealFS { return m.real }

// CacheRoot returns the active cache root directory.
func (m *Manager) CacheRoot() string { return m.cache.Root() }

// SetCacheRoot points the manager at a different cache root and creates it.
// Must be called before any Mount.
func (m *Manager) SetCacheRoot(path string) error {
	m.cache = archive.NewCacheDir(path)
	return m.cache.Ensure()
}

// Init consumes the dispatcher's command-line options and performs the
// initial mount when one was requested:
//
//	--archive.path <file>    archive to mount
//	--archive.mount <dir>    mount point
//	--archive.trace          trace wrapped calls to stdout
//	--archive.traceto <file> trace wrapped calls to the named file
func (m *Manager) Init(args []string) error {
	useArchive := false
	var archivePath, mountPoint string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--archive.path":
			useArchive = true
			if i+1 < len(args) {
				archivePath = args[i+1]
			}
		case "--archive.mount":
			useArchive = true
			if i+1 < len(args) {
				mountPoint = args[i+1]
			}
		case "--archive.trace":
			m.EnableTrace(os.Stdout)
		case "--archive.traceto":
			if i+1 < len(args) {
				if err := m.EnableTraceFile(args[i+1]); err != nil {
					fmt.Fprintf(os.Stderr, "Failed --archive.traceto as log file %s failed to be opened\n", args[i+1])
				}
			}
		}
	}

	if err := m.cache.Ensure(); err != nil {
		return err
	}

	if !useArchive {
		return nil
	}

	if archivePath == "" {
		return errors.New("you need to pass an archive using --archive.path")
	}
	if mountPoint == "" {
		return errors.New("you need to pass a mount point using --archive.mount")
	}

	m.tracef("mounting archive:%s to mount:%s", archivePath, mountPoint)

	if err := m.Mount(archivePath, mountPoint); err != nil {
		return fmt.Errorf("mount archive %s at %s: %w", archivePath, mountPoint, err)
	}
	return nil
}

// Mount mounts the archive at archivePath under mountPoint.
func (m *Manager) Mount(archivePath, mountPoint string) error {
	if err := m.cache.Ensure(); err != nil {
		return err
	}

	a := archive.NewArchive(m.loop, m.real, m.cache, m.nextArchiveID, mountPoint, archivePath)
	if err := a.Mount(); err != nil {
		return err
	}

	m.nextArchiveID++
	m.mounts = append(m.mounts, a)
	return nil
}

// Mounts returns the live mount list.
func (m *Manager) Mounts() []*archive.Archive { return m.mounts }

// Release unmounts everything and closes the trace file. The manager must
// not be used afterwards.
func (m *Manager) Release() {
	for _, a := range m.mounts {
		a.Unmount()
	}
	m.mounts = nil

	if m.traceFile != nil {
		m.traceFile.Close()
		m.traceFile = nil
	}
	m.trace = nil
}

// find returns the mount whose mount point is the longest prefix of path,
// anchored at the start of the (NT-stripped) path. Nil means the path
// belongs to the real filesystem.
func (m *Manager) find(path string) *archive.Archive {
	stripped := common.StripNTPrefix(path)

	var best *archive.Archive
	bestLen := 0
	for _, a := range m.mounts {
		mp := a.MountPoint()
		if len(mp) > bestLen && common.HasMountPrefix(mp, stripped) {
			best = a
			bestLen = len(mp)
		}
	}
	return best
}

// TrueFileName resolves a path to the file that actually backs it: the cache
// file for archive members (used for loading shared objects out of mounted
// archives), the path itself for paths no mount owns. A mounted path that is
// not a file entry (a directory or a missing member) yields "".
func (m *Manager) TrueFileName(path string) string {
	a := m.find(path)
	if a == nil {
		return path
	}
	return a.CacheFilePath(path)
}

// EnableTrace writes a line per wrapped call to w.
func (m *Manager) EnableTrace(w io.Writer) {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	m.trace = l
}

// EnableTraceFile traces wrapped calls to the named file.
func (m *Manager) EnableTraceFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	m.traceFile = f
	m.EnableTrace(f)
	return nil
}

func (m *Manager) tracef(format string, args ...any) {
	if m.trace != nil {
		m.trace.Infof(format, args...)
	}
}
