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

package dispatch

import (
	"archivefs/internal/fsio"
)

// Path-keyed operations. Each one routes by longest mount-point prefix; a
// path no mount owns goes straight to the real filesystem. Mutating
// path-keyed operations are pure pass-throughs: against archive paths they
// fail naturally because nothing real exists there.

// Open opens path and returns a virtual descriptor. For archive members the
// open is retargeted at the entry's cache file.
func (m *Manager) Open(req *fsio.Request, path string, flags, mode int, cb fsio.Callback) int {
	m.tracef("fs_open path:%s", path)

	target := m.find(path)
	if target == nil {
		if cb == nil {
			r := m.real.Open(req, path, flags, uint32(mode), nil)
			if r > 0 {
				virtual := m.known.insert(int(req.Result), nil)
				req.Result = int64(virtual)
				req.File = virtual
				return virtual
			}
			return r
		}
		m.sheathe(req, cb, 0, nil)
		return m.real.Open(req, path, flags, uint32(mode), openDone)
	}

	req.Init(fsio.OpOpen, nil)
	req.Path = path

	if cb == nil {
		r := target.FsOpen(req, flags, path)
		if r > 0 {
			virtual := m.known.insert(int(req.Result), target)
			req.Result = int64(virtual)
			req.File = virtual
			return virtual
		}
		return r
	}

	m.sheathe(req, cb, 0, target)
	req.Cb = openDone
	return target.FsOpen(req, flags, path)
}

// Stat stats path, following symlinks on the real filesystem.
func (m *Manager) Stat(req *fsio.Request, path string, cb fsio.Callback) int {
	m.tracef("fs_stat path:%s", path)
	return m.statLike(req, fsio.OpStat, path, cb, m.real.Stat)
}

// Lstat stats path without following a final symlink. Archive entries hold
// no symlinks, so on a mount this is Stat.
func (m *Manager) Lstat(req *fsio.Request, path string, cb fsio.Callback) int {
	m.tracef("fs_lstat path:%s", path)
	return m.statLike(req, fsio.OpLstat, path, cb, m.real.Lstat)
}

func (m *Manager) statLike(req *fsio.Request, op fsio.Op, path string, cb fsio.Callback,
	real func(*fsio.Request, string, fsio.Callback) int) int {

	target := m.find(path)
	if target == nil {
		if cb == nil {
			return real(req, path, nil)
		}
		m.sheathe(req, cb, 0, nil)
		return real(req, path, passDone)
	}

	req.Init(op, nil)
	req.Path = path
	if cb != nil {
		m.sheathe(req, cb, 0, target)
		req.Cb = passDone
	}
	return target.FsStat(req, path)
}

// Scandir lists a directory. Archive listings come back directories first,
// then files, each group in name order; consume them with ScandirNext.
func (m *Manager) Scandir(req *fsio.Request, path string, flags int, cb fsio.Callback) int {
	m.tracef("fs_scandir path:%s", path)

	target := m.find(path)
	if target == nil {
		if cb == nil {
			return m.real.Scandir(req, path, nil)
		}
		m.sheathe(req, cb, 0, nil)
		return m.real.Scandir(req, path, passDone)
	}

	req.Init(fsio.OpScandir, nil)
	req.Path = path
	if cb != nil {
		m.sheathe(req, cb, 0, target)
		req.Cb = passDone
	}
	return target.FsScandir(req, path)
}

// ScandirNext pops the next entry from a completed scandir request. Returns
// fsio.EOF once the listing is exhausted.
func (m *Manager) ScandirNext(req *fsio.Request, ent *fsio.Dirent) int {
	return req.NextEntry(ent)
}

// Realpath resolves path. An archive path resolves to itself: members have
// no other name in the virtual namespace (TrueFileName answers cache-file
// queries explicitly).
func (m *Manager) Realpath(req *fsio.Request, path string, cb fsio.Callback) int {
	m.tracef("fs_realpath path:%s", path)

	target := m.find(path)
	if target == nil {
		if cb == nil {
			return m.real.Realpath(req, path, nil)
		}
		m.sheathe(req, cb, 0, nil)
		return m.real.Realpath(req, path, passDone)
	}

	req.Init(fsio.OpRealpath, nil)
	req.Path = path
	req.Ptr = path
	req.Result = 0

	if cb == nil {
		return 0
	}
	m.sheathe(req, cb, 0, target)
	req.Cb = passDone
	fsio.Schedule(m.loop, req)
	return 0
}

// Access checks permissions on path.
func (m *Manager) Access(req *fsio.Request, path string, mode int, cb fsio.Callback) int {
	m.tracef("fs_access path:%s", path)
	return m.real.Access(req, path, mode, cb)
}

// Mkdir creates a directory on the real filesystem.
func (m *Manager) Mkdir(req *fsio.Request, path string, mode int, cb fsio.Callback) int {
	m.tracef("fs_mkdir path:%s", path)
	return m.real.Mkdir(req, path, uint32(mode), cb)
}

// Mkdtemp creates a unique directory from a template.
func (m *Manager) Mkdtemp(req *fsio.Request, template string, cb fsio.Callback) int {
	m.tracef("fs_mkdtemp template:%s", template)
	return m.real.Mkdtemp(req, template, cb)
}

// Rmdir removes an empty directory.
func (m *Manager) Rmdir(req *fsio.Request, path string, cb fsio.Callback) int {
	m.tracef("fs_rmdir path:%s", path)
	return m.real.Rmdir(req, path, cb)
}

// Unlink removes a file.
func (m *Manager) Unlink(req *fsio.Request, path string, cb fsio.Callback) int {
	m.tracef("fs_unlink path:%s", path)
	return m.real.Unlink(req, path, cb)
}

// Rename moves path to newPath.
func (m *Manager) Rename(req *fsio.Request, path, newPath string, cb fsio.Callback) int {
	m.tracef("fs_rename path:%s new:%s", path, newPath)
	return m.real.Rename(req, path, newPath, cb)
}

// Chmod changes permission bits.
func (m *Manager) Chmod(req *fsio.Request, path string, mode int, cb fsio.Callback) int {
	m.tracef("fs_chmod path:%s", path)
	return m.real.Chmod(req, path, uint32(mode), cb)
}

// Utime sets access and modification times.
func (m *Manager) Utime(req *fsio.Request, path string, atime, mtime float64, cb fsio.Callback) int {
	m.tracef("fs_utime path:%s", path)
	return m.real.Utime(req, path, atime, mtime, cb)
}

// Link creates a hard link.
func (m *Manager) Link(req *fsio.Request, path, newPath string, cb fsio.Callback) int {
	m.tracef("fs_link path:%s new:%s", path, newPath)
	return m.real.Link(req, path, newPath, cb)
}

// Symlink creates a symbolic link.
func (m *Manager) Symlink(req *fsio.Request, path, newPath string, flags int, cb fsio.Callback) int {
	m.tracef("fs_symlink path:%s new:%s", path, newPath)
	return m.real.Symlink(req, path, newPath, cb)
}

// Readlink reads a symlink target.
func (m *Manager) Readlink(req *fsio.Request, path string, cb fsio.Callback) int {
	m.tracef("fs_readlink path:%s", path)
	return m.real.Readlink(req, path, cb)
}

// Chown changes ownership.
func (m *Manager) Chown(req *fsio.Request, path string, uid, gid int, cb fsio.Callback) int {
	m.tracef("fs_chown path:%s", path)
	return m.real.Chown(req, path, uid, gid, cb)
}

// Lchown changes ownership without following a final symlink.
func (m *Manager) Lchown(req *fsio.Request, path string, uid, gid int, cb fsio.Callback) int {
	m.tracef("fs_lchown path:%s", path)
	return m.real.Lchown(req, path, uid, gid, cb)
}

// Copyfile copies path to newPath.
func (m *Manager) Copyfile(req *fsio.Request, path, newPath string, flags int, cb fsio.Callback) int {
	m.tracef("fs_copyfile path:%s new:%s", path, newPath)
	return m.real.Copyfile(req, path, newPath, flags, cb)
}
