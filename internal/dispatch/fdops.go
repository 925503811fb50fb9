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
	"syscall"

	"archivefs/internal/fsio"
)

// Descriptor-keyed operations. The virtual descriptor is translated to the
// real one before delegation, and re-exposed on the request after
// completion. A descriptor the table does not know yields EBADF. Mutating
// operations on archive-owned descriptors yield ECANCELED; sync operations
// succeed as no-ops since there is nothing to flush on read-only data.

// badDescriptor resolves an unknown virtual fd: EBADF, sync or deferred.
func (m *Manager) badDescriptor(req *fsio.Request, op fsio.Op, cb fsio.Callback) int {
	req.Init(op, cb)
	req.Result = -int64(syscall.EBADF)
	if cb == nil {
		return int(req.Result)
	}
	fsio.Schedule(m.loop, req)
	return 0
}

// refused resolves a mutating operation against an archive-owned
// descriptor: ECANCELED, sync or deferred.
func (m *Manager) refused(req *fsio.Request, op fsio.Op, virtual int, cb fsio.Callback) int {
	req.Init(op, nil)
	req.Result = -int64(syscall.ECANCELED)
	req.File = virtual
	if cb == nil {
		return int(req.Result)
	}
	m.sheathe(req, cb, virtual, nil)
	req.Cb = restoreDone
	fsio.Schedule(m.loop, req)
	return 0
}

// noop resolves an operation that has no effect on archive data: result 0,
// sync or deferred.
func (m *Manager) noop(req *fsio.Request, op fsio.Op, virtual int, cb fsio.Callback) int {
	req.Init(op, nil)
	req.Result = 0
	req.File = virtual
	if cb == nil {
		return 0
	}
	m.sheathe(req, cb, virtual, nil)
	req.Cb = restoreDone
	fsio.Schedule(m.loop, req)
	return 0
}

// Read reads from a virtual descriptor into bufs.
func (m *Manager) Read(req *fsio.Request, fd int, bufs [][]byte, offset int64, cb fsio.Callback) int {
	m.tracef("fs_read fd:%d", fd)

	src, ok := m.known.get(fd)
	if !ok {
		return m.badDescriptor(req, fsio.OpRead, cb)
	}

	if src.mount != nil {
		req.Init(fsio.OpRead, nil)
		if cb == nil {
			r := src.mount.FsRead(req, src.real, bufs, offset)
			req.File = fd
			return r
		}
		m.sheathe(req, cb, fd, nil)
		req.Cb = restoreDone
		return src.mount.FsRead(req, src.real, bufs, offset)
	}

	if cb == nil {
		r := m.real.Read(req, src.real, bufs, offset, nil)
		req.File = fd
		return r
	}
	m.sheathe(req, cb, fd, nil)
	return m.real.Read(req, src.real, bufs, offset, restoreDone)
}

// Close closes a virtual descriptor and removes its mapping.
func (m *Manager) Close(req *fsio.Request, fd int, cb fsio.Callback) int {
	m.tracef("fs_close fd:%d", fd)

	src, ok := m.known.get(fd)
	if !ok {
		return m.badDescriptor(req, fsio.OpClose, cb)
	}

	if src.mount != nil {
		req.Init(fsio.OpClose, nil)
		if cb == nil {
			r := src.mount.FsClose(req, src.real)
			req.File = fd
			m.known.remove(fd)
			return r
		}
		m.sheathe(req, cb, fd, src.mount)
		req.Cb = closeDone
		return src.mount.FsClose(req, src.real)
	}

	if cb == nil {
		r := m.real.Close(req, src.real, nil)
		req.File = fd
		m.known.remove(fd)
		return r
	}
	m.sheathe(req, cb, fd, nil)
	return m.real.Close(req, src.real, closeDone)
}

// Fstat stats a virtual descriptor.
func (m *Manager) Fstat(req *fsio.Request, fd int, cb fsio.Callback) int {
	m.tracef("fs_fstat fd:%d", fd)

	src, ok := m.known.get(fd)
	if !ok {
		return m.badDescriptor(req, fsio.OpFstat, cb)
	}

	if src.mount != nil {
		req.Init(fsio.OpFstat, nil)
		if cb == nil {
			r := src.mount.FsFstat(req, src.real)
			req.File = fd
			return r
		}
		m.sheathe(req, cb, fd, src.mount)
		req.Cb = restoreDone
		return src.mount.FsFstat(req, src.real)
	}

	if cb == nil {
		r := m.real.Fstat(req, src.real, nil)
		req.File = fd
		return r
	}
	m.sheathe(req, cb, fd, nil)
	return m.real.Fstat(req, src.real, restoreDone)
}

// Write writes to a virtual descriptor. Archive-owned descriptors refuse
// with ECANCELED: members are immutable and the cache must stay bit-true to
// the archive.
func (m *Manager) Write(req *fsio.Request, fd int, bufs [][]byte, offset int64, cb fsio.Callback) int {
	m.tracef("fs_write fd:%d", fd)

	src, ok := m.known.get(fd)
	if !ok {
		return m.badDescriptor(req, fsio.OpWrite, cb)
	}

	if src.mount != nil {
		return m.refused(req, fsio.OpWrite, fd, cb)
	}

	if cb == nil {
		r := m.real.Write(req, src.real, bufs, offset, nil)
		req.File = fd
		return r
	}
	m.sheathe(req, cb, fd, nil)
	return m.real.Write(req, src.real, bufs, offset, restoreDone)
}

// Fsync flushes a virtual descriptor. On archive data there is nothing to
// flush, so it succeeds.
func (m *Manager) Fsync(req *fsio.Request, fd int, cb fsio.Callback) int {
	m.tracef("fs_fsync fd:%d", fd)
	return m.syncLike(req, fsio.OpFsync, fd, cb, m.real.Fsync)
}

// Fdatasync flushes a virtual descriptor's data; a no-op on archive data.
func (m *Manager) Fdatasync(req *fsio.Request, fd int, cb fsio.Callback) int {
	m.tracef("fs_fdatasync fd:%d", fd)
	return m.syncLike(req, fsio.OpFdatasync, fd, cb, m.real.Fdatasync)
}

func (m *Manager) syncLike(req *fsio.Request, op fsio.Op, fd int, cb fsio.Callback,
	real func(*fsio.Request, int, fsio.Callback) int) int {

	src, ok := m.known.get(fd)
	if !ok {
		return m.badDescriptor(req, op, cb)
	}

	if src.mount != nil {
		return m.noop(req, op, fd, cb)
	}

	if cb == nil {
		r := real(req, src.real, nil)
		req.File = fd
		return r
	}
	m.sheathe(req, cb, fd, nil)
	return real(req, src.real, restoreDone)
}

// Ftruncate truncates a virtual descriptor; refused on archive members.
func (m *Manager) Ftruncate(req *fsio.Request, fd int, size int64, cb fsio.Callback) int {
	m.tracef("fs_ftruncate fd:%d", fd)

	src, ok := m.known.get(fd)
	if !ok {
		return m.badDescriptor(req, fsio.OpFtruncate, cb)
	}
	if src.mount != nil {
		return m.refused(req, fsio.OpFtruncate, fd, cb)
	}

	if cb == nil {
		r := m.real.Ftruncate(req, src.real, size, nil)
		req.File = fd
		return r
	}
	m.sheathe(req, cb, fd, nil)
	return m.real.Ftruncate(req, src.real, size, restoreDone)
}

// Sendfile copies between two virtual descriptors. The source may be
// archive-owned (its real descriptor reads a plain cache file); the
// destination may not.
func (m *Manager) Sendfile(req *fsio.Request, outFd, inFd int, inOffset, length int64, cb fsio.Callback) int {
	m.tracef("fs_sendfile out:%d in:%d", outFd, inFd)

	outSrc, okOut := m.known.get(outFd)
	inSrc, okIn := m.known.get(inFd)
	if !okOut || !okIn {
		return m.badDescriptor(req, fsio.OpSendfile, cb)
	}
	if outSrc.mount != nil {
		return m.refused(req, fsio.OpSendfile, outFd, cb)
	}

	if cb == nil {
		return m.real.Sendfile(req, outSrc.real, inSrc.real, inOffset, length, nil)
	}
	m.sheathe(req, cb, 0, nil)
	return m.real.Sendfile(req, outSrc.real, inSrc.real, inOffset, length, passDone)
}

// Futime sets timestamps through a virtual descriptor; refused on archive
// members.
func (m *Manager) Futime(req *fsio.Request, fd int, atime, mtime float64, cb fsio.Callback) int {
	m.tracef("fs_futime fd:%d", fd)

	src, ok := m.known.get(fd)
	if !ok {
		return m.badDescriptor(req, fsio.OpFutime, cb)
	}
	if src.mount != nil {
		return m.refused(req, fsio.OpFutime, fd, cb)
	}

	if cb == nil {
		r := m.real.Futime(req, src.real, atime, mtime, nil)
		req.File = fd
		return r
	}
	m.sheathe(req, cb, fd, nil)
	return m.real.Futime(req, src.real, atime, mtime, restoreDone)
}

// Fchmod changes mode through a virtual descriptor; refused on archive
// members.
func (m *Manager) Fchmod(req *fsio.Request, fd int, mode int, cb fsio.Callback) int {
	m.tracef("fs_fchmod fd:%d", fd)

	src, ok := m.known.get(fd)
	if !ok {
		return m.badDescriptor(req, fsio.OpFchmod, cb)
	}
	if src.mount != nil {
		return m.refused(req, fsio.OpFchmod, fd, cb)
	}

	if cb == nil {
		r := m.real.Fchmod(req, src.real, uint32(mode), nil)
		req.File = fd
		return r
	}
	m.sheathe(req, cb, fd, nil)
	return m.real.Fchmod(req, src.real, uint32(mode), restoreDone)
}

// Fchown changes ownership through a virtual descriptor; refused on archive
// members.
func (m *Manager) Fchown(req *fsio.Request, fd int, uid, gid int, cb fsio.Callback) int {
	m.tracef("fs_fchown fd:%d", fd)

	src, ok := m.known.get(fd)
	if !ok {
		return m.badDescriptor(req, fsio.OpFchown, cb)
	}
	if src.mount != nil {
		return m.refused(req, fsio.OpFchown, fd, cb)
	}

	if cb == nil {
		r := m.real.Fchown(req, src.real, uid, gid, nil)
		req.File = fd
		return r
	}
	m.sheathe(req, cb, fd, nil)
	return m.real.Fchown(req, src.real, uid, gid, restoreDone)
}
