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

package fsio

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"archivefs/internal/eventloop"
)

// RealFS provides the real-filesystem primitives behind the dispatcher. Every
// operation has sync and async forms sharing one signature: a nil callback
// runs the I/O inline and returns the errno-style result; a non-nil callback
// runs the I/O off the loop and delivers the completed request back on it.
//
// RealFS owns the table of real descriptors it has opened. Descriptors it
// hands out are only meaningful against the same RealFS.
type RealFS struct {
	loop *eventloop.Loop

	mu    sync.Mutex
	files map[int]*os.File
}

// NewRealFS creates a RealFS bound to loop.
func NewRealFS(loop *eventloop.Loop) *RealFS {
	return &RealFS{
		loop:  loop,
		files: make(map[int]*os.File),
	}
}

// run executes work inline for sync calls, or off-loop with a loop-delivered
// completion for async ones. work writes its outcome into req.
func (r *RealFS) run(req *Request, cb Callback, work func()) int {
	req.Cb = cb
	if cb == nil {
		work()
		return int(req.Result)
	}

	go func() {
		work()
		r.loop.Post(func() { req.Cb(req) })
	}()
	return 0
}

func (r *RealFS) register(f *os.File) int {
	fd := int(f.Fd())
	r.mu.Lock()
	r.files[fd] = f
	r.mu.Unlock()
	return fd
}

func (r *RealFS) lookup(fd int) *os.File {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[fd]
}

func (r *RealFS) deregister(fd int) *os.File {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.files[fd]
	delete(r.files, fd)
	return f
}

// fillStat populates a StatBuf from a FileInfo. Device and inode numbers are
// not carried; callers that need them should stat through the OS directly.
func fillStat(st *StatBuf, info os.FileInfo) {
	*st = StatBuf{}
	st.Mode = uint32(info.Mode().Perm())
	switch {
	case info.IsDir():
		st.Mode |= ModeDir
	case info.Mode()&os.ModeSymlink != 0:
		st.Mode |= ModeSymlink
	default:
		st.Mode |= ModeRegular
	}
	st.Nlink = 1
	st.Size = info.Size()
	ts := TimespecOf(info.ModTime())
	st.Atim, st.Mtim, st.Ctim, st.Birthtim = ts, ts, ts, ts
}

// Open opens path and registers the resulting descriptor. Result is the real
// descriptor on success.
func (r *RealFS) Open(req *Request, path string, flags int, mode uint32, cb Callback) int {
	req.Init(OpOpen, cb)
	req.Path = path
	return r.run(req, cb, func() {
		f, err := os.OpenFile(path, flags, os.FileMode(mode&0o777))
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		fd := r.register(f)
		req.Result = int64(fd)
		req.File = fd
	})
}

// Close closes a registered descriptor.
func (r *RealFS) Close(req *Request, fd int, cb Callback) int {
	req.Init(OpClose, cb)
	return r.run(req, cb, func() {
		f := r.deregister(fd)
		if f == nil {
			req.Result = -int64(syscall.EBADF)
			return
		}
		if err := f.Close(); err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Result = 0
		req.File = fd
	})
}

// Read fills bufs from fd in order. A negative offset reads from the current
// file position. Result is the total byte count; 0 signals end of file.
func (r *RealFS) Read(req *Request, fd int, bufs [][]byte, offset int64, cb Callback) int {
	req.Init(OpRead, cb)
	return r.run(req, cb, func() {
		f := r.lookup(fd)
		if f == nil {
			req.Result = -int64(syscall.EBADF)
			return
		}

		total := 0
		for _, b := range bufs {
			var n int
			var err error
			if offset < 0 {
				n, err = f.Read(b)
			} else {
				n, err = f.ReadAt(b, offset)
				offset += int64(n)
			}
			total += n
			if err == io.EOF {
				break
			}
			if err != nil {
				if total == 0 {
					req.Result = ErrnoResult(err)
					return
				}
				break
			}
			if n < len(b) {
				break
			}
		}
		req.Result = int64(total)
		req.File = fd
	})
}

// Write writes bufs to fd in order. A negative offset writes at the current
// file position.
func (r *RealFS) Write(req *Request, fd int, bufs [][]byte, offset int64, cb Callback) int {
	req.Init(OpWrite, cb)
	return r.run(req, cb, func() {
		f := r.lookup(fd)
		if f == nil {
			req.Result = -int64(syscall.EBADF)
			return
		}

		total := 0
		for _, b := range bufs {
			var n int
			var err error
			if offset < 0 {
				n, err = f.Write(b)
			} else {
				n, err = f.WriteAt(b, offset)
				offset += int64(n)
			}
			total += n
			if err != nil {
				if total == 0 {
					req.Result = ErrnoResult(err)
					return
				}
				break
			}
		}
		req.Result = int64(total)
		req.File = fd
	})
}

// Stat stats path following symlinks.
func (r *RealFS) Stat(req *Request, path string, cb Callback) int {
	req.Init(OpStat, cb)
	req.Path = path
	return r.run(req, cb, func() {
		info, err := os.Stat(path)
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		fillStat(&req.Stat, info)
		req.Result = 0
	})
}

// Lstat stats path without following a final symlink.
func (r *RealFS) Lstat(req *Request, path string, cb Callback) int {
	req.Init(OpLstat, cb)
	req.Path = path
	return r.run(req, cb, func() {
		info, err := os.Lstat(path)
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		fillStat(&req.Stat, info)
		req.Result = 0
	})
}

// Fstat stats a registered descriptor.
func (r *RealFS) Fstat(req *Request, fd int, cb Callback) int {
	req.Init(OpFstat, cb)
	return r.run(req, cb, func() {
		f := r.lookup(fd)
		if f == nil {
			req.Result = -int64(syscall.EBADF)
			return
		}
		info, err := f.Stat()
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		fillStat(&req.Stat, info)
		req.Result = 0
		req.File = fd
	})
}

// Scandir lists a directory. Result is the entry count; entries are consumed
// through Request.NextEntry.
func (r *RealFS) Scandir(req *Request, path string, cb Callback) int {
	req.Init(OpScandir, cb)
	req.Path = path
	return r.run(req, cb, func() {
		listing, err := os.ReadDir(path)
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		entries := make([]Dirent, 0, len(listing))
		for _, e := range listing {
			t := DirentFile
			if e.IsDir() {
				t = DirentDir
			}
			entries = append(entries, Dirent{Name: e.Name(), Type: t})
		}
		req.SetEntries(entries)
		req.Result = int64(len(entries))
	})
}

// Realpath resolves path to an absolute path with symlinks evaluated. The
// result lands in req.Ptr.
func (r *RealFS) Realpath(req *Request, path string, cb Callback) int {
	req.Init(OpRealpath, cb)
	req.Path = path
	return r.run(req, cb, func() {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		abs, err := filepath.Abs(resolved)
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Ptr = abs
		req.Result = 0
	})
}

// Fsync flushes fd's data and metadata.
func (r *RealFS) Fsync(req *Request, fd int, cb Callback) int {
	req.Init(OpFsync, cb)
	return r.syncImpl(req, fd, cb)
}

// Fdatasync flushes fd's data.
func (r *RealFS) Fdatasync(req *Request, fd int, cb Callback) int {
	req.Init(OpFdatasync, cb)
	return r.syncImpl(req, fd, cb)
}

func (r *RealFS) syncImpl(req *Request, fd int, cb Callback) int {
	return r.run(req, cb, func() {
		f := r.lookup(fd)
		if f == nil {
			req.Result = -int64(syscall.EBADF)
			return
		}
		if err := f.Sync(); err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Result = 0
		req.File = fd
	})
}

// Ftruncate truncates fd to size.
func (r *RealFS) Ftruncate(req *Request, fd int, size int64, cb Callback) int {
	req.Init(OpFtruncate, cb)
	return r.run(req, cb, func() {
		f := r.lookup(fd)
		if f == nil {
			req.Result = -int64(syscall.EBADF)
			return
		}
		if err := f.Truncate(size); err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Result = 0
		req.File = fd
	})
}

// Sendfile copies length bytes from inFd (starting at inOffset) to outFd's
// current position. Result is the byte count copied.
func (r *RealFS) Sendfile(req *Request, outFd, inFd int, inOffset, length int64, cb Callback) int {
	req.Init(OpSendfile, cb)
	return r.run(req, cb, func() {
		in := r.lookup(inFd)
		out := r.lookup(outFd)
		if in == nil || out == nil {
			req.Result = -int64(syscall.EBADF)
			return
		}
		n, err := io.Copy(out, io.NewSectionReader(in, inOffset, length))
		if err != nil && n == 0 {
			req.Result = ErrnoResult(err)
			return
		}
		req.Result = n
	})
}

func timeFromSeconds(sec float64) time.Time {
	whole := int64(sec)
	frac := sec - float64(whole)
	return time.Unix(whole, int64(frac*1e9))
}

// Futime sets fd's access and modification times (seconds since the epoch).
func (r *RealFS) Futime(req *Request, fd int, atime, mtime float64, cb Callback) int {
	req.Init(OpFutime, cb)
	return r.run(req, cb, func() {
		f := r.lookup(fd)
		if f == nil {
			req.Result = -int64(syscall.EBADF)
			return
		}
		if err := os.Chtimes(f.Name(), timeFromSeconds(atime), timeFromSeconds(mtime)); err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Result = 0
		req.File = fd
	})
}

// Fchmod changes fd's permission bits.
func (r *RealFS) Fchmod(req *Request, fd int, mode uint32, cb Callback) int {
	req.Init(OpFchmod, cb)
	return r.run(req, cb, func() {
		f := r.lookup(fd)
		if f == nil {
			req.Result = -int64(syscall.EBADF)
			return
		}
		if err := f.Chmod(os.FileMode(mode & 0o777)); err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Result = 0
		req.File = fd
	})
}

// Fchown changes fd's owner.
func (r *RealFS) Fchown(req *Request, fd int, uid, gid int, cb Callback) int {
	req.Init(OpFchown, cb)
	return r.run(req, cb, func() {
		f := r.lookup(fd)
		if f == nil {
			req.Result = -int64(syscall.EBADF)
			return
		}
		if err := f.Chown(uid, gid); err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Result = 0
		req.File = fd
	})
}

// Mkdir creates a directory.
func (r *RealFS) Mkdir(req *Request, path string, mode uint32, cb Callback) int {
	req.Init(OpMkdir, cb)
	req.Path = path
	return r.run(req, cb, func() {
		if err := os.Mkdir(path, os.FileMode(mode&0o777)); err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Result = 0
	})
}

// Mkdtemp creates a unique directory from a template whose trailing run of
// 'X' characters is replaced. The created path lands in req.Ptr.
func (r *RealFS) Mkdtemp(req *Request, template string, cb Callback) int {
	req.Init(OpMkdtemp, cb)
	req.Path = template
	return r.run(req, cb, func() {
		base := strings.TrimRight(template, "X")
		pad := len(template) - len(base)
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
		if pad > 0 && pad < len(suffix) {
			suffix = suffix[:pad]
		}
		path := base + suffix
		if err := os.Mkdir(path, 0o700); err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Ptr = path
		req.Result = 0
	})
}

// Rmdir removes an empty directory.
func (r *RealFS) Rmdir(req *Request, path string, cb Callback) int {
	req.Init(OpRmdir, cb)
	req.Path = path
	return r.pathOp(req, cb, func() error { return os.Remove(path) })
}

// Unlink removes a file.
func (r *RealFS) Unlink(req *Request, path string, cb Callback) int {
	req.Init(OpUnlink, cb)
	req.Path = path
	return r.pathOp(req, cb, func() error { return os.Remove(path) })
}

// Rename moves path to newPath.
func (r *RealFS) Rename(req *Request, path, newPath string, cb Callback) int {
	req.Init(OpRename, cb)
	req.Path = path
	req.NewPath = newPath
	return r.pathOp(req, cb, func() error { return os.Rename(path, newPath) })
}

// Access checks path for the requested permission bits (4 read, 2 write,
// 1 execute; 0 tests bare existence).
func (r *RealFS) Access(req *Request, path string, mode int, cb Callback) int {
	req.Init(OpAccess, cb)
	req.Path = path
	return r.run(req, cb, func() {
		info, err := os.Stat(path)
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		perm := info.Mode().Perm()
		for _, want := range []struct {
			bit  int
			mask os.FileMode
		}{{4, 0o444}, {2, 0o222}, {1, 0o111}} {
			if mode&want.bit != 0 && perm&want.mask == 0 {
				req.Result = -int64(syscall.EACCES)
				return
			}
		}
		req.Result = 0
	})
}

// Chmod changes path's permission bits.
func (r *RealFS) Chmod(req *Request, path string, mode uint32, cb Callback) int {
	req.Init(OpChmod, cb)
	req.Path = path
	return r.pathOp(req, cb, func() error { return os.Chmod(path, os.FileMode(mode&0o777)) })
}

// Utime sets path's access and modification times (seconds since the epoch).
func (r *RealFS) Utime(req *Request, path string, atime, mtime float64, cb Callback) int {
	req.Init(OpUtime, cb)
	req.Path = path
	return r.pathOp(req, cb, func() error {
		return os.Chtimes(path, timeFromSeconds(atime), timeFromSeconds(mtime))
	})
}

// Link creates a hard link newPath pointing at path.
func (r *RealFS) Link(req *Request, path, newPath string, cb Callback) int {
	req.Init(OpLink, cb)
	req.Path = path
	req.NewPath = newPath
	return r.pathOp(req, cb, func() error { return os.Link(path, newPath) })
}

// Symlink creates a symlink newPath pointing at path.
func (r *RealFS) Symlink(req *Request, path, newPath string, cb Callback) int {
	req.Init(OpSymlink, cb)
	req.Path = path
	req.NewPath = newPath
	return r.pathOp(req, cb, func() error { return os.Symlink(path, newPath) })
}

// Readlink reads a symlink's target into req.Ptr.
func (r *RealFS) Readlink(req *Request, path string, cb Callback) int {
	req.Init(OpReadlink, cb)
	req.Path = path
	return r.run(req, cb, func() {
		target, err := os.Readlink(path)
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Ptr = target
		req.Result = 0
	})
}

// Chown changes path's owner, following symlinks.
func (r *RealFS) Chown(req *Request, path string, uid, gid int, cb Callback) int {
	req.Init(OpChown, cb)
	req.Path = path
	return r.pathOp(req, cb, func() error { return os.Chown(path, uid, gid) })
}

// Lchown changes path's owner without following a final symlink.
func (r *RealFS) Lchown(req *Request, path string, uid, gid int, cb Callback) int {
	req.Init(OpLchown, cb)
	req.Path = path
	return r.pathOp(req, cb, func() error { return os.Lchown(path, uid, gid) })
}

// CopyfileExcl makes Copyfile fail if the destination already exists.
const CopyfileExcl = 1

// Copyfile copies path to newPath.
func (r *RealFS) Copyfile(req *Request, path, newPath string, flags int, cb Callback) int {
	req.Init(OpCopyfile, cb)
	req.Path = path
	req.NewPath = newPath
	return r.run(req, cb, func() {
		if flags&CopyfileExcl != 0 {
			if _, err := os.Lstat(newPath); err == nil {
				req.Result = -int64(syscall.EEXIST)
				return
			}
		}
		src, err := os.Open(path)
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		defer src.Close()

		info, err := src.Stat()
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}

		dst, err := os.OpenFile(newPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}

		_, err = io.Copy(dst, src)
		if closeErr := dst.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Result = 0
	})
}

func (r *RealFS) pathOp(req *Request, cb Callback, op func() error) int {
	return r.run(req, cb, func() {
		if err := op(); err != nil {
			req.Result = ErrnoResult(err)
			return
		}
		req.Result = 0
	})
}
