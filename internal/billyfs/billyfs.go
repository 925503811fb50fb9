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

// Package billyfs adapts the dispatcher to the Billy filesystem interface so
// tooling built against billy can walk the unified namespace, archive mounts
// included. The adapter is read-only: every mutating entry point fails with
// EROFS, and opens are restricted to O_RDONLY.
package billyfs

import (
	"io"
	"os"
	"path"
	"syscall"
	"time"

	billy "github.com/go-git/go-billy/v5"

	"archivefs/internal/dispatch"
	"archivefs/internal/fsio"
)

// FS exposes a dispatch.Manager as a read-only billy.Filesystem. All calls
// use the dispatcher's synchronous form, so FS must only be used from the
// loop goroutine.
type FS struct {
	m *dispatch.Manager
}

// New wraps a manager.
func New(m *dispatch.Manager) *FS {
	return &FS{m: m}
}

func pathErr(op, name string, result int) error {
	return &os.PathError{Op: op, Path: name, Err: syscall.Errno(-result)}
}

func readOnlyErr(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: syscall.EROFS}
}

// writeFlags are the open flags a read-only view refuses.
const writeFlags = os.O_WRONLY | os.O_RDWR | os.O_CREATE | os.O_TRUNC | os.O_APPEND

func (fs *FS) Create(filename string) (billy.File, error) {
	return nil, readOnlyErr("create", filename)
}

func (fs *FS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *FS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&writeFlags != 0 {
		return nil, readOnlyErr("open", filename)
	}

	req := &fsio.Request{}
	fd := fs.m.Open(req, filename, flag, int(perm), nil)
	if fd < 0 {
		return nil, pathErr("open", filename, fd)
	}
	return &file{fs: fs, fd: fd, name: filename}, nil
}

func (fs *FS) Stat(filename string) (os.FileInfo, error) {
	req := &fsio.Request{}
	if r := fs.m.Stat(req, filename, nil); r < 0 {
		return nil, pathErr("stat", filename, r)
	}
	return &fileInfo{name: path.Base(filename), stat: req.Stat}, nil
}

func (fs *FS) Lstat(filename string) (os.FileInfo, error) {
	req := &fsio.Request{}
	if r := fs.m.Lstat(req, filename, nil); r < 0 {
		return nil, pathErr("lstat", filename, r)
	}
	return &fileInfo{name: path.Base(filename), stat: req.Stat}, nil
}

func (fs *FS) ReadDir(dirname string) ([]os.FileInfo, error) {
	req := &fsio.Request{}
	if r := fs.m.Scandir(req, dirname, 0, nil); r < 0 {
		return nil, pathErr("scandir", dirname, r)
	}

	var result []os.FileInfo
	var ent fsio.Dirent
	for fs.m.ScandirNext(req, &ent) == 0 {
		info, err := fs.Stat(fs.Join(dirname, ent.Name))
		if err != nil {
			continue
		}
		result = append(result, &fileInfo{name: ent.Name, stat: info.(*fileInfo).stat})
	}
	return result, nil
}

func (fs *FS) Rename(oldpath, newpath string) error {
	return readOnlyErr("rename", oldpath)
}

func (fs *FS) Remove(filename string) error {
	return readOnlyErr("remove", filename)
}

func (fs *FS) MkdirAll(filename string, perm os.FileMode) error {
	return readOnlyErr("mkdir", filename)
}

func (fs *FS) Symlink(target, link string) error {
	return readOnlyErr("symlink", link)
}

func (fs *FS) Readlink(link string) (string, error) {
	req := &fsio.Request{}
	if r := fs.m.Readlink(req, link, nil); r < 0 {
		return "", pathErr("readlink", link, r)
	}
	return req.Ptr, nil
}

func (fs *FS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, readOnlyErr("tempfile", dir)
}

func (fs *FS) Join(elem ...string) string {
	return path.Join(elem...)
}

func (fs *FS) Chroot(path string) (billy.Filesystem, error) {
	return nil, os.ErrInvalid
}

func (fs *FS) Root() string {
	return "/"
}

func (fs *FS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

// file is an open read-only descriptor seen through billy.
type file struct {
	fs     *FS
	fd     int
	name   string
	offset int64
}

func (f *file) Name() string { return f.name }

func (f *file) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	req := &fsio.Request{}
	r := f.fs.m.Read(req, f.fd, [][]byte{p}, off, nil)
	if r < 0 {
		return 0, pathErr("read", f.name, r)
	}
	if r == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return r, nil
}

func (f *file) Write(p []byte) (int, error) {
	return 0, readOnlyErr("write", f.name)
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		req := &fsio.Request{}
		if r := f.fs.m.Fstat(req, f.fd, nil); r < 0 {
			return 0, pathErr("seek", f.name, r)
		}
		f.offset = req.Stat.Size + offset
	}
	return f.offset, nil
}

func (f *file) Close() error {
	req := &fsio.Request{}
	if r := f.fs.m.Close(req, f.fd, nil); r < 0 {
		return pathErr("close", f.name, r)
	}
	return nil
}

func (f *file) Truncate(size int64) error {
	return readOnlyErr("truncate", f.name)
}

func (f *file) Lock() error   { return nil }
func (f *file) Unlock() error { return nil }

// fileInfo wraps a StatBuf as os.FileInfo.
type fileInfo struct {
	name string
	stat fsio.StatBuf
}

func (fi *fileInfo) Name() string { return fi.name }
func (fi *fileInfo) Size() int64  { return fi.stat.Size }

func (fi *fileInfo) Mode() os.FileMode {
	perm := os.FileMode(fi.stat.Mode & 0o777)
	if fi.stat.IsDir() {
		if perm == 0 {
			perm = 0o755
		}
		return os.ModeDir | perm
	}
	if perm == 0 {
		perm = 0o644
	}
	return perm
}

func (fi *fileInfo) ModTime() time.Time {
	return time.Unix(fi.stat.Mtim.Sec, fi.stat.Mtim.Nsec)
}

func (fi *fileInfo) IsDir() bool { return fi.stat.IsDir() }
func (fi *fileInfo) Sys() any    { return nil }

var (
	_ billy.Filesystem = (*FS)(nil)
	_ billy.File       = (*file)(nil)
)
