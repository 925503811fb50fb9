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

package archive

import (
	"syscall"

	log "github.com/sirupsen/logrus"

	"archivefs/internal/common"
	"archivefs/internal/fsio"
)

// The per-mount operation handlers. The dispatcher has already set up
// req.Cb: nil means the call is synchronous and the handler returns the
// final result; non-nil means the completion must be delivered through the
// loop, via the deferred scheduler for results produced in memory.

// fillEntryStat writes the stat shape of an archive entry: synthetic device
// and owner fields, a bare mode class, and all four timestamps set to the
// entry's timestamp.
func fillEntryStat(st *fsio.StatBuf, entry Entry) {
	*st = fsio.StatBuf{}

	switch e := entry.(type) {
	case *File:
		st.Mode = fsio.ModeRegular
		st.Size = int64(e.Size)
		ts := fsio.TimespecOf(e.Modified)
		st.Atim, st.Mtim, st.Ctim, st.Birthtim = ts, ts, ts, ts
	case *Dir:
		st.Mode = fsio.ModeDir
		st.Size = 0
		ts := fsio.TimespecOf(e.Modified)
		st.Atim, st.Mtim, st.Ctim, st.Birthtim = ts, ts, ts, ts
	}
}

// finish delivers an in-memory result: directly for sync calls, through the
// deferred scheduler for async ones.
func (a *Archive) finish(req *fsio.Request) int {
	if req.Cb == nil {
		return int(req.Result)
	}
	fsio.Schedule(a.loop, req)
	return 0
}

// FsStat resolves path through the index and fills the stat buffer.
func (a *Archive) FsStat(req *fsio.Request, path string) int {
	parts := common.RelativeParts(a.mountPoint, path)

	entry := a.index.Find(parts)
	if entry == nil {
		req.Result = -int64(syscall.ENOENT)
	} else {
		fillEntryStat(&req.Stat, entry)
		req.Result = 0
	}

	return a.finish(req)
}

// FsFstat stats an entry through the open-file table.
func (a *Archive) FsFstat(req *fsio.Request, realFd int) int {
	entry, ok := a.openFiles[realFd]
	if !ok {
		req.Result = -int64(syscall.EBADF)
	} else {
		fillEntryStat(&req.Stat, entry)
		req.Result = 0
		req.File = realFd
	}

	return a.finish(req)
}

// openShadow links the real open of a cache file back to the caller's
// request, which keeps its own path and result fields untouched until the
// real open completes.
type openShadow struct {
	archive *Archive
	target  *File
	caller  *fsio.Request
}

// FsOpen opens the cache file behind an extracted entry. Directories and
// unknown paths yield ENOENT; an entry whose cache file never materialized
// yields EIO rather than re-extracting on the fly.
func (a *Archive) FsOpen(req *fsio.Request, flags int, path string) int {
	parts := common.RelativeParts(a.mountPoint, path)
	req.Result = 0

	var target *File
	switch entry := a.index.Find(parts).(type) {
	case nil:
		req.Result = -int64(syscall.ENOENT)
	case *Dir:
		req.Result = -int64(syscall.ENOENT)
	case *File:
		if entry.state != Extracted {
			log.Debugf("[MOUNT] open %q: entry %d not extracted", path, entry.ID)
			req.Result = -int64(syscall.EIO)
		} else {
			target = entry
		}
	}

	if req.Result < 0 {
		return a.finish(req)
	}

	cachePath := a.cachePath(target)

	if req.Cb == nil {
		scratch := &fsio.Request{}
		r := a.real.Open(scratch, cachePath, flags, 0o777, nil)
		req.Result = scratch.Result
		if r > 0 {
			a.openFiles[r] = target
			req.File = r
		}
		return r
	}

	// The caller's request already carries its own path and callback; a
	// shadow request performs the real open and hands the result back.
	shadow := &fsio.Request{Data: &openShadow{archive: a, target: target, caller: req}}
	a.real.Open(shadow, cachePath, flags, 0o777, openShadowDone)
	return 0
}

func openShadowDone(shadow *fsio.Request) {
	sh := shadow.Data.(*openShadow)
	caller := sh.caller

	if shadow.Result > 0 {
		real := int(shadow.Result)
		sh.archive.openFiles[real] = sh.target
		caller.File = real
	}
	caller.Result = shadow.Result

	caller.Cb(caller)
}

// FsRead reads from an open cache file. The descriptor must be present in
// the open-file table; the read itself is plain real-file I/O.
func (a *Archive) FsRead(req *fsio.Request, realFd int, bufs [][]byte, offset int64) int {
	if _, ok := a.openFiles[realFd]; !ok {
		req.Result = -int64(syscall.EBADF)
		return a.finish(req)
	}

	return a.real.Read(req, realFd, bufs, offset, req.Cb)
}

// FsClose removes the descriptor from the open-file table and closes the
// cache file.
func (a *Archive) FsClose(req *fsio.Request, realFd int) int {
	if _, ok := a.openFiles[realFd]; !ok {
		req.Result = -int64(syscall.EBADF)
		return a.finish(req)
	}
	delete(a.openFiles, realFd)

	return a.real.Close(req, realFd, req.Cb)
}

// FsScandir enumerates a directory: child directories first, then child
// files, each group in name order. The result is the total child count.
func (a *Archive) FsScandir(req *fsio.Request, path string) int {
	parts := common.RelativeParts(a.mountPoint, path)

	switch entry := a.index.Find(parts).(type) {
	case nil:
		req.Result = -int64(syscall.ENOENT)
	case *File:
		req.Result = -int64(syscall.ENOTDIR)
	case *Dir:
		entries := make([]fsio.Dirent, 0, entry.ChildCount())
		for _, name := range entry.DirNames() {
			entries = append(entries, fsio.Dirent{Name: name, Type: fsio.DirentDir})
		}
		for _, name := range entry.FileNames() {
			entries = append(entries, fsio.Dirent{Name: name, Type: fsio.DirentFile})
		}
		req.SetEntries(entries)
		req.Result = int64(len(entries))
	}

	return a.finish(req)
}
