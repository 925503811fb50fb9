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
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zip"
	log "github.com/sirupsen/logrus"

	"archivefs/internal/common"
	"archivefs/internal/eventloop"
	"archivefs/internal/fsio"
)

// Archive is one mounted ZIP container: the parsed index, the extraction
// cache for its members, and the table of members currently open through the
// dispatcher. All methods run on the loop goroutine.
type Archive struct {
	id          int
	mountPoint  string
	archivePath string

	loop  *eventloop.Loop
	real  *fsio.RealFS
	cache *CacheDir

	file     *os.File
	reader   *zip.Reader
	zipFiles []*zip.File
	index    *Index
	lock     *flock.Flock

	// openFiles maps real descriptors of open cache files to their entries.
	openFiles map[int]*File

	digest         string
	extractOnMount bool
	unsafe         bool
}

// NewArchive creates an unmounted archive bound to a mount point.
func NewArchive(loop *eventloop.Loop, real *fsio.RealFS, cache *CacheDir, id int, mountPoint, archivePath string) *Archive {
	return &Archive{
		id:          id,
		mountPoint:  mountPoint,
		archivePath: archivePath,
		loop:        loop,
		real:        real,
		cache:       cache,
	}
}

// MountPoint returns the virtual path prefix the archive root appears under.
func (a *Archive) MountPoint() string { return a.mountPoint }

// ArchivePath returns the on-disk path of the ZIP container.
func (a *Archive) ArchivePath() string { return a.archivePath }

// Index returns the parsed entry tree; nil before Mount.
func (a *Archive) Index() *Index { return a.index }

// IsMounted reports whether Mount has completed without a later Unmount.
func (a *Archive) IsMounted() bool { return a.reader != nil }

// Unsafe reports whether cache I/O failed at some point; entries affected
// stay NotExtracted and opens against them fail.
func (a *Archive) Unsafe() bool { return a.unsafe }

// Mount opens the container, binds its cache subdirectory, parses the
// central directory into the index, and materializes (first mount) or
// validates (remount) each member's cache file. Mounting is synchronous and
// blocks the loop.
func (a *Archive) Mount() error {
	if a.IsMounted() {
		return common.ErrAlreadyMounted
	}

	f, err := os.Open(a.archivePath)
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrArchiveNotFound, a.archivePath)
	}

	digest, err := FileMD5(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: digest %s: %v", common.ErrArchiveNotFound, a.archivePath, err)
	}

	subdir := a.cache.ArchiveDir(digest)
	extractOnMount := false
	if _, err := os.Stat(subdir); err != nil {
		if err := os.Mkdir(subdir, 0o777); err != nil {
			f.Close()
			return fmt.Errorf("%w: %s", common.ErrFailedToCreateCache, subdir)
		}
		extractOnMount = true
	}

	lock := flock.New(filepath.Join(subdir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		f.Close()
		return fmt.Errorf("%w: %s", common.ErrCacheLocked, subdir)
	}

	info, err := f.Stat()
	if err != nil {
		lock.Unlock()
		f.Close()
		return fmt.Errorf("%w: %s", common.ErrArchiveInvalid, a.archivePath)
	}

	reader, err := zip.NewReader(f, info.Size())
	if err != nil {
		lock.Unlock()
		f.Close()
		return fmt.Errorf("%w: %s: %v", common.ErrArchiveInvalid, a.archivePath, err)
	}

	a.file = f
	a.reader = reader
	a.zipFiles = reader.File
	a.index = NewIndex()
	a.lock = lock
	a.openFiles = make(map[int]*File)
	a.digest = digest
	a.extractOnMount = extractOnMount

	log.Debugf("[MOUNT] %s at %q digest=%s extract=%v entries=%d",
		a.archivePath, a.mountPoint, digest, extractOnMount, len(reader.File))

	for i, zf := range reader.File {
		offset, _ := zf.DataOffset()
		rec := EntryRecord{
			ID:       i,
			Size:     zf.UncompressedSize64,
			Offset:   offset,
			Modified: DOSTime(zf.ModifiedDate, zf.ModifiedTime),
		}

		entry := a.index.Add(zf.Name, rec)
		file, ok := entry.(*File)
		if !ok {
			continue
		}

		if a.extractOnMount {
			a.extract(file)
		} else {
			a.validate(file)
		}
	}

	return nil
}

// Unmount closes the container and drops the index and open-file table. The
// on-disk cache stays behind so a remount can skip extraction.
func (a *Archive) Unmount() {
	if !a.IsMounted() {
		return
	}

	log.Debugf("[MOUNT] unmounting %s from %q", a.archivePath, a.mountPoint)

	if a.lock != nil {
		a.lock.Unlock()
		a.lock = nil
	}
	a.file.Close()
	a.file = nil
	a.reader = nil
	a.zipFiles = nil
	a.index = nil
	a.openFiles = nil
}

// cachePath returns the cache file path for a file entry.
func (a *Archive) cachePath(f *File) string {
	return a.cache.EntryPath(a.digest, f.ID)
}

// CacheFilePath resolves a full virtual path to its cache file path. Empty
// for directories and unknown paths.
func (a *Archive) CacheFilePath(fullPath string) string {
	parts := common.RelativeParts(a.mountPoint, fullPath)
	if f, ok := a.index.Find(parts).(*File); ok {
		return a.cachePath(f)
	}
	return ""
}

// extract inflates a member into its cache file. Only a NotExtracted entry
// triggers work; any failure reverts the entry so a later open yields EIO
// instead of serving a half-written cache file.
func (a *Archive) extract(f *File) {
	if f.state != NotExtracted {
		return
	}
	f.state = Extracting

	zf := a.zipFiles[f.ID]

	rc, err := zf.Open()
	if err != nil {
		log.Warnf("[MOUNT] open entry %d (%s): %v", f.ID, zf.Name, err)
		f.state = NotExtracted
		return
	}

	buf := make([]byte, f.Size)
	_, err = io.ReadFull(rc, buf)
	rc.Close()
	if err != nil {
		log.Warnf("[MOUNT] decompress entry %d (%s): %v", f.ID, zf.Name, err)
		f.state = NotExtracted
		return
	}

	path := a.cachePath(f)
	if err := os.WriteFile(path, buf, 0o666); err != nil {
		log.Warnf("[MOUNT] write cache file %s: %v", path, err)
		a.unsafe = true
		f.state = NotExtracted
		return
	}

	f.state = Extracted
}

// validate checks that a remounted entry's cache file is openable. A failure
// latches the unsafe flag and leaves the entry NotExtracted; the mount itself
// carries on.
func (a *Archive) validate(f *File) {
	if f.state != NotExtracted {
		return
	}
	f.state = Extracting

	path := a.cachePath(f)
	cf, err := os.Open(path)
	if err != nil {
		log.Warnf("[MOUNT] validate cache file %s: %v", path, err)
		f.state = NotExtracted
		a.unsafe = true
		return
	}
	cf.Close()
	f.state = Extracted
}

// ExtractTo unpacks every member of the archive at archivePath under destDir,
// recreating the directory structure. Used by the extract command; mounting
// is not involved.
func ExtractTo(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		target := filepath.Join(destDir, filepath.FromSlash(zf.Name))

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o777); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o777); err != nil {
			return fmt.Errorf("create directory %s: %w", filepath.Dir(target), err)
		}

		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("open entry %s: %w", zf.Name, err)
		}

		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return fmt.Errorf("create %s: %w", target, err)
		}

		_, err = io.Copy(out, rc)
		rc.Close()
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("extract %s: %w", zf.Name, err)
		}
	}

	return nil
}
