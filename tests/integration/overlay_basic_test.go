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
	"os"
	"syscall"
	"testing"

	. "github.com/onsi/gomega"

	"archivefs/internal/fsio"
	"archivefs/internal/ziptest"
)

// TestOverlayBasic exercises the everyday call sequence a host runtime
// issues against a freshly extracted mount.
func TestOverlayBasic(t *testing.T) {
	ov := newOverlay(t)
	m := ov.manager

	t.Run("scandir of the mount root returns 2 dirs and 5 files", func(t *testing.T) {
		g := NewWithT(t)

		req := &fsio.Request{}
		r := m.Scandir(req, mountPoint+"/", 0, nil)
		g.Expect(r).To(Equal(7))

		dirs, files := 0, 0
		var ent fsio.Dirent
		for m.ScandirNext(req, &ent) == 0 {
			switch ent.Type {
			case fsio.DirentDir:
				dirs++
				g.Expect(files).To(BeZero(), "directories must precede files")
			case fsio.DirentFile:
				files++
			}
		}
		g.Expect(dirs).To(Equal(2))
		g.Expect(files).To(Equal(5))
		g.Expect(m.ScandirNext(req, &ent)).To(Equal(fsio.EOF))
	})

	t.Run("scandir of a subdirectory returns exactly 2 entries", func(t *testing.T) {
		g := NewWithT(t)

		req := &fsio.Request{}
		g.Expect(m.Scandir(req, mountPoint+"/public", 0, nil)).To(Equal(2))
	})

	t.Run("scandir of a file fails with ENOTDIR", func(t *testing.T) {
		g := NewWithT(t)

		req := &fsio.Request{}
		g.Expect(m.Scandir(req, mountPoint+"/package.json", 0, nil)).To(Equal(-int(syscall.ENOTDIR)))
	})

	t.Run("scandir of a missing path fails with ENOENT", func(t *testing.T) {
		g := NewWithT(t)

		req := &fsio.Request{}
		g.Expect(m.Scandir(req, mountPoint+"/wibble", 0, nil)).To(Equal(-int(syscall.ENOENT)))
	})

	t.Run("stat yields a regular file for a member and a directory for a dir", func(t *testing.T) {
		g := NewWithT(t)

		req := &fsio.Request{}
		g.Expect(m.Stat(req, mountPoint+"/package.json", nil)).To(BeZero())
		g.Expect(req.Stat.IsDir()).To(BeFalse())
		g.Expect(req.Stat.Size).To(Equal(int64(len(ziptest.FixtureFiles["package.json"]))))

		g.Expect(m.Stat(req, mountPoint+"/public/", nil)).To(BeZero())
		g.Expect(req.Stat.IsDir()).To(BeTrue())
		g.Expect(req.Stat.Size).To(BeZero())
	})

	t.Run("open, read to EOF, close streams the member payload", func(t *testing.T) {
		g := NewWithT(t)

		req := &fsio.Request{}
		fd := m.Open(req, mountPoint+"/package.json", os.O_RDONLY, 0, nil)
		g.Expect(fd).To(BeNumerically(">=", 10))

		var collected []byte
		buf := make([]byte, 8)
		var offset int64
		for {
			n := m.Read(req, fd, [][]byte{buf}, offset, nil)
			g.Expect(n).To(BeNumerically(">=", 0))
			if n == 0 {
				break
			}
			collected = append(collected, buf[:n]...)
			offset += int64(n)
		}

		g.Expect(string(collected)).To(Equal(ziptest.FixtureFiles["package.json"]))
		g.Expect(m.Close(req, fd, nil)).To(BeZero())
	})

	t.Run("open of a missing member fails", func(t *testing.T) {
		g := NewWithT(t)

		req := &fsio.Request{}
		g.Expect(m.Open(req, mountPoint+"/project.json", os.O_RDONLY, 0, nil)).To(Equal(-int(syscall.ENOENT)))
	})

	t.Run("open of a directory fails", func(t *testing.T) {
		g := NewWithT(t)

		req := &fsio.Request{}
		g.Expect(m.Open(req, mountPoint+"/public/", os.O_RDONLY, 0, nil)).To(BeNumerically("<", 0))
	})
}
