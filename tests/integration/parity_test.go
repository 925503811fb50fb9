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
)

// TestSyncAsyncParity runs the same operations in sync and async form and
// compares outcomes; the async callback must never fire before the call
// returns.
func TestSyncAsyncParity(t *testing.T) {
	ov := newOverlay(t)
	m := ov.manager

	type result struct {
		res  int64
		stat fsio.StatBuf
	}

	syncOp := func(op func(req *fsio.Request, cb fsio.Callback) int) result {
		req := &fsio.Request{}
		op(req, nil)
		return result{res: req.Result, stat: req.Stat}
	}

	asyncOp := func(t *testing.T, op func(req *fsio.Request, cb fsio.Callback) int) result {
		g := NewWithT(t)
		req := &fsio.Request{}
		var got result
		fired := false

		ret := op(req, func(r *fsio.Request) {
			fired = true
			got = result{res: r.Result, stat: r.Stat}
			ov.loop.Stop()
		})
		g.Expect(ret).To(BeZero())
		g.Expect(fired).To(BeFalse(), "callback fired before the call returned")

		ov.loop.Run()
		g.Expect(fired).To(BeTrue())
		return got
	}

	cases := []struct {
		name string
		op   func(req *fsio.Request, cb fsio.Callback) int
	}{
		{"stat file", func(req *fsio.Request, cb fsio.Callback) int {
			return m.Stat(req, mountPoint+"/package.json", cb)
		}},
		{"stat directory", func(req *fsio.Request, cb fsio.Callback) int {
			return m.Stat(req, mountPoint+"/public", cb)
		}},
		{"stat missing", func(req *fsio.Request, cb fsio.Callback) int {
			return m.Stat(req, mountPoint+"/nope", cb)
		}},
		{"scandir", func(req *fsio.Request, cb fsio.Callback) int {
			return m.Scandir(req, mountPoint+"/", 0, cb)
		}},
		{"scandir of file", func(req *fsio.Request, cb fsio.Callback) int {
			return m.Scandir(req, mountPoint+"/index.js", 0, cb)
		}},
		{"realpath", func(req *fsio.Request, cb fsio.Callback) int {
			return m.Realpath(req, mountPoint+"/index.js", cb)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewWithT(t)

			want := syncOp(tc.op)
			got := asyncOp(t, tc.op)

			// sync returns the result as its return value; async delivers the
			// same value on the request
			g.Expect(got.res).To(Equal(want.res))
			g.Expect(got.stat).To(Equal(want.stat))
		})
	}

	t.Run("open and read parity", func(t *testing.T) {
		g := NewWithT(t)

		// sync
		syncReq := &fsio.Request{}
		syncFd := m.Open(syncReq, mountPoint+"/server.js", os.O_RDONLY, 0, nil)
		g.Expect(syncFd).To(BeNumerically(">=", 10))
		syncBuf := make([]byte, 64)
		syncN := m.Read(syncReq, syncFd, [][]byte{syncBuf}, 0, nil)
		g.Expect(m.Close(syncReq, syncFd, nil)).To(BeZero())

		// async
		asyncReq := &fsio.Request{}
		var asyncFd int
		m.Open(asyncReq, mountPoint+"/server.js", os.O_RDONLY, 0, func(r *fsio.Request) {
			asyncFd = int(r.Result)
			ov.loop.Stop()
		})
		ov.loop.Run()
		g.Expect(asyncFd).To(BeNumerically(">", syncFd), "virtual descriptors stay monotonic")

		asyncBuf := make([]byte, 64)
		var asyncN int
		m.Read(asyncReq, asyncFd, [][]byte{asyncBuf}, 0, func(r *fsio.Request) {
			asyncN = int(r.Result)
			g.Expect(r.File).To(Equal(asyncFd), "request re-exposes the virtual descriptor")
			ov.loop.Stop()
		})
		ov.loop.Run()

		g.Expect(asyncN).To(Equal(syncN))
		g.Expect(asyncBuf[:asyncN]).To(Equal(syncBuf[:syncN]))

		closed := false
		m.Close(asyncReq, asyncFd, func(r *fsio.Request) {
			closed = true
			g.Expect(r.Result).To(BeZero())
			ov.loop.Stop()
		})
		ov.loop.Run()
		g.Expect(closed).To(BeTrue())

		// the mapping is gone after the async close completes
		req := &fsio.Request{}
		g.Expect(m.Read(req, asyncFd, [][]byte{asyncBuf}, 0, nil)).To(Equal(-int(syscall.EBADF)))
	})
}
