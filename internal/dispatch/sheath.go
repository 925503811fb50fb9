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
	"archivefs/internal/archive"
	"archivefs/internal/fsio"
)

// sheath bridges an async request between the caller and the dispatcher's
// internal completion. It occupies the request's user-data slot for the
// duration of the call, carrying the saved user data, the user callback, the
// virtual descriptor involved, and the owning mount.
type sheath struct {
	owner    *Manager
	virtual  int
	userData any
	cb       fsio.Callback
	mount    *archive.Archive
}

// sheathe wraps the request. The previous Data value is preserved and
// restored by unsheathe before the user callback observes the request.
func (m *Manager) sheathe(req *fsio.Request, cb fsio.Callback, virtual int, mount *archive.Archive) {
	req.Data = &sheath{
		owner:    m,
		virtual:  virtual,
		userData: req.Data,
		cb:       cb,
		mount:    mount,
	}
}

// unsheathe restores the request's user data and hands back what sheathe
// captured.
func unsheathe(req *fsio.Request) (owner *Manager, cb fsio.Callback, virtual int, mount *archive.Archive) {
	sh := req.Data.(*sheath)
	req.Data = sh.userData
	return sh.owner, sh.cb, sh.virtual, sh.mount
}

// passDone is the internal completion for operations that need no result
// rewriting: unsheathe and hand over.
func passDone(req *fsio.Request) {
	_, cb, _, _ := unsheathe(req)
	cb(req)
}

// restoreDone re-exposes the virtual descriptor after a descriptor-keyed
// operation completed on the real one.
func restoreDone(req *fsio.Request) {
	_, cb, virtual, _ := unsheathe(req)
	req.File = virtual
	cb(req)
}

// openDone mints the virtual descriptor once the real open finished. The
// result the caller sees is always the virtual fd.
func openDone(req *fsio.Request) {
	owner, cb, _, mount := unsheathe(req)

	if req.Result >= 0 {
		virtual := owner.known.insert(int(req.Result), mount)
		req.Result = int64(virtual)
		req.File = virtual
	}

	cb(req)
}

// closeDone drops the virtual mapping once the close completed, whatever its
// result; the synchronous Close does the same.
func closeDone(req *fsio.Request) {
	owner, cb, virtual, _ := unsheathe(req)

	owner.known.remove(virtual)
	req.File = virtual

	cb(req)
}
