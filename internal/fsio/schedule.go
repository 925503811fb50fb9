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

import "archivefs/internal/eventloop"

// Schedule delivers req's callback on a future loop iteration. It is used for
// operations that completed entirely in memory but were invoked in async
// form: the caller's stack must unwind before the callback observes the
// result. The wakeup handle is owned here and closed after firing; the
// request itself is untouched apart from invoking its callback.
func Schedule(loop *eventloop.Loop, req *Request) {
	if req == nil {
		return
	}

	a := eventloop.NewAsync(loop, onScheduled)
	a.Data = req
	a.Send()
}

func onScheduled(a *eventloop.Async) {
	req := a.Data.(*Request)
	a.Close()

	req.Cb(req)
}
