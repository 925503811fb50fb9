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
	"time"

	"archivefs/internal/common"
)

// EntryRecord is one central-directory record as the index consumes it.
type EntryRecord struct {
	ID       int
	Size     uint64
	Offset   int64
	Modified time.Time
}

// Index is the directory tree of a mounted archive, rooted at a synthetic
// directory. Every prefix of every added entry name is present as a Dir node.
type Index struct {
	root *Dir
}

// NewIndex creates an index holding only the synthetic root.
func NewIndex() *Index {
	return &Index{root: NewDir()}
}

// Root returns the synthetic root directory.
func (ix *Index) Root() *Dir { return ix.root }

// Add inserts one central-directory entry. A name ending in a separator is a
// directory marker. Missing intermediate directories are created on the way
// down. Returns the entry node, which is nil when the record duplicated an
// existing path.
func (ix *Index) Add(name string, rec EntryRecord) Entry {
	parts, isDirMarker := common.SplitPath(name)
	if len(parts) == 0 {
		return nil
	}

	node := ix.root
	for i, part := range parts {
		last := i == len(parts)-1

		if last && !isDirMarker {
			if node.FindDir(part) != nil || node.FindFile(part) != nil {
				return nil
			}
			file := &File{
				ID:       rec.ID,
				Size:     rec.Size,
				Offset:   rec.Offset,
				Modified: rec.Modified,
			}
			node.AddFile(part, file)
			return file
		}

		child := node.FindDir(part)
		if child == nil {
			if last && node.FindFile(part) != nil {
				return nil
			}
			child = NewDir()
			child.ID = rec.ID
			child.Modified = rec.Modified
			child.marked = last
			node.AddDir(part, child)
		} else if last {
			// A marker for a directory created implicitly from a child
			// path still contributes its id and timestamp; only a second
			// marker for the same path is a duplicate.
			if child.marked {
				return nil
			}
			child.ID = rec.ID
			child.Modified = rec.Modified
			child.marked = true
		}
		node = child
	}

	return node
}

// Find resolves a relative segment list. An empty list yields the root.
// Returns nil when any segment is missing.
func (ix *Index) Find(parts []string) Entry {
	node := ix.root
	for i, part := range parts {
		last := i == len(parts)-1

		if child := node.FindDir(part); child != nil {
			node = child
			continue
		}
		if last {
			if f := node.FindFile(part); f != nil {
				return f
			}
		}
		return nil
	}
	return node
}
