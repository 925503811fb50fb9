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

package common

import (
	"runtime"
	"strings"
)

// windowsSeps reports whether backslash counts as a path separator.
var windowsSeps = runtime.GOOS == "windows"

func isSep(c byte, windows bool) bool {
	if c == '/' {
		return true
	}
	return windows && c == '\\'
}

// SplitPath tokenizes a path into its non-empty segments and reports whether
// the path ended with a separator (directory intent). On Windows both '/' and
// '\' separate segments.
func SplitPath(path string) (parts []string, endsWithSep bool) {
	return splitPath(path, windowsSeps)
}

func splitPath(path string, windows bool) (parts []string, endsWithSep bool) {
	if len(path) == 0 {
		return nil, false
	}

	endsWithSep = isSep(path[len(path)-1], windows)

	start := 0
	for i := 0; i < len(path); i++ {
		if isSep(path[i], windows) {
			if i > start {
				parts = append(parts, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		parts = append(parts, path[start:])
	}

	return parts, endsWithSep
}

// StripNTPrefix removes a leading `\\?\` from a Windows NT-style path. The
// host runtime sometimes hands paths over in NT form rather than DOS form.
func StripNTPrefix(path string) string {
	return stripNTPrefix(path, windowsSeps)
}

func stripNTPrefix(path string, windows bool) string {
	if !windows {
		return path
	}
	if len(path) >= 4 && path[0] == '\\' && path[1] == '\\' && path[2] == '?' && path[3] == '\\' {
		return path[4:]
	}
	return path
}

// RelativeParts strips mountPoint from the front of path (length-based, after
// NT-prefix stripping) and splits the remainder into segments. The caller has
// already established that path lives under mountPoint.
func RelativeParts(mountPoint, path string) []string {
	return relativeParts(mountPoint, path, windowsSeps)
}

func relativeParts(mountPoint, path string, windows bool) []string {
	path = stripNTPrefix(path, windows)
	if len(path) < len(mountPoint) {
		return nil
	}
	parts, _ := splitPath(path[len(mountPoint):], windows)
	return parts
}

// HasMountPrefix reports whether path, after NT-prefix stripping, begins with
// mountPoint. The match is anchored at position 0: a mount point appearing
// later in the path does not count.
func HasMountPrefix(mountPoint, path string) bool {
	return strings.HasPrefix(StripNTPrefix(path), mountPoint)
}
