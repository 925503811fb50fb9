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

import "errors"

var (
	ErrArchiveNotFound     = errors.New("archive not found")
	ErrArchiveInvalid      = errors.New("archive invalid")
	ErrFailedToCreateCache = errors.New("failed to create cache directory")
	ErrAlreadyMounted      = errors.New("archive already mounted")
	ErrNotMounted          = errors.New("archive not mounted")
	ErrCacheLocked         = errors.New("cache directory locked by another process")
)
