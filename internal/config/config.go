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

// Package config loads the YAML mounts file the CLI accepts as an
// alternative to per-archive flags.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mount is one archive/mount-point pair.
type Mount struct {
	Archive string `yaml:"archive"`
	Mount   string `yaml:"mount"`
}

// File is the mounts-file document:
//
//	cache_root: /var/cache/archivefs   # optional
//	mounts:
//	  - archive: /srv/app.zip
//	    mount: /virt/app
type File struct {
	CacheRoot string  `yaml:"cache_root,omitempty"`
	Mounts    []Mount `yaml:"mounts"`
}

// Load reads and validates a mounts file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	for i, m := range f.Mounts {
		if m.Archive == "" {
			return nil, fmt.Errorf("config %s: mounts[%d] is missing an archive path", path, i)
		}
		if m.Mount == "" {
			return nil, fmt.Errorf("config %s: mounts[%d] is missing a mount point", path, i)
		}
	}

	return &f, nil
}
