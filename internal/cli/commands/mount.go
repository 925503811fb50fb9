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

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"archivefs/internal/dispatch"
	"archivefs/internal/fsio"
)

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount archives, verify the cache, and print the virtual tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *dispatch.Manager) error {
			if err := requireMounts(m); err != nil {
				return err
			}

			for _, a := range m.Mounts() {
				fmt.Printf("mounted %s at %s\n", a.ArchivePath(), a.MountPoint())
				if a.Unsafe() {
					fmt.Printf("  warning: cache validation failed for some entries\n")
				}
				if err := printTree(m, a.MountPoint(), 1); err != nil {
					return err
				}
			}
			fmt.Printf("cache root: %s\n", m.CacheRoot())
			return nil
		})
	},
}

// printTree walks a mounted directory through the dispatcher's scandir, depth
// first, directories before files the way the mount enumerates them.
func printTree(m *dispatch.Manager, path string, depth int) error {
	req := &fsio.Request{}
	if r := m.Scandir(req, path, 0, nil); r < 0 {
		return fmt.Errorf("scandir %s failed: %v", path, req.Errno())
	}

	indent := strings.Repeat("  ", depth)
	var ent fsio.Dirent
	for m.ScandirNext(req, &ent) == 0 {
		if ent.Type == fsio.DirentDir {
			fmt.Printf("%s%s/\n", indent, ent.Name)
			if err := printTree(m, path+"/"+ent.Name, depth+1); err != nil {
				return err
			}
		} else {
			fmt.Printf("%s%s\n", indent, ent.Name)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(mountCmd)
}
