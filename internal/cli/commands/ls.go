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

	"github.com/spf13/cobra"

	"archivefs/internal/dispatch"
	"archivefs/internal/fsio"
)

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List a directory through the virtual filesystem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *dispatch.Manager) error {
			req := &fsio.Request{}
			r := m.Scandir(req, args[0], 0, nil)
			if r < 0 {
				return fmt.Errorf("scandir %s: %v", args[0], req.Errno())
			}

			var ent fsio.Dirent
			for m.ScandirNext(req, &ent) == 0 {
				kind := "FILE"
				if ent.Type == fsio.DirentDir {
					kind = "DIR"
				}
				fmt.Printf("%-5s %s\n", kind, ent.Name)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
