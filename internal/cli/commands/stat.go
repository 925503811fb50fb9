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
	"time"

	"github.com/spf13/cobra"

	"archivefs/internal/dispatch"
	"archivefs/internal/fsio"
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Stat a path through the virtual filesystem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *dispatch.Manager) error {
			req := &fsio.Request{}
			if r := m.Stat(req, args[0], nil); r < 0 {
				return fmt.Errorf("stat %s: %v", args[0], req.Errno())
			}

			kind := "file"
			if req.Stat.IsDir() {
				kind = "directory"
			}
			mtime := time.Unix(req.Stat.Mtim.Sec, req.Stat.Mtim.Nsec)

			fmt.Printf("%s\n", args[0])
			fmt.Printf("  type:     %s\n", kind)
			fmt.Printf("  size:     %d\n", req.Stat.Size)
			fmt.Printf("  modified: %s\n", mtime.Format(time.RFC3339))
			if backing := m.TrueFileName(args[0]); backing != args[0] && backing != "" {
				fmt.Printf("  backing:  %s\n", backing)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}
