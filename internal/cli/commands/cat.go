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
	"os"

	"github.com/spf13/cobra"

	"archivefs/internal/dispatch"
	"archivefs/internal/fsio"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Stream a file through the virtual filesystem to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *dispatch.Manager) error {
			req := &fsio.Request{}
			fd := m.Open(req, args[0], os.O_RDONLY, 0, nil)
			if fd < 0 {
				return fmt.Errorf("open %s: %v", args[0], req.Errno())
			}
			defer m.Close(&fsio.Request{}, fd, nil)

			buf := make([]byte, 64*1024)
			var offset int64
			for {
				n := m.Read(req, fd, [][]byte{buf}, offset, nil)
				if n < 0 {
					return fmt.Errorf("read %s: %v", args[0], req.Errno())
				}
				if n == 0 {
					return nil
				}
				if _, err := os.Stdout.Write(buf[:n]); err != nil {
					return err
				}
				offset += int64(n)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
