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

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

var (
	flagArchive   string
	flagMount     string
	flagConfig    string
	flagCacheRoot string
	flagTrace     bool
	flagTraceTo   string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "archivefs",
	Short: "Virtual filesystem overlay serving ZIP archives as mounted directories",
	Long: `archivefs interposes on filesystem calls and serves paths under mounted
ZIP archives from an on-disk extraction cache, passing everything else
through to the real filesystem.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		// optional .env for ARCHIVEFS_* overrides; absence is fine
		_ = godotenv.Load()

		level := flagLogLevel
		if level == "" {
			level = os.Getenv("ARCHIVEFS_LOG_LEVEL")
		}
		if level != "" {
			parsed, err := log.ParseLevel(level)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", level, err)
			}
			log.SetLevel(parsed)
		}

		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("archivefs version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagArchive, "archive", "", "archive file to mount")
	pf.StringVar(&flagMount, "mount", "", "mount point path for --archive")
	pf.StringVar(&flagConfig, "config", "", "YAML mounts file (alternative to --archive/--mount)")
	pf.StringVar(&flagCacheRoot, "cache-root", "", "extraction cache root (default: $ARCHIVEFS_CACHE_ROOT or archive_cache under the OS temp dir)")
	pf.BoolVar(&flagTrace, "trace", false, "trace wrapped filesystem calls to stdout")
	pf.StringVar(&flagTraceTo, "traceto", "", "trace wrapped filesystem calls to the named file")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
