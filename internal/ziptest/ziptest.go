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

// Package ziptest builds the ZIP fixtures shared by the archive, dispatch
// and integration tests.
package ziptest

import (
	"os"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// FixtureTime stamps every fixture entry. DOS timestamps have two-second
// resolution, so the seconds are even.
var FixtureTime = time.Date(2019, time.March, 2, 10, 30, 14, 0, time.Local)

// FixtureDirs are the explicit directory entries of the fixture archive.
var FixtureDirs = []string{"lib/", "public/"}

// FixtureFiles maps every file entry of the fixture archive to its payload.
// The top level holds five files and two directories; public/ holds two
// children.
var FixtureFiles = map[string]string{
	"README.md":         "# demo-app\n",
	"favicon.ico":       "\x00\x00\x01\x00icon-bytes",
	"index.js":          "require('./lib/util');\n",
	"package.json":      "{\n  \"name\": \"demo-app\",\n  \"version\": \"1.0.0\"\n}\n",
	"server.js":         "const http = require('http');\n",
	"lib/util.js":       "module.exports = { id: x => x };\n",
	"public/index.html": "<html><body>demo</body></html>\n",
	"public/style.css":  "body { margin: 0; }\n",
}

// fixtureOrder fixes the central-directory order so entry ids are stable
// across runs.
var fixtureOrder = []string{
	"lib/",
	"public/",
	"README.md",
	"favicon.ico",
	"index.js",
	"package.json",
	"server.js",
	"lib/util.js",
	"public/index.html",
	"public/style.css",
}

// FixtureOrderLateDirs lists every file ahead of its directory marker, the
// way some archivers emit the central directory. Pass it to BuildWith with
// FixtureFiles to get a fixture whose Dir nodes are created implicitly
// before their markers arrive.
var FixtureOrderLateDirs = []string{
	"README.md",
	"favicon.ico",
	"index.js",
	"package.json",
	"server.js",
	"lib/util.js",
	"public/index.html",
	"public/style.css",
	"lib/",
	"public/",
}

// Build writes the fixture archive to path.
func Build(tb testing.TB, path string) {
	tb.Helper()
	BuildWith(tb, path, fixtureOrder, FixtureFiles)
}

// BuildWith writes an archive with the given entry order; names ending in a
// separator become directory entries, the rest take their payload from
// files. favicon.ico is stored raw so both stored and deflated members are
// exercised.
func BuildWith(tb testing.TB, path string, order []string, files map[string]string) {
	tb.Helper()

	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create fixture archive: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, name := range order {
		hdr := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: FixtureTime,
		}
		if name == "favicon.ico" || len(files[name]) == 0 {
			hdr.Method = zip.Store
		}

		fw, err := w.CreateHeader(hdr)
		if err != nil {
			tb.Fatalf("create fixture entry %s: %v", name, err)
		}
		if name[len(name)-1] == '/' {
			continue
		}
		if _, err := fw.Write([]byte(files[name])); err != nil {
			tb.Fatalf("write fixture entry %s: %v", name, err)
		}
	}

	if err := w.Close(); err != nil {
		tb.Fatalf("finish fixture archive: %v", err)
	}
}
