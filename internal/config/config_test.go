package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("full document", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, `
cache_root: /var/cache/archivefs
mounts:
  - archive: /srv/app.zip
    mount: /virt/app
  - archive: /srv/assets.zip
    mount: /virt/app/assets
`)

		f, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/var/cache/archivefs", f.CacheRoot)
		require.Len(t, f.Mounts, 2)
		assert.Equal(t, "/srv/app.zip", f.Mounts[0].Archive)
		assert.Equal(t, "/virt/app/assets", f.Mounts[1].Mount)
	})

	t.Run("cache_root is optional", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, `
mounts:
  - archive: /srv/app.zip
    mount: /virt/app
`)

		f, err := Load(path)
		require.NoError(t, err)
		assert.Empty(t, f.CacheRoot)
	})

	t.Run("missing archive path", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, `
mounts:
  - mount: /virt/app
`)

		_, err := Load(path)
		assert.ErrorContains(t, err, "missing an archive path")
	})

	t.Run("missing mount point", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, `
mounts:
  - archive: /srv/app.zip
`)

		_, err := Load(path)
		assert.ErrorContains(t, err, "missing a mount point")
	})

	t.Run("unreadable file", func(t *testing.T) {
		t.Parallel()
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "mounts: [unclosed")
		_, err := Load(path)
		assert.Error(t, err)
	})
}
