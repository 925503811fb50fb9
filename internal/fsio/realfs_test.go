package fsio

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivefs/internal/eventloop"
)

func testRealFS(t *testing.T) (*eventloop.Loop, *RealFS, string) {
	t.Helper()
	loop := eventloop.New()
	return loop, NewRealFS(loop), t.TempDir()
}

func TestOpenReadClose(t *testing.T) {
	t.Parallel()

	t.Run("sync round trip", func(t *testing.T) {
		t.Parallel()
		_, rfs, dir := testRealFS(t)

		path := filepath.Join(dir, "hello.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

		var req Request
		fd := rfs.Open(&req, path, os.O_RDONLY, 0, nil)
		require.Positive(t, fd)

		buf := make([]byte, 64)
		n := rfs.Read(&req, fd, [][]byte{buf}, 0, nil)
		require.Equal(t, 11, n)
		assert.Equal(t, "hello world", string(buf[:n]))

		// Reading past the end signals EOF with a zero count.
		n = rfs.Read(&req, fd, [][]byte{buf}, 11, nil)
		assert.Zero(t, n)

		assert.Zero(t, rfs.Close(&req, fd, nil))
	})

	t.Run("open missing file", func(t *testing.T) {
		t.Parallel()
		_, rfs, dir := testRealFS(t)

		var req Request
		r := rfs.Open(&req, filepath.Join(dir, "absent"), os.O_RDONLY, 0, nil)
		assert.Equal(t, -int(syscall.ENOENT), r)
		assert.Equal(t, syscall.ENOENT, req.Errno())
	})

	t.Run("read unknown descriptor", func(t *testing.T) {
		t.Parallel()
		_, rfs, _ := testRealFS(t)

		var req Request
		r := rfs.Read(&req, 9999, [][]byte{make([]byte, 4)}, 0, nil)
		assert.Equal(t, -int(syscall.EBADF), r)
	})

	t.Run("async open delivers on loop", func(t *testing.T) {
		t.Parallel()
		loop, rfs, dir := testRealFS(t)

		path := filepath.Join(dir, "a.txt")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		var req Request
		invoked := false
		r := rfs.Open(&req, path, os.O_RDONLY, 0, func(got *Request) {
			invoked = true
			assert.Same(t, &req, got)
			assert.Positive(t, got.Result)
			loop.Stop()
		})
		require.Zero(t, r)
		assert.False(t, invoked, "callback must not fire before the loop runs")

		loop.Run()
		assert.True(t, invoked)

		rfs.Close(&req, int(req.Result), nil)
	})
}

func TestStatScandir(t *testing.T) {
	t.Parallel()

	t.Run("stat fills mode class and size", func(t *testing.T) {
		t.Parallel()
		_, rfs, dir := testRealFS(t)

		path := filepath.Join(dir, "f.bin")
		require.NoError(t, os.WriteFile(path, make([]byte, 42), 0o644))

		var req Request
		require.Zero(t, rfs.Stat(&req, path, nil))
		assert.Equal(t, int64(42), req.Stat.Size)
		assert.False(t, req.Stat.IsDir())

		require.Zero(t, rfs.Stat(&req, dir, nil))
		assert.True(t, req.Stat.IsDir())
	})

	t.Run("scandir lists entries", func(t *testing.T) {
		t.Parallel()
		_, rfs, dir := testRealFS(t)

		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), nil, 0o644))

		var req Request
		require.Equal(t, 2, rfs.Scandir(&req, dir, nil))

		var ent Dirent
		names := map[string]DirentType{}
		for req.NextEntry(&ent) == 0 {
			names[ent.Name] = ent.Type
		}
		assert.Equal(t, DirentDir, names["sub"])
		assert.Equal(t, DirentFile, names["file"])
		assert.Equal(t, EOF, req.NextEntry(&ent))
	})
}

func TestWriteAndFriends(t *testing.T) {
	t.Parallel()

	t.Run("write then ftruncate", func(t *testing.T) {
		t.Parallel()
		_, rfs, dir := testRealFS(t)

		path := filepath.Join(dir, "out")
		var req Request
		fd := rfs.Open(&req, path, os.O_RDWR|os.O_CREATE, 0o644, nil)
		require.Positive(t, fd)

		n := rfs.Write(&req, fd, [][]byte{[]byte("abcdef")}, 0, nil)
		require.Equal(t, 6, n)
		require.Zero(t, rfs.Ftruncate(&req, fd, 3, nil))
		require.Zero(t, rfs.Close(&req, fd, nil))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(data))
	})

	t.Run("mkdtemp replaces template padding", func(t *testing.T) {
		t.Parallel()
		_, rfs, dir := testRealFS(t)

		var req Request
		require.Zero(t, rfs.Mkdtemp(&req, filepath.Join(dir, "workXXXXXX"), nil))
		assert.NotContains(t, req.Ptr, "X")

		info, err := os.Stat(req.Ptr)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("copyfile excl", func(t *testing.T) {
		t.Parallel()
		_, rfs, dir := testRealFS(t)

		src := filepath.Join(dir, "src")
		dst := filepath.Join(dir, "dst")
		require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

		var req Request
		require.Zero(t, rfs.Copyfile(&req, src, dst, 0, nil))
		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))

		assert.Equal(t, -int(syscall.EEXIST), rfs.Copyfile(&req, src, dst, CopyfileExcl, nil))
	})
}

func TestSchedule(t *testing.T) {
	t.Parallel()

	t.Run("callback fires on a later iteration", func(t *testing.T) {
		t.Parallel()
		loop := eventloop.New()

		req := &Request{}
		fired := false
		req.Cb = func(got *Request) {
			fired = true
			assert.Same(t, req, got)
		}

		Schedule(loop, req)
		assert.False(t, fired, "scheduled completion must wait for the loop")

		loop.Tick()
		assert.True(t, fired)
	})

	t.Run("nil request is ignored", func(t *testing.T) {
		t.Parallel()
		Schedule(eventloop.New(), nil)
	})
}
