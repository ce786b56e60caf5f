package zip

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/vfskit"
)

type testEntry struct {
	name    string
	content string
	mode    os.FileMode
}

func buildZip(t *testing.T, entries ...testEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		header := &zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: time.Unix(1700000000, 0)}
		if e.mode != 0 {
			header.SetMode(e.mode)
		}
		fw, err := w.CreateHeader(header)
		require.NoError(t, err)
		_, err = io.WriteString(fw, e.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestAdapter(t *testing.T, entries ...testEntry) *Adapter {
	t.Helper()
	data := buildZip(t, entries...)
	a, err := NewFromReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return a
}

func TestRead(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t,
		testEntry{name: "readme.txt", content: "hello"},
		testEntry{name: "docs/guide/intro.md", content: "# Intro"},
	)

	obj, err := a.Read(ctx, "readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(obj.Contents))
	assert.EqualValues(t, 5, *obj.Size)

	stream, err := a.ReadStream(ctx, "docs/guide/intro.md")
	require.NoError(t, err)
	data, err := io.ReadAll(stream.Stream)
	require.NoError(t, err)
	require.NoError(t, stream.Stream.Close())
	assert.Equal(t, "# Intro", string(data))

	_, err = a.Read(ctx, "docs")
	assert.True(t, vfskit.IsNotFound(err), "directories have no contents")

	_, err = a.Read(ctx, "missing.txt")
	assert.True(t, vfskit.IsNotFound(err))
}

func TestImpliedDirectories(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t,
		testEntry{name: "readme.txt", content: "hello"},
		testEntry{name: "docs/guide/intro.md", content: "# Intro"},
	)

	has, err := a.Has(ctx, "docs/guide")
	require.NoError(t, err)
	assert.True(t, has)

	meta, err := a.GetMetadata(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, meta.IsDir())

	shallow, err := a.ListContents(ctx, "", false)
	require.NoError(t, err)
	require.Len(t, shallow, 2)
	assert.Equal(t, "docs", shallow[0].Path)
	assert.Equal(t, "readme.txt", shallow[1].Path)

	deep, err := a.ListContents(ctx, "docs", true)
	require.NoError(t, err)
	require.Len(t, deep, 2)
	assert.Equal(t, "docs/guide", deep[0].Path)
	assert.Equal(t, "docs/guide/intro.md", deep[1].Path)
}

func TestUnsafeEntriesIgnored(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t,
		testEntry{name: "../escape.txt", content: "x"},
		testEntry{name: "./a/./b.txt", content: "b"},
		testEntry{name: `win\path.txt`, content: "w"},
	)

	listing, err := a.ListContents(ctx, "", true)
	require.NoError(t, err)
	var paths []string
	for _, entry := range listing {
		paths = append(paths, entry.Path)
	}
	assert.Equal(t, []string{"a", "a/b.txt", "win", "win/path.txt"}, paths)
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t,
		testEntry{name: "page.html", content: "<html><body></body></html>", mode: 0o644},
		testEntry{name: "secret.key", content: "k", mode: 0o600},
	)

	meta, err := a.GetMimetype(ctx, "page.html")
	require.NoError(t, err)
	assert.Equal(t, "text/html", *meta.Mimetype)

	meta, err = a.GetTimestamp(ctx, "page.html")
	require.NoError(t, err)
	assert.EqualValues(t, 1700000000, *meta.Timestamp)

	meta, err = a.GetVisibility(ctx, "page.html")
	require.NoError(t, err)
	assert.Equal(t, vfskit.Public, *meta.Visibility)

	meta, err = a.GetVisibility(ctx, "secret.key")
	require.NoError(t, err)
	assert.Equal(t, vfskit.Private, *meta.Visibility)
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, testEntry{name: "a.txt", content: "a"})

	_, err := a.Write(ctx, "b.txt", []byte("b"), nil)
	assert.ErrorIs(t, err, vfskit.ErrReadOnly)
	_, err = a.Update(ctx, "a.txt", []byte("b"), nil)
	assert.ErrorIs(t, err, vfskit.ErrReadOnly)
	assert.ErrorIs(t, a.Rename(ctx, "a.txt", "b.txt"), vfskit.ErrReadOnly)
	assert.ErrorIs(t, a.Delete(ctx, "a.txt"), vfskit.ErrReadOnly)
	assert.ErrorIs(t, a.DeleteDir(ctx, "x"), vfskit.ErrReadOnly)
	_, err = a.CreateDir(ctx, "x", nil)
	assert.ErrorIs(t, err, vfskit.ErrReadOnly)
	_, err = a.SetVisibility(ctx, "a.txt", vfskit.Private)
	assert.ErrorIs(t, err, vfskit.ErrReadOnly)

	fs := vfskit.NewFilesystem(a)
	ok, err := fs.Put(ctx, "c.txt", []byte("c"))
	require.NoError(t, err)
	assert.False(t, ok, "the facade reports adapter failures as false")
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.zip")
	require.NoError(t, os.WriteFile(archive, buildZip(t, testEntry{name: "x/y.txt", content: "y"}), 0o644))

	t.Run("from disk", func(t *testing.T) {
		a, err := Open(archive)
		require.NoError(t, err)
		defer a.Close()

		obj, err := a.Read(context.Background(), "x/y.txt")
		require.NoError(t, err)
		assert.Equal(t, "y", string(obj.Contents))
	})

	t.Run("missing archive", func(t *testing.T) {
		_, err := Open(filepath.Join(dir, "nope.zip"))
		assert.Error(t, err)
	})

	t.Run("registered as a driver", func(t *testing.T) {
		adapter, err := vfskit.CreateAdapter(context.Background(), "zip", vfskit.DriverOptions{"path": archive})
		require.NoError(t, err)
		assert.NoError(t, adapter.(*Adapter).Close())

		_, err = vfskit.CreateAdapter(context.Background(), "zip", vfskit.DriverOptions{})
		assert.ErrorIs(t, err, vfskit.ErrInvalidConfig)
	})
}
