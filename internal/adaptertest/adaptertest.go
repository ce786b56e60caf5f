// Package adaptertest holds the behaviour every vfskit.Adapter shares, as a
// test suite drivers run against their own adapter.
package adaptertest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/vfskit"
)

// Factory returns a fresh, empty adapter for one subtest.
type Factory func(t *testing.T) vfskit.Adapter

// Run runs the conformance suite against adapters created by newAdapter.
func Run(t *testing.T, newAdapter Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("write then read", func(t *testing.T) {
		a := newAdapter(t)

		meta, err := a.Write(ctx, "file.txt", []byte("contents"), vfskit.NewConfig(nil))
		require.NoError(t, err)
		require.NotNil(t, meta)

		has, err := a.Has(ctx, "file.txt")
		require.NoError(t, err)
		assert.True(t, has)

		obj, err := a.Read(ctx, "file.txt")
		require.NoError(t, err)
		assert.Equal(t, "contents", string(obj.Contents))
	})

	t.Run("missing file", func(t *testing.T) {
		a := newAdapter(t)

		has, err := a.Has(ctx, "missing.txt")
		require.NoError(t, err)
		assert.False(t, has)

		_, err = a.Read(ctx, "missing.txt")
		assert.Error(t, err)
	})

	t.Run("write creates parent directories", func(t *testing.T) {
		a := newAdapter(t)

		_, err := a.Write(ctx, "a/b/c.txt", []byte("deep"), vfskit.NewConfig(nil))
		require.NoError(t, err)

		obj, err := a.Read(ctx, "a/b/c.txt")
		require.NoError(t, err)
		assert.Equal(t, "deep", string(obj.Contents))
	})

	t.Run("update replaces contents", func(t *testing.T) {
		a := newAdapter(t)

		_, err := a.Write(ctx, "file.txt", []byte("old"), vfskit.NewConfig(nil))
		require.NoError(t, err)
		_, err = a.Update(ctx, "file.txt", []byte("new contents"), vfskit.NewConfig(nil))
		require.NoError(t, err)

		obj, err := a.Read(ctx, "file.txt")
		require.NoError(t, err)
		assert.Equal(t, "new contents", string(obj.Contents))
	})

	t.Run("streams", func(t *testing.T) {
		a := newAdapter(t)

		_, err := a.WriteStream(ctx, "stream.txt", bytes.NewBufferString("streamed"), vfskit.NewConfig(nil))
		require.NoError(t, err)

		obj, err := a.ReadStream(ctx, "stream.txt")
		require.NoError(t, err)
		require.NotNil(t, obj.Stream)
		defer obj.Stream.Close()

		data, err := io.ReadAll(obj.Stream)
		require.NoError(t, err)
		assert.Equal(t, "streamed", string(data))
	})

	t.Run("rename", func(t *testing.T) {
		a := newAdapter(t)

		_, err := a.Write(ctx, "old.txt", []byte("x"), vfskit.NewConfig(nil))
		require.NoError(t, err)
		require.NoError(t, a.Rename(ctx, "old.txt", "dir/new.txt"))

		has, err := a.Has(ctx, "old.txt")
		require.NoError(t, err)
		assert.False(t, has)

		obj, err := a.Read(ctx, "dir/new.txt")
		require.NoError(t, err)
		assert.Equal(t, "x", string(obj.Contents))
	})

	t.Run("copy", func(t *testing.T) {
		a := newAdapter(t)

		_, err := a.Write(ctx, "src.txt", []byte("copy me"), vfskit.NewConfig(nil))
		require.NoError(t, err)
		require.NoError(t, a.Copy(ctx, "src.txt", "dst.txt"))

		for _, p := range []string{"src.txt", "dst.txt"} {
			obj, err := a.Read(ctx, p)
			require.NoError(t, err, p)
			assert.Equal(t, "copy me", string(obj.Contents), p)
		}
	})

	t.Run("delete", func(t *testing.T) {
		a := newAdapter(t)

		_, err := a.Write(ctx, "file.txt", []byte("x"), vfskit.NewConfig(nil))
		require.NoError(t, err)
		require.NoError(t, a.Delete(ctx, "file.txt"))

		has, err := a.Has(ctx, "file.txt")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("list contents", func(t *testing.T) {
		a := newAdapter(t)

		_, err := a.CreateDir(ctx, "dir", vfskit.NewConfig(nil))
		require.NoError(t, err)
		_, err = a.Write(ctx, "root.txt", []byte("r"), vfskit.NewConfig(nil))
		require.NoError(t, err)
		_, err = a.Write(ctx, "dir/nested.txt", []byte("n"), vfskit.NewConfig(nil))
		require.NoError(t, err)

		shallow, err := a.ListContents(ctx, "", false)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"dir", "root.txt"}, paths(shallow))

		deep, err := a.ListContents(ctx, "", true)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"dir", "dir/nested.txt", "root.txt"}, paths(deep))

		for _, entry := range deep {
			if entry.Path == "dir" {
				assert.Equal(t, vfskit.TypeDir, entry.Type)
			} else {
				assert.Equal(t, vfskit.TypeFile, entry.Type)
			}
		}
	})

	t.Run("delete dir removes contents", func(t *testing.T) {
		a := newAdapter(t)

		_, err := a.Write(ctx, "dir/sub/file.txt", []byte("x"), vfskit.NewConfig(nil))
		require.NoError(t, err)
		require.NoError(t, a.DeleteDir(ctx, "dir"))

		has, err := a.Has(ctx, "dir/sub/file.txt")
		require.NoError(t, err)
		assert.False(t, has)

		listing, err := a.ListContents(ctx, "", true)
		require.NoError(t, err)
		assert.Empty(t, listing)
	})

	t.Run("metadata", func(t *testing.T) {
		a := newAdapter(t)

		_, err := a.Write(ctx, "file.txt", []byte("12345"), vfskit.NewConfig(nil))
		require.NoError(t, err)

		meta, err := a.GetMetadata(ctx, "file.txt")
		require.NoError(t, err)
		assert.Equal(t, "file.txt", meta.Path)
		assert.Equal(t, vfskit.TypeFile, meta.Type)

		size, err := a.GetSize(ctx, "file.txt")
		require.NoError(t, err)
		require.NotNil(t, size.Size)
		assert.EqualValues(t, 5, *size.Size)

		mimetype, err := a.GetMimetype(ctx, "file.txt")
		require.NoError(t, err)
		require.NotNil(t, mimetype.Mimetype)
		assert.Equal(t, "text/plain", *mimetype.Mimetype)

		ts, err := a.GetTimestamp(ctx, "file.txt")
		require.NoError(t, err)
		require.NotNil(t, ts.Timestamp)
		assert.Positive(t, *ts.Timestamp)
	})

	t.Run("visibility", func(t *testing.T) {
		a := newAdapter(t)

		_, err := a.Write(ctx, "file.txt", []byte("x"), vfskit.NewConfigFromOptions(vfskit.WithVisibility(vfskit.Private)))
		require.NoError(t, err)

		_, err = a.SetVisibility(ctx, "file.txt", vfskit.Public)
		if errors.Is(err, vfskit.ErrNotSupported) {
			t.Skip("adapter has no visibility support")
		}
		require.NoError(t, err)

		meta, err := a.GetVisibility(ctx, "file.txt")
		require.NoError(t, err)
		require.NotNil(t, meta.Visibility)
		assert.Equal(t, vfskit.Public, *meta.Visibility)
	})

	t.Run("through the facade", func(t *testing.T) {
		fs := vfskit.NewFilesystem(newAdapter(t))

		ok, err := fs.Put(ctx, "/put/../put.txt", []byte("first"))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = fs.Put(ctx, "put.txt", []byte("second"))
		require.NoError(t, err)
		require.True(t, ok)

		contents, ok, err := fs.Read(ctx, "put.txt")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "second", string(contents))

		_, err = fs.Write(ctx, "put.txt", []byte("again"))
		assert.True(t, vfskit.IsExist(err))
	})
}

func paths(listing []vfskit.Metadata) []string {
	out := make([]string, 0, len(listing))
	for _, entry := range listing {
		out = append(out, entry.Path)
	}
	return out
}
