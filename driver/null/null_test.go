package null

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/vfskit"
)

func TestFilesystem(t *testing.T) {
	ctx := context.Background()
	fs := vfskit.NewFilesystem(New())

	ok, err := fs.Write(ctx, "path", []byte("contents"))
	require.NoError(t, err)
	assert.True(t, ok)

	has, err := fs.Has(ctx, "path")
	require.NoError(t, err)
	assert.False(t, has)

	_, _, err = fs.Read(ctx, "something")
	assert.True(t, vfskit.IsNotFound(err))
}

func TestExpectedFails(t *testing.T) {
	ctx := context.Background()
	a := New()
	cfg := vfskit.NewConfig(nil)

	calls := map[string]func() error{
		"read":          func() error { _, err := a.Read(ctx, "one"); return err },
		"readstream":    func() error { _, err := a.ReadStream(ctx, "one"); return err },
		"update":        func() error { _, err := a.Update(ctx, "one", []byte("two"), cfg); return err },
		"updatestream":  func() error { _, err := a.UpdateStream(ctx, "one", strings.NewReader("two"), cfg); return err },
		"rename":        func() error { return a.Rename(ctx, "one", "two") },
		"copy":          func() error { return a.Copy(ctx, "one", "two") },
		"delete":        func() error { return a.Delete(ctx, "one") },
		"deletedir":     func() error { return a.DeleteDir(ctx, "one") },
		"getmetadata":   func() error { _, err := a.GetMetadata(ctx, "one"); return err },
		"getsize":       func() error { _, err := a.GetSize(ctx, "one"); return err },
		"getmimetype":   func() error { _, err := a.GetMimetype(ctx, "one"); return err },
		"gettimestamp":  func() error { _, err := a.GetTimestamp(ctx, "one"); return err },
		"getvisibility": func() error { _, err := a.GetVisibility(ctx, "one"); return err },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			assert.True(t, vfskit.IsNotFound(err), "got %v", err)
		})
	}

	listing, err := a.ListContents(ctx, "one", true)
	require.NoError(t, err)
	assert.Empty(t, listing)
}

func TestSuccessfulResults(t *testing.T) {
	ctx := context.Background()
	a := New()
	cfg := vfskit.NewConfigFromOptions(vfskit.WithVisibility(vfskit.Public))

	meta, err := a.Write(ctx, "one", []byte("contents"), cfg)
	require.NoError(t, err)
	assert.Equal(t, "one", meta.Path)
	assert.Equal(t, vfskit.Public, *meta.Visibility)
	assert.EqualValues(t, 8, *meta.Size)

	meta, err = a.WriteStream(ctx, "one", strings.NewReader("streamed"), cfg)
	require.NoError(t, err)
	assert.EqualValues(t, 8, *meta.Size)

	meta, err = a.CreateDir(ctx, "one", cfg)
	require.NoError(t, err)
	assert.Equal(t, vfskit.TypeDir, meta.Type)

	meta, err = a.SetVisibility(ctx, "one", vfskit.Private)
	require.NoError(t, err)
	assert.Equal(t, vfskit.Private, *meta.Visibility)
}
