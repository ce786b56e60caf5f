package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/vfskit"
	"github.com/gobeaver/vfskit/internal/adaptertest"
)

func newAdapter(t *testing.T, cfg ...Config) *Adapter {
	t.Helper()
	c := Config{}
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.Root == "" {
		c.Root = t.TempDir()
	}
	a, err := New(c)
	require.NoError(t, err)
	return a
}

func TestAdapterConformance(t *testing.T) {
	adaptertest.Run(t, func(t *testing.T) vfskit.Adapter {
		return newAdapter(t)
	})
}

func TestNew(t *testing.T) {
	t.Run("creates the root", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "root")
		a := newAdapter(t, Config{Root: root})
		assert.Equal(t, root, a.Root())

		info, err := os.Stat(root)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("requires a root", func(t *testing.T) {
		_, err := New(Config{})
		assert.ErrorIs(t, err, vfskit.ErrInvalidConfig)
	})

	t.Run("rejects unknown link handling", func(t *testing.T) {
		_, err := New(Config{Root: t.TempDir(), Links: "follow"})
		assert.ErrorIs(t, err, vfskit.ErrInvalidConfig)
	})

	t.Run("from driver options", func(t *testing.T) {
		root := t.TempDir()
		a, err := vfskit.CreateAdapter(context.Background(), "local", vfskit.DriverOptions{
			"root":  root,
			"links": "disallow",
		})
		require.NoError(t, err)

		local := a.(*Adapter)
		assert.Equal(t, root, local.Root())
		assert.Equal(t, LinkDisallow, local.links)
	})
}

func TestRootConfinement(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	_, err := a.Read(ctx, "../outside.txt")
	assert.True(t, vfskit.IsRootViolation(err))

	_, err = a.Write(ctx, "../../etc/passwd", []byte("x"), nil)
	assert.True(t, vfskit.IsRootViolation(err))

	err = a.DeleteDir(ctx, "")
	assert.True(t, vfskit.IsRootViolation(err))
}

func TestPermissions(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	mode := func(p string) os.FileMode {
		info, err := os.Stat(filepath.Join(a.Root(), p))
		require.NoError(t, err)
		return info.Mode().Perm()
	}

	_, err := a.Write(ctx, "public.txt", []byte("x"), vfskit.NewConfigFromOptions(vfskit.WithVisibility(vfskit.Public)))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), mode("public.txt"))

	_, err = a.Write(ctx, "private.txt", []byte("x"), vfskit.NewConfigFromOptions(vfskit.WithVisibility(vfskit.Private)))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), mode("private.txt"))

	_, err = a.CreateDir(ctx, "secret", vfskit.NewConfigFromOptions(vfskit.WithVisibility(vfskit.Private)))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), mode("secret"))

	_, err = a.SetVisibility(ctx, "secret", vfskit.Public)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), mode("secret"))

	meta, err := a.GetVisibility(ctx, "private.txt")
	require.NoError(t, err)
	assert.Equal(t, vfskit.Private, *meta.Visibility)

	require.NoError(t, a.Copy(ctx, "private.txt", "copy.txt"))
	assert.Equal(t, os.FileMode(0o600), mode("copy.txt"))
}

func TestAtomicWrite(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	for i := 0; i < 3; i++ {
		_, err := a.Write(ctx, "dir/file.txt", []byte(strings.Repeat("x", i+1)), nil)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Join(a.Root(), "dir"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files are left behind")
	assert.Equal(t, "file.txt", entries[0].Name())

	obj, err := a.Read(ctx, "dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "xxx", string(obj.Contents))
}

func TestLinks(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("t"), 0o644))

	setup := func(t *testing.T, links LinkHandling) *Adapter {
		a := newAdapter(t, Config{Links: links})
		_, err := a.Write(ctx, "real.txt", []byte("r"), nil)
		require.NoError(t, err)
		require.NoError(t, os.Symlink(target, filepath.Join(a.Root(), "link.txt")))
		return a
	}

	t.Run("skip", func(t *testing.T) {
		a := setup(t, LinkSkip)
		listing, err := a.ListContents(ctx, "", true)
		require.NoError(t, err)
		require.Len(t, listing, 1)
		assert.Equal(t, "real.txt", listing[0].Path)
	})

	t.Run("disallow", func(t *testing.T) {
		a := setup(t, LinkDisallow)
		_, err := a.ListContents(ctx, "", true)
		assert.ErrorIs(t, err, ErrLinkNotSupported)
		assert.ErrorIs(t, err, vfskit.ErrNotSupported)
	})
}

func TestListContents(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	t.Run("missing directory is empty", func(t *testing.T) {
		listing, err := a.ListContents(ctx, "nope", true)
		require.NoError(t, err)
		assert.Empty(t, listing)
	})

	t.Run("shallow listing of a subdirectory", func(t *testing.T) {
		_, err := a.Write(ctx, "docs/a.txt", []byte("a"), nil)
		require.NoError(t, err)
		_, err = a.Write(ctx, "docs/deep/b.txt", []byte("bb"), nil)
		require.NoError(t, err)

		listing, err := a.ListContents(ctx, "docs", false)
		require.NoError(t, err)

		got := map[string]vfskit.FileType{}
		for _, m := range listing {
			got[m.Path] = m.Type
		}
		assert.Equal(t, map[string]vfskit.FileType{
			"docs/a.txt": vfskit.TypeFile,
			"docs/deep":  vfskit.TypeDir,
		}, got)
	})
}

func TestDeleteKinds(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	_, err := a.CreateDir(ctx, "dir", nil)
	require.NoError(t, err)
	_, err = a.Write(ctx, "file.txt", []byte("x"), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, a.Delete(ctx, "dir"), ErrIsDir)
	assert.ErrorIs(t, a.DeleteDir(ctx, "file.txt"), ErrNotDir)
	assert.True(t, vfskit.IsNotFound(a.Delete(ctx, "missing.txt")))

	_, err = a.CreateDir(ctx, "file.txt", nil)
	assert.True(t, vfskit.IsExist(err))
}

func TestGetMimetype(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err := a.Write(ctx, "image.bin", png, nil)
	require.NoError(t, err)

	meta, err := a.GetMimetype(ctx, "image.bin")
	require.NoError(t, err)
	assert.Equal(t, "image/png", *meta.Mimetype)
}

func TestWatch(t *testing.T) {
	a := newAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token, err := a.Watch(ctx, "*.txt")
	require.NoError(t, err)
	assert.True(t, token.ActiveChangeCallbacks())
	assert.False(t, token.HasChanged())

	fired := make(chan struct{})
	token.RegisterChangeCallback(func() { close(fired) })

	_, err = a.Write(context.Background(), "notes.txt", []byte("hi"), nil)
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("change token did not fire")
	}
	assert.True(t, token.HasChanged())

	_, err = a.Watch(ctx, "[")
	assert.True(t, vfskit.IsInvalidArgument(err))
}

func TestStaticPrefix(t *testing.T) {
	tests := map[string]string{
		"*.txt":            "",
		"config/*":         "config",
		"logs/2024/**":     "logs/2024",
		"docs/readme.md":   "docs",
		"readme.md":        "",
		"a/b/{x,y}/c.json": "a/b",
	}
	for pattern, want := range tests {
		assert.Equal(t, want, staticPrefix(pattern), pattern)
	}
}
