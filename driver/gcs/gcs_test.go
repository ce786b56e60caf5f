package gcs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/vfskit"
	"github.com/gobeaver/vfskit/internal/adaptertest"
)

func TestAdapterConformance(t *testing.T) {
	t.Run("with prefix", func(t *testing.T) {
		adaptertest.Run(t, func(t *testing.T) vfskit.Adapter {
			return newAdapter(newFakeStore(), WithPrefix("tenant/a"))
		})
	})

	t.Run("uniform bucket access", func(t *testing.T) {
		adaptertest.Run(t, func(t *testing.T) vfskit.Adapter {
			return newAdapter(newFakeStore(), WithoutACL())
		})
	})
}

func TestVisibility(t *testing.T) {
	ctx := context.Background()
	fake := newFakeStore()
	a := newAdapter(fake)

	meta, err := a.Write(ctx, "secret.txt", []byte("x"), vfskit.NewConfigFromOptions(vfskit.WithVisibility(vfskit.Private)))
	require.NoError(t, err)
	assert.Equal(t, vfskit.Private, *meta.Visibility)

	obj, ok := fake.get("secret.txt")
	require.True(t, ok)
	assert.Equal(t, aclPrivate, obj.acl)

	meta, err = a.GetVisibility(ctx, "secret.txt")
	require.NoError(t, err)
	assert.Equal(t, vfskit.Private, *meta.Visibility)

	require.NoError(t, a.Copy(ctx, "secret.txt", "copy.txt"))
	copied, _ := fake.get("copy.txt")
	assert.Equal(t, aclPrivate, copied.acl)

	_, err = a.SetVisibility(ctx, "secret.txt", vfskit.Public)
	require.NoError(t, err)
	meta, err = a.GetVisibility(ctx, "secret.txt")
	require.NoError(t, err)
	assert.Equal(t, vfskit.Public, *meta.Visibility)

	_, err = a.SetVisibility(ctx, "missing.txt", vfskit.Public)
	assert.True(t, vfskit.IsNotFound(err))

	t.Run("without acl", func(t *testing.T) {
		plain := newAdapter(fake, WithoutACL())
		_, err := plain.Write(ctx, "plain.txt", []byte("x"), nil)
		require.NoError(t, err)

		obj, _ := fake.get("plain.txt")
		assert.Empty(t, obj.acl)

		_, err = plain.GetVisibility(ctx, "plain.txt")
		assert.ErrorIs(t, err, vfskit.ErrNotSupported)
	})
}

func TestDirectories(t *testing.T) {
	ctx := context.Background()
	fake := newFakeStore()
	a := newAdapter(fake, WithPrefix("/root/"))

	_, err := a.CreateDir(ctx, "empty", nil)
	require.NoError(t, err)
	obj, ok := fake.get("root/empty/")
	require.True(t, ok)
	assert.Equal(t, "application/x-directory", obj.contentType)

	_, err = a.Write(ctx, "x/y/z.txt", []byte("z"), nil)
	require.NoError(t, err)

	meta, err := a.GetMetadata(ctx, "x/y")
	require.NoError(t, err)
	assert.True(t, meta.IsDir())

	shallow, err := a.ListContents(ctx, "", false)
	require.NoError(t, err)
	assert.Len(t, shallow, 2)
	for _, entry := range shallow {
		assert.True(t, entry.IsDir(), entry.Path)
	}

	deep, err := a.ListContents(ctx, "x", true)
	require.NoError(t, err)
	var paths []string
	for _, entry := range deep {
		paths = append(paths, entry.Path)
	}
	assert.ElementsMatch(t, []string{"x/y", "x/y/z.txt"}, paths)

	require.NoError(t, a.DeleteDir(ctx, "x"))
	has, err := a.Has(ctx, "x")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = a.Has(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, has)

	assert.True(t, vfskit.IsRootViolation(a.DeleteDir(ctx, "")))
}

func TestStreamMimetype(t *testing.T) {
	ctx := context.Background()
	fake := newFakeStore()
	a := newAdapter(fake)

	_, err := a.WriteStream(ctx, "page.html", strings.NewReader("<html></html>"), nil)
	require.NoError(t, err)

	meta, err := a.GetMimetype(ctx, "page.html")
	require.NoError(t, err)
	assert.Equal(t, "text/html", *meta.Mimetype)
}

func TestNewFromConfig(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{})
	assert.ErrorIs(t, err, vfskit.ErrInvalidConfig)

	a := newAdapter(newFakeStore())
	assert.NoError(t, a.Close())
}
