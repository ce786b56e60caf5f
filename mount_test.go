package vfskit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMountFixture(t *testing.T) (*MountManager, *mockAdapter, *mockAdapter) {
	t.Helper()
	a1, a2 := newMockAdapter(), newMockAdapter()
	mm, err := NewMountManager(map[string]*Filesystem{
		"fs1": NewFilesystem(a1),
		"fs2": NewFilesystem(a2),
	})
	require.NoError(t, err)
	return mm, a1, a2
}

func TestMountManagerMounting(t *testing.T) {
	fs := NewFilesystem(newMockAdapter())

	t.Run("constructor injection", func(t *testing.T) {
		mm, err := NewMountManager(map[string]*Filesystem{"prefix": fs})
		require.NoError(t, err)

		got, err := mm.GetFilesystem("prefix")
		require.NoError(t, err)
		assert.Same(t, fs, got)
		assert.Equal(t, []string{"prefix"}, mm.Prefixes())
	})

	t.Run("invalid prefixes", func(t *testing.T) {
		mm, err := NewMountManager(nil)
		require.NoError(t, err)

		assert.True(t, IsInvalidArgument(mm.MountFilesystem("", fs)))
		assert.True(t, IsInvalidArgument(mm.MountFilesystem("a://b", fs)))
		assert.True(t, IsInvalidArgument(mm.MountFilesystem("nil", nil)))

		_, err = NewMountManager(map[string]*Filesystem{"": fs})
		assert.True(t, IsInvalidArgument(err))
	})

	t.Run("undefined filesystem", func(t *testing.T) {
		mm, err := NewMountManager(nil)
		require.NoError(t, err)

		_, err = mm.GetFilesystem("prefix")
		assert.ErrorIs(t, err, ErrFilesystemNotFound)
	})

	t.Run("remount replaces", func(t *testing.T) {
		other := NewFilesystem(newMockAdapter())
		mm, err := NewMountManager(map[string]*Filesystem{"p": fs})
		require.NoError(t, err)
		require.NoError(t, mm.MountFilesystem("p", other))

		got, err := mm.GetFilesystem("p")
		require.NoError(t, err)
		assert.Same(t, other, got)
	})
}

func TestParseURI(t *testing.T) {
	prefix, path, err := ParseURI("s3://a/b://c")
	require.NoError(t, err)
	assert.Equal(t, "s3", prefix)
	assert.Equal(t, "a/b://c", path)

	for _, uri := range []string{"path/without/protocol", "://no-prefix", ""} {
		_, _, err := ParseURI(uri)
		assert.True(t, IsInvalidArgument(err), uri)
	}
}

func TestMountManagerInvoke(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid arguments", func(t *testing.T) {
		mm, _, _ := newMountFixture(t)

		_, err := mm.Invoke(ctx, "has")
		assert.True(t, IsInvalidArgument(err))
		_, err = mm.Invoke(ctx, "has", false)
		assert.True(t, IsInvalidArgument(err))
		_, err = mm.Invoke(ctx, "has", "path/without/protocol")
		assert.True(t, IsInvalidArgument(err))
		_, err = mm.Invoke(ctx, "has", "nope://file.ext")
		assert.ErrorIs(t, err, ErrFilesystemNotFound)
	})

	t.Run("forwards with the prefix stripped", func(t *testing.T) {
		for _, schema := range []string{"with.dot", "with-dash", "with+plus", "with:colon"} {
			fs := NewFilesystem(newMockAdapter(), WithPlugins(&echoPlugin{}))
			mm, err := NewMountManager(map[string]*Filesystem{schema: fs})
			require.NoError(t, err)

			got, err := mm.Invoke(ctx, "beAwesome", schema+"://file.ext")
			require.NoError(t, err)
			assert.Equal(t, "file.ext", got, schema)
		}
	})

	t.Run("manager plugins come first", func(t *testing.T) {
		fs := NewFilesystem(newMockAdapter())
		shadow := &shadowPlugin{}
		mm, err := NewMountManager(map[string]*Filesystem{"p": fs}, WithMountPlugins(shadow))
		require.NoError(t, err)

		got, err := mm.Invoke(ctx, "has", "p://file.ext")
		require.NoError(t, err)
		assert.Equal(t, "shadowed", got)
		assert.Same(t, fs, shadow.bound)
	})

	t.Run("unknown methods", func(t *testing.T) {
		mm, _, _ := newMountFixture(t)

		_, err := mm.Invoke(ctx, "aMethodCall", "fs1://file.ext")
		assert.True(t, IsMethodNotFound(err))
	})
}

func TestMountManagerCopy(t *testing.T) {
	ctx := context.Background()
	mm, a1, a2 := newMountFixture(t)
	a1.put("test1.txt", "payload")

	ok, err := mm.Copy(ctx, "fs1://test1.txt", "fs2://test1.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "payload", string(a2.files["test1.txt"]))
	assert.Contains(t, a1.files, "test1.txt")
	assert.Zero(t, a1.openStreams(), "source stream closed after copy")

	t.Run("failed read", func(t *testing.T) {
		a1.put("test2.txt", "x")
		a1.fail["readstream"] = true
		defer delete(a1.fail, "readstream")

		ok, err := mm.Copy(ctx, "fs1://test2.txt", "fs2://test2.txt")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NotContains(t, a2.files, "test2.txt")
	})

	t.Run("failed write", func(t *testing.T) {
		a1.put("test3.txt", "x")
		a2.fail["writestream"] = true
		defer delete(a2.fail, "writestream")

		ok, err := mm.Copy(ctx, "fs1://test3.txt", "fs2://test3.txt")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, a1.openStreams(), "source stream closed after failed write")
	})

	t.Run("unknown destination", func(t *testing.T) {
		a1.put("test4.txt", "x")
		opened := len(a1.streams)

		ok, err := mm.Copy(ctx, "fs1://test4.txt", "nowhere://test4.txt")
		assert.ErrorIs(t, err, ErrFilesystemNotFound)
		assert.False(t, ok)
		require.Len(t, a1.streams, opened+1)
		assert.Zero(t, a1.openStreams(), "source stream closed when the destination does not resolve")
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := mm.Copy(ctx, "fs1://missing.txt", "fs2://missing.txt")
		assert.True(t, IsNotFound(err))
	})

	t.Run("destination options", func(t *testing.T) {
		a1.put("vis.txt", "x")

		ok, err := mm.Copy(ctx, "fs1://vis.txt", "fs2://vis.txt", WithVisibility(Private))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, Private, a2.vis["vis.txt"])
	})
}

func TestMountManagerMove(t *testing.T) {
	ctx := context.Background()

	t.Run("between filesystems", func(t *testing.T) {
		mm, a1, a2 := newMountFixture(t)
		a1.put("test.txt", "x")

		ok, err := mm.Move(ctx, "fs1://test.txt", "fs2://test.txt")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotContains(t, a1.files, "test.txt")
		assert.Contains(t, a2.files, "test.txt")
	})

	t.Run("failed copy keeps the source", func(t *testing.T) {
		mm, a1, a2 := newMountFixture(t)
		a1.put("test.txt", "x")
		a2.fail["writestream"] = true

		ok, err := mm.Move(ctx, "fs1://test.txt", "fs2://test.txt")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Contains(t, a1.files, "test.txt")
		assert.Zero(t, a1.called("delete"))
	})

	t.Run("within one filesystem", func(t *testing.T) {
		mm, a1, _ := newMountFixture(t)
		a1.put("old.txt", "x")

		ok, err := mm.Move(ctx, "fs1://old.txt", "fs1://new.txt")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, a1.called("rename"))
		assert.Zero(t, a1.called("setvisibility"))

		ok, err = mm.Move(ctx, "fs1://new.txt", "fs1://newer.txt", WithVisibility(Private))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, Private, a1.vis["newer.txt"])
		assert.Zero(t, a1.called("copy"))
	})
}

func TestMountManagerListContents(t *testing.T) {
	ctx := context.Background()
	mm, a1, a2 := newMountFixture(t)
	for _, a := range []*mockAdapter{a1, a2} {
		a.put("tests/files/path.txt", "x")
		a.put("tests/files/dirname/path.txt", "y")
	}

	for _, prefix := range []string{"fs1", "fs2"} {
		listing, err := mm.ListContents(ctx, prefix+"://tests/files", true)
		require.NoError(t, err)
		require.Len(t, listing, 2)
		for _, entry := range listing {
			assert.Equal(t, prefix, entry.Filesystem)
		}
	}
}

func TestMountManagerListWith(t *testing.T) {
	ctx := context.Background()
	fs := NewFilesystem(newMockAdapter(), WithPlugins(&recordArgsPlugin{}))
	mm, err := NewMountManager(map[string]*Filesystem{"prot": fs})
	require.NoError(t, err)

	got, err := mm.ListWith(ctx, []string{"timestamp"}, "prot://file.ext", false)
	require.NoError(t, err)
	assert.Equal(t, []any{[]string{"timestamp"}, "file.ext", false}, got)

	_, err = NewFilesystem(newMockAdapter()).Invoke(ctx, "listWith")
	assert.True(t, IsMethodNotFound(err))
}

func TestMountManagerForwarding(t *testing.T) {
	ctx := context.Background()
	mm, a1, _ := newMountFixture(t)

	ok, err := mm.Write(ctx, "fs1://a.txt", []byte("a"))
	require.NoError(t, err)
	assert.True(t, ok)

	has, err := mm.Has(ctx, "fs1://a.txt")
	require.NoError(t, err)
	assert.True(t, has)

	contents, ok, err := mm.Read(ctx, "fs1://a.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", string(contents))

	ok, err = mm.Put(ctx, "fs1://a.txt", []byte("b"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", string(a1.files["a.txt"]))

	size, ok, err := mm.GetSize(ctx, "fs1://a.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, size)

	ok, err = mm.Delete(ctx, "fs1://a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = mm.DeleteDir(ctx, "fs1://")
	assert.True(t, IsRootViolation(err))

	_, err = mm.Has(ctx, "fs9://a.txt")
	assert.ErrorIs(t, err, ErrFilesystemNotFound)
}

// recordArgsPlugin returns the arguments it received.
type recordArgsPlugin struct {
	BasePlugin
}

func (p *recordArgsPlugin) Method() string { return "listWith" }

func (p *recordArgsPlugin) Handle(_ context.Context, args ...any) (any, error) {
	return args, nil
}
