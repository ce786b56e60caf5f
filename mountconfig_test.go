package vfskit

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mountYAML = `
logging:
  level: debug
  format: json
mounts:
  - prefix: uploads
    driver: mock
    visibility: private
    options:
      root: /srv/uploads
    decorate:
      breaker:
        max_failures: 3
        timeout: 10s
      validation:
        max_file_size: 1024
        blocked_extensions: [".bat"]
  - prefix: archive
    driver: mock
    disable_asserts: true
    case_sensitive: false
    decorate:
      read_only: true
`

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadMountConfig(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		table, err := LoadMountConfig(writeFile(t, "mounts.yaml", mountYAML))
		require.NoError(t, err)

		assert.Equal(t, "debug", table.Logging.Level)
		assert.Equal(t, "json", table.Logging.Format)
		require.Len(t, table.Mounts, 2)

		uploads := table.Mounts[0]
		assert.Equal(t, "uploads", uploads.Prefix)
		assert.Equal(t, "mock", uploads.Driver)
		assert.Equal(t, "private", uploads.Visibility)
		assert.Equal(t, "/srv/uploads", uploads.Options["root"])
		require.NotNil(t, uploads.Decorate.Breaker)
		assert.EqualValues(t, 3, uploads.Decorate.Breaker.MaxFailures)
		assert.Equal(t, 10*time.Second, uploads.Decorate.Breaker.Timeout)
		require.NotNil(t, uploads.Decorate.Validation)
		assert.EqualValues(t, 1024, uploads.Decorate.Validation.MaxFileSize)
		assert.Equal(t, []string{".bat"}, uploads.Decorate.Validation.BlockedExtensions)
		assert.Nil(t, uploads.CaseSensitive)

		archive := table.Mounts[1]
		assert.True(t, archive.DisableAsserts)
		assert.True(t, archive.Decorate.ReadOnly)
		require.NotNil(t, archive.CaseSensitive)
		assert.False(t, *archive.CaseSensitive)
	})

	t.Run("json", func(t *testing.T) {
		path := writeFile(t, "mounts.json", `{"mounts": [{"prefix": "mem", "driver": "mock"}]}`)
		table, err := LoadMountConfig(path)
		require.NoError(t, err)

		assert.Equal(t, "info", table.Logging.Level)
		assert.Equal(t, "text", table.Logging.Format)
		require.Len(t, table.Mounts, 1)
		assert.Equal(t, "mem", table.Mounts[0].Prefix)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("VFSKIT_LOGGING_LEVEL", "warn")
		table, err := LoadMountConfig(writeFile(t, "mounts.yaml", mountYAML))
		require.NoError(t, err)
		assert.Equal(t, "warn", table.Logging.Level)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := LoadMountConfig("")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadMountConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "failed to read mount config")
	})
}

func TestMountTableValidate(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "no mounts",
			yaml:   "logging:\n  level: info\n",
			errMsg: "Mounts",
		},
		{
			name:   "missing driver",
			yaml:   "mounts:\n  - prefix: a\n",
			errMsg: "Driver",
		},
		{
			name:   "bad visibility",
			yaml:   "mounts:\n  - prefix: a\n    driver: mock\n    visibility: secret\n",
			errMsg: "'oneof'",
		},
		{
			name:   "bad log level",
			yaml:   "logging:\n  level: loud\nmounts:\n  - prefix: a\n    driver: mock\n",
			errMsg: "Level",
		},
		{
			name:   "bad encryption key",
			yaml:   "mounts:\n  - prefix: a\n    driver: mock\n    decorate:\n      encryption_key: '%%%'\n",
			errMsg: "'base64'",
		},
		{
			name:   "duplicate prefix",
			yaml:   "mounts:\n  - prefix: a\n    driver: mock\n  - prefix: a\n    driver: mock\n",
			errMsg: "duplicate prefix",
		},
		{
			name:   "prefix with separator",
			yaml:   "mounts:\n  - prefix: 'a://b'\n    driver: mock\n",
			errMsg: "must not contain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMountConfig(writeFile(t, "mounts.yaml", tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestBuildMountManager(t *testing.T) {
	ctx := context.Background()

	t.Run("mounts decorated filesystems", func(t *testing.T) {
		table, err := LoadMountConfig(writeFile(t, "mounts.yaml", mountYAML))
		require.NoError(t, err)

		mm, err := BuildMountManager(ctx, table)
		require.NoError(t, err)
		defer mm.Close()

		assert.Equal(t, []string{"archive", "uploads"}, mm.Prefixes())

		uploads, err := mm.GetFilesystem("uploads")
		require.NoError(t, err)
		assert.Equal(t, "private", uploads.Config().GetString(KeyVisibility, ""))
		_, ok := uploads.Adapter().(*ValidatedAdapter)
		assert.True(t, ok, "uploads should be validated")

		ok, err = mm.Write(ctx, "uploads://a.txt", []byte("hello"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = mm.Write(ctx, "uploads://run.bat", []byte("echo"))
		require.NoError(t, err)
		assert.False(t, ok, "blocked extension")

		ok, err = mm.Write(ctx, "archive://a.txt", []byte("hello"))
		require.NoError(t, err)
		assert.False(t, ok, "archive is read-only")

		archive, err := mm.GetFilesystem("archive")
		require.NoError(t, err)
		assert.False(t, archive.Config().GetBool(KeyCaseSensitive, true))
		_, ok = archive.Adapter().(*ReadOnlyAdapter)
		assert.True(t, ok, "archive should be read-only")
	})

	t.Run("unknown driver", func(t *testing.T) {
		table := &MountTable{Mounts: []MountConfig{
			{Prefix: "a", Driver: "mock"},
			{Prefix: "b", Driver: "no-such-driver"},
		}}
		_, err := BuildMountManager(ctx, table)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mount b: failed to create driver")
	})

	t.Run("invalid decoration", func(t *testing.T) {
		table := &MountTable{Mounts: []MountConfig{
			{Prefix: "a", Driver: "mock", Decorate: Decorations{EncryptionKey: "c2hvcnQ="}},
		}}
		_, err := BuildMountManager(ctx, table)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("invalid table", func(t *testing.T) {
		_, err := BuildMountManager(ctx, &MountTable{})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestWriteMountConfig(t *testing.T) {
	caseSensitive := false
	table := &MountTable{
		Logging: LoggingConfig{Level: "error", Format: "text"},
		Mounts: []MountConfig{
			{
				Prefix:        "docs",
				Driver:        "mock",
				Options:       DriverOptions{"root": "/data"},
				Visibility:    "public",
				CaseSensitive: &caseSensitive,
				Decorate: Decorations{
					Breaker:  &BreakerConfig{MaxFailures: 2, Timeout: time.Minute},
					ReadOnly: true,
				},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMountConfig(&buf, table))
	assert.Contains(t, buf.String(), "prefix: docs")
	assert.Contains(t, buf.String(), "timeout: 1m0s")
	assert.NotContains(t, buf.String(), "rate_limit")

	loaded, err := LoadMountConfig(writeFile(t, "mounts.yaml", buf.String()))
	require.NoError(t, err)

	require.Len(t, loaded.Mounts, 1)
	got := loaded.Mounts[0]
	assert.Equal(t, "error", loaded.Logging.Level)
	assert.Equal(t, "docs", got.Prefix)
	assert.Equal(t, "/data", got.Options["root"])
	assert.Equal(t, "public", got.Visibility)
	require.NotNil(t, got.CaseSensitive)
	assert.False(t, *got.CaseSensitive)
	require.NotNil(t, got.Decorate.Breaker)
	assert.Equal(t, time.Minute, got.Decorate.Breaker.Timeout)
	assert.True(t, got.Decorate.ReadOnly)
}
