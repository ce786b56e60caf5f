package vfskit

import (
	"context"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("reports progress", func(t *testing.T) {
		mock := newMockAdapter()
		fs := NewFilesystem(mock)

		var reported []int64
		ok, err := Upload(ctx, fs, "data.bin", iotest.OneByteReader(strings.NewReader("0123456789")), 10, &UploadOptions{
			Progress: func(n, total int64) {
				assert.EqualValues(t, 10, total)
				reported = append(reported, n)
			},
			ProgressStep: 4,
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []int64{4, 8, 10}, reported)
		assert.Equal(t, "0123456789", string(mock.files["data.bin"]))
	})

	t.Run("passes options", func(t *testing.T) {
		mock := newMockAdapter()
		fs := NewFilesystem(mock)

		ok, err := Upload(ctx, fs, "doc.txt", strings.NewReader("x"), 1, &UploadOptions{
			Mimetype:   "text/markdown",
			Visibility: Private,
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, Private, mock.vis["doc.txt"])
		assert.Equal(t, "text/markdown", mock.lastCfg.GetString(KeyMimetype, ""))
	})

	t.Run("replaces existing files", func(t *testing.T) {
		mock := newMockAdapter()
		mock.put("doc.txt", "old")
		fs := NewFilesystem(mock)

		ok, err := Upload(ctx, fs, "doc.txt", strings.NewReader("new"), 3, nil)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, mock.called("updatestream"))
		assert.Equal(t, "new", string(mock.files["doc.txt"]))
	})

	t.Run("nil reader", func(t *testing.T) {
		_, err := Upload(ctx, NewFilesystem(newMockAdapter()), "x", nil, 0, nil)
		assert.True(t, IsInvalidArgument(err))
	})
}
