package vfskit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmulateDirectories(t *testing.T) {
	input := []Metadata{
		{Path: "dummy", Type: TypeFile},
		{Path: "something/dummy", Type: TypeFile},
		{Path: "something/dirname", Type: TypeDir},
	}

	output := EmulateDirectories(input)
	assert.Len(t, output, 4)
	assert.Equal(t, Metadata{Path: "something", Type: TypeDir}, output[3])
}

func TestEmulateDirectoriesNested(t *testing.T) {
	output := EmulateDirectories([]Metadata{{Path: "a/b/c.txt", Type: TypeFile}})
	assert.Equal(t, []string{"a/b/c.txt", "a", "a/b"}, metadataPaths(output))
}

func TestFormatListing(t *testing.T) {
	listing := []Metadata{
		{Path: "Dir/B.txt"},
		{Path: "dir/a.txt"},
		{Path: ""},
		{Path: "dir/sub/c.txt"},
		{Path: "elsewhere.txt"},
	}

	t.Run("case sensitive", func(t *testing.T) {
		got := FormatListing("dir", false, true, listing)
		assert.Equal(t, []string{"dir/a.txt"}, metadataPaths(got))
	})

	t.Run("case insensitive", func(t *testing.T) {
		got := FormatListing("dir", false, false, listing)
		assert.Equal(t, []string{"dir/a.txt", "Dir/B.txt"}, metadataPaths(got))
	})

	t.Run("recursive from root", func(t *testing.T) {
		got := FormatListing("", true, true, listing)
		assert.Equal(t, []string{"dir/a.txt", "Dir/B.txt", "dir/sub/c.txt", "elsewhere.txt"}, metadataPaths(got))
	})
}
