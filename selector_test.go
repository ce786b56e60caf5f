package vfskit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectorFS() (*Filesystem, *mockAdapter) {
	mock := newMockAdapter()
	mock.put("a.txt", "a")
	mock.put("docs/b.txt", "bb")
	mock.put("docs/deep/c.md", "ccc")
	mock.put("docs/deep/d.txt", "dddd")
	mock.dirs["docs"] = true
	mock.dirs["docs/deep"] = true
	return NewFilesystem(mock), mock
}

func paths(listing []Metadata) []string {
	out := make([]string, 0, len(listing))
	for _, m := range listing {
		out = append(out, m.Path)
	}
	return out
}

func TestFindFiles(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		directory string
		selector  Selector
		recursive bool
		want      []string
	}{
		{"all", "", nil, true, []string{"a.txt", "docs/b.txt", "docs/deep/c.md", "docs/deep/d.txt"}},
		{"shallow", "", All(), false, []string{"a.txt"}},
		{"glob", "", Glob("*.txt"), true, []string{"a.txt", "docs/b.txt", "docs/deep/d.txt"}},
		{"glob alternatives", "docs", Glob("{c,d}.*"), true, []string{"docs/deep/c.md", "docs/deep/d.txt"}},
		{"invalid glob", "", Glob("["), true, []string{}},
		{"depth", "", Depth(2, ""), true, []string{"a.txt", "docs/b.txt"}},
		{"depth from base", "docs", Depth(1, "docs"), true, []string{"docs/b.txt"}},
		{"not", "", Not(Glob("*.txt")), true, []string{"docs/deep/c.md"}},
		{"or", "", Or(Glob("a.*"), Glob("*.md")), true, []string{"a.txt", "docs/deep/c.md"}},
		{"and", "", And(Glob("*.txt"), Depth(2, "")), true, []string{"a.txt", "docs/b.txt"}},
		{"func", "", FuncSelector(func(m *Metadata) bool {
			return m.Size != nil && *m.Size >= 3
		}), true, []string{"docs/deep/c.md", "docs/deep/d.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, _ := selectorFS()
			got, err := FindFiles(ctx, fs, tt.directory, tt.selector, tt.recursive)
			require.NoError(t, err)
			assert.Equal(t, tt.want, paths(got))
		})
	}

	t.Run("pruned directories are not listed", func(t *testing.T) {
		fs, mock := selectorFS()
		sel := FuncSelectorFull(
			func(*Metadata) bool { return true },
			func(m *Metadata) bool { return m.Path != "docs/deep" },
		)

		got, err := FindFiles(ctx, fs, "", sel, true)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "docs/b.txt"}, paths(got))
		assert.Equal(t, 2, mock.called("listcontents"))
	})

	t.Run("canceled context", func(t *testing.T) {
		fs, _ := selectorFS()
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := FindFiles(canceled, fs, "", nil, true)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
