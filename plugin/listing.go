package plugin

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"

	"github.com/gobeaver/vfskit"
)

// ListFiles lists only the files of a directory.
//
//	fs.Invoke(ctx, "listFiles", "dirname", recursive) // []vfskit.Metadata
type ListFiles struct {
	vfskit.BasePlugin
}

func (p *ListFiles) Method() string { return "listFiles" }

func (p *ListFiles) Handle(ctx context.Context, args ...any) (any, error) {
	listing, err := listArgs(ctx, p.Filesystem(), args, 0)
	if err != nil {
		return nil, err
	}

	files := make([]vfskit.Metadata, 0, len(listing))
	for _, item := range listing {
		if item.IsFile() {
			files = append(files, item)
		}
	}
	return files, nil
}

// ListPaths lists the paths of a directory.
//
//	fs.Invoke(ctx, "listPaths", "dirname", recursive) // []string
type ListPaths struct {
	vfskit.BasePlugin
}

func (p *ListPaths) Method() string { return "listPaths" }

func (p *ListPaths) Handle(ctx context.Context, args ...any) (any, error) {
	listing, err := listArgs(ctx, p.Filesystem(), args, 0)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(listing))
	for _, item := range listing {
		paths = append(paths, item.Path)
	}
	return paths, nil
}

// ListWith lists a directory and fills the requested metadata of every file
// entry the adapter left out of the listing.
//
//	fs.Invoke(ctx, "listWith", []string{"mimetype", "size"}, "dirname", recursive)
type ListWith struct {
	vfskit.BasePlugin
}

func (p *ListWith) Method() string { return "listWith" }

func (p *ListWith) Handle(ctx context.Context, args ...any) (any, error) {
	keys, err := vfskit.StringsArg(args, 0, nil)
	if err != nil {
		return nil, err
	}
	fs := p.Filesystem()
	listing, err := listArgs(ctx, fs, args, 1)
	if err != nil {
		return nil, err
	}

	for i := range listing {
		if !listing[i].IsFile() {
			continue
		}
		if err := fillMetadata(ctx, fs, &listing[i], keys); err != nil {
			return nil, err
		}
	}
	return listing, nil
}

// ListGlob lists the entries below a directory whose path matches a glob
// pattern. "*" stays within one path segment, "**" crosses them.
//
//	fs.Invoke(ctx, "listGlob", "**/*.csv", "dirname") // []vfskit.Metadata
type ListGlob struct {
	vfskit.BasePlugin
}

func (p *ListGlob) Method() string { return "listGlob" }

func (p *ListGlob) Handle(ctx context.Context, args ...any) (any, error) {
	pattern, err := vfskit.StringArg(args, 0, "")
	if err != nil {
		return nil, err
	}
	directory, err := vfskit.StringArg(args, 1, "")
	if err != nil {
		return nil, err
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("%w: invalid pattern %q: %v", vfskit.ErrInvalidArgument, pattern, err)
	}

	listing, err := p.Filesystem().ListContents(ctx, directory, true)
	if err != nil {
		return nil, err
	}

	matches := make([]vfskit.Metadata, 0, len(listing))
	for _, item := range listing {
		if g.Match(item.Path) {
			matches = append(matches, item)
		}
	}
	return matches, nil
}

// FindFiles walks a directory with a vfskit.Selector, pruning the
// subtrees the selector declines.
//
//	fs.Invoke(ctx, "findFiles", "dirname", vfskit.Glob("*.jpg"), recursive)
type FindFiles struct {
	vfskit.BasePlugin
}

func (p *FindFiles) Method() string { return "findFiles" }

func (p *FindFiles) Handle(ctx context.Context, args ...any) (any, error) {
	directory, err := vfskit.StringArg(args, 0, "")
	if err != nil {
		return nil, err
	}
	var selector vfskit.Selector
	if len(args) > 1 && args[1] != nil {
		sel, ok := args[1].(vfskit.Selector)
		if !ok {
			return nil, fmt.Errorf("%w: argument #2 should be a vfskit.Selector, got %T", vfskit.ErrInvalidArgument, args[1])
		}
		selector = sel
	}
	recursive, err := vfskit.BoolArg(args, 2, true)
	if err != nil {
		return nil, err
	}
	return vfskit.FindFiles(ctx, p.Filesystem(), directory, selector, recursive)
}

// listArgs reads the (directory, recursive) argument pair starting at
// offset and lists it.
func listArgs(ctx context.Context, fs vfskit.FilesystemInterface, args []any, offset int) ([]vfskit.Metadata, error) {
	directory, err := vfskit.StringArg(args, offset, "")
	if err != nil {
		return nil, err
	}
	recursive, err := vfskit.BoolArg(args, offset+1, false)
	if err != nil {
		return nil, err
	}
	return fs.ListContents(ctx, directory, recursive)
}
