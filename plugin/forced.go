package plugin

import (
	"context"

	"github.com/gobeaver/vfskit"
)

// ForcedCopy copies a file, replacing the destination when it exists.
//
//	fs.Invoke(ctx, "forceCopy", "path", "newpath") // bool
type ForcedCopy struct {
	vfskit.BasePlugin
}

func (p *ForcedCopy) Method() string { return "forceCopy" }

func (p *ForcedCopy) Handle(ctx context.Context, args ...any) (any, error) {
	return forced(ctx, p.Filesystem(), args, p.Filesystem().Copy)
}

// ForcedRename renames a file, replacing the destination when it exists.
//
//	fs.Invoke(ctx, "forceRename", "path", "newpath") // bool
type ForcedRename struct {
	vfskit.BasePlugin
}

func (p *ForcedRename) Method() string { return "forceRename" }

func (p *ForcedRename) Handle(ctx context.Context, args ...any) (any, error) {
	return forced(ctx, p.Filesystem(), args, p.Filesystem().Rename)
}

// forced clears newpath and then runs transfer. A destination that is
// already missing counts as cleared; a delete reporting false aborts.
func forced(ctx context.Context, fs vfskit.FilesystemInterface, args []any, transfer func(context.Context, string, string) (bool, error)) (any, error) {
	path, err := vfskit.StringArg(args, 0, "")
	if err != nil {
		return false, err
	}
	newpath, err := vfskit.StringArg(args, 1, "")
	if err != nil {
		return false, err
	}

	deleted, err := fs.Delete(ctx, newpath)
	switch {
	case vfskit.IsNotFound(err):
		deleted = true
	case err != nil:
		return false, err
	}
	if !deleted {
		return false, nil
	}

	return transfer(ctx, path, newpath)
}
