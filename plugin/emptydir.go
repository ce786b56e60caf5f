package plugin

import (
	"context"

	"github.com/gobeaver/vfskit"
)

// EmptyDir removes everything inside a directory and keeps the directory.
//
//	fs.Invoke(ctx, "emptyDir", "dirname")
type EmptyDir struct {
	vfskit.BasePlugin
}

func (p *EmptyDir) Method() string { return "emptyDir" }

func (p *EmptyDir) Handle(ctx context.Context, args ...any) (any, error) {
	dirname, err := vfskit.StringArg(args, 0, "")
	if err != nil {
		return nil, err
	}

	fs := p.Filesystem()
	listing, err := fs.ListContents(ctx, dirname, false)
	if err != nil {
		return nil, err
	}

	for _, item := range listing {
		if item.IsDir() {
			_, err = fs.DeleteDir(ctx, item.Path)
		} else {
			_, err = fs.Delete(ctx, item.Path)
		}
		if err != nil && !vfskit.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, nil
}
