package plugin

import (
	"context"
	"fmt"

	"github.com/gobeaver/vfskit"
)

// GetWithMetadata returns the metadata of a path extended with the
// requested keys. It returns false when the metadata can not be read.
//
//	fs.Invoke(ctx, "getWithMetadata", "path", []string{"mimetype", "timestamp"})
type GetWithMetadata struct {
	vfskit.BasePlugin
}

func (p *GetWithMetadata) Method() string { return "getWithMetadata" }

func (p *GetWithMetadata) Handle(ctx context.Context, args ...any) (any, error) {
	path, err := vfskit.StringArg(args, 0, "")
	if err != nil {
		return nil, err
	}
	keys, err := vfskit.StringsArg(args, 1, nil)
	if err != nil {
		return nil, err
	}

	fs := p.Filesystem()
	meta, ok, err := fs.GetMetadata(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return false, nil
	}

	if err := fillMetadata(ctx, fs, meta, keys); err != nil {
		return nil, err
	}
	return meta, nil
}

// fillMetadata fetches every key in keys that meta does not hold yet. Keys
// without a getter fail with ErrInvalidArgument.
func fillMetadata(ctx context.Context, fs vfskit.FilesystemInterface, meta *vfskit.Metadata, keys []string) error {
	for _, key := range keys {
		if _, ok := meta.Field(key); ok {
			continue
		}

		switch key {
		case "mimetype":
			if v, ok, err := fs.GetMimetype(ctx, meta.Path); err != nil {
				return err
			} else if ok {
				meta.Mimetype = vfskit.Ptr(v)
			}
		case "size":
			if v, ok, err := fs.GetSize(ctx, meta.Path); err != nil {
				return err
			} else if ok {
				meta.Size = vfskit.Ptr(v)
			}
		case "timestamp":
			if v, ok, err := fs.GetTimestamp(ctx, meta.Path); err != nil {
				return err
			} else if ok {
				meta.Timestamp = vfskit.Ptr(v)
			}
		case "visibility":
			if v, ok, err := fs.GetVisibility(ctx, meta.Path); err != nil {
				return err
			} else if ok {
				meta.Visibility = vfskit.Ptr(v)
			}
		default:
			return fmt.Errorf("%w: could not get meta-data for key: %s", vfskit.ErrInvalidArgument, key)
		}
	}
	return nil
}
