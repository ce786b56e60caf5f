// Package null provides an adapter that accepts writes and stores nothing.
package null

import (
	"context"
	"io"

	"github.com/gobeaver/vfskit"
)

// Adapter discards everything written to it. Writes, directory creation and
// visibility changes succeed; every lookup reports a missing file.
type Adapter struct{}

// New returns a null adapter.
func New() *Adapter {
	return &Adapter{}
}

func notFound(op, path string) error {
	return &vfskit.PathError{Op: op, Path: path, Err: vfskit.ErrFileNotFound}
}

func written(path string, size int64, cfg *vfskit.Config) *vfskit.Metadata {
	meta := &vfskit.Metadata{Path: path, Type: vfskit.TypeFile, Size: vfskit.Ptr(size)}
	if v := cfg.GetString(vfskit.KeyVisibility, ""); v != "" {
		meta.Visibility = vfskit.Ptr(vfskit.Visibility(v))
	}
	return meta
}

func (*Adapter) Has(context.Context, string) (bool, error) { return false, nil }

func (*Adapter) Read(_ context.Context, path string) (*vfskit.Object, error) {
	return nil, notFound("read", path)
}

func (*Adapter) ReadStream(_ context.Context, path string) (*vfskit.Object, error) {
	return nil, notFound("readstream", path)
}

func (*Adapter) Write(_ context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return written(path, int64(len(contents)), cfg), nil
}

// WriteStream drains r so producers are not left blocked.
func (*Adapter) WriteStream(_ context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if r == nil {
		return nil, &vfskit.PathError{Op: "writestream", Path: path, Err: vfskit.ErrInvalidArgument}
	}
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return nil, &vfskit.PathError{Op: "writestream", Path: path, Err: err}
	}
	return written(path, n, cfg), nil
}

func (*Adapter) Update(_ context.Context, path string, _ []byte, _ *vfskit.Config) (*vfskit.Metadata, error) {
	return nil, notFound("update", path)
}

func (*Adapter) UpdateStream(_ context.Context, path string, _ io.Reader, _ *vfskit.Config) (*vfskit.Metadata, error) {
	return nil, notFound("updatestream", path)
}

func (*Adapter) Rename(_ context.Context, path, _ string) error { return notFound("rename", path) }
func (*Adapter) Copy(_ context.Context, path, _ string) error   { return notFound("copy", path) }
func (*Adapter) Delete(_ context.Context, path string) error    { return notFound("delete", path) }

func (*Adapter) DeleteDir(_ context.Context, dirname string) error {
	return notFound("deletedir", dirname)
}

func (*Adapter) CreateDir(_ context.Context, dirname string, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	meta := &vfskit.Metadata{Path: dirname, Type: vfskit.TypeDir}
	if v := cfg.GetString(vfskit.KeyVisibility, ""); v != "" {
		meta.Visibility = vfskit.Ptr(vfskit.Visibility(v))
	}
	return meta, nil
}

func (*Adapter) ListContents(context.Context, string, bool) ([]vfskit.Metadata, error) {
	return []vfskit.Metadata{}, nil
}

func (*Adapter) GetMetadata(_ context.Context, path string) (*vfskit.Metadata, error) {
	return nil, notFound("getmetadata", path)
}

func (*Adapter) GetSize(_ context.Context, path string) (*vfskit.Metadata, error) {
	return nil, notFound("getsize", path)
}

func (*Adapter) GetMimetype(_ context.Context, path string) (*vfskit.Metadata, error) {
	return nil, notFound("getmimetype", path)
}

func (*Adapter) GetTimestamp(_ context.Context, path string) (*vfskit.Metadata, error) {
	return nil, notFound("gettimestamp", path)
}

func (*Adapter) GetVisibility(_ context.Context, path string) (*vfskit.Metadata, error) {
	return nil, notFound("getvisibility", path)
}

func (*Adapter) SetVisibility(_ context.Context, path string, visibility vfskit.Visibility) (*vfskit.Metadata, error) {
	return &vfskit.Metadata{Path: path, Visibility: vfskit.Ptr(visibility)}, nil
}

var _ vfskit.Adapter = (*Adapter)(nil)
