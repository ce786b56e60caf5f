package vfskit

import (
	"context"
	"io"
)

// Handler binds a path to a facade for chained calls.
type Handler interface {
	Path() string
	SetPath(path string)
	Filesystem() FilesystemInterface
	SetFilesystem(fs FilesystemInterface)
	IsFile(ctx context.Context) (bool, error)
	IsDir(ctx context.Context) (bool, error)
}

type handler struct {
	fs   FilesystemInterface
	path string
}

func (h *handler) Path() string                         { return h.path }
func (h *handler) SetPath(path string)                  { h.path = path }
func (h *handler) Filesystem() FilesystemInterface      { return h.fs }
func (h *handler) SetFilesystem(fs FilesystemInterface) { h.fs = fs }

// IsFile reports whether the bound path is a file.
func (h *handler) IsFile(ctx context.Context) (bool, error) {
	t, err := h.nodeType(ctx)
	return t == TypeFile, err
}

// IsDir reports whether the bound path is a directory.
func (h *handler) IsDir(ctx context.Context) (bool, error) {
	t, err := h.nodeType(ctx)
	return t == TypeDir, err
}

// Invoke calls a plugin or facade operation by name with the bound path as
// first argument.
func (h *handler) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	inv, ok := h.fs.(interface {
		Invoke(ctx context.Context, method string, args ...any) (any, error)
	})
	if !ok {
		return nil, methodNotFound(method)
	}
	return inv.Invoke(ctx, method, append([]any{h.path}, args...)...)
}

func (h *handler) nodeType(ctx context.Context) (FileType, error) {
	meta, ok, err := h.fs.GetMetadata(ctx, h.path)
	if err != nil || !ok {
		return "", err
	}
	return meta.Type, nil
}

// File is a Handler for files.
type File struct {
	handler
}

// NewFile returns a File bound to fs and path.
func NewFile(fs FilesystemInterface, path string) *File {
	return &File{handler{fs: fs, path: path}}
}

func (f *File) Exists(ctx context.Context) (bool, error) {
	return f.fs.Has(ctx, f.path)
}

func (f *File) Read(ctx context.Context) ([]byte, bool, error) {
	return f.fs.Read(ctx, f.path)
}

func (f *File) ReadStream(ctx context.Context) (io.ReadCloser, bool, error) {
	return f.fs.ReadStream(ctx, f.path)
}

func (f *File) Write(ctx context.Context, contents []byte, opts ...Option) (bool, error) {
	return f.fs.Write(ctx, f.path, contents, opts...)
}

func (f *File) WriteStream(ctx context.Context, r io.Reader, opts ...Option) (bool, error) {
	return f.fs.WriteStream(ctx, f.path, r, opts...)
}

func (f *File) Update(ctx context.Context, contents []byte, opts ...Option) (bool, error) {
	return f.fs.Update(ctx, f.path, contents, opts...)
}

func (f *File) UpdateStream(ctx context.Context, r io.Reader, opts ...Option) (bool, error) {
	return f.fs.UpdateStream(ctx, f.path, r, opts...)
}

func (f *File) Put(ctx context.Context, contents []byte, opts ...Option) (bool, error) {
	return f.fs.Put(ctx, f.path, contents, opts...)
}

func (f *File) PutStream(ctx context.Context, r io.Reader, opts ...Option) (bool, error) {
	return f.fs.PutStream(ctx, f.path, r, opts...)
}

// Rename moves the file and rebinds the handler to newpath on success.
func (f *File) Rename(ctx context.Context, newpath string) (bool, error) {
	ok, err := f.fs.Rename(ctx, f.path, newpath)
	if ok {
		f.path = newpath
	}
	return ok, err
}

// Copy duplicates the file and returns a handler for the copy. The handler
// is nil when the copy failed.
func (f *File) Copy(ctx context.Context, newpath string) (*File, error) {
	ok, err := f.fs.Copy(ctx, f.path, newpath)
	if err != nil || !ok {
		return nil, err
	}
	return NewFile(f.fs, newpath), nil
}

func (f *File) Delete(ctx context.Context) (bool, error) {
	return f.fs.Delete(ctx, f.path)
}

func (f *File) GetTimestamp(ctx context.Context) (int64, bool, error) {
	return f.fs.GetTimestamp(ctx, f.path)
}

func (f *File) GetMimetype(ctx context.Context) (string, bool, error) {
	return f.fs.GetMimetype(ctx, f.path)
}

func (f *File) GetVisibility(ctx context.Context) (Visibility, bool, error) {
	return f.fs.GetVisibility(ctx, f.path)
}

func (f *File) GetMetadata(ctx context.Context) (*Metadata, bool, error) {
	return f.fs.GetMetadata(ctx, f.path)
}

func (f *File) GetSize(ctx context.Context) (int64, bool, error) {
	return f.fs.GetSize(ctx, f.path)
}

// Directory is a Handler for directories.
type Directory struct {
	handler
}

// NewDirectory returns a Directory bound to fs and path.
func NewDirectory(fs FilesystemInterface, path string) *Directory {
	return &Directory{handler{fs: fs, path: path}}
}

// Delete removes the directory and its contents.
func (d *Directory) Delete(ctx context.Context) (bool, error) {
	return d.fs.DeleteDir(ctx, d.path)
}

// GetContents lists the directory.
func (d *Directory) GetContents(ctx context.Context, recursive bool) ([]Metadata, error) {
	return d.fs.ListContents(ctx, d.path, recursive)
}
