// Package zip exposes the contents of a ZIP archive as a read-only adapter.
//
// Entry names are normalized; entries that would escape the archive root
// are ignored. Directories missing from the archive are implied by the
// entries below them.
package zip

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/gobeaver/vfskit"
)

// Config is the option block of the zip driver.
type Config struct {
	Path string `mapstructure:"path"`
}

type entry struct {
	file    *zip.File // nil for implied directories
	isDir   bool
	modTime time.Time
	mode    fs.FileMode
}

// Adapter serves reads from a ZIP archive. Every mutating operation fails
// with vfskit.ErrReadOnly.
type Adapter struct {
	reader  *zip.Reader
	closer  io.Closer
	entries map[string]*entry
}

// Open opens the archive at path.
func Open(path string) (*Adapter, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	a := newAdapter(&rc.Reader)
	a.closer = rc
	return a, nil
}

// NewFromReader reads an archive of the given size from r.
func NewFromReader(r io.ReaderAt, size int64) (*Adapter, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read zip: %w", err)
	}
	return newAdapter(zr), nil
}

func newAdapter(zr *zip.Reader) *Adapter {
	a := &Adapter{reader: zr, entries: make(map[string]*entry)}
	for _, f := range zr.File {
		name, err := vfskit.NormalizePath(f.Name)
		if err != nil || name == "" {
			continue
		}
		info := f.FileInfo()
		a.entries[name] = &entry{
			file:    f,
			isDir:   info.IsDir(),
			modTime: f.Modified,
			mode:    info.Mode(),
		}
		a.implyParents(name, f.Modified)
	}
	return a
}

func (a *Adapter) implyParents(name string, modTime time.Time) {
	for dir := vfskit.Dirname(name); dir != ""; dir = vfskit.Dirname(dir) {
		if _, ok := a.entries[dir]; ok {
			return
		}
		a.entries[dir] = &entry{isDir: true, modTime: modTime, mode: fs.ModeDir | 0o755}
	}
}

// Close releases the archive file when the adapter opened it.
func (a *Adapter) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

func (e *entry) metadata(p string) vfskit.Metadata {
	visibility := vfskit.Private
	if e.mode.Perm()&0o004 != 0 || e.mode.Perm() == 0 {
		visibility = vfskit.Public
	}

	meta := vfskit.Metadata{Path: p, Visibility: &visibility}
	if !e.modTime.IsZero() {
		meta.Timestamp = vfskit.Ptr(e.modTime.Unix())
	}
	if e.isDir {
		meta.Type = vfskit.TypeDir
		return meta
	}
	meta.Type = vfskit.TypeFile
	meta.Size = vfskit.Ptr(int64(e.file.UncompressedSize64))
	return meta
}

func (a *Adapter) lookup(op, path string) (*entry, error) {
	e, ok := a.entries[path]
	if !ok {
		return nil, &vfskit.PathError{Op: op, Path: path, Err: vfskit.ErrFileNotFound}
	}
	return e, nil
}

func (a *Adapter) lookupFile(op, path string) (*entry, error) {
	e, err := a.lookup(op, path)
	if err != nil {
		return nil, err
	}
	if e.isDir {
		return nil, &vfskit.PathError{Op: op, Path: path, Err: vfskit.ErrFileNotFound}
	}
	return e, nil
}

func (a *Adapter) Has(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := a.entries[path]
	return ok, nil
}

func (a *Adapter) Read(ctx context.Context, path string) (*vfskit.Object, error) {
	obj, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer obj.Stream.Close()

	contents, err := io.ReadAll(obj.Stream)
	if err != nil {
		return nil, &vfskit.PathError{Op: "read", Path: path, Err: err}
	}
	obj.Stream = nil
	obj.Contents = contents
	return obj, nil
}

func (a *Adapter) ReadStream(ctx context.Context, path string) (*vfskit.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := a.lookupFile("readstream", path)
	if err != nil {
		return nil, err
	}
	rc, err := e.file.Open()
	if err != nil {
		return nil, &vfskit.PathError{Op: "readstream", Path: path, Err: err}
	}
	return &vfskit.Object{Metadata: e.metadata(path), Stream: rc}, nil
}

func (a *Adapter) ListContents(ctx context.Context, directory string, recursive bool) ([]vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := ""
	if directory != "" {
		prefix = directory + "/"
	}

	listing := []vfskit.Metadata{}
	for name, e := range a.entries {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if !recursive && strings.Contains(name[len(prefix):], "/") {
			continue
		}
		listing = append(listing, e.metadata(name))
	}
	sort.Slice(listing, func(i, j int) bool { return listing[i].Path < listing[j].Path })
	return listing, nil
}

func (a *Adapter) GetMetadata(ctx context.Context, path string) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := a.lookup("getmetadata", path)
	if err != nil {
		return nil, err
	}
	meta := e.metadata(path)
	return &meta, nil
}

func (a *Adapter) GetSize(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

// GetMimetype sniffs the start of the entry, falling back to its extension.
func (a *Adapter) GetMimetype(ctx context.Context, path string) (*vfskit.Metadata, error) {
	obj, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer obj.Stream.Close()

	head := make([]byte, 3072)
	n, err := io.ReadFull(obj.Stream, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, &vfskit.PathError{Op: "getmimetype", Path: path, Err: err}
	}

	meta := obj.Metadata
	meta.Mimetype = vfskit.Ptr(vfskit.GuessMimeType(path, head[:n]))
	return &meta, nil
}

func (a *Adapter) GetTimestamp(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

func (a *Adapter) GetVisibility(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

func readOnly(op, path string) error {
	return &vfskit.PathError{Op: op, Path: path, Err: vfskit.ErrReadOnly}
}

func (a *Adapter) Write(_ context.Context, path string, _ []byte, _ *vfskit.Config) (*vfskit.Metadata, error) {
	return nil, readOnly("write", path)
}

func (a *Adapter) WriteStream(_ context.Context, path string, _ io.Reader, _ *vfskit.Config) (*vfskit.Metadata, error) {
	return nil, readOnly("writestream", path)
}

func (a *Adapter) Update(_ context.Context, path string, _ []byte, _ *vfskit.Config) (*vfskit.Metadata, error) {
	return nil, readOnly("update", path)
}

func (a *Adapter) UpdateStream(_ context.Context, path string, _ io.Reader, _ *vfskit.Config) (*vfskit.Metadata, error) {
	return nil, readOnly("updatestream", path)
}

func (a *Adapter) Rename(_ context.Context, path, _ string) error {
	return readOnly("rename", path)
}

func (a *Adapter) Copy(_ context.Context, path, _ string) error {
	return readOnly("copy", path)
}

func (a *Adapter) Delete(_ context.Context, path string) error {
	return readOnly("delete", path)
}

func (a *Adapter) DeleteDir(_ context.Context, dirname string) error {
	return readOnly("deletedir", dirname)
}

func (a *Adapter) CreateDir(_ context.Context, dirname string, _ *vfskit.Config) (*vfskit.Metadata, error) {
	return nil, readOnly("createdir", dirname)
}

func (a *Adapter) SetVisibility(_ context.Context, path string, _ vfskit.Visibility) (*vfskit.Metadata, error) {
	return nil, readOnly("setvisibility", path)
}

var (
	_ vfskit.Adapter = (*Adapter)(nil)
	_ io.Closer      = (*Adapter)(nil)
)
