package vfskit

import (
	"context"
	"io"
	"log/slog"
)

// Filesystem is the facade over a single Adapter.
//
// Every operation normalizes its path arguments, enforces the existence
// preconditions adapters are not trusted with and translates adapter results
// into plain values. Precondition and argument failures are returned as
// errors. Adapter failures are logged and reported as a false result so
// callers probing many paths can branch without error handling.
type Filesystem struct {
	adapter   Adapter
	config    *Config
	logger    *slog.Logger
	plugins   pluginRegistry
	overwrite bool
}

var _ FilesystemInterface = (*Filesystem)(nil)

// NewFilesystem creates a facade over adapter.
func NewFilesystem(adapter Adapter, opts ...FilesystemOption) *Filesystem {
	fs := &Filesystem{
		adapter: adapter,
		config:  NewConfig(nil),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.overwrite = supportsOverwrite(adapter)
	return fs
}

// Adapter returns the wrapped adapter.
func (fs *Filesystem) Adapter() Adapter {
	return fs.adapter
}

// Config returns the facade level Config.
func (fs *Filesystem) Config() *Config {
	return fs.config
}

// Logger returns the logger adapter failures are reported to.
func (fs *Filesystem) Logger() *slog.Logger {
	return fs.logger
}

// AddPlugin registers p, replacing any plugin with the same method name.
func (fs *Filesystem) AddPlugin(p Plugin) *Filesystem {
	fs.plugins.add(p)
	return fs
}

// Invoke calls a plugin, or a facade operation, by name. Plugins win over
// the built-in operations. Unknown names fail with ErrMethodNotFound.
func (fs *Filesystem) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	if result, found, err := fs.plugins.invoke(ctx, method, fs, args); found {
		return result, err
	}
	if fn, ok := builtinMethods[method]; ok {
		return fn(ctx, fs, args)
	}
	return nil, methodNotFound(method)
}

// Has reports whether path exists. The root never exists as a file.
func (fs *Filesystem) Has(ctx context.Context, path string) (bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	return fs.has(ctx, p), nil
}

// Write creates a file. It fails with ErrFileExists when path is present.
func (fs *Filesystem) Write(ctx context.Context, path string, contents []byte, opts ...Option) (bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	cfg := fs.prepareConfig(opts)
	if err := fs.assertAbsent(ctx, "write", p, cfg); err != nil {
		return false, err
	}
	_, err = fs.adapter.Write(ctx, p, contents, cfg)
	return fs.ok(ctx, "write", p, err), nil
}

// WriteStream creates a file from r. It fails with ErrFileExists when path
// is present.
func (fs *Filesystem) WriteStream(ctx context.Context, path string, r io.Reader, opts ...Option) (bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	if r == nil {
		return false, &PathError{Op: "writestream", Path: p, Err: ErrInvalidArgument}
	}
	cfg := fs.prepareConfig(opts)
	if err := fs.assertAbsent(ctx, "writestream", p, cfg); err != nil {
		return false, err
	}
	_, err = fs.adapter.WriteStream(ctx, p, r, cfg)
	return fs.ok(ctx, "writestream", p, err), nil
}

// Update replaces the contents of an existing file. It fails with
// ErrFileNotFound when path is absent.
func (fs *Filesystem) Update(ctx context.Context, path string, contents []byte, opts ...Option) (bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	cfg := fs.prepareConfig(opts)
	if err := fs.assertPresent(ctx, "update", p, cfg); err != nil {
		return false, err
	}
	_, err = fs.adapter.Update(ctx, p, contents, cfg)
	return fs.ok(ctx, "update", p, err), nil
}

// UpdateStream replaces the contents of an existing file with r.
func (fs *Filesystem) UpdateStream(ctx context.Context, path string, r io.Reader, opts ...Option) (bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	if r == nil {
		return false, &PathError{Op: "updatestream", Path: p, Err: ErrInvalidArgument}
	}
	cfg := fs.prepareConfig(opts)
	if err := fs.assertPresent(ctx, "updatestream", p, cfg); err != nil {
		return false, err
	}
	_, err = fs.adapter.UpdateStream(ctx, p, r, cfg)
	return fs.ok(ctx, "updatestream", p, err), nil
}

// Put creates or replaces a file.
//
// Adapters that overwrite on write always get a Write. Others get an Update
// when the file exists and a Write otherwise; the probe and the write are
// not atomic.
func (fs *Filesystem) Put(ctx context.Context, path string, contents []byte, opts ...Option) (bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	cfg := fs.prepareConfig(opts)
	if !fs.overwrite && fs.has(ctx, p) {
		_, err = fs.adapter.Update(ctx, p, contents, cfg)
		return fs.ok(ctx, "put", p, err), nil
	}
	_, err = fs.adapter.Write(ctx, p, contents, cfg)
	return fs.ok(ctx, "put", p, err), nil
}

// PutStream creates or replaces a file from r. See Put.
func (fs *Filesystem) PutStream(ctx context.Context, path string, r io.Reader, opts ...Option) (bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	if r == nil {
		return false, &PathError{Op: "putstream", Path: p, Err: ErrInvalidArgument}
	}
	cfg := fs.prepareConfig(opts)
	if !fs.overwrite && fs.has(ctx, p) {
		_, err = fs.adapter.UpdateStream(ctx, p, r, cfg)
		return fs.ok(ctx, "putstream", p, err), nil
	}
	_, err = fs.adapter.WriteStream(ctx, p, r, cfg)
	return fs.ok(ctx, "putstream", p, err), nil
}

// Read returns the contents of a file. ok is false when the adapter fails.
func (fs *Filesystem) Read(ctx context.Context, path string) ([]byte, bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return nil, false, err
	}
	if err := fs.assertPresent(ctx, "read", p, fs.config); err != nil {
		return nil, false, err
	}
	obj, err := fs.adapter.Read(ctx, p)
	if !fs.ok(ctx, "read", p, err) || obj == nil {
		return nil, false, nil
	}
	return obj.Contents, true, nil
}

// ReadStream opens a file for reading. The caller closes the stream.
func (fs *Filesystem) ReadStream(ctx context.Context, path string) (io.ReadCloser, bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return nil, false, err
	}
	if err := fs.assertPresent(ctx, "readstream", p, fs.config); err != nil {
		return nil, false, err
	}
	obj, err := fs.adapter.ReadStream(ctx, p)
	if !fs.ok(ctx, "readstream", p, err) || obj == nil || obj.Stream == nil {
		return nil, false, nil
	}
	return obj.Stream, true, nil
}

// ReadAndDelete reads a file and then deletes it. When the read fails the
// file is left alone.
func (fs *Filesystem) ReadAndDelete(ctx context.Context, path string) ([]byte, bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return nil, false, err
	}
	if err := fs.assertPresent(ctx, "readanddelete", p, fs.config); err != nil {
		return nil, false, err
	}
	obj, err := fs.adapter.Read(ctx, p)
	if !fs.ok(ctx, "readanddelete", p, err) || obj == nil {
		return nil, false, nil
	}
	fs.ok(ctx, "readanddelete", p, fs.adapter.Delete(ctx, p))
	return obj.Contents, true, nil
}

// Rename moves path to newpath on the same adapter. The source must exist
// and the destination must not.
func (fs *Filesystem) Rename(ctx context.Context, path, newpath string) (bool, error) {
	p, np, err := fs.assertTransfer(ctx, "rename", path, newpath)
	if err != nil {
		return false, err
	}
	return fs.ok(ctx, "rename", p, fs.adapter.Rename(ctx, p, np)), nil
}

// Copy duplicates path to newpath on the same adapter. The source must
// exist and the destination must not.
func (fs *Filesystem) Copy(ctx context.Context, path, newpath string) (bool, error) {
	p, np, err := fs.assertTransfer(ctx, "copy", path, newpath)
	if err != nil {
		return false, err
	}
	return fs.ok(ctx, "copy", p, fs.adapter.Copy(ctx, p, np)), nil
}

// Delete removes a file.
func (fs *Filesystem) Delete(ctx context.Context, path string) (bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	if err := fs.assertPresent(ctx, "delete", p, fs.config); err != nil {
		return false, err
	}
	return fs.ok(ctx, "delete", p, fs.adapter.Delete(ctx, p)), nil
}

// DeleteDir removes a directory and its contents. Deleting the root always
// fails with ErrRootViolation.
func (fs *Filesystem) DeleteDir(ctx context.Context, dirname string) (bool, error) {
	p, err := NormalizePath(dirname)
	if err != nil {
		return false, err
	}
	if p == "" {
		return false, &PathError{Op: "deletedir", Path: dirname, Err: ErrRootViolation}
	}
	return fs.ok(ctx, "deletedir", p, fs.adapter.DeleteDir(ctx, p)), nil
}

// CreateDir creates a directory.
func (fs *Filesystem) CreateDir(ctx context.Context, dirname string, opts ...Option) (bool, error) {
	p, err := NormalizePath(dirname)
	if err != nil {
		return false, err
	}
	_, err = fs.adapter.CreateDir(ctx, p, fs.prepareConfig(opts))
	return fs.ok(ctx, "createdir", p, err), nil
}

// ListContents lists directory. An adapter failure yields an empty listing.
// Entries are filtered to the requested scope and sorted by path.
func (fs *Filesystem) ListContents(ctx context.Context, directory string, recursive bool) ([]Metadata, error) {
	p, err := NormalizePath(directory)
	if err != nil {
		return nil, err
	}
	listing, err := fs.adapter.ListContents(ctx, p, recursive)
	if !fs.ok(ctx, "listcontents", p, err) {
		return []Metadata{}, nil
	}
	caseSensitive := fs.config.GetBool(KeyCaseSensitive, true)
	return FormatListing(p, recursive, caseSensitive, listing), nil
}

// GetMetadata returns all metadata the adapter reports for path.
func (fs *Filesystem) GetMetadata(ctx context.Context, path string) (*Metadata, bool, error) {
	p, meta, err := fs.probe(ctx, "getmetadata", path, fs.adapter.GetMetadata)
	if err != nil || meta == nil {
		return nil, false, err
	}
	if meta.Path == "" {
		meta.Path = p
	}
	return meta, true, nil
}

// GetMimetype returns the mimetype of a file.
func (fs *Filesystem) GetMimetype(ctx context.Context, path string) (string, bool, error) {
	_, meta, err := fs.probe(ctx, "getmimetype", path, fs.adapter.GetMimetype)
	if err != nil || meta == nil || meta.Mimetype == nil {
		return "", false, err
	}
	return *meta.Mimetype, true, nil
}

// GetTimestamp returns the last modification time as unix seconds.
func (fs *Filesystem) GetTimestamp(ctx context.Context, path string) (int64, bool, error) {
	_, meta, err := fs.probe(ctx, "gettimestamp", path, fs.adapter.GetTimestamp)
	if err != nil || meta == nil || meta.Timestamp == nil {
		return 0, false, err
	}
	return *meta.Timestamp, true, nil
}

// GetVisibility returns the visibility of a file.
func (fs *Filesystem) GetVisibility(ctx context.Context, path string) (Visibility, bool, error) {
	_, meta, err := fs.probe(ctx, "getvisibility", path, fs.adapter.GetVisibility)
	if err != nil || meta == nil || meta.Visibility == nil {
		return "", false, err
	}
	return *meta.Visibility, true, nil
}

// GetSize returns the size of a file in bytes.
func (fs *Filesystem) GetSize(ctx context.Context, path string) (int64, bool, error) {
	_, meta, err := fs.probe(ctx, "getsize", path, fs.adapter.GetSize)
	if err != nil || meta == nil || meta.Size == nil {
		return 0, false, err
	}
	return *meta.Size, true, nil
}

// SetVisibility changes the visibility of a file.
func (fs *Filesystem) SetVisibility(ctx context.Context, path string, visibility Visibility) (bool, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	if err := fs.assertPresent(ctx, "setvisibility", p, fs.config); err != nil {
		return false, err
	}
	_, err = fs.adapter.SetVisibility(ctx, p, visibility)
	return fs.ok(ctx, "setvisibility", p, err), nil
}

// Get returns a handler bound to this facade and path. When handler is nil
// the node is classified with a single GetMetadata call: files get a *File,
// everything else a *Directory.
func (fs *Filesystem) Get(ctx context.Context, path string, handler Handler) (Handler, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		meta, ok, err := fs.GetMetadata(ctx, p)
		if err != nil {
			return nil, err
		}
		if ok && meta.IsFile() {
			handler = NewFile(fs, p)
		} else {
			handler = NewDirectory(fs, p)
		}
	}
	handler.SetPath(p)
	handler.SetFilesystem(fs)
	return handler, nil
}

// Watch returns a change token for paths matching pattern. Adapters that
// cannot watch yield ErrNotSupported.
func (fs *Filesystem) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	w, ok := fs.adapter.(Watcher)
	if !ok {
		return nil, &PathError{Op: "watch", Path: pattern, Err: ErrNotSupported}
	}
	return w.Watch(ctx, pattern)
}

// Close releases the adapter when it holds connections.
func (fs *Filesystem) Close() error {
	if c, ok := fs.adapter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ============================================================================
// internals
// ============================================================================

func (fs *Filesystem) has(ctx context.Context, p string) bool {
	if p == "" {
		return false
	}
	found, err := fs.adapter.Has(ctx, p)
	if err != nil {
		fs.logFailure(ctx, "has", p, err)
		return false
	}
	return found
}

// prepareConfig builds the per-call Config falling back to the facade Config.
func (fs *Filesystem) prepareConfig(opts []Option) *Config {
	cfg := NewConfigFromOptions(opts...)
	cfg.fallback = fs.config
	return cfg
}

func (fs *Filesystem) assertPresent(ctx context.Context, op, p string, cfg *Config) error {
	if cfg.GetBool(KeyDisableAsserts, false) {
		return nil
	}
	if !fs.has(ctx, p) {
		return &PathError{Op: op, Path: p, Err: ErrFileNotFound}
	}
	return nil
}

func (fs *Filesystem) assertAbsent(ctx context.Context, op, p string, cfg *Config) error {
	if cfg.GetBool(KeyDisableAsserts, false) {
		return nil
	}
	if fs.has(ctx, p) {
		return &PathError{Op: op, Path: p, Err: ErrFileExists}
	}
	return nil
}

func (fs *Filesystem) assertTransfer(ctx context.Context, op, path, newpath string) (string, string, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return "", "", err
	}
	np, err := NormalizePath(newpath)
	if err != nil {
		return "", "", err
	}
	if err := fs.assertPresent(ctx, op, p, fs.config); err != nil {
		return "", "", err
	}
	if err := fs.assertAbsent(ctx, op, np, fs.config); err != nil {
		return "", "", err
	}
	return p, np, nil
}

// probe runs a metadata getter behind the presence assertion. A nil
// Metadata with a nil error means the adapter failed.
func (fs *Filesystem) probe(ctx context.Context, op, path string, getter func(context.Context, string) (*Metadata, error)) (string, *Metadata, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return "", nil, err
	}
	if err := fs.assertPresent(ctx, op, p, fs.config); err != nil {
		return p, nil, err
	}
	meta, err := getter(ctx, p)
	if !fs.ok(ctx, op, p, err) {
		return p, nil, nil
	}
	return p, meta, nil
}

// ok reports whether err is nil, logging it otherwise.
func (fs *Filesystem) ok(ctx context.Context, op, p string, err error) bool {
	if err == nil {
		return true
	}
	fs.logFailure(ctx, op, p, err)
	return false
}

func (fs *Filesystem) logFailure(ctx context.Context, op, p string, err error) {
	fs.logger.DebugContext(ctx, "adapter operation failed",
		slog.String("op", op),
		slog.String("path", p),
		slog.Any("error", err),
	)
}
