package vfskit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// SchemeSeparator separates the mount prefix from the path in a URI.
const SchemeSeparator = "://"

// MountManager routes calls to Filesystems addressed as "prefix://path".
//
// The mount table is expected to be filled during setup. It is guarded by a
// lock, but no guarantee spans more than one call.
type MountManager struct {
	mu      sync.RWMutex
	mounts  map[string]*Filesystem
	plugins pluginRegistry
	logger  *slog.Logger
}

// NewMountManager creates a manager with the given mounts.
func NewMountManager(filesystems map[string]*Filesystem, opts ...MountOption) (*MountManager, error) {
	m := &MountManager{
		mounts: make(map[string]*Filesystem),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.MountFilesystems(filesystems); err != nil {
		return nil, err
	}
	return m, nil
}

// MountFilesystems mounts every entry of filesystems.
func (m *MountManager) MountFilesystems(filesystems map[string]*Filesystem) error {
	prefixes := make([]string, 0, len(filesystems))
	for prefix := range filesystems {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	for _, prefix := range prefixes {
		if err := m.MountFilesystem(prefix, filesystems[prefix]); err != nil {
			return err
		}
	}
	return nil
}

// MountFilesystem binds fs to prefix, replacing any previous mount.
// The prefix must be non-empty and must not contain "://".
func (m *MountManager) MountFilesystem(prefix string, fs *Filesystem) error {
	if prefix == "" || strings.Contains(prefix, SchemeSeparator) {
		return fmt.Errorf("%w: invalid mount prefix %q", ErrInvalidArgument, prefix)
	}
	if fs == nil {
		return fmt.Errorf("%w: nil filesystem for prefix %q", ErrInvalidArgument, prefix)
	}

	m.mu.Lock()
	m.mounts[prefix] = fs
	m.mu.Unlock()

	m.logger.Debug("filesystem mounted", slog.String("prefix", prefix))
	return nil
}

// GetFilesystem returns the Filesystem mounted at prefix.
func (m *MountManager) GetFilesystem(prefix string) (*Filesystem, error) {
	m.mu.RLock()
	fs, ok := m.mounts[prefix]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %s", ErrFilesystemNotFound, prefix)
	}
	return fs, nil
}

// Prefixes returns the mounted prefixes in sorted order.
func (m *MountManager) Prefixes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.mounts))
	for prefix := range m.mounts {
		out = append(out, prefix)
	}
	sort.Strings(out)
	return out
}

// AddPlugin registers a manager level plugin. Manager plugins are consulted
// before the plugins of the resolved Filesystem.
func (m *MountManager) AddPlugin(p Plugin) *MountManager {
	m.plugins.add(p)
	return m
}

// Close closes every mounted Filesystem and returns the first error.
func (m *MountManager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var first error
	for _, fs := range m.mounts {
		if err := fs.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ParseURI splits uri at the first "://". A missing or empty prefix is an
// ErrInvalidArgument error; there is no default mount.
func ParseURI(uri string) (prefix, path string, err error) {
	idx := strings.Index(uri, SchemeSeparator)
	if idx < 1 {
		return "", "", fmt.Errorf("%w: no prefix detected in path: %s", ErrInvalidArgument, uri)
	}
	return uri[:idx], uri[idx+len(SchemeSeparator):], nil
}

func (m *MountManager) resolve(uri string) (*Filesystem, string, string, error) {
	prefix, p, err := ParseURI(uri)
	if err != nil {
		return nil, "", "", err
	}
	fs, err := m.GetFilesystem(prefix)
	if err != nil {
		return nil, "", "", err
	}
	return fs, prefix, p, nil
}

// Invoke calls method on the Filesystem addressed by the first argument,
// which must be a "prefix://path" string. Manager plugins are tried first,
// then the Filesystem's own plugins and operations.
func (m *MountManager) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: at least one argument needed", ErrInvalidArgument)
	}
	uri, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: first argument should be a string", ErrInvalidArgument)
	}
	prefix, p, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rest := make([]any, len(args))
	copy(rest, args)
	rest[0] = p
	return m.invokeOnFilesystem(ctx, method, prefix, rest)
}

func (m *MountManager) invokeOnFilesystem(ctx context.Context, method, prefix string, args []any) (any, error) {
	fs, err := m.GetFilesystem(prefix)
	if err != nil {
		return nil, err
	}
	if result, found, err := m.plugins.invoke(ctx, method, fs, args); found {
		return result, err
	}
	return fs.Invoke(ctx, method, args...)
}

// Copy copies a file between any two mounts by streaming it from the source
// into the destination. A failed source read returns false without touching
// the destination. The source stream is closed on every path.
func (m *MountManager) Copy(ctx context.Context, from, to string, opts ...Option) (bool, error) {
	src, _, fromPath, err := m.resolve(from)
	if err != nil {
		return false, err
	}
	stream, ok, err := src.ReadStream(ctx, fromPath)
	if err != nil || !ok {
		return false, err
	}
	defer stream.Close()

	dst, _, toPath, err := m.resolve(to)
	if err != nil {
		return false, err
	}
	return dst.WriteStream(ctx, toPath, stream, opts...)
}

// Move moves a file between mounts.
//
// Within one mount it is a Rename, followed by SetVisibility when a
// visibility option is given. Across mounts it is a Copy followed by a
// Delete of the source. A failure between the two leaves both copies in
// place.
func (m *MountManager) Move(ctx context.Context, from, to string, opts ...Option) (bool, error) {
	fromPrefix, fromPath, err := ParseURI(from)
	if err != nil {
		return false, err
	}
	toPrefix, toPath, err := ParseURI(to)
	if err != nil {
		return false, err
	}

	if fromPrefix == toPrefix {
		fs, err := m.GetFilesystem(fromPrefix)
		if err != nil {
			return false, err
		}
		renamed, err := fs.Rename(ctx, fromPath, toPath)
		if err != nil || !renamed {
			return false, err
		}
		cfg := NewConfigFromOptions(opts...)
		if cfg.Has(KeyVisibility) {
			return fs.SetVisibility(ctx, toPath, Visibility(cfg.GetString(KeyVisibility, "")))
		}
		return true, nil
	}

	copied, err := m.Copy(ctx, from, to, opts...)
	if err != nil || !copied {
		return false, err
	}
	return m.Delete(ctx, from)
}

// ListContents lists a directory of one mount and tags every record with the
// mount prefix.
func (m *MountManager) ListContents(ctx context.Context, uri string, recursive bool) ([]Metadata, error) {
	fs, prefix, p, err := m.resolve(uri)
	if err != nil {
		return nil, err
	}
	listing, err := fs.ListContents(ctx, p, recursive)
	if err != nil {
		return nil, err
	}
	for i := range listing {
		listing[i].Filesystem = prefix
	}
	return listing, nil
}

// ListWith forwards to the "listWith" plugin of the addressed mount.
func (m *MountManager) ListWith(ctx context.Context, keys []string, uri string, recursive bool) (any, error) {
	prefix, p, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return m.invokeOnFilesystem(ctx, "listWith", prefix, []any{keys, p, recursive})
}

// ============================================================================
// Forwarded operations
// ============================================================================

func (m *MountManager) Has(ctx context.Context, uri string) (bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return false, err
	}
	return fs.Has(ctx, p)
}

func (m *MountManager) Read(ctx context.Context, uri string) ([]byte, bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return nil, false, err
	}
	return fs.Read(ctx, p)
}

func (m *MountManager) ReadStream(ctx context.Context, uri string) (io.ReadCloser, bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return nil, false, err
	}
	return fs.ReadStream(ctx, p)
}

func (m *MountManager) ReadAndDelete(ctx context.Context, uri string) ([]byte, bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return nil, false, err
	}
	return fs.ReadAndDelete(ctx, p)
}

func (m *MountManager) Write(ctx context.Context, uri string, contents []byte, opts ...Option) (bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return false, err
	}
	return fs.Write(ctx, p, contents, opts...)
}

func (m *MountManager) WriteStream(ctx context.Context, uri string, r io.Reader, opts ...Option) (bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return false, err
	}
	return fs.WriteStream(ctx, p, r, opts...)
}

func (m *MountManager) Update(ctx context.Context, uri string, contents []byte, opts ...Option) (bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return false, err
	}
	return fs.Update(ctx, p, contents, opts...)
}

func (m *MountManager) UpdateStream(ctx context.Context, uri string, r io.Reader, opts ...Option) (bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return false, err
	}
	return fs.UpdateStream(ctx, p, r, opts...)
}

func (m *MountManager) Put(ctx context.Context, uri string, contents []byte, opts ...Option) (bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return false, err
	}
	return fs.Put(ctx, p, contents, opts...)
}

func (m *MountManager) PutStream(ctx context.Context, uri string, r io.Reader, opts ...Option) (bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return false, err
	}
	return fs.PutStream(ctx, p, r, opts...)
}

func (m *MountManager) Delete(ctx context.Context, uri string) (bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return false, err
	}
	return fs.Delete(ctx, p)
}

func (m *MountManager) CreateDir(ctx context.Context, uri string, opts ...Option) (bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return false, err
	}
	return fs.CreateDir(ctx, p, opts...)
}

func (m *MountManager) DeleteDir(ctx context.Context, uri string) (bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return false, err
	}
	return fs.DeleteDir(ctx, p)
}

func (m *MountManager) GetMetadata(ctx context.Context, uri string) (*Metadata, bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return nil, false, err
	}
	return fs.GetMetadata(ctx, p)
}

func (m *MountManager) GetMimetype(ctx context.Context, uri string) (string, bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return "", false, err
	}
	return fs.GetMimetype(ctx, p)
}

func (m *MountManager) GetSize(ctx context.Context, uri string) (int64, bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return 0, false, err
	}
	return fs.GetSize(ctx, p)
}

func (m *MountManager) GetTimestamp(ctx context.Context, uri string) (int64, bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return 0, false, err
	}
	return fs.GetTimestamp(ctx, p)
}

func (m *MountManager) GetVisibility(ctx context.Context, uri string) (Visibility, bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return "", false, err
	}
	return fs.GetVisibility(ctx, p)
}

func (m *MountManager) SetVisibility(ctx context.Context, uri string, visibility Visibility) (bool, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return false, err
	}
	return fs.SetVisibility(ctx, p, visibility)
}

// Get returns a handler for the addressed path, bound to its mount.
func (m *MountManager) Get(ctx context.Context, uri string, handler Handler) (Handler, error) {
	fs, _, p, err := m.resolve(uri)
	if err != nil {
		return nil, err
	}
	return fs.Get(ctx, p, handler)
}
