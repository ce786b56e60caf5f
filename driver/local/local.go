package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/gobeaver/vfskit"
)

// LinkHandling decides what listings do with symbolic links.
type LinkHandling string

const (
	// LinkSkip leaves symbolic links out of listings.
	LinkSkip LinkHandling = "skip"
	// LinkDisallow fails a listing that encounters a symbolic link.
	LinkDisallow LinkHandling = "disallow"
)

// ErrLinkNotSupported is returned by listings under LinkDisallow.
var ErrLinkNotSupported = fmt.Errorf("%w: symbolic link", vfskit.ErrNotSupported)

// tempPrefix marks in-flight writes. Listings hide these files.
const tempPrefix = ".vfskit-"

// Permissions maps visibilities to file modes.
type Permissions struct {
	FilePublic  os.FileMode `mapstructure:"file_public"`
	FilePrivate os.FileMode `mapstructure:"file_private"`
	DirPublic   os.FileMode `mapstructure:"dir_public"`
	DirPrivate  os.FileMode `mapstructure:"dir_private"`
}

// DefaultPermissions returns 0644/0600 for files and 0755/0700 for
// directories.
func DefaultPermissions() Permissions {
	return Permissions{
		FilePublic:  0o644,
		FilePrivate: 0o600,
		DirPublic:   0o755,
		DirPrivate:  0o700,
	}
}

func (p Permissions) withDefaults() Permissions {
	d := DefaultPermissions()
	if p.FilePublic == 0 {
		p.FilePublic = d.FilePublic
	}
	if p.FilePrivate == 0 {
		p.FilePrivate = d.FilePrivate
	}
	if p.DirPublic == 0 {
		p.DirPublic = d.DirPublic
	}
	if p.DirPrivate == 0 {
		p.DirPrivate = d.DirPrivate
	}
	return p
}

func (p Permissions) mode(isDir bool, v vfskit.Visibility) os.FileMode {
	switch {
	case isDir && v == vfskit.Private:
		return p.DirPrivate
	case isDir:
		return p.DirPublic
	case v == vfskit.Private:
		return p.FilePrivate
	default:
		return p.FilePublic
	}
}

func (p Permissions) visibility(info fs.FileInfo) vfskit.Visibility {
	private := p.FilePrivate
	if info.IsDir() {
		private = p.DirPrivate
	}
	if info.Mode().Perm() == private.Perm() {
		return vfskit.Private
	}
	return vfskit.Public
}

// Config configures the local adapter.
type Config struct {
	Root        string       `mapstructure:"root"`
	Links       LinkHandling `mapstructure:"links"`
	Permissions Permissions  `mapstructure:"permissions"`
}

// Adapter stores files below a root directory of the local disk.
type Adapter struct {
	root  string
	links LinkHandling
	perms Permissions
}

// New creates a local adapter, creating the root directory if needed.
func New(cfg Config) (*Adapter, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: local root is required", vfskit.ErrInvalidConfig)
	}
	switch cfg.Links {
	case "":
		cfg.Links = LinkSkip
	case LinkSkip, LinkDisallow:
	default:
		return nil, fmt.Errorf("%w: unknown link handling %q", vfskit.ErrInvalidConfig, cfg.Links)
	}

	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}

	perms := cfg.Permissions.withDefaults()
	if err := os.MkdirAll(absRoot, perms.DirPublic); err != nil {
		return nil, fmt.Errorf("failed to create root %s: %w", absRoot, err)
	}

	return &Adapter{root: absRoot, links: cfg.Links, perms: perms}, nil
}

// Root returns the absolute root directory.
func (a *Adapter) Root() string {
	return a.root
}

// SupportsOverwrite reports that Write replaces existing files.
func (a *Adapter) SupportsOverwrite() bool {
	return true
}

// fullPath maps a canonical path below the root.
func (a *Adapter) fullPath(op, path string) (string, error) {
	full := filepath.Join(a.root, filepath.FromSlash(path))
	if !isPathUnderRoot(a.root, full) {
		return "", &vfskit.PathError{Op: op, Path: path, Err: vfskit.ErrRootViolation}
	}
	return full, nil
}

func (a *Adapter) Has(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := a.fullPath("has", path)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &vfskit.PathError{Op: "has", Path: path, Err: err}
	}
	return true, nil
}

func (a *Adapter) Read(ctx context.Context, path string) (*vfskit.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := a.fullPath("read", path)
	if err != nil {
		return nil, err
	}

	contents, err := os.ReadFile(full)
	if err != nil {
		return nil, pathError("read", path, err)
	}

	return &vfskit.Object{
		Metadata: vfskit.Metadata{Path: path, Type: vfskit.TypeFile, Size: vfskit.Ptr(int64(len(contents)))},
		Contents: contents,
	}, nil
}

func (a *Adapter) ReadStream(ctx context.Context, path string) (*vfskit.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := a.fullPath("readstream", path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, pathError("readstream", path, err)
	}
	return &vfskit.Object{
		Metadata: vfskit.Metadata{Path: path, Type: vfskit.TypeFile},
		Stream:   f,
	}, nil
}

func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	meta, err := a.writeAtomic(ctx, "write", path, bytes.NewReader(contents), cfg)
	if err != nil {
		return nil, err
	}
	meta.Mimetype = vfskit.Ptr(cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, contents)))
	return meta, nil
}

func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if r == nil {
		return nil, &vfskit.PathError{Op: "writestream", Path: path, Err: vfskit.ErrInvalidArgument}
	}
	return a.writeAtomic(ctx, "writestream", path, r, cfg)
}

func (a *Adapter) Update(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	meta, err := a.writeAtomic(ctx, "update", path, bytes.NewReader(contents), cfg)
	if err != nil {
		return nil, err
	}
	meta.Mimetype = vfskit.Ptr(cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, contents)))
	return meta, nil
}

func (a *Adapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if r == nil {
		return nil, &vfskit.PathError{Op: "updatestream", Path: path, Err: vfskit.ErrInvalidArgument}
	}
	return a.writeAtomic(ctx, "updatestream", path, r, cfg)
}

// writeAtomic writes r to a temporary file next to the target and renames it
// into place, so readers never observe a partial file.
func (a *Adapter) writeAtomic(ctx context.Context, op, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := a.fullPath(op, path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(full), a.perms.DirPublic); err != nil {
		return nil, &vfskit.PathError{Op: op, Path: path, Err: err}
	}

	visibility := vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public)))
	mode := a.perms.mode(false, visibility)

	tmp := filepath.Join(filepath.Dir(full), tempPrefix+ulid.Make().String()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return nil, &vfskit.PathError{Op: op, Path: path, Err: err}
	}

	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Close()
	} else {
		_ = f.Close()
	}
	if err == nil {
		// OpenFile is subject to the umask
		err = os.Chmod(tmp, mode)
	}
	if err == nil {
		err = os.Rename(tmp, full)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return nil, &vfskit.PathError{Op: op, Path: path, Err: err}
	}

	meta := &vfskit.Metadata{
		Path:       path,
		Type:       vfskit.TypeFile,
		Size:       vfskit.Ptr(n),
		Visibility: vfskit.Ptr(visibility),
	}
	if info, err := os.Stat(full); err == nil {
		meta.Timestamp = vfskit.Ptr(info.ModTime().Unix())
	}
	return meta, nil
}

func (a *Adapter) Rename(ctx context.Context, path, newpath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := a.fullPath("rename", path)
	if err != nil {
		return err
	}
	dst, err := a.fullPath("rename", newpath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), a.perms.DirPublic); err != nil {
		return &vfskit.PathError{Op: "rename", Path: newpath, Err: err}
	}
	if err := os.Rename(src, dst); err != nil {
		return pathError("rename", path, err)
	}
	return nil
}

// Copy duplicates a file, keeping its visibility.
func (a *Adapter) Copy(ctx context.Context, path, newpath string) error {
	src, err := a.fullPath("copy", path)
	if err != nil {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		return pathError("copy", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return pathError("copy", path, err)
	}
	if info.IsDir() {
		return &vfskit.PathError{Op: "copy", Path: path, Err: vfskit.ErrNotSupported}
	}

	cfg := vfskit.NewConfig(map[string]any{vfskit.KeyVisibility: string(a.perms.visibility(info))})
	_, err = a.writeAtomic(ctx, "copy", newpath, f, cfg)
	return err
}

// Delete removes a file. Directories are left to DeleteDir.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := a.fullPath("delete", path)
	if err != nil {
		return err
	}

	info, err := os.Lstat(full)
	if err != nil {
		return pathError("delete", path, err)
	}
	if info.IsDir() {
		return &vfskit.PathError{Op: "delete", Path: path, Err: ErrIsDir}
	}
	if err := os.Remove(full); err != nil {
		return pathError("delete", path, err)
	}
	return nil
}

// DeleteDir removes a directory and everything below it. The root itself
// can not be removed.
func (a *Adapter) DeleteDir(ctx context.Context, dirname string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := a.fullPath("deletedir", dirname)
	if err != nil {
		return err
	}
	if full == a.root {
		return &vfskit.PathError{Op: "deletedir", Path: dirname, Err: vfskit.ErrRootViolation}
	}

	info, err := os.Lstat(full)
	if err != nil {
		return pathError("deletedir", dirname, err)
	}
	if !info.IsDir() {
		return &vfskit.PathError{Op: "deletedir", Path: dirname, Err: ErrNotDir}
	}
	if err := os.RemoveAll(full); err != nil {
		return &vfskit.PathError{Op: "deletedir", Path: dirname, Err: err}
	}
	return nil
}

func (a *Adapter) CreateDir(ctx context.Context, dirname string, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := a.fullPath("createdir", dirname)
	if err != nil {
		return nil, err
	}

	visibility := vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public)))
	mode := a.perms.mode(true, visibility)

	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		return nil, &vfskit.PathError{Op: "createdir", Path: dirname, Err: vfskit.ErrFileExists}
	}
	if err := os.MkdirAll(full, mode); err != nil {
		return nil, &vfskit.PathError{Op: "createdir", Path: dirname, Err: err}
	}
	if full != a.root {
		if err := os.Chmod(full, mode); err != nil {
			return nil, &vfskit.PathError{Op: "createdir", Path: dirname, Err: err}
		}
	}

	return &vfskit.Metadata{Path: dirname, Type: vfskit.TypeDir, Visibility: vfskit.Ptr(visibility)}, nil
}

// ListContents lists a directory. A missing directory lists as empty.
// Symbolic links are skipped or rejected depending on the link handling.
func (a *Adapter) ListContents(ctx context.Context, directory string, recursive bool) ([]vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := a.fullPath("listcontents", directory)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil || !info.IsDir() {
		return []vfskit.Metadata{}, nil
	}

	listing := []vfskit.Metadata{}
	err = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == full {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(a.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.Type()&fs.ModeSymlink != 0 {
			if a.links == LinkDisallow {
				return &vfskit.PathError{Op: "listcontents", Path: rel, Err: ErrLinkNotSupported}
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		listing = append(listing, a.metadata(rel, info))

		if d.IsDir() && !recursive {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		var pe *vfskit.PathError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &vfskit.PathError{Op: "listcontents", Path: directory, Err: err}
	}
	return listing, nil
}

func (a *Adapter) GetMetadata(ctx context.Context, path string) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := a.fullPath("getmetadata", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, pathError("getmetadata", path, err)
	}
	meta := a.metadata(path, info)
	return &meta, nil
}

func (a *Adapter) GetSize(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

func (a *Adapter) GetTimestamp(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

func (a *Adapter) GetVisibility(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

// GetMimetype sniffs the head of the file.
func (a *Adapter) GetMimetype(ctx context.Context, path string) (*vfskit.Metadata, error) {
	meta, err := a.GetMetadata(ctx, path)
	if err != nil {
		return nil, err
	}
	if meta.IsDir() {
		return meta, nil
	}

	f, err := os.Open(filepath.Join(a.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, pathError("getmimetype", path, err)
	}
	defer f.Close()

	head := make([]byte, 3072)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, &vfskit.PathError{Op: "getmimetype", Path: path, Err: err}
	}
	meta.Mimetype = vfskit.Ptr(vfskit.GuessMimeType(path, head[:n]))
	return meta, nil
}

func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility vfskit.Visibility) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !visibility.Valid() {
		return nil, &vfskit.PathError{Op: "setvisibility", Path: path, Err: vfskit.ErrInvalidArgument}
	}
	full, err := a.fullPath("setvisibility", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, pathError("setvisibility", path, err)
	}
	if err := os.Chmod(full, a.perms.mode(info.IsDir(), visibility)); err != nil {
		return nil, &vfskit.PathError{Op: "setvisibility", Path: path, Err: err}
	}
	return &vfskit.Metadata{Path: path, Type: fileType(info), Visibility: vfskit.Ptr(visibility)}, nil
}

func (a *Adapter) metadata(path string, info fs.FileInfo) vfskit.Metadata {
	meta := vfskit.Metadata{
		Path:       path,
		Type:       fileType(info),
		Timestamp:  vfskit.Ptr(info.ModTime().Unix()),
		Visibility: vfskit.Ptr(a.perms.visibility(info)),
	}
	if !info.IsDir() {
		meta.Size = vfskit.Ptr(info.Size())
	}
	return meta
}

func fileType(info fs.FileInfo) vfskit.FileType {
	if info.IsDir() {
		return vfskit.TypeDir
	}
	return vfskit.TypeFile
}

// isPathUnderRoot checks if a path is under a given root directory
func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// pathError translates os errors into vfskit errors.
func pathError(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &vfskit.PathError{Op: op, Path: path, Err: vfskit.ErrFileNotFound}
	}
	if errors.Is(err, fs.ErrExist) {
		return &vfskit.PathError{Op: op, Path: path, Err: vfskit.ErrFileExists}
	}
	if errors.Is(err, fs.ErrPermission) {
		return &vfskit.PathError{Op: op, Path: path, Err: fmt.Errorf("%w: %v", vfskit.ErrPermission, err)}
	}
	return &vfskit.PathError{Op: op, Path: path, Err: err}
}

var (
	// ErrIsDir is returned when Delete is called on a directory
	ErrIsDir = errors.New("path is a directory")
	// ErrNotDir is returned when DeleteDir is called on a file
	ErrNotDir = errors.New("path is not a directory")
)

var (
	_ vfskit.Adapter          = (*Adapter)(nil)
	_ vfskit.OverwriteCapable = (*Adapter)(nil)
	_ vfskit.Watcher          = (*Adapter)(nil)
)
