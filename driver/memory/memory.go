package memory

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/vfskit"
	"github.com/gobwas/glob"
)

// memoryFile represents a file stored in memory
type memoryFile struct {
	content    []byte
	mimetype   string
	modTime    time.Time
	visibility vfskit.Visibility
}

// memoryDir represents a directory in memory
type memoryDir struct {
	modTime    time.Time
	visibility vfskit.Visibility
}

// watchEntry represents a single watch subscription
type watchEntry struct {
	pattern glob.Glob
	token   *vfskit.CallbackChangeToken
}

// Adapter keeps files in process memory. Useful for tests and scratch space.
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	dirs    map[string]*memoryDir
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size

	watchMu sync.RWMutex
	watches []*watchEntry
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64 `mapstructure:"max_size"`
}

// New creates a new in-memory adapter
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	return &Adapter{
		files:   make(map[string]*memoryFile),
		dirs:    make(map[string]*memoryDir),
		maxSize: maxSize,
	}
}

// SupportsOverwrite reports that Write replaces existing files.
func (a *Adapter) SupportsOverwrite() bool {
	return true
}

// Has implements vfskit.ReadAdapter
func (a *Adapter) Has(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	_, isFile := a.files[path]
	_, isDir := a.dirs[path]
	return isFile || isDir, nil
}

// Read implements vfskit.ReadAdapter
func (a *Adapter) Read(ctx context.Context, path string) (*vfskit.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, ok := a.files[path]
	if !ok {
		return nil, notFound("read", path)
	}

	contents := make([]byte, len(file.content))
	copy(contents, file.content)

	return &vfskit.Object{Metadata: file.metadata(path), Contents: contents}, nil
}

// ReadStream implements vfskit.ReadAdapter
func (a *Adapter) ReadStream(ctx context.Context, path string) (*vfskit.Object, error) {
	return vfskit.StreamFromRead(ctx, a, path)
}

// Write stores contents at path, replacing any existing file.
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isDir := a.dirs[path]; isDir {
		return nil, &vfskit.PathError{Op: "write", Path: path, Err: ErrIsDir}
	}

	var oldSize int64
	if existing, ok := a.files[path]; ok {
		oldSize = int64(len(existing.content))
	}

	newSize := a.size - oldSize + int64(len(contents))
	if a.maxSize > 0 && newSize > a.maxSize {
		return nil, &vfskit.PathError{Op: "write", Path: path, Err: ErrStorageFull}
	}

	a.ensureParentDirs(path)

	data := make([]byte, len(contents))
	copy(data, contents)

	file := &memoryFile{
		content:    data,
		mimetype:   cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, data)),
		modTime:    time.Now(),
		visibility: vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public))),
	}
	a.files[path] = file
	a.size = newSize

	go a.notifyWatchers(path)

	meta := file.metadata(path)
	return &meta, nil
}

// WriteStream implements vfskit.WriteAdapter
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return vfskit.WriteFromStream(ctx, a, path, r, cfg)
}

// Update replaces the contents of an existing file.
func (a *Adapter) Update(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	a.mu.RLock()
	_, ok := a.files[path]
	a.mu.RUnlock()

	if !ok {
		return nil, notFound("update", path)
	}
	return a.Write(ctx, path, contents, cfg)
}

// UpdateStream implements vfskit.WriteAdapter
func (a *Adapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return vfskit.UpdateFromStream(ctx, a, path, r, cfg)
}

// Rename moves a file or a directory with everything below it.
func (a *Adapter) Rename(ctx context.Context, path, newpath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if file, ok := a.files[path]; ok {
		a.ensureParentDirs(newpath)
		a.files[newpath] = file
		delete(a.files, path)
		go a.notifyWatchers(path)
		go a.notifyWatchers(newpath)
		return nil
	}

	dir, ok := a.dirs[path]
	if !ok {
		return notFound("rename", path)
	}

	if strings.HasPrefix(newpath, path+"/") {
		return &vfskit.PathError{Op: "rename", Path: path, Err: vfskit.ErrInvalidArgument}
	}

	prefix := path + "/"
	movedFiles := make(map[string]*memoryFile)
	for p, f := range a.files {
		if strings.HasPrefix(p, prefix) {
			movedFiles[newpath+"/"+strings.TrimPrefix(p, prefix)] = f
			delete(a.files, p)
		}
	}
	movedDirs := make(map[string]*memoryDir)
	for p, d := range a.dirs {
		if strings.HasPrefix(p, prefix) {
			movedDirs[newpath+"/"+strings.TrimPrefix(p, prefix)] = d
			delete(a.dirs, p)
		}
	}
	for p, f := range movedFiles {
		a.files[p] = f
	}
	for p, d := range movedDirs {
		a.dirs[p] = d
	}
	delete(a.dirs, path)
	a.ensureParentDirs(newpath)
	a.dirs[newpath] = dir

	return nil
}

// Copy duplicates a file.
func (a *Adapter) Copy(ctx context.Context, path, newpath string) error {
	obj, err := a.Read(ctx, path)
	if err != nil {
		return err
	}

	a.mu.RLock()
	src := a.files[path]
	a.mu.RUnlock()

	cfg := vfskit.NewConfig(map[string]any{
		vfskit.KeyMimetype:   src.mimetype,
		vfskit.KeyVisibility: src.visibility,
	})
	_, err = a.Write(ctx, newpath, obj.Contents, cfg)
	return err
}

// Delete removes a file.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	file, ok := a.files[path]
	if !ok {
		return notFound("delete", path)
	}

	a.size -= int64(len(file.content))
	delete(a.files, path)

	go a.notifyWatchers(path)

	return nil
}

// DeleteDir removes a directory and everything below it.
func (a *Adapter) DeleteDir(ctx context.Context, dirname string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.dirs[dirname]; !ok {
		return notFound("deletedir", dirname)
	}

	prefix := dirname + "/"
	for p, f := range a.files {
		if strings.HasPrefix(p, prefix) {
			a.size -= int64(len(f.content))
			delete(a.files, p)
			go a.notifyWatchers(p)
		}
	}
	for p := range a.dirs {
		if strings.HasPrefix(p, prefix) {
			delete(a.dirs, p)
		}
	}
	delete(a.dirs, dirname)

	return nil
}

// CreateDir creates a directory and its parents.
func (a *Adapter) CreateDir(ctx context.Context, dirname string, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isFile := a.files[dirname]; isFile {
		return nil, &vfskit.PathError{Op: "createdir", Path: dirname, Err: vfskit.ErrFileExists}
	}

	a.ensureParentDirs(dirname)
	if _, ok := a.dirs[dirname]; !ok && dirname != "" {
		a.dirs[dirname] = &memoryDir{
			modTime:    time.Now(),
			visibility: vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public))),
		}
	}

	return &vfskit.Metadata{Path: dirname, Type: vfskit.TypeDir}, nil
}

// ListContents implements vfskit.ReadAdapter
func (a *Adapter) ListContents(ctx context.Context, directory string, recursive bool) ([]vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	var listing []vfskit.Metadata
	for p, file := range a.files {
		if below(directory, p, recursive) {
			listing = append(listing, file.metadata(p))
		}
	}
	for p, dir := range a.dirs {
		if below(directory, p, recursive) {
			listing = append(listing, dir.metadata(p))
		}
	}

	sort.Slice(listing, func(i, j int) bool { return listing[i].Path < listing[j].Path })
	return listing, nil
}

// GetMetadata implements vfskit.ReadAdapter
func (a *Adapter) GetMetadata(ctx context.Context, path string) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if file, ok := a.files[path]; ok {
		meta := file.metadata(path)
		return &meta, nil
	}
	if dir, ok := a.dirs[path]; ok {
		meta := dir.metadata(path)
		return &meta, nil
	}
	return nil, notFound("getmetadata", path)
}

func (a *Adapter) GetSize(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

func (a *Adapter) GetMimetype(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

func (a *Adapter) GetTimestamp(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

func (a *Adapter) GetVisibility(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

// SetVisibility implements vfskit.WriteAdapter
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility vfskit.Visibility) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !visibility.Valid() {
		return nil, &vfskit.PathError{Op: "setvisibility", Path: path, Err: vfskit.ErrInvalidArgument}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if file, ok := a.files[path]; ok {
		file.visibility = visibility
		meta := file.metadata(path)
		return &meta, nil
	}
	if dir, ok := a.dirs[path]; ok {
		dir.visibility = visibility
		meta := dir.metadata(path)
		return &meta, nil
	}
	return nil, notFound("setvisibility", path)
}

// Clear removes every file and directory
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.files = make(map[string]*memoryFile)
	a.dirs = make(map[string]*memoryDir)
	a.size = 0
}

// Size returns the total size of stored contents
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of stored files
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}

// ensureParentDirs creates all parent directories of path. Callers hold mu.
func (a *Adapter) ensureParentDirs(path string) {
	for dir := vfskit.Dirname(path); dir != ""; dir = vfskit.Dirname(dir) {
		if _, ok := a.dirs[dir]; ok {
			return
		}
		a.dirs[dir] = &memoryDir{modTime: time.Now(), visibility: vfskit.Public}
	}
}

func (f *memoryFile) metadata(path string) vfskit.Metadata {
	return vfskit.Metadata{
		Path:       path,
		Type:       vfskit.TypeFile,
		Timestamp:  vfskit.Ptr(f.modTime.Unix()),
		Size:       vfskit.Ptr(int64(len(f.content))),
		Mimetype:   vfskit.Ptr(f.mimetype),
		Visibility: vfskit.Ptr(f.visibility),
	}
}

func (d *memoryDir) metadata(path string) vfskit.Metadata {
	return vfskit.Metadata{
		Path:       path,
		Type:       vfskit.TypeDir,
		Timestamp:  vfskit.Ptr(d.modTime.Unix()),
		Visibility: vfskit.Ptr(d.visibility),
	}
}

// below reports whether p is listed for directory.
func below(directory, p string, recursive bool) bool {
	if p == directory {
		return false
	}
	if recursive {
		return directory == "" || strings.HasPrefix(p, directory+"/")
	}
	return vfskit.Dirname(p) == directory
}

// ============================================================================
// Watcher Implementation
// ============================================================================

// Watch implements vfskit.Watcher. Patterns use glob syntax with "/" as
// separator, e.g. "**/*.txt", "*.json", "config/*".
func (a *Adapter) Watch(ctx context.Context, pattern string) (vfskit.ChangeToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &vfskit.PathError{Op: "watch", Path: pattern, Err: err}
	}

	token := vfskit.NewCallbackChangeToken()

	a.watchMu.Lock()
	a.watches = append(a.watches, &watchEntry{pattern: g, token: token})
	a.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		a.removeWatch(token)
	}()

	return token, nil
}

// notifyWatchers signals all watchers whose pattern matches path
func (a *Adapter) notifyWatchers(path string) {
	a.watchMu.RLock()
	defer a.watchMu.RUnlock()

	for _, entry := range a.watches {
		if entry.pattern.Match(path) {
			entry.token.SignalChange()
		}
	}
}

func (a *Adapter) removeWatch(token *vfskit.CallbackChangeToken) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	for i, entry := range a.watches {
		if entry.token == token {
			a.watches[i] = a.watches[len(a.watches)-1]
			a.watches = a.watches[:len(a.watches)-1]
			return
		}
	}
}

func notFound(op, path string) error {
	return &vfskit.PathError{Op: op, Path: path, Err: vfskit.ErrFileNotFound}
}

var (
	// ErrIsDir is returned when writing a file over a directory
	ErrIsDir = errors.New("path is a directory")
	// ErrStorageFull is returned when a write would exceed MaxSize
	ErrStorageFull = errors.New("memory storage limit exceeded")
)

// Ensure Adapter implements interfaces
var (
	_ vfskit.Adapter          = (*Adapter)(nil)
	_ vfskit.OverwriteCapable = (*Adapter)(nil)
	_ vfskit.Watcher          = (*Adapter)(nil)
)
