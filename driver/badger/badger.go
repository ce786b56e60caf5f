// Package badger stores files in an embedded BadgerDB key-value store.
//
// Key namespaces:
//
//	m:<path>  entry metadata (JSON), one per file and directory
//	d:<path>  file contents
//
// Directories are explicit entries; writes create missing parents.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/gobeaver/vfskit"
)

const (
	metaPrefix = "m:"
	dataPrefix = "d:"
)

func metaKey(p string) []byte { return []byte(metaPrefix + p) }
func dataKey(p string) []byte { return []byte(dataPrefix + p) }

// childPrefix is the metadata key prefix of everything below dirname.
func childPrefix(dirname string) []byte {
	if dirname == "" {
		return []byte(metaPrefix)
	}
	return []byte(metaPrefix + dirname + "/")
}

type entry struct {
	Type       vfskit.FileType   `json:"type"`
	Size       int64             `json:"size,omitempty"`
	Mimetype   string            `json:"mimetype,omitempty"`
	Visibility vfskit.Visibility `json:"visibility"`
	Timestamp  int64             `json:"timestamp"`
}

func (e entry) metadata(p string) vfskit.Metadata {
	meta := vfskit.Metadata{
		Path:       p,
		Type:       e.Type,
		Timestamp:  vfskit.Ptr(e.Timestamp),
		Visibility: vfskit.Ptr(e.Visibility),
	}
	if e.Type == vfskit.TypeFile {
		meta.Size = vfskit.Ptr(e.Size)
		meta.Mimetype = vfskit.Ptr(e.Mimetype)
	}
	return meta
}

// Config is the option block of the badger driver.
type Config struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir      string `mapstructure:"dir"`
	InMemory bool   `mapstructure:"in_memory"`
}

// Adapter keeps files in a BadgerDB database.
type Adapter struct {
	db *badger.DB
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Adapter, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Dir != "":
		opts = badger.DefaultOptions(cfg.Dir)
	default:
		return nil, fmt.Errorf("%w: badger dir is required unless in_memory is set", vfskit.ErrInvalidConfig)
	}
	opts = opts.WithLogger(slogLogger{slog.Default()}).WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Dir, err)
	}
	return New(db), nil
}

// New wraps an open database. The caller keeps ownership of db unless it
// calls Close on the adapter.
func New(db *badger.DB) *Adapter {
	return &Adapter{db: db}
}

// Close closes the database.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// SupportsOverwrite reports that Write replaces existing files.
func (a *Adapter) SupportsOverwrite() bool {
	return true
}

func getEntry(txn *badger.Txn, p string) (entry, error) {
	var e entry
	item, err := txn.Get(metaKey(p))
	if err != nil {
		return e, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	return e, err
}

func setEntry(txn *badger.Txn, p string, e entry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return txn.Set(metaKey(p), val)
}

// ensureParents creates the missing ancestors of p. A file in the way is
// an error.
func ensureParents(txn *badger.Txn, p string, now int64) error {
	for dir := vfskit.Dirname(p); dir != ""; dir = vfskit.Dirname(dir) {
		existing, err := getEntry(txn, dir)
		if err == nil {
			if existing.Type != vfskit.TypeDir {
				return &vfskit.PathError{Op: "mkdir", Path: dir, Err: vfskit.ErrFileExists}
			}
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setEntry(txn, dir, entry{Type: vfskit.TypeDir, Visibility: vfskit.Public, Timestamp: now}); err != nil {
			return err
		}
	}
	return nil
}

// scan calls fn for every metadata key below prefix.
func scan(txn *badger.Txn, prefix []byte, fn func(p string, e entry) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var e entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		}); err != nil {
			return err
		}
		if err := fn(strings.TrimPrefix(string(item.Key()), metaPrefix), e); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Has(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var found bool
	err := a.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(metaKey(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		return false, badgerError("has", path, err)
	}
	return found, nil
}

func (a *Adapter) Read(ctx context.Context, path string) (*vfskit.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var obj *vfskit.Object
	err := a.db.View(func(txn *badger.Txn) error {
		e, err := getEntry(txn, path)
		if err != nil {
			return err
		}
		if e.Type != vfskit.TypeFile {
			return vfskit.ErrFileNotFound
		}
		item, err := txn.Get(dataKey(path))
		if err != nil {
			return err
		}
		contents, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		obj = &vfskit.Object{Metadata: e.metadata(path), Contents: contents}
		return nil
	})
	if err != nil {
		return nil, badgerError("read", path, err)
	}
	return obj, nil
}

func (a *Adapter) ReadStream(ctx context.Context, path string) (*vfskit.Object, error) {
	return vfskit.StreamFromRead(ctx, a, path)
}

// Write stores contents at path, replacing any existing file.
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	e := entry{
		Type:       vfskit.TypeFile,
		Size:       int64(len(contents)),
		Mimetype:   cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, contents)),
		Visibility: vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public))),
		Timestamp:  now,
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		if existing, err := getEntry(txn, path); err == nil && existing.Type == vfskit.TypeDir {
			return vfskit.ErrFileExists
		}
		if err := ensureParents(txn, path, now); err != nil {
			return err
		}
		if err := txn.Set(dataKey(path), contents); err != nil {
			return err
		}
		return setEntry(txn, path, e)
	})
	if err != nil {
		return nil, badgerError("write", path, err)
	}

	meta := e.metadata(path)
	return &meta, nil
}

func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return vfskit.WriteFromStream(ctx, a, path, r, cfg)
}

// Update replaces the contents of an existing file.
func (a *Adapter) Update(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	has, err := a.Has(ctx, path)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, &vfskit.PathError{Op: "update", Path: path, Err: vfskit.ErrFileNotFound}
	}
	return a.Write(ctx, path, contents, cfg)
}

func (a *Adapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return vfskit.UpdateFromStream(ctx, a, path, r, cfg)
}

// Rename moves a file, or a directory with everything below it, in one
// transaction.
func (a *Adapter) Rename(ctx context.Context, path, newpath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if newpath == path || strings.HasPrefix(newpath, path+"/") || strings.HasPrefix(path, newpath+"/") {
		return &vfskit.PathError{Op: "rename", Path: path, Err: vfskit.ErrInvalidArgument}
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, path)
		if err != nil {
			return err
		}
		if err := ensureParents(txn, newpath, time.Now().Unix()); err != nil {
			return err
		}

		moves := map[string]entry{path: e}
		if e.Type == vfskit.TypeDir {
			if err := scan(txn, childPrefix(path), func(p string, child entry) error {
				moves[p] = child
				return nil
			}); err != nil {
				return err
			}
		}

		for from, moved := range moves {
			to := newpath + strings.TrimPrefix(from, path)
			if moved.Type == vfskit.TypeFile {
				item, err := txn.Get(dataKey(from))
				if err != nil {
					return err
				}
				contents, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if err := txn.Set(dataKey(to), contents); err != nil {
					return err
				}
				if err := txn.Delete(dataKey(from)); err != nil {
					return err
				}
			}
			if err := setEntry(txn, to, moved); err != nil {
				return err
			}
			if err := txn.Delete(metaKey(from)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return badgerError("rename", path, err)
	}
	return nil
}

// Copy duplicates a file, keeping its mimetype and visibility.
func (a *Adapter) Copy(ctx context.Context, path, newpath string) error {
	obj, err := a.Read(ctx, path)
	if err != nil {
		return err
	}
	cfg := vfskit.NewConfig(map[string]any{
		vfskit.KeyMimetype:   *obj.Mimetype,
		vfskit.KeyVisibility: *obj.Visibility,
	})
	_, err = a.Write(ctx, newpath, obj.Contents, cfg)
	return err
}

func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, path)
		if err != nil {
			return err
		}
		if e.Type != vfskit.TypeFile {
			return vfskit.ErrFileNotFound
		}
		if err := txn.Delete(dataKey(path)); err != nil {
			return err
		}
		return txn.Delete(metaKey(path))
	})
	if err != nil {
		return badgerError("delete", path, err)
	}
	return nil
}

// DeleteDir removes a directory and everything below it.
func (a *Adapter) DeleteDir(ctx context.Context, dirname string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dirname == "" {
		return &vfskit.PathError{Op: "deletedir", Path: dirname, Err: vfskit.ErrRootViolation}
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, dirname)
		if err != nil {
			return err
		}
		if e.Type != vfskit.TypeDir {
			return vfskit.ErrFileNotFound
		}

		victims := map[string]vfskit.FileType{dirname: vfskit.TypeDir}
		if err := scan(txn, childPrefix(dirname), func(p string, child entry) error {
			victims[p] = child.Type
			return nil
		}); err != nil {
			return err
		}

		for p, typ := range victims {
			if typ == vfskit.TypeFile {
				if err := txn.Delete(dataKey(p)); err != nil {
					return err
				}
			}
			if err := txn.Delete(metaKey(p)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return badgerError("deletedir", dirname, err)
	}
	return nil
}

// CreateDir creates a directory and its parents.
func (a *Adapter) CreateDir(ctx context.Context, dirname string, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if dirname == "" {
		return &vfskit.Metadata{Path: dirname, Type: vfskit.TypeDir}, nil
	}

	now := time.Now().Unix()
	e := entry{
		Type:       vfskit.TypeDir,
		Visibility: vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public))),
		Timestamp:  now,
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		existing, err := getEntry(txn, dirname)
		if err == nil {
			if existing.Type != vfskit.TypeDir {
				return vfskit.ErrFileExists
			}
			e = existing
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := ensureParents(txn, dirname, now); err != nil {
			return err
		}
		return setEntry(txn, dirname, e)
	})
	if err != nil {
		return nil, badgerError("createdir", dirname, err)
	}

	meta := e.metadata(dirname)
	return &meta, nil
}

func (a *Adapter) ListContents(ctx context.Context, directory string, recursive bool) ([]vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	listing := []vfskit.Metadata{}
	err := a.db.View(func(txn *badger.Txn) error {
		prefix := childPrefix(directory)
		return scan(txn, prefix, func(p string, e entry) error {
			rel := p[len(prefix)-len(metaPrefix):]
			if !recursive && strings.Contains(rel, "/") {
				return nil
			}
			listing = append(listing, e.metadata(p))
			return nil
		})
	})
	if err != nil {
		return nil, badgerError("listcontents", directory, err)
	}

	sort.Slice(listing, func(i, j int) bool { return listing[i].Path < listing[j].Path })
	return listing, nil
}

func (a *Adapter) GetMetadata(ctx context.Context, path string) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var meta vfskit.Metadata
	err := a.db.View(func(txn *badger.Txn) error {
		e, err := getEntry(txn, path)
		if err != nil {
			return err
		}
		meta = e.metadata(path)
		return nil
	})
	if err != nil {
		return nil, badgerError("getmetadata", path, err)
	}
	return &meta, nil
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

func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility vfskit.Visibility) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !visibility.Valid() {
		return nil, &vfskit.PathError{Op: "setvisibility", Path: path, Err: vfskit.ErrInvalidArgument}
	}

	var meta vfskit.Metadata
	err := a.db.Update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, path)
		if err != nil {
			return err
		}
		e.Visibility = visibility
		meta = e.metadata(path)
		return setEntry(txn, path, e)
	})
	if err != nil {
		return nil, badgerError("setvisibility", path, err)
	}
	return &meta, nil
}

func badgerError(op, path string, err error) error {
	var pathErr *vfskit.PathError
	if errors.As(err, &pathErr) {
		return err
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		err = vfskit.ErrFileNotFound
	}
	return &vfskit.PathError{Op: op, Path: path, Err: err}
}

// slogLogger routes badger's internal logging through slog.
type slogLogger struct {
	logger *slog.Logger
}

func (l slogLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l slogLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l slogLogger) Infof(format string, args ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l slogLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

var (
	_ vfskit.Adapter          = (*Adapter)(nil)
	_ vfskit.OverwriteCapable = (*Adapter)(nil)
	_ io.Closer               = (*Adapter)(nil)
	_ badger.Logger           = slogLogger{}
)
