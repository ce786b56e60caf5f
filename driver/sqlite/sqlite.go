// Package sqlite stores files as rows of a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"github.com/gobeaver/vfskit"
)

const schema = `
	CREATE TABLE IF NOT EXISTS files (
		path       TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		contents   BLOB,
		size       INTEGER NOT NULL DEFAULT 0,
		mimetype   TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public',
		timestamp  INTEGER NOT NULL
	)
`

const columns = "path, type, size, mimetype, visibility, timestamp"

// Config is the option block of the sqlite driver.
type Config struct {
	// Path of the database file; ":memory:" keeps everything in memory.
	Path string `mapstructure:"path"`
}

// Adapter keeps files in an SQLite database.
type Adapter struct {
	db *sql.DB
}

// Open opens (or creates) the database at cfg.Path and runs the schema
// migration.
func Open(cfg Config) (*Adapter, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", vfskit.ErrInvalidConfig)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if cfg.Path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}
	return &Adapter{db: db}, nil
}

// Close closes the underlying database connection.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// SupportsOverwrite reports that Write replaces existing files.
func (a *Adapter) SupportsOverwrite() bool {
	return true
}

// subtree returns the WHERE clause matching p and everything below it,
// with its arguments. '0' is the byte after '/'.
func subtree(p string) (string, []any) {
	return "(path = ? OR (path >= ? AND path < ?))", []any{p, p + "/", p + "0"}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row scanner) (vfskit.Metadata, error) {
	var (
		meta            vfskit.Metadata
		typ, mime, vis  string
		size, timestamp int64
	)
	if err := row.Scan(&meta.Path, &typ, &size, &mime, &vis, &timestamp); err != nil {
		return meta, err
	}
	meta.Type = vfskit.FileType(typ)
	meta.Timestamp = vfskit.Ptr(timestamp)
	meta.Visibility = vfskit.Ptr(vfskit.Visibility(vis))
	if meta.Type == vfskit.TypeFile {
		meta.Size = vfskit.Ptr(size)
		meta.Mimetype = vfskit.Ptr(mime)
	}
	return meta, nil
}

func getEntry(ctx context.Context, tx *sql.Tx, p string) (vfskit.Metadata, error) {
	return scanMetadata(tx.QueryRowContext(ctx, "SELECT "+columns+" FROM files WHERE path = ?", p))
}

// ensureParents inserts the missing ancestors of p.
func ensureParents(ctx context.Context, tx *sql.Tx, p string, now int64) error {
	for dir := vfskit.Dirname(p); dir != ""; dir = vfskit.Dirname(dir) {
		existing, err := getEntry(ctx, tx, dir)
		if err == nil {
			if !existing.IsDir() {
				return &vfskit.PathError{Op: "mkdir", Path: dir, Err: vfskit.ErrFileExists}
			}
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO files (path, type, visibility, timestamp) VALUES (?, ?, ?, ?)",
			dir, string(vfskit.TypeDir), string(vfskit.Public), now,
		); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (a *Adapter) Has(ctx context.Context, path string) (bool, error) {
	var n int
	err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE path = ?", path).Scan(&n)
	if err != nil {
		return false, sqliteError("has", path, err)
	}
	return n > 0, nil
}

func (a *Adapter) Read(ctx context.Context, path string) (*vfskit.Object, error) {
	var (
		contents []byte
		typ      string
	)
	err := a.db.QueryRowContext(ctx, "SELECT type, contents FROM files WHERE path = ?", path).Scan(&typ, &contents)
	if err == nil && typ != string(vfskit.TypeFile) {
		err = vfskit.ErrFileNotFound
	}
	if err != nil {
		return nil, sqliteError("read", path, err)
	}

	meta, err := a.GetMetadata(ctx, path)
	if err != nil {
		return nil, err
	}
	if contents == nil {
		contents = []byte{}
	}
	return &vfskit.Object{Metadata: *meta, Contents: contents}, nil
}

func (a *Adapter) ReadStream(ctx context.Context, path string) (*vfskit.Object, error) {
	return vfskit.StreamFromRead(ctx, a, path)
}

// Write stores contents at path, replacing any existing file.
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	now := time.Now().Unix()
	meta := vfskit.Metadata{
		Path:       path,
		Type:       vfskit.TypeFile,
		Size:       vfskit.Ptr(int64(len(contents))),
		Mimetype:   vfskit.Ptr(cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, contents))),
		Visibility: vfskit.Ptr(vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public)))),
		Timestamp:  vfskit.Ptr(now),
	}

	err := a.inTx(ctx, func(tx *sql.Tx) error {
		if existing, err := getEntry(ctx, tx, path); err == nil && existing.IsDir() {
			return vfskit.ErrFileExists
		}
		if err := ensureParents(ctx, tx, path, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO files (path, type, contents, size, mimetype, visibility, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				contents = excluded.contents,
				size = excluded.size,
				mimetype = excluded.mimetype,
				visibility = excluded.visibility,
				timestamp = excluded.timestamp`,
			path, string(vfskit.TypeFile), contents, len(contents), *meta.Mimetype, string(*meta.Visibility), now,
		)
		return err
	})
	if err != nil {
		return nil, sqliteError("write", path, err)
	}
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

// Rename moves a file, or a directory with everything below it, replacing
// whatever was at newpath.
func (a *Adapter) Rename(ctx context.Context, path, newpath string) error {
	if newpath == path || strings.HasPrefix(newpath, path+"/") || strings.HasPrefix(path, newpath+"/") {
		return &vfskit.PathError{Op: "rename", Path: path, Err: vfskit.ErrInvalidArgument}
	}

	err := a.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getEntry(ctx, tx, path); err != nil {
			return err
		}
		if err := ensureParents(ctx, tx, newpath, time.Now().Unix()); err != nil {
			return err
		}

		where, args := subtree(newpath)
		if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE "+where, args...); err != nil {
			return err
		}

		// substr counts characters, not bytes.
		where, args = subtree(path)
		args = append([]any{newpath, utf8.RuneCountInString(path) + 1}, args...)
		_, err := tx.ExecContext(ctx, "UPDATE files SET path = ? || substr(path, ?) WHERE "+where, args...)
		return err
	})
	if err != nil {
		return sqliteError("rename", path, err)
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
	res, err := a.db.ExecContext(ctx, "DELETE FROM files WHERE path = ? AND type = ?", path, string(vfskit.TypeFile))
	if err != nil {
		return sqliteError("delete", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &vfskit.PathError{Op: "delete", Path: path, Err: vfskit.ErrFileNotFound}
	}
	return nil
}

// DeleteDir removes a directory and everything below it.
func (a *Adapter) DeleteDir(ctx context.Context, dirname string) error {
	if dirname == "" {
		return &vfskit.PathError{Op: "deletedir", Path: dirname, Err: vfskit.ErrRootViolation}
	}

	err := a.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := getEntry(ctx, tx, dirname)
		if err != nil {
			return err
		}
		if !existing.IsDir() {
			return vfskit.ErrFileNotFound
		}
		where, args := subtree(dirname)
		_, err = tx.ExecContext(ctx, "DELETE FROM files WHERE "+where, args...)
		return err
	})
	if err != nil {
		return sqliteError("deletedir", dirname, err)
	}
	return nil
}

// CreateDir creates a directory and its parents.
func (a *Adapter) CreateDir(ctx context.Context, dirname string, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if dirname == "" {
		return &vfskit.Metadata{Path: dirname, Type: vfskit.TypeDir}, nil
	}

	now := time.Now().Unix()
	visibility := vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public)))

	var meta vfskit.Metadata
	err := a.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := getEntry(ctx, tx, dirname)
		if err == nil {
			if !existing.IsDir() {
				return vfskit.ErrFileExists
			}
			meta = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := ensureParents(ctx, tx, dirname, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO files (path, type, visibility, timestamp) VALUES (?, ?, ?, ?)",
			dirname, string(vfskit.TypeDir), string(visibility), now,
		); err != nil {
			return err
		}
		meta = vfskit.Metadata{Path: dirname, Type: vfskit.TypeDir, Visibility: &visibility, Timestamp: vfskit.Ptr(now)}
		return nil
	})
	if err != nil {
		return nil, sqliteError("createdir", dirname, err)
	}
	return &meta, nil
}

func (a *Adapter) ListContents(ctx context.Context, directory string, recursive bool) ([]vfskit.Metadata, error) {
	query := "SELECT " + columns + " FROM files"
	var args []any
	prefix := ""
	if directory != "" {
		prefix = directory + "/"
		query += " WHERE path >= ? AND path < ?"
		args = []any{prefix, directory + "0"}
	}
	query += " ORDER BY path"

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteError("listcontents", directory, err)
	}
	defer rows.Close()

	listing := []vfskit.Metadata{}
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, sqliteError("listcontents", directory, err)
		}
		if !recursive && strings.Contains(meta.Path[len(prefix):], "/") {
			continue
		}
		listing = append(listing, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteError("listcontents", directory, err)
	}
	return listing, nil
}

func (a *Adapter) GetMetadata(ctx context.Context, path string) (*vfskit.Metadata, error) {
	meta, err := scanMetadata(a.db.QueryRowContext(ctx, "SELECT "+columns+" FROM files WHERE path = ?", path))
	if err != nil {
		return nil, sqliteError("getmetadata", path, err)
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
	if !visibility.Valid() {
		return nil, &vfskit.PathError{Op: "setvisibility", Path: path, Err: vfskit.ErrInvalidArgument}
	}

	res, err := a.db.ExecContext(ctx, "UPDATE files SET visibility = ? WHERE path = ?", string(visibility), path)
	if err != nil {
		return nil, sqliteError("setvisibility", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &vfskit.PathError{Op: "setvisibility", Path: path, Err: vfskit.ErrFileNotFound}
	}
	return a.GetMetadata(ctx, path)
}

func sqliteError(op, path string, err error) error {
	var pathErr *vfskit.PathError
	if errors.As(err, &pathErr) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		err = vfskit.ErrFileNotFound
	}
	return &vfskit.PathError{Op: op, Path: path, Err: err}
}

var (
	_ vfskit.Adapter          = (*Adapter)(nil)
	_ vfskit.OverwriteCapable = (*Adapter)(nil)
	_ io.Closer               = (*Adapter)(nil)
)
