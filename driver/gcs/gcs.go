// Package gcs provides a Google Cloud Storage adapter.
//
// Like S3, GCS stores flat object names: CreateDir writes a "dir/" marker and
// other directories are inferred from name prefixes.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/gobeaver/vfskit"
)

// Predefined ACLs used for visibility.
const (
	aclPublic  = "publicRead"
	aclPrivate = "projectPrivate"
)

// store is the bucket surface the adapter needs.
type store interface {
	attrs(ctx context.Context, key string) (*storage.ObjectAttrs, error)
	newReader(ctx context.Context, key string) (io.ReadCloser, error)
	write(ctx context.Context, key string, r io.Reader, contentType, predefinedACL string) (*storage.ObjectAttrs, error)
	copy(ctx context.Context, src, dst, predefinedACL string) error
	delete(ctx context.Context, key string) error
	list(ctx context.Context, q *storage.Query, fn func(*storage.ObjectAttrs) error) error
	acl(ctx context.Context, key string) ([]storage.ACLRule, error)
	setACL(ctx context.Context, key, predefinedACL string) error
}

type bucketStore struct {
	bucket *storage.BucketHandle
}

func (b bucketStore) attrs(ctx context.Context, key string) (*storage.ObjectAttrs, error) {
	return b.bucket.Object(key).Attrs(ctx)
}

func (b bucketStore) newReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.bucket.Object(key).NewReader(ctx)
}

func (b bucketStore) write(ctx context.Context, key string, r io.Reader, contentType, predefinedACL string) (*storage.ObjectAttrs, error) {
	w := b.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.PredefinedACL = predefinedACL

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return w.Attrs(), nil
}

func (b bucketStore) copy(ctx context.Context, src, dst, predefinedACL string) error {
	copier := b.bucket.Object(dst).CopierFrom(b.bucket.Object(src))
	copier.PredefinedACL = predefinedACL
	_, err := copier.Run(ctx)
	return err
}

func (b bucketStore) delete(ctx context.Context, key string) error {
	return b.bucket.Object(key).Delete(ctx)
}

func (b bucketStore) list(ctx context.Context, q *storage.Query, fn func(*storage.ObjectAttrs) error) error {
	it := b.bucket.Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(attrs); err != nil {
			return err
		}
	}
}

func (b bucketStore) acl(ctx context.Context, key string) ([]storage.ACLRule, error) {
	return b.bucket.Object(key).ACL().List(ctx)
}

func (b bucketStore) setACL(ctx context.Context, key, predefinedACL string) error {
	_, err := b.bucket.Object(key).Update(ctx, storage.ObjectAttrsToUpdate{PredefinedACL: predefinedACL})
	return err
}

// Adapter provides a Google Cloud Storage implementation of vfskit.Adapter
type Adapter struct {
	store  store
	prefix string
	useACL bool
	owned  io.Closer
}

// AdapterOption is a function that configures the GCS Adapter
type AdapterOption func(*Adapter)

// WithPrefix confines the adapter to object names below prefix.
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// WithoutACL is for buckets with uniform bucket-level access, where object
// ACLs can not be read or set.
func WithoutACL() AdapterOption {
	return func(a *Adapter) {
		a.useACL = false
	}
}

// New creates a new GCS adapter
func New(client *storage.Client, bucket string, options ...AdapterOption) *Adapter {
	return newAdapter(bucketStore{bucket: client.Bucket(bucket)}, options...)
}

func newAdapter(s store, options ...AdapterOption) *Adapter {
	adapter := &Adapter{store: s, useACL: true}
	for _, option := range options {
		option(adapter)
	}
	return adapter
}

// Close releases the client when the adapter created it.
func (a *Adapter) Close() error {
	if a.owned == nil {
		return nil
	}
	return a.owned.Close()
}

// SupportsOverwrite reports that uploads replace existing objects.
func (a *Adapter) SupportsOverwrite() bool {
	return true
}

func (a *Adapter) key(p string) string {
	return a.prefix + p
}

func (a *Adapter) dirKey(dirname string) string {
	if dirname == "" {
		return a.prefix
	}
	return a.prefix + dirname + "/"
}

func (a *Adapter) relative(key string) string {
	return strings.TrimPrefix(key, a.prefix)
}

func (a *Adapter) predefinedACL(v vfskit.Visibility) string {
	if !a.useACL {
		return ""
	}
	if v == vfskit.Private {
		return aclPrivate
	}
	return aclPublic
}

func (a *Adapter) Has(ctx context.Context, path string) (bool, error) {
	_, err := a.store.attrs(ctx, a.key(path))
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return false, mapGCSError("has", path, err)
	}
	return a.dirExists(ctx, path)
}

var errStop = errors.New("stop")

func (a *Adapter) dirExists(ctx context.Context, dirname string) (bool, error) {
	found := false
	err := a.store.list(ctx, &storage.Query{Prefix: a.dirKey(dirname)}, func(*storage.ObjectAttrs) error {
		found = true
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, mapGCSError("has", dirname, err)
	}
	return found, nil
}

func (a *Adapter) Read(ctx context.Context, path string) (*vfskit.Object, error) {
	obj, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer obj.Stream.Close()

	contents, err := io.ReadAll(obj.Stream)
	if err != nil {
		return nil, mapGCSError("read", path, err)
	}
	obj.Stream = nil
	obj.Contents = contents
	obj.Size = vfskit.Ptr(int64(len(contents)))
	return obj, nil
}

func (a *Adapter) ReadStream(ctx context.Context, path string) (*vfskit.Object, error) {
	r, err := a.store.newReader(ctx, a.key(path))
	if err != nil {
		return nil, mapGCSError("readstream", path, err)
	}
	return &vfskit.Object{
		Metadata: vfskit.Metadata{Path: path, Type: vfskit.TypeFile},
		Stream:   r,
	}, nil
}

func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	mimetype := cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, contents))
	return a.upload(ctx, "write", path, bytes.NewReader(contents), mimetype, cfg)
}

func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if r == nil {
		return nil, &vfskit.PathError{Op: "writestream", Path: path, Err: vfskit.ErrInvalidArgument}
	}
	mimetype := cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, nil))
	return a.upload(ctx, "writestream", path, r, mimetype, cfg)
}

func (a *Adapter) Update(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return a.Write(ctx, path, contents, cfg)
}

func (a *Adapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return a.WriteStream(ctx, path, r, cfg)
}

func (a *Adapter) upload(ctx context.Context, op, path string, r io.Reader, mimetype string, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	visibility := vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public)))

	attrs, err := a.store.write(ctx, a.key(path), r, mimetype, a.predefinedACL(visibility))
	if err != nil {
		return nil, mapGCSError(op, path, err)
	}

	meta := attrsMetadata(path, attrs)
	meta.Mimetype = vfskit.Ptr(mimetype)
	if a.useACL {
		meta.Visibility = &visibility
	}
	return &meta, nil
}

// Rename copies then deletes the source.
func (a *Adapter) Rename(ctx context.Context, path, newpath string) error {
	if err := a.Copy(ctx, path, newpath); err != nil {
		return err
	}
	return a.Delete(ctx, path)
}

// Copy rewrites the object server side, keeping its visibility.
func (a *Adapter) Copy(ctx context.Context, path, newpath string) error {
	var acl string
	if a.useACL {
		meta, err := a.GetVisibility(ctx, path)
		if err != nil {
			return err
		}
		acl = a.predefinedACL(*meta.Visibility)
	}

	if err := a.store.copy(ctx, a.key(path), a.key(newpath), acl); err != nil {
		return mapGCSError("copy", path, err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := a.store.delete(ctx, a.key(path)); err != nil {
		return mapGCSError("delete", path, err)
	}
	return nil
}

func (a *Adapter) DeleteDir(ctx context.Context, dirname string) error {
	if dirname == "" {
		return &vfskit.PathError{Op: "deletedir", Path: dirname, Err: vfskit.ErrRootViolation}
	}

	var keys []string
	err := a.store.list(ctx, &storage.Query{Prefix: a.dirKey(dirname)}, func(attrs *storage.ObjectAttrs) error {
		keys = append(keys, attrs.Name)
		return nil
	})
	if err != nil {
		return mapGCSError("deletedir", dirname, err)
	}

	for _, key := range keys {
		if err := a.store.delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return mapGCSError("deletedir", a.relative(key), err)
		}
	}
	return nil
}

func (a *Adapter) CreateDir(ctx context.Context, dirname string, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	visibility := vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public)))
	_, err := a.store.write(ctx, a.dirKey(dirname), bytes.NewReader(nil), "application/x-directory", a.predefinedACL(visibility))
	if err != nil {
		return nil, mapGCSError("createdir", dirname, err)
	}
	return &vfskit.Metadata{Path: dirname, Type: vfskit.TypeDir}, nil
}

func (a *Adapter) ListContents(ctx context.Context, directory string, recursive bool) ([]vfskit.Metadata, error) {
	query := &storage.Query{Prefix: a.dirKey(directory)}
	if !recursive {
		query.Delimiter = "/"
	}

	listing := []vfskit.Metadata{}
	err := a.store.list(ctx, query, func(attrs *storage.ObjectAttrs) error {
		if attrs.Name == "" && attrs.Prefix != "" {
			dir := strings.TrimSuffix(a.relative(attrs.Prefix), "/")
			listing = append(listing, vfskit.Metadata{Path: dir, Type: vfskit.TypeDir})
			return nil
		}

		rel := a.relative(attrs.Name)
		if strings.HasSuffix(rel, "/") {
			if dir := strings.TrimSuffix(rel, "/"); dir != directory {
				listing = append(listing, vfskit.Metadata{Path: dir, Type: vfskit.TypeDir})
			}
			return nil
		}
		listing = append(listing, attrsMetadata(rel, attrs))
		return nil
	})
	if err != nil {
		return nil, mapGCSError("listcontents", directory, err)
	}

	if !recursive {
		return listing, nil
	}

	below := make([]vfskit.Metadata, 0, len(listing))
	for _, entry := range vfskit.EmulateDirectories(listing) {
		if directory == "" || strings.HasPrefix(entry.Path, directory+"/") {
			below = append(below, entry)
		}
	}
	return below, nil
}

func (a *Adapter) GetMetadata(ctx context.Context, path string) (*vfskit.Metadata, error) {
	attrs, err := a.store.attrs(ctx, a.key(path))
	if err == nil {
		meta := attrsMetadata(path, attrs)
		return &meta, nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return nil, mapGCSError("getmetadata", path, err)
	}

	isDir, err := a.dirExists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, &vfskit.PathError{Op: "getmetadata", Path: path, Err: vfskit.ErrFileNotFound}
	}
	return &vfskit.Metadata{Path: path, Type: vfskit.TypeDir}, nil
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
	if !a.useACL {
		return nil, &vfskit.PathError{Op: "getvisibility", Path: path, Err: vfskit.ErrNotSupported}
	}

	rules, err := a.store.acl(ctx, a.key(path))
	if err != nil {
		return nil, mapGCSError("getvisibility", path, err)
	}

	visibility := vfskit.Private
	for _, rule := range rules {
		if rule.Entity == storage.AllUsers && (rule.Role == storage.RoleReader || rule.Role == storage.RoleOwner) {
			visibility = vfskit.Public
			break
		}
	}
	return &vfskit.Metadata{Path: path, Visibility: &visibility}, nil
}

func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility vfskit.Visibility) (*vfskit.Metadata, error) {
	if !a.useACL {
		return nil, &vfskit.PathError{Op: "setvisibility", Path: path, Err: vfskit.ErrNotSupported}
	}
	if err := a.store.setACL(ctx, a.key(path), a.predefinedACL(visibility)); err != nil {
		return nil, mapGCSError("setvisibility", path, err)
	}
	return &vfskit.Metadata{Path: path, Visibility: &visibility}, nil
}

func attrsMetadata(path string, attrs *storage.ObjectAttrs) vfskit.Metadata {
	meta := vfskit.Metadata{Path: path, Type: vfskit.TypeFile}
	if attrs == nil {
		return meta
	}
	meta.Size = vfskit.Ptr(attrs.Size)
	if attrs.ContentType != "" {
		meta.Mimetype = vfskit.Ptr(attrs.ContentType)
	}
	if !attrs.Updated.IsZero() {
		meta.Timestamp = vfskit.Ptr(attrs.Updated.Unix())
	}
	return meta
}

// mapGCSError maps GCS errors to vfskit errors
func mapGCSError(op, path string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		err = fmt.Errorf("%w: %v", vfskit.ErrFileNotFound, err)
	}
	return &vfskit.PathError{Op: op, Path: path, Err: err}
}

var (
	_ vfskit.Adapter          = (*Adapter)(nil)
	_ vfskit.OverwriteCapable = (*Adapter)(nil)
	_ io.Closer               = (*Adapter)(nil)
)
