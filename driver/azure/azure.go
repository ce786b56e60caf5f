// Package azure provides an Azure Blob Storage adapter.
//
// Blob names are flat: CreateDir writes a "dir/" marker blob and other
// directories are inferred from name prefixes. Azure has no per-blob access
// control, so visibility is not supported.
package azure

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/gobeaver/vfskit"
)

const directoryContentType = "application/x-directory"

// copySASExpiry bounds the lifetime of the read SAS handed to the copy source.
const copySASExpiry = 15 * time.Minute

type blobProps struct {
	size        int64
	contentType string
	modified    time.Time
}

// store is the container surface the adapter needs. list calls fn with nil
// props for the virtual directories of a delimited listing.
type store interface {
	properties(ctx context.Context, name string) (blobProps, error)
	download(ctx context.Context, name string) (io.ReadCloser, error)
	upload(ctx context.Context, name string, r io.Reader, contentType string) (blobProps, error)
	copy(ctx context.Context, src, dst string) error
	delete(ctx context.Context, name string) error
	list(ctx context.Context, prefix string, delimited bool, fn func(name string, props *blobProps) error) error
}

type containerStore struct {
	client *container.Client
}

func (c containerStore) properties(ctx context.Context, name string) (blobProps, error) {
	resp, err := c.client.NewBlobClient(name).GetProperties(ctx, nil)
	if err != nil {
		return blobProps{}, err
	}
	return blobProps{
		size:        deref(resp.ContentLength),
		contentType: deref(resp.ContentType),
		modified:    deref(resp.LastModified),
	}, nil
}

func (c containerStore) download(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := c.client.NewBlobClient(name).DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c containerStore) upload(ctx context.Context, name string, r io.Reader, contentType string) (blobProps, error) {
	counter := &countingReader{r: r}
	resp, err := c.client.NewBlockBlobClient(name).UploadStream(ctx, counter, &blockblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return blobProps{}, err
	}

	props := blobProps{size: counter.n, contentType: contentType, modified: time.Now()}
	if resp.LastModified != nil {
		props.modified = *resp.LastModified
	}
	return props, nil
}

func (c containerStore) copy(ctx context.Context, src, dst string) error {
	srcURL, err := c.client.NewBlobClient(src).GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(copySASExpiry), nil)
	if err != nil {
		srcURL = c.client.NewBlobClient(src).URL()
	}
	_, err = c.client.NewBlobClient(dst).StartCopyFromURL(ctx, srcURL, nil)
	return err
}

func (c containerStore) delete(ctx context.Context, name string) error {
	_, err := c.client.NewBlobClient(name).Delete(ctx, nil)
	return err
}

func (c containerStore) list(ctx context.Context, prefix string, delimited bool, fn func(string, *blobProps) error) error {
	if !delimited {
		pager := c.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
		for pager.More() {
			resp, err := pager.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, item := range resp.Segment.BlobItems {
				if err := emitItem(item, fn); err != nil {
					return err
				}
			}
		}
		return nil
	}

	pager := c.client.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{Prefix: &prefix})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, p := range resp.Segment.BlobPrefixes {
			if p.Name == nil {
				continue
			}
			if err := fn(*p.Name, nil); err != nil {
				return err
			}
		}
		for _, item := range resp.Segment.BlobItems {
			if err := emitItem(item, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func emitItem(item *container.BlobItem, fn func(string, *blobProps) error) error {
	if item.Name == nil {
		return nil
	}
	props := &blobProps{}
	if p := item.Properties; p != nil {
		props.size = deref(p.ContentLength)
		props.contentType = deref(p.ContentType)
		props.modified = deref(p.LastModified)
	}
	return fn(*item.Name, props)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

// Adapter provides an Azure Blob Storage implementation of vfskit.Adapter
type Adapter struct {
	vfskit.NotSupportingVisibility

	store  store
	prefix string
}

// AdapterOption is a function that configures Azure Adapter
type AdapterOption func(*Adapter)

// WithPrefix confines the adapter to blob names below prefix.
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// New creates a new Azure Blob Storage adapter on a container client.
func New(client *container.Client, options ...AdapterOption) *Adapter {
	return newAdapter(containerStore{client: client}, options...)
}

func newAdapter(s store, options ...AdapterOption) *Adapter {
	adapter := &Adapter{store: s}
	for _, option := range options {
		option(adapter)
	}
	return adapter
}

// SupportsOverwrite reports that uploads replace existing blobs.
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

func (a *Adapter) relative(name string) string {
	return strings.TrimPrefix(name, a.prefix)
}

func (a *Adapter) Has(ctx context.Context, path string) (bool, error) {
	_, err := a.store.properties(ctx, a.key(path))
	if err == nil {
		return true, nil
	}
	if !isNotFound(err) {
		return false, mapAzureError("has", path, err)
	}
	return a.dirExists(ctx, path)
}

var errStop = errors.New("stop")

func (a *Adapter) dirExists(ctx context.Context, dirname string) (bool, error) {
	found := false
	err := a.store.list(ctx, a.dirKey(dirname), false, func(string, *blobProps) error {
		found = true
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, mapAzureError("has", dirname, err)
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
		return nil, mapAzureError("read", path, err)
	}
	obj.Stream = nil
	obj.Contents = contents
	obj.Size = vfskit.Ptr(int64(len(contents)))
	return obj, nil
}

func (a *Adapter) ReadStream(ctx context.Context, path string) (*vfskit.Object, error) {
	body, err := a.store.download(ctx, a.key(path))
	if err != nil {
		return nil, mapAzureError("readstream", path, err)
	}
	return &vfskit.Object{
		Metadata: vfskit.Metadata{Path: path, Type: vfskit.TypeFile},
		Stream:   body,
	}, nil
}

func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	mimetype := cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, contents))
	return a.upload(ctx, "write", path, bytes.NewReader(contents), mimetype)
}

func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if r == nil {
		return nil, &vfskit.PathError{Op: "writestream", Path: path, Err: vfskit.ErrInvalidArgument}
	}
	mimetype := cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, nil))
	return a.upload(ctx, "writestream", path, r, mimetype)
}

func (a *Adapter) Update(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return a.Write(ctx, path, contents, cfg)
}

func (a *Adapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return a.WriteStream(ctx, path, r, cfg)
}

func (a *Adapter) upload(ctx context.Context, op, path string, r io.Reader, mimetype string) (*vfskit.Metadata, error) {
	props, err := a.store.upload(ctx, a.key(path), r, mimetype)
	if err != nil {
		return nil, mapAzureError(op, path, err)
	}
	meta := propsMetadata(path, props)
	meta.Mimetype = vfskit.Ptr(mimetype)
	return &meta, nil
}

// Rename copies then deletes the source.
func (a *Adapter) Rename(ctx context.Context, path, newpath string) error {
	if err := a.Copy(ctx, path, newpath); err != nil {
		return err
	}
	return a.Delete(ctx, path)
}

func (a *Adapter) Copy(ctx context.Context, path, newpath string) error {
	if err := a.store.copy(ctx, a.key(path), a.key(newpath)); err != nil {
		return mapAzureError("copy", path, err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := a.store.delete(ctx, a.key(path)); err != nil {
		return mapAzureError("delete", path, err)
	}
	return nil
}

func (a *Adapter) DeleteDir(ctx context.Context, dirname string) error {
	if dirname == "" {
		return &vfskit.PathError{Op: "deletedir", Path: dirname, Err: vfskit.ErrRootViolation}
	}

	var names []string
	err := a.store.list(ctx, a.dirKey(dirname), false, func(name string, _ *blobProps) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		return mapAzureError("deletedir", dirname, err)
	}

	for _, name := range names {
		if err := a.store.delete(ctx, name); err != nil && !isNotFound(err) {
			return mapAzureError("deletedir", a.relative(name), err)
		}
	}
	return nil
}

func (a *Adapter) CreateDir(ctx context.Context, dirname string, _ *vfskit.Config) (*vfskit.Metadata, error) {
	if _, err := a.store.upload(ctx, a.dirKey(dirname), bytes.NewReader(nil), directoryContentType); err != nil {
		return nil, mapAzureError("createdir", dirname, err)
	}
	return &vfskit.Metadata{Path: dirname, Type: vfskit.TypeDir}, nil
}

func (a *Adapter) ListContents(ctx context.Context, directory string, recursive bool) ([]vfskit.Metadata, error) {
	listing := []vfskit.Metadata{}
	err := a.store.list(ctx, a.dirKey(directory), !recursive, func(name string, props *blobProps) error {
		rel := a.relative(name)
		if props == nil || strings.HasSuffix(rel, "/") {
			if dir := strings.TrimSuffix(rel, "/"); dir != directory {
				listing = append(listing, vfskit.Metadata{Path: dir, Type: vfskit.TypeDir})
			}
			return nil
		}
		listing = append(listing, propsMetadata(rel, *props))
		return nil
	})
	if err != nil {
		return nil, mapAzureError("listcontents", directory, err)
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
	props, err := a.store.properties(ctx, a.key(path))
	if err == nil {
		meta := propsMetadata(path, props)
		return &meta, nil
	}
	if !isNotFound(err) {
		return nil, mapAzureError("getmetadata", path, err)
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

func propsMetadata(path string, props blobProps) vfskit.Metadata {
	meta := vfskit.Metadata{Path: path, Type: vfskit.TypeFile, Size: vfskit.Ptr(props.size)}
	if props.contentType != "" {
		meta.Mimetype = vfskit.Ptr(props.contentType)
	}
	if !props.modified.IsZero() {
		meta.Timestamp = vfskit.Ptr(props.modified.Unix())
	}
	return meta
}

func isNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// mapAzureError maps Azure errors to vfskit errors
func mapAzureError(op, path string, err error) error {
	if isNotFound(err) {
		return &vfskit.PathError{Op: op, Path: path, Err: vfskit.ErrFileNotFound}
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusForbidden {
		return &vfskit.PathError{Op: op, Path: path, Err: vfskit.ErrPermission}
	}

	return &vfskit.PathError{Op: op, Path: path, Err: err}
}

var (
	_ vfskit.Adapter          = (*Adapter)(nil)
	_ vfskit.OverwriteCapable = (*Adapter)(nil)
)
