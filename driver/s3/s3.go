// Package s3 provides an Amazon S3 (and S3 compatible) adapter built on the
// AWS SDK for Go v2.
//
// S3 has no directories. CreateDir writes a zero byte "dir/" marker object
// and directories are otherwise inferred from key prefixes. Visibility maps
// to the public-read and private canned ACLs.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gobeaver/vfskit"
)

const allUsersURI = "http://acs.amazonaws.com/groups/global/AllUsers"

// deleteBatchSize is the DeleteObjects limit.
const deleteBatchSize = 1000

// API is the subset of *s3.Client the adapter uses.
type API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	GetObjectAcl(ctx context.Context, params *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error)
	PutObjectAcl(ctx context.Context, params *s3.PutObjectAclInput, optFns ...func(*s3.Options)) (*s3.PutObjectAclOutput, error)
}

// Adapter provides an S3 implementation of vfskit.Adapter
type Adapter struct {
	client API
	bucket string
	prefix string
	useACL bool
}

// AdapterOption is a function that configures the Adapter
type AdapterOption func(*Adapter)

// WithPrefix confines the adapter to keys below prefix.
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// WithoutACL stops the adapter from sending ACLs, for buckets with object
// ownership enforced. Visibility operations then fail with
// vfskit.ErrNotSupported.
func WithoutACL() AdapterOption {
	return func(a *Adapter) {
		a.useACL = false
	}
}

// New creates a new S3 adapter
func New(client API, bucket string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client: client,
		bucket: bucket,
		useACL: true,
	}

	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// SupportsOverwrite reports that PutObject replaces existing objects.
func (a *Adapter) SupportsOverwrite() bool {
	return true
}

func (a *Adapter) key(p string) string {
	return a.prefix + p
}

// dirKey returns the key prefix of the objects inside dirname.
func (a *Adapter) dirKey(dirname string) string {
	if dirname == "" {
		return a.prefix
	}
	return a.prefix + dirname + "/"
}

func (a *Adapter) relative(key string) string {
	return strings.TrimPrefix(key, a.prefix)
}

func (a *Adapter) Has(ctx context.Context, path string) (bool, error) {
	_, err := a.head(ctx, path)
	if err == nil {
		return true, nil
	}
	if !isNotFound(err) {
		return false, mapS3Error("has", path, err)
	}
	return a.dirExists(ctx, path)
}

func (a *Adapter) head(ctx context.Context, path string) (*s3.HeadObjectOutput, error) {
	return a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
	})
}

func (a *Adapter) dirExists(ctx context.Context, dirname string) (bool, error) {
	resp, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(a.dirKey(dirname)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, mapS3Error("has", dirname, err)
	}
	return len(resp.Contents) > 0 || len(resp.CommonPrefixes) > 0, nil
}

func (a *Adapter) Read(ctx context.Context, path string) (*vfskit.Object, error) {
	obj, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer obj.Stream.Close()

	contents, err := io.ReadAll(obj.Stream)
	if err != nil {
		return nil, mapS3Error("read", path, err)
	}
	obj.Stream = nil
	obj.Contents = contents
	obj.Size = vfskit.Ptr(int64(len(contents)))
	return obj, nil
}

func (a *Adapter) ReadStream(ctx context.Context, path string) (*vfskit.Object, error) {
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
	})
	if err != nil {
		return nil, mapS3Error("readstream", path, err)
	}

	meta := vfskit.Metadata{Path: path, Type: vfskit.TypeFile, Size: resp.ContentLength}
	if resp.ContentType != nil {
		meta.Mimetype = resp.ContentType
	}
	if resp.LastModified != nil {
		meta.Timestamp = vfskit.Ptr(resp.LastModified.Unix())
	}
	return &vfskit.Object{Metadata: meta, Stream: resp.Body}, nil
}

func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	mimetype := cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, contents))
	return a.put(ctx, "write", path, bytes.NewReader(contents), int64(len(contents)), mimetype, cfg)
}

// WriteStream uploads seekable readers directly and buffers anything else,
// since PutObject needs a content length.
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if r == nil {
		return nil, &vfskit.PathError{Op: "writestream", Path: path, Err: vfskit.ErrInvalidArgument}
	}

	var body io.Reader
	var contentLength int64 = -1

	switch rr := r.(type) {
	case *bytes.Reader:
		contentLength = int64(rr.Len())
		body = rr
	case *strings.Reader:
		contentLength = int64(rr.Len())
		body = rr
	case *os.File:
		if info, err := rr.Stat(); err == nil {
			pos, _ := rr.Seek(0, io.SeekCurrent)
			contentLength = info.Size() - pos
		}
		body = rr
	case io.ReadSeeker:
		pos, err := rr.Seek(0, io.SeekCurrent)
		if err == nil {
			if end, err := rr.Seek(0, io.SeekEnd); err == nil {
				contentLength = end - pos
				_, _ = rr.Seek(pos, io.SeekStart)
			}
		}
		body = rr
	default:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, &vfskit.PathError{Op: "writestream", Path: path, Err: err}
		}
		return a.Write(ctx, path, data, cfg)
	}

	mimetype := cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, nil))
	return a.put(ctx, "writestream", path, body, contentLength, mimetype, cfg)
}

func (a *Adapter) Update(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return a.Write(ctx, path, contents, cfg)
}

func (a *Adapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return a.WriteStream(ctx, path, r, cfg)
}

func (a *Adapter) put(ctx context.Context, op, path string, body io.Reader, contentLength int64, mimetype string, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	visibility := vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public)))

	input := &s3.PutObjectInput{
		Bucket:            aws.String(a.bucket),
		Key:               aws.String(a.key(path)),
		Body:              body,
		ContentType:       aws.String(mimetype),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if contentLength >= 0 {
		input.ContentLength = aws.Int64(contentLength)
	}
	if a.useACL {
		input.ACL = cannedACL(visibility)
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return nil, mapS3Error(op, path, err)
	}

	meta := &vfskit.Metadata{Path: path, Type: vfskit.TypeFile, Mimetype: aws.String(mimetype)}
	if contentLength >= 0 {
		meta.Size = aws.Int64(contentLength)
	}
	if a.useACL {
		meta.Visibility = &visibility
	}
	return meta, nil
}

// Rename is a copy followed by a delete; S3 can not move objects.
func (a *Adapter) Rename(ctx context.Context, path, newpath string) error {
	if err := a.Copy(ctx, path, newpath); err != nil {
		return err
	}
	return a.Delete(ctx, path)
}

// Copy uses the server side CopyObject and keeps the source visibility.
func (a *Adapter) Copy(ctx context.Context, path, newpath string) error {
	input := &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		CopySource: aws.String(copySource(a.bucket, a.key(path))),
		Key:        aws.String(a.key(newpath)),
	}
	if a.useACL {
		meta, err := a.GetVisibility(ctx, path)
		if err != nil {
			return err
		}
		input.ACL = cannedACL(*meta.Visibility)
	}

	if _, err := a.client.CopyObject(ctx, input); err != nil {
		return mapS3Error("copy", path, err)
	}
	return nil
}

func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func (a *Adapter) Delete(ctx context.Context, path string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
	})
	if err != nil {
		return mapS3Error("delete", path, err)
	}
	return nil
}

// DeleteDir removes every object below dirname, the marker included.
func (a *Adapter) DeleteDir(ctx context.Context, dirname string) error {
	if dirname == "" {
		return &vfskit.PathError{Op: "deletedir", Path: dirname, Err: vfskit.ErrRootViolation}
	}

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.dirKey(dirname)),
	})

	var batch []types.ObjectIdentifier
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		batch = nil
		return err
	}

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return mapS3Error("deletedir", dirname, err)
		}
		for _, obj := range page.Contents {
			batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			if len(batch) == deleteBatchSize {
				if err := flush(); err != nil {
					return mapS3Error("deletedir", dirname, err)
				}
			}
		}
	}
	if err := flush(); err != nil {
		return mapS3Error("deletedir", dirname, err)
	}
	return nil
}

func (a *Adapter) CreateDir(ctx context.Context, dirname string, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.dirKey(dirname)),
		Body:        bytes.NewReader(nil),
		ContentType: aws.String("application/x-directory"),
	}
	if a.useACL {
		input.ACL = cannedACL(vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public))))
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return nil, mapS3Error("createdir", dirname, err)
	}
	return &vfskit.Metadata{Path: dirname, Type: vfskit.TypeDir}, nil
}

func (a *Adapter) ListContents(ctx context.Context, directory string, recursive bool) ([]vfskit.Metadata, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.dirKey(directory)),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	listing := []vfskit.Metadata{}
	paginator := s3.NewListObjectsV2Paginator(a.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("listcontents", directory, err)
		}

		for _, p := range page.CommonPrefixes {
			dir := strings.TrimSuffix(a.relative(aws.ToString(p.Prefix)), "/")
			listing = append(listing, vfskit.Metadata{Path: dir, Type: vfskit.TypeDir})
		}
		for _, obj := range page.Contents {
			rel := a.relative(aws.ToString(obj.Key))
			if strings.HasSuffix(rel, "/") {
				dir := strings.TrimSuffix(rel, "/")
				if dir != directory {
					listing = append(listing, vfskit.Metadata{Path: dir, Type: vfskit.TypeDir})
				}
				continue
			}
			listing = append(listing, objectMetadata(rel, obj))
		}
	}

	if !recursive {
		return listing, nil
	}

	below := listing[:0]
	for _, entry := range vfskit.EmulateDirectories(listing) {
		if directory == "" || strings.HasPrefix(entry.Path, directory+"/") {
			below = append(below, entry)
		}
	}
	return below, nil
}

func objectMetadata(path string, obj types.Object) vfskit.Metadata {
	meta := vfskit.Metadata{Path: path, Type: vfskit.TypeFile, Size: obj.Size}
	if obj.LastModified != nil {
		meta.Timestamp = vfskit.Ptr(obj.LastModified.Unix())
	}
	return meta
}

// GetMetadata falls back to a directory record when only objects below
// path exist.
func (a *Adapter) GetMetadata(ctx context.Context, path string) (*vfskit.Metadata, error) {
	resp, err := a.head(ctx, path)
	if err == nil {
		meta := &vfskit.Metadata{
			Path:     path,
			Type:     vfskit.TypeFile,
			Size:     resp.ContentLength,
			Mimetype: resp.ContentType,
		}
		if resp.LastModified != nil {
			meta.Timestamp = vfskit.Ptr(resp.LastModified.Unix())
		}
		return meta, nil
	}
	if !isNotFound(err) {
		return nil, mapS3Error("getmetadata", path, err)
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

// GetVisibility reports public when the AllUsers group may read the object.
func (a *Adapter) GetVisibility(ctx context.Context, path string) (*vfskit.Metadata, error) {
	if !a.useACL {
		return nil, &vfskit.PathError{Op: "getvisibility", Path: path, Err: vfskit.ErrNotSupported}
	}

	resp, err := a.client.GetObjectAcl(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
	})
	if err != nil {
		return nil, mapS3Error("getvisibility", path, err)
	}

	visibility := vfskit.Private
	for _, grant := range resp.Grants {
		if grant.Grantee == nil || aws.ToString(grant.Grantee.URI) != allUsersURI {
			continue
		}
		if grant.Permission == types.PermissionRead || grant.Permission == types.PermissionFullControl {
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

	_, err := a.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(path)),
		ACL:    cannedACL(visibility),
	})
	if err != nil {
		return nil, mapS3Error("setvisibility", path, err)
	}
	return &vfskit.Metadata{Path: path, Visibility: &visibility}, nil
}

func cannedACL(v vfskit.Visibility) types.ObjectCannedACL {
	if v == vfskit.Private {
		return types.ObjectCannedACLPrivate
	}
	return types.ObjectCannedACLPublicRead
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &notFound)
}

// mapS3Error maps S3 errors to vfskit errors
func mapS3Error(op, path string, err error) error {
	if isNotFound(err) {
		err = fmt.Errorf("%w: %v", vfskit.ErrFileNotFound, err)
	}
	return &vfskit.PathError{Op: op, Path: path, Err: err}
}

var (
	_ vfskit.Adapter          = (*Adapter)(nil)
	_ vfskit.OverwriteCapable = (*Adapter)(nil)
	_ API                     = (*s3.Client)(nil)
)
