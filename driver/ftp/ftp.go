// Package ftp provides FTP adapters built on github.com/jlaffaye/ftp.
//
// Two drivers are registered: "ftp" for standard servers and "ftpd" for
// servers (Synology and other ftpd builds) whose MLST support is unreliable
// and whose listing failures should read as empty directories.
package ftp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	pathpkg "path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/gobeaver/vfskit"
)

// Config configures an FTP adapter.
type Config struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Root        string        `mapstructure:"root"`
	Timeout     time.Duration `mapstructure:"timeout"`
	TLS         bool          `mapstructure:"ssl"`
	DisableEPSV bool          `mapstructure:"disable_epsv"`

	// Ftpd selects the ftpd flavour: metadata comes from the parent listing
	// instead of MLST and listing failures yield empty listings.
	Ftpd bool `mapstructure:"ftpd"`
}

// client is the subset of *ftp.ServerConn the adapter uses.
type client interface {
	List(path string) ([]*ftp.Entry, error)
	GetEntry(path string) (*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	Rename(from, to string) error
	Delete(path string) error
	RemoveDirRecur(path string) error
	MakeDir(path string) error
	Quit() error
}

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	resp, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Adapter talks to one FTP server over a single control connection, opened
// on first use. Calls are serialized and wait for the connection only as
// long as their context allows. ReadStream spools the download to a
// temporary file so the connection is free again once it returns.
type Adapter struct {
	vfskit.NotSupportingVisibility

	cfg  Config
	root string
	dial func(ctx context.Context) (client, error)

	slot chan struct{}
	conn client
}

// New creates an FTP adapter. No connection is made until the first call.
func New(cfg Config) (*Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: ftp host is required", vfskit.ErrInvalidConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Username == "" {
		cfg.Username = "anonymous"
	}

	a := newAdapter(cfg, nil)
	a.dial = a.connect
	return a, nil
}

func newAdapter(cfg Config, dial func(ctx context.Context) (client, error)) *Adapter {
	root := "/" + strings.Trim(cfg.Root, "/")
	return &Adapter{cfg: cfg, root: root, dial: dial, slot: make(chan struct{}, 1)}
}

func (a *Adapter) connect(ctx context.Context) (client, error) {
	opts := []ftp.DialOption{
		ftp.DialWithTimeout(a.cfg.Timeout),
		ftp.DialWithContext(ctx),
		ftp.DialWithDisabledEPSV(a.cfg.DisableEPSV),
	}
	if a.cfg.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: a.cfg.Host}))
	}

	addr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", addr, err)
	}
	if err := conn.Login(a.cfg.Username, a.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("could not log in to %s as %s: %w", addr, a.cfg.Username, err)
	}
	return serverConn{conn}, nil
}

// acquire takes the connection, dialing it if needed. Callers must call
// a.release when done.
func (a *Adapter) acquire(ctx context.Context) (client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case a.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if a.conn == nil {
		conn, err := a.dial(ctx)
		if err != nil {
			a.release()
			return nil, err
		}
		a.conn = conn
	}
	return a.conn, nil
}

func (a *Adapter) release() {
	<-a.slot
}

// Close ends the FTP session.
func (a *Adapter) Close() error {
	a.slot <- struct{}{}
	defer a.release()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Quit()
	a.conn = nil
	return err
}

// SupportsOverwrite reports that STOR replaces existing files.
func (a *Adapter) SupportsOverwrite() bool {
	return true
}

func (a *Adapter) remote(p string) string {
	return pathpkg.Join(a.root, p)
}

func (a *Adapter) Has(ctx context.Context, path string) (bool, error) {
	_, err := a.GetMetadata(ctx, path)
	if vfskit.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (a *Adapter) Read(ctx context.Context, path string) (*vfskit.Object, error) {
	conn, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer a.release()

	r, err := conn.Retr(a.remote(path))
	if err != nil {
		return nil, ftpError("read", path, err)
	}
	contents, err := io.ReadAll(r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, &vfskit.PathError{Op: "read", Path: path, Err: err}
	}

	return &vfskit.Object{
		Metadata: vfskit.Metadata{Path: path, Type: vfskit.TypeFile, Size: vfskit.Ptr(int64(len(contents)))},
		Contents: contents,
	}, nil
}

// ReadStream downloads into a temporary file and streams from there. The
// file is removed when the stream is closed.
func (a *Adapter) ReadStream(ctx context.Context, path string) (*vfskit.Object, error) {
	conn, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer a.release()

	r, err := conn.Retr(a.remote(path))
	if err != nil {
		return nil, ftpError("readstream", path, err)
	}
	stream, size, err := spool(r)
	if err != nil {
		return nil, &vfskit.PathError{Op: "readstream", Path: path, Err: err}
	}

	return &vfskit.Object{
		Metadata: vfskit.Metadata{Path: path, Type: vfskit.TypeFile, Size: vfskit.Ptr(size)},
		Stream:   stream,
	}, nil
}

func spool(r io.ReadCloser) (*tempStream, int64, error) {
	f, err := os.CreateTemp("", "vfskit-ftp-*")
	if err != nil {
		_ = r.Close()
		return nil, 0, err
	}

	n, err := io.Copy(f, r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, 0, err
	}
	return &tempStream{File: f}, n, nil
}

// tempStream deletes its backing file on Close.
type tempStream struct {
	*os.File
	once sync.Once
	err  error
}

func (s *tempStream) Close() error {
	s.once.Do(func() {
		s.err = s.File.Close()
		if err := os.Remove(s.File.Name()); s.err == nil {
			s.err = err
		}
	})
	return s.err
}

func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if err := a.store(ctx, "write", path, bytes.NewReader(contents)); err != nil {
		return nil, err
	}
	return &vfskit.Metadata{
		Path:     path,
		Type:     vfskit.TypeFile,
		Size:     vfskit.Ptr(int64(len(contents))),
		Mimetype: vfskit.Ptr(cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, contents))),
	}, nil
}

func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, _ *vfskit.Config) (*vfskit.Metadata, error) {
	if r == nil {
		return nil, &vfskit.PathError{Op: "writestream", Path: path, Err: vfskit.ErrInvalidArgument}
	}
	if err := a.store(ctx, "writestream", path, r); err != nil {
		return nil, err
	}
	return &vfskit.Metadata{Path: path, Type: vfskit.TypeFile}, nil
}

func (a *Adapter) Update(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return a.Write(ctx, path, contents, cfg)
}

func (a *Adapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return a.WriteStream(ctx, path, r, cfg)
}

func (a *Adapter) store(ctx context.Context, op, path string, r io.Reader) error {
	conn, err := a.acquire(ctx)
	if err != nil {
		return err
	}
	defer a.release()

	a.ensureDirectory(conn, vfskit.Dirname(path))
	if err := conn.Stor(a.remote(path), r); err != nil {
		return ftpError(op, path, err)
	}
	return nil
}

// ensureDirectory creates dirname segment by segment. Failures are ignored;
// the following command reports them.
func (a *Adapter) ensureDirectory(conn client, dirname string) {
	if dirname == "" {
		return
	}
	current := a.root
	for _, segment := range strings.Split(dirname, "/") {
		current = pathpkg.Join(current, segment)
		_ = conn.MakeDir(current)
	}
}

func (a *Adapter) Rename(ctx context.Context, path, newpath string) error {
	conn, err := a.acquire(ctx)
	if err != nil {
		return err
	}
	defer a.release()

	a.ensureDirectory(conn, vfskit.Dirname(newpath))
	if err := conn.Rename(a.remote(path), a.remote(newpath)); err != nil {
		return ftpError("rename", path, err)
	}
	return nil
}

// Copy downloads and uploads again; FTP has no server side copy.
func (a *Adapter) Copy(ctx context.Context, path, newpath string) error {
	obj, err := a.Read(ctx, path)
	if err != nil {
		return err
	}
	_, err = a.Write(ctx, newpath, obj.Contents, nil)
	return err
}

func (a *Adapter) Delete(ctx context.Context, path string) error {
	conn, err := a.acquire(ctx)
	if err != nil {
		return err
	}
	defer a.release()

	if err := conn.Delete(a.remote(path)); err != nil {
		return ftpError("delete", path, err)
	}
	return nil
}

func (a *Adapter) DeleteDir(ctx context.Context, dirname string) error {
	if dirname == "" {
		return &vfskit.PathError{Op: "deletedir", Path: dirname, Err: vfskit.ErrRootViolation}
	}
	conn, err := a.acquire(ctx)
	if err != nil {
		return err
	}
	defer a.release()

	if err := conn.RemoveDirRecur(a.remote(dirname)); err != nil {
		return ftpError("deletedir", dirname, err)
	}
	return nil
}

func (a *Adapter) CreateDir(ctx context.Context, dirname string, _ *vfskit.Config) (*vfskit.Metadata, error) {
	conn, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer a.release()

	a.ensureDirectory(conn, dirname)
	return &vfskit.Metadata{Path: dirname, Type: vfskit.TypeDir}, nil
}

func (a *Adapter) ListContents(ctx context.Context, directory string, recursive bool) ([]vfskit.Metadata, error) {
	conn, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer a.release()

	listing := []vfskit.Metadata{}
	pending := []string{directory}
	for len(pending) > 0 {
		dir := pending[0]
		pending = pending[1:]

		entries, err := conn.List(a.remote(dir))
		if err != nil {
			if a.cfg.Ftpd || dir != directory {
				continue
			}
			return nil, ftpError("listcontents", directory, err)
		}

		for _, entry := range entries {
			if entry.Name == "." || entry.Name == ".." || entry.Type == ftp.EntryTypeLink {
				continue
			}
			p := pathpkg.Join(dir, pathpkg.Base(entry.Name))
			listing = append(listing, entryMetadata(p, entry))
			if recursive && entry.Type == ftp.EntryTypeFolder {
				pending = append(pending, p)
			}
		}
	}
	return listing, nil
}

// GetMetadata looks the entry up with MLST, falling back to the parent
// listing. The ftpd flavour only uses the listing.
func (a *Adapter) GetMetadata(ctx context.Context, path string) (*vfskit.Metadata, error) {
	if path == "" {
		return &vfskit.Metadata{Path: "", Type: vfskit.TypeDir}, nil
	}

	conn, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer a.release()

	if !a.cfg.Ftpd {
		if entry, err := conn.GetEntry(a.remote(path)); err == nil {
			meta := entryMetadata(path, entry)
			return &meta, nil
		}
	}

	entries, err := conn.List(a.remote(vfskit.Dirname(path)))
	if err != nil {
		return nil, ftpError("getmetadata", path, err)
	}
	name := vfskit.Basename(path)
	for _, entry := range entries {
		if pathpkg.Base(entry.Name) == name {
			meta := entryMetadata(path, entry)
			return &meta, nil
		}
	}
	return nil, &vfskit.PathError{Op: "getmetadata", Path: path, Err: vfskit.ErrFileNotFound}
}

func (a *Adapter) GetSize(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

func (a *Adapter) GetTimestamp(ctx context.Context, path string) (*vfskit.Metadata, error) {
	return a.GetMetadata(ctx, path)
}

// GetMimetype guesses from the file name only; FTP offers no content type
// and downloading the file to sniff it is too costly.
func (a *Adapter) GetMimetype(ctx context.Context, path string) (*vfskit.Metadata, error) {
	meta, err := a.GetMetadata(ctx, path)
	if err != nil {
		return nil, err
	}
	meta.Mimetype = vfskit.Ptr(vfskit.GuessMimeType(path, nil))
	return meta, nil
}

func entryMetadata(path string, entry *ftp.Entry) vfskit.Metadata {
	meta := vfskit.Metadata{Path: path, Type: vfskit.TypeFile}
	if entry.Type == ftp.EntryTypeFolder {
		meta.Type = vfskit.TypeDir
	} else {
		meta.Size = vfskit.Ptr(int64(entry.Size))
	}
	if !entry.Time.IsZero() {
		meta.Timestamp = vfskit.Ptr(entry.Time.Unix())
	}
	return meta
}

// ftpError maps 550 replies to ErrFileNotFound.
func ftpError(op, path string, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable {
		return &vfskit.PathError{Op: op, Path: path, Err: fmt.Errorf("%w: %s", vfskit.ErrFileNotFound, protoErr.Msg)}
	}
	return &vfskit.PathError{Op: op, Path: path, Err: err}
}

var (
	_ vfskit.Adapter          = (*Adapter)(nil)
	_ vfskit.OverwriteCapable = (*Adapter)(nil)
	_ io.Closer               = (*Adapter)(nil)
)
