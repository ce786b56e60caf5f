// Package sftp provides an adapter for SSH file transfer servers built on
// github.com/pkg/sftp.
package sftp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	pathpkg "path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/gobeaver/vfskit"
)

// Config holds SFTP connection configuration
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// PrivateKey is either a PEM encoded key or the path of a key file.
	PrivateKey string `mapstructure:"private_key"`
	Passphrase string `mapstructure:"passphrase"`

	// Host key verification. KnownHosts wins over HostFingerprint; with
	// neither set any host key is accepted.
	KnownHosts      string `mapstructure:"known_hosts"`
	HostFingerprint string `mapstructure:"host_fingerprint"`

	Root    string        `mapstructure:"root"`
	Timeout time.Duration `mapstructure:"timeout"`
}

const (
	permFilePublic  os.FileMode = 0o644
	permFilePrivate os.FileMode = 0o600
	permDirPublic   os.FileMode = 0o755
	permDirPrivate  os.FileMode = 0o700
)

// Adapter provides an SFTP implementation of vfskit.Adapter
type Adapter struct {
	client *sftp.Client
	conn   io.Closer
	root   string
}

// New connects to the server and returns an adapter rooted at cfg.Root.
func New(cfg Config) (*Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: sftp host is required", vfskit.ErrInvalidConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	sshConfig, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH: %w", err)
	}

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		_ = sshConn.Close()
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	return newAdapter(client, sshConn, cfg.Root), nil
}

func newAdapter(client *sftp.Client, conn io.Closer, root string) *Adapter {
	return &Adapter{
		client: client,
		conn:   conn,
		root:   "/" + strings.Trim(root, "/"),
	}
}

func (cfg Config) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := cfg.authMethods()
	if err != nil {
		return nil, err
	}
	hostKey, err := cfg.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}, nil
}

func (cfg Config) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.PrivateKey != "" {
		pemBytes := []byte(cfg.PrivateKey)
		if !strings.Contains(cfg.PrivateKey, "PRIVATE KEY") {
			data, err := os.ReadFile(cfg.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("failed to read private key: %w", err)
			}
			pemBytes = data
		}

		var signer ssh.Signer
		var err error
		if cfg.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(cfg.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pemBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no sftp authentication method provided", vfskit.ErrInvalidConfig)
	}
	return methods, nil
}

func (cfg Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch {
	case cfg.KnownHosts != "":
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		return cb, nil
	case cfg.HostFingerprint != "":
		want := cfg.HostFingerprint
		return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
			if ssh.FingerprintSHA256(key) == want || ssh.FingerprintLegacyMD5(key) == want {
				return nil
			}
			return fmt.Errorf("host key fingerprint mismatch for %s", hostname)
		}, nil
	default:
		return ssh.InsecureIgnoreHostKey(), nil
	}
}

// Close closes the SFTP session and the SSH connection beneath it.
func (a *Adapter) Close() error {
	err := a.client.Close()
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Root returns the absolute remote directory the adapter is confined to.
func (a *Adapter) Root() string {
	return a.root
}

// SupportsOverwrite reports that Write truncates existing files.
func (a *Adapter) SupportsOverwrite() bool {
	return true
}

func (a *Adapter) remote(p string) string {
	return pathpkg.Join(a.root, p)
}

func (a *Adapter) Has(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := a.client.Stat(a.remote(path))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, sftpError("has", path, err)
	}
	return true, nil
}

func (a *Adapter) Read(ctx context.Context, path string) (*vfskit.Object, error) {
	obj, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer obj.Stream.Close()

	contents, err := io.ReadAll(obj.Stream)
	if err != nil {
		return nil, sftpError("read", path, err)
	}
	obj.Stream = nil
	obj.Contents = contents
	obj.Size = vfskit.Ptr(int64(len(contents)))
	return obj, nil
}

func (a *Adapter) ReadStream(ctx context.Context, path string) (*vfskit.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := a.client.Open(a.remote(path))
	if err != nil {
		return nil, sftpError("readstream", path, err)
	}
	return &vfskit.Object{
		Metadata: vfskit.Metadata{Path: path, Type: vfskit.TypeFile},
		Stream:   f,
	}, nil
}

func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	meta, err := a.upload(ctx, "write", path, bytes.NewReader(contents), cfg)
	if err != nil {
		return nil, err
	}
	meta.Size = vfskit.Ptr(int64(len(contents)))
	meta.Mimetype = vfskit.Ptr(cfg.GetString(vfskit.KeyMimetype, vfskit.GuessMimeType(path, contents)))
	return meta, nil
}

func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if r == nil {
		return nil, &vfskit.PathError{Op: "writestream", Path: path, Err: vfskit.ErrInvalidArgument}
	}
	return a.upload(ctx, "writestream", path, r, cfg)
}

func (a *Adapter) Update(ctx context.Context, path string, contents []byte, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return a.Write(ctx, path, contents, cfg)
}

func (a *Adapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	return a.WriteStream(ctx, path, r, cfg)
}

func (a *Adapter) upload(ctx context.Context, op, path string, r io.Reader, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := a.remote(path)
	if err := a.client.MkdirAll(pathpkg.Dir(target)); err != nil {
		return nil, sftpError(op, path, err)
	}

	f, err := a.client.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, sftpError(op, path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return nil, sftpError(op, path, err)
	}
	if err := f.Close(); err != nil {
		return nil, sftpError(op, path, err)
	}

	visibility := vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public)))
	if err := a.client.Chmod(target, fileMode(false, visibility)); err != nil {
		return nil, sftpError(op, path, err)
	}

	return &vfskit.Metadata{Path: path, Type: vfskit.TypeFile, Visibility: &visibility}, nil
}

func (a *Adapter) Rename(ctx context.Context, path, newpath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := a.remote(newpath)
	if err := a.client.MkdirAll(pathpkg.Dir(target)); err != nil {
		return sftpError("rename", newpath, err)
	}
	if err := a.client.Rename(a.remote(path), target); err != nil {
		return sftpError("rename", path, err)
	}
	return nil
}

// Copy streams the file through the client; SFTP has no server side copy.
func (a *Adapter) Copy(ctx context.Context, path, newpath string) error {
	return vfskit.CopyViaStreams(ctx, a, path, newpath)
}

func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.client.Remove(a.remote(path)); err != nil {
		return sftpError("delete", path, err)
	}
	return nil
}

func (a *Adapter) DeleteDir(ctx context.Context, dirname string) error {
	if dirname == "" {
		return &vfskit.PathError{Op: "deletedir", Path: dirname, Err: vfskit.ErrRootViolation}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.client.RemoveAll(a.remote(dirname)); err != nil {
		return sftpError("deletedir", dirname, err)
	}
	return nil
}

// CreateDir only changes permissions when a visibility is configured
// explicitly; otherwise the server's umask applies.
func (a *Adapter) CreateDir(ctx context.Context, dirname string, cfg *vfskit.Config) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := a.remote(dirname)
	if err := a.client.MkdirAll(target); err != nil {
		return nil, sftpError("createdir", dirname, err)
	}

	meta := &vfskit.Metadata{Path: dirname, Type: vfskit.TypeDir}
	if cfg.Has(vfskit.KeyVisibility) {
		visibility := vfskit.Visibility(cfg.GetString(vfskit.KeyVisibility, string(vfskit.Public)))
		if err := a.client.Chmod(target, fileMode(true, visibility)); err != nil {
			return nil, sftpError("createdir", dirname, err)
		}
		meta.Visibility = &visibility
	}
	return meta, nil
}

func (a *Adapter) ListContents(ctx context.Context, directory string, recursive bool) ([]vfskit.Metadata, error) {
	listing := []vfskit.Metadata{}
	pending := []string{directory}

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := pending[0]
		pending = pending[1:]

		infos, err := a.client.ReadDir(a.remote(dir))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, sftpError("listcontents", dir, err)
		}

		for _, info := range infos {
			if info.Mode()&fs.ModeSymlink != 0 {
				continue
			}
			p := pathpkg.Join(dir, info.Name())
			listing = append(listing, infoMetadata(p, info))
			if recursive && info.IsDir() {
				pending = append(pending, p)
			}
		}
	}
	return listing, nil
}

func (a *Adapter) GetMetadata(ctx context.Context, path string) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := a.client.Stat(a.remote(path))
	if err != nil {
		return nil, sftpError("getmetadata", path, err)
	}
	meta := infoMetadata(path, info)
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
		return nil, &vfskit.PathError{Op: "getmimetype", Path: path, Err: vfskit.ErrNotSupported}
	}

	f, err := a.client.Open(a.remote(path))
	if err != nil {
		return nil, sftpError("getmimetype", path, err)
	}
	defer f.Close()

	head := make([]byte, 3072)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, sftpError("getmimetype", path, err)
	}

	meta.Mimetype = vfskit.Ptr(vfskit.GuessMimeType(path, head[:n]))
	return meta, nil
}

func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility vfskit.Visibility) (*vfskit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := a.remote(path)
	info, err := a.client.Stat(target)
	if err != nil {
		return nil, sftpError("setvisibility", path, err)
	}
	if err := a.client.Chmod(target, fileMode(info.IsDir(), visibility)); err != nil {
		return nil, sftpError("setvisibility", path, err)
	}
	return &vfskit.Metadata{Path: path, Visibility: &visibility}, nil
}

func fileMode(isDir bool, v vfskit.Visibility) os.FileMode {
	switch {
	case isDir && v == vfskit.Private:
		return permDirPrivate
	case isDir:
		return permDirPublic
	case v == vfskit.Private:
		return permFilePrivate
	default:
		return permFilePublic
	}
}

// visibilityOf treats anything readable by others as public.
func visibilityOf(mode os.FileMode) vfskit.Visibility {
	if mode.Perm()&0o004 != 0 {
		return vfskit.Public
	}
	return vfskit.Private
}

func infoMetadata(path string, info os.FileInfo) vfskit.Metadata {
	meta := vfskit.Metadata{
		Path:       path,
		Type:       vfskit.TypeFile,
		Timestamp:  vfskit.Ptr(info.ModTime().Unix()),
		Visibility: vfskit.Ptr(visibilityOf(info.Mode())),
	}
	if info.IsDir() {
		meta.Type = vfskit.TypeDir
	} else {
		meta.Size = vfskit.Ptr(info.Size())
	}
	return meta
}

func sftpError(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = fmt.Errorf("%w: %v", vfskit.ErrFileNotFound, err)
	case errors.Is(err, fs.ErrExist):
		err = fmt.Errorf("%w: %v", vfskit.ErrFileExists, err)
	case errors.Is(err, fs.ErrPermission):
		err = fmt.Errorf("%w: %v", vfskit.ErrPermission, err)
	}
	return &vfskit.PathError{Op: op, Path: path, Err: err}
}

var (
	_ vfskit.Adapter          = (*Adapter)(nil)
	_ vfskit.OverwriteCapable = (*Adapter)(nil)
	_ io.Closer               = (*Adapter)(nil)
)
