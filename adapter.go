package vfskit

import (
	"context"
	"io"
	"time"
)

// FileType distinguishes files from directories in Metadata.
type FileType string

const (
	TypeFile FileType = "file"
	TypeDir  FileType = "dir"
)

// Visibility represents file visibility
type Visibility string

const (
	// Public means the file is readable by everyone the backend exposes it to
	Public Visibility = "public"

	// Private means the file is only accessible by its owner
	Private Visibility = "private"
)

func (v Visibility) String() string {
	return string(v)
}

// Valid reports whether v is one of the known visibilities.
func (v Visibility) Valid() bool {
	return v == Public || v == Private
}

// Metadata describes one node of a backend. Optional fields are nil when the
// adapter did not report them.
type Metadata struct {
	Path       string
	Type       FileType
	Timestamp  *int64
	Size       *int64
	Mimetype   *string
	Visibility *Visibility

	// Filesystem is the mount prefix the record was listed from. Only set by
	// MountManager listings.
	Filesystem string
}

// Object is an adapter read result: metadata plus either the full contents
// or an open stream.
type Object struct {
	Metadata
	Contents []byte
	Stream   io.ReadCloser
}

// IsFile reports whether m describes a file.
func (m Metadata) IsFile() bool { return m.Type == TypeFile }

// IsDir reports whether m describes a directory.
func (m Metadata) IsDir() bool { return m.Type == TypeDir }

func (m Metadata) Dirname() string   { return Dirname(m.Path) }
func (m Metadata) Basename() string  { return Basename(m.Path) }
func (m Metadata) Extension() string { return Pathinfo(m.Path).Extension }
func (m Metadata) Filename() string  { return Pathinfo(m.Path).Filename }

// ModTime returns the timestamp as a time.Time, or the zero time when the
// adapter did not report one.
func (m Metadata) ModTime() time.Time {
	if m.Timestamp == nil {
		return time.Time{}
	}
	return time.Unix(*m.Timestamp, 0)
}

// Field returns a metadata value by its wire name ("path", "type", "size",
// "timestamp", "mimetype", "visibility", "dirname", "basename", "extension",
// "filename", "filesystem"). ok is false for unknown or unreported fields.
func (m Metadata) Field(name string) (any, bool) {
	switch name {
	case "path":
		return m.Path, true
	case "type":
		return string(m.Type), m.Type != ""
	case "timestamp":
		if m.Timestamp == nil {
			return nil, false
		}
		return *m.Timestamp, true
	case "size":
		if m.Size == nil {
			return nil, false
		}
		return *m.Size, true
	case "mimetype":
		if m.Mimetype == nil {
			return nil, false
		}
		return *m.Mimetype, true
	case "visibility":
		if m.Visibility == nil {
			return nil, false
		}
		return string(*m.Visibility), true
	case "dirname":
		return m.Dirname(), true
	case "basename":
		return m.Basename(), true
	case "extension":
		return m.Extension(), true
	case "filename":
		return m.Filename(), true
	case "filesystem":
		return m.Filesystem, m.Filesystem != ""
	default:
		return nil, false
	}
}

// Merge copies the fields set in other onto m. Path and Type are only taken
// when m lacks them.
func (m *Metadata) Merge(other *Metadata) {
	if other == nil {
		return
	}
	if m.Path == "" {
		m.Path = other.Path
	}
	if m.Type == "" {
		m.Type = other.Type
	}
	if other.Timestamp != nil {
		m.Timestamp = other.Timestamp
	}
	if other.Size != nil {
		m.Size = other.Size
	}
	if other.Mimetype != nil {
		m.Mimetype = other.Mimetype
	}
	if other.Visibility != nil {
		m.Visibility = other.Visibility
	}
}

// Ptr returns a pointer to v. Drivers use it to fill optional Metadata fields.
func Ptr[T any](v T) *T {
	return &v
}

// ============================================================================
// Adapter contract
// ============================================================================

// ReadAdapter is the read half of the adapter contract.
//
// All paths handed to an adapter are already canonical (see NormalizePath).
// Adapters report failure through the returned error; they do not have to
// enforce existence preconditions, the Filesystem does that.
type ReadAdapter interface {
	Has(ctx context.Context, path string) (bool, error)
	Read(ctx context.Context, path string) (*Object, error)
	ReadStream(ctx context.Context, path string) (*Object, error)
	ListContents(ctx context.Context, directory string, recursive bool) ([]Metadata, error)
	GetMetadata(ctx context.Context, path string) (*Metadata, error)
	GetSize(ctx context.Context, path string) (*Metadata, error)
	GetMimetype(ctx context.Context, path string) (*Metadata, error)
	GetTimestamp(ctx context.Context, path string) (*Metadata, error)
	GetVisibility(ctx context.Context, path string) (*Metadata, error)
}

// WriteAdapter is the write half of the adapter contract.
type WriteAdapter interface {
	Write(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error)
	WriteStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error)
	Update(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error)
	UpdateStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error)
	Rename(ctx context.Context, path, newpath string) error
	Copy(ctx context.Context, path, newpath string) error
	Delete(ctx context.Context, path string) error
	DeleteDir(ctx context.Context, dirname string) error
	CreateDir(ctx context.Context, dirname string, cfg *Config) (*Metadata, error)
	SetVisibility(ctx context.Context, path string, visibility Visibility) (*Metadata, error)
}

// Adapter is the full capability contract every backend implements.
type Adapter interface {
	ReadAdapter
	WriteAdapter
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// OverwriteCapable is implemented by adapters whose Write replaces existing
// files. The Filesystem queries it once, at construction, to decide how Put
// behaves.
type OverwriteCapable interface {
	SupportsOverwrite() bool
}

// Watcher is implemented by adapters that can report changes to paths
// matching a glob pattern.
type Watcher interface {
	Watch(ctx context.Context, pattern string) (ChangeToken, error)
}

// ChangeToken propagates notifications that a change has occurred.
type ChangeToken interface {
	// HasChanged reports whether a change has occurred.
	HasChanged() bool

	// ActiveChangeCallbacks reports whether the token invokes callbacks on
	// its own. When false, consumers must poll HasChanged.
	ActiveChangeCallbacks() bool

	// RegisterChangeCallback registers a callback invoked once on change.
	RegisterChangeCallback(callback func()) (unregister func())
}

// supportsOverwrite resolves the overwrite capability of a.
func supportsOverwrite(a Adapter) bool {
	oc, ok := a.(OverwriteCapable)
	return ok && oc.SupportsOverwrite()
}
