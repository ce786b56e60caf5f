package vfskit

import (
	"context"
	"errors"
	"io"
)

// ============================================================================
// ReadOnly Decorator
// ============================================================================

// ReadOnlyAdapter wraps an Adapter and blocks every mutating operation.
//
// Example:
//
//	fs := vfskit.NewFilesystem(vfskit.NewReadOnly(adapter))
//
//	contents, ok, _ := fs.Read(ctx, "file.txt") // works
//	ok, _ = fs.Put(ctx, "file.txt", contents)   // false, adapter returned ErrReadOnly
type ReadOnlyAdapter struct {
	AdapterWrapper
	opts ReadOnlyOptions
}

// ReadOnlyOptions configures the ReadOnlyAdapter behavior.
type ReadOnlyOptions struct {
	// AllowCreateDir permits directory creation even in read-only mode.
	// Useful for temporary directories or staging areas.
	AllowCreateDir bool

	// AllowDelete permits file deletion in read-only mode.
	AllowDelete bool

	// OnWriteAttempt is called when a write operation is attempted.
	// If this function returns nil, the write is allowed.
	OnWriteAttempt func(op, path string) error

	// ErrorWrapper customizes the error returned for write attempts.
	// If nil, a PathError wrapping ErrReadOnly is returned.
	ErrorWrapper func(op, path string, err error) error
}

// ReadOnlyOption is a functional option for configuring ReadOnlyAdapter.
type ReadOnlyOption func(*ReadOnlyOptions)

// WithAllowCreateDir allows directory creation in read-only mode.
func WithAllowCreateDir(allow bool) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.AllowCreateDir = allow
	}
}

// WithAllowDelete allows file deletion in read-only mode.
func WithAllowDelete(allow bool) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.AllowDelete = allow
	}
}

// WithWriteAttemptHandler sets a custom handler for write attempts.
func WithWriteAttemptHandler(handler func(op, path string) error) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.OnWriteAttempt = handler
	}
}

// WithErrorWrapper sets a custom error wrapper for write attempts.
func WithErrorWrapper(wrapper func(op, path string, err error) error) ReadOnlyOption {
	return func(o *ReadOnlyOptions) {
		o.ErrorWrapper = wrapper
	}
}

// NewReadOnly creates a read-only wrapper around an Adapter.
func NewReadOnly(adapter Adapter, opts ...ReadOnlyOption) *ReadOnlyAdapter {
	options := ReadOnlyOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return &ReadOnlyAdapter{
		AdapterWrapper: AdapterWrapper{Adapter: adapter},
		opts:           options,
	}
}

// IsReadOnly returns true, indicating this is a read-only adapter.
func (r *ReadOnlyAdapter) IsReadOnly() bool {
	return true
}

// readOnlyError returns the error for a blocked operation, or nil when the
// write attempt handler lets it through.
func (r *ReadOnlyAdapter) readOnlyError(op, path string) error {
	if r.opts.OnWriteAttempt != nil {
		if err := r.opts.OnWriteAttempt(op, path); err != nil {
			if r.opts.ErrorWrapper != nil {
				return r.opts.ErrorWrapper(op, path, err)
			}
			return &PathError{Op: op, Path: path, Err: err}
		}
		return nil
	}

	if r.opts.ErrorWrapper != nil {
		return r.opts.ErrorWrapper(op, path, ErrReadOnly)
	}
	return &PathError{Op: op, Path: path, Err: ErrReadOnly}
}

// ============================================================================
// Write Operations (Blocked)
// ============================================================================

func (r *ReadOnlyAdapter) Write(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	if err := r.readOnlyError("write", path); err != nil {
		return nil, err
	}
	return r.Adapter.Write(ctx, path, contents, cfg)
}

func (r *ReadOnlyAdapter) WriteStream(ctx context.Context, path string, rd io.Reader, cfg *Config) (*Metadata, error) {
	if err := r.readOnlyError("writestream", path); err != nil {
		return nil, err
	}
	return r.Adapter.WriteStream(ctx, path, rd, cfg)
}

func (r *ReadOnlyAdapter) Update(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	if err := r.readOnlyError("update", path); err != nil {
		return nil, err
	}
	return r.Adapter.Update(ctx, path, contents, cfg)
}

func (r *ReadOnlyAdapter) UpdateStream(ctx context.Context, path string, rd io.Reader, cfg *Config) (*Metadata, error) {
	if err := r.readOnlyError("updatestream", path); err != nil {
		return nil, err
	}
	return r.Adapter.UpdateStream(ctx, path, rd, cfg)
}

func (r *ReadOnlyAdapter) Rename(ctx context.Context, path, newpath string) error {
	if err := r.readOnlyError("rename", path); err != nil {
		return err
	}
	return r.Adapter.Rename(ctx, path, newpath)
}

func (r *ReadOnlyAdapter) Copy(ctx context.Context, path, newpath string) error {
	if err := r.readOnlyError("copy", newpath); err != nil {
		return err
	}
	return r.Adapter.Copy(ctx, path, newpath)
}

// Delete is blocked unless AllowDelete is enabled.
func (r *ReadOnlyAdapter) Delete(ctx context.Context, path string) error {
	if !r.opts.AllowDelete {
		if err := r.readOnlyError("delete", path); err != nil {
			return err
		}
	}
	return r.Adapter.Delete(ctx, path)
}

func (r *ReadOnlyAdapter) DeleteDir(ctx context.Context, dirname string) error {
	if err := r.readOnlyError("deletedir", dirname); err != nil {
		return err
	}
	return r.Adapter.DeleteDir(ctx, dirname)
}

// CreateDir is blocked unless AllowCreateDir is enabled.
func (r *ReadOnlyAdapter) CreateDir(ctx context.Context, dirname string, cfg *Config) (*Metadata, error) {
	if !r.opts.AllowCreateDir {
		if err := r.readOnlyError("createdir", dirname); err != nil {
			return nil, err
		}
	}
	return r.Adapter.CreateDir(ctx, dirname, cfg)
}

func (r *ReadOnlyAdapter) SetVisibility(ctx context.Context, path string, visibility Visibility) (*Metadata, error) {
	if err := r.readOnlyError("setvisibility", path); err != nil {
		return nil, err
	}
	return r.Adapter.SetVisibility(ctx, path, visibility)
}

var _ Adapter = (*ReadOnlyAdapter)(nil)

// IsReadOnlyError checks if an error is due to read-only restrictions.
func IsReadOnlyError(err error) bool {
	return errors.Is(err, ErrReadOnly)
}
