package vfskit

import (
	"errors"
	"fmt"
)

// Precondition and argument errors. These are returned as hard errors by the
// Filesystem and MountManager; adapter failures never are.
var (
	ErrInvalidPath        = errors.New("path is outside of the defined root")
	ErrFileNotFound       = errors.New("file not found")
	ErrFileExists         = errors.New("file already exists")
	ErrRootViolation      = errors.New("root directories can not be deleted")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrMethodNotFound     = errors.New("call to undefined method")
	ErrFilesystemNotFound = errors.New("no filesystem mounted with prefix")
	ErrInvalidConfig      = errors.New("invalid config")
)

// Adapter level errors. Decorators and drivers wrap these so callers of an
// Adapter can branch on them; the Filesystem turns them into a false result.
var (
	ErrNotSupported = errors.New("operation not supported")
	ErrReadOnly     = errors.New("filesystem is read-only")
	ErrPermission   = errors.New("permission denied")
	ErrCircuitOpen  = errors.New("backend circuit is open")
	ErrRateLimited  = errors.New("backend rate limit exceeded")
)

// PathError records an error and the operation and path that caused it
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

// NewPathError creates a PathError.
func NewPathError(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: err}
}

// IsNotFound reports whether err is a missing file precondition failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound)
}

// IsExist reports whether err is an existing file precondition failure.
func IsExist(err error) bool {
	return errors.Is(err, ErrFileExists)
}

// IsInvalidPath reports whether err was caused by a path escaping the root.
func IsInvalidPath(err error) bool {
	return errors.Is(err, ErrInvalidPath)
}

// IsRootViolation reports whether err was caused by an attempt to delete the root.
func IsRootViolation(err error) bool {
	return errors.Is(err, ErrRootViolation)
}

// IsInvalidArgument reports whether err was caused by a malformed call.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsMethodNotFound reports whether err was caused by an unknown method name.
func IsMethodNotFound(err error) bool {
	return errors.Is(err, ErrMethodNotFound)
}
