package vfskit

import (
	"context"
	"io"
)

// AdapterWrapper is embedded by adapter decorators. It forwards the whole
// Adapter contract plus the optional capabilities of the wrapped adapter, so
// a decorator only overrides the operations it changes.
type AdapterWrapper struct {
	Adapter
}

// Unwrap returns the wrapped adapter.
func (w AdapterWrapper) Unwrap() Adapter {
	return w.Adapter
}

// SupportsOverwrite forwards the overwrite capability.
func (w AdapterWrapper) SupportsOverwrite() bool {
	return supportsOverwrite(w.Adapter)
}

// Watch forwards to the wrapped adapter when it can watch.
func (w AdapterWrapper) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	if watcher, ok := w.Adapter.(Watcher); ok {
		return watcher.Watch(ctx, pattern)
	}
	return nil, &PathError{Op: "watch", Path: pattern, Err: ErrNotSupported}
}

// Close closes the wrapped adapter when it holds resources.
func (w AdapterWrapper) Close() error {
	if c, ok := w.Adapter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// UnwrapAdapter peels decorators off a until it reaches the innermost adapter.
func UnwrapAdapter(a Adapter) Adapter {
	for {
		u, ok := a.(interface{ Unwrap() Adapter })
		if !ok {
			return a
		}
		a = u.Unwrap()
	}
}

var (
	_ OverwriteCapable = AdapterWrapper{}
	_ Watcher          = AdapterWrapper{}
	_ io.Closer        = AdapterWrapper{}
)
