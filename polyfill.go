package vfskit

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Helpers for adapters whose backend only supports one flavour of an
// operation. Drivers call them from their own method implementations.

// StreamFromRead implements ReadStream on top of Read.
func StreamFromRead(ctx context.Context, a ReadAdapter, path string) (*Object, error) {
	obj, err := a.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	obj.Stream = io.NopCloser(bytes.NewReader(obj.Contents))
	obj.Contents = nil
	return obj, nil
}

// WriteFromStream implements WriteStream on top of Write by buffering r.
func WriteFromStream(ctx context.Context, a WriteAdapter, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	contents, err := readAll(path, r)
	if err != nil {
		return nil, err
	}
	return a.Write(ctx, path, contents, cfg)
}

// UpdateFromStream implements UpdateStream on top of Update by buffering r.
func UpdateFromStream(ctx context.Context, a WriteAdapter, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	contents, err := readAll(path, r)
	if err != nil {
		return nil, err
	}
	return a.Update(ctx, path, contents, cfg)
}

// CopyViaStreams implements Copy with ReadStream followed by WriteStream. The
// read stream is closed on every path.
func CopyViaStreams(ctx context.Context, a Adapter, path, newpath string) error {
	obj, err := a.ReadStream(ctx, path)
	if err != nil {
		return err
	}
	if obj.Stream == nil {
		return &PathError{Op: "copy", Path: path, Err: fmt.Errorf("adapter returned no stream")}
	}
	defer obj.Stream.Close()

	_, err = a.WriteStream(ctx, newpath, obj.Stream, NewConfig(nil))
	return err
}

// NotSupportingVisibility can be embedded by adapters for backends without a
// visibility concept.
type NotSupportingVisibility struct{}

// GetVisibility always fails with ErrNotSupported.
func (NotSupportingVisibility) GetVisibility(_ context.Context, path string) (*Metadata, error) {
	return nil, &PathError{Op: "getvisibility", Path: path, Err: ErrNotSupported}
}

// SetVisibility always fails with ErrNotSupported.
func (NotSupportingVisibility) SetVisibility(_ context.Context, path string, _ Visibility) (*Metadata, error) {
	return nil, &PathError{Op: "setvisibility", Path: path, Err: ErrNotSupported}
}

func readAll(path string, r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, &PathError{Op: "write", Path: path, Err: ErrInvalidArgument}
	}
	contents, err := io.ReadAll(r)
	if err != nil {
		return nil, &PathError{Op: "write", Path: path, Err: err}
	}
	return contents, nil
}
