package vfskit

import (
	"context"
	"io"
)

// ProgressFunc receives the bytes transferred so far and the expected total,
// which is 0 when unknown.
type ProgressFunc func(bytesTransferred int64, totalBytes int64)

// UploadOptions configures Upload.
type UploadOptions struct {
	// Mimetype overrides detection by the adapter.
	Mimetype string

	// Visibility of the created file.
	Visibility Visibility

	// Progress is called as the adapter consumes the stream.
	Progress ProgressFunc

	// ProgressStep is the minimum number of bytes between two progress
	// calls. Defaults to 64 KiB.
	ProgressStep int64
}

// Upload stores r at path, creating or replacing the file, and reports
// progress while the adapter reads the stream. size is only passed through
// to the progress callback.
func Upload(ctx context.Context, fs FilesystemInterface, path string, r io.Reader, size int64, opts *UploadOptions) (bool, error) {
	if opts == nil {
		opts = &UploadOptions{}
	}

	var options []Option
	if opts.Mimetype != "" {
		options = append(options, WithMimetype(opts.Mimetype))
	}
	if opts.Visibility != "" {
		options = append(options, WithVisibility(opts.Visibility))
	}

	if opts.Progress != nil && r != nil {
		step := opts.ProgressStep
		if step <= 0 {
			step = 64 << 10
		}
		r = &progressReader{reader: r, progress: opts.Progress, size: size, step: step}
	}

	return fs.PutStream(ctx, path, r, options...)
}

type progressReader struct {
	reader       io.Reader
	progress     ProgressFunc
	size         int64
	step         int64
	bytesRead    int64
	lastReported int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.bytesRead += int64(n)

	pending := r.bytesRead - r.lastReported
	if pending >= r.step || (err == io.EOF && pending > 0) {
		r.progress(r.bytesRead, r.size)
		r.lastReported = r.bytesRead
	}
	return n, err
}
