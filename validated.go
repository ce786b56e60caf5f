package vfskit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gobeaver/filekit/filevalidator"
)

// ValidatedAdapter checks contents against a filevalidator.Validator before
// any write reaches the wrapped adapter. Reads pass through untouched.
type ValidatedAdapter struct {
	AdapterWrapper
	validator filevalidator.Validator
}

// NewValidated wraps adapter with validator.
func NewValidated(adapter Adapter, validator filevalidator.Validator) *ValidatedAdapter {
	return &ValidatedAdapter{
		AdapterWrapper: AdapterWrapper{Adapter: adapter},
		validator:      validator,
	}
}

// Validator returns the validator in use.
func (v *ValidatedAdapter) Validator() filevalidator.Validator {
	return v.validator
}

func (v *ValidatedAdapter) check(op, path string, contents []byte) error {
	if err := v.validator.ValidateBytes(contents, Basename(path)); err != nil {
		return &PathError{Op: op, Path: path, Err: err}
	}
	return nil
}

// checkStream validates r and returns a reader that yields the same bytes.
//
// Seekable readers are validated in full and rewound. Other streams are
// validated on their first 512 bytes and then capped at MaxFileSize.
func (v *ValidatedAdapter) checkStream(op, path string, r io.Reader) (io.Reader, error) {
	name := Basename(path)

	if seeker, ok := r.(io.ReadSeeker); ok {
		size, err := streamSize(seeker)
		if err != nil {
			return nil, &PathError{Op: op, Path: path, Err: err}
		}
		if err := v.validator.ValidateReader(seeker, name, size); err != nil {
			return nil, &PathError{Op: op, Path: path, Err: err}
		}
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, &PathError{Op: op, Path: path, Err: err}
		}
		return seeker, nil
	}

	header := make([]byte, 512)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, &PathError{Op: op, Path: path, Err: err}
	}
	header = header[:n]

	if err := v.validator.ValidateBytes(header, name); err != nil {
		return nil, &PathError{Op: op, Path: path, Err: err}
	}

	r = io.MultiReader(bytes.NewReader(header), r)
	if limit := v.validator.GetConstraints().MaxFileSize; limit > 0 {
		r = &SizeLimitReader{R: r, Limit: limit}
	}
	return r, nil
}

func (v *ValidatedAdapter) Write(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	if err := v.check("write", path, contents); err != nil {
		return nil, err
	}
	return v.Adapter.Write(ctx, path, contents, cfg)
}

func (v *ValidatedAdapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	r, err := v.checkStream("writestream", path, r)
	if err != nil {
		return nil, err
	}
	return v.Adapter.WriteStream(ctx, path, r, cfg)
}

func (v *ValidatedAdapter) Update(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	if err := v.check("update", path, contents); err != nil {
		return nil, err
	}
	return v.Adapter.Update(ctx, path, contents, cfg)
}

func (v *ValidatedAdapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	r, err := v.checkStream("updatestream", path, r)
	if err != nil {
		return nil, err
	}
	return v.Adapter.UpdateStream(ctx, path, r, cfg)
}

// Rename validates the destination name; the contents were checked when
// they were written.
func (v *ValidatedAdapter) Rename(ctx context.Context, path, newpath string) error {
	if err := v.checkName("rename", newpath); err != nil {
		return err
	}
	return v.Adapter.Rename(ctx, path, newpath)
}

func (v *ValidatedAdapter) Copy(ctx context.Context, path, newpath string) error {
	if err := v.checkName("copy", newpath); err != nil {
		return err
	}
	return v.Adapter.Copy(ctx, path, newpath)
}

// checkName runs the extension rules of the constraints against newpath.
func (v *ValidatedAdapter) checkName(op, newpath string) error {
	c := v.validator.GetConstraints()
	ext := Extension(newpath)
	if ext != "" {
		ext = "." + ext
	}

	reject := func(msg string) error {
		return &PathError{Op: op, Path: newpath, Err: filevalidator.NewValidationError(filevalidator.ErrorTypeExtension, msg)}
	}

	for _, blocked := range c.BlockedExts {
		if strings.EqualFold(ext, blocked) {
			return reject(fmt.Sprintf("file extension %s is blocked", ext))
		}
	}
	if len(c.AllowedExts) == 0 {
		return nil
	}
	for _, allowed := range c.AllowedExts {
		if strings.EqualFold(ext, allowed) {
			return nil
		}
	}
	return reject(fmt.Sprintf("file extension %s is not allowed", ext))
}

var _ Adapter = (*ValidatedAdapter)(nil)

// SizeLimitReader restricts the number of bytes read and returns an error if
// the limit is exceeded.
type SizeLimitReader struct {
	R     io.Reader
	Limit int64
	N     int64
}

func (l *SizeLimitReader) Read(p []byte) (n int, err error) {
	n, err = l.R.Read(p)
	l.N += int64(n)
	if l.N > l.Limit {
		return n, fmt.Errorf("file size exceeds limit of %d bytes", l.Limit)
	}
	return n, err
}

func streamSize(seeker io.ReadSeeker) (int64, error) {
	current, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := seeker.Seek(current, io.SeekStart); err != nil {
		return 0, err
	}
	return end - current, nil
}
