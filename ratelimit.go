package vfskit

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures RateLimitedAdapter.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained call rate. Zero disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second,omitempty"`
	// Burst is the bucket capacity. Defaults to one second worth of calls.
	Burst int `mapstructure:"burst" yaml:"burst,omitempty"`
	// NoWait rejects calls with ErrRateLimited instead of blocking until a
	// token is available.
	NoWait bool `mapstructure:"no_wait" yaml:"no_wait,omitempty"`
}

// RateLimitedAdapter throttles calls to the wrapped adapter with a token
// bucket. Every adapter call consumes one token.
type RateLimitedAdapter struct {
	AdapterWrapper
	limiter *rate.Limiter
	noWait  bool
}

// NewRateLimited wraps adapter with a rate limiter.
func NewRateLimited(adapter Adapter, cfg RateLimitConfig) *RateLimitedAdapter {
	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst <= 0 {
			burst = max(1, int(cfg.RequestsPerSecond))
		}
	}

	return &RateLimitedAdapter{
		AdapterWrapper: AdapterWrapper{Adapter: adapter},
		limiter:        rate.NewLimiter(limit, burst),
		noWait:         cfg.NoWait,
	}
}

// Limiter exposes the underlying token bucket.
func (l *RateLimitedAdapter) Limiter() *rate.Limiter {
	return l.limiter
}

func (l *RateLimitedAdapter) wait(ctx context.Context, op, path string) error {
	if l.noWait {
		if !l.limiter.Allow() {
			return &PathError{Op: op, Path: path, Err: ErrRateLimited}
		}
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return &PathError{Op: op, Path: path, Err: fmt.Errorf("%w: %w", ErrRateLimited, err)}
	}
	return nil
}

func (l *RateLimitedAdapter) Has(ctx context.Context, path string) (bool, error) {
	if err := l.wait(ctx, "has", path); err != nil {
		return false, err
	}
	return l.Adapter.Has(ctx, path)
}

func (l *RateLimitedAdapter) Read(ctx context.Context, path string) (*Object, error) {
	if err := l.wait(ctx, "read", path); err != nil {
		return nil, err
	}
	return l.Adapter.Read(ctx, path)
}

func (l *RateLimitedAdapter) ReadStream(ctx context.Context, path string) (*Object, error) {
	if err := l.wait(ctx, "readstream", path); err != nil {
		return nil, err
	}
	return l.Adapter.ReadStream(ctx, path)
}

func (l *RateLimitedAdapter) ListContents(ctx context.Context, directory string, recursive bool) ([]Metadata, error) {
	if err := l.wait(ctx, "listcontents", directory); err != nil {
		return nil, err
	}
	return l.Adapter.ListContents(ctx, directory, recursive)
}

func (l *RateLimitedAdapter) GetMetadata(ctx context.Context, path string) (*Metadata, error) {
	if err := l.wait(ctx, "getmetadata", path); err != nil {
		return nil, err
	}
	return l.Adapter.GetMetadata(ctx, path)
}

func (l *RateLimitedAdapter) GetSize(ctx context.Context, path string) (*Metadata, error) {
	if err := l.wait(ctx, "getsize", path); err != nil {
		return nil, err
	}
	return l.Adapter.GetSize(ctx, path)
}

func (l *RateLimitedAdapter) GetMimetype(ctx context.Context, path string) (*Metadata, error) {
	if err := l.wait(ctx, "getmimetype", path); err != nil {
		return nil, err
	}
	return l.Adapter.GetMimetype(ctx, path)
}

func (l *RateLimitedAdapter) GetTimestamp(ctx context.Context, path string) (*Metadata, error) {
	if err := l.wait(ctx, "gettimestamp", path); err != nil {
		return nil, err
	}
	return l.Adapter.GetTimestamp(ctx, path)
}

func (l *RateLimitedAdapter) GetVisibility(ctx context.Context, path string) (*Metadata, error) {
	if err := l.wait(ctx, "getvisibility", path); err != nil {
		return nil, err
	}
	return l.Adapter.GetVisibility(ctx, path)
}

func (l *RateLimitedAdapter) Write(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	if err := l.wait(ctx, "write", path); err != nil {
		return nil, err
	}
	return l.Adapter.Write(ctx, path, contents, cfg)
}

func (l *RateLimitedAdapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	if err := l.wait(ctx, "writestream", path); err != nil {
		return nil, err
	}
	return l.Adapter.WriteStream(ctx, path, r, cfg)
}

func (l *RateLimitedAdapter) Update(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	if err := l.wait(ctx, "update", path); err != nil {
		return nil, err
	}
	return l.Adapter.Update(ctx, path, contents, cfg)
}

func (l *RateLimitedAdapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	if err := l.wait(ctx, "updatestream", path); err != nil {
		return nil, err
	}
	return l.Adapter.UpdateStream(ctx, path, r, cfg)
}

func (l *RateLimitedAdapter) Rename(ctx context.Context, path, newpath string) error {
	if err := l.wait(ctx, "rename", path); err != nil {
		return err
	}
	return l.Adapter.Rename(ctx, path, newpath)
}

func (l *RateLimitedAdapter) Copy(ctx context.Context, path, newpath string) error {
	if err := l.wait(ctx, "copy", path); err != nil {
		return err
	}
	return l.Adapter.Copy(ctx, path, newpath)
}

func (l *RateLimitedAdapter) Delete(ctx context.Context, path string) error {
	if err := l.wait(ctx, "delete", path); err != nil {
		return err
	}
	return l.Adapter.Delete(ctx, path)
}

func (l *RateLimitedAdapter) DeleteDir(ctx context.Context, dirname string) error {
	if err := l.wait(ctx, "deletedir", dirname); err != nil {
		return err
	}
	return l.Adapter.DeleteDir(ctx, dirname)
}

func (l *RateLimitedAdapter) CreateDir(ctx context.Context, dirname string, cfg *Config) (*Metadata, error) {
	if err := l.wait(ctx, "createdir", dirname); err != nil {
		return nil, err
	}
	return l.Adapter.CreateDir(ctx, dirname, cfg)
}

func (l *RateLimitedAdapter) SetVisibility(ctx context.Context, path string, visibility Visibility) (*Metadata, error) {
	if err := l.wait(ctx, "setvisibility", path); err != nil {
		return nil, err
	}
	return l.Adapter.SetVisibility(ctx, path, visibility)
}

var _ Adapter = (*RateLimitedAdapter)(nil)
