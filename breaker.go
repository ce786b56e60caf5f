package vfskit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default circuit breaker settings.
const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string `mapstructure:"name" yaml:"name,omitempty"`
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `mapstructure:"max_failures" yaml:"max_failures,omitempty"`
	// Timeout is how long the circuit stays open before moving to half-open.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration `mapstructure:"interval" yaml:"interval,omitempty"`
}

// CircuitBreakerAdapter routes every adapter call through a circuit breaker.
// Once the backend fails MaxFailures times in a row, calls fail fast with
// ErrCircuitOpen until the timeout elapses.
//
// Errors that describe the request rather than the backend (missing files,
// existing files, unsupported or read-only operations, cancelled contexts)
// do not count as failures.
type CircuitBreakerAdapter struct {
	AdapterWrapper
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewCircuitBreaker wraps adapter with a circuit breaker. Zero config values
// fall back to defaults.
func NewCircuitBreaker(adapter Adapter, cfg BreakerConfig, logger *slog.Logger) *CircuitBreakerAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}
	name := cfg.Name
	if name == "" {
		name = "vfskit"
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: breakerSuccess,
	})

	return &CircuitBreakerAdapter{
		AdapterWrapper: AdapterWrapper{Adapter: adapter},
		breaker:        cb,
	}
}

func breakerSuccess(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrFileNotFound),
		errors.Is(err, ErrFileExists),
		errors.Is(err, ErrNotSupported),
		errors.Is(err, ErrReadOnly),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

// State returns the current circuit breaker state.
func (b *CircuitBreakerAdapter) State() gobreaker.State {
	return b.breaker.State()
}

// Counts returns the current circuit breaker counts.
func (b *CircuitBreakerAdapter) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}

func guard[T any](b *CircuitBreakerAdapter, op, path string, fn func() (T, error)) (T, error) {
	var out T
	_, err := b.breaker.Execute(func() (struct{}, error) {
		var err error
		out, err = fn()
		return struct{}{}, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return out, &PathError{Op: op, Path: path, Err: fmt.Errorf("%w: %w", ErrCircuitOpen, err)}
	}
	return out, err
}

func guardErr(b *CircuitBreakerAdapter, op, path string, fn func() error) error {
	_, err := guard(b, op, path, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *CircuitBreakerAdapter) Has(ctx context.Context, path string) (bool, error) {
	return guard(b, "has", path, func() (bool, error) { return b.Adapter.Has(ctx, path) })
}

func (b *CircuitBreakerAdapter) Read(ctx context.Context, path string) (*Object, error) {
	return guard(b, "read", path, func() (*Object, error) { return b.Adapter.Read(ctx, path) })
}

// ReadStream only guards opening the stream. Errors while reading from it
// do not reach the breaker.
func (b *CircuitBreakerAdapter) ReadStream(ctx context.Context, path string) (*Object, error) {
	return guard(b, "readstream", path, func() (*Object, error) { return b.Adapter.ReadStream(ctx, path) })
}

func (b *CircuitBreakerAdapter) ListContents(ctx context.Context, directory string, recursive bool) ([]Metadata, error) {
	return guard(b, "listcontents", directory, func() ([]Metadata, error) {
		return b.Adapter.ListContents(ctx, directory, recursive)
	})
}

func (b *CircuitBreakerAdapter) GetMetadata(ctx context.Context, path string) (*Metadata, error) {
	return guard(b, "getmetadata", path, func() (*Metadata, error) { return b.Adapter.GetMetadata(ctx, path) })
}

func (b *CircuitBreakerAdapter) GetSize(ctx context.Context, path string) (*Metadata, error) {
	return guard(b, "getsize", path, func() (*Metadata, error) { return b.Adapter.GetSize(ctx, path) })
}

func (b *CircuitBreakerAdapter) GetMimetype(ctx context.Context, path string) (*Metadata, error) {
	return guard(b, "getmimetype", path, func() (*Metadata, error) { return b.Adapter.GetMimetype(ctx, path) })
}

func (b *CircuitBreakerAdapter) GetTimestamp(ctx context.Context, path string) (*Metadata, error) {
	return guard(b, "gettimestamp", path, func() (*Metadata, error) { return b.Adapter.GetTimestamp(ctx, path) })
}

func (b *CircuitBreakerAdapter) GetVisibility(ctx context.Context, path string) (*Metadata, error) {
	return guard(b, "getvisibility", path, func() (*Metadata, error) { return b.Adapter.GetVisibility(ctx, path) })
}

func (b *CircuitBreakerAdapter) Write(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	return guard(b, "write", path, func() (*Metadata, error) { return b.Adapter.Write(ctx, path, contents, cfg) })
}

func (b *CircuitBreakerAdapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	return guard(b, "writestream", path, func() (*Metadata, error) { return b.Adapter.WriteStream(ctx, path, r, cfg) })
}

func (b *CircuitBreakerAdapter) Update(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	return guard(b, "update", path, func() (*Metadata, error) { return b.Adapter.Update(ctx, path, contents, cfg) })
}

func (b *CircuitBreakerAdapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	return guard(b, "updatestream", path, func() (*Metadata, error) { return b.Adapter.UpdateStream(ctx, path, r, cfg) })
}

func (b *CircuitBreakerAdapter) Rename(ctx context.Context, path, newpath string) error {
	return guardErr(b, "rename", path, func() error { return b.Adapter.Rename(ctx, path, newpath) })
}

func (b *CircuitBreakerAdapter) Copy(ctx context.Context, path, newpath string) error {
	return guardErr(b, "copy", path, func() error { return b.Adapter.Copy(ctx, path, newpath) })
}

func (b *CircuitBreakerAdapter) Delete(ctx context.Context, path string) error {
	return guardErr(b, "delete", path, func() error { return b.Adapter.Delete(ctx, path) })
}

func (b *CircuitBreakerAdapter) DeleteDir(ctx context.Context, dirname string) error {
	return guardErr(b, "deletedir", dirname, func() error { return b.Adapter.DeleteDir(ctx, dirname) })
}

func (b *CircuitBreakerAdapter) CreateDir(ctx context.Context, dirname string, cfg *Config) (*Metadata, error) {
	return guard(b, "createdir", dirname, func() (*Metadata, error) { return b.Adapter.CreateDir(ctx, dirname, cfg) })
}

func (b *CircuitBreakerAdapter) SetVisibility(ctx context.Context, path string, visibility Visibility) (*Metadata, error) {
	return guard(b, "setvisibility", path, func() (*Metadata, error) {
		return b.Adapter.SetVisibility(ctx, path, visibility)
	})
}

var _ Adapter = (*CircuitBreakerAdapter)(nil)
