package vfskit

import (
	"context"
	"fmt"
	"sync"

	"github.com/gobeaver/beaver-kit/config"
)

// Global instance
var (
	defaultFS   *Filesystem
	defaultOnce sync.Once
	defaultErr  error
)

// Builder provides a way to create Filesystem instances with custom prefixes
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// Settings loads the settings using the builder's prefix.
func (b *Builder) Settings() (*Settings, error) {
	s := &Settings{}
	if err := config.Load(s, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return s, nil
}

// Init initializes the global Filesystem instance using the builder's prefix
func (b *Builder) Init() error {
	s, err := b.Settings()
	if err != nil {
		return err
	}
	return Init(s)
}

// New creates a new Filesystem instance using the builder's prefix
func (b *Builder) New(ctx context.Context) (*Filesystem, error) {
	s, err := b.Settings()
	if err != nil {
		return nil, err
	}
	return New(ctx, s)
}

// Init initializes the global filesystem instance
func Init(settings ...*Settings) error {
	defaultOnce.Do(func() {
		var s *Settings
		if len(settings) > 0 {
			s = settings[0]
		} else {
			s, defaultErr = GetSettings()
			if defaultErr != nil {
				return
			}
		}

		defaultFS, defaultErr = New(context.Background(), s)
	})

	return defaultErr
}

// New creates a Filesystem from settings. The driver must have been
// registered, usually by a blank import of its package.
//
// Decorators are stacked from the backend outwards: circuit breaker, rate
// limit, encryption, validation, read-only, tracing.
func New(ctx context.Context, s *Settings) (*Filesystem, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	logger := s.Logger()

	adapter, err := CreateAdapter(ctx, s.Driver, s.DriverOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	adapter, err = s.Decorations().Apply(adapter, s.Driver, logger)
	if err != nil {
		return nil, err
	}

	return NewFilesystem(adapter,
		WithConfig(s.FacadeConfig()),
		WithLogger(logger.With("driver", s.Driver)),
	), nil
}

// FS returns the global filesystem instance
func FS() *Filesystem {
	if defaultFS == nil {
		_ = Init()
	}
	return defaultFS
}

// Default returns the global instance, initializing if needed with error handling
func Default() (*Filesystem, error) {
	if defaultFS == nil {
		if err := Init(); err != nil {
			return nil, err
		}
	}
	return defaultFS, nil
}

// NewFromEnv creates instance from environment variables (convenience constructor)
func NewFromEnv(ctx context.Context) (*Filesystem, error) {
	s, err := GetSettings()
	if err != nil {
		return nil, err
	}
	return New(ctx, s)
}

// Reset clears the global instance (for testing)
func Reset() {
	defaultFS = nil
	defaultOnce = sync.Once{}
	defaultErr = nil
}
