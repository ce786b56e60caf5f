package vfskit

import (
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/gobeaver/filekit/filevalidator"
)

// ValidationConfig describes the constraints of a ValidatedAdapter. Unset
// fields keep the filevalidator defaults; blocked extensions are added to
// the default block list.
type ValidationConfig struct {
	MaxFileSize       int64    `mapstructure:"max_file_size" yaml:"max_file_size,omitempty"`
	AllowedMimeTypes  []string `mapstructure:"allowed_mime_types" yaml:"allowed_mime_types,omitempty"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions,omitempty"`
	BlockedExtensions []string `mapstructure:"blocked_extensions" yaml:"blocked_extensions,omitempty"`
}

// Validator builds the filevalidator for c.
func (c ValidationConfig) Validator() filevalidator.Validator {
	constraints := filevalidator.DefaultConstraints()

	if c.MaxFileSize > 0 {
		constraints.MaxFileSize = c.MaxFileSize
	}
	if len(c.AllowedMimeTypes) > 0 {
		constraints.AcceptedTypes = c.AllowedMimeTypes
	}
	if len(c.AllowedExtensions) > 0 {
		constraints.AllowedExts = c.AllowedExtensions
	}
	constraints.BlockedExts = append(constraints.BlockedExts, c.BlockedExtensions...)

	return filevalidator.New(constraints)
}

// Decorations lists the adapter decorators to stack on a backend. Nil and
// zero fields are skipped.
type Decorations struct {
	Breaker       *BreakerConfig    `mapstructure:"breaker" yaml:"breaker,omitempty"`
	RateLimit     *RateLimitConfig  `mapstructure:"rate_limit" yaml:"rate_limit,omitempty"`
	EncryptionKey string            `mapstructure:"encryption_key" yaml:"encryption_key,omitempty" validate:"omitempty,base64"`
	Validation    *ValidationConfig `mapstructure:"validation" yaml:"validation,omitempty"`
	ReadOnly      bool              `mapstructure:"read_only" yaml:"read_only,omitempty"`
	Tracing       bool              `mapstructure:"tracing" yaml:"tracing,omitempty"`
}

// Apply wraps adapter from the backend outwards: circuit breaker, rate
// limit, encryption, validation, read-only, tracing. name labels the
// breaker and the spans.
func (d Decorations) Apply(adapter Adapter, name string, logger *slog.Logger) (Adapter, error) {
	if d.Breaker != nil {
		cfg := *d.Breaker
		if cfg.Name == "" {
			cfg.Name = "vfskit:" + name
		}
		adapter = NewCircuitBreaker(adapter, cfg, logger)
	}

	if d.RateLimit != nil && d.RateLimit.RequestsPerSecond > 0 {
		adapter = NewRateLimited(adapter, *d.RateLimit)
	}

	if d.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(d.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid encryption key: %v", ErrInvalidConfig, err)
		}
		enc, err := NewEncrypted(adapter, key)
		if err != nil {
			return nil, fmt.Errorf("failed to create encrypted adapter: %w", err)
		}
		adapter = enc
	}

	if d.Validation != nil {
		adapter = NewValidated(adapter, d.Validation.Validator())
	}

	if d.ReadOnly {
		adapter = NewReadOnly(adapter)
	}

	if d.Tracing {
		adapter = NewTraced(adapter, WithBackendName(name))
	}

	return adapter, nil
}
