package vfskit

import (
	"log/slog"
)

// Option sets a value on a per-call Config.
type Option func(*Config)

// WithVisibility sets the visibility of written files and created directories.
func WithVisibility(v Visibility) Option {
	return func(c *Config) {
		c.Set(KeyVisibility, v)
	}
}

// WithMimetype overrides the mimetype an adapter would otherwise guess.
func WithMimetype(mimetype string) Option {
	return func(c *Config) {
		c.Set(KeyMimetype, mimetype)
	}
}

// WithDisableAsserts skips the presence and absence checks for one call.
// The adapter's own error semantics apply instead.
func WithDisableAsserts() Option {
	return func(c *Config) {
		c.Set(KeyDisableAsserts, true)
	}
}

// WithSetting sets an arbitrary key, for adapter specific settings.
func WithSetting(key string, value any) Option {
	return func(c *Config) {
		c.Set(key, value)
	}
}

// NewConfigFromOptions builds a Config from options.
func NewConfigFromOptions(opts ...Option) *Config {
	c := NewConfig(nil)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FilesystemOption configures a Filesystem at construction.
type FilesystemOption func(*Filesystem)

// WithConfig sets the facade level Config every per-call Config falls back to.
func WithConfig(cfg *Config) FilesystemOption {
	return func(fs *Filesystem) {
		if cfg != nil {
			fs.config = cfg
		}
	}
}

// WithLogger sets the logger adapter failures are reported to.
func WithLogger(logger *slog.Logger) FilesystemOption {
	return func(fs *Filesystem) {
		if logger != nil {
			fs.logger = logger
		}
	}
}

// WithPlugins registers plugins on the Filesystem.
func WithPlugins(plugins ...Plugin) FilesystemOption {
	return func(fs *Filesystem) {
		for _, p := range plugins {
			fs.plugins.add(p)
		}
	}
}

// MountOption configures a MountManager.
type MountOption func(*MountManager)

// WithMountLogger sets the MountManager logger.
func WithMountLogger(logger *slog.Logger) MountOption {
	return func(m *MountManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMountPlugins registers manager level plugins.
func WithMountPlugins(plugins ...Plugin) MountOption {
	return func(m *MountManager) {
		for _, p := range plugins {
			m.plugins.add(p)
		}
	}
}
