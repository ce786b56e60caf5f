package vfskit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// MountTable describes a set of mounts, usually read from a YAML, TOML or
// JSON file with LoadMountConfig.
//
//	logging:
//	  level: debug
//	mounts:
//	  - prefix: local
//	    driver: local
//	    options:
//	      root: /srv/files
//	  - prefix: archive
//	    driver: s3
//	    options:
//	      bucket: backups
//	    decorate:
//	      read_only: true
type MountTable struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Mounts  []MountConfig `mapstructure:"mounts" yaml:"mounts" validate:"required,min=1,dive"`
}

// LoggingConfig selects the slog handler shared by every mount.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// MountConfig is one entry of a MountTable.
type MountConfig struct {
	Prefix  string        `mapstructure:"prefix" yaml:"prefix" validate:"required"`
	Driver  string        `mapstructure:"driver" yaml:"driver" validate:"required"`
	Options DriverOptions `mapstructure:"options" yaml:"options,omitempty"`

	// Facade defaults. CaseSensitive is left unset to keep the facade default.
	Visibility     string `mapstructure:"visibility" yaml:"visibility,omitempty" validate:"omitempty,oneof=public private"`
	DisableAsserts bool   `mapstructure:"disable_asserts" yaml:"disable_asserts,omitempty"`
	CaseSensitive  *bool  `mapstructure:"case_sensitive" yaml:"case_sensitive,omitempty"`

	Decorate Decorations `mapstructure:"decorate" yaml:"decorate,omitempty"`
}

// FacadeConfig returns the Filesystem config of the mount.
func (m MountConfig) FacadeConfig() *Config {
	cfg := NewConfig(map[string]any{KeyDisableAsserts: m.DisableAsserts})
	if m.Visibility != "" {
		cfg.Set(KeyVisibility, m.Visibility)
	}
	if m.CaseSensitive != nil {
		cfg.Set(KeyCaseSensitive, *m.CaseSensitive)
	}
	return cfg
}

var validate = validator.New()

// LoadMountConfig reads a mount table file. The format follows the file
// extension. Scalar keys can be overridden from the environment with the
// VFSKIT_ prefix, for example VFSKIT_LOGGING_LEVEL=debug.
func LoadMountConfig(path string) (*MountTable, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: mount config path is empty", ErrInvalidConfig)
	}

	v := viper.New()
	v.SetEnvPrefix("VFSKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read mount config: %w", err)
	}

	var table MountTable
	if err := v.Unmarshal(&table); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mount config: %w", err)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("mount config validation failed: %w", err)
	}
	return &table, nil
}

// Validate checks struct tags, then the rules tags can not express.
func (t *MountTable) Validate() error {
	if err := validate.Struct(t); err != nil {
		return formatValidationError(err)
	}

	seen := make(map[string]bool, len(t.Mounts))
	for i, m := range t.Mounts {
		if strings.Contains(m.Prefix, SchemeSeparator) {
			return fmt.Errorf("mounts[%d]: prefix %q must not contain %q", i, m.Prefix, SchemeSeparator)
		}
		if seen[m.Prefix] {
			return fmt.Errorf("mounts[%d]: duplicate prefix %q", i, m.Prefix)
		}
		seen[m.Prefix] = true
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%w: %s: validation failed on '%s' tag (value: %v)",
			ErrInvalidConfig, e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// BuildMountManager creates, decorates and mounts every entry of t. Drivers
// must be registered beforehand. Filesystems created before a failure are
// closed.
func BuildMountManager(ctx context.Context, t *MountTable) (*MountManager, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	logger := newLogger(t.Logging.Level, t.Logging.Format)
	filesystems := make(map[string]*Filesystem, len(t.Mounts))

	fail := func(err error) (*MountManager, error) {
		for _, fs := range filesystems {
			_ = fs.Close()
		}
		return nil, err
	}

	for _, m := range t.Mounts {
		adapter, err := CreateAdapter(ctx, m.Driver, m.Options)
		if err != nil {
			return fail(fmt.Errorf("mount %s: failed to create driver: %w", m.Prefix, err))
		}

		decorated, err := m.Decorate.Apply(adapter, m.Prefix, logger)
		if err != nil {
			if c, ok := adapter.(io.Closer); ok {
				_ = c.Close()
			}
			return fail(fmt.Errorf("mount %s: %w", m.Prefix, err))
		}

		filesystems[m.Prefix] = NewFilesystem(decorated,
			WithConfig(m.FacadeConfig()),
			WithLogger(logger.With("mount", m.Prefix, "driver", m.Driver)),
		)
	}

	mm, err := NewMountManager(filesystems, WithMountLogger(logger))
	if err != nil {
		return fail(err)
	}
	logger.Debug("mount table loaded", "mounts", mm.Prefixes())
	return mm, nil
}

// WriteMountConfig encodes t as YAML.
func WriteMountConfig(w io.Writer, t *MountTable) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("failed to encode mount config: %w", err)
	}
	return enc.Close()
}
