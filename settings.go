package vfskit

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gobeaver/beaver-kit/config"
)

// Settings is the environment driven configuration of a single Filesystem.
// Field tags follow beaver-kit config: with the default "BEAVER_" prefix the
// driver is read from BEAVER_VFSKIT_DRIVER.
type Settings struct {
	// Driver names a registered driver (local, memory, null, ftp, ftpd, sftp,
	// s3, gcs, azure, badger, sqlite, zip).
	Driver string `env:"VFSKIT_DRIVER,default:local"`

	// Local driver configuration
	LocalRoot  string `env:"VFSKIT_LOCAL_ROOT,default:./storage"`
	LocalLinks string `env:"VFSKIT_LOCAL_LINKS,default:skip"` // skip or disallow

	// Memory driver configuration
	MemoryMaxSize int64 `env:"VFSKIT_MEMORY_MAX_SIZE,default:0"`

	// S3 driver configuration
	S3Region          string `env:"VFSKIT_S3_REGION,default:us-east-1"`
	S3Bucket          string `env:"VFSKIT_S3_BUCKET"`
	S3Prefix          string `env:"VFSKIT_S3_PREFIX"`
	S3Endpoint        string `env:"VFSKIT_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"VFSKIT_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"VFSKIT_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"VFSKIT_S3_FORCE_PATH_STYLE,default:false"`
	S3DisableACL      bool   `env:"VFSKIT_S3_DISABLE_ACL,default:false"`

	// GCS (Google Cloud Storage) driver configuration
	GCSBucket          string `env:"VFSKIT_GCS_BUCKET"`
	GCSPrefix          string `env:"VFSKIT_GCS_PREFIX"`
	GCSCredentialsFile string `env:"VFSKIT_GCS_CREDENTIALS_FILE"` // Path to service account JSON
	GCSProjectID       string `env:"VFSKIT_GCS_PROJECT_ID"`
	GCSEndpoint        string `env:"VFSKIT_GCS_ENDPOINT"`
	GCSDisableACL      bool   `env:"VFSKIT_GCS_DISABLE_ACL,default:false"`

	// Azure Blob Storage driver configuration
	AzureAccountName   string `env:"VFSKIT_AZURE_ACCOUNT_NAME"`
	AzureAccountKey    string `env:"VFSKIT_AZURE_ACCOUNT_KEY"`
	AzureContainerName string `env:"VFSKIT_AZURE_CONTAINER_NAME"`
	AzurePrefix        string `env:"VFSKIT_AZURE_PREFIX"`
	AzureEndpoint      string `env:"VFSKIT_AZURE_ENDPOINT"` // Optional custom endpoint

	// SFTP driver configuration
	SFTPHost       string `env:"VFSKIT_SFTP_HOST"`
	SFTPPort       int    `env:"VFSKIT_SFTP_PORT,default:22"`
	SFTPUsername   string `env:"VFSKIT_SFTP_USERNAME"`
	SFTPPassword   string `env:"VFSKIT_SFTP_PASSWORD"`
	SFTPPrivateKey string `env:"VFSKIT_SFTP_PRIVATE_KEY"` // Path to private key file
	SFTPRoot       string `env:"VFSKIT_SFTP_ROOT"`

	// FTP driver configuration, shared by the ftp and ftpd drivers
	FTPHost     string `env:"VFSKIT_FTP_HOST"`
	FTPPort     int    `env:"VFSKIT_FTP_PORT,default:21"`
	FTPUsername string `env:"VFSKIT_FTP_USERNAME,default:anonymous"`
	FTPPassword string `env:"VFSKIT_FTP_PASSWORD"`
	FTPRoot     string `env:"VFSKIT_FTP_ROOT"`
	FTPTimeout  string `env:"VFSKIT_FTP_TIMEOUT,default:30s"`

	// Embedded store drivers
	BadgerDir      string `env:"VFSKIT_BADGER_DIR"`
	BadgerInMemory bool   `env:"VFSKIT_BADGER_IN_MEMORY,default:false"`
	SQLitePath     string `env:"VFSKIT_SQLITE_PATH"`
	ZipPath        string `env:"VFSKIT_ZIP_PATH"`

	// Facade defaults
	DefaultVisibility string `env:"VFSKIT_DEFAULT_VISIBILITY"`
	DisableAsserts    bool   `env:"VFSKIT_DISABLE_ASSERTS,default:false"`
	CaseSensitive     bool   `env:"VFSKIT_CASE_SENSITIVE,default:true"`
	ReadOnly          bool   `env:"VFSKIT_READ_ONLY,default:false"`

	// Logging
	LogLevel  string `env:"VFSKIT_LOG_LEVEL,default:info"`
	LogFormat string `env:"VFSKIT_LOG_FORMAT,default:text"`

	// File validation
	ValidationEnabled bool   `env:"VFSKIT_VALIDATION_ENABLED,default:false"`
	MaxFileSize       int64  `env:"VFSKIT_MAX_FILE_SIZE,default:10485760"` // 10MB default
	AllowedMimeTypes  string `env:"VFSKIT_ALLOWED_MIME_TYPES"`             // comma-separated
	AllowedExtensions string `env:"VFSKIT_ALLOWED_EXTENSIONS"`             // comma-separated
	BlockedExtensions string `env:"VFSKIT_BLOCKED_EXTENSIONS"`             // comma-separated

	// Encryption settings
	EncryptionEnabled bool   `env:"VFSKIT_ENCRYPTION_ENABLED,default:false"`
	EncryptionKey     string `env:"VFSKIT_ENCRYPTION_KEY"` // base64, 32 bytes

	// Resilience
	BreakerEnabled     bool   `env:"VFSKIT_BREAKER_ENABLED,default:false"`
	BreakerMaxFailures int    `env:"VFSKIT_BREAKER_MAX_FAILURES,default:5"`
	BreakerTimeout     string `env:"VFSKIT_BREAKER_TIMEOUT,default:30s"`
	RateLimit          int    `env:"VFSKIT_RATE_LIMIT,default:0"` // calls per second, 0 is unlimited
	RateBurst          int    `env:"VFSKIT_RATE_BURST,default:0"`

	// Tracing
	TracingEnabled  bool   `env:"VFSKIT_TRACING_ENABLED,default:false"`
	TracingExporter string `env:"VFSKIT_TRACING_EXPORTER,default:noop"`
}

// GetSettings returns settings loaded from environment
func GetSettings() (*Settings, error) {
	s := &Settings{}
	if err := config.Load(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the selected driver has what it needs.
func (s *Settings) Validate() error {
	if s.Driver == "" {
		return fmt.Errorf("%w: driver is required", ErrInvalidConfig)
	}

	var missing string
	switch s.Driver {
	case "local":
		if s.LocalRoot == "" {
			missing = "local root"
		}
	case "s3":
		if s.S3Bucket == "" {
			missing = "S3 bucket"
		}
	case "gcs":
		if s.GCSBucket == "" {
			missing = "GCS bucket"
		}
	case "azure":
		if s.AzureAccountName == "" || s.AzureContainerName == "" {
			missing = "Azure account name and container"
		}
	case "sftp":
		if s.SFTPHost == "" {
			missing = "SFTP host"
		}
	case "ftp", "ftpd":
		if s.FTPHost == "" {
			missing = "FTP host"
		}
	case "badger":
		if s.BadgerDir == "" && !s.BadgerInMemory {
			missing = "badger directory"
		}
	case "sqlite":
		if s.SQLitePath == "" {
			missing = "sqlite path"
		}
	case "zip":
		if s.ZipPath == "" {
			missing = "zip archive path"
		}
	}
	if missing != "" {
		return fmt.Errorf("%w: %s is required for %s driver", ErrInvalidConfig, missing, s.Driver)
	}

	if s.DefaultVisibility != "" && !Visibility(s.DefaultVisibility).Valid() {
		return fmt.Errorf("%w: unknown visibility %q", ErrInvalidConfig, s.DefaultVisibility)
	}
	if s.BreakerTimeout != "" {
		if _, err := time.ParseDuration(s.BreakerTimeout); err != nil {
			return fmt.Errorf("%w: breaker timeout: %v", ErrInvalidConfig, err)
		}
	}
	if s.EncryptionEnabled && s.EncryptionKey == "" {
		return fmt.Errorf("%w: encryption key is required when encryption is enabled", ErrInvalidConfig)
	}
	return nil
}

// DriverOptions returns the option block of the selected driver, keyed the
// way the driver's Config decodes it.
func (s *Settings) DriverOptions() DriverOptions {
	switch s.Driver {
	case "local":
		return DriverOptions{"root": s.LocalRoot, "links": s.LocalLinks}
	case "memory":
		return DriverOptions{"max_size": s.MemoryMaxSize}
	case "s3":
		return DriverOptions{
			"region":            s.S3Region,
			"bucket":            s.S3Bucket,
			"prefix":            s.S3Prefix,
			"endpoint":          s.S3Endpoint,
			"access_key_id":     s.S3AccessKeyID,
			"secret_access_key": s.S3SecretAccessKey,
			"force_path_style":  s.S3ForcePathStyle,
			"disable_acl":       s.S3DisableACL,
		}
	case "gcs":
		return DriverOptions{
			"bucket":           s.GCSBucket,
			"prefix":           s.GCSPrefix,
			"credentials_file": s.GCSCredentialsFile,
			"project_id":       s.GCSProjectID,
			"endpoint":         s.GCSEndpoint,
			"disable_acl":      s.GCSDisableACL,
		}
	case "azure":
		return DriverOptions{
			"account_name": s.AzureAccountName,
			"account_key":  s.AzureAccountKey,
			"container":    s.AzureContainerName,
			"prefix":       s.AzurePrefix,
			"endpoint":     s.AzureEndpoint,
		}
	case "sftp":
		return DriverOptions{
			"host":        s.SFTPHost,
			"port":        s.SFTPPort,
			"username":    s.SFTPUsername,
			"password":    s.SFTPPassword,
			"private_key": s.SFTPPrivateKey,
			"root":        s.SFTPRoot,
		}
	case "ftp", "ftpd":
		return DriverOptions{
			"host":     s.FTPHost,
			"port":     s.FTPPort,
			"username": s.FTPUsername,
			"password": s.FTPPassword,
			"root":     s.FTPRoot,
			"timeout":  s.FTPTimeout,
		}
	case "badger":
		return DriverOptions{"dir": s.BadgerDir, "in_memory": s.BadgerInMemory}
	case "sqlite":
		return DriverOptions{"path": s.SQLitePath}
	case "zip":
		return DriverOptions{"path": s.ZipPath}
	default:
		return DriverOptions{}
	}
}

// FacadeConfig returns the facade level Config the settings describe.
func (s *Settings) FacadeConfig() *Config {
	cfg := NewConfig(map[string]any{
		KeyDisableAsserts: s.DisableAsserts,
		KeyCaseSensitive:  s.CaseSensitive,
	})
	if s.DefaultVisibility != "" {
		cfg.Set(KeyVisibility, s.DefaultVisibility)
	}
	return cfg
}

// Logger builds the slog logger described by LogLevel and LogFormat.
func (s *Settings) Logger() *slog.Logger {
	return newLogger(s.LogLevel, s.LogFormat)
}

// newLogger writes to stderr. Unknown levels fall back to info and any
// format other than json is text.
func newLogger(levelName, format string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Decorations returns the adapter decorators the settings enable.
func (s *Settings) Decorations() Decorations {
	d := Decorations{
		ReadOnly: s.ReadOnly,
		Tracing:  s.TracingEnabled,
	}
	if s.BreakerEnabled {
		timeout, _ := time.ParseDuration(s.BreakerTimeout)
		d.Breaker = &BreakerConfig{
			MaxFailures: uint32(max(s.BreakerMaxFailures, 0)),
			Timeout:     timeout,
		}
	}
	if s.RateLimit > 0 {
		d.RateLimit = &RateLimitConfig{
			RequestsPerSecond: float64(s.RateLimit),
			Burst:             s.RateBurst,
		}
	}
	if s.EncryptionEnabled {
		d.EncryptionKey = s.EncryptionKey
	}
	if s.ValidationEnabled {
		v := s.validation()
		d.Validation = &v
	}
	return d
}

func (s *Settings) validation() ValidationConfig {
	return ValidationConfig{
		MaxFileSize:       s.MaxFileSize,
		AllowedMimeTypes:  splitList(s.AllowedMimeTypes),
		AllowedExtensions: splitList(s.AllowedExtensions),
		BlockedExtensions: splitList(s.BlockedExtensions),
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
