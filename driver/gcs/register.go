package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/gobeaver/vfskit"
)

// Config is the option block of the gcs driver.
type Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
	ProjectID       string `mapstructure:"project_id"`
	DisableACL      bool   `mapstructure:"disable_acl"`

	// Endpoint points the client at an emulator; requests are then sent
	// without authentication.
	Endpoint string `mapstructure:"endpoint"`
}

func init() {
	vfskit.RegisterDriver("gcs", func(ctx context.Context, opts vfskit.DriverOptions) (vfskit.Adapter, error) {
		var cfg Config
		if err := opts.Decode(&cfg); err != nil {
			return nil, err
		}
		return NewFromConfig(ctx, cfg)
	})
}

// NewFromConfig creates a storage client from cfg, falling back to
// application default credentials. The adapter closes the client.
func NewFromConfig(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket is required", vfskit.ErrInvalidConfig)
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.ProjectID != "" {
		clientOpts = append(clientOpts, option.WithQuotaProject(cfg.ProjectID))
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	opts := []AdapterOption{WithPrefix(cfg.Prefix)}
	if cfg.DisableACL {
		opts = append(opts, WithoutACL())
	}
	a := New(client, cfg.Bucket, opts...)
	a.owned = client
	return a, nil
}
