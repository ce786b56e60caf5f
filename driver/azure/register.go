package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/gobeaver/vfskit"
)

// Config is the option block of the azure driver.
type Config struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	Prefix      string `mapstructure:"prefix"`

	// Endpoint overrides the service URL, e.g. for Azurite.
	Endpoint string `mapstructure:"endpoint"`
}

func init() {
	vfskit.RegisterDriver("azure", func(_ context.Context, opts vfskit.DriverOptions) (vfskit.Adapter, error) {
		var cfg Config
		if err := opts.Decode(&cfg); err != nil {
			return nil, err
		}
		return NewFromConfig(cfg)
	})
}

// serviceURL returns the blob service endpoint for cfg.
func (cfg Config) serviceURL() string {
	if cfg.Endpoint != "" {
		return strings.TrimSuffix(cfg.Endpoint, "/") + "/"
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
}

// NewFromConfig builds a container client from cfg. Without an account key
// the container is accessed anonymously.
func NewFromConfig(cfg Config) (*Adapter, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("%w: azure account name is required", vfskit.ErrInvalidConfig)
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("%w: azure container name is required", vfskit.ErrInvalidConfig)
	}

	var (
		client *container.Client
		err    error
	)
	if cfg.AccountKey == "" {
		client, err = container.NewClientWithNoCredential(cfg.serviceURL()+cfg.Container, nil)
	} else {
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create azure credential: %v", vfskit.ErrInvalidConfig, err)
		}
		var service *azblob.Client
		service, err = azblob.NewClientWithSharedKeyCredential(cfg.serviceURL(), cred, nil)
		if err == nil {
			client = service.ServiceClient().NewContainerClient(cfg.Container)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}

	return New(client, WithPrefix(cfg.Prefix)), nil
}
