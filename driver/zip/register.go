package zip

import (
	"context"
	"fmt"

	"github.com/gobeaver/vfskit"
)

func init() {
	vfskit.RegisterDriver("zip", func(_ context.Context, opts vfskit.DriverOptions) (vfskit.Adapter, error) {
		var cfg Config
		if err := opts.Decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: zip archive path is required", vfskit.ErrInvalidConfig)
		}
		return Open(cfg.Path)
	})
}
