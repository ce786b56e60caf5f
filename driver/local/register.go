package local

import (
	"context"

	"github.com/gobeaver/vfskit"
)

func init() {
	vfskit.RegisterDriver("local", func(_ context.Context, opts vfskit.DriverOptions) (vfskit.Adapter, error) {
		var cfg Config
		if err := opts.Decode(&cfg); err != nil {
			return nil, err
		}
		return New(cfg)
	})
}
