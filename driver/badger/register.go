package badger

import (
	"context"

	"github.com/gobeaver/vfskit"
)

func init() {
	vfskit.RegisterDriver("badger", func(_ context.Context, opts vfskit.DriverOptions) (vfskit.Adapter, error) {
		var cfg Config
		if err := opts.Decode(&cfg); err != nil {
			return nil, err
		}
		return Open(cfg)
	})
}
