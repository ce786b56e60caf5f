package ftp

import (
	"context"

	"github.com/gobeaver/vfskit"
)

func init() {
	vfskit.RegisterDriver("ftp", factory(false))
	vfskit.RegisterDriver("ftpd", factory(true))
}

func factory(ftpd bool) vfskit.DriverFactory {
	return func(_ context.Context, opts vfskit.DriverOptions) (vfskit.Adapter, error) {
		var cfg Config
		if err := opts.Decode(&cfg); err != nil {
			return nil, err
		}
		cfg.Ftpd = cfg.Ftpd || ftpd
		return New(cfg)
	}
}
