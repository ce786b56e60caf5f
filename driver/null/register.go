package null

import (
	"context"

	"github.com/gobeaver/vfskit"
)

func init() {
	vfskit.RegisterDriver("null", func(context.Context, vfskit.DriverOptions) (vfskit.Adapter, error) {
		return New(), nil
	})
}
