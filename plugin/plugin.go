// Package plugin provides the stock vfskit plugins.
//
// Register them on a Filesystem or MountManager and call them by name:
//
//	fs := vfskit.NewFilesystem(adapter, vfskit.WithPlugins(plugin.Defaults()...))
//	files, err := fs.Invoke(ctx, "listFiles", "reports", true)
//
// On a MountManager the first argument carries the mount prefix:
//
//	mm.Invoke(ctx, "emptyDir", "s3://tmp")
package plugin

import (
	"github.com/gobeaver/vfskit"
)

// Defaults returns one instance of every stock plugin.
func Defaults() []vfskit.Plugin {
	return []vfskit.Plugin{
		&ForcedCopy{},
		&ForcedRename{},
		&EmptyDir{},
		&ListFiles{},
		&ListPaths{},
		&ListWith{},
		&GetWithMetadata{},
		&ListGlob{},
		&FindFiles{},
		NewChecksum(vfskit.ChecksumSHA256),
	}
}
