// Package vfskit is a storage abstraction: one facade over local disks,
// object stores, remote servers and embedded databases, plus a mount manager
// that routes "scheme://path" URIs between them.
//
// # Adapters and the Filesystem facade
//
// Every backend implements [Adapter]. Adapters receive canonical paths
// (see [NormalizePath]) and report failures through errors. The
// [Filesystem] facade sits in front of an adapter, normalizes paths,
// enforces existence preconditions and turns adapter failures into a false
// result:
//
//	adapter, err := local.New(local.Config{Root: "./storage"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fs := vfskit.NewFilesystem(adapter)
//
//	ok, err := fs.Write(ctx, "hello.txt", []byte("Hello, World!"))
//	data, ok, err := fs.Read(ctx, "hello.txt")
//	listing, err := fs.ListContents(ctx, "", true)
//
// Write fails with [ErrFileExists] on an existing path and Update with
// [ErrFileNotFound] on a missing one; Put does either.
//
// # Drivers
//
// Drivers live under driver/ and register themselves by name on import:
// local, memory, null, ftp, ftpd, sftp, s3, gcs, azure, badger, sqlite and
// zip. [CreateAdapter] builds one from a name and an option map.
//
// # Mount Manager
//
// A [MountManager] binds filesystems to prefixes:
//
//	mm, err := vfskit.NewMountManager(map[string]*vfskit.Filesystem{
//	    "local": vfskit.NewFilesystem(localAdapter),
//	    "s3":    vfskit.NewFilesystem(s3Adapter),
//	})
//	mm.Copy(ctx, "local://report.pdf", "s3://archive/report.pdf")
//
// Mount tables can also be loaded from YAML, JSON or TOML with
// [LoadMountConfig] and built with [BuildMountManager].
//
// # Decorators
//
// Adapters stack: [NewReadOnly], [NewEncrypted], [NewValidated],
// [NewCircuitBreaker], [NewRateLimited] and [NewTraced] each
// wrap an Adapter and return one. [Decorations] applies them from
// configuration in a fixed order.
//
// # Plugins
//
// Plugins add named operations to a facade and are called with Invoke. The
// plugin package holds the stock set:
//
//	fs := vfskit.NewFilesystem(adapter, vfskit.WithPlugins(plugin.Defaults()...))
//	files, err := fs.Invoke(ctx, "listFiles", "reports", true)
//
// # Errors
//
// Errors wrap sentinels; use errors.Is or the helpers:
//
//	_, _, err := fs.Read(ctx, "missing.txt")
//	if vfskit.IsNotFound(err) {
//	    // ...
//	}
//
// # Configuration
//
// [New] builds a Filesystem from [Settings], which load from BEAVER_VFSKIT_*
// environment variables.
package vfskit
