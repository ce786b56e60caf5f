package vfskit_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gobeaver/vfskit"
	"github.com/gobeaver/vfskit/driver/memory"
	"github.com/gobeaver/vfskit/plugin"
)

func ExampleMountManager() {
	ctx := context.Background()

	// Memory stands in for local.New or s3.New here.
	mm, _ := vfskit.NewMountManager(map[string]*vfskit.Filesystem{
		"local": vfskit.NewFilesystem(memory.New()),
		"cloud": vfskit.NewFilesystem(memory.New()),
	})

	_, _ = mm.Write(ctx, "local://file.txt", []byte("local content"))
	_, _ = mm.Write(ctx, "cloud://file.txt", []byte("cloud content"))

	localData, _, _ := mm.Read(ctx, "local://file.txt")
	cloudData, _, _ := mm.Read(ctx, "cloud://file.txt")

	fmt.Println(string(localData))
	fmt.Println(string(cloudData))
	// Output:
	// local content
	// cloud content
}

func ExampleMountManager_Copy() {
	ctx := context.Background()

	mm, _ := vfskit.NewMountManager(map[string]*vfskit.Filesystem{
		"source": vfskit.NewFilesystem(memory.New()),
		"dest":   vfskit.NewFilesystem(memory.New()),
	})
	_, _ = mm.Write(ctx, "source://data.txt", []byte("important data"))

	ok, err := mm.Copy(ctx, "source://data.txt", "dest://backup/data.txt")
	if err != nil || !ok {
		fmt.Println("copy failed:", err)
		return
	}

	data, _, _ := mm.Read(ctx, "dest://backup/data.txt")
	fmt.Println(string(data))
	// Output:
	// important data
}

func ExampleFindFiles() {
	ctx := context.Background()
	fs := vfskit.NewFilesystem(memory.New())

	_, _ = fs.Write(ctx, "doc.txt", []byte("text"))
	_, _ = fs.Write(ctx, "image.jpg", []byte("jpeg"))
	_, _ = fs.Write(ctx, "albums/photo.jpg", []byte("jpeg"))
	_, _ = fs.Write(ctx, "data.json", []byte("json"))

	files, _ := vfskit.FindFiles(ctx, fs, "", vfskit.Glob("*.jpg"), true)
	for _, f := range files {
		fmt.Println(f.Path)
	}
	// Output:
	// albums/photo.jpg
	// image.jpg
}

func ExampleAnd() {
	ctx := context.Background()
	fs := vfskit.NewFilesystem(memory.New())

	_, _ = fs.Write(ctx, "small.txt", []byte("hi"))
	_, _ = fs.Write(ctx, "large.txt", []byte(strings.Repeat("x", 1000)))
	_, _ = fs.Write(ctx, "small.jpg", []byte("img"))

	selector := vfskit.And(
		vfskit.Glob("*.txt"),
		vfskit.FuncSelector(func(m *vfskit.Metadata) bool {
			return m.Size != nil && *m.Size < 100
		}),
	)

	files, _ := vfskit.FindFiles(ctx, fs, "", selector, false)
	for _, f := range files {
		fmt.Printf("%s (%d bytes)\n", f.Path, *f.Size)
	}
	// Output:
	// small.txt (2 bytes)
}

func ExampleFilesystem_Invoke() {
	ctx := context.Background()
	fs := vfskit.NewFilesystem(memory.New(), vfskit.WithPlugins(plugin.Defaults()...))

	_, _ = fs.Write(ctx, "reports/jan.csv", []byte("a,b"))
	_, _ = fs.Write(ctx, "reports/feb.csv", []byte("c,d"))

	paths, _ := fs.Invoke(ctx, "listPaths", "reports")
	fmt.Println(paths)
	// Output:
	// [reports/feb.csv reports/jan.csv]
}

func ExampleIsNotFound() {
	ctx := context.Background()
	fs := vfskit.NewFilesystem(memory.New())

	_, _, err := fs.Read(ctx, "missing.txt")
	fmt.Println(vfskit.IsNotFound(err))
	// Output:
	// true
}

func ExampleNewReadOnly() {
	ctx := context.Background()
	backend := memory.New()
	_, _ = vfskit.NewFilesystem(backend).Write(ctx, "config.json", []byte(`{}`))

	fs := vfskit.NewFilesystem(vfskit.NewReadOnly(backend))

	has, _ := fs.Has(ctx, "config.json")
	ok, _ := fs.Put(ctx, "config.json", []byte(`{"debug":true}`))
	fmt.Println("readable:", has)
	fmt.Println("written:", ok)
	// Output:
	// readable: true
	// written: false
}

func ExampleCalculateChecksums() {
	hashes, _ := vfskit.CalculateChecksums(strings.NewReader("hello world"), []vfskit.ChecksumAlgorithm{
		vfskit.ChecksumSHA256,
		vfskit.ChecksumMD5,
	})
	fmt.Println("SHA256:", hashes[vfskit.ChecksumSHA256])
	fmt.Println("MD5:", hashes[vfskit.ChecksumMD5])
	// Output:
	// SHA256: b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9
	// MD5: 5eb63bbbe01eeed093cb22bb8f5acdc3
}

func ExampleFilesystem_Watch() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := vfskit.NewFilesystem(memory.New())

	token, err := fs.Watch(ctx, "*.json")
	if err != nil {
		fmt.Println(err)
		return
	}
	changed := make(chan struct{})
	token.RegisterChangeCallback(func() { close(changed) })

	_, _ = fs.Write(ctx, "config.json", []byte(`{"version": 2}`))

	select {
	case <-changed:
		fmt.Println("config changed")
	case <-time.After(time.Second):
		fmt.Println("timeout")
	}
	// Output:
	// config changed
}
