package vfskit

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
)

func BenchmarkFilesystem(b *testing.B) {
	content := []byte(strings.Repeat("Hello, World! ", 100))
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))

	settings := map[string]Settings{
		"basic": {Driver: "mock", CaseSensitive: true},
		"with_validation": {
			Driver:            "mock",
			CaseSensitive:     true,
			ValidationEnabled: true,
			MaxFileSize:       10 * 1024 * 1024,
			AllowedMimeTypes:  "text/plain",
			AllowedExtensions: ".txt",
		},
		"with_encryption": {
			Driver:            "mock",
			CaseSensitive:     true,
			EncryptionEnabled: true,
			EncryptionKey:     key,
		},
		"with_all": {
			Driver:            "mock",
			CaseSensitive:     true,
			ValidationEnabled: true,
			MaxFileSize:       10 * 1024 * 1024,
			AllowedMimeTypes:  "text/plain",
			EncryptionEnabled: true,
			EncryptionKey:     key,
			DefaultVisibility: "private",
		},
	}

	for name, s := range settings {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			fs, err := New(ctx, &s)
			if err != nil {
				b.Fatalf("Failed to create filesystem: %v", err)
			}

			b.Run("write", func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					if _, err := fs.Write(ctx, "bench.txt", content); err != nil {
						b.Fatalf("Write failed: %v", err)
					}
					if _, err := fs.Delete(ctx, "bench.txt"); err != nil {
						b.Fatalf("Delete failed: %v", err)
					}
				}
			})

			_, _ = fs.Put(ctx, "bench.txt", content)

			b.Run("read", func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					if _, _, err := fs.Read(ctx, "bench.txt"); err != nil {
						b.Fatalf("Read failed: %v", err)
					}
				}
			})

			b.Run("has", func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					if _, err := fs.Has(ctx, "bench.txt"); err != nil {
						b.Fatalf("Has failed: %v", err)
					}
				}
			})

			b.Run("metadata", func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					if _, _, err := fs.GetMetadata(ctx, "bench.txt"); err != nil {
						b.Fatalf("GetMetadata failed: %v", err)
					}
				}
			})
		})
	}
}

func BenchmarkSettingsLoad(b *testing.B) {
	b.Setenv("BEAVER_VFSKIT_DRIVER", "s3")
	b.Setenv("BEAVER_VFSKIT_S3_BUCKET", "test-bucket")
	b.Setenv("BEAVER_VFSKIT_S3_REGION", "us-west-2")
	b.Setenv("BEAVER_VFSKIT_MAX_FILE_SIZE", "10485760")
	b.Setenv("BEAVER_VFSKIT_ALLOWED_MIME_TYPES", "image/jpeg,image/png,text/plain")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := GetSettings(); err != nil {
			b.Fatalf("GetSettings failed: %v", err)
		}
	}
}

func BenchmarkNormalizePath(b *testing.B) {
	paths := []string{
		"simple.txt",
		"/leading/and/trailing/",
		"a/./b/../c//d.txt",
		"  spaced\\windows\\path.txt",
	}

	for i := 0; i < b.N; i++ {
		for _, p := range paths {
			_, _ = NormalizePath(p)
		}
	}
}

func BenchmarkMountResolve(b *testing.B) {
	mm, err := NewMountManager(map[string]*Filesystem{
		"local": NewFilesystem(newMockAdapter()),
		"s3":    NewFilesystem(newMockAdapter()),
	})
	if err != nil {
		b.Fatal(err)
	}

	for i := 0; i < b.N; i++ {
		if _, _, _, err := mm.resolve("s3://reports/2024/q1.csv"); err != nil {
			b.Fatal(err)
		}
	}
}
