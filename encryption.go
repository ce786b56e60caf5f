package vfskit

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrDecrypt is returned when stored contents can not be decrypted with the
// configured key.
var ErrDecrypt = errors.New("failed to decrypt contents")

// EncryptedAdapter encrypts file contents with AES-256-GCM before they
// reach the wrapped adapter. Each object is stored as nonce || ciphertext.
//
// Sizes reported by metadata calls are translated back to plaintext sizes.
// The mimetype is guessed from the plaintext on write unless one is given,
// and GetMimetype sniffs the decrypted contents.
type EncryptedAdapter struct {
	AdapterWrapper
	aead cipher.AEAD
}

// NewEncrypted creates an encrypting wrapper. The key must be 32 bytes.
func NewEncrypted(adapter Adapter, key []byte) (*EncryptedAdapter, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: encryption key must be 32 bytes (got %d bytes)", ErrInvalidConfig, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &EncryptedAdapter{
		AdapterWrapper: AdapterWrapper{Adapter: adapter},
		aead:           gcm,
	}, nil
}

func (e *EncryptedAdapter) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *EncryptedAdapter) open(path string, ciphertext []byte) ([]byte, error) {
	ns := e.aead.NonceSize()
	if len(ciphertext) < ns+e.aead.Overhead() {
		return nil, &PathError{Op: "decrypt", Path: path, Err: ErrDecrypt}
	}
	plaintext, err := e.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, &PathError{Op: "decrypt", Path: path, Err: ErrDecrypt}
	}
	return plaintext, nil
}

// plainSize converts a stored size into the plaintext size.
func (e *EncryptedAdapter) plainSize(meta *Metadata) *Metadata {
	if meta == nil || meta.Size == nil || !meta.IsFile() {
		return meta
	}
	size := *meta.Size - int64(e.aead.NonceSize()+e.aead.Overhead())
	if size < 0 {
		size = 0
	}
	meta.Size = &size
	return meta
}

// withMimetype pins the mimetype of the plaintext so the backend does not
// sniff ciphertext.
func withMimetype(path string, contents []byte, cfg *Config) (*Config, error) {
	if cfg.Has(KeyMimetype) {
		return cfg, nil
	}
	return NewConfigWithFallback(map[string]any{KeyMimetype: GuessMimeType(path, contents)}, cfg)
}

func (e *EncryptedAdapter) Write(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	sealed, err := e.seal(contents)
	if err != nil {
		return nil, &PathError{Op: "encrypt", Path: path, Err: err}
	}
	cfg, err = withMimetype(path, contents, cfg)
	if err != nil {
		return nil, err
	}
	meta, err := e.Adapter.Write(ctx, path, sealed, cfg)
	return e.plainSize(meta), err
}

func (e *EncryptedAdapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	return WriteFromStream(ctx, e, path, r, cfg)
}

func (e *EncryptedAdapter) Update(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	sealed, err := e.seal(contents)
	if err != nil {
		return nil, &PathError{Op: "encrypt", Path: path, Err: err}
	}
	cfg, err = withMimetype(path, contents, cfg)
	if err != nil {
		return nil, err
	}
	meta, err := e.Adapter.Update(ctx, path, sealed, cfg)
	return e.plainSize(meta), err
}

func (e *EncryptedAdapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	return UpdateFromStream(ctx, e, path, r, cfg)
}

func (e *EncryptedAdapter) Read(ctx context.Context, path string) (*Object, error) {
	obj, err := e.Adapter.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	plaintext, err := e.open(path, obj.Contents)
	if err != nil {
		return nil, err
	}
	obj.Contents = plaintext
	obj.Size = Ptr(int64(len(plaintext)))
	return obj, nil
}

// ReadStream decrypts the whole object before handing out a stream; GCM
// authenticates the ciphertext as a unit.
func (e *EncryptedAdapter) ReadStream(ctx context.Context, path string) (*Object, error) {
	return StreamFromRead(ctx, e, path)
}

// GetMimetype reads and decrypts the whole object. Backends that sniff
// stored bytes would only ever see ciphertext.
func (e *EncryptedAdapter) GetMimetype(ctx context.Context, path string) (*Metadata, error) {
	obj, err := e.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	meta := obj.Metadata
	meta.Path = path
	meta.Type = TypeFile
	meta.Mimetype = Ptr(GuessMimeType(path, obj.Contents))
	return &meta, nil
}

func (e *EncryptedAdapter) ListContents(ctx context.Context, directory string, recursive bool) ([]Metadata, error) {
	listing, err := e.Adapter.ListContents(ctx, directory, recursive)
	if err != nil {
		return nil, err
	}
	for i := range listing {
		e.plainSize(&listing[i])
	}
	return listing, nil
}

func (e *EncryptedAdapter) GetMetadata(ctx context.Context, path string) (*Metadata, error) {
	meta, err := e.Adapter.GetMetadata(ctx, path)
	return e.plainSize(meta), err
}

func (e *EncryptedAdapter) GetSize(ctx context.Context, path string) (*Metadata, error) {
	meta, err := e.Adapter.GetSize(ctx, path)
	return e.plainSize(meta), err
}

var _ Adapter = (*EncryptedAdapter)(nil)
