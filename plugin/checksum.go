package plugin

import (
	"context"
	"fmt"

	"github.com/gobeaver/vfskit"
)

// Checksum hashes a file by streaming it. The algorithm can be overridden
// per call with a second argument.
//
//	fs.Invoke(ctx, "checksum", "path")           // string, default algorithm
//	fs.Invoke(ctx, "checksum", "path", "xxhash") // string
type Checksum struct {
	vfskit.BasePlugin
	algorithm vfskit.ChecksumAlgorithm
}

// NewChecksum returns a checksum plugin defaulting to algorithm.
func NewChecksum(algorithm vfskit.ChecksumAlgorithm) *Checksum {
	return &Checksum{algorithm: algorithm}
}

func (p *Checksum) Method() string { return "checksum" }

func (p *Checksum) Handle(ctx context.Context, args ...any) (any, error) {
	path, err := vfskit.StringArg(args, 0, "")
	if err != nil {
		return nil, err
	}
	algorithm, err := vfskit.StringArg(args, 1, string(p.algorithm))
	if err != nil {
		return nil, err
	}
	if algorithm == "" {
		algorithm = string(vfskit.ChecksumSHA256)
	}

	hasher, err := vfskit.NewStreamHasher(vfskit.ChecksumAlgorithm(algorithm))
	if err != nil {
		return nil, err
	}

	stream, ok, err := p.Filesystem().ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return false, nil
	}
	defer stream.Close()

	sum, err := hasher.Hash(stream)
	if err != nil {
		return nil, fmt.Errorf("checksum %s: %w", path, err)
	}
	return sum, nil
}
