package codec

import (
	"github.com/pierrec/lz4/v4"

	"github.com/gridarray/engine/internal/engineerr"
)

// lz4Codec wraps pierrec/lz4/v4's block format.
type lz4Codec struct{}

func (lz4Codec) CompressBound(inputSize, typeSize int) int {
	return lz4.CompressBlockBound(inputSize)
}

func (c lz4Codec) Compress(level int, input, output []byte) (int, error) {
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(input, output)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "lz4: compress block")
	}
	if n == 0 && len(input) > 0 {
		return 0, engineerr.New(engineerr.CompressionError, "lz4: input incompressible within output buffer")
	}
	return n, nil
}

func (lz4Codec) Decompress(input, output []byte) (int, error) {
	n, err := lz4.UncompressBlock(input, output)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "lz4: uncompress block")
	}
	return n, nil
}
