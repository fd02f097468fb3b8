package codec

import (
	"github.com/klauspost/compress/zstd"

	"github.com/gridarray/engine/internal/engineerr"
)

// zstdCodec wraps klauspost/compress/zstd.
type zstdCodec struct{}

func (zstdCodec) CompressBound(inputSize, typeSize int) int {
	return inputSize + inputSize/256 + 64
}

func (zstdCodec) Compress(level int, input, output []byte) (int, error) {
	opts := []zstd.EOption{}
	if level != DefaultLevel {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "zstd: create encoder")
	}
	defer enc.Close()
	compressed := enc.EncodeAll(input, nil)
	if len(compressed) > len(output) {
		return 0, engineerr.New(engineerr.BufferOverflow, "zstd: output buffer too small")
	}
	return copy(output, compressed), nil
}

func (zstdCodec) Decompress(input, output []byte) (int, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "zstd: create decoder")
	}
	defer dec.Close()
	decompressed, err := dec.DecodeAll(input, make([]byte, 0, len(output)))
	if err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "zstd: decode")
	}
	return copy(output, decompressed), nil
}
