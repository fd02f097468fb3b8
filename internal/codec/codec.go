// Package codec implements the engine's tile-payload compressors: a single
// registry keyed by schema.Compressor, dispatching to one Codec
// implementation per variant. Each codec operates on a single tile
// payload at a time; none of them own files.
package codec

import (
	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/schema"
)

// DefaultLevel is the sentinel meaning "codec default".
const DefaultLevel = -1

// Codec is the trait every compressor variant implements.
type Codec interface {
	// CompressBound returns an upper bound on the compressed size of an
	// input of inputSize bytes holding values of typeSize bytes each.
	CompressBound(inputSize, typeSize int) int

	// Compress writes the compressed form of input into output (which must
	// be at least CompressBound(len(input), typeSize) bytes) and returns the
	// number of bytes written.
	Compress(level int, input []byte, output []byte) (int, error)

	// Decompress writes the decompressed form of input into output and
	// returns the number of bytes written. output must be sized exactly to
	// the known decompressed length (book-keeping records compressed size;
	// the tile's cell/type count gives the decompressed size).
	Decompress(input []byte, output []byte) (int, error)
}

// For selects the Codec implementation for a compressor, datatype, and
// per-value byte width. dt/typeSize matter only for DoubleDelta (integer
// types only) and the byte-shuffle variants (fixed-width values).
func For(c schema.Compressor, dt schema.Datatype, typeSize int) (Codec, error) {
	switch c {
	case schema.CompressorNone:
		return noneCodec{}, nil
	case schema.CompressorRLE:
		return rleCodec{typeSize: typeSize}, nil
	case schema.CompressorGzip:
		return gzipCodec{}, nil
	case schema.CompressorZstd:
		return zstdCodec{}, nil
	case schema.CompressorLz4:
		return lz4Codec{}, nil
	case schema.CompressorBzip2:
		return bzip2Codec{}, nil
	case schema.CompressorDoubleDelta:
		if !dt.IsInteger() {
			return nil, engineerr.New(engineerr.CompressionError, "double-delta codec requires an integer datatype, got %s", dt)
		}
		return doubleDeltaCodec{typeSize: typeSize, signed: dt.IsSigned()}, nil
	case schema.CompressorByteShuffleGzip:
		return byteShuffleCodec{typeSize: typeSize, inner: gzipCodec{}}, nil
	case schema.CompressorByteShuffleZstd:
		return byteShuffleCodec{typeSize: typeSize, inner: zstdCodec{}}, nil
	default:
		return nil, engineerr.New(engineerr.CompressionError, "unknown compressor %v", c)
	}
}
