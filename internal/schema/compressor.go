package schema

import "fmt"

// Compressor identifies a tile-payload codec variant, stored in the
// schema's attribute block. It lives in this
// package (rather than internal/codec) because it is schema metadata; the
// codec package depends on schema, not the other way around.
type Compressor uint8

const (
	CompressorNone Compressor = iota
	CompressorRLE
	CompressorGzip
	CompressorZstd
	CompressorLz4
	CompressorBzip2
	CompressorDoubleDelta
	CompressorByteShuffleGzip
	CompressorByteShuffleZstd
)

func (c Compressor) String() string {
	switch c {
	case CompressorNone:
		return "none"
	case CompressorRLE:
		return "rle"
	case CompressorGzip:
		return "gzip"
	case CompressorZstd:
		return "zstd"
	case CompressorLz4:
		return "lz4"
	case CompressorBzip2:
		return "bzip2"
	case CompressorDoubleDelta:
		return "double-delta"
	case CompressorByteShuffleGzip:
		return "byteshuffle-gzip"
	case CompressorByteShuffleZstd:
		return "byteshuffle-zstd"
	default:
		return fmt.Sprintf("compressor(%d)", uint8(c))
	}
}

func ParseCompressor(s string) (Compressor, error) {
	switch s {
	case "none":
		return CompressorNone, nil
	case "rle":
		return CompressorRLE, nil
	case "gzip":
		return CompressorGzip, nil
	case "zstd":
		return CompressorZstd, nil
	case "lz4":
		return CompressorLz4, nil
	case "bzip2":
		return CompressorBzip2, nil
	case "double-delta":
		return CompressorDoubleDelta, nil
	case "byteshuffle-gzip":
		return CompressorByteShuffleGzip, nil
	case "byteshuffle-zstd":
		return CompressorByteShuffleZstd, nil
	default:
		return 0, fmt.Errorf("unsupported compressor %q", s)
	}
}
