package codec

import (
	"encoding/binary"

	"github.com/gridarray/engine/internal/engineerr"
)

// rleCodec run-length encodes fixed-width values as (run-length: u64,
// value: type_size bytes) pairs.
type rleCodec struct {
	typeSize int
}

const maxRunLength = 1<<64 - 1

func (c rleCodec) CompressBound(inputSize, typeSize int) int {
	cells := inputSize / typeSize
	return 2 * cells * (typeSize + 8)
}

func (c rleCodec) Compress(level int, input, output []byte) (int, error) {
	ts := c.typeSize
	if len(input)%ts != 0 {
		return 0, engineerr.New(engineerr.CompressionError, "rle: input length %d not a multiple of type size %d", len(input), ts)
	}
	n := len(input) / ts
	out := 0
	i := 0
	for i < n {
		val := input[i*ts : i*ts+ts]
		runLen := uint64(1)
		for i+int(runLen) < n && runLen < maxRunLength && equalBytes(input[(i+int(runLen))*ts:(i+int(runLen))*ts+ts], val) {
			runLen++
		}
		if out+8+ts > len(output) {
			return 0, engineerr.New(engineerr.BufferOverflow, "rle: output buffer too small")
		}
		binary.LittleEndian.PutUint64(output[out:out+8], runLen)
		copy(output[out+8:out+8+ts], val)
		out += 8 + ts
		i += int(runLen)
	}
	return out, nil
}

func (c rleCodec) Decompress(input, output []byte) (int, error) {
	ts := c.typeSize
	out := 0
	in := 0
	for in < len(input) {
		if in+8+ts > len(input) {
			return 0, engineerr.New(engineerr.FormatError, "rle: truncated run header")
		}
		runLen := binary.LittleEndian.Uint64(input[in : in+8])
		val := input[in+8 : in+8+ts]
		in += 8 + ts
		if out+int(runLen)*ts > len(output) {
			return 0, engineerr.New(engineerr.BufferOverflow, "rle: decompressed output exceeds destination buffer")
		}
		for r := uint64(0); r < runLen; r++ {
			copy(output[out:out+ts], val)
			out += ts
		}
	}
	return out, nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
