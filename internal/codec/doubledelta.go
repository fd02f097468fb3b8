package codec

import (
	"encoding/binary"

	"github.com/gridarray/engine/internal/engineerr"
)

// doubleDeltaCodec implements the integer-only double-delta codec: the
// first value is stored verbatim, the first delta is stored
// zigzag-varint encoded, and every later value is stored as the zigzag
// varint of its second difference. Wire format tag 1.
type doubleDeltaCodec struct {
	typeSize int
	signed   bool
}

const doubleDeltaFormatTag = 1

func (c doubleDeltaCodec) CompressBound(inputSize, typeSize int) int {
	cells := inputSize / typeSize
	// tag(1) + v0(8) + up to 10 bytes per remaining cell (varint of int64).
	return 1 + 8 + cells*10
}

func (c doubleDeltaCodec) values(input []byte) ([]int64, error) {
	ts := c.typeSize
	if len(input)%ts != 0 {
		return nil, engineerr.New(engineerr.CompressionError, "double-delta: input length %d not a multiple of type size %d", len(input), ts)
	}
	n := len(input) / ts
	vals := make([]int64, n)
	for i := 0; i < n; i++ {
		vals[i] = decodeInt(input[i*ts:i*ts+ts], ts, c.signed)
	}
	return vals, nil
}

func (c doubleDeltaCodec) Compress(level int, input, output []byte) (int, error) {
	vals, err := c.values(input)
	if err != nil {
		return 0, err
	}
	if len(output) < 9 {
		return 0, engineerr.New(engineerr.BufferOverflow, "double-delta: output buffer too small")
	}
	output[0] = doubleDeltaFormatTag
	out := 1
	if len(vals) == 0 {
		return out, nil
	}
	binary.LittleEndian.PutUint64(output[out:out+8], uint64(vals[0]))
	out += 8
	if len(vals) == 1 {
		return out, nil
	}
	prevDelta := vals[1] - vals[0]
	n, err := putZigzagVarint(output[out:], prevDelta)
	if err != nil {
		return 0, err
	}
	out += n
	for i := 2; i < len(vals); i++ {
		delta := vals[i] - vals[i-1]
		second := delta - prevDelta
		n, err := putZigzagVarint(output[out:], second)
		if err != nil {
			return 0, err
		}
		out += n
		prevDelta = delta
	}
	return out, nil
}

func (c doubleDeltaCodec) Decompress(input, output []byte) (int, error) {
	ts := c.typeSize
	if len(input) == 0 || input[0] != doubleDeltaFormatTag {
		return 0, engineerr.New(engineerr.FormatError, "double-delta: unrecognized format tag")
	}
	n := len(output) / ts
	in := 1
	out := 0
	if n == 0 {
		return 0, nil
	}
	if in+8 > len(input) {
		return 0, engineerr.New(engineerr.FormatError, "double-delta: truncated first value")
	}
	v0 := int64(binary.LittleEndian.Uint64(input[in : in+8]))
	in += 8
	encodeInt(output[out:out+ts], ts, v0)
	out += ts
	if n == 1 {
		return out, nil
	}
	delta, read, err := getZigzagVarint(input[in:])
	if err != nil {
		return 0, err
	}
	in += read
	v1 := v0 + delta
	encodeInt(output[out:out+ts], ts, v1)
	out += ts
	prev := v1
	prevDelta := delta
	for i := 2; i < n; i++ {
		second, read, err := getZigzagVarint(input[in:])
		if err != nil {
			return 0, err
		}
		in += read
		prevDelta += second
		v := prev + prevDelta
		encodeInt(output[out:out+ts], ts, v)
		out += ts
		prev = v
	}
	return out, nil
}

func decodeInt(b []byte, ts int, signed bool) int64 {
	var u uint64
	for i := 0; i < ts; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	if !signed {
		return int64(u)
	}
	// sign-extend from ts*8 bits
	shift := uint(64 - 8*ts)
	return int64(u<<shift) >> shift
}

func encodeInt(b []byte, ts int, v int64) {
	u := uint64(v)
	for i := 0; i < ts; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func putZigzagVarint(buf []byte, v int64) (int, error) {
	zz := uint64((v << 1) ^ (v >> 63))
	n := binary.PutUvarint(buf, zz)
	if n == 0 {
		return 0, engineerr.New(engineerr.BufferOverflow, "double-delta: output buffer too small for varint")
	}
	return n, nil
}

func getZigzagVarint(buf []byte) (int64, int, error) {
	zz, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, engineerr.New(engineerr.FormatError, "double-delta: truncated varint")
	}
	v := int64(zz>>1) ^ -int64(zz&1)
	return v, n, nil
}
