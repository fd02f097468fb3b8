package codec

import "github.com/gridarray/engine/internal/engineerr"

// byteShuffleCodec transposes fixed-width values byte-plane-wise before
// handing the result to an inner generic-entropy codec:
// grouping each value's Nth byte together improves the inner codec's
// run detection on typed numeric data.
type byteShuffleCodec struct {
	typeSize int
	inner    Codec
}

func (c byteShuffleCodec) CompressBound(inputSize, typeSize int) int {
	return c.inner.CompressBound(inputSize, typeSize) + typeSize
}

func (c byteShuffleCodec) shuffle(input []byte) ([]byte, error) {
	ts := c.typeSize
	if len(input)%ts != 0 {
		return nil, engineerr.New(engineerr.CompressionError, "byteshuffle: input length %d not a multiple of type size %d", len(input), ts)
	}
	n := len(input) / ts
	out := make([]byte, len(input))
	for plane := 0; plane < ts; plane++ {
		base := plane * n
		for i := 0; i < n; i++ {
			out[base+i] = input[i*ts+plane]
		}
	}
	return out, nil
}

func (c byteShuffleCodec) unshuffle(shuffled []byte, ts int) []byte {
	n := len(shuffled) / ts
	out := make([]byte, len(shuffled))
	for plane := 0; plane < ts; plane++ {
		base := plane * n
		for i := 0; i < n; i++ {
			out[i*ts+plane] = shuffled[base+i]
		}
	}
	return out
}

func (c byteShuffleCodec) Compress(level int, input, output []byte) (int, error) {
	shuffled, err := c.shuffle(input)
	if err != nil {
		return 0, err
	}
	if len(output) < 1 {
		return 0, engineerr.New(engineerr.BufferOverflow, "byteshuffle: output buffer too small")
	}
	output[0] = byte(c.typeSize)
	n, err := c.inner.Compress(level, shuffled, output[1:])
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

func (c byteShuffleCodec) Decompress(input, output []byte) (int, error) {
	if len(input) < 1 {
		return 0, engineerr.New(engineerr.FormatError, "byteshuffle: missing type-size header byte")
	}
	ts := int(input[0])
	shuffled := make([]byte, len(output))
	n, err := c.inner.Decompress(input[1:], shuffled)
	if err != nil {
		return 0, err
	}
	unshuffled := c.unshuffle(shuffled[:n], ts)
	return copy(output, unshuffled), nil
}
