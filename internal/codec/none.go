package codec

type noneCodec struct{}

func (noneCodec) CompressBound(inputSize, typeSize int) int { return inputSize }

func (noneCodec) Compress(level int, input, output []byte) (int, error) {
	return copy(output, input), nil
}

func (noneCodec) Decompress(input, output []byte) (int, error) {
	return copy(output, input), nil
}
