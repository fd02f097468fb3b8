package codec

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"

	"github.com/gridarray/engine/internal/engineerr"
)

// bzip2Codec wraps dsnet/compress/bzip2, which (unlike the standard
// library's decompress-only compress/bzip2) implements the encoder too.
type bzip2Codec struct{}

func (bzip2Codec) CompressBound(inputSize, typeSize int) int {
	return inputSize + inputSize/100 + 600
}

func (bzip2Codec) Compress(level int, input, output []byte) (int, error) {
	opts := &bzip2.WriterConfig{}
	if level != DefaultLevel {
		opts.Level = level
	}
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, opts)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "bzip2: create writer")
	}
	if _, err := w.Write(input); err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "bzip2: write")
	}
	if err := w.Close(); err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "bzip2: close")
	}
	if buf.Len() > len(output) {
		return 0, engineerr.New(engineerr.BufferOverflow, "bzip2: output buffer too small")
	}
	return copy(output, buf.Bytes()), nil
}

func (bzip2Codec) Decompress(input, output []byte) (int, error) {
	r, err := bzip2.NewReader(bytes.NewReader(input), nil)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "bzip2: create reader")
	}
	defer r.Close()
	n, err := io.ReadFull(r, output)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "bzip2: read")
	}
	return n, nil
}
