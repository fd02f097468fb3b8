package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/gridarray/engine/internal/engineerr"
)

// gzipCodec wraps klauspost/compress's gzip, a faster drop-in for the
// standard library's.
type gzipCodec struct{}

func (gzipCodec) CompressBound(inputSize, typeSize int) int {
	return inputSize + inputSize/512 + 64
}

func (gzipCodec) Compress(level int, input, output []byte) (int, error) {
	if level == DefaultLevel {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "gzip: create writer")
	}
	if _, err := w.Write(input); err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "gzip: write")
	}
	if err := w.Close(); err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "gzip: close")
	}
	if buf.Len() > len(output) {
		return 0, engineerr.New(engineerr.BufferOverflow, "gzip: output buffer too small")
	}
	return copy(output, buf.Bytes()), nil
}

func (gzipCodec) Decompress(input, output []byte) (int, error) {
	r, err := gzip.NewReader(bytes.NewReader(input))
	if err != nil {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "gzip: create reader")
	}
	defer r.Close()
	n, err := io.ReadFull(r, output)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, engineerr.Wrap(engineerr.CompressionError, err, "gzip: read")
	}
	return n, nil
}
