package bufpool

import "github.com/gridarray/engine/internal/engineerr"

// Buffer is a growable byte region with an explicit write cursor. Tile
// accumulators and fragment writers append to one per
// attribute as cells stream in.
type Buffer struct {
	data   []byte
	offset int
}

// NewBuffer returns an empty Buffer backed by a pooled slice of the given
// initial capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: Get(capacity)[:0]}
}

// Release returns the buffer's backing slice to the pool. The Buffer must
// not be used afterward.
func (b *Buffer) Release() {
	Put(b.data)
	b.data = nil
	b.offset = 0
}

// Size returns the number of bytes written so far.
func (b *Buffer) Size() int { return len(b.data) }

// Reset truncates the buffer to empty without releasing its backing
// storage, so the same allocation can accumulate the next tile.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.offset = 0
}

// Write appends p to the buffer, growing the backing slice if needed.
func (b *Buffer) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	need := len(b.data) + len(p)
	if need > cap(b.data) {
		grown := Get(need)
		copy(grown, b.data)
		Put(b.data[:cap(b.data)])
		b.data = grown[:len(b.data)]
	}
	b.data = append(b.data, p...)
}

// Bytes returns the written portion of the buffer. The slice is only
// valid until the next Write or Release.
func (b *Buffer) Bytes() []byte { return b.data }

// ConstBuffer is a borrowed read cursor over a byte slice the caller
// continues to own.
type ConstBuffer struct {
	data   []byte
	offset int
}

func NewConstBuffer(data []byte) *ConstBuffer {
	return &ConstBuffer{data: data}
}

// Remaining returns the number of unread bytes.
func (c *ConstBuffer) Remaining() int { return len(c.data) - c.offset }

// Read advances the cursor by n bytes and returns them.
func (c *ConstBuffer) Read(n int) ([]byte, error) {
	if n < 0 || c.offset+n > len(c.data) {
		return nil, engineerr.New(engineerr.BufferOverflow, "const-buffer: read(%d) exceeds remaining %d bytes", n, c.Remaining())
	}
	out := c.data[c.offset : c.offset+n]
	c.offset += n
	return out, nil
}

// ReadWithShift reads n bytes, interprets them as a sequence of
// little-endian uint64 values, adds shift to each, and returns the
// rebased copy — used to rebase variable-length value offsets when
// assembling query results out of multiple tiles.
func (c *ConstBuffer) ReadWithShift(n int, shift uint64) ([]byte, error) {
	raw, err := c.Read(n)
	if err != nil {
		return nil, err
	}
	if n%8 != 0 {
		return nil, engineerr.New(engineerr.BufferOverflow, "const-buffer: read_with_shift(%d) is not a multiple of 8", n)
	}
	out := make([]byte, n)
	for i := 0; i < n; i += 8 {
		v := littleEndianUint64(raw[i : i+8])
		putLittleEndianUint64(out[i:i+8], v+shift)
	}
	return out, nil
}

func littleEndianUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putLittleEndianUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
