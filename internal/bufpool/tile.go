package bufpool

import "github.com/gridarray/engine/internal/schema"

// TilePayload is (buffer, datatype, cells-in-tile) — the unit a codec
// compresses or decompresses. Variable-length and nullable
// attributes carry parallel companion payloads rather than folding extra
// fields into this struct.
type TilePayload struct {
	Buffer   *Buffer
	Datatype schema.Datatype
	Cells    int
}

// NewTilePayload allocates an empty payload sized to hold Cells values of
// Datatype.
func NewTilePayload(dt schema.Datatype, cells int) *TilePayload {
	return &TilePayload{
		Buffer:   NewBuffer(dt.Size() * cells),
		Datatype: dt,
		Cells:    cells,
	}
}

// Full reports whether the payload has accumulated its full cell count.
func (p *TilePayload) Full() bool {
	return p.Buffer.Size() >= p.Datatype.Size()*p.Cells
}

// Release returns the payload's backing buffer to the pool.
func (p *TilePayload) Release() {
	p.Buffer.Release()
}
