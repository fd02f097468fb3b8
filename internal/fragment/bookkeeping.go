// Package fragment implements the engine's unit of immutable storage: one
// fragment per completed write, each with its own book-keeping (tile
// offsets and per-tile minimum bounding rectangles) and attribute tile
// streams.
package fragment

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/schema"
)

const bookkeepingFormatVersion = 1

// MBR is a tile's minimum bounding rectangle: per-dimension [lo, hi] in
// that dimension's own coordinate type, widened to int64 for storage.
type MBR struct {
	Lo, Hi []int64
}

// AttributeBookkeeping holds one attribute's per-tile offset vector, plus
// (for variable-length attributes) the companion var-offset and var-size
// vectors.
type AttributeBookkeeping struct {
	TileOffsets []uint64
	VarOffsets  []uint64 // only populated for variable-length attributes
	VarSizes    []uint64 // only populated for variable-length attributes
}

// Bookkeeping is one fragment's metadata file, read once per array-open
// and cached. A writer builds it up in memory while writing and writes
// the file once, in full, on finalize.
type Bookkeeping struct {
	SchemaVersion uint32
	DomainLo      []int64 // non-empty domain covered by this fragment, per dimension
	DomainHi      []int64
	TileCount     uint64
	MBRs          []MBR

	// TileCellCounts holds each tile's actual cell count. A reader needs
	// it to size a tile's decompression output buffer and to know how many cells a
	// fragment's last (possibly partial) tile holds; it is written
	// alongside the MBR block since both are fixed-size-per-tile.
	TileCellCounts []uint64

	Attributes map[string]*AttributeBookkeeping // keyed by attribute name, ordered by sch.Attributes on the wire
}

// NewBookkeeping allocates an empty Bookkeeping sized for sch's attributes.
func NewBookkeeping(sch *schema.Schema, schemaVersion uint32) *Bookkeeping {
	attrs := make(map[string]*AttributeBookkeeping, len(sch.Attributes))
	for _, a := range sch.Attributes {
		attrs[a.Name] = &AttributeBookkeeping{}
	}
	return &Bookkeeping{SchemaVersion: schemaVersion, Attributes: attrs}
}

// Marshal encodes the book-keeping file, trailing it with a CRC32 of
// everything preceding it.
func (b *Bookkeeping) Marshal(sch *schema.Schema) ([]byte, error) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, b.SchemaVersion)

	if len(b.DomainLo) != sch.Domain.Rank() || len(b.DomainHi) != sch.Domain.Rank() {
		return nil, engineerr.New(engineerr.InternalError, "bookkeeping: domain has %d/%d entries, want %d", len(b.DomainLo), len(b.DomainHi), sch.Domain.Rank())
	}
	for i := range sch.Domain.Dimensions {
		_ = binary.Write(&buf, binary.LittleEndian, b.DomainLo[i])
		_ = binary.Write(&buf, binary.LittleEndian, b.DomainHi[i])
	}

	_ = binary.Write(&buf, binary.LittleEndian, b.TileCount)

	dimCount := sch.Domain.Rank()
	for _, m := range b.MBRs {
		if len(m.Lo) != dimCount || len(m.Hi) != dimCount {
			return nil, engineerr.New(engineerr.InternalError, "bookkeeping: MBR has wrong dimensionality")
		}
		for d := 0; d < dimCount; d++ {
			_ = binary.Write(&buf, binary.LittleEndian, m.Lo[d])
			_ = binary.Write(&buf, binary.LittleEndian, m.Hi[d])
		}
	}
	if len(b.TileCellCounts) != len(b.MBRs) {
		return nil, engineerr.New(engineerr.InternalError, "bookkeeping: %d tile cell counts, want %d", len(b.TileCellCounts), len(b.MBRs))
	}
	if err := writeUint64Vector(&buf, b.TileCellCounts); err != nil {
		return nil, err
	}

	for _, a := range sch.Attributes {
		ab, ok := b.Attributes[a.Name]
		if !ok {
			return nil, engineerr.New(engineerr.InternalError, "bookkeeping: missing attribute %q", a.Name)
		}
		if err := writeUint64Vector(&buf, ab.TileOffsets); err != nil {
			return nil, err
		}
		if a.IsVarLength() {
			if err := writeUint64Vector(&buf, ab.VarOffsets); err != nil {
				return nil, err
			}
			if err := writeUint64Vector(&buf, ab.VarSizes); err != nil {
				return nil, err
			}
		}
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	_ = binary.Write(&buf, binary.LittleEndian, sum)
	return buf.Bytes(), nil
}

// UnmarshalBookkeeping decodes a book-keeping file against sch, returning
// FormatError on a CRC mismatch or truncated data — the caller treats
// such a fragment as in-progress and skips it.
func UnmarshalBookkeeping(data []byte, sch *schema.Schema) (*Bookkeeping, error) {
	if len(data) < 4 {
		return nil, engineerr.New(engineerr.FormatError, "bookkeeping file too short")
	}
	body, wantCRC := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if got := crc32.ChecksumIEEE(body); got != wantCRC {
		return nil, engineerr.New(engineerr.FormatError, "bookkeeping CRC mismatch: got %#x, want %#x", got, wantCRC)
	}

	r := bytes.NewReader(body)
	b := &Bookkeeping{Attributes: make(map[string]*AttributeBookkeeping, len(sch.Attributes))}
	if err := binary.Read(r, binary.LittleEndian, &b.SchemaVersion); err != nil {
		return nil, engineerr.Wrap(engineerr.FormatError, err, "bookkeeping: read schema version")
	}

	dimCount := sch.Domain.Rank()
	b.DomainLo = make([]int64, dimCount)
	b.DomainHi = make([]int64, dimCount)
	for i := 0; i < dimCount; i++ {
		if err := binary.Read(r, binary.LittleEndian, &b.DomainLo[i]); err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "bookkeeping: read domain lo")
		}
		if err := binary.Read(r, binary.LittleEndian, &b.DomainHi[i]); err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "bookkeeping: read domain hi")
		}
	}

	if err := binary.Read(r, binary.LittleEndian, &b.TileCount); err != nil {
		return nil, engineerr.Wrap(engineerr.FormatError, err, "bookkeeping: read tile count")
	}

	b.MBRs = make([]MBR, b.TileCount)
	for t := range b.MBRs {
		lo := make([]int64, dimCount)
		hi := make([]int64, dimCount)
		for d := 0; d < dimCount; d++ {
			if err := binary.Read(r, binary.LittleEndian, &lo[d]); err != nil {
				return nil, engineerr.Wrap(engineerr.FormatError, err, "bookkeeping: read MBR lo")
			}
			if err := binary.Read(r, binary.LittleEndian, &hi[d]); err != nil {
				return nil, engineerr.Wrap(engineerr.FormatError, err, "bookkeeping: read MBR hi")
			}
		}
		b.MBRs[t] = MBR{Lo: lo, Hi: hi}
	}

	cellCounts, err := readUint64Vector(r, b.TileCount)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.FormatError, err, "bookkeeping: read tile cell counts")
	}
	b.TileCellCounts = cellCounts

	for _, a := range sch.Attributes {
		ab := &AttributeBookkeeping{}
		offsets, err := readUint64Vector(r, b.TileCount)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "bookkeeping: read %q tile offsets", a.Name)
		}
		ab.TileOffsets = offsets
		if a.IsVarLength() {
			if ab.VarOffsets, err = readUint64Vector(r, b.TileCount); err != nil {
				return nil, engineerr.Wrap(engineerr.FormatError, err, "bookkeeping: read %q var offsets", a.Name)
			}
			if ab.VarSizes, err = readUint64Vector(r, b.TileCount); err != nil {
				return nil, engineerr.Wrap(engineerr.FormatError, err, "bookkeeping: read %q var sizes", a.Name)
			}
		}
		b.Attributes[a.Name] = ab
	}

	return b, nil
}

func writeUint64Vector(buf *bytes.Buffer, v []uint64) error {
	for _, x := range v {
		if err := binary.Write(buf, binary.LittleEndian, x); err != nil {
			return engineerr.Wrap(engineerr.InternalError, err, "bookkeeping: write vector")
		}
	}
	return nil
}

func readUint64Vector(r *bytes.Reader, n uint64) ([]uint64, error) {
	v := make([]uint64, n)
	for i := range v {
		if err := binary.Read(r, binary.LittleEndian, &v[i]); err != nil {
			return nil, err
		}
	}
	return v, nil
}
