package fragment

import "github.com/gridarray/engine/internal/schema"

// AttrBuffer is one attribute's caller-supplied data for a WriteBatch
//: a fixed-width buffer for ordinary attributes, an
// (offsets, values) pair for variable-length attributes, and an optional
// validity buffer for nullable ones.
type AttrBuffer struct {
	Fixed      []byte   // CellCount * attribute.CellSize() bytes
	VarOffsets []uint64 // CellCount entries, byte offsets into VarValues
	VarValues  []byte
	Validity   []byte // CellCount bytes, nonzero meaning non-null
}

// WriteBatch is one Submit call's worth of cells: a coordinate buffer
// (sparse arrays only) plus one AttrBuffer per attribute.
type WriteBatch struct {
	Coords    []int64 // CellCount * domain rank, only for sparse arrays
	CellCount int
	Attrs     map[string]AttrBuffer
}

// cellRecord is the writer's internal, row-oriented view of a single
// cell — columnar WriteBatch data is exploded into cellRecords so the
// row-major/col-major permutation and the unordered sort buffer can
// reorder whole cells without tracking per-attribute indices separately.
type cellRecord struct {
	coords    []int64 // nil for dense cells without explicit coordinates
	insertion int
	attrs     map[string]cellAttrValue
}

type cellAttrValue struct {
	fixed    []byte
	varValue []byte
	validity byte
}

// explodeBatch converts a columnar WriteBatch into row-oriented
// cellRecords, tagging each with insertionIndex for use as the final
// unordered-layout tie-break.
func explodeBatch(sch *schema.Schema, batch WriteBatch, insertionBase int) []cellRecord {
	dim := sch.Domain.Rank()
	cells := make([]cellRecord, batch.CellCount)
	for i := 0; i < batch.CellCount; i++ {
		cr := cellRecord{insertion: insertionBase + i, attrs: make(map[string]cellAttrValue, len(sch.Attributes))}
		if len(batch.Coords) > 0 {
			cr.coords = batch.Coords[i*dim : (i+1)*dim]
		}
		for _, a := range sch.Attributes {
			buf := batch.Attrs[a.Name]
			var av cellAttrValue
			if a.IsVarLength() {
				start := buf.VarOffsets[i]
				var end uint64
				if i+1 < batch.CellCount {
					end = buf.VarOffsets[i+1]
				} else {
					end = uint64(len(buf.VarValues))
				}
				av.varValue = buf.VarValues[start:end]
			} else {
				cellSize := a.CellSize()
				av.fixed = buf.Fixed[i*cellSize : (i+1)*cellSize]
			}
			if a.Nullable && len(buf.Validity) > 0 {
				av.validity = buf.Validity[i]
			} else {
				av.validity = 1
			}
			cr.attrs[a.Name] = av
		}
		cells[i] = cr
	}
	return cells
}
