package schema

import (
	"github.com/gridarray/engine/internal/coord"
	"github.com/gridarray/engine/internal/engineerr"
)

// RowMajorRank computes the lexicographic rank of coords within the given
// per-dimension spans, dimension 0 major.
func RowMajorRank(coords, spans []int64) uint64 {
	var rank uint64
	for i := range coords {
		rank *= uint64(spans[i])
		rank += uint64(coords[i])
	}
	return rank
}

// ColMajorRank is RowMajorRank with dimension N-1 major.
func ColMajorRank(coords, spans []int64) uint64 {
	var rank uint64
	for i := len(coords) - 1; i >= 0; i-- {
		rank *= uint64(spans[i])
		rank += uint64(coords[i])
	}
	return rank
}

// hilbertBits is the per-dimension bit precision used for Hilbert cell
// ordering; every dimension contributes equal precision, so
// coordinates are rescaled into this many bits regardless
// of the dimension's actual span.
const hilbertBits = 16

// TileCoordOf divides coords by each dimension's tile extent, giving the
// tile-grid coordinate a dense cell belongs to. Only meaningful for dense
// arrays.
func TileCoordOf(d Domain, coords []int64) []int64 {
	tc := make([]int64, len(coords))
	for i, dim := range d.Dimensions {
		tc[i] = (coords[i] - dim.Lo) / dim.TileExtent
	}
	return tc
}

// LocalCoordOf returns coords relative to the origin of the tile they
// fall in.
func LocalCoordOf(d Domain, coords []int64) []int64 {
	tileCoord := TileCoordOf(d, coords)
	lc := make([]int64, len(coords))
	for i, dim := range d.Dimensions {
		tileLo := dim.Lo + tileCoord[i]*dim.TileExtent
		lc[i] = coords[i] - tileLo
	}
	return lc
}

// rankByLayout computes coords' rank within spans under the given order,
// used for both tile ranks (spans = tile counts) and within-tile cell
// ranks (spans = tile extents) — Hilbert scales each coordinate to
// hilbertBits of precision within its own span rather than using spans
// directly.
func rankByLayout(layout Layout, coords, spans []int64) (uint64, error) {
	switch layout {
	case RowMajor:
		return RowMajorRank(coords, spans), nil
	case ColMajor:
		return ColMajorRank(coords, spans), nil
	case Hilbert:
		scaled := make([]uint64, len(coords))
		for i := range coords {
			span := spans[i]
			if span <= 0 {
				span = 1
			}
			scale := (uint64(1) << hilbertBits)
			v := uint64(coords[i]) * scale / uint64(span)
			if v >= scale {
				v = scale - 1
			}
			scaled[i] = v
		}
		return coord.Rank(scaled, hilbertBits)
	default:
		return 0, engineerr.New(engineerr.LayoutError, "%s is not a valid ranking order", layout)
	}
}

// TileOrderRank ranks a dense tile coordinate under the schema's TileOrder.
func TileOrderRank(s *Schema) func(tileCoord []int64) (uint64, error) {
	tileCounts := make([]int64, s.Domain.Rank())
	for i, dim := range s.Domain.Dimensions {
		tileCounts[i] = dim.TileCount()
	}
	return func(tileCoord []int64) (uint64, error) {
		return rankByLayout(s.TileOrder, tileCoord, tileCounts)
	}
}

// CellOrderRank ranks a coordinate tuple under the schema's CellOrder. For
// dense arrays the coordinates must already be tile-local; for sparse
// arrays they are domain-absolute (sparse has no tile grid to be local
// within).
func CellOrderRank(s *Schema, spans []int64) func(coords []int64) (uint64, error) {
	return func(coords []int64) (uint64, error) {
		return rankByLayout(s.CellOrder, coords, spans)
	}
}

// GlobalRankDense combines a dense schema's tile order and cell order
// into one rank spanning the whole array: tiles are visited in TileOrder,
// and within each tile cells are visited in CellOrder.
func GlobalRankDense(s *Schema, coords []int64) (uint64, error) {
	tileCoord := TileCoordOf(s.Domain, coords)
	localCoord := LocalCoordOf(s.Domain, coords)
	tileRank, err := TileOrderRank(s)(tileCoord)
	if err != nil {
		return 0, err
	}
	extents := make([]int64, s.Domain.Rank())
	cellsPerTile := int64(1)
	for i, dim := range s.Domain.Dimensions {
		extents[i] = dim.TileExtent
		cellsPerTile *= dim.TileExtent
	}
	cellRank, err := CellOrderRank(s, extents)(localCoord)
	if err != nil {
		return 0, err
	}
	return tileRank*uint64(cellsPerTile) + cellRank, nil
}

// GlobalRankSparse ranks a sparse cell's domain-absolute coordinates.
// When every dimension carries a tile extent the schema has a space-tile
// grid, and global order is tile order over that grid then cell order
// within a tile, exactly as for dense arrays; without extents, cells are
// ranked by cell order over the whole domain. Either way, the writer
// groups the sorted cells into runs of Capacity to form the physical
// tiles.
func GlobalRankSparse(s *Schema, coords []int64) (uint64, error) {
	tiled := true
	for _, dim := range s.Domain.Dimensions {
		if dim.TileExtent <= 0 {
			tiled = false
			break
		}
	}
	if tiled {
		return GlobalRankDense(s, coords)
	}
	spans := make([]int64, s.Domain.Rank())
	for i, dim := range s.Domain.Dimensions {
		spans[i] = dim.Span()
	}
	return CellOrderRank(s, spans)(coords)
}
