package schema

import "github.com/gridarray/engine/internal/engineerr"

// Dimension is one axis of an array's Domain: a coordinate type, an
// inclusive [Lo, Hi] range, and (for dense arrays) a TileExtent that must
// evenly divide the range.
type Dimension struct {
	Name       string
	Datatype   Datatype
	Lo, Hi     int64
	TileExtent int64
}

func (d Dimension) validate(arrayType ArrayType) error {
	if d.Name == "" {
		return engineerr.New(engineerr.SchemaError, "dimension name must not be empty")
	}
	if !d.Datatype.IsInteger() {
		return engineerr.New(engineerr.SchemaError, "dimension %q: datatype %s is not a supported coordinate type", d.Name, d.Datatype)
	}
	if d.Hi < d.Lo {
		return engineerr.New(engineerr.SchemaError, "dimension %q: hi (%d) is before lo (%d)", d.Name, d.Hi, d.Lo)
	}
	if err := boundsFitType(d.Datatype, d.Lo, d.Hi); err != nil {
		return engineerr.Wrap(engineerr.SchemaError, err, "dimension %q", d.Name)
	}
	if arrayType == Dense {
		if d.TileExtent <= 0 {
			return engineerr.New(engineerr.SchemaError, "dimension %q: dense arrays require a positive tile extent", d.Name)
		}
		span := d.Hi - d.Lo + 1
		if span%d.TileExtent != 0 {
			return engineerr.New(engineerr.SchemaError, "dimension %q: tile extent %d does not evenly divide domain span %d", d.Name, d.TileExtent, span)
		}
	} else if d.TileExtent < 0 {
		return engineerr.New(engineerr.SchemaError, "dimension %q: tile extent must not be negative", d.Name)
	}
	return nil
}

// Span returns the number of distinct coordinate values along the
// dimension, Hi-Lo+1.
func (d Dimension) Span() int64 {
	return d.Hi - d.Lo + 1
}

// TileCount returns the number of tiles the dimension's span is split
// into. Dense extents divide the span evenly; sparse space tiling may
// leave a partial tile at the end, which still counts.
func (d Dimension) TileCount() int64 {
	if d.TileExtent <= 0 {
		return 0
	}
	return (d.Span() + d.TileExtent - 1) / d.TileExtent
}

func boundsFitType(dt Datatype, lo, hi int64) error {
	switch dt {
	case Uint8, Uint16, Uint32, Uint64:
		if lo < 0 {
			return engineerr.New(engineerr.DomainError, "lo (%d) is negative for unsigned type %s", lo, dt)
		}
	}
	switch dt {
	case Int8:
		return rangeCheck(lo, hi, -1<<7, 1<<7-1)
	case Uint8:
		return rangeCheck(lo, hi, 0, 1<<8-1)
	case Int16:
		return rangeCheck(lo, hi, -1<<15, 1<<15-1)
	case Uint16:
		return rangeCheck(lo, hi, 0, 1<<16-1)
	case Int32:
		return rangeCheck(lo, hi, -1<<31, 1<<31-1)
	case Uint32:
		return rangeCheck(lo, hi, 0, 1<<32-1)
	case Int64, Uint64:
		return nil // full int64 range representable by construction
	}
	return nil
}

func rangeCheck(lo, hi, min, max int64) error {
	if lo < min || hi > max {
		return engineerr.New(engineerr.DomainError, "range [%d, %d] exceeds type bounds [%d, %d]", lo, hi, min, max)
	}
	return nil
}
