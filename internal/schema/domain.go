package schema

import "github.com/gridarray/engine/internal/engineerr"

// Domain is the ordered list of dimensions that make up an array's
// coordinate space.
type Domain struct {
	Dimensions []Dimension
}

func (d Domain) validate(arrayType ArrayType) error {
	if len(d.Dimensions) == 0 {
		return engineerr.New(engineerr.SchemaError, "domain must have at least one dimension")
	}
	seen := make(map[string]bool, len(d.Dimensions))
	for _, dim := range d.Dimensions {
		if seen[dim.Name] {
			return engineerr.New(engineerr.SchemaError, "duplicate dimension name %q", dim.Name)
		}
		seen[dim.Name] = true
		if err := dim.validate(arrayType); err != nil {
			return err
		}
	}
	return nil
}

// Rank returns the number of dimensions.
func (d Domain) Rank() int {
	return len(d.Dimensions)
}

// CellNum returns the total number of distinct coordinates in the domain,
// the product of each dimension's Span.
func (d Domain) CellNum() int64 {
	n := int64(1)
	for _, dim := range d.Dimensions {
		n *= dim.Span()
	}
	return n
}

// TileNum returns the total number of tiles a dense domain partitions
// into, the product of each dimension's TileCount.
func (d Domain) TileNum() int64 {
	n := int64(1)
	for _, dim := range d.Dimensions {
		n *= dim.TileCount()
	}
	return n
}

// DimensionIndex returns the position of the named dimension, or -1.
func (d Domain) DimensionIndex(name string) int {
	for i, dim := range d.Dimensions {
		if dim.Name == name {
			return i
		}
	}
	return -1
}
