package schema

import "github.com/gridarray/engine/internal/engineerr"

// Schema is an array's immutable shape: its coordinate Domain, the
// attributes stored per cell, and the tile/cell ordering used to lay
// cells out within a fragment.
type Schema struct {
	ArrayType  ArrayType
	Domain     Domain
	Attributes []Attribute
	TileOrder  Layout // RowMajor, ColMajor, or Hilbert
	CellOrder  Layout // RowMajor, ColMajor, or Hilbert

	// Capacity is the number of cells a sparse array packs per tile before
	// starting a new one; it is ignored for dense arrays, whose
	// tile sizing instead follows each dimension's TileExtent.
	Capacity uint64
}

// New constructs and validates a Schema: domain bounds fitting the coordinate type, tile extents evenly
// dividing a dense domain, no duplicate names across dimensions or
// attributes, a positive capacity for sparse arrays, and only tile/cell
// orders that make sense for the array type.
func New(arrayType ArrayType, domain Domain, attrs []Attribute, tileOrder, cellOrder Layout, capacity uint64) (*Schema, error) {
	s := &Schema{
		ArrayType:  arrayType,
		Domain:     domain,
		Attributes: attrs,
		TileOrder:  tileOrder,
		CellOrder:  cellOrder,
		Capacity:   capacity,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) validate() error {
	if err := s.Domain.validate(s.ArrayType); err != nil {
		return err
	}
	if len(s.Attributes) == 0 {
		return engineerr.New(engineerr.SchemaError, "schema must declare at least one attribute")
	}
	seen := make(map[string]bool, len(s.Attributes))
	for _, a := range s.Attributes {
		if seen[a.Name] {
			return engineerr.New(engineerr.SchemaError, "duplicate attribute name %q", a.Name)
		}
		if s.Domain.DimensionIndex(a.Name) >= 0 {
			return engineerr.New(engineerr.SchemaError, "attribute %q collides with a dimension name", a.Name)
		}
		seen[a.Name] = true
		if err := a.validate(); err != nil {
			return err
		}
	}
	if err := validOrder(s.TileOrder); err != nil {
		return engineerr.Wrap(engineerr.SchemaError, err, "tile order")
	}
	if err := validOrder(s.CellOrder); err != nil {
		return engineerr.Wrap(engineerr.SchemaError, err, "cell order")
	}
	if s.ArrayType == Dense && s.TileOrder == Hilbert {
		return engineerr.New(engineerr.SchemaError, "dense arrays do not support hilbert tile order")
	}
	if s.ArrayType == Sparse && s.Capacity == 0 {
		return engineerr.New(engineerr.SchemaError, "sparse arrays require a positive capacity")
	}
	return nil
}

func validOrder(l Layout) error {
	switch l {
	case RowMajor, ColMajor, Hilbert:
		return nil
	default:
		return engineerr.New(engineerr.LayoutError, "%s is not a valid tile/cell order", l)
	}
}

// AttributeIndex returns the position of the named attribute, or -1.
func (s *Schema) AttributeIndex(name string) int {
	for i, a := range s.Attributes {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Attribute looks up an attribute by name.
func (s *Schema) Attribute(name string) (Attribute, bool) {
	if i := s.AttributeIndex(name); i >= 0 {
		return s.Attributes[i], true
	}
	return Attribute{}, false
}
