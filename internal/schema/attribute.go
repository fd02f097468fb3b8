package schema

import "github.com/gridarray/engine/internal/engineerr"

// VarNum marks an attribute as variable-length.
const VarNum = 0

// Attribute describes one value stored per cell alongside the
// coordinates.
type Attribute struct {
	Name       string
	Datatype   Datatype
	CellValNum int // number of values of Datatype per cell, or VarNum
	Nullable   bool
	Compressor Compressor
	Level      int // codec level; codec.DefaultLevel means "use the codec's default"
}

func (a Attribute) validate() error {
	if a.Name == "" {
		return engineerr.New(engineerr.SchemaError, "attribute name must not be empty")
	}
	if a.CellValNum < 0 {
		return engineerr.New(engineerr.SchemaError, "attribute %q: cell_val_num must not be negative", a.Name)
	}
	if a.Compressor == CompressorDoubleDelta && !a.Datatype.IsInteger() {
		return engineerr.New(engineerr.SchemaError, "attribute %q: double-delta compressor requires an integer datatype, got %s", a.Name, a.Datatype)
	}
	return nil
}

// IsVarLength reports whether the attribute stores a variable number of
// values per cell.
func (a Attribute) IsVarLength() bool {
	return a.CellValNum == VarNum
}

// CellSize returns the fixed per-cell byte width, or 0 for variable-length
// attributes (callers must consult the offsets tile instead).
func (a Attribute) CellSize() int {
	if a.IsVarLength() {
		return 0
	}
	return a.Datatype.Size() * a.CellValNum
}
