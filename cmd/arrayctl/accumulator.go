package main

import (
	"github.com/gridarray/engine/internal/fragment"
	"github.com/gridarray/engine/internal/schema"
)

// attrAccumulator builds one attribute's fragment.AttrBuffer incrementally
// as the write verb decodes CSV rows, one cell at a time.
type attrAccumulator struct {
	attr     schema.Attribute
	fixed    []byte
	varVals  []byte
	varOffs  []uint64
	validity []byte
}

func newAttrAccumulator(a schema.Attribute) *attrAccumulator {
	return &attrAccumulator{attr: a}
}

// appendRow decodes one CSV row's columns for this attribute (idx gives
// their positions) and appends the resulting cell value.
func (acc *attrAccumulator) appendRow(row []string, idx []int) error {
	a := acc.attr
	null := a.Nullable && row[idx[0]] == ""
	if a.Nullable {
		if null {
			acc.validity = append(acc.validity, 0)
		} else {
			acc.validity = append(acc.validity, 1)
		}
	}
	if null {
		if a.IsVarLength() {
			acc.varOffs = append(acc.varOffs, uint64(len(acc.varVals)))
		} else {
			acc.fixed = append(acc.fixed, make([]byte, a.CellSize())...)
		}
		return nil
	}
	if a.IsVarLength() {
		b, err := decodeVarValue(a.Datatype, row[idx[0]])
		if err != nil {
			return err
		}
		acc.varOffs = append(acc.varOffs, uint64(len(acc.varVals)))
		acc.varVals = append(acc.varVals, b...)
		return nil
	}
	for _, i := range idx {
		b, err := decodeValue(a.Datatype, row[i])
		if err != nil {
			return err
		}
		acc.fixed = append(acc.fixed, b...)
	}
	return nil
}

func (acc *attrAccumulator) finish() fragment.AttrBuffer {
	return fragment.AttrBuffer{
		Fixed:      acc.fixed,
		VarOffsets: acc.varOffs,
		VarValues:  acc.varVals,
		Validity:   acc.validity,
	}
}
