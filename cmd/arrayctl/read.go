package main

import (
	"bufio"
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/gridarray/engine/internal/config"
	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/fragment"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/query"
	"github.com/gridarray/engine/internal/schema"
	"github.com/gridarray/engine/internal/vfs"
)

func cmdRead(args []string) error {
	fset := newFlagSet("read")
	verbose := fset.Bool("verbose", false, "verbose logging")
	attrFlag := fset.String("attributes", "", "comma-separated attribute names to read (default: all)")
	layoutFlag := fset.String("layout", "row-major", "read layout (row-major, col-major, global, unordered)")
	batchCells := fset.Int("batch-cells", 0, "cells per read buffer (default: config.ConsolidationBufferCells)")
	once := fset.Bool("once", false, "fail with exit code 4 instead of looping over an incomplete read")
	if err := fset.Parse(args); err != nil {
		return err
	}
	rest := fset.Args()
	if len(rest) != 2 {
		return usageError("read <uri> <subarray>")
	}
	uri, subarrayArg := rest[0], rest[1]

	log := logging.New(*verbose)
	fs := vfs.NewLocal(log)
	cfg := config.Default()

	sch, err := openSchema(fs, uri)
	if err != nil {
		return err
	}
	subarray, err := parseSubarray(sch, subarrayArg)
	if err != nil {
		return err
	}
	layout, err := schema.ParseLayout(*layoutFlag)
	if err != nil {
		return engineerr.Wrap(engineerr.SchemaError, err, "read: --layout")
	}

	var attrs []string
	if *attrFlag != "" {
		attrs = strings.Split(*attrFlag, ",")
	} else {
		for _, a := range sch.Attributes {
			attrs = append(attrs, a.Name)
		}
	}

	cellBudget := *batchCells
	if cellBudget <= 0 {
		cellBudget = cfg.ConsolidationBufferCells
	}
	capacities := make(map[string]int, len(attrs))
	for _, name := range attrs {
		capacities[name] = cellBudget
	}

	rq, err := query.NewReadQuery(fs, log, cfg, sch, uri, subarray, attrs, layout)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	w := csv.NewWriter(out)
	sparse := sch.ArrayType == schema.Sparse
	if err := w.Write(headerFor(sch, attrs, sparse)); err != nil {
		return engineerr.Wrap(engineerr.IoError, err, "read: write csv header")
	}

	first := true
	for {
		res, status, err := rq.SubmitRead(capacities, cellBudget)
		if err != nil {
			return err
		}
		if err := writeRows(w, sch, subarray, layout == schema.ColMajor, attrs, sparse, res); err != nil {
			return err
		}
		if status == query.Complete {
			break
		}
		if *once && first {
			return engineerr.New(engineerr.BufferOverflow, "read: incomplete after one submit (--once)")
		}
		first = false
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return engineerr.Wrap(engineerr.IoError, err, "read: write csv rows")
	}
	return nil
}

// headerFor builds the CSV header: one column per dimension (absolute
// coordinate), followed by attrColumnNames for each requested attribute.
func headerFor(sch *schema.Schema, attrs []string, sparse bool) []string {
	var header []string
	for _, d := range sch.Domain.Dimensions {
		header = append(header, d.Name)
	}
	byName := make(map[string]schema.Attribute, len(sch.Attributes))
	for _, a := range sch.Attributes {
		byName[a.Name] = a
	}
	for _, name := range attrs {
		header = append(header, attrColumnNames(byName[name])...)
	}
	return header
}

// writeRows renders one SubmitRead result's cells as CSV rows. Dense
// results carry no coordinates (fragment.Result.Coords is nil); the
// cell's position within res.Attrs' buffers, offset by the window's
// BaseCell, is its rank within subarray, inverted back to coordinates
// via unravelDense.
func writeRows(w *csv.Writer, sch *schema.Schema, subarray []schema.Dimension, colMajor bool, attrs []string, sparse bool, res *fragment.Result) error {
	rank := len(subarray)
	byName := make(map[string]schema.Attribute, len(sch.Attributes))
	for _, a := range sch.Attributes {
		byName[a.Name] = a
	}
	for cell := 0; cell < res.Cells; cell++ {
		row := make([]string, 0, rank+len(attrs))
		if sparse {
			for d := 0; d < rank; d++ {
				row = append(row, strconv.FormatInt(res.Coords[cell*rank+d], 10))
			}
		} else {
			for _, c := range unravelDense(subarray, colMajor, int64(res.BaseCell+cell)) {
				row = append(row, strconv.FormatInt(c, 10))
			}
		}
		for _, name := range attrs {
			row = append(row, cellFields(byName[name], res.Attrs[name], cell)...)
		}
		if err := w.Write(row); err != nil {
			return engineerr.Wrap(engineerr.IoError, err, "read: write csv row")
		}
	}
	return nil
}

// cellFields renders one cell's value for attribute a as CSV field(s):
// a single semicolon-joined field for a variable-length attribute, or
// CellValNum fixed-width fields otherwise. A null cell (nullable and
// Validity[cell]==0) renders as empty field(s).
func cellFields(a schema.Attribute, buf fragment.AttrBuffer, cell int) []string {
	null := a.Nullable && cell < len(buf.Validity) && buf.Validity[cell] == 0
	if a.IsVarLength() {
		if null {
			return []string{""}
		}
		lo := buf.VarOffsets[cell]
		var hi uint64
		if cell+1 < len(buf.VarOffsets) {
			hi = buf.VarOffsets[cell+1]
		} else {
			hi = uint64(len(buf.VarValues))
		}
		return []string{encodeVarValue(a.Datatype, buf.VarValues[lo:hi])}
	}
	width := a.Datatype.Size()
	fields := make([]string, a.CellValNum)
	for i := range fields {
		if null {
			fields[i] = ""
			continue
		}
		off := (cell*a.CellValNum + i) * width
		fields[i] = encodeValue(a.Datatype, buf.Fixed[off:off+width])
	}
	return fields
}
