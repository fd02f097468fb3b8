package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/gridarray/engine/internal/config"
	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/fragment"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/query"
	"github.com/gridarray/engine/internal/schema"
	"github.com/gridarray/engine/internal/vfs"
)

func cmdWrite(args []string) error {
	fset := newFlagSet("write")
	verbose := fset.Bool("verbose", false, "verbose logging")
	layoutFlag := fset.String("layout", "", "write layout override (row-major, col-major, global, unordered); default is unordered for sparse arrays, row-major for dense")
	if err := fset.Parse(args); err != nil {
		return err
	}
	rest := fset.Args()
	if len(rest) != 2 {
		return usageError("write <uri> <csv>")
	}
	uri, csvPath := rest[0], rest[1]

	log := logging.New(*verbose)
	fs := vfs.NewLocal(log)
	cfg := config.Default()

	sch, err := openSchema(fs, uri)
	if err != nil {
		return err
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return engineerr.Wrap(engineerr.IoError, err, "write: open %s", csvPath)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return engineerr.Wrap(engineerr.FormatError, err, "write: read csv header")
	}
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[name] = i
	}

	sparse := sch.ArrayType == schema.Sparse
	dimIdx := make([]int, sch.Domain.Rank())
	if sparse {
		for i, d := range sch.Domain.Dimensions {
			idx, ok := colIdx[d.Name]
			if !ok {
				return engineerr.New(engineerr.FormatError, "write: csv is missing dimension column %q", d.Name)
			}
			dimIdx[i] = idx
		}
	}

	accs := make([]*attrAccumulator, len(sch.Attributes))
	colsFor := make([][]int, len(sch.Attributes))
	for i, a := range sch.Attributes {
		names := attrColumnNames(a)
		idx := make([]int, len(names))
		for j, n := range names {
			id, ok := colIdx[n]
			if !ok {
				return engineerr.New(engineerr.FormatError, "write: csv is missing attribute column %q", n)
			}
			idx[j] = id
		}
		accs[i] = newAttrAccumulator(a)
		colsFor[i] = idx
	}

	var coords []int64
	cellCount := 0
	for lineNo := 2; ; lineNo++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return engineerr.Wrap(engineerr.FormatError, err, "write: read csv row %d", lineNo)
		}
		if sparse {
			for _, idx := range dimIdx {
				v, err := strconv.ParseInt(row[idx], 10, 64)
				if err != nil {
					return engineerr.Wrap(engineerr.FormatError, err, "write: row %d: coordinate", lineNo)
				}
				coords = append(coords, v)
			}
		}
		for i, a := range sch.Attributes {
			if err := accs[i].appendRow(row, colsFor[i]); err != nil {
				return engineerr.Wrap(engineerr.FormatError, err, "write: row %d: attribute %q", lineNo, a.Name)
			}
		}
		cellCount++
	}
	log.Debugf("write: decoded %d cell(s) from %s", cellCount, csvPath)
	if cellCount == 0 {
		return engineerr.New(engineerr.FormatError, "write: %s has no data rows", csvPath)
	}

	attrs := make(map[string]fragment.AttrBuffer, len(sch.Attributes))
	for i, a := range sch.Attributes {
		attrs[a.Name] = accs[i].finish()
	}

	var subarray []schema.Dimension
	layout := schema.Unordered
	if !sparse {
		layout = schema.RowMajor
		subarray = sch.Domain.Dimensions
	}
	if *layoutFlag != "" {
		l, err := schema.ParseLayout(*layoutFlag)
		if err != nil {
			return engineerr.Wrap(engineerr.SchemaError, err, "write: --layout")
		}
		layout = l
	}

	wq, err := query.NewWriteQuery(fs, log, cfg, sch, uri, layout, subarray, 1)
	if err != nil {
		return err
	}
	batch := fragment.WriteBatch{Coords: coords, CellCount: cellCount, Attrs: attrs}
	if _, err := wq.Submit(batch); err != nil {
		_ = wq.Abort()
		return err
	}
	if err := wq.Finalize(); err != nil {
		return err
	}
	log.Infof("write: %d cell(s) into %s", cellCount, wq.FragmentDir())
	return nil
}
