package main

import (
	"gopkg.in/yaml.v3"

	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/schema"
)

// schemaFile is the human-authored YAML description the create verb takes
// as input, distinct from the binary __array_schema.tdb wire format
// schema.Marshal produces on disk.
type schemaFile struct {
	ArrayType  string          `yaml:"array_type"`
	TileOrder  string          `yaml:"tile_order"`
	CellOrder  string          `yaml:"cell_order"`
	Capacity   uint64          `yaml:"capacity"`
	Domain     []dimensionFile `yaml:"domain"`
	Attributes []attributeFile `yaml:"attributes"`
}

type dimensionFile struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Lo         int64  `yaml:"lo"`
	Hi         int64  `yaml:"hi"`
	TileExtent int64  `yaml:"tile_extent"`
}

type attributeFile struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	CellValNum int    `yaml:"cell_val_num"`
	Variable   bool   `yaml:"variable"`
	Nullable   bool   `yaml:"nullable"`
	Compressor string `yaml:"compressor"`
	Level      int    `yaml:"level"`
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// parseSchemaFile decodes a create verb's schema-file argument into a
// validated schema.Schema.
func parseSchemaFile(data []byte) (*schema.Schema, error) {
	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, engineerr.Wrap(engineerr.FormatError, err, "schema file: invalid yaml")
	}

	arrayType, err := schema.ParseArrayType(sf.ArrayType)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.SchemaError, err, "schema file: array_type")
	}
	tileOrder, err := schema.ParseLayout(orDefault(sf.TileOrder, "row-major"))
	if err != nil {
		return nil, engineerr.Wrap(engineerr.SchemaError, err, "schema file: tile_order")
	}
	cellOrder, err := schema.ParseLayout(orDefault(sf.CellOrder, "row-major"))
	if err != nil {
		return nil, engineerr.Wrap(engineerr.SchemaError, err, "schema file: cell_order")
	}

	dims := make([]schema.Dimension, len(sf.Domain))
	for i, d := range sf.Domain {
		dt, err := schema.ParseDatatype(d.Type)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.SchemaError, err, "schema file: domain[%d].type", i)
		}
		dims[i] = schema.Dimension{Name: d.Name, Datatype: dt, Lo: d.Lo, Hi: d.Hi, TileExtent: d.TileExtent}
	}

	attrs := make([]schema.Attribute, len(sf.Attributes))
	for i, a := range sf.Attributes {
		dt, err := schema.ParseDatatype(a.Type)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.SchemaError, err, "schema file: attributes[%d].type", i)
		}
		comp := schema.CompressorNone
		if a.Compressor != "" {
			comp, err = schema.ParseCompressor(a.Compressor)
			if err != nil {
				return nil, engineerr.Wrap(engineerr.SchemaError, err, "schema file: attributes[%d].compressor", i)
			}
		}
		cellValNum := a.CellValNum
		switch {
		case a.Variable:
			cellValNum = schema.VarNum
		case cellValNum == 0:
			cellValNum = 1
		}
		attrs[i] = schema.Attribute{
			Name:       a.Name,
			Datatype:   dt,
			CellValNum: cellValNum,
			Nullable:   a.Nullable,
			Compressor: comp,
			Level:      a.Level,
		}
	}

	return schema.New(arrayType, schema.Domain{Dimensions: dims}, attrs, tileOrder, cellOrder, sf.Capacity)
}
