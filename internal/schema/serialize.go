package schema

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/gridarray/engine/internal/engineerr"
)

// schemaFormatVersion is the wire version written to __array_schema.tdb.
// Bump it whenever the binary layout below changes incompatibly.
const schemaFormatVersion = 1

// varNumWire is the sentinel cell_val_num value denoting a variable-length
// attribute on the wire.
const varNumWire = 0xFFFFFFFF

// Marshal encodes the schema file: version · array_type · tile_order
// · cell_order · capacity · domain block · attribute block · CRC32. CRC32 is
// computed over every byte preceding it.
func (s *Schema) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(schemaFormatVersion))
	buf.WriteByte(byte(s.ArrayType))
	buf.WriteByte(byte(s.TileOrder))
	buf.WriteByte(byte(s.CellOrder))
	_ = binary.Write(&buf, binary.LittleEndian, s.Capacity)

	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(s.Domain.Dimensions)))
	for _, d := range s.Domain.Dimensions {
		writeString(&buf, d.Name)
		buf.WriteByte(byte(d.Datatype))
		_ = binary.Write(&buf, binary.LittleEndian, d.Lo)
		_ = binary.Write(&buf, binary.LittleEndian, d.Hi)
		_ = binary.Write(&buf, binary.LittleEndian, d.TileExtent)
	}

	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(s.Attributes)))
	for _, a := range s.Attributes {
		writeString(&buf, a.Name)
		buf.WriteByte(byte(a.Datatype))
		cellValNum := uint32(a.CellValNum)
		if a.IsVarLength() {
			cellValNum = varNumWire
		}
		_ = binary.Write(&buf, binary.LittleEndian, cellValNum)
		buf.WriteByte(byte(a.Compressor))
		_ = binary.Write(&buf, binary.LittleEndian, int32(a.Level))
		nullable := byte(0)
		if a.Nullable {
			nullable = 1
		}
		buf.WriteByte(nullable)
	}

	sum := crc32.ChecksumIEEE(buf.Bytes())
	_ = binary.Write(&buf, binary.LittleEndian, sum)
	return buf.Bytes(), nil
}

// Unmarshal decodes and validates a schema file, returning FormatError for
// CRC mismatches and SchemaError for a well-formed-but-invalid schema.
func Unmarshal(data []byte) (*Schema, error) {
	if len(data) < 4 {
		return nil, engineerr.New(engineerr.FormatError, "schema file too short")
	}
	body, wantCRC := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if got := crc32.ChecksumIEEE(body); got != wantCRC {
		return nil, engineerr.New(engineerr.FormatError, "schema CRC mismatch: got %#x, want %#x", got, wantCRC)
	}

	r := bytes.NewReader(body)
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read version")
	}
	if version != schemaFormatVersion {
		return nil, engineerr.New(engineerr.FormatError, "schema: unsupported format version %d", version)
	}

	arrayTypeByte, err := r.ReadByte()
	if err != nil {
		return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read array_type")
	}
	tileOrderByte, err := r.ReadByte()
	if err != nil {
		return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read tile_order")
	}
	cellOrderByte, err := r.ReadByte()
	if err != nil {
		return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read cell_order")
	}
	var capacity uint64
	if err := binary.Read(r, binary.LittleEndian, &capacity); err != nil {
		return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read capacity")
	}

	var dimCount uint32
	if err := binary.Read(r, binary.LittleEndian, &dimCount); err != nil {
		return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read dimension count")
	}
	dims := make([]Dimension, dimCount)
	for i := range dims {
		name, err := readString(r)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read dimension %d name", i)
		}
		dtByte, err := r.ReadByte()
		if err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read dimension %d datatype", i)
		}
		var lo, hi, tileExtent int64
		if err := binary.Read(r, binary.LittleEndian, &lo); err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read dimension %d lo", i)
		}
		if err := binary.Read(r, binary.LittleEndian, &hi); err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read dimension %d hi", i)
		}
		if err := binary.Read(r, binary.LittleEndian, &tileExtent); err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read dimension %d tile_extent", i)
		}
		dims[i] = Dimension{Name: name, Datatype: Datatype(dtByte), Lo: lo, Hi: hi, TileExtent: tileExtent}
	}

	var attrCount uint32
	if err := binary.Read(r, binary.LittleEndian, &attrCount); err != nil {
		return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read attribute count")
	}
	attrs := make([]Attribute, attrCount)
	for i := range attrs {
		name, err := readString(r)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read attribute %d name", i)
		}
		dtByte, err := r.ReadByte()
		if err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read attribute %d datatype", i)
		}
		var cellValNum uint32
		if err := binary.Read(r, binary.LittleEndian, &cellValNum); err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read attribute %d cell_val_num", i)
		}
		compressorByte, err := r.ReadByte()
		if err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read attribute %d compressor", i)
		}
		var level int32
		if err := binary.Read(r, binary.LittleEndian, &level); err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read attribute %d level", i)
		}
		nullableByte, err := r.ReadByte()
		if err != nil {
			return nil, engineerr.Wrap(engineerr.FormatError, err, "schema: read attribute %d nullable", i)
		}
		n := int(cellValNum)
		if cellValNum == varNumWire {
			n = VarNum
		}
		attrs[i] = Attribute{
			Name:       name,
			Datatype:   Datatype(dtByte),
			CellValNum: n,
			Nullable:   nullableByte != 0,
			Compressor: Compressor(compressorByte),
			Level:      int(level),
		}
	}

	return New(ArrayType(arrayTypeByte), Domain{Dimensions: dims}, attrs, Layout(tileOrderByte), Layout(cellOrderByte), capacity)
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}
