package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gridarray/engine/internal/schema"
)

// attrColumnNames returns the CSV header names an attribute occupies: one
// column for a scalar or variable-length attribute, CellValNum columns
// ("name.0", "name.1", ...) for a fixed multi-value one.
func attrColumnNames(a schema.Attribute) []string {
	if a.IsVarLength() || a.CellValNum == 1 {
		return []string{a.Name}
	}
	names := make([]string, a.CellValNum)
	for i := range names {
		names[i] = fmt.Sprintf("%s.%d", a.Name, i)
	}
	return names
}

// encodeValue renders one fixed-width value as a CSV field.
func encodeValue(dt schema.Datatype, b []byte) string {
	switch dt {
	case schema.Int8:
		return strconv.FormatInt(int64(int8(b[0])), 10)
	case schema.Uint8:
		return strconv.FormatUint(uint64(b[0]), 10)
	case schema.Int16:
		return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(b))), 10)
	case schema.Uint16:
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint16(b)), 10)
	case schema.Int32:
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b))), 10)
	case schema.Uint32:
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(b)), 10)
	case schema.Int64:
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(b)), 10)
	case schema.Uint64:
		return strconv.FormatUint(binary.LittleEndian.Uint64(b), 10)
	case schema.Float32:
		return strconv.FormatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), 'g', -1, 32)
	case schema.Float64:
		return strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)), 'g', -1, 64)
	default:
		return ""
	}
}

// decodeValue parses a CSV field into dt's fixed-width wire encoding.
func decodeValue(dt schema.Datatype, s string) ([]byte, error) {
	out := make([]byte, dt.Size())
	switch dt {
	case schema.Int8:
		v, err := strconv.ParseInt(s, 10, 8)
		if err != nil {
			return nil, err
		}
		out[0] = byte(int8(v))
	case schema.Uint8:
		v, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return nil, err
		}
		out[0] = byte(v)
	case schema.Int16:
		v, err := strconv.ParseInt(s, 10, 16)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint16(out, uint16(int16(v)))
	case schema.Uint16:
		v, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint16(out, uint16(v))
	case schema.Int32:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(out, uint32(int32(v)))
	case schema.Uint32:
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(out, uint32(v))
	case schema.Int64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(out, uint64(v))
	case schema.Uint64:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(out, v)
	case schema.Float32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(v)))
	case schema.Float64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(out, math.Float64bits(v))
	default:
		return nil, fmt.Errorf("unsupported datatype %s", dt)
	}
	return out, nil
}

// encodeVarValue renders a variable-length attribute's raw values as a
// single semicolon-separated CSV field.
func encodeVarValue(dt schema.Datatype, raw []byte) string {
	width := dt.Size()
	if width == 0 {
		return ""
	}
	n := len(raw) / width
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = encodeValue(dt, raw[i*width:(i+1)*width])
	}
	return strings.Join(parts, ";")
}

// decodeVarValue parses a semicolon-separated CSV field into a
// variable-length attribute's raw wire encoding.
func decodeVarValue(dt schema.Datatype, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	width := dt.Size()
	out := make([]byte, 0, width*len(parts))
	for _, p := range parts {
		b, err := decodeValue(dt, p)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}
