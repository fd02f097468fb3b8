package schema

import (
	"encoding/binary"
	"math"
)

// EmptyValue and DeletedValue return the per-type reserved markers used
// when the schema does not otherwise disambiguate empty/deleted cells.
func EmptyValue(dt Datatype) interface{} {
	switch dt {
	case Int8:
		return int8(math.MaxInt8)
	case Uint8:
		return uint8(math.MaxUint8)
	case Int16:
		return int16(math.MaxInt16)
	case Uint16:
		return uint16(math.MaxUint16)
	case Int32:
		return int32(math.MaxInt32)
	case Uint32:
		return uint32(math.MaxUint32)
	case Int64:
		return int64(math.MaxInt64)
	case Uint64:
		return uint64(math.MaxUint64)
	case Float32:
		return float32(math.MaxFloat32)
	case Float64:
		return math.MaxFloat64
	default:
		return nil
	}
}

// EmptyValueBytes returns EmptyValue(dt) in its little-endian wire
// encoding, the fill a dense reader writes at positions no fragment
// covers.
func EmptyValueBytes(dt Datatype) []byte {
	return sentinelBytes(dt, EmptyValue(dt))
}

// DeletedValueBytes returns DeletedValue(dt) in its little-endian wire
// encoding, so tile payload bytes can be compared without decoding.
func DeletedValueBytes(dt Datatype) []byte {
	return sentinelBytes(dt, DeletedValue(dt))
}

func sentinelBytes(dt Datatype, val interface{}) []byte {
	out := make([]byte, dt.Size())
	switch v := val.(type) {
	case int8:
		out[0] = byte(v)
	case uint8:
		out[0] = v
	case int16:
		binary.LittleEndian.PutUint16(out, uint16(v))
	case uint16:
		binary.LittleEndian.PutUint16(out, v)
	case int32:
		binary.LittleEndian.PutUint32(out, uint32(v))
	case uint32:
		binary.LittleEndian.PutUint32(out, v)
	case int64:
		binary.LittleEndian.PutUint64(out, uint64(v))
	case uint64:
		binary.LittleEndian.PutUint64(out, v)
	case float32:
		binary.LittleEndian.PutUint32(out, math.Float32bits(v))
	case float64:
		binary.LittleEndian.PutUint64(out, math.Float64bits(v))
	}
	return out
}

func DeletedValue(dt Datatype) interface{} {
	switch dt {
	case Int8:
		return int8(math.MinInt8)
	case Uint8:
		return uint8(0)
	case Int16:
		return int16(math.MinInt16)
	case Uint16:
		return uint16(0)
	case Int32:
		return int32(math.MinInt32)
	case Uint32:
		return uint32(0)
	case Int64:
		return int64(math.MinInt64)
	case Uint64:
		return uint64(0)
	case Float32:
		return float32(-math.MaxFloat32)
	case Float64:
		return -math.MaxFloat64
	default:
		return nil
	}
}
