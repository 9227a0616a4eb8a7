package sparsearray

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tile is one attribute's (or the coordinates') decoded cell data for a
// single tile: a flat little-endian buffer of CellNum*cellSize bytes,
// the unit a Writer appends to a fragment's value file and a Reader
// pulls back through the BufferCache (spec.md §4.5, §4.6).
type Tile struct {
	AttrIdx int
	TileID  uint64
	CellNum int
	Data    []byte // fixed-size cells; empty for var-size tiles, see VarTile
}

// VarTile is the decoded form of a variable-size attribute's tile: an
// offsets table (CellNum+1 entries, the last equal to len(Values)) plus
// the concatenated cell payloads.
type VarTile struct {
	AttrIdx int
	TileID  uint64
	Offsets []uint64
	Values  []byte
}

// CellAt returns the raw bytes of cell i.
func (t *VarTile) CellAt(i int) []byte {
	return t.Values[t.Offsets[i]:t.Offsets[i+1]]
}

// EncodeFixedInt64 packs vals into a little-endian buffer sized for dt,
// truncating/widening as dt.SizeBytes() dictates.
func EncodeFixedInt64(vals []int64, dt Datatype) ([]byte, error) {
	size := dt.SizeBytes()
	out := make([]byte, len(vals)*size)
	for i, v := range vals {
		if err := putScalar(out[i*size:(i+1)*size], dt, uint64(v)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeFixedInt64 is the inverse of EncodeFixedInt64, for integer dt.
func DecodeFixedInt64(data []byte, dt Datatype) ([]int64, error) {
	size := dt.SizeBytes()
	if size == 0 || len(data)%size != 0 {
		return nil, fmt.Errorf("%w: buffer length %d not a multiple of cell size %d", ErrIoError, len(data), size)
	}
	n := len(data) / size
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		v, err := getScalar(data[i*size:(i+1)*size], dt)
		if err != nil {
			return nil, err
		}
		switch dt {
		case Int8:
			out[i] = int64(int8(v))
		case Int16:
			out[i] = int64(int16(v))
		case Int32:
			out[i] = int64(int32(v))
		default:
			out[i] = int64(v)
		}
	}
	return out, nil
}

// EncodeFixedFloat64 packs vals as float32 or float64 per dt.
func EncodeFixedFloat64(vals []float64, dt Datatype) ([]byte, error) {
	switch dt {
	case Float32:
		out := make([]byte, len(vals)*4)
		for i, v := range vals {
			binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(float32(v)))
		}
		return out, nil
	case Float64:
		out := make([]byte, len(vals)*8)
		for i, v := range vals {
			binary.LittleEndian.PutUint64(out[i*8:i*8+8], math.Float64bits(v))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %v is not a float type", ErrSchemaInvalid, dt)
	}
}

// DecodeFixedFloat64 is the inverse of EncodeFixedFloat64.
func DecodeFixedFloat64(data []byte, dt Datatype) ([]float64, error) {
	switch dt {
	case Float32:
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("%w: buffer length %d not a multiple of 4", ErrIoError, len(data))
		}
		n := len(data) / 4
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : i*4+4])))
		}
		return out, nil
	case Float64:
		if len(data)%8 != 0 {
			return nil, fmt.Errorf("%w: buffer length %d not a multiple of 8", ErrIoError, len(data))
		}
		n := len(data) / 8
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8 : i*8+8]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %v is not a float type", ErrSchemaInvalid, dt)
	}
}

func putScalar(buf []byte, dt Datatype, v uint64) error {
	switch dt.SizeBytes() {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, v)
	default:
		return fmt.Errorf("%w: unsupported scalar size for %v", ErrSchemaInvalid, dt)
	}
	return nil
}

func getScalar(buf []byte, dt Datatype) (uint64, error) {
	switch dt.SizeBytes() {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf)), nil
	case 8:
		return binary.LittleEndian.Uint64(buf), nil
	default:
		return 0, fmt.Errorf("%w: unsupported scalar size for %v", ErrSchemaInvalid, dt)
	}
}
