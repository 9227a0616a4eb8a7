package sparsearray

import "fmt"

// Datatype is a tagged enum over the fixed-width scalar types a
// Dimension or Attribute may carry.
type Datatype uint8

const (
	UnknownDatatype Datatype = 0
	Int8            Datatype = 1
	Uint8           Datatype = 2
	Int16           Datatype = 3
	Uint16          Datatype = 4
	Int32           Datatype = 5
	Uint32          Datatype = 6
	Int64           Datatype = 7
	Uint64          Datatype = 8
	Float32         Datatype = 9
	Float64         Datatype = 10
	Char            Datatype = 11
)

// VarNum is the sentinel cell_val_num encoding "variable-length".
const VarNum = ^uint32(0)

// SizeBytes returns the fixed width, in bytes, of one scalar value of
// this type.
func (d Datatype) SizeBytes() int {
	switch d {
	case Int8, Uint8, Char:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// IsInteger reports whether d is one of the fixed-width integer types.
func (d Datatype) IsInteger() bool {
	switch d {
	case Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether d is float32 or float64.
func (d Datatype) IsFloat() bool {
	return d == Float32 || d == Float64
}

func (d Datatype) String() string {
	switch d {
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Char:
		return "char"
	default:
		return fmt.Sprintf("datatype(%d)", uint8(d))
	}
}

// Compressor is the compression algorithm applied to a tile's payload by
// the filter pipeline. The tag is validated for attribute/coordinate
// compatibility (spec.md §4.2); the codecs themselves are implemented by
// ApplyFilter/UnapplyFilter in filter.go.
type Compressor uint8

const (
	CompressorNone       Compressor = 0
	CompressorGzip       Compressor = 1
	CompressorZstd       Compressor = 2
	CompressorDoubleDelta Compressor = 3
)
