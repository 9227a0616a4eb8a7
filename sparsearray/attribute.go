package sparsearray

import "fmt"

// CoordsName is the reserved pseudo-attribute name for coordinates.
// Callers must not create a dimension or attribute with this name.
const CoordsName = "__coords"

// Attribute is a named, typed column associated with every cell.
type Attribute struct {
	Name             string
	Type             Datatype
	CellValNum       uint32 // VarNum for variable-length
	Compressor       Compressor
	CompressionLevel int32
	Nullable         bool
}

// IsVar reports whether the attribute is variable-sized.
func (a Attribute) IsVar() bool {
	return a.CellValNum == VarNum
}

// CellSize returns the fixed size, in bytes, of one cell's value, or 0
// for a variable-size attribute (callers must consult the offsets tile
// instead).
func (a Attribute) CellSize() int {
	if a.IsVar() {
		return 0
	}
	return int(a.CellValNum) * a.Type.SizeBytes()
}

// Check validates an attribute in isolation (name non-empty, not the
// reserved coordinate name, cell_val_num positive, double-delta not
// applied to floats).
func (a Attribute) Check() error {
	if a.Name == "" {
		return fmt.Errorf("%w: attribute name must be non-empty", ErrSchemaInvalid)
	}
	if a.Name == CoordsName {
		return fmt.Errorf("%w: attribute %q collides with reserved coordinate name", ErrSchemaInvalid, a.Name)
	}
	if a.CellValNum == 0 {
		return fmt.Errorf("%w: attribute %q has cell_val_num 0", ErrSchemaInvalid, a.Name)
	}
	if a.Compressor == CompressorDoubleDelta && a.Type.IsFloat() {
		return fmt.Errorf("%w: attribute %q: double-delta compression forbidden on float attributes", ErrSchemaInvalid, a.Name)
	}
	return nil
}
