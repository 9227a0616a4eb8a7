package sparsearray

import (
	"bytes"
	"fmt"
)

// FragmentMetadata is the key serialized data structure per fragment:
// tile offsets per attribute, MBRs, bounding coordinates, the non-empty
// domain, and per-attribute file sizes (spec.md §3, §4.3, §6).
//
// Attribute-indexed slices are indexed 0..attrNum-1 where index 0 is the
// reserved coordinates pseudo-attribute and the remaining indices mirror
// ArrayMetadata.Attrs in order — "for each attribute (including coords,
// in order)" per spec.md §6.
type FragmentMetadata struct {
	schema *ArrayMetadata

	NonEmptyDomain []int64 // 2*dimNum, [lo0,hi0,lo1,hi1,...]
	Domain         []int64 // NonEmptyDomain expanded to tile boundaries (dense only)

	MBRs           [][]int64 // sparse only: one 2*dimNum box per coordinate tile
	BoundingCoords [][2][]int64 // sparse only: first/last coords of each tile in global order

	TileOffsets    [][]uint64 // [attrIdx][tilePos]
	TileVarOffsets [][]uint64 // only populated for var attributes
	TileVarSizes   [][]uint64

	LastTileCellNum uint64 // sparse only
	FileSizes       []uint64
	FileVarSizes    []uint64 // one per var attribute, in attribute order
	Version         Version
}

// attrCount returns 1 (coords) + len(schema.Attrs).
func (fm *FragmentMetadata) attrCount() int {
	return 1 + len(fm.schema.Attrs)
}

// isVarAttr reports whether attribute index idx (0 == coords) is
// variable-size. Coordinates are never variable-size.
func (fm *FragmentMetadata) isVarAttr(idx int) bool {
	if idx == 0 {
		return false
	}
	return fm.schema.Attrs[idx-1].IsVar()
}

// NewFragmentMetadata creates an empty, append-only builder bound to
// schema. schema outlives the fragment and is held by reference rather
// than copied, per spec.md §9's guidance against owned back-pointers.
func NewFragmentMetadata(schema *ArrayMetadata) *FragmentMetadata {
	n := 1 + len(schema.Attrs)
	fm := &FragmentMetadata{
		schema:      schema,
		TileOffsets: make([][]uint64, n),
		FileSizes:   make([]uint64, n),
		Version:     schema.Version,
	}
	for i := 0; i < n; i++ {
		if fm.isVarAttr(i) {
			fm.TileVarOffsets = append(fm.TileVarOffsets, nil)
			fm.TileVarSizes = append(fm.TileVarSizes, nil)
			fm.FileVarSizes = append(fm.FileVarSizes, 0)
		}
	}
	return fm
}

// AppendMBR appends the MBR of the next coordinate tile (sparse only).
func (fm *FragmentMetadata) AppendMBR(box []int64) {
	fm.MBRs = append(fm.MBRs, box)
}

// AppendBoundingCoords appends the first/last coordinates of the next
// tile in global order (sparse only).
func (fm *FragmentMetadata) AppendBoundingCoords(first, last []int64) {
	fm.BoundingCoords = append(fm.BoundingCoords, [2][]int64{first, last})
}

// AppendTileOffset records the byte offset of the next tile for
// attribute attrIdx as the running sum of step (the size of the
// previous tile written), keeping tile_offsets[a] strictly increasing.
func (fm *FragmentMetadata) AppendTileOffset(attrIdx int, step uint64) {
	offsets := fm.TileOffsets[attrIdx]
	next := fm.FileSizes[attrIdx]
	fm.TileOffsets[attrIdx] = append(offsets, next)
	fm.FileSizes[attrIdx] += step
}

func (fm *FragmentMetadata) varSlot(attrIdx int) int {
	slot := 0
	for i := 0; i < attrIdx; i++ {
		if fm.isVarAttr(i) {
			slot++
		}
	}
	return slot
}

// AppendTileVarOffset records the next var-size tile's starting byte
// offset into the values file as the running sum of prior tiles'
// compressed sizes, mirroring AppendTileOffset's running-sum pattern.
// Call this before AppendTileVarSize so the recorded offset reflects
// the total accumulated by previous tiles only.
func (fm *FragmentMetadata) AppendTileVarOffset(attrIdx int) {
	slot := fm.varSlot(attrIdx)
	fm.TileVarOffsets[slot] = append(fm.TileVarOffsets[slot], fm.FileVarSizes[slot])
}

// AppendTileVarSize records the next var-size tile's byte size and
// accumulates it into that attribute's total var-file size.
func (fm *FragmentMetadata) AppendTileVarSize(attrIdx int, size uint64) {
	slot := fm.varSlot(attrIdx)
	fm.TileVarSizes[slot] = append(fm.TileVarSizes[slot], size)
	fm.FileVarSizes[slot] += size
}

// SetLastTileCellNum records the cell count of the final, possibly
// partial, tile (sparse only).
func (fm *FragmentMetadata) SetLastTileCellNum(n uint64) {
	fm.LastTileCellNum = n
}

// Check validates the cross-section invariants from spec.md §4.3:
// tile_offsets[a] strictly increasing, tile_var_offsets/sizes same
// length, and mbrs/bounding_coords/tile_offsets[a] equal length for
// every attribute in a sparse fragment.
func (fm *FragmentMetadata) Check() error {
	for a, offs := range fm.TileOffsets {
		for i := 1; i < len(offs); i++ {
			if offs[i] <= offs[i-1] {
				return fmt.Errorf("%w: tile_offsets[%d] not strictly increasing", ErrSchemaInvalid, a)
			}
		}
	}
	for i := range fm.TileVarOffsets {
		if len(fm.TileVarOffsets[i]) != len(fm.TileVarSizes[i]) {
			return fmt.Errorf("%w: tile_var_offsets/tile_var_sizes length mismatch", ErrSchemaInvalid)
		}
	}
	if fm.schema.Type == Sparse {
		for a := range fm.TileOffsets {
			if len(fm.MBRs) != len(fm.BoundingCoords) || len(fm.MBRs) != len(fm.TileOffsets[a]) {
				return fmt.Errorf("%w: mbrs/bounding_coords/tile_offsets length mismatch for attribute %d", ErrSchemaInvalid, a)
			}
		}
	}
	return nil
}

// Serialize emits the exact byte sequence defined in spec.md §6.
func (fm *FragmentMetadata) Serialize() ([]byte, error) {
	if err := fm.Check(); err != nil {
		return nil, err
	}
	var b bytes.Buffer
	coordType := fm.schema.Domain.Dims[0].Type

	for _, v := range fm.NonEmptyDomain {
		if err := writeDimBound(&b, coordType, v); err != nil {
			return nil, err
		}
	}

	if err := putU64(&b, uint64(len(fm.MBRs))); err != nil {
		return nil, err
	}
	for _, box := range fm.MBRs {
		for _, v := range box {
			if err := writeDimBound(&b, coordType, v); err != nil {
				return nil, err
			}
		}
	}

	if err := putU64(&b, uint64(len(fm.BoundingCoords))); err != nil {
		return nil, err
	}
	for _, bc := range fm.BoundingCoords {
		for _, v := range bc[0] {
			if err := writeDimBound(&b, coordType, v); err != nil {
				return nil, err
			}
		}
		for _, v := range bc[1] {
			if err := writeDimBound(&b, coordType, v); err != nil {
				return nil, err
			}
		}
	}

	for _, offs := range fm.TileOffsets {
		if err := putU64(&b, uint64(len(offs))); err != nil {
			return nil, err
		}
		for _, o := range offs {
			if err := putU64(&b, o); err != nil {
				return nil, err
			}
		}
	}

	for i := range fm.TileVarOffsets {
		if err := putU64(&b, uint64(len(fm.TileVarOffsets[i]))); err != nil {
			return nil, err
		}
		for _, o := range fm.TileVarOffsets[i] {
			if err := putU64(&b, o); err != nil {
				return nil, err
			}
		}
		if err := putU64(&b, uint64(len(fm.TileVarSizes[i]))); err != nil {
			return nil, err
		}
		for _, s := range fm.TileVarSizes[i] {
			if err := putU64(&b, s); err != nil {
				return nil, err
			}
		}
	}

	for _, fs := range fm.FileSizes {
		if err := putU64(&b, fs); err != nil {
			return nil, err
		}
	}
	for _, fvs := range fm.FileVarSizes {
		if err := putU64(&b, fvs); err != nil {
			return nil, err
		}
	}

	if err := putU64(&b, fm.LastTileCellNum); err != nil {
		return nil, err
	}
	for _, v := range fm.Version {
		if err := putI32(&b, v); err != nil {
			return nil, err
		}
	}

	return b.Bytes(), nil
}

// DeserializeFragmentMetadata restores a FragmentMetadata bound to
// schema from the byte sequence produced by Serialize.
func DeserializeFragmentMetadata(schema *ArrayMetadata, data []byte) (*FragmentMetadata, error) {
	r := bytes.NewReader(data)
	fm := NewFragmentMetadata(schema)
	coordType := schema.Domain.Dims[0].Type
	dimNum := len(schema.Domain.Dims)

	fm.NonEmptyDomain = make([]int64, 2*dimNum)
	for i := range fm.NonEmptyDomain {
		v, err := readDimBound(r, coordType)
		if err != nil {
			return nil, err
		}
		fm.NonEmptyDomain[i] = v
	}

	mbrCount, err := readU64(r)
	if err != nil {
		return nil, err
	}
	fm.MBRs = make([][]int64, mbrCount)
	for i := range fm.MBRs {
		box := make([]int64, 2*dimNum)
		for j := range box {
			v, err := readDimBound(r, coordType)
			if err != nil {
				return nil, err
			}
			box[j] = v
		}
		fm.MBRs[i] = box
	}

	bcCount, err := readU64(r)
	if err != nil {
		return nil, err
	}
	fm.BoundingCoords = make([][2][]int64, bcCount)
	for i := range fm.BoundingCoords {
		first := make([]int64, dimNum)
		last := make([]int64, dimNum)
		for j := range first {
			v, err := readDimBound(r, coordType)
			if err != nil {
				return nil, err
			}
			first[j] = v
		}
		for j := range last {
			v, err := readDimBound(r, coordType)
			if err != nil {
				return nil, err
			}
			last[j] = v
		}
		fm.BoundingCoords[i] = [2][]int64{first, last}
	}

	for a := range fm.TileOffsets {
		n, err := readU64(r)
		if err != nil {
			return nil, err
		}
		offs := make([]uint64, n)
		for i := range offs {
			if offs[i], err = readU64(r); err != nil {
				return nil, err
			}
		}
		fm.TileOffsets[a] = offs
	}

	for i := range fm.TileVarOffsets {
		n, err := readU64(r)
		if err != nil {
			return nil, err
		}
		offs := make([]uint64, n)
		for j := range offs {
			if offs[j], err = readU64(r); err != nil {
				return nil, err
			}
		}
		fm.TileVarOffsets[i] = offs

		n2, err := readU64(r)
		if err != nil {
			return nil, err
		}
		sizes := make([]uint64, n2)
		for j := range sizes {
			if sizes[j], err = readU64(r); err != nil {
				return nil, err
			}
		}
		fm.TileVarSizes[i] = sizes
	}

	for a := range fm.FileSizes {
		if fm.FileSizes[a], err = readU64(r); err != nil {
			return nil, err
		}
	}
	for i := range fm.FileVarSizes {
		if fm.FileVarSizes[i], err = readU64(r); err != nil {
			return nil, err
		}
	}

	if fm.LastTileCellNum, err = readU64(r); err != nil {
		return nil, err
	}
	for i := range fm.Version {
		if fm.Version[i], err = readI32(r); err != nil {
			return nil, err
		}
	}

	fm.Domain = expandDomainRaw(schema, fm.NonEmptyDomain)

	if err := fm.Check(); err != nil {
		return nil, err
	}
	return fm, nil
}

// expandDomainRaw expands a non-empty-domain bounding box to tile
// boundaries for dense arrays; sparse arrays keep it as-is.
func expandDomainRaw(schema *ArrayMetadata, ned []int64) []int64 {
	if schema.Type != Dense || len(ned) == 0 {
		return append([]int64(nil), ned...)
	}
	dimNum := len(schema.Domain.Dims)
	sub := Subarray{Lo: make([]int64, dimNum), Hi: make([]int64, dimNum)}
	for i := 0; i < dimNum; i++ {
		sub.Lo[i] = ned[2*i]
		sub.Hi[i] = ned[2*i+1]
	}
	expanded := schema.Domain.ExpandDomain(sub)
	out := make([]int64, 2*dimNum)
	for i := 0; i < dimNum; i++ {
		out[2*i] = expanded.Lo[i]
		out[2*i+1] = expanded.Hi[i]
	}
	return out
}
