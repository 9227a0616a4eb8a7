package sparsearray

import (
	"context"
	"fmt"
	"sort"
)

// ResultBuffer is one attribute's user-supplied destination: a flat
// byte slice for fixed-size attributes, or an offsets table plus a
// values slice for variable-size attributes. Validity is only consulted
// for nullable attributes.
type ResultBuffer struct {
	Fixed    []byte
	Offsets  []uint64
	Var      []byte
	Validity []byte

	fixedLen   int
	offsetsLen int
	varLen     int
}

// QueryResult summarizes an Assemble call.
type QueryResult struct {
	CellsWritten int
	Status       Status
}

// Assembler copies reconciled cell ranges into user buffers (spec.md
// §4.10), consulting one Loader per contributing fragment.
type Assembler struct {
	schema     *ArrayMetadata
	dense      bool
	loaders    map[int64]*Loader
	fillValues map[string][]byte
}

// NewAssembler creates an Assembler over schema, with loaders keyed by
// fragment id and fillValues giving each attribute's configured
// dense-fill-value bytes (spec.md §4.10's "Empty-fragment sentinel
// ranges write configured fill values").
func NewAssembler(schema *ArrayMetadata, loaders map[int64]*Loader, fillValues map[string][]byte) *Assembler {
	return &Assembler{schema: schema, dense: schema.Type == Dense, loaders: loaders, fillValues: fillValues}
}

// Assemble consumes ranges in order and copies the requested attrs'
// values into buffers. It returns StatusIncomplete (not an error) and
// the largest prefix of cells that fit, if any destination buffer would
// overflow.
func (a *Assembler) Assemble(ctx context.Context, ranges []FragmentCellRange, sub Subarray, dom *Domain, attrs []string, buffers map[string]*ResultBuffer) (QueryResult, error) {
	written := 0

	for _, rng := range ranges {
		cells, err := a.rangeCells(ctx, rng, sub, dom)
		if err != nil {
			return QueryResult{CellsWritten: written, Status: StatusComplete}, err
		}
		for _, cell := range cells {
			ok, err := a.copyCell(ctx, rng, cell, attrs, buffers)
			if err != nil {
				return QueryResult{CellsWritten: written, Status: StatusComplete}, err
			}
			if !ok {
				return QueryResult{CellsWritten: written, Status: StatusIncomplete}, nil
			}
			written++
		}
	}
	return QueryResult{CellsWritten: written, Status: StatusComplete}, nil
}

// rangeCell identifies one cell to copy: its coordinates and, for
// sparse fragments, its sequential index within the tile's on-disk
// arrays (the position Loader's decoded buffers use).
type rangeCell struct {
	coords  []int64
	tileIdx int
}

func (a *Assembler) rangeCells(ctx context.Context, rng FragmentCellRange, sub Subarray, dom *Domain) ([]rangeCell, error) {
	if rng.FragmentID == sentinelEmptyFragment {
		var out []rangeCell
		for r := rng.StartRank; r <= rng.EndRank; r++ {
			coords, err := dom.CoordsAtRank(r)
			if err != nil {
				return nil, err
			}
			if coordsInSubarray(coords, sub) {
				out = append(out, rangeCell{coords: coords})
			}
		}
		return out, nil
	}

	loader := a.loaders[rng.FragmentID]
	if loader == nil {
		return nil, fmt.Errorf("%w: no loader registered for fragment %d", ErrNotFound, rng.FragmentID)
	}
	tilePos := int(rng.TileIDLo)

	if !a.dense {
		raw, err := loader.LoadTile(ctx, 0, tilePos)
		if err != nil {
			return nil, err
		}
		coordType := dom.Dims[0].Type
		flat, err := DecodeFixedInt64(raw, coordType)
		if err != nil {
			return nil, err
		}
		dimNum := len(dom.Dims)
		cellNum := len(flat) / dimNum
		ranks := make([]uint64, cellNum)
		for i := 0; i < cellNum; i++ {
			r, err := dom.Rank(flat[i*dimNum : (i+1)*dimNum])
			if err != nil {
				return nil, err
			}
			ranks[i] = r
		}
		lo := sort.Search(cellNum, func(i int) bool { return ranks[i] >= rng.StartRank })
		hi := sort.Search(cellNum, func(i int) bool { return ranks[i] > rng.EndRank })

		var out []rangeCell
		for i := lo; i < hi; i++ {
			coords := append([]int64(nil), flat[i*dimNum:(i+1)*dimNum]...)
			if coordsInSubarray(coords, sub) {
				out = append(out, rangeCell{coords: coords, tileIdx: i})
			}
		}
		return out, nil
	}

	var out []rangeCell
	cellsPerTile := uint64(dom.CellsPerTile())
	base := rng.StartRank - rng.StartRank%cellsPerTile
	for r := rng.StartRank; r <= rng.EndRank; r++ {
		coords, err := dom.CoordsAtRank(r)
		if err != nil {
			return nil, err
		}
		if coordsInSubarray(coords, sub) {
			out = append(out, rangeCell{coords: coords, tileIdx: int(r - base)})
		}
	}
	return out, nil
}

func coordsInSubarray(coords []int64, sub Subarray) bool {
	for i := range coords {
		if coords[i] < sub.Lo[i] || coords[i] > sub.Hi[i] {
			return false
		}
	}
	return true
}

// copyCell copies one cell's requested attribute values into buffers,
// returning ok=false without mutating further if any destination would
// overflow. Each attribute is checked and appended in turn in a single
// pass; there is no separate sizing pass, so when a later attribute
// overflows, the values already appended for this cell to earlier
// attributes' buffers stay in place.
func (a *Assembler) copyCell(ctx context.Context, rng FragmentCellRange, cell rangeCell, attrs []string, buffers map[string]*ResultBuffer) (bool, error) {
	for _, name := range attrs {
		buf := buffers[name]
		if buf == nil {
			continue
		}
		if rng.FragmentID == sentinelEmptyFragment {
			if !a.appendFill(name, buf) {
				return false, nil
			}
			continue
		}
		attr := a.findAttr(name)
		loader := a.loaders[rng.FragmentID]
		attrIdx := a.attrIndex(name)

		if attr.IsVar() {
			raw, err := loader.LoadTile(ctx, attrIdx, int(rng.TileIDLo))
			if err != nil {
				return false, err
			}
			offsets, err := DecodeFixedInt64(raw, Uint64)
			if err != nil {
				return false, err
			}
			values, err := loader.LoadVarValues(ctx, attrIdx, int(rng.TileIDLo))
			if err != nil {
				return false, err
			}
			start := uint64(offsets[cell.tileIdx])
			end := uint64(len(values))
			if cell.tileIdx+1 < len(offsets) {
				end = uint64(offsets[cell.tileIdx+1])
			}
			if !a.appendVar(buf, values[start:end]) {
				return false, nil
			}
			continue
		}

		raw, err := loader.LoadTile(ctx, attrIdx, int(rng.TileIDLo))
		if err != nil {
			return false, err
		}
		size := attr.Type.SizeBytes()
		off := cell.tileIdx * size
		if off+size > len(raw) {
			return false, fmt.Errorf("%w: cell index out of range for attribute %q", ErrIoError, name)
		}
		if !a.appendFixed(buf, raw[off:off+size]) {
			return false, nil
		}
	}
	return true, nil
}

func (a *Assembler) findAttr(name string) Attribute {
	for _, attr := range a.schema.Attrs {
		if attr.Name == name {
			return attr
		}
	}
	return Attribute{}
}

func (a *Assembler) attrIndex(name string) int {
	for i, attr := range a.schema.Attrs {
		if attr.Name == name {
			return i + 1
		}
	}
	return -1
}

func (a *Assembler) appendFixed(buf *ResultBuffer, cell []byte) bool {
	if buf.fixedLen+len(cell) > len(buf.Fixed) {
		return false
	}
	copy(buf.Fixed[buf.fixedLen:], cell)
	buf.fixedLen += len(cell)
	return true
}

func (a *Assembler) appendVar(buf *ResultBuffer, cell []byte) bool {
	if buf.offsetsLen >= len(buf.Offsets) || buf.varLen+len(cell) > len(buf.Var) {
		return false
	}
	buf.Offsets[buf.offsetsLen] = uint64(buf.varLen)
	buf.offsetsLen++
	copy(buf.Var[buf.varLen:], cell)
	buf.varLen += len(cell)
	return true
}

func (a *Assembler) appendFill(name string, buf *ResultBuffer) bool {
	fill := a.fillValues[name]
	if len(fill) == 0 {
		attr := a.findAttr(name)
		fill = make([]byte, attr.CellSize())
	}
	return a.appendFixed(buf, fill)
}
