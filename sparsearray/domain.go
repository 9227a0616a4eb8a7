package sparsearray

import "fmt"

// TileOrder and CellOrder select how tile coordinates, respectively cell
// coordinates within a tile, are projected to a scalar index.
type Order uint8

const (
	RowMajor Order = 0
	ColMajor Order = 1
	// Hilbert orders tiles (or cells) along a Hilbert space-filling
	// curve instead of lexicographically. Supplemental to spec.md's
	// "one of {row-major, column-major}"; generalized from the 2-D
	// Z/X/Y Hilbert math the teacher uses for tile addressing.
	Hilbert Order = 2
)

// Subarray is a hyper-rectangular query/write region: inclusive [Lo, Hi]
// per dimension, in the same dimension order as the Domain.
type Subarray struct {
	Lo []int64
	Hi []int64
}

// OverlapKind classifies how two subarrays intersect.
type OverlapKind uint8

const (
	OverlapNone OverlapKind = iota
	OverlapPartial
	OverlapFullContiguous
	OverlapFullNonContiguous
)

// Domain (a.k.a. Hyperspace) is an ordered sequence of Dimensions sharing
// a common type, plus a tile order and cell order.
type Domain struct {
	Dims      []Dimension
	TileOrder Order
	CellOrder Order

	// derived, computed by Init
	tileStrides []int64 // per-dimension stride for tile-ID projection
	cellStrides []int64 // per-dimension stride for in-tile cell position
}

// Check validates the domain-level invariants: a common type across
// dimensions, at least one dimension, and a recognized tile/cell order.
func (dom *Domain) Check() error {
	if len(dom.Dims) == 0 {
		return fmt.Errorf("%w: domain must have at least one dimension", ErrSchemaInvalid)
	}
	t := dom.Dims[0].Type
	for _, d := range dom.Dims {
		if d.Type != t {
			return fmt.Errorf("%w: all dimensions must share a type", ErrSchemaInvalid)
		}
		if err := d.Check(); err != nil {
			return err
		}
	}
	if dom.TileOrder > Hilbert || dom.CellOrder > Hilbert {
		return fmt.Errorf("%w: unsupported tile/cell order", ErrInvalidLayout)
	}
	return nil
}

// CoordSize returns dim_num * sizeof(type).
func (dom *Domain) CoordSize() int {
	if len(dom.Dims) == 0 {
		return 0
	}
	return len(dom.Dims) * dom.Dims[0].Type.SizeBytes()
}

// Init precomputes the row/column-major strides used by TileID and
// CellPositionInTile so the hot path is a flat dot product, per the
// "table-driven" design decision in spec.md §4.1.
func (dom *Domain) Init() error {
	if err := dom.Check(); err != nil {
		return err
	}
	n := len(dom.Dims)
	dom.tileStrides = make([]int64, n)
	dom.cellStrides = make([]int64, n)

	tileCounts := make([]int64, n)
	cellCounts := make([]int64, n)
	for i, d := range dom.Dims {
		tileCounts[i] = d.NumTiles()
		if d.HasExtent {
			cellCounts[i] = d.TileExtent
		} else {
			cellCounts[i] = d.DomainHi - d.DomainLo + 1
		}
	}

	computeStrides(dom.tileStrides, tileCounts, dom.TileOrder)
	computeStrides(dom.cellStrides, cellCounts, dom.CellOrder)
	return nil
}

// strideOrder returns dimension indices from most-significant stride to
// least, matching how computeStrides built the table: index 0 is most
// significant for RowMajor, index n-1 for ColMajor.
func strideOrder(n int, order Order) []int {
	out := make([]int, n)
	if order == ColMajor {
		for i := 0; i < n; i++ {
			out[i] = n - 1 - i
		}
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = i
	}
	return out
}

func computeStrides(strides []int64, counts []int64, order Order) {
	n := len(counts)
	if order == ColMajor {
		acc := int64(1)
		for i := 0; i < n; i++ {
			strides[i] = acc
			acc *= counts[i]
		}
		return
	}
	// RowMajor (and Hilbert, whose stride table is unused — see TileID)
	acc := int64(1)
	for i := n - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= counts[i]
	}
}

// TileID computes the scalar tile-ID for a coordinate. Integer
// coordinates only: each coords[i]-domain_lo[i] is divided by the tile
// extent to get tile_coords, then projected to a scalar by the
// precomputed stride table (or a Hilbert curve when TileOrder ==
// Hilbert).
func (dom *Domain) TileID(coords []int64) (uint64, error) {
	tileCoords := make([]int64, len(dom.Dims))
	for i, d := range dom.Dims {
		if !d.HasExtent {
			return 0, fmt.Errorf("%w: dimension %q has no tile extent", ErrInvalidLayout, d.Name)
		}
		tileCoords[i] = (coords[i] - d.DomainLo) / d.TileExtent
	}
	if dom.TileOrder == Hilbert {
		return hilbertEncode(tileCoords, dom.tileNumTiles()), nil
	}
	var id int64
	for i, tc := range tileCoords {
		id += tc * dom.tileStrides[i]
	}
	return uint64(id), nil
}

func (dom *Domain) tileNumTiles() []int64 {
	out := make([]int64, len(dom.Dims))
	for i, d := range dom.Dims {
		out[i] = d.NumTiles()
	}
	return out
}

// CellPositionInTile computes the scalar position of coords within its
// own tile (coordinates normalized into [0, tile_extent) per dimension).
func (dom *Domain) CellPositionInTile(coords []int64) (uint64, error) {
	cellCoords := make([]int64, len(dom.Dims))
	for i, d := range dom.Dims {
		if d.HasExtent {
			cellCoords[i] = (coords[i] - d.DomainLo) % d.TileExtent
		} else {
			cellCoords[i] = coords[i] - d.DomainLo
		}
	}
	if dom.CellOrder == Hilbert {
		extents := make([]int64, len(dom.Dims))
		for i, d := range dom.Dims {
			if d.HasExtent {
				extents[i] = d.TileExtent
			} else {
				extents[i] = d.DomainHi - d.DomainLo + 1
			}
		}
		return hilbertEncode(cellCoords, extents), nil
	}
	var pos int64
	for i, cc := range cellCoords {
		pos += cc * dom.cellStrides[i]
	}
	return uint64(pos), nil
}

// CellOrderCmp compares two coordinates lexicographically in dimension
// order for row-major, or in reverse dimension order for column-major.
// Equal coordinates compare Equal — the ambiguity the source left
// undefined (spec.md §9) is resolved here by treating full equality as
// Equal rather than leaving the loop without a return.
func (dom *Domain) CellOrderCmp(a, b []int64) int {
	return orderCmp(a, b, dom.CellOrder)
}

func orderCmp(a, b []int64, order Order) int {
	n := len(a)
	if order == ColMajor {
		for i := n - 1; i >= 0; i-- {
			if a[i] != b[i] {
				if a[i] < b[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// TileCellOrderCmp compares two coordinates by global (tile-then-cell)
// order: tile-IDs first, ties broken by cell order.
func (dom *Domain) TileCellOrderCmp(a, b []int64) (int, error) {
	ta, err := dom.TileID(a)
	if err != nil {
		return 0, err
	}
	tb, err := dom.TileID(b)
	if err != nil {
		return 0, err
	}
	if ta != tb {
		if ta < tb {
			return -1, nil
		}
		return 1, nil
	}
	return dom.CellOrderCmp(a, b), nil
}

// SubarrayOverlap classifies the intersection of subA and subB, writing
// the intersection into out when it is non-empty.
func (dom *Domain) SubarrayOverlap(subA, subB Subarray, out *Subarray) OverlapKind {
	n := len(dom.Dims)
	lo := make([]int64, n)
	hi := make([]int64, n)
	full := true
	for i := 0; i < n; i++ {
		lo[i] = max64(subA.Lo[i], subB.Lo[i])
		hi[i] = min64(subA.Hi[i], subB.Hi[i])
		if lo[i] > hi[i] {
			return OverlapNone
		}
		if lo[i] != subA.Lo[i] || hi[i] != subA.Hi[i] {
			full = false
		}
	}
	out.Lo = lo
	out.Hi = hi
	if !full {
		return OverlapPartial
	}
	// Full: contiguous iff every dimension but the (row/column-major)
	// leading one spans its entire domain range in subB, so the
	// intersection forms one run in global order.
	leading := n - 1
	if dom.CellOrder == ColMajor {
		leading = 0
	}
	for i := 0; i < n; i++ {
		if i == leading {
			continue
		}
		if subB.Lo[i] != dom.Dims[i].DomainLo || subB.Hi[i] != dom.Dims[i].DomainHi {
			return OverlapFullNonContiguous
		}
	}
	return OverlapFullContiguous
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// GetNextTileCoords increments tileCoords by one step in tile order
// (odometer increment), returning found=false once the odometer rolls
// past the final tile.
func (dom *Domain) GetNextTileCoords(tileCoords []int64) (next []int64, found bool) {
	counts := dom.tileNumTiles()
	return odometerNext(tileCoords, counts, dom.TileOrder)
}

// GetNextCellCoords increments cellCoords by one step in cell order
// within the same tile extents.
func (dom *Domain) GetNextCellCoords(cellCoords []int64, tileExtents []int64) (next []int64, found bool) {
	return odometerNext(cellCoords, tileExtents, dom.CellOrder)
}

func odometerNext(coords []int64, counts []int64, order Order) ([]int64, bool) {
	n := len(coords)
	next := append([]int64(nil), coords...)
	if order == ColMajor {
		for i := 0; i < n; i++ {
			next[i]++
			if next[i] < counts[i] {
				return next, true
			}
			next[i] = 0
		}
		return next, false
	}
	for i := n - 1; i >= 0; i-- {
		next[i]++
		if next[i] < counts[i] {
			return next, true
		}
		next[i] = 0
	}
	return next, false
}

// CellsPerTile returns the number of cell slots in one tile (the product
// of each dimension's tile extent, or its full domain span for
// dimensions without one).
func (dom *Domain) CellsPerTile() int64 {
	n := int64(1)
	for _, d := range dom.Dims {
		if d.HasExtent {
			n *= d.TileExtent
		} else {
			n *= d.DomainHi - d.DomainLo + 1
		}
	}
	return n
}

// Rank computes a single global scalar position for coords: its tile-id
// times CellsPerTile plus its in-tile cell position. Ranks are
// contiguous and strictly increasing in global (tile-then-cell) order,
// which lets the reconciliation engine (reconcile.go) step to a
// coordinate's predecessor/successor by simple integer arithmetic
// instead of re-deriving an N-dimensional odometer step each time.
func (dom *Domain) Rank(coords []int64) (uint64, error) {
	tid, err := dom.TileID(coords)
	if err != nil {
		return 0, err
	}
	pos, err := dom.CellPositionInTile(coords)
	if err != nil {
		return 0, err
	}
	return tid*uint64(dom.CellsPerTile())+pos, nil
}

// CoordsAtRank inverts Rank, for dimensions that all carry a tile
// extent (dense layouts, and any sparse layout whose dimensions are
// still extent-partitioned for tiling purposes).
func (dom *Domain) CoordsAtRank(rank uint64) ([]int64, error) {
	if dom.TileOrder == Hilbert || dom.CellOrder == Hilbert {
		return nil, fmt.Errorf("%w: rank inversion unsupported under Hilbert order", ErrInvalidLayout)
	}
	cellsPerTile := uint64(dom.CellsPerTile())
	tid := rank / cellsPerTile
	pos := rank % cellsPerTile

	n := len(dom.Dims)
	tileCoords := make([]int64, n)
	rem := int64(tid)
	for _, i := range strideOrder(n, dom.TileOrder) {
		s := dom.tileStrides[i]
		tileCoords[i] = rem / s
		rem -= tileCoords[i] * s
	}
	cellCoords := make([]int64, n)
	remc := int64(pos)
	for _, i := range strideOrder(n, dom.CellOrder) {
		s := dom.cellStrides[i]
		cellCoords[i] = remc / s
		remc -= cellCoords[i] * s
	}

	out := make([]int64, n)
	for i, d := range dom.Dims {
		extent := d.TileExtent
		if !d.HasExtent {
			extent = d.DomainHi - d.DomainLo + 1
		}
		out[i] = d.DomainLo + tileCoords[i]*extent + cellCoords[i]
	}
	return out, nil
}

// ExpandDomain enlarges sub minimally so each axis is a whole number of
// tile extents, for dense arrays (spec.md §4.1).
func (dom *Domain) ExpandDomain(sub Subarray) Subarray {
	n := len(dom.Dims)
	out := Subarray{Lo: make([]int64, n), Hi: make([]int64, n)}
	for i, d := range dom.Dims {
		if !d.HasExtent {
			out.Lo[i], out.Hi[i] = sub.Lo[i], sub.Hi[i]
			continue
		}
		loOff := (sub.Lo[i] - d.DomainLo) / d.TileExtent * d.TileExtent
		out.Lo[i] = d.DomainLo + loOff
		hiOff := (sub.Hi[i]-d.DomainLo)/d.TileExtent*d.TileExtent + d.TileExtent - 1
		hi := d.DomainLo + hiOff
		if hi > d.DomainHi {
			hi = d.DomainHi
		}
		out.Hi[i] = hi
	}
	return out
}
