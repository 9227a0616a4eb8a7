package sparsearray

import (
	"context"
	"sort"
)

// FragmentRangeSource implements cellRangeSource over one fragment's
// tiles intersecting a query subarray, feeding the Reconciler (spec.md
// §4.7's "stream of FragmentCellRange produced by intersecting the
// subarray with the fragment's tiles").
//
// Each emitted range spans one whole overlapping tile; finer-grained
// exclusion of cells inside the tile but outside the subarray happens
// later during result assembly, which re-checks every cell's
// coordinates against the subarray before copying it out.
type FragmentRangeSource struct {
	ctx        context.Context
	frag       *Fragment
	fragmentID int64
	dom        *Domain
	sub        Subarray
	loader     *Loader

	tilePositions []int
	idx          int
	lastTilePos  int
	haveLast     bool
}

// NewFragmentRangeSource precomputes the tile positions of frag that
// overlap sub, in ascending tile order, ready for Next to stream out.
func NewFragmentRangeSource(ctx context.Context, frag *Fragment, fragmentID int64, dom *Domain, sub Subarray, loader *Loader) *FragmentRangeSource {
	src := &FragmentRangeSource{
		ctx: ctx, frag: frag, fragmentID: fragmentID, dom: dom, sub: sub, loader: loader,
	}
	for pos := range frag.Metadata.BoundingCoords {
		if src.tileOverlaps(pos) {
			src.tilePositions = append(src.tilePositions, pos)
		}
	}
	sort.Ints(src.tilePositions)
	return src
}

func (s *FragmentRangeSource) tileOverlaps(pos int) bool {
	first := s.frag.Metadata.BoundingCoords[pos][0]
	last := s.frag.Metadata.BoundingCoords[pos][1]
	n := len(s.dom.Dims)
	tileBox := Subarray{Lo: make([]int64, n), Hi: make([]int64, n)}
	for i := 0; i < n; i++ {
		lo, hi := first[i], last[i]
		if lo > hi {
			lo, hi = hi, lo
		}
		tileBox.Lo[i], tileBox.Hi[i] = lo, hi
	}
	var out Subarray
	return s.dom.SubarrayOverlap(s.sub, tileBox, &out) != OverlapNone
}

// Next returns the next overlapping tile as a whole-tile
// FragmentCellRange.
func (s *FragmentRangeSource) Next() (FragmentCellRange, bool, error) {
	if s.idx >= len(s.tilePositions) {
		return FragmentCellRange{}, false, nil
	}
	pos := s.tilePositions[s.idx]
	s.idx++
	s.lastTilePos = pos
	s.haveLast = true

	first := s.frag.Metadata.BoundingCoords[pos][0]
	last := s.frag.Metadata.BoundingCoords[pos][1]
	startRank, err := s.dom.Rank(first)
	if err != nil {
		return FragmentCellRange{}, false, err
	}
	endRank, err := s.dom.Rank(last)
	if err != nil {
		return FragmentCellRange{}, false, err
	}
	return FragmentCellRange{
		FragmentID: s.fragmentID,
		TileIDLo:   s.tileIDOfRank(startRank),
		TileIDHi:   s.tileIDOfRank(endRank),
		StartRank:  startRank,
		EndRank:    endRank,
	}, true, nil
}

func (s *FragmentRangeSource) tileIDOfRank(rank uint64) uint64 {
	return rank / uint64(s.dom.CellsPerTile())
}

// EnclosingCoords loads the coordinate tile the most recently emitted
// range came from and binary-searches its (write-time sorted) cell
// order for the ranks bracketing at.
func (s *FragmentRangeSource) EnclosingCoords(at uint64) (less uint64, hasLess bool, exact bool, greater uint64, hasGreater bool, err error) {
	if !s.haveLast {
		return 0, false, false, 0, false, nil
	}
	raw, loadErr := s.loader.LoadTile(s.ctx, 0, s.lastTilePos)
	if loadErr != nil {
		return 0, false, false, 0, false, loadErr
	}
	coordType := s.dom.Dims[0].Type
	flat, decErr := DecodeFixedInt64(raw, coordType)
	if decErr != nil {
		return 0, false, false, 0, false, decErr
	}
	dimNum := len(s.dom.Dims)
	cellNum := len(flat) / dimNum

	ranks := make([]uint64, cellNum)
	for i := 0; i < cellNum; i++ {
		coords := flat[i*dimNum : (i+1)*dimNum]
		r, rerr := s.dom.Rank(coords)
		if rerr != nil {
			return 0, false, false, 0, false, rerr
		}
		ranks[i] = r
	}

	// ranks is sorted ascending: cells are written in global cell order.
	i := sort.Search(len(ranks), func(i int) bool { return ranks[i] >= at })
	if i < len(ranks) && ranks[i] == at {
		exact = true
	}
	if i > 0 {
		less, hasLess = ranks[i-1], true
	}
	j := i
	if exact {
		j = i + 1
	}
	if j < len(ranks) {
		greater, hasGreater = ranks[j], true
	}
	return less, hasLess, exact, greater, hasGreater, nil
}
