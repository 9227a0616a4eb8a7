package sparsearray

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatReconcileDomain is a single-dimension domain spanning one tile
// wide enough to hold every rank these tests use, so tileIDOfRank
// never crosses a tile boundary mid-range the way a zero-value
// Domain{} (CellsPerTile()==1) would.
func flatReconcileDomain() *Domain {
	return &Domain{Dims: []Dimension{{Name: "x", Type: Int64, DomainLo: 0, DomainHi: 999}}}
}

// fakeSource is a cellRangeSource backed by a fixed list of ranges and,
// for Case B tests, a sorted list of ranks the fragment actually holds.
type fakeSource struct {
	ranges []FragmentCellRange
	pos    int
	ranks  []uint64 // sorted, used by EnclosingCoords
}

func (f *fakeSource) Next() (FragmentCellRange, bool, error) {
	if f.pos >= len(f.ranges) {
		return FragmentCellRange{}, false, nil
	}
	r := f.ranges[f.pos]
	f.pos++
	return r, true, nil
}

func (f *fakeSource) EnclosingCoords(at uint64) (less uint64, hasLess bool, exact bool, greater uint64, hasGreater bool, err error) {
	i := sort.Search(len(f.ranks), func(i int) bool { return f.ranks[i] >= at })
	if i > 0 {
		less, hasLess = f.ranks[i-1], true
	}
	if i < len(f.ranks) && f.ranks[i] == at {
		exact = true
		i++
	}
	if i < len(f.ranks) {
		greater, hasGreater = f.ranks[i], true
	}
	return
}

func drainAll(t *testing.T, rc *Reconciler) []FragmentCellRange {
	t.Helper()
	var out []FragmentCellRange
	for {
		r, ok, err := rc.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, r)
	}
}

// TestReconcileDenseNewerFragmentWins covers spec.md §4.7's Case A: a
// newer fragment's range fully covering an older one's trims the older
// range away entirely.
func TestReconcileDenseNewerFragmentWins(t *testing.T) {
	rc := NewReconciler(flatReconcileDomain(), true)
	older := &fakeSource{ranges: []FragmentCellRange{{FragmentID: 0, StartRank: 0, EndRank: 9, TileIDLo: 0, TileIDHi: 0}}}
	newer := &fakeSource{ranges: []FragmentCellRange{{FragmentID: 1, StartRank: 0, EndRank: 9, TileIDLo: 0, TileIDHi: 0}}}
	require.NoError(t, rc.AddFragment(0, older))
	require.NoError(t, rc.AddFragment(1, newer))

	out := drainAll(t, rc)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].FragmentID)
	assert.Equal(t, uint64(0), out[0].StartRank)
	assert.Equal(t, uint64(9), out[0].EndRank)
}

// TestReconcileDensePartialOverlapSplitsOlder covers the split phase: a
// newer fragment covering only the tail of an older range causes the
// older range to surface trimmed to its untouched prefix.
func TestReconcileDensePartialOverlapSplitsOlder(t *testing.T) {
	rc := NewReconciler(flatReconcileDomain(), true)
	older := &fakeSource{ranges: []FragmentCellRange{{FragmentID: 0, StartRank: 0, EndRank: 9, TileIDLo: 0, TileIDHi: 0}}}
	newer := &fakeSource{ranges: []FragmentCellRange{{FragmentID: 1, StartRank: 5, EndRank: 9, TileIDLo: 0, TileIDHi: 0}}}
	require.NoError(t, rc.AddFragment(0, older))
	require.NoError(t, rc.AddFragment(1, newer))

	out := drainAll(t, rc)
	require.Len(t, out, 2)

	byFragment := map[int64]FragmentCellRange{}
	for _, r := range out {
		byFragment[r.FragmentID] = r
	}
	assert.Equal(t, uint64(0), byFragment[0].StartRank)
	assert.Equal(t, uint64(4), byFragment[0].EndRank)
	assert.Equal(t, uint64(5), byFragment[1].StartRank)
	assert.Equal(t, uint64(9), byFragment[1].EndRank)
}

// TestReconcileDenseDisjointRangesPreserveOrder checks two non-
// overlapping fragments merge in rank order without trimming either.
func TestReconcileDenseDisjointRangesPreserveOrder(t *testing.T) {
	rc := NewReconciler(flatReconcileDomain(), true)
	a := &fakeSource{ranges: []FragmentCellRange{{FragmentID: 0, StartRank: 0, EndRank: 4, TileIDLo: 0, TileIDHi: 0}}}
	b := &fakeSource{ranges: []FragmentCellRange{{FragmentID: 1, StartRank: 5, EndRank: 9, TileIDLo: 0, TileIDHi: 0}}}
	require.NoError(t, rc.AddFragment(0, a))
	require.NoError(t, rc.AddFragment(1, b))

	out := drainAll(t, rc)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(0), out[0].StartRank)
	assert.Equal(t, uint64(5), out[1].StartRank)
}

// TestReconcileSparseUnaryFragmentsDeduplicate covers the unary path of
// a sparse read, which runs through Case A: two fragments both writing
// the single coordinate at rank 3; only the newer survives.
func TestReconcileSparseUnaryFragmentsDeduplicate(t *testing.T) {
	rc := NewReconciler(flatReconcileDomain(), false)
	older := &fakeSource{ranges: []FragmentCellRange{{FragmentID: 0, StartRank: 3, EndRank: 3, TileIDLo: 0, TileIDHi: 0}}}
	newer := &fakeSource{ranges: []FragmentCellRange{{FragmentID: 1, StartRank: 3, EndRank: 3, TileIDLo: 0, TileIDHi: 0}}}
	require.NoError(t, rc.AddFragment(0, older))
	require.NoError(t, rc.AddFragment(1, newer))

	out := drainAll(t, rc)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].FragmentID)
}

// TestReconcileSparseCaseBSplitsAroundCompetingStart exercises Case B's
// enclosing-coordinate split: an older fragment holds a multi-cell
// sparse range [0,9] with actual coordinates at ranks {0,2,4,6,8}; a
// newer fragment writes only rank 4. The reconciled output must carry
// the newer fragment's cell at rank 4 and the older fragment's
// remaining cells on either side, never both at rank 4.
func TestReconcileSparseCaseBSplitsAroundCompetingStart(t *testing.T) {
	rc := NewReconciler(flatReconcileDomain(), false)
	older := &fakeSource{
		ranges: []FragmentCellRange{{FragmentID: 0, StartRank: 0, EndRank: 9, TileIDLo: 0, TileIDHi: 0}},
		ranks:  []uint64{0, 2, 4, 6, 8},
	}
	newer := &fakeSource{ranges: []FragmentCellRange{{FragmentID: 1, StartRank: 4, EndRank: 4, TileIDLo: 0, TileIDHi: 0}}}
	require.NoError(t, rc.AddFragment(0, older))
	require.NoError(t, rc.AddFragment(1, newer))

	out := drainAll(t, rc)

	var sawExactNewer bool
	for _, r := range out {
		if r.FragmentID == 1 {
			assert.Equal(t, uint64(4), r.StartRank)
			assert.Equal(t, uint64(4), r.EndRank)
			sawExactNewer = true
		}
	}
	assert.True(t, sawExactNewer, "expected the newer fragment's cell at rank 4 to survive")

	// No overlapping ranks across outputs: reconstruct the set of ranks
	// each output range covers and confirm no rank is claimed twice.
	seen := make(map[uint64]int64)
	for _, r := range out {
		for rank := r.StartRank; rank <= r.EndRank; rank++ {
			if owner, ok := seen[rank]; ok {
				t.Fatalf("rank %d claimed by both fragment %d and %d", rank, owner, r.FragmentID)
			}
			seen[rank] = r.FragmentID
		}
	}
}
