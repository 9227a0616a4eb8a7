package sparsearray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoDimDomain(t *testing.T, order Order) *Domain {
	t.Helper()
	dom := &Domain{
		Dims: []Dimension{
			{Name: "x", Type: Int64, DomainLo: 0, DomainHi: 3, TileExtent: 2, HasExtent: true},
			{Name: "y", Type: Int64, DomainLo: 0, DomainHi: 3, TileExtent: 2, HasExtent: true},
		},
		TileOrder: order,
		CellOrder: order,
	}
	require.NoError(t, dom.Init())
	return dom
}

func TestDomainTileIDCorners(t *testing.T) {
	dom := twoDimDomain(t, RowMajor)
	tid, err := dom.TileID([]int64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tid)

	tid, err = dom.TileID([]int64{3, 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), tid) // 2x2 tile grid, bottom-right tile
}

func TestDomainRankInvertibleRowMajor(t *testing.T) {
	dom := twoDimDomain(t, RowMajor)
	for x := int64(0); x < 4; x++ {
		for y := int64(0); y < 4; y++ {
			coords := []int64{x, y}
			rank, err := dom.Rank(coords)
			require.NoError(t, err)
			back, err := dom.CoordsAtRank(rank)
			require.NoError(t, err)
			assert.Equal(t, coords, back)
		}
	}
}

func TestDomainRankInvertibleColMajor(t *testing.T) {
	dom := twoDimDomain(t, ColMajor)
	for x := int64(0); x < 4; x++ {
		for y := int64(0); y < 4; y++ {
			coords := []int64{x, y}
			rank, err := dom.Rank(coords)
			require.NoError(t, err)
			back, err := dom.CoordsAtRank(rank)
			require.NoError(t, err)
			assert.Equal(t, coords, back)
		}
	}
}

func TestDomainRankMonotonicWithinTile(t *testing.T) {
	dom := twoDimDomain(t, RowMajor)
	rPrev, err := dom.Rank([]int64{0, 0})
	require.NoError(t, err)
	for _, c := range [][]int64{{0, 1}, {1, 0}, {1, 1}} {
		r, err := dom.Rank(c)
		require.NoError(t, err)
		assert.Greater(t, r, rPrev)
		rPrev = r
	}
}

func TestDomainHilbertRankUnsupported(t *testing.T) {
	dom := twoDimDomain(t, Hilbert)
	_, err := dom.CoordsAtRank(0)
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestDomainCheckRejectsMismatchedTypes(t *testing.T) {
	dom := &Domain{Dims: []Dimension{
		{Name: "x", Type: Int64, DomainLo: 0, DomainHi: 1},
		{Name: "y", Type: Float64, DomainLo: 0, DomainHi: 1},
	}}
	assert.ErrorIs(t, dom.Check(), ErrSchemaInvalid)
}

func TestDimensionCheckRejectsNonDividingExtent(t *testing.T) {
	d := Dimension{Name: "x", Type: Int64, DomainLo: 0, DomainHi: 9, TileExtent: 4, HasExtent: true}
	assert.ErrorIs(t, d.Check(), ErrSchemaInvalid)
}

func TestSubarrayOverlapPartial(t *testing.T) {
	dom := twoDimDomain(t, RowMajor)
	a := Subarray{Lo: []int64{0, 0}, Hi: []int64{3, 3}}
	b := Subarray{Lo: []int64{1, 1}, Hi: []int64{2, 2}}
	var out Subarray
	kind := dom.SubarrayOverlap(a, b, &out)
	assert.NotEqual(t, OverlapNone, kind)
	assert.Equal(t, []int64{1, 1}, out.Lo)
	assert.Equal(t, []int64{2, 2}, out.Hi)
}
