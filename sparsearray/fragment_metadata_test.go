package sparsearray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentMetadataCheckRejectsNonIncreasingOffsets(t *testing.T) {
	schema := sampleSchema(t, Sparse)
	fm := NewFragmentMetadata(schema)
	fm.AppendTileOffset(0, 10)
	fm.AppendTileOffset(0, 10)                       // offsets [0, 10]
	fm.TileOffsets[0] = append(fm.TileOffsets[0], 5) // out of order
	assert.ErrorIs(t, fm.Check(), ErrSchemaInvalid)
}

func TestFragmentMetadataCheckRejectsMismatchedMBRCount(t *testing.T) {
	schema := sampleSchema(t, Sparse)
	fm := NewFragmentMetadata(schema)
	fm.AppendTileOffset(0, 10)
	fm.AppendMBR([]int64{0, 0, 1, 1})
	fm.AppendMBR([]int64{2, 2, 3, 3}) // two MBRs, one tile offset
	fm.AppendBoundingCoords([]int64{0, 0}, []int64{1, 1})
	assert.ErrorIs(t, fm.Check(), ErrSchemaInvalid)
}

func TestFragmentMetadataSerializeRoundTrip(t *testing.T) {
	schema := sampleSchema(t, Sparse)
	fm := NewFragmentMetadata(schema)

	for a := 0; a < fm.attrCount(); a++ {
		fm.AppendTileOffset(a, 40)
	}
	fm.AppendMBR([]int64{0, 0, 3, 3})
	fm.AppendBoundingCoords([]int64{0, 0}, []int64{3, 3})
	fm.SetLastTileCellNum(5)
	fm.NonEmptyDomain = []int64{0, 3, 0, 3}

	fm.AppendTileVarOffset(2)
	fm.AppendTileVarSize(2, 40)

	data, err := fm.Serialize()
	require.NoError(t, err)

	back, err := DeserializeFragmentMetadata(schema, data)
	require.NoError(t, err)

	assert.Equal(t, fm.NonEmptyDomain, back.NonEmptyDomain)
	assert.Equal(t, fm.LastTileCellNum, back.LastTileCellNum)
	require.Len(t, back.MBRs, 1)
	assert.Equal(t, fm.MBRs[0], back.MBRs[0])
	assert.Equal(t, fm.TileOffsets[0], back.TileOffsets[0])
	assert.Equal(t, fm.FileVarSizes, back.FileVarSizes)
}

func TestFragmentNameRecencyOrdering(t *testing.T) {
	older := FragmentName{TimestampStart: 100, TimestampEnd: 100, UUID: "a"}
	newer := FragmentName{TimestampStart: 200, TimestampEnd: 200, UUID: "b"}
	assert.True(t, newer.String() > older.String())
	assert.True(t, fragmentMoreRecent(newer, older))
	assert.False(t, fragmentMoreRecent(older, newer))
}
