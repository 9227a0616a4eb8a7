package sparsearray

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAssembleDenseFillValue covers spec.md §4.10's empty-fragment
// sentinel range: a subarray with no covering fragment must surface
// each attribute's configured fill value, or a zero-filled cell if none
// was configured.
func TestAssembleDenseFillValue(t *testing.T) {
	ctx := context.Background()
	dom := twoDimDomain(t, RowMajor) // 4x4 domain, 16 cells total
	schema := &ArrayMetadata{
		Type: Dense,
		Attrs: []Attribute{
			{Name: "value", Type: Int32, CellValNum: 1},
			{Name: "flag", Type: Int32, CellValNum: 1},
		},
	}
	fillValue, err := EncodeFixedInt64([]int64{-1}, Int32)
	require.NoError(t, err)

	assembler := NewAssembler(schema, nil, map[string][]byte{"value": fillValue})
	sub := Subarray{Lo: []int64{0, 0}, Hi: []int64{3, 3}}
	ranges := []FragmentCellRange{{FragmentID: sentinelEmptyFragment, StartRank: 0, EndRank: 15}}

	buffers := map[string]*ResultBuffer{
		"value": {Fixed: make([]byte, 4*16)},
		"flag":  {Fixed: make([]byte, 4*16)},
	}
	result, err := assembler.Assemble(ctx, ranges, sub, dom, []string{"value", "flag"}, buffers)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)
	assert.Equal(t, 16, result.CellsWritten)

	values, err := DecodeFixedInt64(buffers["value"].Fixed, Int32)
	require.NoError(t, err)
	for _, v := range values {
		assert.Equal(t, int64(-1), v)
	}

	flags, err := DecodeFixedInt64(buffers["flag"].Fixed, Int32)
	require.NoError(t, err)
	for _, v := range flags {
		assert.Equal(t, int64(0), v) // no configured fill: zero-filled
	}
}

// TestAssembleDenseFillValueRespectsSubarray checks that a sentinel
// range narrower than the full domain only emits cells inside sub.
func TestAssembleDenseFillValueRespectsSubarray(t *testing.T) {
	ctx := context.Background()
	dom := twoDimDomain(t, RowMajor)
	schema := &ArrayMetadata{
		Type:  Dense,
		Attrs: []Attribute{{Name: "value", Type: Int32, CellValNum: 1}},
	}
	assembler := NewAssembler(schema, nil, nil)
	sub := Subarray{Lo: []int64{1, 1}, Hi: []int64{2, 2}} // 2x2 block, 4 cells
	ranges := []FragmentCellRange{{FragmentID: sentinelEmptyFragment, StartRank: 0, EndRank: 15}}

	buffers := map[string]*ResultBuffer{"value": {Fixed: make([]byte, 4*4)}}
	result, err := assembler.Assemble(ctx, ranges, sub, dom, []string{"value"}, buffers)
	require.NoError(t, err)
	assert.Equal(t, 4, result.CellsWritten)
}

// TestAssembleStopsOnBufferOverflow covers the overflow rule: a buffer
// too small to hold every matching cell yields StatusIncomplete
// and the count of cells actually written, rather than an error.
func TestAssembleStopsOnBufferOverflow(t *testing.T) {
	ctx := context.Background()
	dom := twoDimDomain(t, RowMajor)
	schema := &ArrayMetadata{
		Type:  Dense,
		Attrs: []Attribute{{Name: "value", Type: Int32, CellValNum: 1}},
	}
	assembler := NewAssembler(schema, nil, nil)
	sub := Subarray{Lo: []int64{0, 0}, Hi: []int64{3, 3}}
	ranges := []FragmentCellRange{{FragmentID: sentinelEmptyFragment, StartRank: 0, EndRank: 15}}

	buffers := map[string]*ResultBuffer{"value": {Fixed: make([]byte, 4*3)}} // room for 3, not 16
	result, err := assembler.Assemble(ctx, ranges, sub, dom, []string{"value"}, buffers)
	require.NoError(t, err)
	assert.Equal(t, StatusIncomplete, result.Status)
	assert.Equal(t, 3, result.CellsWritten)
}
