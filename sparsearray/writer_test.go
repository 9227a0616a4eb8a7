package sparsearray

import (
	"context"
	"testing"

	"github.com/lanrat/extsort"
	"github.com/stretchr/testify/require"
)

// sparseIntSchema builds a 1-dimensional sparse array over x in
// [0,99] with one fixed-size Int32 attribute "value", small enough
// that a handful of cells spans only one or two tiles.
func sparseIntSchema(t *testing.T) *ArrayMetadata {
	t.Helper()
	schema := &ArrayMetadata{
		URI:  "writer-test-array",
		Type: Sparse,
		Domain: Domain{
			Dims: []Dimension{
				{Name: "x", Type: Int64, DomainLo: 0, DomainHi: 99, TileExtent: 10, HasExtent: true},
			},
			TileOrder: RowMajor,
			CellOrder: RowMajor,
		},
		Attrs: []Attribute{
			{Name: "value", Type: Int32, CellValNum: 1, Compressor: CompressorNone},
		},
		Capacity: 4,
	}
	require.NoError(t, schema.Domain.Init())
	require.NoError(t, schema.Check())
	return schema
}

func cellsChan(cells []WriteCell) <-chan extsort.SortType {
	ch := make(chan extsort.SortType, len(cells))
	for _, c := range cells {
		ch <- c
	}
	close(ch)
	return ch
}

func writeCell(t *testing.T, x int64, value int32, ts uint64) WriteCell {
	t.Helper()
	fixed, err := EncodeFixedInt64([]int64{int64(value)}, Int32)
	require.NoError(t, err)
	return WriteCell{Coords: []int64{x}, Fixed: [][]byte{fixed}, Timestamp: ts}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := NewMemStorage()
	schema := sparseIntSchema(t)

	arr, err := CreateArray(ctx, storage, "arr", schema)
	require.NoError(t, err)

	cells := []WriteCell{
		writeCell(t, 2, 20, 1),
		writeCell(t, 7, 70, 1),
		writeCell(t, 15, 150, 1),
	}
	_, err = arr.Write(ctx, cellsChan(cells), NewFragmentName())
	require.NoError(t, err)

	sub := Subarray{Lo: []int64{0}, Hi: []int64{99}}
	buf := &ResultBuffer{Fixed: make([]byte, 4*3)}
	result, err := arr.Read(ctx, sub, []string{"value"}, map[string]*ResultBuffer{"value": buf})
	require.NoError(t, err)
	require.Equal(t, StatusComplete, result.Status)
	require.Equal(t, 3, result.CellsWritten)

	got, err := DecodeFixedInt64(buf.Fixed[:buf.fixedLen], Int32)
	require.NoError(t, err)
	require.Equal(t, []int64{20, 70, 150}, got)
}

// TestWriteDeduplicatesSameCoordinate covers the xxhash-prefiltered
// duplicate check in buildTiles: two cells at the same coordinate in
// one Write call collapse to the newer (higher Timestamp) write, and
// DuplicatesDropped counts the discard.
func TestWriteDeduplicatesSameCoordinate(t *testing.T) {
	ctx := context.Background()
	storage := NewMemStorage()
	schema := sparseIntSchema(t)

	arr, err := CreateArray(ctx, storage, "arr", schema)
	require.NoError(t, err)

	cells := []WriteCell{
		writeCell(t, 5, 1, 1),  // stale write, same coordinate
		writeCell(t, 5, 99, 2), // newest write, sorts first by Timestamp
	}
	w := NewWriter(arr.Storage, arr.Root, arr.Schema, DefaultWriteConfig())
	frag, err := w.Write(ctx, cellsChan(cells), NewFragmentName())
	require.NoError(t, err)
	require.Equal(t, 1, w.DuplicatesDropped)
	arr.fragCache.Put(frag.Name.String(), frag)

	sub := Subarray{Lo: []int64{0}, Hi: []int64{99}}
	buf := &ResultBuffer{Fixed: make([]byte, 4)}
	result, err := arr.Read(ctx, sub, []string{"value"}, map[string]*ResultBuffer{"value": buf})
	require.NoError(t, err)
	require.Equal(t, 1, result.CellsWritten)

	got, err := DecodeFixedInt64(buf.Fixed[:buf.fixedLen], Int32)
	require.NoError(t, err)
	require.Equal(t, []int64{99}, got)
}

// TestWriteTwoFragmentsNewerWins covers the write-then-write-again path
// through the Reconciler: a second fragment overwriting one coordinate
// from the first must be the value a Read sees there.
func TestWriteTwoFragmentsNewerWins(t *testing.T) {
	ctx := context.Background()
	storage := NewMemStorage()
	schema := sparseIntSchema(t)

	arr, err := CreateArray(ctx, storage, "arr", schema)
	require.NoError(t, err)

	_, err = arr.Write(ctx, cellsChan([]WriteCell{
		writeCell(t, 3, 30, 1),
		writeCell(t, 4, 40, 1),
	}), NewFragmentName())
	require.NoError(t, err)

	second := NewFragmentName()
	second.TimestampStart++
	second.TimestampEnd++
	_, err = arr.Write(ctx, cellsChan([]WriteCell{
		writeCell(t, 3, 300, 2),
	}), second)
	require.NoError(t, err)

	sub := Subarray{Lo: []int64{0}, Hi: []int64{99}}
	buf := &ResultBuffer{Fixed: make([]byte, 4*2)}
	result, err := arr.Read(ctx, sub, []string{"value"}, map[string]*ResultBuffer{"value": buf})
	require.NoError(t, err)
	require.Equal(t, 2, result.CellsWritten)

	got, err := DecodeFixedInt64(buf.Fixed[:buf.fixedLen], Int32)
	require.NoError(t, err)
	require.Equal(t, []int64{300, 40}, got)
}

// varSchema builds a 1-dimensional sparse array over id in [0,9] with
// one variable-size Char attribute "label", matching spec.md §8
// Scenario 6's mandatory var-size round trip.
func varSchema(t *testing.T) *ArrayMetadata {
	t.Helper()
	schema := &ArrayMetadata{
		URI:  "writer-var-test-array",
		Type: Sparse,
		Domain: Domain{
			Dims: []Dimension{
				{Name: "id", Type: Int64, DomainLo: 0, DomainHi: 9, TileExtent: 10, HasExtent: true},
			},
			TileOrder: RowMajor,
			CellOrder: RowMajor,
		},
		Attrs: []Attribute{
			{Name: "label", Type: Char, CellValNum: VarNum, Compressor: CompressorNone},
		},
		Capacity: 8,
	}
	require.NoError(t, schema.Domain.Init())
	require.NoError(t, schema.Check())
	return schema
}

func varWriteCell(id int64, label string, ts uint64) WriteCell {
	return WriteCell{Coords: []int64{id}, Var: [][]byte{[]byte(label)}, Timestamp: ts}
}

// TestWriteReadVarRoundTrip covers spec.md §8 Scenario 6: writing and
// reading back {(1,"a"),(2,"bb"),(3,""),(4,"dddd"),(5,"ee")}, including
// the empty-string cell, must reproduce every label exactly. This is
// the regression test for the var-size tile offset bug: a wrong
// tile_var_offsets entry reads the values file out of bounds or
// misaligned on every cell after the first.
func TestWriteReadVarRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := NewMemStorage()
	schema := varSchema(t)

	arr, err := CreateArray(ctx, storage, "arr", schema)
	require.NoError(t, err)

	cells := []WriteCell{
		varWriteCell(1, "a", 1),
		varWriteCell(2, "bb", 1),
		varWriteCell(3, "", 1),
		varWriteCell(4, "dddd", 1),
		varWriteCell(5, "ee", 1),
	}
	_, err = arr.Write(ctx, cellsChan(cells), NewFragmentName())
	require.NoError(t, err)

	sub := Subarray{Lo: []int64{0}, Hi: []int64{9}}
	buf := &ResultBuffer{
		Offsets: make([]uint64, 5),
		Var:     make([]byte, 9), // "a"+"bb"+""+"dddd"+"ee" = 9 bytes
	}
	result, err := arr.Read(ctx, sub, []string{"label"}, map[string]*ResultBuffer{"label": buf})
	require.NoError(t, err)
	require.Equal(t, StatusComplete, result.Status)
	require.Equal(t, 5, result.CellsWritten)

	want := []string{"a", "bb", "", "dddd", "ee"}
	for i, w := range want {
		start := buf.Offsets[i]
		end := uint64(len(buf.Var))
		if i+1 < len(want) {
			end = buf.Offsets[i+1]
		}
		require.Equal(t, w, string(buf.Var[start:end]), "cell %d", i)
	}
}
