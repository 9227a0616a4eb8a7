package sparsearray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSchema(t *testing.T, typ ArrayType) *ArrayMetadata {
	t.Helper()
	schema := &ArrayMetadata{
		URI:  "test-array",
		Type: typ,
		Domain: Domain{
			Dims: []Dimension{
				{Name: "x", Type: Int64, DomainLo: 0, DomainHi: 7, TileExtent: 4, HasExtent: true},
				{Name: "y", Type: Int64, DomainLo: 0, DomainHi: 7, TileExtent: 4, HasExtent: true},
			},
			TileOrder: RowMajor,
			CellOrder: RowMajor,
		},
		Attrs: []Attribute{
			{Name: "value", Type: Int32, CellValNum: 1, Compressor: CompressorGzip},
			{Name: "label", Type: Char, CellValNum: VarNum, Compressor: CompressorNone},
		},
		Capacity: 16,
	}
	require.NoError(t, schema.Domain.Init())
	require.NoError(t, schema.Check())
	return schema
}

func TestArrayMetadataSerializeRoundTrip(t *testing.T) {
	schema := sampleSchema(t, Sparse)
	data, err := schema.Serialize()
	require.NoError(t, err)

	back, err := DeserializeArrayMetadata(data)
	require.NoError(t, err)

	assert.Equal(t, schema.URI, back.URI)
	assert.Equal(t, schema.Type, back.Type)
	assert.Equal(t, schema.Capacity, back.Capacity)
	require.Len(t, back.Domain.Dims, 2)
	assert.Equal(t, schema.Domain.Dims[0].Name, back.Domain.Dims[0].Name)
	assert.Equal(t, schema.Domain.Dims[0].DomainHi, back.Domain.Dims[0].DomainHi)
	assert.Equal(t, schema.Domain.Dims[1].TileExtent, back.Domain.Dims[1].TileExtent)
	require.Len(t, back.Attrs, 2)
	assert.Equal(t, "value", back.Attrs[0].Name)
	assert.Equal(t, CompressorGzip, back.Attrs[0].Compressor)
	assert.True(t, back.Attrs[1].IsVar())
}

func TestArrayMetadataCheckRejectsEmptyAttrs(t *testing.T) {
	schema := sampleSchema(t, Sparse)
	schema.Attrs = nil
	assert.ErrorIs(t, schema.Check(), ErrSchemaInvalid)
}

func TestArrayMetadataCheckRejectsDenseWithFloatDim(t *testing.T) {
	schema := sampleSchema(t, Dense)
	schema.Domain.Dims[0].Type = Float64
	schema.Domain.Dims[1].Type = Float64
	assert.ErrorIs(t, schema.Check(), ErrSchemaInvalid)
}

func TestArrayMetadataCheckRejectsDuplicateNames(t *testing.T) {
	schema := sampleSchema(t, Sparse)
	schema.Attrs[1].Name = schema.Attrs[0].Name
	assert.ErrorIs(t, schema.Check(), ErrSchemaInvalid)
}

func TestArrayMetadataCheckRejectsDoubleDeltaOnFloatCoords(t *testing.T) {
	schema := sampleSchema(t, Sparse)
	schema.Domain.Dims[0].Type = Float64
	schema.Domain.Dims[1].Type = Float64
	schema.CoordsCompressor = CompressorDoubleDelta
	assert.ErrorIs(t, schema.Check(), ErrSchemaInvalid)
}
