package sparsearray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolsFromBitmap(cb *CellBitmap) []bool {
	out := make([]bool, cb.Num)
	for i := range out {
		out[i] = cb.Get(i)
	}
	return out
}

func TestValueConditionIntCompare(t *testing.T) {
	tv := &TileValues{CellNum: 4, Ints: map[string][]int64{"age": {10, 20, 30, 40}}}
	vc := &ValueCondition{Field: "age", Op: OpGe, Literal: int64(20)}
	cb, err := vc.Evaluate(tv, BitmapU8)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true, true}, boolsFromBitmap(cb))
}

func TestValueConditionFloatCompare(t *testing.T) {
	tv := &TileValues{CellNum: 3, Floats: map[string][]float64{"score": {1.5, 2.5, 3.5}}}
	vc := &ValueCondition{Field: "score", Op: OpLt, Literal: 3.0}
	cb, err := vc.Evaluate(tv, BitmapU8)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, boolsFromBitmap(cb))
}

func TestValueConditionBytesCompare(t *testing.T) {
	tv := &TileValues{CellNum: 3, Vars: map[string][][]byte{"label": {[]byte("a"), []byte("b"), []byte("c")}}}
	vc := &ValueCondition{Field: "label", Op: OpEq, Literal: []byte("b")}
	cb, err := vc.Evaluate(tv, BitmapU8)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, boolsFromBitmap(cb))
}

func TestValueConditionSkipsNullCells(t *testing.T) {
	tv := &TileValues{
		CellNum:  3,
		Ints:     map[string][]int64{"age": {10, 20, 30}},
		Validity: map[string][]bool{"age": {true, false, true}},
	}
	vc := &ValueCondition{Field: "age", Op: OpGe, Literal: int64(0)}
	cb, err := vc.Evaluate(tv, BitmapU8)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, boolsFromBitmap(cb))
}

func TestValueConditionUnknownFieldErrors(t *testing.T) {
	tv := &TileValues{CellNum: 1, Ints: map[string][]int64{"age": {1}}}
	vc := &ValueCondition{Field: "missing", Op: OpEq, Literal: int64(1)}
	_, err := vc.Evaluate(tv, BitmapU8)
	assert.ErrorIs(t, err, ErrSchemaInvalid)
}

func TestExprConditionAnd(t *testing.T) {
	tv := &TileValues{CellNum: 4, Ints: map[string][]int64{
		"age":    {10, 20, 30, 40},
		"credit": {0, 0, 1, 1},
	}}
	ec := &ExprCondition{Op: CombAnd, Children: []QueryCondition{
		&ValueCondition{Field: "age", Op: OpGe, Literal: int64(20)},
		&ValueCondition{Field: "credit", Op: OpEq, Literal: int64(1)},
	}}
	cb, err := ec.Evaluate(tv, BitmapU8)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true, true}, boolsFromBitmap(cb))
}

func TestExprConditionOr(t *testing.T) {
	tv := &TileValues{CellNum: 3, Ints: map[string][]int64{"age": {10, 20, 30}}}
	ec := &ExprCondition{Op: CombOr, Children: []QueryCondition{
		&ValueCondition{Field: "age", Op: OpLt, Literal: int64(15)},
		&ValueCondition{Field: "age", Op: OpGt, Literal: int64(25)},
	}}
	cb, err := ec.Evaluate(tv, BitmapU8)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, boolsFromBitmap(cb))
}

func TestExprConditionNot(t *testing.T) {
	tv := &TileValues{CellNum: 3, Ints: map[string][]int64{"age": {10, 20, 30}}}
	ec := &ExprCondition{Op: CombNot, Children: []QueryCondition{
		&ValueCondition{Field: "age", Op: OpEq, Literal: int64(20)},
	}}
	cb, err := ec.Evaluate(tv, BitmapU8)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, boolsFromBitmap(cb))
}

func TestExprConditionNotRejectsMultipleChildren(t *testing.T) {
	tv := &TileValues{CellNum: 1, Ints: map[string][]int64{"age": {1}}}
	ec := &ExprCondition{Op: CombNot, Children: []QueryCondition{
		&ValueCondition{Field: "age", Op: OpEq, Literal: int64(1)},
		&ValueCondition{Field: "age", Op: OpEq, Literal: int64(2)},
	}}
	_, err := ec.Evaluate(tv, BitmapU8)
	assert.ErrorIs(t, err, ErrSchemaInvalid)
}

func TestExprConditionEmptyRejected(t *testing.T) {
	ec := &ExprCondition{Op: CombAnd}
	_, err := ec.Evaluate(&TileValues{CellNum: 1}, BitmapU8)
	assert.ErrorIs(t, err, ErrSchemaInvalid)
}
