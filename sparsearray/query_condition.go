package sparsearray

import (
	"bytes"
	"fmt"
)

// CompareOp is a value-node comparison operator (spec.md §4.8).
type CompareOp uint8

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// CombinationOp folds an expression node's children.
type CombinationOp uint8

const (
	CombAnd CombinationOp = iota
	CombOr
	CombNot
)

// TileValues is the decoded per-tile view the evaluator runs against:
// one attribute's values, already unfiltered (tile.go/filter.go), keyed
// by attribute name. Exactly one of Ints/Floats/Vars is populated per
// attribute depending on its datatype.
type TileValues struct {
	CellNum  int
	Ints     map[string][]int64
	Floats   map[string][]float64
	Vars     map[string][][]byte
	Validity map[string][]bool // present only for nullable attributes; false = null
}

// QueryCondition is a node in the condition AST: either a value
// comparison (leaf) or a combination of child conditions.
type QueryCondition interface {
	Evaluate(tv *TileValues, bt BitmapType) (*CellBitmap, error)
}

// ValueCondition compares one attribute's value against Literal in
// every cell of a tile.
type ValueCondition struct {
	Field   string
	Op      CompareOp
	Literal any // int64, float64, or []byte
}

func (vc *ValueCondition) Evaluate(tv *TileValues, bt BitmapType) (*CellBitmap, error) {
	out := NewCellBitmap(tv.CellNum, bt)
	valid := tv.Validity[vc.Field] // nil if not nullable

	if ints, ok := tv.Ints[vc.Field]; ok {
		lit, ok := vc.Literal.(int64)
		if !ok {
			return nil, fmt.Errorf("%w: literal type mismatch for field %q", ErrSchemaInvalid, vc.Field)
		}
		for i, v := range ints {
			if valid != nil && !valid[i] {
				continue
			}
			if compareInt(v, lit, vc.Op) {
				out.Set(i)
			}
		}
		return out, nil
	}
	if floats, ok := tv.Floats[vc.Field]; ok {
		lit, ok := vc.Literal.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: literal type mismatch for field %q", ErrSchemaInvalid, vc.Field)
		}
		for i, v := range floats {
			if valid != nil && !valid[i] {
				continue
			}
			if compareFloat(v, lit, vc.Op) {
				out.Set(i)
			}
		}
		return out, nil
	}
	if vars, ok := tv.Vars[vc.Field]; ok {
		lit, ok := vc.Literal.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: literal type mismatch for field %q", ErrSchemaInvalid, vc.Field)
		}
		for i, v := range vars {
			if valid != nil && !valid[i] {
				continue
			}
			if compareBytes(v, lit, vc.Op) {
				out.Set(i)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown field %q", ErrSchemaInvalid, vc.Field)
}

func compareInt(v, lit int64, op CompareOp) bool {
	switch op {
	case OpEq:
		return v == lit
	case OpNe:
		return v != lit
	case OpLt:
		return v < lit
	case OpLe:
		return v <= lit
	case OpGt:
		return v > lit
	case OpGe:
		return v >= lit
	}
	return false
}

func compareFloat(v, lit float64, op CompareOp) bool {
	switch op {
	case OpEq:
		return v == lit
	case OpNe:
		return v != lit
	case OpLt:
		return v < lit
	case OpLe:
		return v <= lit
	case OpGt:
		return v > lit
	case OpGe:
		return v >= lit
	}
	return false
}

func compareBytes(v, lit []byte, op CompareOp) bool {
	c := bytes.Compare(v, lit)
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

// ExprCondition folds its Children with Op. Not requires exactly one
// child; And/Or accept any number.
type ExprCondition struct {
	Op       CombinationOp
	Children []QueryCondition
}

func (ec *ExprCondition) Evaluate(tv *TileValues, bt BitmapType) (*CellBitmap, error) {
	if ec.Op == CombNot {
		if len(ec.Children) != 1 {
			return nil, fmt.Errorf("%w: Not requires exactly one child", ErrSchemaInvalid)
		}
		res, err := ec.Children[0].Evaluate(tv, bt)
		if err != nil {
			return nil, err
		}
		res.Not()
		return res, nil
	}
	if len(ec.Children) == 0 {
		return nil, fmt.Errorf("%w: combination requires at least one child", ErrSchemaInvalid)
	}
	acc, err := ec.Children[0].Evaluate(tv, bt)
	if err != nil {
		return nil, err
	}
	for _, child := range ec.Children[1:] {
		res, err := child.Evaluate(tv, bt)
		if err != nil {
			return nil, err
		}
		if ec.Op == CombAnd {
			acc.And(res)
		} else {
			acc.Or(res)
		}
	}
	return acc, nil
}
