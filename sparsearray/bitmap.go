package sparsearray

import "github.com/RoaringBitmap/roaring/roaring64"

// BitmapType selects how the query condition evaluator (query_condition.go)
// accumulates per-cell results: a plain pass/fail bit, or a running
// count (used when folding nested Or/And combinations where a cell may
// be touched by more than one child before the final fold, spec.md §4.8).
type BitmapType uint8

const (
	BitmapU8 BitmapType = iota
	BitmapU64
)

// CellBitmap is a per-tile result bitmap over cell positions [0, Num).
// Boolean results are stored in a roaring64.Bitmap — sparse tiles with
// mostly-false results cost almost nothing — while counts use a plain
// slice since roaring only tracks set membership.
type CellBitmap struct {
	Type   BitmapType
	Num    int
	bits   *roaring64.Bitmap
	counts []uint64
}

// NewCellBitmap creates an all-false (or all-zero) bitmap over n cells.
func NewCellBitmap(n int, t BitmapType) *CellBitmap {
	cb := &CellBitmap{Type: t, Num: n}
	if t == BitmapU64 {
		cb.counts = make([]uint64, n)
	} else {
		cb.bits = roaring64.New()
	}
	return cb
}

// Set marks cell i as passing (BitmapU8) or increments its count
// (BitmapU64).
func (cb *CellBitmap) Set(i int) {
	if cb.Type == BitmapU64 {
		cb.counts[i]++
		return
	}
	cb.bits.Add(uint64(i))
}

// Get reports whether cell i passes: non-zero count, or set bit.
func (cb *CellBitmap) Get(i int) bool {
	if cb.Type == BitmapU64 {
		return cb.counts[i] != 0
	}
	return cb.bits.Contains(uint64(i))
}

// Count returns cell i's running count (BitmapU64 only; 0/1 otherwise).
func (cb *CellBitmap) Count(i int) uint64 {
	if cb.Type == BitmapU64 {
		return cb.counts[i]
	}
	if cb.bits.Contains(uint64(i)) {
		return 1
	}
	return 0
}

// And intersects cb with other in place (boolean semantics; when either
// side is BitmapU64, each count is reset to 1 if both sides pass, else 0).
func (cb *CellBitmap) And(other *CellBitmap) {
	if cb.Type == BitmapU64 || other.Type == BitmapU64 {
		for i := 0; i < cb.Num; i++ {
			if cb.Get(i) && other.Get(i) {
				cb.setBool(i, true)
			} else {
				cb.setBool(i, false)
			}
		}
		return
	}
	cb.bits.And(other.bits)
}

// Or unions cb with other in place.
func (cb *CellBitmap) Or(other *CellBitmap) {
	if cb.Type == BitmapU64 || other.Type == BitmapU64 {
		for i := 0; i < cb.Num; i++ {
			cb.setBool(i, cb.Get(i) || other.Get(i))
		}
		return
	}
	cb.bits.Or(other.bits)
}

// Not negates cb in place over [0, Num).
func (cb *CellBitmap) Not() {
	for i := 0; i < cb.Num; i++ {
		cb.setBool(i, !cb.Get(i))
	}
}

func (cb *CellBitmap) setBool(i int, v bool) {
	if cb.Type == BitmapU64 {
		if v {
			cb.counts[i] = 1
		} else {
			cb.counts[i] = 0
		}
		return
	}
	if v {
		cb.bits.Add(uint64(i))
	} else {
		cb.bits.Remove(uint64(i))
	}
}

// Cardinality returns the number of passing cells.
func (cb *CellBitmap) Cardinality() int {
	if cb.Type == BitmapU64 {
		n := 0
		for _, c := range cb.counts {
			if c != 0 {
				n++
			}
		}
		return n
	}
	return int(cb.bits.GetCardinality())
}
