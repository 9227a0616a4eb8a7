package sparsearray

// FragmentCellRange is a contiguous run of cells, in global tile/cell
// order, attributed to a single fragment — the unit the reconciliation
// engine (reconcile.go) consumes and emits (spec.md §4.7).
type FragmentCellRange struct {
	FragmentID int64 // sentinelEmptyFragment for the dense fill-value sentinel
	TileIDLo   uint64
	TileIDHi   uint64
	StartRank  uint64
	EndRank    uint64 // inclusive
}

// sentinelEmptyFragment marks a range with no covering fragment (dense
// reads only): result assembly fills it with the attribute's configured
// fill value instead of copying tile data.
const sentinelEmptyFragment int64 = -1

// Len returns the number of cells the range spans.
func (r FragmentCellRange) Len() uint64 { return r.EndRank - r.StartRank + 1 }

// Unary reports whether the range designates exactly one cell — Case A
// of the reconciliation algorithm also applies to dense multi-cell
// ranges, so this alone doesn't select the case; see Reconciler.step.
func (r FragmentCellRange) Unary() bool { return r.StartRank == r.EndRank }

// cellRangeSource is the fragment-local producer the engine pulls
// further ranges from once one is consumed (refill, spec.md §4.7).
// It is satisfied by FragmentRangeSource (fragment_source.go), bound to
// one fragment's precomputed, subarray-intersected range stream.
type cellRangeSource interface {
	// Next returns the next FragmentCellRange for this fragment, or
	// ok=false once the fragment's stream (and tiles) are exhausted.
	Next() (FragmentCellRange, bool, error)
	// EnclosingCoords returns, within this fragment's data, the rank of
	// the greatest written coordinate strictly less than at (if any),
	// whether at itself is present, and the rank of the smallest
	// written coordinate strictly greater than at (if any) — used by
	// Case B to split around a competing range's start.
	EnclosingCoords(at uint64) (less uint64, hasLess bool, exact bool, greater uint64, hasGreater bool, err error)
}
