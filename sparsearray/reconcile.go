package sparsearray

import "container/heap"

// Reconciler is the multi-fragment merge engine of spec.md §4.7: it
// consumes one FragmentCellRange stream per fragment and emits a single
// ordered stream where every cell is attributed to exactly one
// fragment — the newest fragment covering it, per the recency rule.
//
// Ranges are addressed by Domain.Rank rather than raw coordinate
// vectors: Rank is a single monotonically increasing integer in global
// tile/cell order, so "the predecessor/successor of a coordinate" — the
// operation the trim and split phases need constantly — is just rank-1
// / rank+1, with CoordsAtRank available when a caller needs the vector
// back. Dense arrays are always processed via Case A regardless of
// range length, since every dense fragment range is contiguous by
// construction; sparse fragments use Case A only for already-unary
// ranges and Case B otherwise.
type Reconciler struct {
	dom     *Domain
	dense   bool
	pq      pqHeap
	sources map[int64]cellRangeSource
	pending []FragmentCellRange
}

// NewReconciler creates a Reconciler over dom. dense selects whether
// multi-cell ranges are treated via Case A (dense) or Case B (sparse).
func NewReconciler(dom *Domain, dense bool) *Reconciler {
	rc := &Reconciler{
		dom:     dom,
		dense:   dense,
		sources: make(map[int64]cellRangeSource),
	}
	heap.Init(&rc.pq)
	return rc
}

// AddFragment registers a fragment's range source and seeds the queue
// with its first range, if any.
func (rc *Reconciler) AddFragment(fragmentID int64, src cellRangeSource) error {
	rc.sources[fragmentID] = src
	return rc.refill(fragmentID)
}

func (rc *Reconciler) refill(fragmentID int64) error {
	src := rc.sources[fragmentID]
	if src == nil {
		return nil
	}
	rng, ok, err := src.Next()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	heap.Push(&rc.pq, &pqItem{rng: rng})
	return nil
}

func (rc *Reconciler) tileIDOfRank(rank uint64) uint64 {
	return rank / uint64(rc.dom.CellsPerTile())
}

// Next returns the next reconciled range in output order, or ok=false
// once every fragment's stream is exhausted.
func (rc *Reconciler) Next() (FragmentCellRange, bool, error) {
	for len(rc.pending) == 0 {
		more, err := rc.step()
		if err != nil {
			return FragmentCellRange{}, false, err
		}
		if !more {
			return FragmentCellRange{}, false, nil
		}
	}
	out := rc.pending[0]
	rc.pending = rc.pending[1:]
	return out, true, nil
}

// step runs one iteration of the main loop, appending zero or more
// ranges to rc.pending. It returns more=false once the queue is empty.
func (rc *Reconciler) step() (bool, error) {
	if rc.pq.Len() == 0 {
		return false, nil
	}
	top := heap.Pop(&rc.pq).(*pqItem).rng

	if rc.pq.Len() == 0 {
		rc.pending = append(rc.pending, top)
		if err := rc.refill(top.FragmentID); err != nil {
			return false, err
		}
		return true, nil
	}

	useCaseA := rc.dense || top.Unary()
	if useCaseA {
		return true, rc.stepCaseA(top)
	}
	return true, rc.stepCaseB(top)
}

func (rc *Reconciler) stepCaseA(top FragmentCellRange) error {
	// Trim phase: top is already the newest range at its position, so
	// any older range overlapping it is shadowed — shrink it to start
	// past top's end, or discard it if top fully covers it.
	for rc.pq.Len() > 0 {
		next := rc.pq[0].rng
		overlaps := next.TileIDLo < top.TileIDHi ||
			(next.TileIDLo == top.TileIDHi && next.StartRank <= top.EndRank)
		if next.FragmentID >= top.FragmentID || !overlaps {
			break
		}
		heap.Pop(&rc.pq)
		if next.EndRank > top.EndRank {
			next.StartRank = top.EndRank + 1
			next.TileIDLo = rc.tileIDOfRank(next.StartRank)
			heap.Push(&rc.pq, &pqItem{rng: next})
		} else {
			if err := rc.refill(next.FragmentID); err != nil {
				return err
			}
		}
	}

	// Split phase: a newer range starting inside top's remaining span
	// claims the overlap; top is cut short and its tail re-enters the
	// queue to contend again once that newer range is processed.
	if rc.pq.Len() > 0 {
		next := rc.pq[0].rng
		if next.FragmentID > top.FragmentID && next.StartRank > top.StartRank && next.StartRank <= top.EndRank {
			tail := top
			tail.StartRank = next.StartRank
			tail.TileIDLo = rc.tileIDOfRank(tail.StartRank)
			heap.Push(&rc.pq, &pqItem{rng: tail})

			top.EndRank = next.StartRank - 1
			top.TileIDHi = rc.tileIDOfRank(top.EndRank)
			rc.pending = append(rc.pending, top)
			return nil
		}
	}

	rc.pending = append(rc.pending, top)
	return rc.refill(top.FragmentID)
}

func (rc *Reconciler) stepCaseB(top FragmentCellRange) error {
	next := rc.pq[0].rng
	if next.StartRank > top.EndRank {
		rc.pending = append(rc.pending, top)
		return rc.refill(top.FragmentID)
	}

	src := rc.sources[top.FragmentID]
	less, hasLess, exact, greater, hasGreater, err := src.EnclosingCoords(next.StartRank)
	if err != nil {
		return err
	}

	if hasLess && less >= top.StartRank {
		left := top
		left.EndRank = less
		left.TileIDHi = rc.tileIDOfRank(left.EndRank)
		rc.pending = append(rc.pending, left)
	}
	if exact {
		unary := FragmentCellRange{
			FragmentID: top.FragmentID,
			StartRank:  next.StartRank,
			EndRank:    next.StartRank,
			TileIDLo:   rc.tileIDOfRank(next.StartRank),
			TileIDHi:   rc.tileIDOfRank(next.StartRank),
		}
		heap.Push(&rc.pq, &pqItem{rng: unary})
	}
	if hasGreater && greater <= top.EndRank {
		right := top
		right.StartRank = greater
		right.TileIDLo = rc.tileIDOfRank(right.StartRank)
		heap.Push(&rc.pq, &pqItem{rng: right})
	}
	return nil
}

// pqItem is one heap element: a range plus (implicitly, via its
// FragmentID) the source it was pulled from.
type pqItem struct {
	rng FragmentCellRange
}

// pqHeap implements container/heap.Interface with the three-level
// comparator from spec.md §4.7: smaller tile_id_l first, ties by
// smaller start rank, ties by larger fragment id (newer wins).
type pqHeap []*pqItem

func (h pqHeap) Len() int { return len(h) }

func (h pqHeap) Less(i, j int) bool {
	a, b := h[i].rng, h[j].rng
	if a.TileIDLo != b.TileIDLo {
		return a.TileIDLo < b.TileIDLo
	}
	if a.StartRank != b.StartRank {
		return a.StartRank < b.StartRank
	}
	return a.FragmentID > b.FragmentID
}

func (h pqHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pqHeap) Push(x any) { *h = append(*h, x.(*pqItem)) }

func (h *pqHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
