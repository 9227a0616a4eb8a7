package sparsearray

import "context"

// Status reports whether a read operation fully satisfied its request
// or stopped early because it hit a memory budget (spec.md §4.6, §5
// "Backpressure"). Incomplete is not an error: the caller drains what
// is available and calls again.
type Status uint8

const (
	StatusComplete Status = iota
	StatusIncomplete
)

// ReadState tracks, per attribute, which tile positions of one
// fragment are currently resident (spec.md §4.6's `tiles[attr]`
// window and `pos_ranges[attr]`).
type ReadState struct {
	loader    *Loader
	cfg       ReadConfig
	posRanges map[int][2]int // attrIdx -> [lo, hi] inclusive, loaded
}

// NewReadState creates a ReadState driven by loader under cfg's memory
// budget ratios.
func NewReadState(loader *Loader, cfg ReadConfig) *ReadState {
	return &ReadState{loader: loader, cfg: cfg, posRanges: make(map[int][2]int)}
}

// EnsureLoaded guarantees tile pos of attribute attrIdx is resident,
// widening the loaded window to include pos as needed, subject to the
// attribute's share of the total memory budget. Returns StatusIncomplete
// (not an error) when the budget for this attribute's class of data is
// exhausted before pos could be reached.
func (rs *ReadState) EnsureLoaded(ctx context.Context, attrIdx int, pos int, budgetBytes int64) (Status, error) {
	rng, ok := rs.posRanges[attrIdx]
	if ok && pos >= rng[0] && pos <= rng[1] {
		return StatusComplete, nil
	}

	if rs.loader.cache != nil && rs.loader.cache.UsedBytes() >= budgetBytes {
		return StatusIncomplete, nil
	}

	if _, err := rs.loader.LoadTile(ctx, attrIdx, pos); err != nil {
		return StatusComplete, err
	}

	if !ok {
		rs.posRanges[attrIdx] = [2]int{pos, pos}
		return StatusComplete, nil
	}
	lo, hi := rng[0], rng[1]
	if pos < lo {
		lo = pos
	}
	if pos > hi {
		hi = pos
	}
	rs.posRanges[attrIdx] = [2]int{lo, hi}
	return StatusComplete, nil
}

// attributeBudget splits cfg.TotalMemoryBudget across the three ratios
// named in spec.md §4.6: coordinate tiles, the per-fragment unvisited
// tile-range queue, and in-memory tile-offset metadata.
func (cfg ReadConfig) attributeBudget(coordsAttr bool) int64 {
	if coordsAttr {
		return int64(float64(cfg.TotalMemoryBudget) * cfg.RatioCoords)
	}
	return int64(float64(cfg.TotalMemoryBudget) * cfg.RatioArrayData)
}

// tileRangeQueueBudget is the share reserved for C7's in-flight
// FragmentCellRange queue.
func (cfg ReadConfig) tileRangeQueueBudget() int64 {
	return int64(float64(cfg.TotalMemoryBudget) * cfg.RatioTileRanges)
}
