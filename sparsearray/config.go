package sparsearray

// WriteConfig tunes the external-sort write pipeline (C5). Mirrors the
// shape of extsort.Config: a plain struct with a Default constructor,
// rather than a functional-options API.
type WriteConfig struct {
	// RunMemoryBudget bounds the size, in bytes, of an in-memory run
	// before it is sorted and spilled.
	RunMemoryBudget int64
	// NumWorkers bounds the parallelism of run spilling and the final
	// k-way merge.
	NumWorkers int
	// TmpDir is where sorted runs are spilled. Empty means os.TempDir().
	TmpDir string
}

// DefaultWriteConfig returns the pipeline's documented defaults.
func DefaultWriteConfig() WriteConfig {
	return WriteConfig{
		RunMemoryBudget: 64 << 20, // 64 MiB
		NumWorkers:      4,
		TmpDir:          "",
	}
}

// ReadConfig tunes the per-query memory budget (C6) as three ratios of a
// single total, plus the I/O segment size used by the tile loader.
type ReadConfig struct {
	// TotalMemoryBudget is the total bytes a single read iteration may
	// hold across all fragments.
	TotalMemoryBudget int64
	// RatioCoords is the fraction of TotalMemoryBudget reserved for
	// coordinate tiles.
	RatioCoords float64
	// RatioTileRanges is the fraction reserved for the queue of
	// per-fragment unvisited tile ranges.
	RatioTileRanges float64
	// RatioArrayData is the fraction reserved for tile-offset metadata
	// held in memory.
	RatioArrayData float64
	// SegmentSize is the approximate number of bytes requested per
	// contiguous I/O when the loader batches tile reads.
	SegmentSize int64
}

// DefaultReadConfig returns the documented default ratios: roughly half
// the budget for coordinates, a quarter for the tile-range queue, and a
// quarter for offset metadata.
func DefaultReadConfig() ReadConfig {
	return ReadConfig{
		TotalMemoryBudget: 256 << 20, // 256 MiB
		RatioCoords:       0.5,
		RatioTileRanges:   0.25,
		RatioArrayData:    0.25,
		SegmentSize:       4 << 20, // 4 MiB
	}
}

// BufferCacheSize is the default threshold (bytes) at which the buffer
// cache (C9) flushes an accumulated write to the storage driver as one
// multi-part chunk.
const BufferCacheSize = 5 << 20 // 5 MiB, matching the spec's documented default
