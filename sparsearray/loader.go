package sparsearray

import (
	"context"
	"fmt"
	"io"
)

// Loader pulls tiles for one fragment from storage in segment-sized
// batches rather than one read per tile, amortizing seek cost (spec.md
// §4.6). It is the single point where the BufferCache is consulted
// before falling through to a real storage read.
type Loader struct {
	storage Storage
	frag    *Fragment
	cache   *BufferCache
	segment int64
}

// NewLoader creates a Loader for frag backed by storage, using cache
// for decompressed tile bytes and segment as the target bytes-per-read.
func NewLoader(storage Storage, frag *Fragment, cache *BufferCache, segment int64) *Loader {
	if segment <= 0 {
		segment = DefaultReadConfig().SegmentSize
	}
	return &Loader{storage: storage, frag: frag, cache: cache, segment: segment}
}

// LoadTile returns attribute attrIdx's tile at position pos, reading
// (and caching) a whole segment starting at pos when it isn't already
// cached.
func (l *Loader) LoadTile(ctx context.Context, attrIdx int, pos int) ([]byte, error) {
	key := l.tileCacheKey(attrIdx, pos)
	if l.cache != nil {
		if b, ok := l.cache.Get(key); ok {
			return b, nil
		}
	}
	if err := l.loadSegmentForward(ctx, attrIdx, pos); err != nil {
		return nil, err
	}
	if l.cache != nil {
		if b, ok := l.cache.Get(key); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: tile %d/%d not found after segment load", ErrIoError, attrIdx, pos)
}

// LoadTileReverse behaves like LoadTile but, on a cache miss, loads a
// segment ending at pos instead of starting there, so iterating in
// reverse global order doesn't degrade to one seek per tile.
func (l *Loader) LoadTileReverse(ctx context.Context, attrIdx int, pos int) ([]byte, error) {
	key := l.tileCacheKey(attrIdx, pos)
	if l.cache != nil {
		if b, ok := l.cache.Get(key); ok {
			return b, nil
		}
	}
	if err := l.loadSegmentBackward(ctx, attrIdx, pos); err != nil {
		return nil, err
	}
	if l.cache != nil {
		if b, ok := l.cache.Get(key); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: tile %d/%d not found after reverse segment load", ErrIoError, attrIdx, pos)
}

func (l *Loader) tileCacheKey(attrIdx, pos int) string {
	return fmt.Sprintf("%s#%d#%d", l.frag.Root, attrIdx, pos)
}

func (l *Loader) varTileCacheKey(attrIdx, pos int) string {
	return fmt.Sprintf("%s#%d#%d#var", l.frag.Root, attrIdx, pos)
}

// LoadVarValues returns the decoded values blob for a variable-size
// attribute's tile at position pos (the payload addressed by that
// tile's offsets table, which LoadTile returns separately).
func (l *Loader) LoadVarValues(ctx context.Context, attrIdx int, pos int) ([]byte, error) {
	key := l.varTileCacheKey(attrIdx, pos)
	if l.cache != nil {
		if b, ok := l.cache.Get(key); ok {
			return b, nil
		}
	}
	slot := l.frag.Metadata.varSlot(attrIdx)
	offsets := l.frag.Metadata.TileVarOffsets[slot]
	sizes := l.frag.Metadata.TileVarSizes[slot]
	if pos < 0 || pos >= len(offsets) {
		return nil, fmt.Errorf("%w: var tile position %d out of range", ErrNotFound, pos)
	}
	start := int64(offsets[pos])
	length := int64(sizes[pos])

	r, err := l.storage.NewRangeReader(ctx, l.frag.attrVarFileName(attrIdx), start, length)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading var segment: %v", ErrIoError, err)
	}

	attr := l.frag.Schema.Attrs[attrIdx-1]
	unfiltered, err := UnapplyFilter(attr.Compressor, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: var tile %d/%d: %v", ErrTileFilterError, attrIdx, pos, err)
	}
	if l.cache != nil {
		l.cache.Put(key, unfiltered)
	}
	return unfiltered, nil
}

// loadSegmentForward reads up to l.segment bytes starting at
// tile_offsets[a][pos] and splits the result back into individual
// tiles using the known per-tile sizes from fragment metadata.
func (l *Loader) loadSegmentForward(ctx context.Context, attrIdx, pos int) error {
	offsets := l.frag.Metadata.TileOffsets[attrIdx]
	if pos < 0 || pos >= len(offsets) {
		return fmt.Errorf("%w: tile position %d out of range", ErrNotFound, pos)
	}
	fileSize := int64(l.frag.Metadata.FileSizes[attrIdx])
	start := int64(offsets[pos])

	end := pos
	for end+1 < len(offsets) && int64(offsets[end+1])-start <= l.segment {
		end++
	}
	readLen := fileSize - start
	if end+1 < len(offsets) {
		readLen = int64(offsets[end+1]) - start
	}

	r, err := l.storage.NewRangeReader(ctx, l.frag.attrFileName(attrIdx), start, readLen)
	if err != nil {
		return err
	}
	defer r.Close()
	buf, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: reading segment: %v", ErrIoError, err)
	}

	return l.splitSegment(attrIdx, pos, end, start, offsets, fileSize, buf)
}

// loadSegmentBackward reads the segment ending at tile pos's end.
func (l *Loader) loadSegmentBackward(ctx context.Context, attrIdx, pos int) error {
	offsets := l.frag.Metadata.TileOffsets[attrIdx]
	if pos < 0 || pos >= len(offsets) {
		return fmt.Errorf("%w: tile position %d out of range", ErrNotFound, pos)
	}
	fileSize := int64(l.frag.Metadata.FileSizes[attrIdx])
	tileEnd := fileSize
	if pos+1 < len(offsets) {
		tileEnd = int64(offsets[pos+1])
	}

	begin := pos
	for begin > 0 && tileEnd-int64(offsets[begin-1]) <= l.segment {
		begin--
	}
	start := int64(offsets[begin])
	readLen := tileEnd - start

	r, err := l.storage.NewRangeReader(ctx, l.frag.attrFileName(attrIdx), start, readLen)
	if err != nil {
		return err
	}
	defer r.Close()
	buf, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: reading segment: %v", ErrIoError, err)
	}

	return l.splitSegment(attrIdx, begin, pos, start, offsets, fileSize, buf)
}

// splitSegment slices buf (covering tile positions [lo, hi]) back into
// individual tiles and stores each in the buffer cache, unfiltered.
func (l *Loader) splitSegment(attrIdx, lo, hi int, segStart int64, offsets []uint64, fileSize int64, buf []byte) error {
	var compressor Compressor
	var level int32
	if attrIdx == 0 {
		compressor = l.frag.Schema.CoordsCompressor
		level = l.frag.Schema.CoordsCompressionLevel
	} else {
		a := l.frag.Schema.Attrs[attrIdx-1]
		compressor = a.Compressor
		level = a.CompressionLevel
	}

	for p := lo; p <= hi; p++ {
		tStart := int64(offsets[p]) - segStart
		var tEnd int64
		if p+1 < len(offsets) {
			tEnd = int64(offsets[p+1]) - segStart
		} else {
			tEnd = fileSize - segStart
		}
		raw := buf[tStart:tEnd]
		unfiltered, err := UnapplyFilter(compressor, raw)
		if err != nil {
			return fmt.Errorf("%w: tile %d/%d: %v", ErrTileFilterError, attrIdx, p, err)
		}
		if l.cache != nil {
			l.cache.Put(l.tileCacheKey(attrIdx, p), unfiltered)
		}
	}
	_ = level
	return nil
}
