package sparsearray

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/lanrat/extsort"
	"golang.org/x/sync/errgroup"
)

// Writer drives the external-sort write pipeline of spec.md §4.5: cells
// arrive in arbitrary order on a channel, lanrat/extsort spills and
// merges them into tile/cell order (grounded on
// brawer-wikidata-qrank/cmd/qrank-builder/qrank.go's buildQRank), and
// the sorted stream is then sliced into fixed-capacity tiles, filtered,
// and appended to a fresh Fragment.
type Writer struct {
	storage Storage
	schema  *ArrayMetadata
	root    string
	cfg     WriteConfig
	prog    Progress

	// DuplicatesDropped counts input cells discarded by the most recent
	// Write because a newer cell at the same coordinate was already
	// kept (see buildTiles's hash-prefiltered dedup).
	DuplicatesDropped int
}

// NewWriter creates a Writer that appends fragments under arrayRoot in
// storage, validated against schema.
func NewWriter(storage Storage, arrayRoot string, schema *ArrayMetadata, cfg WriteConfig) *Writer {
	return &Writer{storage: storage, schema: schema, root: arrayRoot, cfg: cfg, prog: NoopProgress{}}
}

// SetProgress installs a Progress sink for write progress reporting.
func (w *Writer) SetProgress(p Progress) { w.prog = p }

// Write drains cells, sorts them into global tile/cell order, and
// writes one fragment named name. It returns the populated Fragment
// (metadata already serialized to storage) once the sort pipeline and
// every tile write complete.
func (w *Writer) Write(ctx context.Context, cells <-chan extsort.SortType, name FragmentName) (*Fragment, error) {
	if err := w.schema.Check(); err != nil {
		return nil, err
	}
	frag := NewFragment(w.root, name, w.schema)

	sortCfg := extsort.DefaultConfig()
	if w.cfg.NumWorkers > 0 {
		sortCfg.NumWorkers = w.cfg.NumWorkers
	}
	if w.cfg.TmpDir != "" {
		sortCfg.TempFilesDir = w.cfg.TmpDir
	}
	if w.cfg.RunMemoryBudget > 0 {
		sortCfg.ChunkSize = int(w.cfg.RunMemoryBudget / 256)
	}

	sorter, outCh, errCh := extsort.New(cells, WriteCellFromBytes, writeCellLess(&w.schema.Domain), sortCfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sorter.Sort(ctx) // not gctx, per extsort's documented usage
		return nil
	})

	var buildErr error
	g.Go(func() error {
		buildErr = w.buildTiles(gctx, outCh, frag)
		return buildErr
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("%w: sort: %v", ErrIoError, err)
	}

	metaBytes, err := frag.Metadata.Serialize()
	if err != nil {
		return nil, err
	}
	mw, err := w.storage.NewWriter(ctx, frag.metadataFileName())
	if err != nil {
		return nil, err
	}
	if _, err := mw.Write(metaBytes); err != nil {
		mw.Close()
		return nil, fmt.Errorf("%w: writing fragment metadata: %v", ErrIoError, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing fragment metadata: %v", ErrIoError, err)
	}

	return frag, nil
}

// buildTiles consumes the sorted stream, slices it into Capacity-sized
// tiles (sparse) or one tile per occupied tile-ID (dense, whose cells
// already arrive pre-expanded to the tile's full cell count), and
// streams each tile out through a dedicated attribute writer.
func (w *Writer) buildTiles(ctx context.Context, outCh <-chan extsort.SortType, frag *Fragment) error {
	attrWriters := make([]*tileWriter, frag.Metadata.attrCount())
	for i := range attrWriters {
		tw, err := newTileWriter(ctx, w.storage, frag, i)
		if err != nil {
			return err
		}
		attrWriters[i] = tw
	}
	defer func() {
		for _, tw := range attrWriters {
			tw.Close()
		}
	}()

	sparse := w.schema.Type == Sparse
	capacity := int(w.schema.Capacity)

	var tileCells []WriteCell
	var prevTileID uint64
	var prevCoords []int64
	var prevHash uint64
	haveTile := false
	haveCell := false
	written := 0
	duplicates := 0

	flush := func() error {
		if len(tileCells) == 0 {
			return nil
		}
		if err := w.writeOneTile(attrWriters, frag, tileCells); err != nil {
			return err
		}
		written += len(tileCells)
		w.prog.Add(len(tileCells))
		tileCells = tileCells[:0]
		return nil
	}

	for item := range outCh {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		cell := item.(WriteCell)
		tid, err := w.schema.Domain.TileID(cell.Coords)
		if err != nil {
			return err
		}

		// writeCellLess sorts ties (same coordinate, different
		// Timestamp) with the newest write first, so a duplicate
		// coordinate appearing immediately after one already kept is
		// always the stale write: hash-prefilter then confirm by
		// value, and drop it rather than emitting two cells at the
		// same coordinate within one fragment.
		coordHash := xxhash.Sum64(int64SliceBytes(cell.Coords))
		if haveCell && coordHash == prevHash && int64SliceEqual(cell.Coords, prevCoords) {
			duplicates++
			continue
		}
		prevHash = coordHash
		prevCoords = append(prevCoords[:0], cell.Coords...)
		haveCell = true

		if sparse {
			if haveTile && (tid != prevTileID || len(tileCells) >= capacity) {
				if err := flush(); err != nil {
					return err
				}
			}
		} else if haveTile && tid != prevTileID {
			if err := flush(); err != nil {
				return err
			}
		}
		tileCells = append(tileCells, cell)
		prevTileID = tid
		haveTile = true
	}
	if err := flush(); err != nil {
		return err
	}
	w.DuplicatesDropped = duplicates
	return nil
}

// int64SliceBytes renders an int64 coordinate slice as raw bytes for
// hashing, independent of any dimension's on-disk Datatype width.
func int64SliceBytes(vals []int64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		putUint64LE(buf[i*8:i*8+8], uint64(v))
	}
	return buf
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// writeOneTile appends one tile's worth of cells to every attribute's
// value file, records MBR/bounding-coords/offsets in the fragment
// metadata, and advances the non-empty domain.
func (w *Writer) writeOneTile(attrWriters []*tileWriter, frag *Fragment, cells []WriteCell) error {
	dimNum := len(w.schema.Domain.Dims)

	if w.schema.Type == Sparse {
		box := make([]int64, 2*dimNum)
		for i := 0; i < dimNum; i++ {
			box[2*i] = cells[0].Coords[i]
			box[2*i+1] = cells[0].Coords[i]
		}
		for _, c := range cells {
			for i := 0; i < dimNum; i++ {
				if c.Coords[i] < box[2*i] {
					box[2*i] = c.Coords[i]
				}
				if c.Coords[i] > box[2*i+1] {
					box[2*i+1] = c.Coords[i]
				}
			}
		}
		frag.Metadata.AppendMBR(box)
		frag.Metadata.AppendBoundingCoords(cells[0].Coords, cells[len(cells)-1].Coords)
		frag.Metadata.SetLastTileCellNum(uint64(len(cells)))
	}
	updateNonEmptyDomain(frag.Metadata, cells, dimNum)

	coordSize := w.schema.Domain.CoordSize()
	dimType := w.schema.Domain.Dims[0].Type
	if w.schema.Type == Sparse {
		coordBuf := make([]byte, 0, coordSize*len(cells))
		for _, c := range cells {
			b, err := EncodeFixedInt64(c.Coords, dimType)
			if err != nil {
				return err
			}
			coordBuf = append(coordBuf, b...)
		}
		if err := attrWriters[0].writeTile(coordBuf); err != nil {
			return err
		}
	}

	for a := 1; a < len(attrWriters); a++ {
		attr := w.schema.Attrs[a-1]
		if attr.IsVar() {
			var offsets []uint64
			var values []byte
			var off uint64
			for _, c := range cells {
				offsets = append(offsets, off)
				values = append(values, c.Var[a-1]...)
				off += uint64(len(c.Var[a-1]))
			}
			if err := attrWriters[a].writeVarTile(offsets, values); err != nil {
				return err
			}
		} else {
			var buf bytes.Buffer
			for _, c := range cells {
				buf.Write(c.Fixed[a-1])
			}
			if err := attrWriters[a].writeTile(buf.Bytes()); err != nil {
				return err
			}
		}
	}
	return nil
}

func updateNonEmptyDomain(fm *FragmentMetadata, cells []WriteCell, dimNum int) {
	if fm.NonEmptyDomain == nil {
		fm.NonEmptyDomain = make([]int64, 2*dimNum)
		for i := 0; i < dimNum; i++ {
			fm.NonEmptyDomain[2*i] = cells[0].Coords[i]
			fm.NonEmptyDomain[2*i+1] = cells[0].Coords[i]
		}
	}
	for _, c := range cells {
		for i := 0; i < dimNum; i++ {
			if c.Coords[i] < fm.NonEmptyDomain[2*i] {
				fm.NonEmptyDomain[2*i] = c.Coords[i]
			}
			if c.Coords[i] > fm.NonEmptyDomain[2*i+1] {
				fm.NonEmptyDomain[2*i+1] = c.Coords[i]
			}
		}
	}
}

// tileWriter streams one attribute's filtered tiles straight to
// storage, recording offsets/sizes into the shared FragmentMetadata as
// it goes so the whole fragment never needs to be buffered in memory.
type tileWriter struct {
	ctx     context.Context
	storage Storage
	frag    *Fragment
	attrIdx int
	w       interface {
		Write([]byte) (int, error)
		Close() error
	}
	varW interface {
		Write([]byte) (int, error)
		Close() error
	}
	compressor Compressor
	level      int32
}

func newTileWriter(ctx context.Context, storage Storage, frag *Fragment, attrIdx int) (*tileWriter, error) {
	tw := &tileWriter{ctx: ctx, storage: storage, frag: frag, attrIdx: attrIdx}
	if attrIdx == 0 {
		tw.compressor = frag.Schema.CoordsCompressor
		tw.level = frag.Schema.CoordsCompressionLevel
	} else {
		a := frag.Schema.Attrs[attrIdx-1]
		tw.compressor = a.Compressor
		tw.level = a.CompressionLevel
	}
	w, err := storage.NewWriter(ctx, frag.attrFileName(attrIdx))
	if err != nil {
		return nil, err
	}
	tw.w = w
	if attrIdx > 0 && frag.Schema.Attrs[attrIdx-1].IsVar() {
		vw, err := storage.NewWriter(ctx, frag.attrVarFileName(attrIdx))
		if err != nil {
			return nil, err
		}
		tw.varW = vw
	}
	return tw, nil
}

func (tw *tileWriter) writeTile(raw []byte) error {
	filtered, err := ApplyFilter(tw.compressor, tw.level, raw)
	if err != nil {
		return err
	}
	n, err := tw.w.Write(filtered)
	if err != nil {
		return fmt.Errorf("%w: writing tile: %v", ErrIoError, err)
	}
	tw.frag.Metadata.AppendTileOffset(tw.attrIdx, uint64(n))
	return nil
}

func (tw *tileWriter) writeVarTile(offsets []uint64, values []byte) error {
	offBuf, err := EncodeFixedInt64(int64SliceFromU64(offsets), Uint64)
	if err != nil {
		return err
	}
	filteredOff, err := ApplyFilter(tw.compressor, tw.level, offBuf)
	if err != nil {
		return err
	}
	n, err := tw.w.Write(filteredOff)
	if err != nil {
		return fmt.Errorf("%w: writing var offsets tile: %v", ErrIoError, err)
	}
	tw.frag.Metadata.AppendTileOffset(tw.attrIdx, uint64(n))
	tw.frag.Metadata.AppendTileVarOffset(tw.attrIdx)

	filteredVal, err := ApplyFilter(tw.compressor, tw.level, values)
	if err != nil {
		return err
	}
	vn, err := tw.varW.Write(filteredVal)
	if err != nil {
		return fmt.Errorf("%w: writing var values tile: %v", ErrIoError, err)
	}
	tw.frag.Metadata.AppendTileVarSize(tw.attrIdx, uint64(vn))
	return nil
}

func (tw *tileWriter) Close() error {
	var err error
	if tw.w != nil {
		err = tw.w.Close()
	}
	if tw.varW != nil {
		if e := tw.varW.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

func int64SliceFromU64(u []uint64) []int64 {
	out := make([]int64, len(u))
	for i, v := range u {
		out[i] = int64(v)
	}
	return out
}
