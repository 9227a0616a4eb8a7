package sparsearray

import (
	"context"
	"fmt"

	"github.com/lanrat/extsort"
)

// Consolidate merges fragments (oldest first) into a single new
// fragment, keeping exactly one value per coordinate per the recency
// rule (the highest-indexed input fragment wins), the supplemental
// write-side counterpart to C7's read-side reconciliation. Grounded on
// pmtiles/merge.go's "load N inputs, validate compatibility, interleave
// entries, emit one consolidated archive" shape, adapted from PMTiles'
// directory entries to sparsearray's coordinate cells.
func Consolidate(ctx context.Context, storage Storage, arrayRoot string, schema *ArrayMetadata, loaders []*Loader, name FragmentName) (*Fragment, error) {
	if len(loaders) == 0 {
		return nil, fmt.Errorf("%w: consolidate requires at least one fragment", ErrSchemaInvalid)
	}

	rc := NewReconciler(&schema.Domain, schema.Type == Dense)
	fullDomain := Subarray{Lo: make([]int64, len(schema.Domain.Dims)), Hi: make([]int64, len(schema.Domain.Dims))}
	for i, d := range schema.Domain.Dims {
		fullDomain.Lo[i], fullDomain.Hi[i] = d.DomainLo, d.DomainHi
	}

	sources := make(map[int64]*FragmentRangeSource, len(loaders))
	for i, l := range loaders {
		fragmentID := int64(i)
		src := NewFragmentRangeSource(ctx, l.frag, fragmentID, &schema.Domain, fullDomain, l)
		sources[fragmentID] = src
		if err := rc.AddFragment(fragmentID, src); err != nil {
			return nil, err
		}
	}

	cellsCh := make(chan extsort.SortType, 4096)
	errCh := make(chan error, 1)
	go func() {
		defer close(cellsCh)
		for {
			rng, ok, err := rc.Next()
			if err != nil {
				errCh <- err
				return
			}
			if !ok {
				errCh <- nil
				return
			}
			if rng.FragmentID == sentinelEmptyFragment {
				continue
			}
			cells, err := rangeToWriteCells(ctx, loaders[int(rng.FragmentID)], schema, rng)
			if err != nil {
				errCh <- err
				return
			}
			for _, c := range cells {
				select {
				case cellsCh <- c:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}
	}()

	w := NewWriter(storage, arrayRoot, schema, DefaultWriteConfig())
	frag, writeErr := w.Write(ctx, cellsCh, name)
	if genErr := <-errCh; genErr != nil {
		return nil, genErr
	}
	if writeErr != nil {
		return nil, writeErr
	}
	return frag, nil
}

// rangeToWriteCells re-reads one reconciled range's cells from storage
// and repacks them as WriteCell values ready for a fresh sort/write
// pass.
func rangeToWriteCells(ctx context.Context, loader *Loader, schema *ArrayMetadata, rng FragmentCellRange) ([]extsort.SortType, error) {
	dimNum := len(schema.Domain.Dims)
	coordType := schema.Domain.Dims[0].Type

	raw, err := loader.LoadTile(ctx, 0, int(rng.TileIDLo))
	if err != nil {
		return nil, err
	}
	flat, err := DecodeFixedInt64(raw, coordType)
	if err != nil {
		return nil, err
	}
	cellNum := len(flat) / dimNum

	var out []extsort.SortType
	for i := 0; i < cellNum; i++ {
		coords := flat[i*dimNum : (i+1)*dimNum]
		rank, err := schema.Domain.Rank(coords)
		if err != nil {
			return nil, err
		}
		if rank < rng.StartRank || rank > rng.EndRank {
			continue
		}
		cell := WriteCell{Coords: append([]int64(nil), coords...), Timestamp: uint64(rng.FragmentID)}
		for a, attr := range schema.Attrs {
			attrIdx := a + 1
			if attr.IsVar() {
				offRaw, err := loader.LoadTile(ctx, attrIdx, int(rng.TileIDLo))
				if err != nil {
					return nil, err
				}
				offsets, err := DecodeFixedInt64(offRaw, Uint64)
				if err != nil {
					return nil, err
				}
				values, err := loader.LoadVarValues(ctx, attrIdx, int(rng.TileIDLo))
				if err != nil {
					return nil, err
				}
				start := uint64(offsets[i])
				end := uint64(len(values))
				if i+1 < len(offsets) {
					end = uint64(offsets[i+1])
				}
				cell.Fixed = append(cell.Fixed, nil)
				cell.Var = append(cell.Var, append([]byte(nil), values[start:end]...))
			} else {
				attrRaw, err := loader.LoadTile(ctx, attrIdx, int(rng.TileIDLo))
				if err != nil {
					return nil, err
				}
				size := attr.Type.SizeBytes()
				cell.Fixed = append(cell.Fixed, append([]byte(nil), attrRaw[i*size:(i+1)*size]...))
				cell.Var = append(cell.Var, nil)
			}
		}
		out = append(out, cell)
	}
	return out, nil
}
