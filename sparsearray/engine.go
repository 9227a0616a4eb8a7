package sparsearray

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/lanrat/extsort"
)

// Array is the top-level handle a caller opens once and issues writes
// and reads against; it owns the array's metadata, the storage
// backend, and the per-fragment caches (spec.md §2, "open-array
// registry").
type Array struct {
	Storage Storage
	Root    string
	Schema  *ArrayMetadata

	fragCache   *FragmentCache
	bufferCache *BufferCache
	readCfg     ReadConfig
}

// CreateArray validates schema, serializes it under root/__array_metadata.bin,
// and returns an Array handle ready to accept writes.
func CreateArray(ctx context.Context, storage Storage, root string, schema *ArrayMetadata) (*Array, error) {
	if err := schema.Domain.Init(); err != nil {
		return nil, err
	}
	if err := schema.Check(); err != nil {
		return nil, err
	}
	data, err := schema.Serialize()
	if err != nil {
		return nil, err
	}
	w, err := storage.NewWriter(ctx, path.Join(root, "__array_metadata.bin"))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("%w: writing array metadata: %v", ErrIoError, err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return OpenArray(ctx, storage, root)
}

// OpenArray reads and validates an existing array's metadata.
func OpenArray(ctx context.Context, storage Storage, root string) (*Array, error) {
	r, err := storage.NewRangeReader(ctx, path.Join(root, "__array_metadata.bin"), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("%w: opening array metadata: %v", ErrNotFound, err)
	}
	defer r.Close()
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading array metadata: %v", ErrIoError, err)
	}
	schema, err := DeserializeArrayMetadata(buf)
	if err != nil {
		return nil, err
	}
	readCfg := DefaultReadConfig()
	return &Array{
		Storage:     storage,
		Root:        root,
		Schema:      schema,
		fragCache:   NewFragmentCache(32),
		bufferCache: NewBufferCache(readCfg.TotalMemoryBudget / 4),
		readCfg:     readCfg,
	}, nil
}

// Write sorts cells and writes them into one new fragment, named by
// the caller-supplied FragmentName (newer FragmentName.String() values
// must sort after older ones; see fragment.go).
func (arr *Array) Write(ctx context.Context, cells <-chan extsort.SortType, name FragmentName) (*Fragment, error) {
	w := NewWriter(arr.Storage, arr.Root, arr.Schema, DefaultWriteConfig())
	frag, err := w.Write(ctx, cells, name)
	if err != nil {
		return nil, err
	}
	arr.fragCache.Put(frag.Name.String(), frag)
	return frag, nil
}

// ListFragments returns the array's fragment directory names, in
// ascending (oldest-first) write order.
func (arr *Array) ListFragments(ctx context.Context) ([]string, error) {
	keys, err := arr.Storage.List(ctx, path.Join(arr.Root, "__fragments")+"/")
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool)
	for _, k := range keys {
		rel := k[len(path.Join(arr.Root, "__fragments")+"/"):]
		if idx := indexByte(rel, '/'); idx >= 0 {
			names[rel[:idx]] = true
		}
	}
	var out []string
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// openFragment loads one fragment's metadata from storage, consulting
// the fragment cache first.
func (arr *Array) openFragment(ctx context.Context, name string) (*Fragment, error) {
	if f, ok := arr.fragCache.Get(name); ok {
		return f, nil
	}
	root := path.Join(arr.Root, "__fragments", name)
	r, err := arr.Storage.NewRangeReader(ctx, path.Join(root, "__fragment_metadata.bin"), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("%w: opening fragment %q: %v", ErrNotFound, name, err)
	}
	defer r.Close()
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading fragment metadata: %v", ErrIoError, err)
	}
	meta, err := DeserializeFragmentMetadata(arr.Schema, buf)
	if err != nil {
		return nil, err
	}
	frag := &Fragment{Root: root, Schema: arr.Schema, Metadata: meta}
	arr.fragCache.Put(name, frag)
	return frag, nil
}

// OpenFragmentForConsolidate exposes openFragment to callers assembling
// a Consolidate call (e.g. the CLI), which need a *Fragment per input
// name to build a Loader from.
func (arr *Array) OpenFragmentForConsolidate(ctx context.Context, name string) (*Fragment, error) {
	return arr.openFragment(ctx, name)
}

// Read executes sub against every fragment in the array, reconciles
// recency across them, and copies the requested attrs into buffers.
func (arr *Array) Read(ctx context.Context, sub Subarray, attrs []string, buffers map[string]*ResultBuffer) (QueryResult, error) {
	names, err := arr.ListFragments(ctx)
	if err != nil {
		return QueryResult{}, err
	}

	rc := NewReconciler(&arr.Schema.Domain, arr.Schema.Type == Dense)
	loaders := make(map[int64]*Loader)

	for i, name := range names {
		frag, err := arr.openFragment(ctx, name)
		if err != nil {
			return QueryResult{}, err
		}
		fragmentID := int64(i)
		loader := NewLoader(arr.Storage, frag, arr.bufferCache, arr.readCfg.SegmentSize)
		loaders[fragmentID] = loader
		src := NewFragmentRangeSource(ctx, frag, fragmentID, &arr.Schema.Domain, sub, loader)
		if err := rc.AddFragment(fragmentID, src); err != nil {
			return QueryResult{}, err
		}
	}

	var ranges []FragmentCellRange
	for {
		rng, ok, err := rc.Next()
		if err != nil {
			return QueryResult{}, err
		}
		if !ok {
			break
		}
		ranges = append(ranges, rng)
	}

	assembler := NewAssembler(arr.Schema, loaders, nil)
	return assembler.Assemble(ctx, ranges, sub, &arr.Schema.Domain, attrs, buffers)
}
