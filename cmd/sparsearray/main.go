// Command sparsearray is the CLI entry point for the storage engine:
// create/write/read/consolidate/stat subcommands over a local or cloud
// array root, grounded on go-pmtiles's flag.NewFlagSet-per-subcommand
// main().
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lanrat/extsort"
	"github.com/sparsearray/sparsearray/sparsearray"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// jsonCell is one line of a CELLS.jsonl write input: coordinates plus a
// map of attribute name to scalar or string value.
type jsonCell struct {
	Coords []int64                    `json:"coords"`
	Attrs  map[string]json.RawMessage `json:"attrs"`
}

// readCellsFile streams a newline-delimited JSON cell file into an
// extsort.SortType channel ready for Array.Write, in the teacher's
// "parse on a goroutine, report errors on a side channel" shape (see
// pmtiles/convert.go's producer goroutines).
func readCellsFile(path string, dom *sparsearray.Domain, attrs []sparsearray.Attribute) (<-chan extsort.SortType, <-chan error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	cellsCh := make(chan extsort.SortType, 4096)
	errCh := make(chan error, 1)

	go func() {
		defer f.Close()
		defer close(cellsCh)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
		now := uint64(1)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var jc jsonCell
			if err := json.Unmarshal([]byte(line), &jc); err != nil {
				errCh <- fmt.Errorf("parsing cell line: %w", err)
				return
			}
			cell := sparsearray.WriteCell{Coords: jc.Coords, Timestamp: now}
			now++
			for _, attr := range attrs {
				raw, ok := jc.Attrs[attr.Name]
				if !ok {
					cell.Fixed = append(cell.Fixed, nil)
					cell.Var = append(cell.Var, nil)
					continue
				}
				fixed, varBytes, err := encodeAttrValue(attr, raw)
				if err != nil {
					errCh <- fmt.Errorf("attribute %q: %w", attr.Name, err)
					return
				}
				cell.Fixed = append(cell.Fixed, fixed)
				cell.Var = append(cell.Var, varBytes)
			}
			cellsCh <- cell
		}
		errCh <- scanner.Err()
	}()
	return cellsCh, errCh, nil
}

func encodeAttrValue(attr sparsearray.Attribute, raw json.RawMessage) (fixed, varBytes []byte, err error) {
	if attr.IsVar() {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, err
		}
		return nil, []byte(s), nil
	}
	if attr.Type.IsFloat() {
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, nil, err
		}
		b, err := sparsearray.EncodeFixedFloat64([]float64{v}, attr.Type)
		return b, nil, err
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil, err
	}
	b, err := sparsearray.EncodeFixedInt64([]int64{v}, attr.Type)
	return b, nil, err
}

func main() {
	logger := log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lshortfile)

	if len(os.Args) < 2 {
		fmt.Println(`Usage: sparsearray [COMMAND] [ARGS]

Creating an array:
sparsearray create file:///data ARRAY_ROOT SCHEMA.json

Writing cells:
sparsearray write file:///data ARRAY_ROOT CELLS.jsonl

Reading a subarray:
sparsearray read file:///data ARRAY_ROOT LO HI [ATTR...]

Merging fragments:
sparsearray consolidate file:///data ARRAY_ROOT

Inspecting an array:
sparsearray stat file:///data ARRAY_ROOT`)
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "create":
		createCmd := flag.NewFlagSet("create", flag.ExitOnError)
		createCmd.Parse(os.Args[2:])
		bucket, root, schemaPath := createCmd.Arg(0), createCmd.Arg(1), createCmd.Arg(2)
		if bucket == "" || root == "" || schemaPath == "" {
			logger.Fatalf("USAGE: create BUCKET_URL ARRAY_ROOT SCHEMA.json")
		}
		schema, err := readSchema(schemaPath)
		if err != nil {
			logger.Fatalf("reading schema: %v", err)
		}
		storage, err := sparsearray.OpenStorage(ctx, bucket, "")
		if err != nil {
			logger.Fatalf("opening storage: %v", err)
		}
		if _, err := sparsearray.CreateArray(ctx, storage, root, schema); err != nil {
			logger.Fatalf("creating array: %v", err)
		}
		logger.Printf("created array at %s%s", bucket, root)

	case "write":
		writeCmd := flag.NewFlagSet("write", flag.ExitOnError)
		writeCmd.Parse(os.Args[2:])
		bucket, root, cellsPath := writeCmd.Arg(0), writeCmd.Arg(1), writeCmd.Arg(2)
		if bucket == "" || root == "" || cellsPath == "" {
			logger.Fatalf("USAGE: write BUCKET_URL ARRAY_ROOT CELLS.jsonl")
		}
		storage, err := sparsearray.OpenStorage(ctx, bucket, "")
		if err != nil {
			logger.Fatalf("opening storage: %v", err)
		}
		arr, err := sparsearray.OpenArray(ctx, storage, root)
		if err != nil {
			logger.Fatalf("opening array: %v", err)
		}
		cellsCh, cellErrCh, err := readCellsFile(cellsPath, &arr.Schema.Domain, arr.Schema.Attrs)
		if err != nil {
			logger.Fatalf("reading cells: %v", err)
		}
		name := sparsearray.NewFragmentName()
		frag, err := arr.Write(ctx, cellsCh, name)
		if err != nil {
			logger.Fatalf("writing fragment: %v", err)
		}
		if err := <-cellErrCh; err != nil {
			logger.Fatalf("parsing cells: %v", err)
		}
		logger.Printf("wrote fragment %s", frag.Name.String())

	case "read":
		readCmd := flag.NewFlagSet("read", flag.ExitOnError)
		readCmd.Parse(os.Args[2:])
		bucket, root, loArg, hiArg := readCmd.Arg(0), readCmd.Arg(1), readCmd.Arg(2), readCmd.Arg(3)
		if bucket == "" || root == "" || loArg == "" || hiArg == "" {
			logger.Fatalf("USAGE: read BUCKET_URL ARRAY_ROOT LO,LO,... HI,HI,... [ATTR...]")
		}
		attrs := readCmd.Args()[4:]

		storage, err := sparsearray.OpenStorage(ctx, bucket, "")
		if err != nil {
			logger.Fatalf("opening storage: %v", err)
		}
		arr, err := sparsearray.OpenArray(ctx, storage, root)
		if err != nil {
			logger.Fatalf("opening array: %v", err)
		}
		lo, err := parseCSVInts(loArg)
		if err != nil {
			logger.Fatalf("parsing lo: %v", err)
		}
		hi, err := parseCSVInts(hiArg)
		if err != nil {
			logger.Fatalf("parsing hi: %v", err)
		}
		if len(attrs) == 0 {
			for _, a := range arr.Schema.Attrs {
				attrs = append(attrs, a.Name)
			}
		}
		buffers := allocResultBuffers(arr.Schema, attrs, 1<<20)
		result, err := arr.Read(ctx, sparsearray.Subarray{Lo: lo, Hi: hi}, attrs, buffers)
		if err != nil {
			logger.Fatalf("reading: %v", err)
		}
		logger.Printf("read %d cells, status=%v", result.CellsWritten, result.Status)

	case "consolidate":
		consolidateCmd := flag.NewFlagSet("consolidate", flag.ExitOnError)
		consolidateCmd.Parse(os.Args[2:])
		bucket, root := consolidateCmd.Arg(0), consolidateCmd.Arg(1)
		if bucket == "" || root == "" {
			logger.Fatalf("USAGE: consolidate BUCKET_URL ARRAY_ROOT")
		}
		storage, err := sparsearray.OpenStorage(ctx, bucket, "")
		if err != nil {
			logger.Fatalf("opening storage: %v", err)
		}
		arr, err := sparsearray.OpenArray(ctx, storage, root)
		if err != nil {
			logger.Fatalf("opening array: %v", err)
		}
		names, err := arr.ListFragments(ctx)
		if err != nil {
			logger.Fatalf("listing fragments: %v", err)
		}
		if len(names) < 2 {
			logger.Printf("nothing to consolidate: %d fragment(s)", len(names))
			return
		}
		var loaders []*sparsearray.Loader
		for _, n := range names {
			frag, err := arr.OpenFragmentForConsolidate(ctx, n)
			if err != nil {
				logger.Fatalf("opening fragment %s: %v", n, err)
			}
			loaders = append(loaders, sparsearray.NewLoader(storage, frag, sparsearray.NewBufferCache(64<<20), 4<<20))
		}
		name := sparsearray.NewFragmentName()
		frag, err := sparsearray.Consolidate(ctx, storage, root, arr.Schema, loaders, name)
		if err != nil {
			logger.Fatalf("consolidating: %v", err)
		}
		logger.Printf("consolidated %d fragments into %s", len(names), frag.Name.String())

	case "stat":
		statCmd := flag.NewFlagSet("stat", flag.ExitOnError)
		statCmd.Parse(os.Args[2:])
		bucket, root := statCmd.Arg(0), statCmd.Arg(1)
		if bucket == "" || root == "" {
			logger.Fatalf("USAGE: stat BUCKET_URL ARRAY_ROOT")
		}
		storage, err := sparsearray.OpenStorage(ctx, bucket, "")
		if err != nil {
			logger.Fatalf("opening storage: %v", err)
		}
		arr, err := sparsearray.OpenArray(ctx, storage, root)
		if err != nil {
			logger.Fatalf("opening array: %v", err)
		}
		names, err := arr.ListFragments(ctx)
		if err != nil {
			logger.Fatalf("listing fragments: %v", err)
		}
		logger.Printf("array type=%v dims=%d attrs=%d fragments=%d", arr.Schema.Type, len(arr.Schema.Domain.Dims), len(arr.Schema.Attrs), len(names))
		for _, n := range names {
			frag, err := arr.OpenFragmentForConsolidate(ctx, n)
			if err != nil {
				logger.Printf("  fragment %s (size unavailable: %v)", n, err)
				continue
			}
			var total uint64
			for _, sz := range frag.Metadata.FileSizes {
				total += sz
			}
			logger.Printf("  fragment %s (%s)", n, humanize.IBytes(total))
		}

	default:
		logger.Fatalf("unrecognized command %q", os.Args[1])
	}
}

func readSchema(path string) (*sparsearray.ArrayMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var schema sparsearray.ArrayMetadata
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

func parseCSVInts(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	out := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func allocResultBuffers(schema *sparsearray.ArrayMetadata, attrs []string, budgetPerAttr int) map[string]*sparsearray.ResultBuffer {
	buffers := make(map[string]*sparsearray.ResultBuffer, len(attrs))
	for _, name := range attrs {
		for _, attr := range schema.Attrs {
			if attr.Name != name {
				continue
			}
			if attr.IsVar() {
				buffers[name] = &sparsearray.ResultBuffer{
					Offsets: make([]uint64, budgetPerAttr/8),
					Var:     make([]byte, budgetPerAttr),
				}
			} else {
				buffers[name] = &sparsearray.ResultBuffer{
					Fixed: make([]byte, budgetPerAttr),
				}
			}
		}
	}
	return buffers
}
