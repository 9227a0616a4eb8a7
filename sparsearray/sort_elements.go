package sparsearray

import (
	"encoding/binary"

	"github.com/lanrat/extsort"
)

// WriteCell is a single input cell fed into the external-sort write
// pipeline (spec.md §4.5): its coordinates plus the serialized
// fixed-size and variable-size attribute payloads, in schema attribute
// order. It implements extsort.SortType exactly as brawer-wikidata-qrank's
// QRank does, so the same lanrat/extsort pipeline sorts cells into
// tile/cell order before a Writer ever touches storage.
type WriteCell struct {
	Coords    []int64
	Fixed     [][]byte // per-attribute fixed-size payload (len 0 if var-size)
	Var       [][]byte // per-attribute var-size payload (nil if fixed-size)
	Timestamp uint64   // write timestamp, for intra-tile dedup tie-breaking
}

// ToBytes serializes a WriteCell for the sorter's on-disk spill files.
func (c WriteCell) ToBytes() []byte {
	var buf []byte
	var tmp [binary.MaxVarintLen64]byte

	n := binary.PutVarint(tmp[:], int64(len(c.Coords)))
	buf = append(buf, tmp[:n]...)
	for _, v := range c.Coords {
		n := binary.PutVarint(tmp[:], v)
		buf = append(buf, tmp[:n]...)
	}

	n = binary.PutUvarint(tmp[:], c.Timestamp)
	buf = append(buf, tmp[:n]...)

	n = binary.PutVarint(tmp[:], int64(len(c.Fixed)))
	buf = append(buf, tmp[:n]...)
	for _, f := range c.Fixed {
		n := binary.PutVarint(tmp[:], int64(len(f)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, f...)
	}

	n = binary.PutVarint(tmp[:], int64(len(c.Var)))
	buf = append(buf, tmp[:n]...)
	for _, v := range c.Var {
		n := binary.PutVarint(tmp[:], int64(len(v)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, v...)
	}
	return buf
}

// WriteCellFromBytes is the extsort.FromBytes function for WriteCell.
func WriteCellFromBytes(b []byte) extsort.SortType {
	c, _ := writeCellFromBytes(b)
	return c
}

func writeCellFromBytes(b []byte) (WriteCell, int) {
	var c WriteCell
	off := 0

	nc, n := binary.Varint(b[off:])
	off += n
	c.Coords = make([]int64, nc)
	for i := range c.Coords {
		v, n := binary.Varint(b[off:])
		off += n
		c.Coords[i] = v
	}

	ts, n := binary.Uvarint(b[off:])
	off += n
	c.Timestamp = ts

	nf, n := binary.Varint(b[off:])
	off += n
	c.Fixed = make([][]byte, nf)
	for i := range c.Fixed {
		sz, n := binary.Varint(b[off:])
		off += n
		c.Fixed[i] = append([]byte(nil), b[off:off+int(sz)]...)
		off += int(sz)
	}

	nv, n := binary.Varint(b[off:])
	off += n
	c.Var = make([][]byte, nv)
	for i := range c.Var {
		sz, n := binary.Varint(b[off:])
		off += n
		c.Var[i] = append([]byte(nil), b[off:off+int(sz)]...)
		off += int(sz)
	}
	return c, off
}

// writeCellLess orders cells by global tile/cell order per dom, with
// Timestamp descending as the tie-break so the most recent write of a
// duplicate coordinate sorts first within its tile (spec.md §4.4,
// §4.7's "fragment/write recency" rule applied within a single write).
func writeCellLess(dom *Domain) func(a, b extsort.SortType) bool {
	return func(a, b extsort.SortType) bool {
		x, y := a.(WriteCell), b.(WriteCell)
		cmp, err := dom.TileCellOrderCmp(x.Coords, y.Coords)
		if err != nil {
			return false
		}
		if cmp != 0 {
			return cmp < 0
		}
		return x.Timestamp > y.Timestamp
	}
}
