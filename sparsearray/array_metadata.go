package sparsearray

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ArrayType distinguishes dense (every coordinate in the domain has a
// value) from sparse (only written coordinates have one) arrays.
type ArrayType uint8

const (
	Dense  ArrayType = 0
	Sparse ArrayType = 1
)

// Version is the array's on-disk format version, a 3-tuple.
type Version [3]int32

// ArrayMetadata is the array-level schema: URI, type, domain,
// attributes, and the capacity/compression knobs shared by every
// fragment written against it.
type ArrayMetadata struct {
	URI      string
	Type     ArrayType
	Domain   Domain
	Attrs    []Attribute
	Capacity uint64
	Version  Version

	CoordsCompressor         Compressor
	CoordsCompressionLevel   int32
	VarOffsetsCompressor     Compressor
	VarOffsetsCompressionLevel int32
}

// Check validates the array-level invariants from spec.md §4.2: non-zero
// dimension/attribute counts, pairwise-distinct names (including the
// reserved coordinate name), dense arrays having integer dimensions with
// tile extents, capacity > 0, and double-delta forbidden on float
// coordinates.
func (m *ArrayMetadata) Check() error {
	if err := m.Domain.Check(); err != nil {
		return err
	}
	if len(m.Attrs) == 0 {
		return fmt.Errorf("%w: array must have at least one attribute", ErrSchemaInvalid)
	}
	if m.Capacity == 0 {
		return fmt.Errorf("%w: capacity must be > 0", ErrSchemaInvalid)
	}
	if m.CoordsCompressor == CompressorDoubleDelta && m.Domain.Dims[0].Type.IsFloat() {
		return fmt.Errorf("%w: double-delta compression forbidden on float coordinates", ErrSchemaInvalid)
	}

	seen := map[string]bool{CoordsName: true}
	for _, d := range m.Domain.Dims {
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrSchemaInvalid, d.Name)
		}
		seen[d.Name] = true
	}
	for _, a := range m.Attrs {
		if err := a.Check(); err != nil {
			return err
		}
		if seen[a.Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrSchemaInvalid, a.Name)
		}
		seen[a.Name] = true
	}

	if m.Type == Dense {
		for _, d := range m.Domain.Dims {
			if !d.Type.IsInteger() || !d.HasExtent {
				return fmt.Errorf("%w: dense arrays require integer dimensions with a tile extent", ErrSchemaInvalid)
			}
		}
	}
	return nil
}

func putVarBytes(w io.Writer, b []byte) error {
	var sz [4]byte
	binary.LittleEndian.PutUint32(sz[:], uint32(len(b)))
	if _, err := w.Write(sz[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader) ([]byte, error) {
	var sz [4]byte
	if _, err := io.ReadFull(r, sz[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(sz[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func putU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func putU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func putI32(w io.Writer, v int32) error {
	return putU32(w, uint32(v))
}

func readI32(r io.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}

// Serialize emits the exact byte sequence defined in spec.md §6.
func (m *ArrayMetadata) Serialize() ([]byte, error) {
	var b bytes.Buffer

	if err := putVarBytes(&b, []byte(m.URI)); err != nil {
		return nil, err
	}
	b.WriteByte(byte(m.Type))
	b.WriteByte(byte(m.Domain.TileOrder))
	b.WriteByte(byte(m.Domain.CellOrder))
	if err := putU64(&b, m.Capacity); err != nil {
		return nil, err
	}
	b.WriteByte(byte(m.CoordsCompressor))
	if err := putI32(&b, m.CoordsCompressionLevel); err != nil {
		return nil, err
	}
	b.WriteByte(byte(m.VarOffsetsCompressor))
	if err := putI32(&b, m.VarOffsetsCompressionLevel); err != nil {
		return nil, err
	}

	// domain
	b.WriteByte(byte(m.Domain.Dims[0].Type))
	if err := putU32(&b, uint32(len(m.Domain.Dims))); err != nil {
		return nil, err
	}
	for _, d := range m.Domain.Dims {
		if err := putVarBytes(&b, []byte(d.Name)); err != nil {
			return nil, err
		}
		if err := writeDimBound(&b, d.Type, d.DomainLo); err != nil {
			return nil, err
		}
		if err := writeDimBound(&b, d.Type, d.DomainHi); err != nil {
			return nil, err
		}
		if d.HasExtent {
			b.WriteByte(1)
			if err := writeDimBound(&b, d.Type, d.TileExtent); err != nil {
				return nil, err
			}
		} else {
			b.WriteByte(0)
		}
	}

	// attributes
	if err := putU32(&b, uint32(len(m.Attrs))); err != nil {
		return nil, err
	}
	for _, a := range m.Attrs {
		if err := putVarBytes(&b, []byte(a.Name)); err != nil {
			return nil, err
		}
		b.WriteByte(byte(a.Type))
		if err := putU32(&b, a.CellValNum); err != nil {
			return nil, err
		}
		b.WriteByte(byte(a.Compressor))
		if err := putI32(&b, a.CompressionLevel); err != nil {
			return nil, err
		}
	}

	return b.Bytes(), nil
}

// writeDimBound stores a dimension bound as sizeof(type) little-endian
// bytes, regardless of the Go-side int64 representation.
func writeDimBound(w io.Writer, t Datatype, v int64) error {
	switch t.SizeBytes() {
	case 1:
		_, err := w.Write([]byte{byte(v)})
		return err
	case 2:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(v))
		_, err := w.Write(buf[:])
		return err
	case 4:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		_, err := w.Write(buf[:])
		return err
	case 8:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, err := w.Write(buf[:])
		return err
	default:
		return fmt.Errorf("%w: unsupported dimension type %v", ErrSchemaInvalid, t)
	}
}

func readDimBound(r io.Reader, t Datatype) (int64, error) {
	switch t.SizeBytes() {
	case 1:
		var buf [1]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		if t == Int8 {
			return int64(int8(buf[0])), nil
		}
		return int64(buf[0]), nil
	case 2:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		if t == Int16 {
			return int64(int16(binary.LittleEndian.Uint16(buf[:]))), nil
		}
		return int64(binary.LittleEndian.Uint16(buf[:])), nil
	case 4:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		if t == Int32 {
			return int64(int32(binary.LittleEndian.Uint32(buf[:]))), nil
		}
		return int64(binary.LittleEndian.Uint32(buf[:])), nil
	case 8:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return int64(binary.LittleEndian.Uint64(buf[:])), nil
	default:
		return 0, fmt.Errorf("%w: unsupported dimension type %v", ErrSchemaInvalid, t)
	}
}

// DeserializeArrayMetadata restores an ArrayMetadata from the byte
// sequence produced by Serialize.
func DeserializeArrayMetadata(data []byte) (*ArrayMetadata, error) {
	r := bytes.NewReader(data)
	m := &ArrayMetadata{}

	uriBytes, err := readVarBytes(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading array uri: %v", ErrIoError, err)
	}
	m.URI = string(uriBytes)

	var hdr [3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	m.Type = ArrayType(hdr[0])
	m.Domain.TileOrder = Order(hdr[1])
	m.Domain.CellOrder = Order(hdr[2])

	if m.Capacity, err = readU64(r); err != nil {
		return nil, err
	}

	var b1 [1]byte
	if _, err := io.ReadFull(r, b1[:]); err != nil {
		return nil, err
	}
	m.CoordsCompressor = Compressor(b1[0])
	if m.CoordsCompressionLevel, err = readI32(r); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, b1[:]); err != nil {
		return nil, err
	}
	m.VarOffsetsCompressor = Compressor(b1[0])
	if m.VarOffsetsCompressionLevel, err = readI32(r); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(r, b1[:]); err != nil {
		return nil, err
	}
	coordType := Datatype(b1[0])
	dimNum, err := readU32(r)
	if err != nil {
		return nil, err
	}
	m.Domain.Dims = make([]Dimension, dimNum)
	for i := range m.Domain.Dims {
		nameBytes, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		d := Dimension{Name: string(nameBytes), Type: coordType}
		if d.DomainLo, err = readDimBound(r, coordType); err != nil {
			return nil, err
		}
		if d.DomainHi, err = readDimBound(r, coordType); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, b1[:]); err != nil {
			return nil, err
		}
		if b1[0] != 0 {
			d.HasExtent = true
			if d.TileExtent, err = readDimBound(r, coordType); err != nil {
				return nil, err
			}
		}
		m.Domain.Dims[i] = d
	}

	attrNum, err := readU32(r)
	if err != nil {
		return nil, err
	}
	m.Attrs = make([]Attribute, attrNum)
	for i := range m.Attrs {
		nameBytes, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		a := Attribute{Name: string(nameBytes)}
		if _, err := io.ReadFull(r, b1[:]); err != nil {
			return nil, err
		}
		a.Type = Datatype(b1[0])
		if a.CellValNum, err = readU32(r); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, b1[:]); err != nil {
			return nil, err
		}
		a.Compressor = Compressor(b1[0])
		if a.CompressionLevel, err = readI32(r); err != nil {
			return nil, err
		}
		m.Attrs[i] = a
	}

	if err := m.Domain.Init(); err != nil {
		return nil, err
	}
	if err := m.Check(); err != nil {
		return nil, err
	}
	return m, nil
}
