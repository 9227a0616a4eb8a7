package sparsearray

import (
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
)

// FragmentName identifies a fragment directory: a monotonically
// increasing timestamp pair plus a random-but-comparable UUID suffix so
// concurrent writers never collide (spec.md §4.3, "Fragment Name").
// Lexicographic string ordering of Name recovers write recency, the
// same trick pmtiles/directory.go relies on for z/x/y keys.
type FragmentName struct {
	TimestampStart uint64
	TimestampEnd   uint64
	UUID           string
}

// String renders the fragment name in the canonical
// "<start>_<end>_<uuid>" form used as its storage directory name.
func (n FragmentName) String() string {
	return fmt.Sprintf("%020d_%020d_%s", n.TimestampStart, n.TimestampEnd, n.UUID)
}

// NewFragmentName stamps a fragment name with the current wall-clock
// time as both its start and end timestamp (a single-instant write) and
// a random UUID suffix, guaranteeing lexicographic recency ordering
// against any prior fragment.
func NewFragmentName() FragmentName {
	now := uint64(time.Now().UnixNano())
	return FragmentName{TimestampStart: now, TimestampEnd: now, UUID: uuid.New().String()}
}

// Fragment is a single write's worth of array data: its own metadata
// plus the URIs of its coordinate, attribute, and var-size value files
// under a shared storage root (spec.md §4.3).
type Fragment struct {
	Name     FragmentName
	Root     string // storage-relative directory, e.g. "array/__fragments/<name>"
	Schema   *ArrayMetadata
	Metadata *FragmentMetadata
}

// NewFragment creates an empty fragment rooted under arrayRoot, bound
// to schema, ready for a Writer to populate via FragmentMetadata's
// append methods.
func NewFragment(arrayRoot string, name FragmentName, schema *ArrayMetadata) *Fragment {
	return &Fragment{
		Name:     name,
		Root:     path.Join(arrayRoot, "__fragments", name.String()),
		Schema:   schema,
		Metadata: NewFragmentMetadata(schema),
	}
}

// coordsFileName, attrFileName, and varFileName name the files a
// Fragment writes under Root — one coordinates file (sparse only), one
// fixed-size values file per attribute, and one offsets+values pair per
// var-size attribute.
func (f *Fragment) coordsFileName() string { return path.Join(f.Root, "__coords.tile") }

func (f *Fragment) attrFileName(attrIdx int) string {
	if attrIdx == 0 {
		return f.coordsFileName()
	}
	return path.Join(f.Root, f.Schema.Attrs[attrIdx-1].Name+".tile")
}

func (f *Fragment) attrVarFileName(attrIdx int) string {
	return path.Join(f.Root, f.Schema.Attrs[attrIdx-1].Name+".var")
}

func (f *Fragment) metadataFileName() string { return path.Join(f.Root, "__fragment_metadata.bin") }

// More recently written fragments take priority when two fragments
// disagree on the value at the same coordinate (spec.md §4.4's
// "fragment recency" rule). Name ordering encodes write order directly.
func fragmentMoreRecent(a, b FragmentName) bool {
	return a.String() > b.String()
}
