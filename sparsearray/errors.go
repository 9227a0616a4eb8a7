package sparsearray

import "errors"

// Sentinel error kinds from the error handling design. Callers should use
// errors.Is/errors.As rather than comparing error strings.
var (
	// ErrSchemaInvalid is returned when an ArrayMetadata or its
	// constituent Attribute/Dimension fails validation.
	ErrSchemaInvalid = errors.New("schema invalid")

	// ErrInvalidLayout is returned for an unknown or unsupported
	// cell/tile order, or a type mismatch in a layout operation.
	ErrInvalidLayout = errors.New("invalid layout")

	// ErrCoordinatesOutOfDomain is returned when a write cell lies
	// outside the array's dimension domain.
	ErrCoordinatesOutOfDomain = errors.New("coordinates out of domain")

	// ErrTileFilterError is returned when the filter pipeline refuses a
	// tile (corrupt or unsupported). It is fatal for the tile, not the
	// query: callers may drop the tile from the candidate set.
	ErrTileFilterError = errors.New("tile filter error")

	// ErrIoError wraps a failure surfaced by the storage driver after
	// its own retry budget is exhausted.
	ErrIoError = errors.New("io error")

	// ErrOutOfMemory indicates a memory budget could not be met even
	// for the minimum working set (one tile per fragment). Fatal for
	// the query.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrNotFound indicates a fragment or array directory is missing.
	ErrNotFound = errors.New("not found")
)

// BufferOverflow is not an error returned through the error channel; a
// query that cannot fit its results into the caller's buffers reports an
// Incomplete status instead (see Status). No helper in this package
// returns this type: Assembler's append helpers report "would overflow"
// with a false return, which Assemble folds into Status.
type bufferOverflow struct{ cellsWritten int }

func (bufferOverflow) Error() string { return "buffer overflow" }
