package annotator

import (
	"errors"
	"fmt"
)

// Error kinds reported to the UI layer. Test with errors.Is.
var (
	// ErrInvalidGeometry is returned for shapes that leave the image or have non-positive extent.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrMalformedLine is returned when a label line cannot be parsed.
	ErrMalformedLine = errors.New("malformed label line")
	// ErrIOFailure wraps disk errors during import and export.
	ErrIOFailure = errors.New("I/O failure")
	// ErrNotFound is returned for annotation ids unknown to the store.
	ErrNotFound = errors.New("annotation not found")
	// ErrUnknownClass is returned for class ids that do not index the class table.
	ErrUnknownClass = errors.New("unknown class")
)

// LineError describes a malformed line in a label file.
type LineError struct {
	Line   int    // 1-based line number.
	Text   string // The offending line.
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %s", e.Line, e.Text, e.Reason)
}

// Unwrap makes errors.Is(err, ErrMalformedLine) hold for every LineError.
func (e *LineError) Unwrap() error {
	return ErrMalformedLine
}

// ioFailure wraps err as ErrIOFailure with context about path.
func ioFailure(op, path string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", ErrIOFailure, op, path, err)
}
