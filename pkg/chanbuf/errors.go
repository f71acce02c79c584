package chanbuf

import "github.com/pkg/errors"

var (
	// ErrNoSpace means the input region cannot grow without running past the end
	// of storage or into pending output. Nothing was modified.
	ErrNoSpace = errors.New("no space left in buffer")

	// ErrWrapped means the bytes an edit has to shift cross the end of storage.
	// The buffer must be realigned before retrying.
	ErrWrapped = errors.New("edited region wraps around the buffer end")

	// ErrRange means an offset lies outside the region it addresses.
	ErrRange = errors.New("offset out of range")
)

func errRange(pos, end, limit int) error {
	return errors.Wrapf(ErrRange, "span [%d,%d) not within [0,%d)", pos, end, limit)
}
