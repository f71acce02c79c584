package chanbuf

import "github.com/pkg/errors"

// Offsets passed to the editors are relative to the cursor: 0 is the first input
// byte and Input() is the input end.
//
// The bytes from pos to the input end are shifted with a flat move, so they must
// not cross the end of storage. Violations are refused with ErrWrapped; callers
// realign and retry.

// Replace substitutes the input span [pos,end) with data and shifts the rest of
// the input region to absorb the size change. It returns the change in input
// length, which may be negative or zero. A nil or empty data deletes the span.
func (b *Buffer) Replace(pos, end int, data []byte) (int, error) {
	if pos < 0 || pos > end || end > b.i {
		return 0, errRange(pos, end, b.i)
	}
	delta := len(data) - (end - pos)
	start, inEnd, err := b.makeRoom(pos, delta)
	if err != nil {
		return 0, err
	}

	// 1. shift the tail [end, input end) by delta
	tail := start + end - pos
	copy(b.data[tail+delta:inEnd+delta], b.data[tail:inEnd])

	// 2. copy the new content into the gap
	copy(b.data[start:], data)

	b.i += delta
	b.normalize()
	return delta, nil
}

// Delete removes the input span [pos,end).
func (b *Buffer) Delete(pos, end int) (int, error) {
	return b.Replace(pos, end, nil)
}

// InsertLine inserts line followed by CRLF at input offset pos.
func (b *Buffer) InsertLine(pos int, line []byte) (int, error) {
	return b.insertLine(pos, len(line), line, true)
}

// ReserveLine opens an uninitialized gap of n+2 bytes at input offset pos, room
// for a line of n bytes and its CRLF. The caller fills it in afterwards.
func (b *Buffer) ReserveLine(pos, n int) (int, error) {
	if n < 0 {
		return 0, errors.Wrapf(ErrRange, "negative line length %d", n)
	}
	return b.insertLine(pos, n, nil, false)
}

func (b *Buffer) insertLine(pos, n int, line []byte, write bool) (int, error) {
	if pos < 0 || pos > b.i {
		return 0, errRange(pos, pos, b.i)
	}
	delta := n + 2
	start, inEnd, err := b.makeRoom(pos, delta)
	if err != nil {
		return 0, err
	}

	copy(b.data[start+delta:inEnd+delta], b.data[start:inEnd])
	if write {
		copy(b.data[start:], line)
		b.data[start+n] = '\r'
		b.data[start+n+1] = '\n'
	}

	b.i += delta
	return delta, nil
}

// makeRoom checks that the input region may grow by delta bytes when the bytes
// from pos onwards are shifted. It returns the physical index of pos and the flat
// (unwrapped) physical index of the input end.
func (b *Buffer) makeRoom(pos, delta int) (start, inEnd int, err error) {
	start = b.index(pos)
	inEnd = start + b.i - pos
	if inEnd > len(b.data) {
		return 0, 0, errors.Wrapf(ErrWrapped, "tail [%d,%d) crosses the end of %d bytes", pos, b.i, len(b.data))
	}
	if delta <= 0 {
		return start, inEnd, nil
	}

	// 1. the shifted tail must stay inside storage
	if inEnd+delta > len(b.data) {
		logger.WithField("delta", delta).WithField("buf", b.String()).Debug("edit refused at storage end")
		return 0, 0, errors.Wrapf(ErrNoSpace, "growing by %d past the storage end", delta)
	}

	// 2. output bytes sitting ahead of the input end must not be overwritten
	if b.o+b.i > 0 {
		outStart := b.index(-b.o)
		if outStart >= inEnd && inEnd+delta > outStart {
			logger.WithField("delta", delta).WithField("buf", b.String()).Debug("edit refused before pending output")
			return 0, 0, errors.Wrapf(ErrNoSpace, "growing by %d into pending output", delta)
		}
	}
	return start, inEnd, nil
}
