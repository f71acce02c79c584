package chanbuf

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Write appends p to the input region. The write is all or nothing: when p does
// not fit, ErrNoSpace is returned and the buffer is left untouched.
func (b *Buffer) Write(p []byte) (int, error) {
	return b.WriteReserved(p, 0)
}

// WriteReserved is Write that keeps at least reserve bytes free afterwards, the
// headroom later rewrites of the input need.
func (b *Buffer) WriteReserved(p []byte, reserve int) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > b.Room()-reserve {
		logger.WithFields(logrus.Fields{"want": len(p), "room": b.Room(), "reserve": reserve}).Debug("write refused")
		return 0, errors.Wrapf(ErrNoSpace, "write of %d bytes, %d free, %d reserved", len(p), b.Room(), reserve)
	}

	first, second := b.spans(b.i, len(p))
	copy(second, p[copy(first, p):])
	b.i += len(p)
	return len(p), nil
}

// FreeSpan returns the contiguous free storage right after the input end. It is
// empty when the buffer is full.
func (b *Buffer) FreeSpan() []byte {
	room := b.Room()
	if room == 0 {
		return nil
	}
	first, _ := b.spans(b.i, room)
	return first
}

// Fill performs a single Read from r into the free span after the input end and
// accounts the bytes read as input.
func (b *Buffer) Fill(r io.Reader) (int, error) {
	span := b.FreeSpan()
	if len(span) == 0 {
		return 0, errors.Wrap(ErrNoSpace, "fill")
	}
	n, err := r.Read(span)
	if n > 0 {
		b.i += n
	}
	return n, err
}

// Forward moves n parsed input bytes into the output region.
func (b *Buffer) Forward(n int) error {
	if n < 0 || n > b.i {
		return errRange(0, n, b.i)
	}
	b.p = b.index(n)
	b.o += n
	b.i -= n
	return nil
}

// Skip drops n bytes from the head of the output region.
func (b *Buffer) Skip(n int) error {
	if n < 0 || n > b.o {
		return errRange(0, n, b.o)
	}
	b.o -= n
	b.normalize()
	return nil
}

// WriteTo drains the output region into w. Bytes accepted by w are removed from
// the buffer even when w returns an error.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for b.o > 0 {
		span, _ := b.OutputSpans()
		n, err := w.Write(span)
		if n > len(span) {
			n = len(span)
		}
		total += int64(n)
		b.o -= n
		if err != nil {
			b.normalize()
			return total, err
		}
		if n < len(span) {
			b.normalize()
			return total, io.ErrShortWrite
		}
	}
	b.normalize()
	return total, nil
}
