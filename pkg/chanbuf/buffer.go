// Package chanbuf implements the fixed-capacity circular byte buffer shared by a
// data source and a data sink. The live bytes form two adjacent regions around
// the cursor: output (already processed, waiting for the sink) sits behind it,
// input (written by the source, not yet processed) starts at it.
//
//	           output_start      cursor            input_end
//	------------|+++++ output +++++|===== input =====|------------|
//	0                                                          size
//
// Either region may wrap past the end of storage and resume at offset 0.
// A Buffer is not safe for concurrent use; it belongs to one stream at a time.
package chanbuf

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("pkg", "chanbuf")

type Buffer struct {
	data []byte
	p    int // cursor, physical index of the first input byte
	o    int // output length, bytes behind p
	i    int // input length, bytes at and after p
}

// New allocates a buffer with size bytes of storage.
func New(size int) *Buffer {
	if size <= 0 {
		panic(fmt.Sprintf("chanbuf: invalid buffer size %d", size))
	}
	return &Buffer{data: make([]byte, size)}
}

// index maps an offset relative to the cursor onto a physical storage index.
// Negative offsets address the output region.
func (b *Buffer) index(off int) int {
	n := len(b.data)
	idx := (b.p + off) % n
	if idx < 0 {
		idx += n
	}
	return idx
}

// live reports whether physical index idx holds output or input bytes.
func (b *Buffer) live(idx int) bool {
	n := len(b.data)
	return (idx-b.index(-b.o)+n)%n < b.o+b.i
}

// normalize puts an empty buffer's cursor back at the origin.
func (b *Buffer) normalize() {
	if b.o == 0 && b.i == 0 {
		b.p = 0
	}
}

func (b *Buffer) Size() int   { return len(b.data) }
func (b *Buffer) Cursor() int { return b.p }
func (b *Buffer) Output() int { return b.o }
func (b *Buffer) Input() int  { return b.i }
func (b *Buffer) Len() int    { return b.o + b.i }

// Room is the free space left in the buffer.
func (b *Buffer) Room() int { return len(b.data) - b.o - b.i }

func (b *Buffer) IsEmpty() bool { return b.o+b.i == 0 }
func (b *Buffer) IsFull() bool  { return b.o+b.i == len(b.data) }

// Wrapped reports whether the live region crosses the end of storage.
func (b *Buffer) Wrapped() bool {
	return b.index(-b.o)+b.o+b.i > len(b.data)
}

// InputWrapped reports whether the input region crosses the end of storage.
func (b *Buffer) InputWrapped() bool {
	return b.p+b.i > len(b.data)
}

// At returns the input byte at offset off.
func (b *Buffer) At(off int) byte {
	if off < 0 || off >= b.i {
		panic(fmt.Sprintf("chanbuf: input offset %d out of range [0,%d)", off, b.i))
	}
	return b.data[b.index(off)]
}

// spans returns the storage slices covering n bytes starting at cursor offset off.
// The second slice is non-nil only when the span wraps.
func (b *Buffer) spans(off, n int) ([]byte, []byte) {
	if n == 0 {
		return nil, nil
	}
	start := b.index(off)
	if start+n <= len(b.data) {
		return b.data[start : start+n], nil
	}
	return b.data[start:], b.data[:start+n-len(b.data)]
}

// InputSpans returns the input region as one or two slices aliasing storage.
func (b *Buffer) InputSpans() ([]byte, []byte) {
	return b.spans(0, b.i)
}

// OutputSpans returns the output region as one or two slices aliasing storage.
func (b *Buffer) OutputSpans() ([]byte, []byte) {
	return b.spans(-b.o, b.o)
}

// Peek copies n input bytes starting at offset off.
func (b *Buffer) Peek(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > b.i {
		return nil, errRange(off, off+n, b.i)
	}
	buf := make([]byte, n)
	first, second := b.spans(off, n)
	copy(buf[copy(buf, first):], second)
	return buf, nil
}

// InputBytes returns a copy of the input region.
func (b *Buffer) InputBytes() []byte {
	buf, _ := b.Peek(0, b.i)
	return buf
}

// OutputBytes returns a copy of the output region.
func (b *Buffer) OutputBytes() []byte {
	buf := make([]byte, b.o)
	first, second := b.OutputSpans()
	copy(buf[copy(buf, first):], second)
	return buf
}

// Reset empties the buffer. Storage content is left as is.
func (b *Buffer) Reset() {
	b.p, b.o, b.i = 0, 0, 0
}

func (b *Buffer) String() string {
	return fmt.Sprintf("{size:%d p:%d o:%d i:%d}", len(b.data), b.p, b.o, b.i)
}
