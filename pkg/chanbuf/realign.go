package chanbuf

import "sync"

// Scratch is the staging area used by SlowRealign. It grows to the largest
// buffer it has served and is reused afterwards. A Scratch must not be shared
// between goroutines; keep one per worker or pass nil to borrow a pooled one.
type Scratch struct {
	buf []byte
}

func (s *Scratch) get(n int) []byte {
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	return s.buf[:n]
}

var scratchPool = sync.Pool{
	New: func() any {
		return new(Scratch)
	},
}

// SlowRealign moves the input region to the start of storage using a scratch
// area for the part that wraps. The output region must be empty; calling it with
// pending output is a programming error and panics.
func (b *Buffer) SlowRealign(s *Scratch) {
	if b.o != 0 {
		panic("chanbuf: SlowRealign called with pending output")
	}
	if b.i == 0 || b.p == 0 {
		b.p = 0
		return
	}
	logger.WithField("buf", b.String()).Debug("slow realign")

	// 1. contiguous input: a single overlapping move
	if b.p+b.i <= len(b.data) {
		copy(b.data, b.data[b.p:b.p+b.i])
		b.p = 0
		return
	}

	if s == nil {
		s = scratchPool.Get().(*Scratch)
		defer scratchPool.Put(s)
	}

	// 2. wrapping input: stage block2 [0, wrap) before block1 lands on it
	block1 := len(b.data) - b.p
	block2 := b.i - block1
	tmp := s.get(block2)
	copy(tmp, b.data[:block2])
	copy(b.data, b.data[b.p:])
	copy(b.data[block1:], tmp)
	b.p = 0
}

// BounceRealign rotates storage in place so that the output region starts at
// offset 0 and the live bytes are contiguous. It works whatever the output
// length and needs no extra memory. Output and input lengths are unchanged;
// the cursor equals Output() afterwards.
func (b *Buffer) BounceRealign() {
	if b.o+b.i == 0 {
		b.p = 0
		return
	}
	b.bounce()
	b.p = b.o % len(b.data)
}

// bounce rotates the storage right by advance = size - output_start, following
// the cycles of the permutation x -> x+advance. Only live bytes are relocated:
// each run of live bytes along a cycle is pushed from the byte whose predecessor
// is free, and the last byte of the run lands in that free slot. Cycles without
// any free slot are rotated whole. Storage pointers are not updated.
func (b *Buffer) bounce() {
	size := len(b.data)
	n := b.o + b.i
	from := b.index(-b.o)
	advance := (size - from) % size
	if advance == 0 || n == 0 {
		return
	}
	logger.WithField("buf", b.String()).WithField("advance", advance).Debug("bounce realign")

	next := func(x int) int {
		x += advance
		if x >= size {
			x -= size
		}
		return x
	}

	// 1. runs that end in free space
	for k := 0; k < n; k++ {
		head := from + k
		if head >= size {
			head -= size
		}
		// predecessor of head along its cycle is head - advance == head + from
		if b.live((head + from) % size) {
			continue
		}
		last := b.data[head]
		for to := next(head); ; to = next(to) {
			if !b.live(to) {
				b.data[to] = last
				break
			}
			last, b.data[to] = b.data[to], last
		}
	}

	// 2. cycles made only of live bytes, present when the free span is shorter
	// than the number of cycles
	free := size - n
	cycles := gcd(advance, size)
	for j := free; j < cycles; j++ {
		start := (from + n + j) % cycles
		last := b.data[start]
		for to := next(start); ; to = next(to) {
			last, b.data[to] = b.data[to], last
			if to == start {
				break
			}
		}
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Realign makes the live region contiguous from offset 0, using the scratch
// path when no output is pending and in-place rotation otherwise.
func (b *Buffer) Realign(s *Scratch) {
	if b.o == 0 {
		b.SlowRealign(s)
		return
	}
	b.BounceRealign()
}
