package chanbuf

import (
	"fmt"
	"sync"
)

// Pool hands out buffers of a single capacity and takes them back once their
// stream is done with them.
type Pool struct {
	size int
	pool sync.Pool
}

func NewPool(size int) *Pool {
	if size <= 0 {
		panic(fmt.Sprintf("chanbuf: invalid pool buffer size %d", size))
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		return New(size)
	}
	return p
}

// BufferSize is the capacity of every buffer handed out by the pool.
func (p *Pool) BufferSize() int { return p.size }

// Prefill allocates n buffers up front so that the first streams do not pay
// for them.
func (p *Pool) Prefill(n int) {
	bufs := make([]*Buffer, n)
	for i := range bufs {
		bufs[i] = p.Get()
	}
	for _, b := range bufs {
		p.Put(b)
	}
}

// Get returns an empty buffer.
func (p *Pool) Get() *Buffer {
	return p.pool.Get().(*Buffer)
}

// Put resets b and returns it to the pool. Buffers of another size are dropped.
func (p *Pool) Put(b *Buffer) {
	if b == nil || b.Size() != p.size {
		return
	}
	b.Reset()
	p.pool.Put(b)
}
