// Package rewrite queues edits against a buffer's input region and applies
// them in order, realigning the buffer when an edit cannot be done in place.
//
// Offsets of queued edits are input offsets at the time they are queued. Each
// applied edit shifts the edits queued after it by its size change, so callers
// can queue all the edits for a message up front using the offsets they parsed.
package rewrite

import (
	"fmt"

	"proxybuf/pkg/chanbuf"

	"github.com/gammazero/deque"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("pkg", "rewrite")

// ErrOverlap is returned when a new edit touches bytes another queued edit
// already covers.
var ErrOverlap = errors.New("edit overlaps a queued edit")

type Op int

const (
	OpReplace Op = iota
	OpInsertLine
	OpReserveLine
)

var opString = map[Op]string{
	OpReplace:     "replace",
	OpInsertLine:  "insert",
	OpReserveLine: "reserve",
}

func (op Op) String() string {
	if s, ok := opString[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(op))
}

type Edit struct {
	Op   Op
	Pos  int
	End  int    // equals Pos for line edits
	Data []byte // replacement or line content
	N    int    // line length for OpReserveLine
}

func (e *Edit) String() string {
	switch e.Op {
	case OpReplace:
		return fmt.Sprintf("%v [%d,%d) %q", e.Op, e.Pos, e.End, e.Data)
	case OpReserveLine:
		return fmt.Sprintf("%v @%d %d+2", e.Op, e.Pos, e.N)
	default:
		return fmt.Sprintf("%v @%d %q", e.Op, e.Pos, e.Data)
	}
}

func (e *Edit) apply(b *chanbuf.Buffer) (int, error) {
	switch e.Op {
	case OpReplace:
		return b.Replace(e.Pos, e.End, e.Data)
	case OpInsertLine:
		return b.InsertLine(e.Pos, e.Data)
	case OpReserveLine:
		return b.ReserveLine(e.Pos, e.N)
	}
	return 0, errors.Errorf("unknown edit op %v", e.Op)
}

type Queue struct {
	edits   *deque.Deque[*Edit]
	scratch chanbuf.Scratch
}

func NewQueue() *Queue {
	return &Queue{edits: deque.New[*Edit]()}
}

func (q *Queue) Len() int { return q.edits.Len() }

// Edits returns the queued edits in application order.
func (q *Queue) Edits() []*Edit {
	res := make([]*Edit, q.edits.Len())
	for i := range res {
		res[i] = q.edits.At(i)
	}
	return res
}

func (q *Queue) Clear() { q.edits.Clear() }

func (q *Queue) Replace(pos, end int, data []byte) error {
	return q.push(&Edit{Op: OpReplace, Pos: pos, End: end, Data: data})
}

func (q *Queue) Delete(pos, end int) error {
	return q.push(&Edit{Op: OpReplace, Pos: pos, End: end})
}

func (q *Queue) InsertLine(pos int, line []byte) error {
	return q.push(&Edit{Op: OpInsertLine, Pos: pos, End: pos, Data: line})
}

func (q *Queue) ReserveLine(pos, n int) error {
	return q.push(&Edit{Op: OpReserveLine, Pos: pos, End: pos, N: n})
}

func (q *Queue) push(e *Edit) error {
	if e.Pos < 0 || e.End < e.Pos {
		return errors.Wrapf(chanbuf.ErrRange, "edit %v", e)
	}
	for i := 0; i < q.edits.Len(); i++ {
		other := q.edits.At(i)
		// insertions on a span boundary are fine, they land in queue order
		if e.Pos < other.End && other.Pos < e.End {
			return errors.Wrapf(ErrOverlap, "%v and %v", e, other)
		}
	}
	q.edits.PushBack(e)
	return nil
}

// shift moves the queued edits that start at or after end by delta.
func (q *Queue) shift(end, delta int) {
	for i := 0; i < q.edits.Len(); i++ {
		e := q.edits.At(i)
		if e.Pos >= end {
			e.Pos += delta
			e.End += delta
		}
	}
}

// Apply runs the queued edits against b and returns the total change in input
// length. When b cannot make room for an edit, Apply stops with an error wrapping
// chanbuf.ErrNoSpace and the edit stays at the head of the queue; once output
// has been drained Apply can be called again.
func (q *Queue) Apply(b *chanbuf.Buffer) (int, error) {
	total := 0
	for q.edits.Len() > 0 {
		e := q.edits.Front()
		delta, err := q.applyOne(b, e)
		if err != nil {
			return total, errors.WithMessagef(err, "apply %v", e)
		}
		q.edits.PopFront()
		q.shift(e.End, delta)
		total += delta
	}
	return total, nil
}

func (q *Queue) applyOne(b *chanbuf.Buffer, e *Edit) (int, error) {
	delta, err := e.apply(b)
	if err == nil {
		return delta, nil
	}

	switch errors.Cause(err) {
	case chanbuf.ErrWrapped:
	case chanbuf.ErrNoSpace:
		// realigning only helps when the free space exists but is split
		if b.Room() < e.growth() {
			return 0, err
		}
	default:
		return 0, err
	}

	logger.WithField("edit", e.String()).WithField("buf", b.String()).Debug("realign before retry")
	b.Realign(&q.scratch)
	return e.apply(b)
}

// growth is how many bytes the edit adds to the input region.
func (e *Edit) growth() int {
	switch e.Op {
	case OpInsertLine:
		return len(e.Data) + 2
	case OpReserveLine:
		return e.N + 2
	}
	return len(e.Data) - (e.End - e.Pos)
}
