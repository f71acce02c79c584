package rewrite

import "proxybuf/pkg/chanbuf"

// NextLine looks for the next CRLF in b's input region at or after offset from.
// It returns the offset of the CR and the offset just past the LF.
func NextLine(b *chanbuf.Buffer, from int) (eol, next int, ok bool) {
	for k := from; k+1 < b.Input(); k++ {
		if b.At(k) == '\r' && b.At(k+1) == '\n' {
			return k, k + 2, true
		}
	}
	return 0, 0, false
}

// Line is the span of one CRLF terminated line, terminator excluded.
type Line struct {
	Start, End int
}

// Lines lists the complete lines of b's input region.
func Lines(b *chanbuf.Buffer) []Line {
	var res []Line
	start := 0
	for {
		eol, next, ok := NextLine(b, start)
		if !ok {
			return res
		}
		res = append(res, Line{Start: start, End: eol})
		start = next
	}
}

// FindLine returns the first complete line starting with prefix.
func FindLine(b *chanbuf.Buffer, prefix []byte) (Line, bool) {
	for _, l := range Lines(b) {
		if l.End-l.Start < len(prefix) {
			continue
		}
		match := true
		for k, c := range prefix {
			if b.At(l.Start+k) != c {
				match = false
				break
			}
		}
		if match {
			return l, true
		}
	}
	return Line{}, false
}
