package chanbuf

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestReplace_GrowsInput(t *testing.T) {
	b := New(16)
	b.Write([]byte("HELLO WORLD"))

	delta, err := b.Replace(6, 11, []byte("EARTH!"))
	if err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if delta != 1 {
		t.Fatalf("expect delta 1 but got %d", delta)
	}
	if b.Input() != 12 || string(b.InputBytes()) != "HELLO EARTH!" {
		t.Fatalf("expect HELLO EARTH! (12) but got %q (%d)", b.InputBytes(), b.Input())
	}
	checkInvariants(t, b)
}

func TestReplace_ShrinkAndDelete(t *testing.T) {
	b := New(32)
	b.Write([]byte("Host: example.com\r\nAccept: */*\r\n"))

	delta, err := b.Replace(6, 17, []byte("a.io"))
	if err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if delta != -7 || string(b.InputBytes()) != "Host: a.io\r\nAccept: */*\r\n" {
		t.Fatalf("expect shrunk header but got %d %q", delta, b.InputBytes())
	}

	delta, err = b.Delete(0, 12)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if delta != -12 || string(b.InputBytes()) != "Accept: */*\r\n" {
		t.Fatalf("expect first line removed but got %d %q", delta, b.InputBytes())
	}

	// same length replacement is a valid zero delta
	delta, err = b.Replace(0, 6, []byte("ACCEPT"))
	if err != nil || delta != 0 {
		t.Fatalf("expect zero delta without error but got %d %v", delta, err)
	}

	// deleting everything brings the cursor home
	b.Forward(2)
	b.Skip(2)
	if _, err := b.Delete(0, b.Input()); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !b.IsEmpty() || b.Cursor() != 0 {
		t.Fatalf("expect empty buffer with cursor 0 but got %v", b)
	}
}

func TestReplace_RoundTrip(t *testing.T) {
	for pos := 0; pos <= 6; pos++ {
		for end := pos; end <= 6; end++ {
			b := fill(24, 3, 2, 6)
			data := []byte("xyz")
			before := b.InputBytes()
			if _, err := b.Replace(pos, end, data); err != nil {
				t.Fatalf("replace [%d,%d) failed: %v", pos, end, err)
			}
			got, _ := b.Peek(pos, len(data))
			if !bytes.Equal(got, data) {
				t.Fatalf("expect %q at %d but got %q", data, pos, got)
			}
			want := append(append(append([]byte{}, before[:pos]...), data...), before[end:]...)
			if !bytes.Equal(b.InputBytes(), want) {
				t.Fatalf("expect %v but got %v", want, b.InputBytes())
			}
			if !bytes.Equal(b.OutputBytes(), []byte{1, 2}) {
				t.Fatalf("expect output untouched but got %v", b.OutputBytes())
			}
			checkInvariants(t, b)
		}
	}
}

func TestReplace_FullBufferRefused(t *testing.T) {
	tests := []struct {
		name     string
		b        *Buffer
		pos, end int
		want     error
	}{
		{"contiguous", fill(8, 0, 3, 5), 0, 1, ErrNoSpace},
		{"input wrapped, edit after wrap", fill(8, 5, 0, 8), 4, 4, ErrNoSpace},
		{"input wrapped, edit before wrap", fill(8, 5, 0, 8), 0, 1, ErrWrapped},
		{"output wrapped", fill(8, 6, 3, 5), 2, 3, ErrNoSpace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := append([]byte{}, tt.b.data...)
			state := tt.b.String()

			if _, err := tt.b.Replace(tt.pos, tt.end, []byte("xy")); !errors.Is(err, tt.want) {
				t.Fatalf("expect %v but got %v", tt.want, err)
			}
			if _, err := tt.b.InsertLine(tt.pos, []byte("X: y")); !errors.Is(err, tt.want) {
				t.Fatalf("expect %v but got %v", tt.want, err)
			}
			if !bytes.Equal(before, tt.b.data) || state != tt.b.String() {
				t.Fatalf("expect buffer unchanged but got %v", tt.b)
			}
		})
	}
}

func TestReplace_StopsBeforeOutput(t *testing.T) {
	// output [6,8), input [0,3), free [3,6)
	b := fill(8, 6, 2, 3)

	if _, err := b.Replace(1, 1, []byte("abcd")); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("expect ErrNoSpace growing into output but got %v", err)
	}
	delta, err := b.Replace(1, 1, []byte("abc"))
	if err != nil || delta != 3 {
		t.Fatalf("expect delta 3 filling the gap but got %d %v", delta, err)
	}
	if !b.IsFull() || !bytes.Equal(liveBytes(b), []byte{1, 2, 3, 'a', 'b', 'c', 4, 5}) {
		t.Fatalf("unexpected live bytes %v", liveBytes(b))
	}
	checkInvariants(t, b)
}

func TestReplace_StopsAtStorageEnd(t *testing.T) {
	// free space only before the live bytes
	b := fill(8, 2, 1, 5)
	if _, err := b.Replace(0, 0, []byte("a")); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("expect ErrNoSpace but got %v", err)
	}
	if b.Room() != 2 {
		t.Fatalf("expect 2 free bytes but got %d", b.Room())
	}
}

func TestReplace_Range(t *testing.T) {
	b := fill(8, 0, 0, 4)
	for _, span := range [][2]int{{-1, 2}, {3, 2}, {2, 5}} {
		if _, err := b.Replace(span[0], span[1], nil); !errors.Is(err, ErrRange) {
			t.Fatalf("expect ErrRange for %v but got %v", span, err)
		}
	}
	if _, err := b.InsertLine(5, nil); !errors.Is(err, ErrRange) {
		t.Fatalf("expect ErrRange but got %v", err)
	}
	if _, err := b.ReserveLine(0, -1); !errors.Is(err, ErrRange) {
		t.Fatalf("expect ErrRange but got %v", err)
	}
}

func TestInsertLine(t *testing.T) {
	b := New(32)
	b.Write([]byte("GET / HTTP/1.1\r\n\r\n"))

	delta, err := b.InsertLine(16, []byte("Host: a"))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if delta != 9 || string(b.InputBytes()) != "GET / HTTP/1.1\r\nHost: a\r\n\r\n" {
		t.Fatalf("expect inserted header but got %d %q", delta, b.InputBytes())
	}

	// empty line is a bare CRLF
	delta, err = b.InsertLine(0, nil)
	if err != nil || delta != 2 || string(b.InputBytes()[:4]) != "\r\nGE" {
		t.Fatalf("expect leading CRLF but got %d %v %q", delta, err, b.InputBytes())
	}
	checkInvariants(t, b)
}

func TestReserveLine_LeavesGapUnwritten(t *testing.T) {
	b := New(32)
	b.Write([]byte("Host: a\r\nX: b\r\n"))

	delta, err := b.ReserveLine(9, 4)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if delta != 6 || b.Input() != 21 {
		t.Fatalf("expect delta 6 and input 21 but got %d %v", delta, b)
	}
	in := b.InputBytes()
	if string(in[:9]) != "Host: a\r\n" || string(in[15:]) != "X: b\r\n" {
		t.Fatalf("expect surrounding bytes intact but got %q", in)
	}
	// the gap still holds what the shift left behind
	if string(in[9:15]) != "X: b\r\n" {
		t.Fatalf("expect gap untouched but got %q", in[9:15])
	}

	copy(b.data[b.index(9):], "Y: c\r\n")
	if string(b.InputBytes()) != "Host: a\r\nY: c\r\nX: b\r\n" {
		t.Fatalf("unexpected input after filling the gap %q", b.InputBytes())
	}
}
