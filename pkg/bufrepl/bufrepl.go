// Package bufrepl exposes a channel buffer, its rewrite queue and the
// realigners as interactive commands.
package bufrepl

import (
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"proxybuf/pkg/bufconfig"
	"proxybuf/pkg/chanbuf"
	"proxybuf/pkg/repl"
	"proxybuf/pkg/rewrite"
	"proxybuf/pkg/segment"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("pkg", "bufrepl")

var (
	clientAddr = netip.MustParseAddrPort("192.0.2.10:40000")
	proxyAddr  = netip.MustParseAddrPort("192.0.2.1:8080")
)

// Session is one buffer under inspection.
type Session struct {
	Buf     *chanbuf.Buffer
	Queue   *rewrite.Queue
	Mode    bufconfig.RealignMode
	Reserve int // free bytes sources must leave for rewrites
	scratch chanbuf.Scratch
	pool    *chanbuf.Pool
	seq     uint32
}

func NewSession(config *bufconfig.BufConfig, pool *chanbuf.Pool) *Session {
	return &Session{
		Buf:     pool.Get(),
		Queue:   rewrite.NewQueue(),
		Mode:    config.Realign,
		Reserve: config.MaxRewrite,
		pool:    pool,
		seq:     1,
	}
}

// Close hands the buffer back to the pool.
func (s *Session) Close() {
	if s.Buf != nil {
		s.pool.Put(s.Buf)
		s.Buf = nil
	}
}

func BufRepl(s *Session) *repl.REPL {
	r := repl.NewRepl()
	r.AddCommand("show", s.showHandler(), "Prints the buffer layout and contents. usage: show")
	r.AddCommand("append", s.appendHandler(), "Appends text to the input region, \\r \\n \\t are unescaped. usage: append <text>")
	r.AddCommand("fwd", s.fwdHandler(), "Schedules input bytes for output. usage: fwd <n>")
	r.AddCommand("skip", s.skipHandler(), "Drops the oldest output bytes. usage: skip <n>")
	r.AddCommand("replace", s.replaceHandler(), "Replaces input bytes [pos, end) with text. usage: replace <pos> <end> [text]")
	r.AddCommand("delete", s.deleteHandler(), "Deletes input bytes [pos, end). usage: delete <pos> <end>")
	r.AddCommand("insert", s.insertHandler(), "Inserts a CRLF terminated line at pos. usage: insert <pos> [text]")
	r.AddCommand("reserve", s.reserveHandler(), "Reserves n bytes plus CRLF at pos. usage: reserve <pos> <n>")
	r.AddCommand("slow", s.slowHandler(), "Realigns through the scratch area, output must be empty. usage: slow")
	r.AddCommand("bounce", s.bounceHandler(), "Realigns by rotating in place. usage: bounce")
	r.AddCommand("realign", s.realignHandler(), "Realigns with the configured mode. usage: realign")
	r.AddCommand("queue", s.queueHandler(), "Lists, clears or queues an edit. usage: queue [clear | replace|delete|insert|reserve <args>]")
	r.AddCommand("apply", s.applyHandler(), "Applies the queued edits. usage: apply")
	r.AddCommand("lines", s.linesHandler(), "Lists the complete lines of the input region. usage: lines")
	r.AddCommand("ingest", s.ingestHandler(), "Wraps text in a TCP segment and stages its payload. usage: ingest <text>")
	r.AddCommand("reset", s.resetHandler(), "Empties the buffer and the queue. usage: reset")
	return r
}

var unescaper = strings.NewReplacer(`\r`, "\r", `\n`, "\n", `\t`, "\t", `\\`, `\`)

// splitArgs splits input into the command, n-1 words and the raw remainder.
func splitArgs(input string, n int) []string {
	return strings.SplitN(input, " ", n+1)
}

func atoi(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, errors.Errorf("%q is not a number", arg)
	}
	return n, nil
}

func atoi2(a, b string) (int, int, error) {
	x, err := atoi(a)
	if err != nil {
		return 0, 0, err
	}
	y, err := atoi(b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func (s *Session) showHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		if len(strings.Fields(input)) != 1 {
			return errors.New("usage: show")
		}
		b := s.Buf
		_, err := io.WriteString(config.Writer, fmt.Sprintf(
			"%v room=%d wrapped=%v\noutput: %q\ninput:  %q\n",
			b, b.Room(), b.Wrapped(), b.OutputBytes(), b.InputBytes()))
		return err
	}
}

func (s *Session) appendHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := splitArgs(input, 1)
		if len(args) != 2 {
			return errors.New("usage: append <text>")
		}
		n, err := s.Buf.WriteReserved([]byte(unescaper.Replace(args[1])), s.Reserve)
		if err != nil {
			return err
		}
		_, err = io.WriteString(config.Writer, fmt.Sprintf("Appended %d bytes\n", n))
		return err
	}
}

func (s *Session) fwdHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Fields(input)
		if len(args) != 2 {
			return errors.New("usage: fwd <n>")
		}
		n, err := atoi(args[1])
		if err != nil {
			return err
		}
		return s.Buf.Forward(n)
	}
}

func (s *Session) skipHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Fields(input)
		if len(args) != 2 {
			return errors.New("usage: skip <n>")
		}
		n, err := atoi(args[1])
		if err != nil {
			return err
		}
		return s.Buf.Skip(n)
	}
}

func (s *Session) reportDelta(w io.Writer, delta int, err error) error {
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, fmt.Sprintf("Delta %d, input now %d bytes\n", delta, s.Buf.Input()))
	return err
}

func (s *Session) replaceHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := splitArgs(input, 3)
		if len(args) < 3 {
			return errors.New("usage: replace <pos> <end> [text]")
		}
		pos, end, err := atoi2(args[1], args[2])
		if err != nil {
			return err
		}
		var data []byte
		if len(args) == 4 {
			data = []byte(unescaper.Replace(args[3]))
		}
		delta, err := s.Buf.Replace(pos, end, data)
		return s.reportDelta(config.Writer, delta, err)
	}
}

func (s *Session) deleteHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Fields(input)
		if len(args) != 3 {
			return errors.New("usage: delete <pos> <end>")
		}
		pos, end, err := atoi2(args[1], args[2])
		if err != nil {
			return err
		}
		delta, err := s.Buf.Delete(pos, end)
		return s.reportDelta(config.Writer, delta, err)
	}
}

func (s *Session) insertHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := splitArgs(input, 2)
		if len(args) < 2 {
			return errors.New("usage: insert <pos> [text]")
		}
		pos, err := atoi(args[1])
		if err != nil {
			return err
		}
		var line []byte
		if len(args) == 3 {
			line = []byte(unescaper.Replace(args[2]))
		}
		delta, err := s.Buf.InsertLine(pos, line)
		return s.reportDelta(config.Writer, delta, err)
	}
}

func (s *Session) reserveHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := strings.Fields(input)
		if len(args) != 3 {
			return errors.New("usage: reserve <pos> <n>")
		}
		pos, n, err := atoi2(args[1], args[2])
		if err != nil {
			return err
		}
		delta, err := s.Buf.ReserveLine(pos, n)
		return s.reportDelta(config.Writer, delta, err)
	}
}

func (s *Session) slowRealign() error {
	if s.Buf.Output() != 0 {
		return errors.Errorf("%d output bytes pending, slow realign needs an empty output region", s.Buf.Output())
	}
	s.Buf.SlowRealign(&s.scratch)
	return nil
}

func (s *Session) slowHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		if len(strings.Fields(input)) != 1 {
			return errors.New("usage: slow")
		}
		return s.slowRealign()
	}
}

func (s *Session) bounceHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		if len(strings.Fields(input)) != 1 {
			return errors.New("usage: bounce")
		}
		s.Buf.BounceRealign()
		return nil
	}
}

func (s *Session) realignHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		if len(strings.Fields(input)) != 1 {
			return errors.New("usage: realign")
		}
		logger.WithFields(logrus.Fields{"mode": s.Mode, "buf": s.Buf}).Debug("realign")
		switch s.Mode {
		case bufconfig.RealignSlow:
			return s.slowRealign()
		case bufconfig.RealignBounce:
			s.Buf.BounceRealign()
		default:
			s.Buf.Realign(&s.scratch)
		}
		return nil
	}
}

func (s *Session) queueHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := splitArgs(input, 4)
		if len(args) == 1 {
			for k, e := range s.Queue.Edits() {
				if _, err := io.WriteString(config.Writer, fmt.Sprintf("%d\t%v\n", k, e)); err != nil {
					return err
				}
			}
			return nil
		}

		var err error
		switch args[1] {
		case "clear":
			s.Queue.Clear()
		case "replace":
			err = s.queueReplace(args)
		case "delete":
			if len(args) != 4 {
				return errors.New("usage: queue delete <pos> <end>")
			}
			pos, end, perr := atoi2(args[2], args[3])
			if perr != nil {
				return perr
			}
			err = s.Queue.Delete(pos, end)
		case "insert":
			rest := splitArgs(input, 3)
			if len(rest) < 3 {
				return errors.New("usage: queue insert <pos> [text]")
			}
			pos, perr := atoi(rest[2])
			if perr != nil {
				return perr
			}
			var line []byte
			if len(rest) == 4 {
				line = []byte(unescaper.Replace(rest[3]))
			}
			err = s.Queue.InsertLine(pos, line)
		case "reserve":
			if len(args) != 4 {
				return errors.New("usage: queue reserve <pos> <n>")
			}
			pos, n, perr := atoi2(args[2], args[3])
			if perr != nil {
				return perr
			}
			err = s.Queue.ReserveLine(pos, n)
		default:
			return errors.Errorf("unknown edit %q", args[1])
		}
		return err
	}
}

func (s *Session) queueReplace(args []string) error {
	if len(args) < 4 {
		return errors.New("usage: queue replace <pos> <end> [text]")
	}
	pos, end, err := atoi2(args[2], args[3])
	if err != nil {
		return err
	}
	var data []byte
	if len(args) == 5 {
		data = []byte(unescaper.Replace(args[4]))
	}
	return s.Queue.Replace(pos, end, data)
}

func (s *Session) applyHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		if len(strings.Fields(input)) != 1 {
			return errors.New("usage: apply")
		}
		delta, err := s.Queue.Apply(s.Buf)
		if err != nil {
			return errors.WithMessagef(err, "%d edits left in queue", s.Queue.Len())
		}
		return s.reportDelta(config.Writer, delta, nil)
	}
}

func (s *Session) linesHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		if len(strings.Fields(input)) != 1 {
			return errors.New("usage: lines")
		}
		for _, l := range rewrite.Lines(s.Buf) {
			text, err := s.Buf.Peek(l.Start, l.End-l.Start)
			if err != nil {
				return err
			}
			if _, err := io.WriteString(config.Writer, fmt.Sprintf("%d\t%d\t%q\n", l.Start, l.End, text)); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *Session) ingestHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		args := splitArgs(input, 1)
		if len(args) != 2 {
			return errors.New("usage: ingest <text>")
		}
		payload := []byte(unescaper.Replace(args[1]))
		packet, err := segment.Build(clientAddr, proxyAddr, s.seq, payload)
		if err != nil {
			return err
		}
		seg, err := segment.Ingest(s.Buf, packet, s.Reserve)
		if err != nil {
			return err
		}
		s.seq += uint32(len(payload))
		_, err = io.WriteString(config.Writer, fmt.Sprintf("Ingested %v\n", seg))
		return err
	}
}

func (s *Session) resetHandler() func(string, *repl.REPLConfig) error {
	return func(input string, config *repl.REPLConfig) error {
		if len(strings.Fields(input)) != 1 {
			return errors.New("usage: reset")
		}
		s.Buf.Reset()
		s.Queue.Clear()
		return nil
	}
}
