package bufconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type RealignMode int

const (
	RealignAuto   RealignMode = 0 // slow when no output is pending, bounce otherwise
	RealignSlow   RealignMode = 1
	RealignBounce RealignMode = 2
)

var realignModes = map[string]RealignMode{
	"auto":   RealignAuto,
	"slow":   RealignSlow,
	"bounce": RealignBounce,
}

func (m RealignMode) String() string {
	for k, v := range realignModes {
		if v == m {
			return k
		}
	}
	return fmt.Sprintf("RealignMode(%d)", int(m))
}

/*
 * A config file holds one directive per line:
 *
 *   bufsize 16384
 *   maxrewrite 1024
 *   realign auto|slow|bounce
 *   pool 4
 *   loglevel info
 *
 * Lines starting with '#' are comments.
 */
type BufConfig struct {
	BufSize    int // capacity of every buffer
	MaxRewrite int // bytes kept free for header rewrites
	Realign    RealignMode
	Pool       int // buffers allocated up front
	LogLevel   logrus.Level
}

const (
	DefaultBufSize    = 16384
	DefaultMaxRewrite = 1024
)

func Default() *BufConfig {
	return &BufConfig{
		BufSize:    DefaultBufSize,
		MaxRewrite: DefaultMaxRewrite,
		Realign:    RealignAuto,
		LogLevel:   logrus.InfoLevel,
	}
}

// MaxInput is how many bytes a source may stage before rewrites run out of room.
func (c *BufConfig) MaxInput() int {
	return c.BufSize - c.MaxRewrite
}

type ParseFunc func(int, string, *BufConfig) error

var parseCommands = map[string]ParseFunc{
	"bufsize":    parseBufSize,
	"maxrewrite": parseMaxRewrite,
	"realign":    parseRealign,
	"pool":       parsePool,
	"loglevel":   parseLogLevel,
}

func parseBufSize(ln int, line string, config *BufConfig) error {
	n, err := parseCount(ln, line, "bufsize <bytes>")
	if err != nil {
		return err
	}
	if n == 0 {
		return newErrString(ln, "bufsize must be positive")
	}
	config.BufSize = n
	return nil
}

func parseMaxRewrite(ln int, line string, config *BufConfig) error {
	n, err := parseCount(ln, line, "maxrewrite <bytes>")
	if err != nil {
		return err
	}
	config.MaxRewrite = n
	return nil
}

func parsePool(ln int, line string, config *BufConfig) error {
	n, err := parseCount(ln, line, "pool <buffers>")
	if err != nil {
		return err
	}
	config.Pool = n
	return nil
}

func parseRealign(ln int, line string, config *BufConfig) error {
	tokens := strings.Fields(line)
	if len(tokens) != 2 {
		return newErrString(ln, "realign directive must have format:  realign <auto|slow|bounce>")
	}
	mode, ok := realignModes[tokens[1]]
	if !ok {
		return newErrString(ln, "Invalid realign mode:  %s", tokens[1])
	}
	config.Realign = mode
	return nil
}

func parseLogLevel(ln int, line string, config *BufConfig) error {
	tokens := strings.Fields(line)
	if len(tokens) != 2 {
		return newErrString(ln, "loglevel directive must have format:  loglevel <level>")
	}
	level, err := logrus.ParseLevel(tokens[1])
	if err != nil {
		return newErr(ln, err)
	}
	config.LogLevel = level
	return nil
}

func parseCount(ln int, line string, format string) (int, error) {
	tokens := strings.Fields(line)
	if len(tokens) != 2 {
		return 0, newErrString(ln, "directive must have format:  %s", format)
	}
	n, err := strconv.Atoi(tokens[1])
	if err != nil {
		return 0, newErr(ln, err)
	}
	if n < 0 {
		return 0, newErrString(ln, "negative value %d", n)
	}
	return n, nil
}

func newErrString(line int, msg string, args ...any) error {
	return errors.Errorf("Parse error on line %d:  %s", line, fmt.Sprintf(msg, args...))
}

func newErr(line int, err error) error {
	return errors.Wrapf(err, "Parse error on line %d", line)
}

// Validate checks settings that depend on each other.
func (c *BufConfig) Validate() error {
	if c.MaxRewrite >= c.BufSize {
		return errors.Errorf("maxrewrite %d must be smaller than bufsize %d", c.MaxRewrite, c.BufSize)
	}
	return nil
}

// Parse reads directives from r on top of the defaults.
func Parse(r io.Reader) (*BufConfig, error) {
	config := Default()

	scanner := bufio.NewScanner(r)
	ln := 0
	for scanner.Scan() {
		ln++

		line := strings.TrimSpace(scanner.Text())
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}

		// Skip comments
		head := tokens[0]
		if head[0] == '#' {
			continue
		}
		if k := strings.IndexByte(line, '#'); k >= 0 {
			line = strings.TrimSpace(line[:k])
		}

		pf, found := parseCommands[head]
		if !found {
			return nil, newErrString(ln, "Unrecognized token %s", head)
		}
		if err := pf(ln, line, config); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ParseConfig parses a configuration file
func ParseConfig(configFile string) (*BufConfig, error) {
	fd, err := os.Open(configFile)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to open file")
	}
	defer fd.Close()
	return Parse(fd)
}
