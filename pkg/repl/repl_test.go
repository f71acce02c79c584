package repl

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatch(t *testing.T) {
	var got []string
	r := NewRepl()
	r.AddCommand("echo", func(input string, config *REPLConfig) error {
		got = append(got, input)
		return nil
	}, "Echoes. usage: echo <msg>")
	r.AddCommand("fail", func(string, *REPLConfig) error {
		return fmt.Errorf("boom")
	}, "Always fails. usage: fail")
	r.AddCommand("", nil, "ignored")
	r.AddCommand(".hidden", nil, "ignored")

	var out bytes.Buffer
	config := &REPLConfig{Writer: &out}

	r.Dispatch("  echo hi  ", config)
	r.Dispatch("", config)
	require.Equal(t, []string{"echo hi"}, got)
	require.Empty(t, out.String())

	r.Dispatch("fail", config)
	require.Equal(t, "Error: boom\n", out.String())

	out.Reset()
	r.Dispatch("nope", config)
	require.Equal(t, "Invalid command: nope\n"+r.HelpString(), out.String())
}

func TestHelpString_Sorted(t *testing.T) {
	r := NewRepl()
	r.AddCommand("b", nil, "second")
	r.AddCommand("a", nil, "first")
	require.Equal(t, "Commands\n\ta: first\n\tb: second\n", r.HelpString())

	var out bytes.Buffer
	r.Dispatch("help", &REPLConfig{Writer: &out})
	require.Equal(t, r.HelpString(), out.String())
}
