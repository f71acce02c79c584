package repl

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"
)

type REPL struct {
	Commands map[string]func(string, *REPLConfig) error
	Help     map[string]string
}

type REPLConfig struct {
	Writer io.Writer
}

func NewRepl() *REPL {
	r := &REPL{make(map[string]func(string, *REPLConfig) error), make(map[string]string)}
	return r
}

// Add a command, along with its help string, to the set of commands
func (r *REPL) AddCommand(trigger string, handler func(string, *REPLConfig) error, help string) {
	if trigger == "" || trigger[0] == '.' {
		return
	}
	r.Help[trigger] = help
	r.Commands[trigger] = handler
}

func (r *REPL) triggers() []string {
	keys := make([]string, 0, len(r.Commands))
	for k := range r.Commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Return all REPL usage information as a string
func (r *REPL) HelpString() string {
	var sb strings.Builder
	sb.WriteString("Commands\n")
	for _, k := range r.triggers() {
		sb.WriteString(fmt.Sprintf("\t%s: %s\n", k, r.Help[k]))
	}
	return sb.String()
}

// Dispatch runs one input line against the command table. Unknown commands and
// handler errors are reported on the config's writer.
func (r *REPL) Dispatch(input string, config *REPLConfig) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	command := strings.Fields(input)[0]
	if command == "help" {
		io.WriteString(config.Writer, r.HelpString())
		return
	}
	handler, ok := r.Commands[command]
	if !ok {
		io.WriteString(config.Writer, fmt.Sprintf("Invalid command: %s\n", command))
		io.WriteString(config.Writer, r.HelpString())
		return
	}
	if err := handler(input, config); err != nil {
		io.WriteString(config.Writer, fmt.Sprintf("Error: %v\n", err))
	}
}

func (r *REPL) completer() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{readline.PcItem("help")}
	for _, k := range r.triggers() {
		items = append(items, readline.PcItem(k))
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads commands from the terminal until EOF or an interrupt on an empty line.
func (r *REPL) Run(prompt string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		AutoComplete:    r.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return errors.Wrap(err, "open terminal")
	}
	defer rl.Close()

	replConfig := &REPLConfig{Writer: rl.Stdout()}
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "read command")
		}
		r.Dispatch(line, replConfig)
	}
}
