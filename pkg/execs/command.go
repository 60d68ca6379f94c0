package execs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

var (
	// ErrParseCommand is returned when a command line cannot be split into words.
	ErrParseCommand = errors.New("parse command")

	// ErrEmptyCommand is returned for a command line with no words.
	ErrEmptyCommand = errors.New("empty command")
)

// Command is a program name and its arguments.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits line into a [Command] using shell quoting rules.
// Variable references and backquotes are left as they are.
func ParseCommand(line string) (Command, error) {
	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false

	words, err := p.Parse(line)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrParseCommand, err)
	}
	if len(words) == 0 {
		return Command{}, ErrEmptyCommand
	}

	return Command{Name: words[0], Args: words[1:]}, nil
}

// Expand returns a copy of c with fn applied to the name and every argument.
func (c Command) Expand(fn func(string) string) Command {
	out := Command{Name: fn(c.Name), Args: make([]string, len(c.Args))}
	for i, arg := range c.Args {
		out.Args[i] = fn(arg)
	}

	return out
}

// String renders the command as a line that [ParseCommand] reads back.
func (c Command) String() string {
	words := make([]string, 0, len(c.Args)+1)
	for _, w := range append([]string{c.Name}, c.Args...) {
		words = append(words, quote(w))
	}

	return strings.Join(words, " ")
}

// quote single-quotes w when it holds characters the shell would split on
// or interpret.
func quote(w string) string {
	if w == "" {
		return "''"
	}
	if !strings.ContainsAny(w, " \t\n'\"\\$`|&;<>()*?[]#~") {
		return w
	}

	return "'" + strings.ReplaceAll(w, "'", `'\''`) + "'"
}
