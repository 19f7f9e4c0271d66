// Package command builds the newline-terminated text lines sent to a host
// application's command port.
package command

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrEmptyAction is returned when a command has no action name.
	ErrEmptyAction = errors.New("action is empty")

	// ErrInvalidAction is returned when an action contains whitespace or quotes.
	ErrInvalidAction = errors.New("action contains whitespace or quote characters")

	// ErrInvalidNumber is returned for NaN or infinite float arguments.
	ErrInvalidNumber = errors.New("number is not finite")

	// ErrMultiline is returned when a raw line contains an embedded newline.
	ErrMultiline = errors.New("raw command contains an embedded newline")
)

type argKind int

const (
	kindString argKind = iota
	kindInt
	kindFloat
)

// Arg is a single command argument: a string or a number.
type Arg struct {
	kind argKind
	s    string
	i    int64
	f    float64
}

// String returns a string argument.
func String(s string) Arg { return Arg{kind: kindString, s: s} }

// Int returns an integer argument.
func Int(i int64) Arg { return Arg{kind: kindInt, i: i} }

// Float returns a floating point argument.
func Float(f float64) Arg { return Arg{kind: kindFloat, f: f} }

// Strings converts each value to a string argument.
func Strings(values ...string) []Arg {
	args := make([]Arg, len(values))
	for i, v := range values {
		args[i] = String(v)
	}
	return args
}

// IsNumber reports whether the argument is encoded bare.
func (a Arg) IsNumber() bool {
	return a.kind != kindString
}

// Value returns the argument as its unquoted text form.
func (a Arg) Value() string {
	switch a.kind {
	case kindInt:
		return strconv.FormatInt(a.i, 10)
	case kindFloat:
		return strconv.FormatFloat(a.f, 'g', -1, 64)
	default:
		return a.s
	}
}

func (a Arg) encode() (string, error) {
	switch a.kind {
	case kindInt:
		return strconv.FormatInt(a.i, 10), nil
	case kindFloat:
		if math.IsNaN(a.f) || math.IsInf(a.f, 0) {
			return "", fmt.Errorf("%w: %v", ErrInvalidNumber, a.f)
		}
		return strconv.FormatFloat(a.f, 'g', -1, 64), nil
	default:
		return Quote(a.s), nil
	}
}

// Command is an action with positional arguments.
type Command struct {
	Action string
	Args   []Arg

	raw string
}

// New returns a command for action with args.
func New(action string, args ...Arg) Command {
	return Command{Action: action, Args: args}
}

// Raw returns a command that is sent verbatim, plus a trailing newline if missing.
func Raw(line string) (Command, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if strings.ContainsAny(line, "\r\n") {
		return Command{}, ErrMultiline
	}
	if strings.TrimSpace(line) == "" {
		return Command{}, ErrEmptyAction
	}
	return Command{raw: line}, nil
}

// IsRaw reports whether the command carries a pre-formatted line.
func (c Command) IsRaw() bool {
	return c.raw != ""
}

// Validate checks the action name and numeric arguments.
func (c Command) Validate() error {
	if c.IsRaw() {
		return nil
	}
	if c.Action == "" {
		return ErrEmptyAction
	}
	if strings.ContainsAny(c.Action, " \t\r\n\"'") {
		return fmt.Errorf("%w: %q", ErrInvalidAction, c.Action)
	}
	for i, a := range c.Args {
		if _, err := a.encode(); err != nil {
			return fmt.Errorf("arg %d: %w", i, err)
		}
	}
	return nil
}

// String renders the command in the plain format without the trailing newline.
func (c Command) String() string {
	b, err := Encode(c, FormatPlain)
	if err != nil {
		return c.Action
	}
	return strings.TrimSuffix(string(b), "\n")
}

// Quote double-quotes s, escaping backslash, double quote, newline,
// carriage return and tab.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// ParseArgs converts CLI tokens to arguments. Tokens that parse as integers or
// floats become numbers unless forceStrings is set.
func ParseArgs(tokens []string, forceStrings bool) []Arg {
	args := make([]Arg, 0, len(tokens))
	for _, tok := range tokens {
		if !forceStrings {
			if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
				args = append(args, Int(i))
				continue
			}
			if f, err := strconv.ParseFloat(tok, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				args = append(args, Float(f))
				continue
			}
		}
		args = append(args, String(tok))
	}
	return args
}
