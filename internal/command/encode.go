package command

import (
	"fmt"
	"strings"
)

// Format selects the line syntax expected by the listener.
type Format string

const (
	// FormatPlain renders `action "a" 1`.
	FormatPlain Format = "plain"
	// FormatPython renders `action("a", 1)`.
	FormatPython Format = "python"
	// FormatMEL renders `action "a" 1;`.
	FormatMEL Format = "mel"
)

// ParseFormat converts a name to a Format. An empty name selects FormatPlain.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatPlain:
		return FormatPlain, nil
	case FormatPython:
		return FormatPython, nil
	case FormatMEL:
		return FormatMEL, nil
	default:
		return "", fmt.Errorf("unknown format %q (valid: plain, python, mel)", name)
	}
}

// Encode renders c as a single newline-terminated line in format f.
// Raw commands ignore the format.
func Encode(c Command, f Format) ([]byte, error) {
	if c.IsRaw() {
		return []byte(c.raw + "\n"), nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	tokens := make([]string, len(c.Args))
	for i, a := range c.Args {
		// Validate already rejected unencodable args.
		tokens[i], _ = a.encode()
	}

	var b strings.Builder
	b.WriteString(c.Action)
	switch f {
	case FormatPython:
		b.WriteByte('(')
		b.WriteString(strings.Join(tokens, ", "))
		b.WriteByte(')')
	case FormatMEL:
		for _, t := range tokens {
			b.WriteByte(' ')
			b.WriteString(t)
		}
		b.WriteByte(';')
	case FormatPlain, "":
		for _, t := range tokens {
			b.WriteByte(' ')
			b.WriteString(t)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
