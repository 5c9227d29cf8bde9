package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Terminator  byte = '\n'
	Delimiter   byte = ','
	Separator   byte = ' '
	BlockMarker byte = '#'

	IdentityQuery    = "*IDN?"
	DisplayDataQuery = ":DISPlay:DATA?"
)

// Argument is one typed command parameter. The set of variants is closed:
// Discrete, Bool, Switch, Int, Float and String.
//
// Rendered text is never quoted or escaped. Callers must not pass values
// containing the delimiter or the terminator; doing so corrupts framing.
type Argument interface {
	appendArg(dst []byte) []byte
}

// Discrete is an enumerated token such as ON or PNG, emitted as-is.
type Discrete string

// Bool is emitted as 1 or 0.
type Bool bool

// Switch is a boolean emitted as ON or OFF.
type Switch bool

type Int int64

type Float float64

type String string

func (d Discrete) appendArg(dst []byte) []byte { return append(dst, d...) }

func (b Bool) appendArg(dst []byte) []byte {
	if b {
		return append(dst, '1')
	}
	return append(dst, '0')
}

func (s Switch) appendArg(dst []byte) []byte {
	if s {
		return append(dst, "ON"...)
	}
	return append(dst, "OFF"...)
}

func (i Int) appendArg(dst []byte) []byte { return strconv.AppendInt(dst, int64(i), 10) }

func (f Float) appendArg(dst []byte) []byte {
	return strconv.AppendFloat(dst, float64(f), 'g', -1, 64)
}

func (s String) appendArg(dst []byte) []byte { return append(dst, s...) }

// FormatCommand renders mnemonic and args into one terminated command line.
func FormatCommand(mnemonic string, args ...Argument) []byte {
	out := make([]byte, 0, len(mnemonic)+8*len(args)+2)
	out = append(out, mnemonic...)
	for i, arg := range args {
		if i == 0 {
			out = append(out, Separator)
		} else {
			out = append(out, Delimiter)
		}
		out = arg.appendArg(out)
	}
	return append(out, Terminator)
}

// Command is a parsed command line: the mnemonic plus raw argument fields.
type Command struct {
	Mnemonic string
	Args     []string
}

// ParseCommand is the reference parser for lines produced by FormatCommand.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Command{}, ErrEmptyCommand
	}
	mnemonic, rest, found := strings.Cut(line, string(Separator))
	cmd := Command{Mnemonic: mnemonic}
	if found && rest != "" {
		cmd.Args = strings.Split(rest, string(Delimiter))
	}
	return cmd, nil
}

// Is reports whether the command's mnemonic matches name, ignoring case.
func (c Command) Is(name string) bool {
	return strings.EqualFold(c.Mnemonic, name)
}

// Arg returns the raw text of argument i.
func (c Command) Arg(i int) (string, error) {
	if i < 0 || i >= len(c.Args) {
		return "", fmt.Errorf("%w: %d of %d", ErrArgIndex, i, len(c.Args))
	}
	return c.Args[i], nil
}

// ArgBool decodes argument i as a boolean in either 1/0 or ON/OFF form.
func (c Command) ArgBool(i int) (bool, error) {
	raw, err := c.Arg(i)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrBadBool, raw)
	}
}

// ArgInt decodes argument i as a base-10 integer.
func (c Command) ArgInt(i int) (int64, error) {
	raw, err := c.Arg(i)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}
