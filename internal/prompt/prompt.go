// Package prompt asks the user for a line of input.
package prompt

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ErrNotInteractive is returned when input is not attached to a terminal
// and the caller required one.
var ErrNotInteractive = stderrors.New("input is not a terminal")

// Prompter asks a question and returns the answer.
type Prompter interface {
	// Ask shows question with def as the suggested answer. An empty reply
	// selects def.
	Ask(question, def string) (string, error)
}

// Terminal prompts on a reader/writer pair, normally stdin and stderr.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
	// fd is checked with term.IsTerminal before reading. -1 skips the check.
	fd int
}

// NewTerminal returns a prompter bound to the process's stdin, writing
// questions to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(os.Stdin), out: out, fd: int(os.Stdin.Fd())}
}

// NewReader returns a prompter reading from in without a terminal check.
func NewReader(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, fd: -1}
}

// Ask implements Prompter.
func (t *Terminal) Ask(question, def string) (string, error) {
	if t.fd >= 0 && !term.IsTerminal(t.fd) {
		return "", ErrNotInteractive
	}

	if def != "" {
		fmt.Fprintf(t.out, "%s [%s]: ", color.GreenString(question), color.YellowString(def))
	} else {
		fmt.Fprintf(t.out, "%s: ", color.GreenString(question))
	}

	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read answer: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}
