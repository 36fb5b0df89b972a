// Package view renders eddev's terminal output: step headings, advisory
// and error blocks, and the structured debug log.
package view

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
)

var (
	stepStyle    = color.New(color.FgBlue)
	subStepStyle = color.New(color.FgHiBlack)
	okLabel      = color.New(color.FgBlack, color.BgHiGreen)
	warnLabel    = color.New(color.FgBlack, color.BgYellow)
	errLabel     = color.New(color.FgWhite, color.BgRed, color.Bold)
)

// UI writes user-facing output to a single stream and structured logs to
// a logger. The zero value is not usable; call New.
type UI struct {
	out    io.Writer
	logger *slog.Logger
}

// New creates a UI writing to w with a debug log at the given level.
func New(w io.Writer, level LogLevel) *UI {
	return &UI{out: w, logger: NewLogger(w, level)}
}

// Discard returns a UI that writes nothing. Useful in tests.
func Discard() *UI {
	return &UI{out: io.Discard, logger: NewNopLogger()}
}

// Logger returns the structured logger.
func (u *UI) Logger() *slog.Logger {
	return u.logger
}

// Writer returns the stream child process output is copied to.
func (u *UI) Writer() io.Writer {
	return u.out
}

// Step prints a top-level progress line.
func (u *UI) Step(format string, args ...any) {
	fmt.Fprintln(u.out, stepStyle.Sprintf(format, args...))
}

// SubStep prints a secondary progress line.
func (u *UI) SubStep(format string, args ...any) {
	fmt.Fprintln(u.out, subStepStyle.Sprintf(format, args...))
}

// Success prints an OK block.
func (u *UI) Success(lines ...string) {
	u.block(okLabel, " OK ", lines)
}

// Warning prints a WARNING block.
func (u *UI) Warning(lines ...string) {
	u.block(warnLabel, " WARNING ", lines)
}

// Error prints an ERROR block.
func (u *UI) Error(lines ...string) {
	u.block(errLabel, " ERROR ", lines)
}

func (u *UI) block(label *color.Color, text string, lines []string) {
	if len(lines) == 0 {
		return
	}
	pad := strings.Repeat(" ", len(text)+1)
	fmt.Fprintln(u.out)
	fmt.Fprintf(u.out, "%s %s\n", label.Sprint(text), lines[0])
	for _, l := range lines[1:] {
		fmt.Fprintf(u.out, "%s%s\n", pad, l)
	}
	fmt.Fprintln(u.out)
}
