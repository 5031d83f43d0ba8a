package mewui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// Styles bundles the color functions cmd/mew's subcommands print
// through, matching the teacher's `color.New(...).SprintFunc()` idiom
// from cmd/bd/create.go. Built once per process from ShouldUseColor so
// every subcommand renders consistently regardless of NO_COLOR/
// CLICOLOR_FORCE.
type Styles struct {
	Success func(a ...any) string
	Failure func(a ...any) string
	Warn    func(a ...any) string
	Info    func(a ...any) string
}

// NewStyles builds a Styles set honoring ShouldUseColor.
func NewStyles() Styles {
	color.NoColor = !ShouldUseColor()
	return Styles{
		Success: color.New(color.FgGreen).SprintFunc(),
		Failure: color.New(color.FgRed).SprintFunc(),
		Warn:    color.New(color.FgYellow).SprintFunc(),
		Info:    color.New(color.FgCyan).SprintFunc(),
	}
}

// Successf prints a green-prefixed status line, emoji-gated by
// ShouldUseEmoji.
func (s Styles) Successf(w io.Writer, format string, a ...any) {
	prefix := "OK"
	if ShouldUseEmoji() {
		prefix = "✓"
	}
	fmt.Fprintf(w, "%s %s\n", s.Success(prefix), fmt.Sprintf(format, a...))
}

// Failuref prints a red-prefixed status line.
func (s Styles) Failuref(w io.Writer, format string, a ...any) {
	prefix := "FAIL"
	if ShouldUseEmoji() {
		prefix = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", s.Failure(prefix), fmt.Sprintf(format, a...))
}

// NewProgressBar builds a determinate progress bar for a known total
// (cmd/mew replay reports progress by WAL record count). A
// non-terminal writer gets progressbar's own spinner-free fallback.
func NewProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
