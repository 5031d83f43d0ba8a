// Package mewui renders cmd/mew's non-interactive command-line output:
// terminal/color detection grounded on the teacher's internal/ui
// package (ShouldUseColor/ShouldUseEmoji/IsTerminal, NO_COLOR/
// CLICOLOR/CLICOLOR_FORCE conventions), styled status lines built on
// fatih/color and muesli/termenv, and progress reporting via
// schollz/progressbar/v3 for cmd/mew's replay subcommand.
package mewui

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// ShouldUseColor follows the NO_COLOR / CLICOLOR / CLICOLOR_FORCE
// conventions: NO_COLOR always wins, CLICOLOR=0 disables, and
// CLICOLOR_FORCE enables color even when stdout isn't a terminal.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	return IsTerminal() && termenv.ColorProfile() != termenv.Ascii
}

// ShouldUseEmoji reports whether output should include emoji glyphs:
// disabled by MEW_NO_EMOJI, otherwise follows terminal attachment.
func ShouldUseEmoji() bool {
	if os.Getenv("MEW_NO_EMOJI") != "" {
		return false
	}
	return IsTerminal()
}

// TruncateSimple shortens s to at most maxLen runes, replacing the tail
// with "..." when truncation occurs.
func TruncateSimple(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return repeatDots(maxLen)
	}
	return string(runes[:maxLen-3]) + "..."
}

func repeatDots(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '.'
	}
	return string(b)
}
