// Package tui holds the terminal viewers used by the buildhub CLI.
package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// InitializeTUI forces a color profile when CLICOLOR_FORCE or COLORTERM
// request it, so styled output survives pipes and CI logs.
func InitializeTUI() {
	switch {
	case os.Getenv("NO_COLOR") != "":
		lipgloss.SetColorProfile(termenv.Ascii)
	case os.Getenv("COLORTERM") == "truecolor":
		lipgloss.SetColorProfile(termenv.TrueColor)
	case os.Getenv("CLICOLOR_FORCE") == "1":
		lipgloss.SetColorProfile(termenv.ANSI256)
	}
}
