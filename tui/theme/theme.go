// Package theme provides the lipgloss styles shared by buildhub's terminal
// output.
package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const defaultThemeName = "kanagawa"

// EnvTheme selects the color theme.
const EnvTheme = "BUILDHUB_THEME"

// --- Kanagawa Dragon (dark) palette ---
const (
	kanagawaDarkGreen     = "#98BB6C"
	kanagawaDarkYellow    = "#FF9E3B"
	kanagawaDarkRed       = "#FF5D62"
	kanagawaDarkCyan      = "#7E9CD8"
	kanagawaDarkBlue      = "#7FB4CA"
	kanagawaDarkOrange    = "#FFA066"
	kanagawaDarkViolet    = "#957FB8"
	kanagawaDarkLightText = "#DCD7BA"
	kanagawaDarkMutedText = "#727169"
	kanagawaDarkBorder    = "#363646"
	kanagawaDarkSubtle    = "#1F1F28"
)

// --- Kanagawa Wave (light-inspired) palette ---
const (
	kanagawaLightGreen     = "#4E7C5A"
	kanagawaLightYellow    = "#A68A64"
	kanagawaLightRed       = "#C34043"
	kanagawaLightCyan      = "#5B8BBE"
	kanagawaLightBlue      = "#4F7CAC"
	kanagawaLightOrange    = "#CC6B4E"
	kanagawaLightViolet    = "#674D7A"
	kanagawaLightLightText = "#2B2F42"
	kanagawaLightMutedText = "#6C7086"
	kanagawaLightBorder    = "#B5BDC5"
	kanagawaLightSubtle    = "#F7F7FB"
)

// --- Gruvbox palette ---
const (
	gruvboxDarkGreen      = "#B8BB26"
	gruvboxLightGreen     = "#98971A"
	gruvboxDarkYellow     = "#FABD2F"
	gruvboxLightYellow    = "#D79921"
	gruvboxDarkRed        = "#FB4934"
	gruvboxLightRed       = "#CC241D"
	gruvboxDarkCyan       = "#83A598"
	gruvboxLightCyan      = "#458588"
	gruvboxDarkBlue       = "#458588"
	gruvboxLightBlue      = "#076678"
	gruvboxDarkOrange     = "#FE8019"
	gruvboxLightOrange    = "#D65D0E"
	gruvboxDarkViolet     = "#B16286"
	gruvboxLightViolet    = "#8F3F71"
	gruvboxDarkLightText  = "#EBDBB2"
	gruvboxLightLightText = "#3C3836"
	gruvboxDarkMutedText  = "#BDAE93"
	gruvboxLightMutedText = "#928374"
	gruvboxDarkBorder     = "#504945"
	gruvboxLightBorder    = "#D5C4A1"
	gruvboxDarkSubtle     = "#282828"
	gruvboxLightSubtle    = "#FBF1C7"
)

// --- Terminal ANSI palette ---
const (
	terminalGreen     = "2"
	terminalYellow    = "3"
	terminalRed       = "1"
	terminalCyan      = "6"
	terminalBlue      = "4"
	terminalOrange    = "208"
	terminalViolet    = "5"
	terminalLightText = "7"
	terminalMutedText = "8"
	terminalBorder    = "8"
	terminalSubtle    = "0"
)

// Colors is a theme palette.
type Colors struct {
	Green     lipgloss.TerminalColor
	Yellow    lipgloss.TerminalColor
	Red       lipgloss.TerminalColor
	Cyan      lipgloss.TerminalColor
	Blue      lipgloss.TerminalColor
	Orange    lipgloss.TerminalColor
	Violet    lipgloss.TerminalColor
	LightText lipgloss.TerminalColor
	MutedText lipgloss.TerminalColor
	Border    lipgloss.TerminalColor
	Subtle    lipgloss.TerminalColor
}

// Theme holds the styles used across CLI and TUI output.
type Theme struct {
	Colors Colors

	Header lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Bold   lipgloss.Style
	Italic lipgloss.Style
	Normal lipgloss.Style
	Muted  lipgloss.Style

	Accent    lipgloss.Style
	Highlight lipgloss.Style
	StatusBar lipgloss.Style
	Box       lipgloss.Style
}

var themeRegistry = map[string]func() Colors{
	"kanagawa": newKanagawaColors,
	"gruvbox":  newGruvboxColors,
	"terminal": newTerminalColors,
}

var themeAliases = map[string]string{
	"kanagawa-dark":   "kanagawa",
	"kanagawa-dragon": "kanagawa",
	"gruvbox-dark":    "gruvbox",
	"gruvbox-light":   "gruvbox",
}

// DefaultTheme is resolved once from BUILDHUB_THEME.
var DefaultTheme = NewThemeWithName(os.Getenv(EnvTheme))

// NewThemeWithName returns the named theme, falling back to the default.
func NewThemeWithName(name string) *Theme {
	return newThemeFromColors(resolveThemeColors(name))
}

// RenderStatus renders text in the style for a status name.
func RenderStatus(status, text string) string {
	switch status {
	case "success":
		return DefaultTheme.Success.Render(text)
	case "error":
		return DefaultTheme.Error.Render(text)
	case "warning", "warn":
		return DefaultTheme.Warning.Render(text)
	case "info":
		return DefaultTheme.Info.Render(text)
	default:
		return text
	}
}

func newThemeFromColors(colors Colors) *Theme {
	return &Theme{
		Colors: colors,

		Header: lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1),

		Success: lipgloss.NewStyle().
			Foreground(colors.Green).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(colors.Red).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(colors.Yellow).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(colors.Cyan),

		Bold: lipgloss.NewStyle().
			Bold(true),

		Italic: lipgloss.NewStyle().
			Italic(true),

		Normal: lipgloss.NewStyle(),

		Muted: lipgloss.NewStyle().
			Foreground(colors.MutedText),

		Accent: lipgloss.NewStyle().
			Foreground(colors.Violet),

		Highlight: lipgloss.NewStyle().
			Foreground(colors.Cyan).
			Bold(true),

		StatusBar: lipgloss.NewStyle().
			Background(colors.Subtle).
			Foreground(colors.LightText).
			Padding(0, 1),

		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Border).
			Padding(0, 1),
	}
}

func resolveThemeColors(name string) Colors {
	key := normalizeThemeName(name)
	if alias, ok := themeAliases[key]; ok {
		key = alias
	}
	if builder, ok := themeRegistry[key]; ok {
		return builder()
	}
	return themeRegistry[defaultThemeName]()
}

func normalizeThemeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.ReplaceAll(normalized, "_", "-")
	return normalized
}

func newKanagawaColors() Colors {
	return Colors{
		Green:     lipgloss.AdaptiveColor{Light: kanagawaLightGreen, Dark: kanagawaDarkGreen},
		Yellow:    lipgloss.AdaptiveColor{Light: kanagawaLightYellow, Dark: kanagawaDarkYellow},
		Red:       lipgloss.AdaptiveColor{Light: kanagawaLightRed, Dark: kanagawaDarkRed},
		Cyan:      lipgloss.AdaptiveColor{Light: kanagawaLightCyan, Dark: kanagawaDarkCyan},
		Blue:      lipgloss.AdaptiveColor{Light: kanagawaLightBlue, Dark: kanagawaDarkBlue},
		Orange:    lipgloss.AdaptiveColor{Light: kanagawaLightOrange, Dark: kanagawaDarkOrange},
		Violet:    lipgloss.AdaptiveColor{Light: kanagawaLightViolet, Dark: kanagawaDarkViolet},
		LightText: lipgloss.AdaptiveColor{Light: kanagawaLightLightText, Dark: kanagawaDarkLightText},
		MutedText: lipgloss.AdaptiveColor{Light: kanagawaLightMutedText, Dark: kanagawaDarkMutedText},
		Border:    lipgloss.AdaptiveColor{Light: kanagawaLightBorder, Dark: kanagawaDarkBorder},
		Subtle:    lipgloss.AdaptiveColor{Light: kanagawaLightSubtle, Dark: kanagawaDarkSubtle},
	}
}

func newGruvboxColors() Colors {
	return Colors{
		Green:     lipgloss.AdaptiveColor{Light: gruvboxLightGreen, Dark: gruvboxDarkGreen},
		Yellow:    lipgloss.AdaptiveColor{Light: gruvboxLightYellow, Dark: gruvboxDarkYellow},
		Red:       lipgloss.AdaptiveColor{Light: gruvboxLightRed, Dark: gruvboxDarkRed},
		Cyan:      lipgloss.AdaptiveColor{Light: gruvboxLightCyan, Dark: gruvboxDarkCyan},
		Blue:      lipgloss.AdaptiveColor{Light: gruvboxLightBlue, Dark: gruvboxDarkBlue},
		Orange:    lipgloss.AdaptiveColor{Light: gruvboxLightOrange, Dark: gruvboxDarkOrange},
		Violet:    lipgloss.AdaptiveColor{Light: gruvboxLightViolet, Dark: gruvboxDarkViolet},
		LightText: lipgloss.AdaptiveColor{Light: gruvboxLightLightText, Dark: gruvboxDarkLightText},
		MutedText: lipgloss.AdaptiveColor{Light: gruvboxLightMutedText, Dark: gruvboxDarkMutedText},
		Border:    lipgloss.AdaptiveColor{Light: gruvboxLightBorder, Dark: gruvboxDarkBorder},
		Subtle:    lipgloss.AdaptiveColor{Light: gruvboxLightSubtle, Dark: gruvboxDarkSubtle},
	}
}

func newTerminalColors() Colors {
	return Colors{
		Green:     lipgloss.Color(terminalGreen),
		Yellow:    lipgloss.Color(terminalYellow),
		Red:       lipgloss.Color(terminalRed),
		Cyan:      lipgloss.Color(terminalCyan),
		Blue:      lipgloss.Color(terminalBlue),
		Orange:    lipgloss.Color(terminalOrange),
		Violet:    lipgloss.Color(terminalViolet),
		LightText: lipgloss.Color(terminalLightText),
		MutedText: lipgloss.Color(terminalMutedText),
		Border:    lipgloss.Color(terminalBorder),
		Subtle:    lipgloss.Color(terminalSubtle),
	}
}
