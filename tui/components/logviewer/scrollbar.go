package logviewer

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/grovetools/buildhub/tui/theme"
)

const (
	thumbChar = "█"
	trackChar = "░"
)

// scrollbar returns one cell per visible row marking the thumb position.
func scrollbar(vp *viewport.Model, rows int) []string {
	cells := make([]string, rows)
	style := theme.DefaultTheme.Muted
	total := vp.TotalLineCount()

	for i := range cells {
		cells[i] = style.Render(" ")
	}
	if rows == 0 || total == 0 {
		return cells
	}
	if total <= vp.Height {
		for i := range cells {
			cells[i] = style.Render(thumbChar)
		}
		return cells
	}

	thumb := max(1, rows*vp.Height/total)
	pct := min(1, max(0, vp.ScrollPercent()))
	start := min(rows-thumb, int(float64(rows-thumb)*pct+0.5))

	for i := range cells {
		if i >= start && i < start+thumb {
			cells[i] = style.Render(thumbChar)
		} else {
			cells[i] = style.Render(trackChar)
		}
	}
	return cells
}

// overlayScrollbar appends the scrollbar column to the viewport content.
func overlayScrollbar(vp *viewport.Model) string {
	lines := strings.Split(vp.View(), "\n")
	bar := scrollbar(vp, len(lines))
	for i := range lines {
		lines[i] += bar[i]
	}
	return strings.Join(lines, "\n")
}
