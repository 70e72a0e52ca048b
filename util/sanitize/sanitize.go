package sanitize

import (
	"regexp"
	"strings"
)

var (
	nonFilenameRegex = regexp.MustCompile(`[^a-z0-9-]+`)
	nonLabelRegex    = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)
	multiDashRegex   = regexp.MustCompile(`-+`)
)

// ForFilename sanitizes a string for use in a filename (kebab-case).
func ForFilename(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer(" ", "-", "_", "-", ".", "-").Replace(s)
	s = nonFilenameRegex.ReplaceAllString(s, "")
	s = multiDashRegex.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// ForLabel makes a user supplied target or scheme name safe to print in a
// single status line. Runs of unsupported characters become one dash.
func ForLabel(s string) string {
	s = strings.TrimSpace(s)
	s = nonLabelRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
