package fswatch

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// DefaultIgnore lists paths that never trigger a build. Generated projects
// and the compile database are written by the daemon itself.
var DefaultIgnore = []string{
	".git",
	"**/.git",
	".build",
	"**/.build",
	"**/DerivedData",
	"**/*.xcodeproj",
	"**/*.xcworkspace",
	".compile",
	".compile.*.tmp",
	"buildServer.json",
	"**/.DS_Store",
	"**/*~",
	"**/*.swp",
}

// IgnorePatterns returns the default patterns, the project's .gitignore
// entries and extra, in that order.
func IgnorePatterns(root string, extra []string) []string {
	patterns := append([]string{}, DefaultIgnore...)
	patterns = append(patterns, readGitignore(filepath.Join(root, ".gitignore"))...)
	for _, p := range extra {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func readGitignore(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if p, ok := fromGitignore(scanner.Text()); ok {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// fromGitignore converts a .gitignore line to a patternmatcher pattern.
// Unanchored names match at any depth.
func fromGitignore(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}

	negate := strings.HasPrefix(line, "!")
	line = strings.TrimPrefix(line, "!")
	line = strings.TrimSuffix(line, "/")
	if line == "" {
		return "", false
	}

	if strings.HasPrefix(line, "/") {
		line = strings.TrimPrefix(line, "/")
	} else if !strings.Contains(line, "/") && !strings.HasPrefix(line, "**") {
		line = "**/" + line
	}

	if negate {
		line = "!" + line
	}
	return line, true
}
