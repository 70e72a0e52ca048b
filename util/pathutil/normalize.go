package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// NormalizeForLookup creates a canonical, case-normalized path suitable for use as a map key.
// The path is made absolute and symlinks are resolved when it exists. On
// case-insensitive systems the result is lowercased.
func NormalizeForLookup(path string) (string, error) {
	canonical, err := resolve(path)
	if err != nil {
		return "", err
	}
	if caseInsensitive() {
		return strings.ToLower(canonical), nil
	}
	return canonical, nil
}

// ComparePaths checks if two paths refer to the same location.
func ComparePaths(path1, path2 string) (bool, error) {
	norm1, err := NormalizeForLookup(path1)
	if err != nil {
		return false, err
	}
	norm2, err := NormalizeForLookup(path2)
	if err != nil {
		return false, err
	}
	return norm1 == norm2, nil
}

// Expand replaces a leading ~ with the home directory and expands
// environment variables.
func Expand(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}

// Within reports whether path is root or below it.
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func resolve(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	canonical, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Path may not exist yet.
		canonical = absPath
	}
	return canonical, nil
}

func caseInsensitive() bool {
	return runtime.GOOS == "darwin" || runtime.GOOS == "windows"
}
