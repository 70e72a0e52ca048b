// Package paths provides XDG-compliant path resolution for buildhub.
//
// Resolution order:
// 1. BUILDHUB_HOME (portable root) → $BUILDHUB_HOME/{config,state,cache,run}
// 2. XDG env vars → $XDG_*_HOME/buildhub
// 3. Platform defaults → ~/.config/buildhub, ~/.local/state/buildhub, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "buildhub"

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if home := os.Getenv("BUILDHUB_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if home := os.Getenv("BUILDHUB_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// getCacheHome returns the base cache home directory.
func getCacheHome() string {
	if home := os.Getenv("BUILDHUB_HOME"); home != "" {
		return filepath.Join(home, "cache")
	}
	if xdgCacheHome := os.Getenv("XDG_CACHE_HOME"); xdgCacheHome != "" {
		return xdgCacheHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".cache")
	}
	return ""
}

// ConfigDir returns the buildhub configuration directory.
// Used for buildhub.toml / buildhub.yml.
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// StateDir returns the buildhub state directory.
// Used for the pid file and logs.
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// CacheDir returns the buildhub cache directory.
// Build products (SYMROOT) live here, one subdirectory per project.
func CacheDir() string {
	base := getCacheHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// LogDir returns the directory daemon log files are written to.
func LogDir() string {
	state := StateDir()
	if state == "" {
		return ""
	}
	return filepath.Join(state, "logs")
}

// RuntimeDir returns the buildhub runtime directory for sockets.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to /tmp (macOS),
// keeping socket paths short enough for sun_path.
func RuntimeDir() string {
	if home := os.Getenv("BUILDHUB_HOME"); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(os.TempDir(), appName)
}

// BroadcastDir returns the directory holding per-project broadcast sockets.
func BroadcastDir() string {
	return filepath.Join(RuntimeDir(), "broadcast")
}

// SocketPath returns the path to the daemon control socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "buildhubd.sock")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "buildhubd.pid")
}

// EnsureDirs creates all buildhub directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		StateDir(),
		CacheDir(),
		LogDir(),
		RuntimeDir(),
		BroadcastDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
