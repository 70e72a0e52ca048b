// Package pidfile guards against running two daemons against the same
// state directory.
package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/pkg/process"
)

// Acquire writes the current PID to the file.
// It returns an error if another instance is already running.
func Acquire(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.IO(err, "create", filepath.Dir(path))
	}

	if pid, err := Read(path); err == nil {
		if pid != os.Getpid() && process.IsProcessAlive(pid) {
			return errors.New(errors.ErrCodeState, "daemon already running").WithDetail("pid", pid)
		}
		// Stale file from a dead daemon.
		_ = os.Remove(path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return errors.IO(err, "write", path)
	}
	return nil
}

// Release removes the PID file if it still belongs to this process.
func Release(path string) error {
	if pid, err := Read(path); err == nil && pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.IO(err, "remove", path)
	}
	return nil
}

// Read returns the PID stored in the file.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}

// IsRunning checks if the daemon described by the pidfile is active.
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return process.IsProcessAlive(pid), pid, nil
}
