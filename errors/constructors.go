package errors

import (
	"fmt"
	"os/exec"
	"strings"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *Error {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *Error {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// IO wraps a filesystem or socket failure for the given path.
func IO(err error, op, path string) *Error {
	return Wrap(err, ErrCodeIO, fmt.Sprintf("%s %s", op, path)).
		WithDetail("path", path)
}

// ProjectNotFound creates an error for a request against a root that was never opened.
func ProjectNotFound(root string) *Error {
	return New(ErrCodeState, fmt.Sprintf("project '%s' is not registered", root)).
		WithDetail("root", root)
}

// ClientNotFound creates an error for a drop from a client that never registered.
func ClientNotFound(pid int, root string) *Error {
	return New(ErrCodeState, fmt.Sprintf("client %d is not registered for '%s'", pid, root)).
		WithDetail("pid", pid).
		WithDetail("root", root)
}

// RegistrationNotFound creates an error for a missing watch registration.
func RegistrationNotFound(key string) *Error {
	return New(ErrCodeState, fmt.Sprintf("no registration for '%s'", key)).
		WithDetail("key", key)
}

// InvalidInput creates an error for a malformed client request.
func InvalidInput(reason string) *Error {
	return New(ErrCodeInvalidInput, reason)
}

// ProcessFailed creates a subprocess failure error
func ProcessFailed(args []string, err error) *Error {
	cmd := strings.Join(args, " ")
	bhErr := Wrap(err, ErrCodeProcess, fmt.Sprintf("process failed: %s", cmd)).
		WithDetail("command", cmd)

	// Extract exit code if available
	if exitErr, ok := err.(*exec.ExitError); ok {
		bhErr = bhErr.WithDetail("exitCode", exitErr.ExitCode())
	}

	return bhErr
}
