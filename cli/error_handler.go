package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/buildhub/errors"
)

// ErrorHandler renders errors with a hint for the common failure modes.
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints err and returns it unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	out := h.Out
	bhErr := errors.As(err)

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(out, "✗ Configuration not found: %v\n", detail(bhErr, "path"))
		fmt.Fprintf(out, "Run 'buildhub config schema' for the available settings.\n")

	case errors.ErrCodeConfigInvalid:
		fmt.Fprintf(out, "✗ Invalid configuration: %s\n", message(err, bhErr))

	case errors.ErrCodeState:
		fmt.Fprintf(out, "✗ %s\n", message(err, bhErr))
		if _, ok := bhErr.Details["socket"]; ok {
			fmt.Fprintf(out, "Start it with 'buildhub daemon start'.\n")
		} else if _, ok := bhErr.Details["root"]; ok {
			fmt.Fprintf(out, "Open the project first with 'buildhub open'.\n")
		}

	case errors.ErrCodeInvalidInput:
		fmt.Fprintf(out, "✗ Invalid request: %s\n", message(err, bhErr))

	case errors.ErrCodeProcess:
		fmt.Fprintf(out, "✗ Command failed: %v\n", detail(bhErr, "command"))
		if code, ok := bhErr.Details["exitCode"]; ok {
			fmt.Fprintf(out, "Exit code: %v\n", code)
		}

	default:
		fmt.Fprintf(out, "✗ Error: %v\n", err)
	}

	if h.Verbose && bhErr != nil {
		fmt.Fprintf(out, "\nError details:\n%s\n", bhErr.ToJSON())
	}
	return err
}

func message(err error, bhErr *errors.Error) string {
	if bhErr != nil {
		return bhErr.Message
	}
	return err.Error()
}

func detail(bhErr *errors.Error, key string) interface{} {
	if bhErr == nil {
		return "unknown"
	}
	if v, ok := bhErr.Details[key]; ok {
		return v
	}
	return bhErr.Message
}
