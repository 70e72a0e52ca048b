package errors

import (
	"fmt"
	"os/exec"
	"testing"
)

func TestError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeState, "project not found")
	if err.Code != ErrCodeState {
		t.Errorf("expected code %s, got %s", ErrCodeState, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeIO, "bind failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeIO) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeState) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("root", "/tmp/app").WithDetail("pid", 42)
	if detailed.Details["root"] != "/tmp/app" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := ProjectNotFound("/src/app")
	if err.Code != ErrCodeState {
		t.Errorf("expected code %s, got %s", ErrCodeState, err.Code)
	}
	if err.Details["root"] != "/src/app" {
		t.Error("ProjectNotFound should include root detail")
	}

	err = IO(fmt.Errorf("address in use"), "bind", "/tmp/x.socket")
	if err.Code != ErrCodeIO {
		t.Errorf("expected code %s, got %s", ErrCodeIO, err.Code)
	}
	if err.Details["path"] != "/tmp/x.socket" {
		t.Error("IO should include path detail")
	}
}

func TestProcessFailedExitCode(t *testing.T) {
	runErr := exec.Command("/bin/sh", "-c", "exit 3").Run()
	err := ProcessFailed([]string{"/bin/sh", "-c", "exit 3"}, runErr)
	if err.Details["exitCode"] != 3 {
		t.Errorf("expected exitCode 3, got %v", err.Details["exitCode"])
	}
}

func TestGetCodeThroughWrapping(t *testing.T) {
	inner := RegistrationNotFound("build:App:Debug")
	outer := fmt.Errorf("handling request: %w", inner)

	if GetCode(outer) != ErrCodeState {
		t.Errorf("expected %s, got %s", ErrCodeState, GetCode(outer))
	}
	if As(outer) != inner {
		t.Error("As should find the wrapped Error")
	}
	if As(fmt.Errorf("plain")) != nil {
		t.Error("As should return nil for plain errors")
	}
}
