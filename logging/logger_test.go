package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestNewLogger(t *testing.T) {
	t.Setenv("BUILDHUB_HOME", t.TempDir())
	Reset()
	defer Reset()

	logger := NewLogger("test-component")
	if logger == nil {
		t.Fatal("Expected logger to be created")
	}

	// Verify it's a logrus.Entry with the component field
	if logger.Data["component"] != "test-component" {
		t.Errorf("Expected component to be 'test-component', got %v", logger.Data["component"])
	}
}

func TestLoggerOutput(t *testing.T) {
	// Create a buffer to capture output
	var buf bytes.Buffer
	
	// Create a new logger and redirect output to buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&TextFormatter{Config: FormatConfig{}})
	
	entry := logger.WithField("component", "test")
	entry.Info("Test message")
	
	output := buf.String()
	
	// Check that output contains expected elements
	if !strings.Contains(output, "[INFO]") {
		t.Errorf("Expected output to contain [INFO], got: %s", output)
	}
	if !strings.Contains(output, "[test]") {
		t.Errorf("Expected output to contain [test], got: %s", output)
	}
	if !strings.Contains(output, "Test message") {
		t.Errorf("Expected output to contain 'Test message', got: %s", output)
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name   string
		config FormatConfig
		entry  *logrus.Entry
		want   []string // Parts that should be in the output
		notWant []string // Parts that should NOT be in the output
	}{
		{
			name:   "default format",
			config: FormatConfig{},
			entry: &logrus.Entry{
				Level:   logrus.InfoLevel,
				Message: "test message",
				Data: logrus.Fields{
					"component": "test-component",
					"key1":      "value1",
				},
			},
			want:    []string{"[INFO]", "[test-component]", "test message", "key1=value1"},
			notWant: []string{},
		},
		{
			name: "simple format",
			config: FormatConfig{
				DisableTimestamp: true,
				DisableComponent: true,
			},
			entry: &logrus.Entry{
				Level:   logrus.WarnLevel,
				Message: "warning message",
				Data: logrus.Fields{
					"component": "test-component",
				},
			},
			want:    []string{"[WARN]", "warning message"},
			notWant: []string{"[test-component]"},
		},
		{
			name:   "caller information with function name",
			config: FormatConfig{},
			entry: func() *logrus.Entry {
				logger := logrus.New()
				logger.SetReportCaller(true)
				entry := &logrus.Entry{
					Logger:  logger,
					Level:   logrus.InfoLevel,
					Message: "test message with caller",
					Data: logrus.Fields{
						"component": "test-component",
					},
					Caller: &runtime.Frame{
						File:     "/path/to/file.go",
						Line:     42,
						Function: "github.com/example/package.TestFunction",
					},
				}
				return entry
			}(),
			want:    []string{"[INFO]", "[test-component]", "test message with caller", "[file.go:42 package.TestFunction]"},
			notWant: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &TextFormatter{Config: tt.config}
			
			// Set a fixed time for consistent testing
			tt.entry.Time = tt.entry.Time.UTC()
			
			output, err := formatter.Format(tt.entry)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			
			outputStr := string(output)
			
			// Check for expected parts
			for _, want := range tt.want {
				if !strings.Contains(outputStr, want) {
					t.Errorf("Expected output to contain '%s', got: %s", want, outputStr)
				}
			}
			
			// Check for parts that should NOT be present
			for _, notWant := range tt.notWant {
				if strings.Contains(outputStr, notWant) {
					t.Errorf("Expected output NOT to contain '%s', got: %s", notWant, outputStr)
				}
			}
		})
	}
}

func TestLogLevels(t *testing.T) {
	// Test that log level filtering works
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.WarnLevel)
	
	entry := logger.WithField("component", "test")
	
	// These should not appear
	entry.Debug("debug message")
	entry.Info("info message")
	
	// These should appear
	entry.Warn("warn message")
	entry.Error("error message")
	
	output := buf.String()
	
	if strings.Contains(output, "debug message") {
		t.Error("Debug message should not appear at Warn level")
	}
	if strings.Contains(output, "info message") {
		t.Error("Info message should not appear at Warn level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Warn message should appear at Warn level")
	}
	if !strings.Contains(output, "error message") {
		t.Error("Error message should appear at Warn level")
	}
}

func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("BUILDHUB_HOME", t.TempDir())
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogCaller, "true")
	Reset()
	defer Reset()

	logger := NewLogger("env-test")

	if logger.Logger.Level != logrus.DebugLevel {
		t.Errorf("Expected debug level from env var, got %v", logger.Logger.Level)
	}
	if !logger.Logger.ReportCaller {
		t.Error("Expected caller reporting to be enabled from env var")
	}
	if NewLogger("env-test") != logger {
		t.Error("Expected the cached logger to be returned")
	}
}

func TestConfigFromFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BUILDHUB_HOME", home)
	t.Setenv("BUILDHUB_CONFIG", "")
	t.Setenv(EnvLogLevel, "")
	dir := filepath.Join(home, "config", "buildhub")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := "[logging]\nlevel = \"warn\"\n[logging.format]\npreset = \"json\"\n"
	if err := os.WriteFile(filepath.Join(dir, "buildhub.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	Reset()
	defer Reset()

	logger := NewLogger("file-test")
	if logger.Logger.Level != logrus.WarnLevel {
		t.Errorf("Expected warn level from config, got %v", logger.Logger.Level)
	}
	if _, ok := logger.Logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("Expected JSON formatter, got %T", logger.Logger.Formatter)
	}
}

func TestFileSink(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BUILDHUB_HOME", home)
	t.Setenv(EnvLogLevel, "")

	entry := build("daemon", Config{Format: FormatConfig{StructuredToStderr: "never"}}, true)
	entry.Info("file sink message")

	data, err := os.ReadFile(LogFilePath("daemon", time.Now()))
	if err != nil {
		t.Fatalf("Expected log file to exist: %v", err)
	}
	if !strings.Contains(string(data), "file sink message") {
		t.Errorf("Expected log file to contain message, got: %s", data)
	}
}

func TestStderrSink(t *testing.T) {
	t.Setenv("BUILDHUB_HOME", t.TempDir())
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvDebug, "")

	var buf bytes.Buffer
	restore := Redirect(&buf)
	defer restore()

	noFile := FileSinkConfig{Disabled: true}

	interactive := build("tty", Config{File: noFile}, true)
	interactive.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected no stderr output in an interactive terminal, got: %s", buf.String())
	}

	piped := build("pipe", Config{File: noFile}, false)
	piped.Info("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected stderr output when not a terminal, got: %s", buf.String())
	}

	buf.Reset()
	never := build("never", Config{File: noFile, Format: FormatConfig{StructuredToStderr: "never"}}, false)
	never.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("Expected no output with structured_to_stderr=never, got: %s", buf.String())
	}
}

func TestLogFilePath(t *testing.T) {
	t.Setenv("BUILDHUB_HOME", "/tmp/bh-home")
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	got := LogFilePath("daemon", day)
	if filepath.Base(got) != "daemon-2026-03-04.log" {
		t.Errorf("Unexpected log file name: %s", got)
	}
	if !strings.HasPrefix(got, "/tmp/bh-home") {
		t.Errorf("Expected log file under BUILDHUB_HOME, got: %s", got)
	}
}

func TestPrettyLogger(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrettyLogger().WithWriter(&buf)
	p.Success("opened")
	p.Field("socket", "/tmp/x.socket")
	p.ErrorPretty("failed", os.ErrNotExist)

	out := buf.String()
	for _, want := range []string{"opened", "socket", "/tmp/x.socket", "failed", os.ErrNotExist.Error()} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestComponentLevelOverride(t *testing.T) {
	t.Setenv("BUILDHUB_HOME", t.TempDir())
	t.Setenv(EnvLogLevel, "")

	cfg := Config{
		Level:      "warn",
		Components: map[string]string{"broadcast": "debug"},
		File:       FileSinkConfig{Disabled: true},
	}
	if got := build("broadcast", cfg, true).Logger.Level; got != logrus.DebugLevel {
		t.Errorf("Expected component override to debug, got %v", got)
	}
	if got := build("state", cfg, true).Logger.Level; got != logrus.WarnLevel {
		t.Errorf("Expected base level warn, got %v", got)
	}
}

func TestTextFormatterFields(t *testing.T) {
	f := &TextFormatter{Config: FormatConfig{DisableTimestamp: true}}
	entry := logrus.NewEntry(logrus.New()).WithFields(logrus.Fields{
		"component": "watch",
		"root":      "/src/My App",
		"pid":       42,
		"error":     os.ErrClosed,
	})
	entry.Level = logrus.WarnLevel
	entry.Message = "debounce fired"

	data, err := f.Format(entry)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	want := `[WARN] [watch] debounce fired error="file already closed" pid=42 root="/src/My App"` + "\n"
	if got != want {
		t.Errorf("Unexpected line:\n got: %q\nwant: %q", got, want)
	}
}
