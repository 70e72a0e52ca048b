package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/buildhub/config"
	"github.com/grovetools/buildhub/pkg/paths"
	"github.com/grovetools/buildhub/util/pathutil"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Environment overrides.
const (
	EnvLogLevel  = "BUILDHUB_LOG_LEVEL"
	EnvLogCaller = "BUILDHUB_LOG_CALLER"
	EnvDebug     = "BUILDHUB_DEBUG"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// Loggers are cached per component.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	var logCfg Config
	if cfg, err := config.LoadDefault(); err == nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			logrus.Warnf("Failed to parse 'logging' config: %v", err)
		}
	}

	interactive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	entry := build(component, logCfg, interactive)
	loggers[component] = entry
	return entry
}

// Reset drops cached loggers so the next NewLogger call rereads configuration.
func Reset() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	loggers = make(map[string]*logrus.Entry)
}

// LogFilePath returns the default log file for a component on the given day.
func LogFilePath(component string, day time.Time) string {
	return filepath.Join(paths.LogDir(), fmt.Sprintf("%s-%s.log", component, day.Format("2006-01-02")))
}

func build(component string, logCfg Config, interactive bool) *logrus.Entry {
	logger := logrus.New()

	levelStr := "info"
	if env := os.Getenv(EnvLogLevel); env != "" {
		levelStr = env
	} else if lvl, ok := logCfg.Components[component]; ok && lvl != "" {
		levelStr = lvl
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv(EnvLogCaller) == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format})
	}

	var writers []io.Writer

	if !logCfg.File.Disabled {
		logFilePath := LogFilePath(component, time.Now())
		if logCfg.File.Path != "" {
			logFilePath = pathutil.Expand(logCfg.File.Path)
		}
		if file, err := openLogFile(logFilePath); err == nil {
			writers = append(writers, file)
		} else if logCfg.File.Path != "" {
			// Only warn if explicitly configured
			logger.Warnf("Failed to open log file %s: %v", logFilePath, err)
		}
	}

	stderrMode := "auto"
	if logCfg.Format.StructuredToStderr != "" {
		stderrMode = logCfg.Format.StructuredToStderr
	}

	shouldLogToStderr := false
	switch stderrMode {
	case "always":
		shouldLogToStderr = true
	case "never":
		shouldLogToStderr = false
	default:
		// Interactive terminals only see structured logs when debugging.
		isDebug := os.Getenv(EnvDebug) == "1" || logger.GetLevel() >= logrus.DebugLevel
		shouldLogToStderr = isDebug || !interactive
	}

	if shouldLogToStderr {
		writers = append(writers, Output())
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	return logger.WithField("component", component)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
