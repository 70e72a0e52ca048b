package models

import (
	"fmt"
)

// MessageKind discriminates the broadcast message union.
type MessageKind string

const (
	KindLog    MessageKind = "log"
	KindNotify MessageKind = "notify"
	KindEvent  MessageKind = "event"
)

// Level is the severity of a log or notification message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Stream identifies the subprocess pipe a log line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Message is one line on a project's broadcast channel.
// It is encoded as a single line of JSON; embedded newlines in Text are
// escaped by the encoder.
type Message struct {
	Kind   MessageKind `json:"kind"`
	Level  Level       `json:"level"`
	Text   string      `json:"text"`
	Stream Stream      `json:"stream,omitempty"`
	Event  *Event      `json:"event,omitempty"`
}

// Event is the structured payload of an event-kind message.
type Event struct {
	Name    string `json:"name"`
	Target  string `json:"target,omitempty"`
	Success *bool  `json:"success,omitempty"`
}

// Event names emitted by the daemon.
const (
	EventBuildStarted    = "build_started"
	EventBuildFinished   = "build_finished"
	EventCompileUpdated  = "compile_updated"
	EventProjectReloaded = "project_reloaded"
)

// Log builds a log message for a line of subprocess output.
func Log(stream Stream, text string) Message {
	level := LevelInfo
	if stream == Stderr {
		level = LevelError
	}
	return Message{Kind: KindLog, Level: level, Text: text, Stream: stream}
}

// LogInfo builds an info-level log message.
func LogInfo(format string, args ...interface{}) Message {
	return Message{Kind: KindLog, Level: LevelInfo, Text: fmt.Sprintf(format, args...)}
}

// LogError builds an error-level log message.
func LogError(format string, args ...interface{}) Message {
	return Message{Kind: KindLog, Level: LevelError, Text: fmt.Sprintf(format, args...)}
}

// Notify builds a notification at the given level.
func Notify(level Level, format string, args ...interface{}) Message {
	return Message{Kind: KindNotify, Level: level, Text: fmt.Sprintf(format, args...)}
}

// NewEvent builds a structured event message.
func NewEvent(name, target string, success *bool) Message {
	level := LevelInfo
	if success != nil && !*success {
		level = LevelError
	}
	return Message{
		Kind:  KindEvent,
		Level: level,
		Text:  name,
		Event: &Event{Name: name, Target: target, Success: success},
	}
}
