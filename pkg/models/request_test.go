package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureNormalization(t *testing.T) {
	a := BuildRequest{Settings: BuildSettings{Target: "App", Configuration: "Debug"}, Operation: OpWatch}
	b := BuildRequest{Settings: BuildSettings{Target: " App ", Configuration: "debug"}, Operation: OpOnce}
	assert.Equal(t, a.Signature(), b.Signature())

	run := RunRequest{Settings: a.Settings}
	assert.NotEqual(t, a.Signature(), run.Signature(), "build and run must not share a key")

	other := BuildRequest{Settings: BuildSettings{Target: "App", Configuration: "Release"}}
	assert.NotEqual(t, a.Signature(), other.Signature())
}

func TestClientValidate(t *testing.T) {
	assert.Error(t, Client{}.Validate())
	assert.Error(t, Client{Root: "relative/dir"}.Validate())
	assert.NoError(t, Client{PID: 1, Root: "/src/app"}.Validate())
}

func TestMessageWireShape(t *testing.T) {
	msg := Log(Stderr, "error: line one\nline two")
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.False(t, strings.Contains(string(data), "\n"), "embedded newlines must be escaped")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "log", decoded["kind"])
	assert.Equal(t, "error", decoded["level"])
	assert.Equal(t, "stderr", decoded["stream"])
	_, hasEvent := decoded["event"]
	assert.False(t, hasEvent)
}

func TestNotifyAndEvent(t *testing.T) {
	n := Notify(LevelWarn, "[%s] %s", "App", "slow")
	assert.Equal(t, KindNotify, n.Kind)
	assert.Equal(t, "[App] slow", n.Text)

	failed := false
	e := NewEvent(EventBuildFinished, "App", &failed)
	assert.Equal(t, LevelError, e.Level)
	require.NotNil(t, e.Event)
	assert.Equal(t, "App", e.Event.Target)
}

func TestBuildSettingsString(t *testing.T) {
	s := BuildSettings{Target: "App", Configuration: "Debug", Args: []string{"-quiet"}}
	assert.Equal(t, "-target App -configuration Debug -quiet", s.String())
}
