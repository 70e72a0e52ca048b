package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/buildhub/config"
	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/tui/components/logviewer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("BUILDHUB_HOME", home)
	t.Setenv("BUILDHUB_CONFIG", "")
	return home
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Build.ServerCommand = `xcode-build-server --flag "two words"`
	cfg.Build.ExtraArgs = []string{"-quiet"}
	cfg.Watch.Ignore = []string{"*.log"}

	settings, err := settingsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "xcodebuild", settings.BuildTool)
	assert.Equal(t, []string{"xcode-build-server", "--flag", "two words"}, settings.ServerCommand)
	assert.Equal(t, []string{"-quiet"}, settings.ExtraArgs)
	assert.Equal(t, []string{"*.log"}, settings.Ignore)
	assert.Equal(t, cfg.Generators.XcodeGen, settings.Generators.XcodeGen)

	cfg.Build.ServerCommand = `unterminated "quote`
	_, err = settingsFromConfig(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid))
}

func TestAssemble(t *testing.T) {
	isolate(t)
	cfg := config.Default()
	parts, err := assemble(cfg)
	require.NoError(t, err)
	assert.NotNil(t, parts.engine)
	assert.NotNil(t, parts.server)
	assert.Empty(t, parts.engine.Projects())
	parts.engine.Shutdown()
}

func TestRequestFromFlags(t *testing.T) {
	root := t.TempDir()

	cmd := NewBuildCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--root", root, "--pid", "42", "--watch", "--configuration", "Release"}))
	c, settings, op, err := requestFromFlags(cmd, []string{"App", "-quiet"})
	require.NoError(t, err)
	assert.Equal(t, models.Client{PID: 42, Root: root}, c)
	assert.Equal(t, "App", settings.Target)
	assert.Equal(t, "Release", settings.Configuration)
	assert.Equal(t, []string{"-quiet"}, settings.Args)
	assert.Equal(t, models.OpWatch, op)

	cmd = NewBuildCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--root", root, "--watch", "--stop"}))
	_, _, _, err = requestFromFlags(cmd, []string{"App"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	cmd = NewRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--root", root}))
	_, _, _, err = requestFromFlags(cmd, nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	cmd = NewRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--root", root, "--scheme", "App"}))
	_, settings, op, err = requestFromFlags(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, "App", settings.Scheme)
	assert.Equal(t, models.OpOnce, op)
}

func TestClientFromFlagsDefaults(t *testing.T) {
	cmd := NewOpenCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--root", "relative/dir"}))
	c, err := clientFromFlags(cmd)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(c.Root))
	assert.Equal(t, os.Getppid(), c.PID)
}

func TestCommandsWithoutDaemon(t *testing.T) {
	isolate(t)

	_, err := execute(t, "state")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeState))

	out, err := execute(t, "daemon", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not running")

	out, err = execute(t, "daemon", "status", "--json")
	require.NoError(t, err)
	var status daemonStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status.Running)

	out, err = execute(t, "daemon", "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}

func TestConfigCommands(t *testing.T) {
	isolate(t)

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "xcodebuild")

	out, err = execute(t, "config", "show", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "debounce: 300ms")

	_, err = execute(t, "config", "show", "--format", "ini")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	out, err = execute(t, "config", "schema")
	require.NoError(t, err)
	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Contains(t, schema, "properties")

	_, err = execute(t, "config", "path")
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestPathsCommand(t *testing.T) {
	home := isolate(t)
	out, err := execute(t, "paths", "--json")
	require.NoError(t, err)

	var entries []pathEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.True(t, filepath.HasPrefix(e.Path, home), e.Name)
	}
}

func TestTailLogsWithoutFollow(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "state.log")
	require.NoError(t, os.WriteFile(a, []byte(`{"level":"info","msg":"opened project","component":"state","time":"2026-01-02T03:04:05Z"}`+"\nplain line\n"), 0644))

	var out bytes.Buffer
	require.NoError(t, tailLogs(context.Background(), &out, map[string]string{"state": a}, false, false))
	assert.Contains(t, out.String(), "opened project")
	assert.Contains(t, out.String(), "INFO")
	assert.Contains(t, out.String(), "plain line")

	out.Reset()
	require.NoError(t, tailLogs(context.Background(), &out, map[string]string{"state": a}, false, true))
	assert.Contains(t, out.String(), `"msg":"opened project"`)

	err := tailLogs(context.Background(), &out, map[string]string{"x": filepath.Join(dir, "missing.log")}, false, false)
	assert.True(t, errors.Is(err, errors.ErrCodeIO))
}

func TestPrintMessages(t *testing.T) {
	msgs := make(chan models.Message, 2)
	msgs <- models.LogInfo("Compiling main.swift")
	msgs <- models.Notify(models.LevelError, "Build failed")
	close(msgs)

	cmd := NewAttachCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, printMessages(cmd, msgs, false))
	assert.Contains(t, out.String(), "Compiling main.swift")
	assert.Contains(t, out.String(), "Build failed")
}

func TestAttachModel(t *testing.T) {
	msgs := make(chan models.Message, 1)
	msgs <- models.LogInfo("hello")
	close(msgs)

	m := newAttachModel("/tmp/App", msgs)
	wait := m.Init()
	require.NotNil(t, wait)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 10})

	line := wait()
	require.IsType(t, logviewer.LineMsg{}, line)
	m.Update(line)

	view := m.View()
	assert.Contains(t, view, "/tmp/App")
	assert.Contains(t, view, "hello")
	assert.Contains(t, view, "following")

	_, quit := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, quit)
	assert.IsType(t, tea.QuitMsg{}, quit())
}
