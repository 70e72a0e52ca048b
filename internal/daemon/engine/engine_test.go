package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/internal/daemon/broadcast"
	"github.com/grovetools/buildhub/internal/daemon/project"
	"github.com/grovetools/buildhub/internal/daemon/state"
	"github.com/grovetools/buildhub/internal/daemon/watch"
	"github.com/grovetools/buildhub/pkg/compile"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (c *recordingClient) Send(line []byte) error {
	var msg models.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingClient) Close() error   { return nil }
func (c *recordingClient) String() string { return "recording" }

func (c *recordingClient) notified(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.msgs {
		if m.Kind == models.KindNotify && m.Text == text {
			return true
		}
	}
	return false
}

func writeTool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-xcodebuild")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func newTestEngine(t *testing.T, tool string, opts Options) *Engine {
	t.Helper()
	entry := testutil.QuietLogger()

	sockets := testutil.SocketDir(t, "bhe")

	st := state.New(state.Options{
		Project:   project.Settings{BuildTool: tool, CacheDir: t.TempDir(), ServerCommand: []string{"buildhub-test-server"}},
		Broadcast: broadcast.Options{Dir: sockets, Logger: entry},
		Debounce:  10 * time.Millisecond,
		Logger:    entry,
		Alive:     func(int) bool { return true },
	})
	e := New(st, entry, opts)
	t.Cleanup(e.Shutdown)
	return e
}

func openWithRecorder(t *testing.T, e *Engine, root string) *recordingClient {
	t.Helper()
	resp, err := e.Open(models.Client{PID: os.Getpid(), Root: root})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Socket)

	entry, err := e.State().Get(root)
	require.NoError(t, err)
	rec := &recordingClient{}
	entry.Hub.Attach(rec)
	return rec
}

func TestBuildOnceReportsSuccess(t *testing.T) {
	e := newTestEngine(t, writeTool(t, "echo compiling\n"), Options{})
	root := t.TempDir()
	rec := openWithRecorder(t, e, root)

	err := e.Build(models.BuildRequest{
		Client:   models.Client{PID: os.Getpid(), Root: root},
		Settings: models.BuildSettings{Target: "App", Configuration: "Debug"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.notified("[App] Built") }, 5*time.Second, 10*time.Millisecond)
	assert.True(t, rec.notified("[App] Building"))
}

func TestBuildOnceReportsFailure(t *testing.T) {
	e := newTestEngine(t, writeTool(t, "echo 'error: boom' >&2\nexit 65\n"), Options{})
	root := t.TempDir()
	rec := openWithRecorder(t, e, root)

	err := e.Build(models.BuildRequest{
		Client:    models.Client{PID: os.Getpid(), Root: root},
		Settings:  models.BuildSettings{Target: "App"},
		Operation: models.OpOnce,
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.notified("[App] building Failed, checkout logs") }, 5*time.Second, 10*time.Millisecond)
}

func TestBuildWatchAndStop(t *testing.T) {
	e := newTestEngine(t, "true", Options{})
	root := t.TempDir()
	rec := openWithRecorder(t, e, root)

	req := models.BuildRequest{
		Client:    models.Client{PID: os.Getpid(), Root: root},
		Settings:  models.BuildSettings{Target: "App", Configuration: "Debug"},
		Operation: models.OpWatch,
	}
	require.NoError(t, e.Build(req))
	require.NoError(t, e.Build(req))

	infos := e.Projects()
	require.Len(t, infos, 1)
	assert.Equal(t, []string{"build:App:debug"}, infos[0].Registrations)
	require.Eventually(t, func() bool {
		return rec.notified("[App] Watching with '-target App -configuration Debug'")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "main.swift"), []byte("print(1)\n"), 0644))
	require.Eventually(t, func() bool { return rec.notified("[App] Built") }, 5*time.Second, 10*time.Millisecond)

	req.Operation = models.OpStop
	require.NoError(t, e.Build(req))
	assert.Empty(t, e.Projects()[0].Registrations)

	err := e.Build(req)
	assert.True(t, errors.Is(err, errors.ErrCodeState))
}

func TestRequestValidation(t *testing.T) {
	e := newTestEngine(t, "true", Options{})
	root := t.TempDir()

	err := e.Build(models.BuildRequest{Client: models.Client{PID: 1, Root: root}, Settings: models.BuildSettings{Target: "App"}})
	assert.True(t, errors.Is(err, errors.ErrCodeState))

	_, err = e.Open(models.Client{PID: 1, Root: root})
	require.NoError(t, err)

	tests := []models.BuildRequest{
		{Client: models.Client{PID: 1, Root: "rel"}, Settings: models.BuildSettings{Target: "App"}},
		{Client: models.Client{PID: 1, Root: root}},
		{Client: models.Client{PID: 1, Root: root}, Settings: models.BuildSettings{Target: "App"}, Operation: "later"},
	}
	for i, req := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			assert.True(t, errors.Is(e.Build(req), errors.ErrCodeInvalidInput))
		})
	}

	err = e.Run(models.RunRequest{Client: models.Client{PID: 1, Root: root}, Settings: models.BuildSettings{Target: "App"}, Operation: models.OpStop})
	assert.True(t, errors.Is(err, errors.ErrCodeState))
}

func TestRunOnceReportsBuildFailure(t *testing.T) {
	e := newTestEngine(t, writeTool(t, "exit 1\n"), Options{})
	root := t.TempDir()
	rec := openWithRecorder(t, e, root)

	require.NoError(t, e.Run(models.RunRequest{
		Client:   models.Client{PID: os.Getpid(), Root: root},
		Settings: models.BuildSettings{Target: "App"},
	}))
	require.Eventually(t, func() bool { return rec.notified("[App] Running Failed, checkout logs") }, 5*time.Second, 10*time.Millisecond)
}

func TestRunWatchRegistersWithDevice(t *testing.T) {
	e := newTestEngine(t, "true", Options{})
	root := t.TempDir()
	openWithRecorder(t, e, root)

	req := models.RunRequest{
		Client:    models.Client{PID: os.Getpid(), Root: root},
		Settings:  models.BuildSettings{Target: "App", Configuration: "Debug"},
		Device:    "SIM-1",
		Operation: models.OpWatch,
	}
	require.NoError(t, e.Run(req))
	assert.Equal(t, []string{"run:App:debug:device=SIM-1"}, e.Projects()[0].Registrations)

	req.Operation = models.OpStop
	require.NoError(t, e.Run(req))
	assert.Empty(t, e.Projects()[0].Registrations)
}

func TestOpenPreparesProject(t *testing.T) {
	transcript := `=== BUILD TARGET App OF PROJECT App WITH CONFIGURATION Debug ===
=== CompileSwiftSources normal arm64 com.apple.xcode.tools.swift.compiler
    cd /work/App
    /usr/bin/swiftc -module-name App /work/App/main.swift
`
	e := newTestEngine(t, writeTool(t, "cat <<'LOG'\n"+transcript+"LOG\n"), Options{CompileOnOpen: true, ServerConfig: true})
	root := t.TempDir()

	_, err := e.Open(models.Client{PID: os.Getpid(), Root: root})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := os.Stat(compile.Path(root))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cmds, err := compile.Read(compile.Path(root))
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "App", cmds[0].ModuleName)

	_, err = os.Stat(filepath.Join(root, project.ServerConfigFile))
	assert.NoError(t, err)
}

func TestDrop(t *testing.T) {
	e := newTestEngine(t, "true", Options{})
	root := t.TempDir()

	_, err := e.Open(models.Client{PID: 7, Root: root})
	require.NoError(t, err)
	require.NoError(t, e.Drop(models.Client{PID: 7, Root: root}))
	assert.Empty(t, e.Projects())
	assert.True(t, errors.Is(e.Drop(models.Client{PID: 7, Root: root}), errors.ErrCodeState))
}

func TestWatchableCarriesKind(t *testing.T) {
	cleaned := false
	w := watchable{
		kind:    watch.KindRun,
		key:     "run:App:",
		target:  "App",
		pid:     42,
		action:  func(context.Context) (<-chan bool, error) { return nil, nil },
		cleanup: func() { cleaned = true },
	}.build()

	assert.Equal(t, watch.KindRun, w.Kind)
	assert.Equal(t, "run:App:", w.Key)
	assert.Equal(t, 42, w.ClientPID)
	w.Cleanup()
	assert.True(t, cleaned)
}
