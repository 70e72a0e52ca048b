package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/internal/daemon/broadcast"
	"github.com/grovetools/buildhub/internal/daemon/engine"
	"github.com/grovetools/buildhub/internal/daemon/project"
	"github.com/grovetools/buildhub/internal/daemon/state"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *errors.Error   `json:"error"`
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	entry := testutil.QuietLogger()

	sockets := testutil.SocketDir(t, "bhsrv")

	st := state.New(state.Options{
		Project:   project.Settings{BuildTool: "true", CacheDir: t.TempDir()},
		Broadcast: broadcast.Options{Dir: sockets, Logger: entry},
		Logger:    entry,
		Alive:     func(int) bool { return true },
	})
	eng := engine.New(st, entry, engine.Options{})

	srv := New(entry)
	srv.SetEngine(eng)
	srv.SetRunningConfig(&RunningConfig{BuildTool: "true", StartedAt: time.Now()})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		eng.Shutdown()
	})
	return ts, eng
}

func post(t *testing.T, ts *httptest.Server, path string, body interface{}) (int, envelope) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterBuildDrop(t *testing.T) {
	ts, _ := newTestServer(t)
	root := t.TempDir()
	client := models.Client{PID: os.Getpid(), Root: root}

	status, env := post(t, ts, "/api/register", client)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, env.Error)
	var reg models.RegisterResponse
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	assert.True(t, strings.HasSuffix(reg.Socket, ".socket"))

	status, env = post(t, ts, "/api/build", models.BuildRequest{
		Client:    client,
		Settings:  models.BuildSettings{Target: "App"},
		Operation: models.OpWatch,
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, env.Error)

	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	var stateEnv envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stateEnv))
	resp.Body.Close()
	var infos []models.ProjectInfo
	require.NoError(t, json.Unmarshal(stateEnv.Data, &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, []string{"build:App:"}, infos[0].Registrations)

	status, env = post(t, ts, "/api/drop", client)
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, env.Error)

	status, env = post(t, ts, "/api/drop", client)
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, errors.ErrCodeState, env.Error.Code)
}

func TestErrorStatuses(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := post(t, ts, "/api/build", models.BuildRequest{Client: models.Client{PID: 1, Root: "relative"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errors.ErrCodeInvalidInput, env.Error.Code)

	status, env = post(t, ts, "/api/run", models.RunRequest{
		Client:   models.Client{PID: 1, Root: t.TempDir()},
		Settings: models.BuildSettings{Target: "App"},
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errors.ErrCodeState, env.Error.Code)

	resp, err := http.Post(ts.URL+"/api/register", "application/json", strings.NewReader(`{"pid": "nope"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/register")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebsocketStream(t *testing.T) {
	ts, eng := newTestServer(t)
	root := t.TempDir()
	_, err := eng.Open(models.Client{PID: os.Getpid(), Root: root})
	require.NoError(t, err)
	entry, err := eng.State().Get(root)
	require.NoError(t, err)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream?root=" + url.QueryEscape(root)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return entry.Hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	entry.Hub.NotifyWarn("hello %s", "ws")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg models.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, models.KindNotify, msg.Kind)
	assert.Equal(t, models.LevelWarn, msg.Level)
	assert.Equal(t, "hello ws", msg.Text)
}

func TestWebsocketUnknownProject(t *testing.T) {
	ts, _ := newTestServer(t)
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream?root=" + url.QueryEscape(t.TempDir())
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	ts, eng := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	_, err = eng.Open(models.Client{PID: 1, Root: t.TempDir()})
	require.NoError(t, err)

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	var update state.Update
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &update))
	assert.Equal(t, state.UpdateOpened, update.Type)
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse(nil, fmt.Errorf("plain"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.ErrCodeInternal, resp.Error.Code)

	assert.Equal(t, http.StatusNotFound, StatusFor(errors.ErrCodeState))
	assert.Equal(t, http.StatusBadRequest, StatusFor(errors.ErrCodeInvalidInput))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.ErrCodeIO))

	data, err := json.Marshal(NewResponse(map[string]int{"n": 1}, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"n":1}}`, string(data))
}
