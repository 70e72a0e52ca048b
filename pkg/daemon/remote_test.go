package daemon

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/internal/daemon/broadcast"
	"github.com/grovetools/buildhub/internal/daemon/engine"
	"github.com/grovetools/buildhub/internal/daemon/project"
	"github.com/grovetools/buildhub/internal/daemon/server"
	"github.com/grovetools/buildhub/internal/daemon/state"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDaemon serves the control API on a temporary Unix socket.
func startDaemon(t *testing.T) (string, *engine.Engine) {
	t.Helper()
	entry := testutil.QuietLogger()

	dir := testutil.SocketDir(t, "bhc")

	st := state.New(state.Options{
		Project:   project.Settings{BuildTool: "true", CacheDir: t.TempDir()},
		Broadcast: broadcast.Options{Dir: dir, Logger: entry},
		Logger:    entry,
		Alive:     func(int) bool { return true },
	})
	eng := engine.New(st, entry, engine.Options{})

	srv := server.New(entry)
	srv.SetEngine(eng)

	socket := filepath.Join(dir, "d.sock")
	ln, err := net.Listen("unix", socket)
	require.NoError(t, err)
	httpSrv := &http.Server{Handler: srv.Handler()}
	go httpSrv.Serve(ln)
	t.Cleanup(func() {
		httpSrv.Close()
		eng.Shutdown()
	})
	return socket, eng
}

func TestConnectNotRunning(t *testing.T) {
	_, err := Connect(filepath.Join(t.TempDir(), "missing.sock"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeState))
}

func TestRemoteClientLifecycle(t *testing.T) {
	socket, _ := startDaemon(t)
	client, err := Connect(socket)
	require.NoError(t, err)
	defer client.Close()
	assert.True(t, client.IsRunning())

	ctx := context.Background()
	root := t.TempDir()
	c := models.Client{PID: os.Getpid(), Root: root}

	resp, err := client.Register(ctx, c)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Socket)

	require.NoError(t, client.Build(ctx, models.BuildRequest{
		Client:    c,
		Settings:  models.BuildSettings{Target: "App"},
		Operation: models.OpWatch,
	}))

	infos, err := client.State(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, resp.Socket, infos[0].Socket)
	assert.Equal(t, []string{"build:App:"}, infos[0].Registrations)

	require.NoError(t, client.Drop(ctx, c))
	infos, err = client.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestRemoteClientErrors(t *testing.T) {
	socket, _ := startDaemon(t)
	client := NewRemoteClient(socket)
	ctx := context.Background()

	err := client.Drop(ctx, models.Client{PID: 1, Root: t.TempDir()})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeState, errors.GetCode(err))

	err = client.Build(ctx, models.BuildRequest{Client: models.Client{PID: 1, Root: "relative"}})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestStreamAndAttach(t *testing.T) {
	socket, eng := startDaemon(t)
	client := NewRemoteClient(socket)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	resp, err := client.Register(ctx, models.Client{PID: os.Getpid(), Root: root})
	require.NoError(t, err)
	entry, err := eng.State().Get(root)
	require.NoError(t, err)

	ws, err := client.Stream(ctx, root)
	require.NoError(t, err)
	direct, err := Attach(ctx, resp.Socket)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return entry.Hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)
	entry.Hub.NotifyInfo("[App] Built")

	for _, ch := range []<-chan models.Message{ws, direct} {
		select {
		case msg := <-ch:
			assert.Equal(t, models.KindNotify, msg.Kind)
			assert.Equal(t, "[App] Built", msg.Text)
		case <-time.After(5 * time.Second):
			t.Fatal("no message received")
		}
	}

	cancel()
	for _, ch := range []<-chan models.Message{ws, direct} {
		require.Eventually(t, func() bool {
			select {
			case _, ok := <-ch:
				return !ok
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
	}
}

func TestStreamUnknownProject(t *testing.T) {
	socket, _ := startDaemon(t)
	client := NewRemoteClient(socket)
	_, err := client.Stream(context.Background(), t.TempDir())
	require.Error(t, err)
}
