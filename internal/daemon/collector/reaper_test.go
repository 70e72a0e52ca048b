package collector

import (
	"context"
	"testing"
	"time"

	"github.com/grovetools/buildhub/internal/daemon/broadcast"
	"github.com/grovetools/buildhub/internal/daemon/project"
	"github.com/grovetools/buildhub/internal/daemon/state"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReapCollectorClosesAbandonedProjects(t *testing.T) {
	entry := testutil.QuietLogger()

	sockets := testutil.SocketDir(t, "bhr")

	st := state.New(state.Options{
		Project:   project.Settings{BuildTool: "true", CacheDir: t.TempDir()},
		Broadcast: broadcast.Options{Dir: sockets, Logger: entry},
		Logger:    entry,
		Alive:     func(pid int) bool { return pid != 31337 },
	})
	defer st.Shutdown()

	_, _, err := st.Register(models.Client{PID: 31337, Root: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, st.Projects(), 1)

	c := NewReapCollector(10*time.Millisecond, entry)
	assert.Equal(t, "reaper", c.Name())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, st) }()

	require.Eventually(t, func() bool { return len(st.Projects()) == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
