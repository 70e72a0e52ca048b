package daemon

import (
	"net"
	"os"
	"time"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/pkg/paths"
)

// New returns a client for the daemon at the default socket. It fails when
// the daemon is not accepting connections.
func New() (Client, error) {
	return Connect(paths.SocketPath())
}

// Connect returns a client for the daemon listening on socketPath.
func Connect(socketPath string) (Client, error) {
	if _, err := os.Stat(socketPath); err != nil {
		return nil, notRunning(socketPath)
	}
	conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
	if err != nil {
		return nil, notRunning(socketPath)
	}
	conn.Close()
	return NewRemoteClient(socketPath), nil
}

func notRunning(socketPath string) error {
	return errors.New(errors.ErrCodeState, "buildhub daemon is not running; start it with 'buildhub daemon start'").
		WithDetail("socket", socketPath)
}
