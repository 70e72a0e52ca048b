// Package daemon provides a client for the build daemon's control API and
// its per-project broadcast sockets.
package daemon

import (
	"context"

	"github.com/grovetools/buildhub/pkg/models"
)

// Client defines the operations editors and the CLI perform against the
// daemon.
type Client interface {
	// Register attaches a client process to a project and returns the
	// project's broadcast socket.
	Register(ctx context.Context, c models.Client) (models.RegisterResponse, error)

	// Drop detaches a client process from a project.
	Drop(ctx context.Context, c models.Client) error

	// Build submits a build request.
	Build(ctx context.Context, req models.BuildRequest) error

	// Run submits a run request.
	Run(ctx context.Context, req models.RunRequest) error

	// State returns every open project.
	State(ctx context.Context) ([]models.ProjectInfo, error)

	// Stream attaches to a project's broadcast through the control socket.
	// The channel is closed when ctx is cancelled or the daemon closes the
	// project.
	Stream(ctx context.Context, root string) (<-chan models.Message, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}
