// Package collector holds the engine's periodic maintenance workers.
package collector

import (
	"context"

	"github.com/grovetools/buildhub/internal/daemon/state"
)

// Collector runs alongside the control server for the daemon's lifetime.
// Run blocks until ctx is done; a returned error is logged and the
// collector is not restarted.
type Collector interface {
	Name() string
	Run(ctx context.Context, st *state.State) error
}
