package engine

import (
	"context"

	"github.com/grovetools/buildhub/internal/daemon/watch"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/util/sanitize"
)

// watchable collects what a request contributes to a scheduler
// registration.
type watchable struct {
	kind    watch.Kind
	key     string
	target  string
	command string
	pid     int
	action  func(ctx context.Context) (<-chan bool, error)
	cleanup func()
}

func (w watchable) build() *watch.Watchable {
	action := w.action
	return &watch.Watchable{
		Kind:      w.kind,
		Key:       w.key,
		Target:    w.target,
		Command:   w.command,
		ClientPID: w.pid,
		Action: func(ctx context.Context, _ watch.Event) (<-chan bool, error) {
			return action(ctx)
		},
		Cleanup: w.cleanup,
	}
}

// label names a request in notifications.
func label(s models.BuildSettings) string {
	if s.Target != "" {
		return sanitize.ForLabel(s.Target)
	}
	return sanitize.ForLabel(s.Scheme)
}
