package watch

import (
	"context"
	"fmt"
	"path/filepath"
)

// Kind selects the policy a Watchable is scheduled with.
type Kind int

const (
	// KindBuild rebuilds a target.
	KindBuild Kind = iota
	// KindRun rebuilds and relaunches a target.
	KindRun
	// KindWatch regenerates the project from its generator config.
	KindWatch
)

func (k Kind) String() string {
	switch k {
	case KindBuild:
		return "build"
	case KindRun:
		return "run"
	case KindWatch:
		return "watch"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Action starts the work for one trigger and returns a receiver yielding
// its outcome exactly once.
type Action func(ctx context.Context, ev Event) (<-chan bool, error)

// Watchable is a registration that reacts to filesystem events.
type Watchable struct {
	Kind Kind
	// Key is the normalized request signature. Registering a second
	// Watchable with the same Key replaces the first.
	Key string
	// Target names the build target in notifications.
	Target string
	// Command is the argument summary logged when a trigger fails.
	Command string
	// ClientPID is the editor process that asked for the registration.
	ClientPID int
	// ConfigFiles are generator config file names that trigger a
	// regeneration when written.
	ConfigFiles []string

	Action  Action
	Cleanup func()
}

// policy is the per-kind function table.
type policy struct {
	shouldTrigger func(w *Watchable, ev Event, exists bool) bool
	shouldDiscard func(s *Scheduler, w *Watchable, ev Event) bool
	trigger       func(ctx context.Context, w *Watchable, ev Event) (bool, error)
	discard       func(w *Watchable)
	succeeded     func(w *Watchable) string
	failed        func(w *Watchable) string
}

func policyFor(k Kind) policy {
	switch k {
	case KindRun:
		return policy{
			shouldTrigger: buildShouldTrigger,
			shouldDiscard: clientGone,
			trigger:       runAction,
			discard:       runCleanup,
			succeeded:     func(w *Watchable) string { return fmt.Sprintf("[%s] Running", w.Target) },
			failed:        func(w *Watchable) string { return fmt.Sprintf("[%s] Rerunning Failed, checkout logs", w.Target) },
		}
	case KindWatch:
		return policy{
			shouldTrigger: generatorShouldTrigger,
			shouldDiscard: func(*Scheduler, *Watchable, Event) bool { return false },
			trigger:       runAction,
			discard:       runCleanup,
			succeeded:     func(*Watchable) string { return "Project regenerated" },
			failed:        func(*Watchable) string { return "Project regeneration failed, checkout logs" },
		}
	default:
		return policy{
			shouldTrigger: buildShouldTrigger,
			shouldDiscard: clientGone,
			trigger:       runAction,
			discard:       runCleanup,
			succeeded:     func(w *Watchable) string { return fmt.Sprintf("[%s] Built", w.Target) },
			failed:        func(w *Watchable) string { return fmt.Sprintf("[%s] Rebuilding Failed, checkout logs", w.Target) },
		}
	}
}

func buildShouldTrigger(_ *Watchable, ev Event, exists bool) bool {
	return ev.IsContentUpdate() ||
		ev.IsRename() ||
		ev.IsCreate() ||
		ev.IsRemove() ||
		!(exists || ev.Seen)
}

func generatorShouldTrigger(w *Watchable, ev Event, _ bool) bool {
	return (ev.IsContentUpdate() && w.isConfigFile(ev.Path)) ||
		ev.IsCreate() ||
		ev.IsRemove() ||
		ev.IsRename()
}

func clientGone(s *Scheduler, w *Watchable, _ Event) bool {
	return w.ClientPID > 0 && !s.alive(w.ClientPID)
}

func runAction(ctx context.Context, w *Watchable, ev Event) (bool, error) {
	recv, err := w.Action(ctx, ev)
	if err != nil {
		return false, err
	}
	select {
	case ok := <-recv:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func runCleanup(w *Watchable) {
	if w.Cleanup != nil {
		w.Cleanup()
	}
}

func (w *Watchable) isConfigFile(path string) bool {
	name := filepath.Base(path)
	for _, f := range w.ConfigFiles {
		if f == name || f == path {
			return true
		}
	}
	return false
}
