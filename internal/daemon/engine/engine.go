// Package engine turns client requests into work on open projects and runs
// the daemon's background collectors.
package engine

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/internal/daemon/collector"
	"github.com/grovetools/buildhub/internal/daemon/state"
	"github.com/grovetools/buildhub/internal/daemon/watch"
	"github.com/grovetools/buildhub/pkg/compile"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/sirupsen/logrus"
)

// Options configures an Engine.
type Options struct {
	// CompileOnOpen regenerates a missing compile database when a project
	// is opened.
	CompileOnOpen bool
	// ServerConfig creates buildServer.json when a project is opened.
	ServerConfig bool
}

// Engine handles requests and runs all collectors.
type Engine struct {
	state      *state.State
	collectors []collector.Collector
	logger     *logrus.Entry
	opts       Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Engine instance.
func New(st *state.State, logger *logrus.Entry, opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		state:  st,
		logger: logger,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a collector to the engine.
func (e *Engine) Register(c collector.Collector) {
	e.collectors = append(e.collectors, c)
}

// Start runs all collectors and blocks until context is canceled.
func (e *Engine) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range e.collectors {
		wg.Add(1)
		go func(col collector.Collector) {
			defer wg.Done()
			e.logger.WithField("collector", col.Name()).Info("Starting collector")
			if err := col.Run(ctx, e.state); err != nil {
				e.logger.WithField("collector", col.Name()).WithError(err).Error("Collector failed")
			}
		}(c)
	}
	wg.Wait()
}

// Shutdown cancels one-shot work and closes every project.
func (e *Engine) Shutdown() {
	e.cancel()
	e.state.Shutdown()
	e.wg.Wait()
}

// State returns the engine's project registry.
func (e *Engine) State() *state.State {
	return e.state
}

// Projects describes every open project.
func (e *Engine) Projects() []models.ProjectInfo {
	return e.state.Projects()
}

// Open registers a client with its project and returns the broadcast
// address the client should connect to.
func (e *Engine) Open(c models.Client) (models.RegisterResponse, error) {
	entry, created, err := e.state.Register(c)
	if err != nil {
		return models.RegisterResponse{}, err
	}
	if created {
		e.goWork(func(ctx context.Context) { e.prepare(ctx, entry) })
	}
	return models.RegisterResponse{Socket: entry.Hub.Address()}, nil
}

// Drop detaches a client from its project.
func (e *Engine) Drop(c models.Client) error {
	_, err := e.state.Drop(c)
	return err
}

// Build handles a build request.
func (e *Engine) Build(req models.BuildRequest) error {
	if err := validate(req.Client, req.Settings, req.Operation); err != nil {
		return err
	}
	entry, err := e.state.Get(req.Client.Root)
	if err != nil {
		return err
	}

	hub := entry.Hub
	p := entry.Project
	target := label(req.Settings)
	args := strings.Join(p.BuildArgs(req.Settings), " ")
	e.logRequest("Build", req.Client, req.Operation, req.Settings)

	switch req.Operation {
	case models.OpWatch:
		hub.NotifyInfo("[%s] Watching with '%s'", target, req.Settings)
		return entry.Scheduler.Register(watchable{
			kind:    watch.KindBuild,
			key:     req.Signature(),
			target:  target,
			command: args,
			pid:     req.Client.PID,
			action: func(ctx context.Context) (<-chan bool, error) {
				done, _, err := p.Build(ctx, hub, req.Settings)
				return done, err
			},
		}.build())
	case models.OpStop:
		if !entry.Scheduler.Unregister(req.Signature()) {
			return errors.RegistrationNotFound(req.Signature())
		}
		hub.NotifyInfo("[%s] Stopped watching", target)
		return nil
	}

	e.goWork(func(ctx context.Context) {
		hub.NotifyInfo("[%s] Building", target)
		hub.Event(models.EventBuildStarted, target, nil)

		done, argv, err := p.Build(ctx, hub, req.Settings)
		ok := err == nil && <-done
		if ctx.Err() != nil {
			return
		}
		if !ok {
			hub.NotifyError("[%s] building Failed, checkout logs", target)
			if err != nil {
				hub.LogError("[%s] %v", target, err)
			} else {
				hub.LogError("[%s] ran args %s", target, strings.Join(argv, " "))
			}
		} else {
			hub.NotifyInfo("[%s] Built", target)
		}
		hub.Event(models.EventBuildFinished, target, &ok)
	})
	return nil
}

// Run handles a run request: build, then launch the product.
func (e *Engine) Run(req models.RunRequest) error {
	if err := validate(req.Client, req.Settings, req.Operation); err != nil {
		return err
	}
	entry, err := e.state.Get(req.Client.Root)
	if err != nil {
		return err
	}

	hub := entry.Hub
	target := label(req.Settings)
	runner := entry.Project.NewRunner(hub, req.Settings, req.Device)
	e.logRequest("Run", req.Client, req.Operation, req.Settings)

	switch req.Operation {
	case models.OpWatch:
		hub.NotifyInfo("[%s] Watching with '%s'", target, req.Settings)
		return entry.Scheduler.Register(watchable{
			kind:    watch.KindRun,
			key:     req.Signature(),
			target:  target,
			command: strings.Join(runner.Args(), " "),
			pid:     req.Client.PID,
			action:  runner.Run,
			cleanup: runner.Stop,
		}.build())
	case models.OpStop:
		if !entry.Scheduler.Unregister(req.Signature()) {
			return errors.RegistrationNotFound(req.Signature())
		}
		hub.NotifyInfo("[%s] Stopped running", target)
		return nil
	}

	e.goWork(func(ctx context.Context) {
		hub.NotifyInfo("[%s] Running", target)
		done, err := runner.Run(ctx)
		ok := err == nil && <-done
		if ctx.Err() != nil {
			return
		}
		if !ok {
			hub.NotifyError("[%s] Running Failed, checkout logs", target)
			if err != nil {
				hub.LogError("[%s] %v", target, err)
			} else {
				hub.LogError("[%s] ran args %s", target, strings.Join(runner.Args(), " "))
			}
		}
	})
	return nil
}

// prepare runs first-open housekeeping for a project.
func (e *Engine) prepare(ctx context.Context, entry *state.Entry) {
	p := entry.Project
	logger := e.logger.WithField("root", entry.Root)

	if e.opts.ServerConfig {
		created, err := p.EnsureServerConfig()
		if err != nil {
			logger.WithError(err).Warn("Failed to create build server config")
		} else if created {
			logger.Info("Created build server config")
		}
	}

	if !e.opts.CompileOnOpen {
		return
	}
	if _, err := os.Stat(compile.Path(entry.Root)); err == nil {
		return
	}
	if _, err := p.UpdateCompileDatabase(ctx, entry.Hub); err != nil {
		logger.WithError(err).Warn("Failed to update compile database")
	}
}

func (e *Engine) goWork(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
}

func (e *Engine) logRequest(kind string, c models.Client, op models.Operation, s models.BuildSettings) {
	e.logger.WithFields(logrus.Fields{
		"root":      c.Root,
		"pid":       c.PID,
		"operation": string(op),
		"settings":  s.String(),
	}).Info(kind + " request")
}

func validate(c models.Client, s models.BuildSettings, op models.Operation) error {
	if err := c.Validate(); err != nil {
		return errors.InvalidInput(err.Error())
	}
	if !op.Valid() {
		return errors.InvalidInput("unknown operation: " + string(op))
	}
	if strings.TrimSpace(s.Target) == "" && strings.TrimSpace(s.Scheme) == "" {
		return errors.InvalidInput("a target or scheme is required")
	}
	return nil
}
