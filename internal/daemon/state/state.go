package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/internal/daemon/broadcast"
	"github.com/grovetools/buildhub/internal/daemon/fswatch"
	"github.com/grovetools/buildhub/internal/daemon/project"
	"github.com/grovetools/buildhub/internal/daemon/watch"
	"github.com/grovetools/buildhub/logging"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/pkg/process"
	"github.com/grovetools/buildhub/util/pathutil"
	"github.com/sirupsen/logrus"
)

// GeneratorKey is the registration key of a project's regeneration
// watchable.
const GeneratorKey = "watch:project"

// Options configures the registry.
type Options struct {
	Project   project.Settings
	Broadcast broadcast.Options
	Debounce  time.Duration
	Logger    *logrus.Entry
	// Alive reports whether a client process exists.
	Alive func(pid int) bool
}

// State is the daemon's single owner of open projects. The mutex guards
// the registry only; builds run on scheduler workers outside it.
type State struct {
	opts   Options
	logger *logrus.Entry

	mu          sync.Mutex
	projects    map[string]*Entry
	subscribers map[chan Update]struct{}
	closed      bool
}

// New creates an empty registry.
func New(opts Options) *State {
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("state")
	}
	if opts.Alive == nil {
		opts.Alive = process.IsProcessAlive
	}
	return &State{
		opts:        opts,
		logger:      opts.Logger,
		projects:    make(map[string]*Entry),
		subscribers: make(map[chan Update]struct{}),
	}
}

// Key normalizes a project root for lookup.
func Key(root string) (string, error) {
	key, err := pathutil.NormalizeForLookup(root)
	if err != nil {
		return "", errors.InvalidInput("invalid project root: " + root)
	}
	return key, nil
}

// Register attaches a client to its project, opening the project when it
// is the first client. created reports whether the project was opened.
func (s *State) Register(c models.Client) (entry *Entry, created bool, err error) {
	if err := c.Validate(); err != nil {
		return nil, false, errors.InvalidInput(err.Error())
	}
	key, err := Key(c.Root)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, errors.New(errors.ErrCodeState, "daemon is shutting down")
	}

	if e, ok := s.projects[key]; ok {
		e.clients[c.PID]++
		e.count++
		s.logger.WithFields(logrus.Fields{"root": key, "pid": c.PID, "clients": e.count}).Info("Client registered")
		s.publish(Update{Type: UpdateClients, Root: key, Clients: e.count})
		return e, false, nil
	}

	e, err := s.open(key)
	if err != nil {
		return nil, false, err
	}
	e.clients[c.PID] = 1
	e.count = 1
	s.projects[key] = e

	s.logger.WithFields(logrus.Fields{"root": key, "pid": c.PID, "generator": e.Project.Generator}).Info("Project opened")
	s.publish(Update{Type: UpdateOpened, Root: key, Clients: 1})
	return e, true, nil
}

// Drop detaches a client. The project is closed when its last client
// drops. closed reports whether that happened.
func (s *State) Drop(c models.Client) (closed bool, err error) {
	key, err := Key(c.Root)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	e, ok := s.projects[key]
	if !ok {
		s.mu.Unlock()
		return false, errors.ProjectNotFound(c.Root)
	}

	if e.clients[c.PID] == 0 {
		s.mu.Unlock()
		return false, errors.ClientNotFound(c.PID, c.Root)
	}
	e.clients[c.PID]--
	if e.clients[c.PID] == 0 {
		delete(e.clients, c.PID)
	}
	e.count--
	if e.count > 0 {
		s.publish(Update{Type: UpdateClients, Root: key, Clients: e.count})
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{"root": key, "pid": c.PID, "clients": e.count}).Info("Client dropped")
		return false, nil
	}

	delete(s.projects, key)
	s.publish(Update{Type: UpdateClosed, Root: key})
	s.mu.Unlock()

	s.close(e)
	s.logger.WithField("root", key).Info("Project closed")
	return true, nil
}

// Get returns the open project for root.
func (s *State) Get(root string) (*Entry, error) {
	key, err := Key(root)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.projects[key]
	if !ok {
		return nil, errors.ProjectNotFound(root)
	}
	return e, nil
}

// Projects describes every open project, sorted by root.
func (s *State) Projects() []models.ProjectInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]models.ProjectInfo, 0, len(s.projects))
	for key, e := range s.projects {
		infos = append(infos, models.ProjectInfo{
			Root:          key,
			Name:          e.Project.Name(),
			Generator:     string(e.Project.Generator),
			Socket:        e.Hub.Address(),
			Clients:       e.count,
			Targets:       e.Project.Targets(),
			Registrations: e.Scheduler.Keys(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Root < infos[j].Root })
	return infos
}

// Reap drops registrations of client processes that no longer exist and
// returns the roots that were closed as a result.
func (s *State) Reap() []string {
	s.mu.Lock()
	var stale []models.Client
	for key, e := range s.projects {
		for pid, n := range e.clients {
			if pid > 0 && !s.opts.Alive(pid) {
				for i := 0; i < n; i++ {
					stale = append(stale, models.Client{PID: pid, Root: key})
				}
			}
		}
	}
	s.mu.Unlock()

	var closed []string
	for _, c := range stale {
		s.logger.WithFields(logrus.Fields{"root": c.Root, "pid": c.PID}).Info("Client process gone")
		if done, err := s.Drop(c); err == nil && done {
			closed = append(closed, c.Root)
		}
	}
	return closed
}

// Subscribe creates a new subscription channel for registry updates.
func (s *State) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, 100)
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *State) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Shutdown closes every project. Further registrations fail.
func (s *State) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	entries := s.projects
	s.projects = make(map[string]*Entry)
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *Entry) {
			defer wg.Done()
			s.close(e)
		}(e)
	}
	wg.Wait()
	s.logger.WithField("projects", len(entries)).Info("All projects closed")
}

// publish must be called with s.mu held.
func (s *State) publish(u Update) {
	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

func (s *State) open(root string) (*Entry, error) {
	p, err := project.Load(root, s.opts.Project)
	if err != nil {
		return nil, err
	}

	hub, err := broadcast.Open(root, s.opts.Broadcast)
	if err != nil {
		return nil, err
	}

	scheduler := watch.New(watch.Options{
		Debounce: s.opts.Debounce,
		Notifier: hub,
		Logger:   s.logger.WithField("root", root),
		Alive:    s.opts.Alive,
	})

	watcher, err := fswatch.New(root, scheduler.Handle, fswatch.Options{Ignore: p.Ignore()})
	if err != nil {
		scheduler.Close()
		hub.Close()
		return nil, err
	}
	go watcher.Start(context.Background())

	e := &Entry{
		Root:      root,
		Project:   p,
		Hub:       hub,
		Scheduler: scheduler,
		Watcher:   watcher,
		clients:   make(map[int]int),
	}

	if p.Generator != project.GeneratorNone {
		err := scheduler.Register(&watch.Watchable{
			Kind:        watch.KindWatch,
			Key:         GeneratorKey,
			Target:      p.Name(),
			Command:     string(p.Generator),
			ConfigFiles: p.Generator.ConfigFiles(),
			Action: func(ctx context.Context, _ watch.Event) (<-chan bool, error) {
				done, err := p.Refresh(ctx, hub)
				if err != nil || done != nil {
					return done, err
				}
				ok := make(chan bool, 1)
				ok <- true
				return ok, nil
			},
		})
		if err != nil {
			s.close(e)
			return nil, err
		}
	}
	return e, nil
}

func (s *State) close(e *Entry) {
	_ = e.Watcher.Close()
	e.Scheduler.Close()
	e.Hub.Close()
}
