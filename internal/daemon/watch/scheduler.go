// Package watch schedules builds in response to filesystem changes.
//
// Raw events are debounced per path, then offered to every registered
// Watchable. Each Watchable owns a worker goroutine with a single-slot
// mailbox, so a registration never runs two triggers at once and events that
// arrive mid-build collapse into one follow-up trigger.
package watch

import (
	"context"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/logging"
	"github.com/grovetools/buildhub/pkg/process"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is the window in which events for one path are merged.
const DefaultDebounce = 300 * time.Millisecond

// maxMissing bounds the set of paths remembered as missing. When full it
// is reset, which at worst lets one metadata event for a long-gone path
// trigger again.
const maxMissing = 1024

// Notifier receives the user-facing outcome of triggers. A broadcast hub
// satisfies it.
type Notifier interface {
	NotifyInfo(format string, args ...interface{})
	NotifyError(format string, args ...interface{})
	LogError(format string, args ...interface{})
}

// Status is the lifecycle state of a registration.
type Status int32

const (
	StatusRegistered Status = iota
	StatusTriggering
)

func (s Status) String() string {
	if s == StatusTriggering {
		return "triggering"
	}
	return "registered"
}

// Options configures a Scheduler.
type Options struct {
	Debounce time.Duration
	Notifier Notifier
	Logger   *logrus.Entry
	// Alive reports whether a client process still exists.
	Alive func(pid int) bool
	// Exists reports whether a path exists.
	Exists func(path string) bool
}

type entry struct {
	w       *Watchable
	mailbox chan Event
	quit    chan struct{}
	done    chan struct{}
	status  atomic.Int32
	stop    sync.Once
}

func (e *entry) halt() {
	e.stop.Do(func() { close(e.quit) })
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

// Scheduler dispatches debounced events to registered Watchables.
type Scheduler struct {
	opts   Options
	logger *logrus.Entry
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry
	pending map[string]*pendingEvent
	missing map[string]bool
	closed  bool
}

// New creates a Scheduler. It holds no goroutines until something is
// registered.
func New(opts Options) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("watch")
	}
	if opts.Alive == nil {
		opts.Alive = process.IsProcessAlive
	}
	if opts.Exists == nil {
		opts.Exists = pathExists
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		opts:    opts,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
		pending: make(map[string]*pendingEvent),
		missing: make(map[string]bool),
	}
}

// Register adds w, replacing any registration with the same key. The
// replacement starts triggering only after an in-flight trigger of the
// replaced registration finishes.
func (s *Scheduler) Register(w *Watchable) error {
	if w == nil || w.Key == "" {
		return errors.InvalidInput("watchable requires a key")
	}
	if w.Action == nil {
		return errors.InvalidInput("watchable requires an action").WithDetail("key", w.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New(errors.ErrCodeState, "scheduler is closed")
	}

	var prev <-chan struct{}
	if old, ok := s.entries[w.Key]; ok {
		old.halt()
		prev = old.done
	}

	e := &entry{
		w:       w,
		mailbox: make(chan Event, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.entries[w.Key] = e

	s.wg.Add(1)
	go s.work(e, prev)

	s.logger.WithFields(logrus.Fields{"key": w.Key, "kind": w.Kind.String()}).Info("Registered")
	return nil
}

// Unregister removes the registration for key and runs its cleanup. An
// in-flight trigger runs to completion.
func (s *Scheduler) Unregister(key string) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
		s.pruneMissing()
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	e.halt()
	policyFor(e.w.Kind).discard(e.w)
	s.logger.WithField("key", key).Info("Unregistered")
	return true
}

// Handle accepts a raw filesystem event. Events for the same path within
// the debounce window are merged and dispatched once.
func (s *Scheduler) Handle(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if p, ok := s.pending[ev.Path]; ok {
		p.event.Op |= ev.Op
		p.timer.Reset(s.opts.Debounce)
		return
	}

	path := ev.Path
	p := &pendingEvent{event: ev}
	p.timer = time.AfterFunc(s.opts.Debounce, func() { s.dispatch(path) })
	s.pending[path] = p
}

// Status returns the state of the registration for key.
func (s *Scheduler) Status(key string) (Status, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	return Status(e.status.Load()), true
}

// Keys returns registered keys in sorted order.
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close stops pending timers, cancels in-flight triggers and waits for
// every worker to exit. Registrations are cleaned up.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for path, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, path)
	}
	entries := s.entries
	s.entries = make(map[string]*entry)
	s.missing = make(map[string]bool)
	s.mu.Unlock()

	s.cancel()
	for _, e := range entries {
		e.halt()
	}
	s.wg.Wait()
	for _, e := range entries {
		policyFor(e.w.Kind).discard(e.w)
	}
}

func (s *Scheduler) dispatch(path string) {
	s.mu.Lock()
	p, ok := s.pending[path]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, path)
	ev := p.event

	exists := s.opts.Exists(path)
	if exists {
		delete(s.missing, path)
	} else {
		ev.Seen = s.missing[path]
		if !ev.Seen && len(s.missing) >= maxMissing {
			s.missing = make(map[string]bool)
		}
		s.missing[path] = true
	}

	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	s.logger.WithField("event", ev.String()).Debug("Dispatching")

	for _, e := range entries {
		pol := policyFor(e.w.Kind)
		if pol.shouldDiscard(s, e.w, ev) {
			s.discard(e)
			continue
		}
		if pol.shouldTrigger(e.w, ev, exists) {
			select {
			case e.mailbox <- ev:
			default:
				// A trigger is already queued.
			}
		}
	}
}

func (s *Scheduler) discard(e *entry) {
	s.mu.Lock()
	if s.entries[e.w.Key] == e {
		delete(s.entries, e.w.Key)
		s.pruneMissing()
	} else {
		e = nil
	}
	s.mu.Unlock()
	if e == nil {
		return
	}

	e.halt()
	policyFor(e.w.Kind).discard(e.w)
	s.logger.WithFields(logrus.Fields{"key": e.w.Key, "pid": e.w.ClientPID}).Info("Client gone, discarding")
}

func (s *Scheduler) work(e *entry, prev <-chan struct{}) {
	defer s.wg.Done()
	defer close(e.done)

	if prev != nil {
		select {
		case <-prev:
		case <-s.ctx.Done():
			return
		}
	}

	for {
		select {
		case <-e.quit:
			return
		case <-s.ctx.Done():
			return
		case ev := <-e.mailbox:
			s.trigger(e, ev)
		}
	}
}

func (s *Scheduler) trigger(e *entry, ev Event) {
	e.status.Store(int32(StatusTriggering))
	defer e.status.Store(int32(StatusRegistered))

	w := e.w
	pol := policyFor(w.Kind)
	logger := s.logger.WithFields(logrus.Fields{"key": w.Key, "event": ev.String()})
	logger.Info("Triggering")

	ok, err := pol.trigger(s.ctx, w, ev)
	if s.ctx.Err() != nil {
		return
	}

	if ok {
		s.opts.Notifier.NotifyInfo("%s", pol.succeeded(w))
		return
	}

	s.opts.Notifier.NotifyError("%s", pol.failed(w))
	if err != nil {
		logger.WithError(err).Warn("Trigger failed to start")
		s.opts.Notifier.LogError("[%s] %v", w.Target, err)
	} else {
		s.opts.Notifier.LogError("[%s] ran %s", w.Target, w.Command)
	}
}

// pruneMissing forgets missing paths once nothing is registered. Callers
// hold s.mu.
func (s *Scheduler) pruneMissing() {
	if len(s.entries) == 0 && len(s.missing) > 0 {
		s.missing = make(map[string]bool)
	}
}

func (s *Scheduler) alive(pid int) bool {
	return s.opts.Alive(pid)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type discardNotifier struct{}

func (discardNotifier) NotifyInfo(string, ...interface{})  {}
func (discardNotifier) NotifyError(string, ...interface{}) {}
func (discardNotifier) LogError(string, ...interface{})    {}
