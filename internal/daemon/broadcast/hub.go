// Package broadcast implements the per-project hub that relays build
// output and status notifications to every attached client.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/logging"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/pkg/paths"
	"github.com/grovetools/buildhub/pkg/process"
	"github.com/sirupsen/logrus"
)

// DefaultWriteTimeout bounds a single write to one client.
const DefaultWriteTimeout = 2 * time.Second

// Options configures a Hub.
type Options struct {
	// Dir holds the socket. Defaults to paths.BroadcastDir().
	Dir string
	// WriteTimeout bounds each client write. Defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration
	Logger       *logrus.Entry
}

type envelope struct {
	seq uint64
	msg models.Message
}

type subscriber struct {
	client Client
	since  uint64
}

// Hub owns one project's broadcast endpoint. An accept loop attaches new
// clients and a relay loop writes queued messages to all of them.
type Hub struct {
	root         string
	address      string
	writeTimeout time.Duration
	logger       *logrus.Entry

	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	qmu   sync.Mutex
	queue []envelope
	seq   uint64
	wake  chan struct{}

	cmu     sync.Mutex
	clients []*subscriber
}

// Open binds the endpoint for root, replacing a stale socket left by a
// previous run, and starts the accept and relay loops.
func Open(root string, opts Options) (*Hub, error) {
	dir := opts.Dir
	if dir == "" {
		dir = paths.BroadcastDir()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("broadcast")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.IO(err, "create", dir)
	}

	address := Address(dir, root)
	logger = logger.WithField("socket", address)

	if _, err := os.Lstat(address); err == nil {
		logger.Warn("Stale socket exists, removing")
		if err := os.Remove(address); err != nil {
			return nil, errors.IO(err, "remove", address)
		}
	}

	listener, err := net.Listen("unix", address)
	if err != nil {
		return nil, errors.IO(err, "bind", address)
	}
	if err := os.Chmod(address, 0600); err != nil {
		_ = listener.Close()
		return nil, errors.IO(err, "chmod", address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		root:         root,
		address:      address,
		writeTimeout: opts.WriteTimeout,
		logger:       logger,
		listener:     listener,
		ctx:          ctx,
		cancel:       cancel,
		wake:         make(chan struct{}, 1),
	}

	h.wg.Add(2)
	go h.acceptLoop()
	go h.relayLoop()

	logger.WithField("root", root).Info("Broadcast initialized")
	return h, nil
}

// Root returns the project root the hub serves.
func (h *Hub) Root() string { return h.root }

// Address returns the socket path clients connect to.
func (h *Hub) Address() string { return h.address }

// Clients returns the number of attached clients.
func (h *Hub) Clients() int {
	h.cmu.Lock()
	defer h.cmu.Unlock()
	return len(h.clients)
}

// Attach adds a client. It receives only messages sent after this call.
func (h *Hub) Attach(c Client) {
	if h.ctx.Err() != nil {
		_ = c.Close()
		return
	}

	// qmu stays held so no message is flushed between reading seq and
	// joining the client list.
	h.qmu.Lock()
	h.cmu.Lock()
	h.clients = append(h.clients, &subscriber{client: c, since: h.seq})
	h.cmu.Unlock()
	h.qmu.Unlock()

	h.logger.WithField("client", c.String()).Info("Registered new client")
}

// Send queues a message for delivery. It never blocks on clients.
func (h *Hub) Send(msg models.Message) {
	if h.ctx.Err() != nil {
		return
	}

	h.qmu.Lock()
	h.queue = append(h.queue, envelope{seq: h.seq, msg: msg})
	h.seq++
	h.qmu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// NotifyInfo sends an info notification.
func (h *Hub) NotifyInfo(format string, args ...interface{}) {
	h.Send(models.Notify(models.LevelInfo, format, args...))
}

// NotifyWarn sends a warning notification.
func (h *Hub) NotifyWarn(format string, args ...interface{}) {
	h.Send(models.Notify(models.LevelWarn, format, args...))
}

// NotifyError sends an error notification.
func (h *Hub) NotifyError(format string, args ...interface{}) {
	h.Send(models.Notify(models.LevelError, format, args...))
}

// LogInfo sends an info log line.
func (h *Hub) LogInfo(format string, args ...interface{}) {
	h.Send(models.LogInfo(format, args...))
}

// LogError sends an error log line.
func (h *Hub) LogError(format string, args ...interface{}) {
	h.Send(models.LogError(format, args...))
}

// Event sends a structured event.
func (h *Hub) Event(name, target string, success *bool) {
	h.Send(models.NewEvent(name, target, success))
}

// Consume starts cmd and relays each output line as a log message. The
// returned channel yields exactly one value: the process outcome, or false
// if ctx or the hub is cancelled first, in which case the process is
// terminated.
func (h *Hub) Consume(ctx context.Context, cmd *exec.Cmd, opts ...process.Option) (<-chan bool, error) {
	pctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(h.ctx, cancel)

	stream, err := process.Start(pctx, cmd, opts...)
	if err != nil {
		stop()
		cancel()
		return nil, err
	}
	h.logger.WithField("pid", stream.PID()).Debugf("Consuming %v", stream.Args())

	result := make(chan bool, 1)
	go func() {
		defer cancel()
		defer stop()
		for out := range stream.Lines() {
			h.Send(models.Log(out.Stream, out.Text))
		}
		result <- <-stream.Done()
	}()
	return result, nil
}

// Close stops both loops, removes the socket and disconnects clients. It
// is safe to call more than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
		_ = h.listener.Close()
		h.wg.Wait()
	})
}

func (h *Hub) acceptLoop() {
	defer h.wg.Done()

	for {
		conn, err := h.listener.Accept()
		if err != nil {
			if h.ctx.Err() != nil {
				break
			}
			h.logger.WithError(err).Warn("Accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		h.Attach(NewConnClient(conn, h.writeTimeout))
	}

	if err := os.Remove(h.address); err != nil && !os.IsNotExist(err) {
		h.logger.WithError(err).Error("Failed to remove socket")
	}
	h.logger.Info("Closed")
}

func (h *Hub) relayLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			h.flush()
			h.disconnectAll()
			return
		case <-h.wake:
			h.flush()
		}
	}
}

// flush relays every queued message in order.
func (h *Hub) flush() {
	h.qmu.Lock()
	pending := h.queue
	h.queue = nil
	h.qmu.Unlock()

	for _, env := range pending {
		data, err := json.Marshal(env.msg)
		if err != nil {
			h.logger.WithError(errors.Wrap(err, errors.ErrCodeSerialization, "encode message")).
				Warnf("Dropping message %+v", env.msg)
			continue
		}
		data = append(data, '\n')
		h.relay(env.seq, data)
	}
}

// relay writes one encoded message to every client attached before it was
// sent. Clients whose write fails are dropped.
func (h *Hub) relay(seq uint64, line []byte) {
	h.cmu.Lock()
	subs := make([]*subscriber, len(h.clients))
	copy(subs, h.clients)
	h.cmu.Unlock()

	var dead []*subscriber
	for _, sub := range subs {
		if seq < sub.since {
			continue
		}
		if err := sub.client.Send(line); err != nil {
			h.logger.WithError(err).WithField("client", sub.client.String()).Warn("Write failed, dropping client")
			dead = append(dead, sub)
		}
	}
	if len(dead) == 0 {
		return
	}

	h.cmu.Lock()
	kept := h.clients[:0]
	for _, sub := range h.clients {
		if !contains(dead, sub) {
			kept = append(kept, sub)
		}
	}
	h.clients = kept
	h.cmu.Unlock()

	for _, sub := range dead {
		_ = sub.client.Close()
	}
}

func (h *Hub) disconnectAll() {
	h.cmu.Lock()
	subs := h.clients
	h.clients = nil
	h.cmu.Unlock()

	for _, sub := range subs {
		_ = sub.client.Close()
	}
}

func contains(subs []*subscriber, s *subscriber) bool {
	for _, x := range subs {
		if x == s {
			return true
		}
	}
	return false
}

// String identifies the hub in logs.
func (h *Hub) String() string {
	return fmt.Sprintf("broadcast(%s)", h.root)
}
