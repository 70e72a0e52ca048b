package process

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/pkg/models"
)

const (
	// DefaultGracePeriod is how long a cancelled process has between SIGTERM and SIGKILL.
	DefaultGracePeriod = 3 * time.Second

	maxLineSize = 1024 * 1024
	lineBuffer  = 256
)

// Output is one line emitted by a consumed process.
type Output struct {
	Stream models.Stream
	Text   string
}

// Option configures a Stream.
type Option func(*options)

type options struct {
	observers []func(Output)
	grace     time.Duration
}

// WithObserver registers fn to see every raw output line before it is
// delivered on Lines. Observers are called from the stdout and stderr
// readers concurrently and must be safe for concurrent use.
func WithObserver(fn func(Output)) Option {
	return func(o *options) {
		o.observers = append(o.observers, fn)
	}
}

// WithGracePeriod overrides the delay between SIGTERM and SIGKILL on cancellation.
func WithGracePeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.grace = d
		}
	}
}

// Stream owns a running subprocess and exposes its output as a finite,
// single-use sequence of lines plus a terminal success signal.
type Stream struct {
	cmd       *exec.Cmd
	opts      options
	lines     chan Output
	done      chan bool
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Start spawns cmd and begins streaming its stdout and stderr. Cancelling
// ctx (or calling Cancel) signals the process group to terminate and makes
// Done yield false.
func Start(ctx context.Context, cmd *exec.Cmd, opts ...Option) (*Stream, error) {
	o := options{grace: DefaultGracePeriod}
	for _, opt := range opts {
		opt(&o)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.ProcessFailed(cmd.Args, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.ProcessFailed(cmd.Args, err)
	}
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, errors.ProcessFailed(cmd.Args, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		cmd:    cmd,
		opts:   o,
		lines:  make(chan Output, lineBuffer),
		done:   make(chan bool, 1),
		cancel: cancel,
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go s.scan(stdout, models.Stdout, &readers)
	go s.scan(stderr, models.Stderr, &readers)

	exited := make(chan struct{})
	go s.supervise(ctx, exited)

	go func() {
		readers.Wait()
		err := cmd.Wait()
		close(exited)
		cancel()
		close(s.lines)
		s.done <- err == nil && !s.cancelled.Load()
	}()

	return s, nil
}

// Lines returns the output sequence. It is closed once both pipes reach EOF.
func (s *Stream) Lines() <-chan Output {
	return s.lines
}

// Done yields exactly one value after Lines is closed: the process exit
// status, or false if the stream was cancelled.
func (s *Stream) Done() <-chan bool {
	return s.done
}

// Cancel requests termination. It is safe to call more than once.
func (s *Stream) Cancel() {
	s.cancel()
}

// Args returns the command line of the process.
func (s *Stream) Args() []string {
	return s.cmd.Args
}

// PID returns the OS process id.
func (s *Stream) PID() int {
	if s.cmd.Process == nil {
		return -1
	}
	return s.cmd.Process.Pid
}

func (s *Stream) scan(r io.Reader, stream models.Stream, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		out := Output{Stream: stream, Text: strings.TrimRight(scanner.Text(), "\r")}
		for _, fn := range s.opts.observers {
			fn(out)
		}
		s.lines <- out
	}
	// Drain anything left after a scanner error (line too long) so the
	// process never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// supervise terminates the process group when ctx is cancelled before the
// process has exited on its own.
func (s *Stream) supervise(ctx context.Context, exited <-chan struct{}) {
	select {
	case <-exited:
		return
	case <-ctx.Done():
	}

	select {
	case <-exited:
		return
	default:
	}

	s.cancelled.Store(true)
	_ = terminate(s.cmd)

	select {
	case <-exited:
	case <-time.After(s.opts.grace):
		_ = kill(s.cmd)
	}
}
