package logging

import (
	"io"
	"os"
	"sync"
)

// swapWriter forwards writes to a destination that can be replaced while
// loggers hold on to it.
type swapWriter struct {
	mu  sync.Mutex
	dst io.Writer
}

func (s *swapWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dst.Write(p)
}

func (s *swapWriter) swap(w io.Writer) io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.dst
	s.dst = w
	return prev
}

var stderrSink = &swapWriter{dst: os.Stderr}

// Output is the writer every logger's stderr sink writes through.
func Output() io.Writer {
	return stderrSink
}

// SetOutput replaces the destination of every logger's stderr sink.
func SetOutput(w io.Writer) {
	stderrSink.swap(w)
}

// Redirect sends stderr-bound log output to w until restore is called.
// Full-screen viewers use it to keep log lines off the terminal.
func Redirect(w io.Writer) (restore func()) {
	prev := stderrSink.swap(w)
	return func() { stderrSink.swap(prev) }
}
