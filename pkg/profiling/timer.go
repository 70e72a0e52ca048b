// Package profiling records coarse timings of CLI round trips to the daemon.
package profiling

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Stopper ends a timed span.
type Stopper interface {
	Stop()
}

type span struct {
	name     string
	depth    int
	start    time.Time
	duration time.Duration
	rec      *Recorder
}

func (s *span) Stop() {
	s.rec.finish(s)
}

// Recorder collects nested spans in call order.
type Recorder struct {
	mu      sync.Mutex
	enabled bool
	started time.Time
	spans   []*span
	open    int
}

var defaultRecorder = &Recorder{}

// Enable turns on the process-wide recorder.
func Enable() {
	defaultRecorder.Enable()
}

// Start begins a span on the process-wide recorder.
func Start(name string) Stopper {
	return defaultRecorder.Start(name)
}

// Summarize writes the process-wide recorder's spans to w.
func Summarize(w io.Writer) {
	defaultRecorder.Summarize(w)
}

// Enable starts recording. Spans started before Enable are ignored.
func (r *Recorder) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		r.enabled = true
		r.started = time.Now()
	}
}

// Start begins a span nested under any spans still open.
func (r *Recorder) Start(name string) Stopper {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return noopStopper{}
	}
	s := &span{name: name, depth: r.open, start: time.Now(), rec: r}
	r.spans = append(r.spans, s)
	r.open++
	return s
}

func (r *Recorder) finish(s *span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.duration != 0 {
		return
	}
	s.duration = time.Since(s.start)
	if r.open > 0 {
		r.open--
	}
}

// Summarize writes one line per span, indented by nesting depth, with its
// share of the total recorded time.
func (r *Recorder) Summarize(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}

	total := time.Since(r.started)
	fmt.Fprintf(w, "timing (%v total)\n", total.Round(100*time.Microsecond))
	for _, s := range r.spans {
		d := s.duration
		if d == 0 {
			d = time.Since(s.start)
		}
		share := 0.0
		if total > 0 {
			share = float64(d) / float64(total) * 100
		}
		fmt.Fprintf(w, "%s%-*s %10v %5.1f%%\n",
			strings.Repeat("  ", s.depth+1), 24-2*s.depth, s.name, d.Round(100*time.Microsecond), share)
	}
}

type noopStopper struct{}

func (noopStopper) Stop() {}
