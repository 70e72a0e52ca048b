// Package fswatch feeds filesystem changes under a project root into the
// build scheduler.
package fswatch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/internal/daemon/watch"
	"github.com/grovetools/buildhub/logging"
	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"
)

// Options configures a Watcher.
type Options struct {
	// Ignore holds extra patterns on top of IgnorePatterns defaults.
	Ignore []string
	Logger *logrus.Entry
}

// Watcher recursively watches a project root. Every change that is not
// ignored is converted to a watch.Event and passed to the handler.
type Watcher struct {
	root    string
	handler func(watch.Event)
	watcher *fsnotify.Watcher
	matcher *patternmatcher.PatternMatcher
	logger  *logrus.Entry

	mu      sync.Mutex
	watched map[string]bool
	once    sync.Once
}

// New creates a watcher for root and registers every non-ignored directory.
func New(root string, handler func(watch.Event), opts Options) (*Watcher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("fswatch")
	}

	matcher, err := patternmatcher.New(IgnorePatterns(root, opts.Ignore))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid watch ignore pattern")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.IO(err, "watch", root)
	}

	w := &Watcher{
		root:    root,
		handler: handler,
		watcher: fw,
		matcher: matcher,
		logger:  logger.WithField("root", root),
		watched: make(map[string]bool),
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Start delivers events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.Close()
			return
		}
	}
}

// Close releases the underlying watches.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() { err = w.watcher.Close() })
	return err
}

// Ignored reports whether path is excluded by the ignore patterns.
func (w *Watcher) Ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	ignored, err := w.matcher.MatchesOrParentMatches(rel)
	if err != nil {
		w.logger.WithError(err).Debugf("Ignore match failed for %s", rel)
		return false
	}
	return ignored
}

// Dirs returns the number of watched directories.
func (w *Watcher) Dirs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

func (w *Watcher) handle(event fsnotify.Event) {
	if w.Ignored(event.Name) {
		return
	}

	op := convertOp(event.Op)
	if op == 0 {
		return
	}

	if op.Has(watch.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.WithError(err).Warnf("Failed to watch new directory %s", event.Name)
			}
		}
	}
	if op.Has(watch.Remove) || op.Has(watch.Rename) {
		w.forget(event.Name)
	}

	w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
	w.handler(watch.Event{Path: event.Name, Op: op})
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return errors.IO(err, "walk", path)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.Ignored(path) {
			return filepath.SkipDir
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.watched[path] {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.WithError(err).Warnf("Failed to watch %s", path)
			return nil
		}
		w.watched[path] = true
		return nil
	})
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := path + string(filepath.Separator)
	for dir := range w.watched {
		if dir == path || len(dir) > len(prefix) && dir[:len(prefix)] == prefix {
			delete(w.watched, dir)
		}
	}
}

func convertOp(op fsnotify.Op) watch.Op {
	var out watch.Op
	if op.Has(fsnotify.Create) {
		out |= watch.Create
	}
	if op.Has(fsnotify.Write) {
		out |= watch.Write
	}
	if op.Has(fsnotify.Remove) {
		out |= watch.Remove
	}
	if op.Has(fsnotify.Rename) {
		out |= watch.Rename
	}
	if op.Has(fsnotify.Chmod) {
		out |= watch.Chmod
	}
	return out
}
