package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/buildhub/internal/daemon/watch"
	"github.com/grovetools/buildhub/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventSink struct {
	mu     sync.Mutex
	events []watch.Event
}

func (s *eventSink) handle(ev watch.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Path == path {
			return true
		}
	}
	return false
}

func TestFromGitignore(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{"", "", false},
		{"# comment", "", false},
		{"build/", "**/build", true},
		{"/Pods", "Pods", true},
		{"Sources/Generated", "Sources/Generated", true},
		{"*.log", "**/*.log", true},
		{"!keep.log", "!**/keep.log", true},
		{"**/tmp", "**/tmp", true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := fromGitignore(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIgnored(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("Pods/\n*.log\n"), 0644))

	w, err := New(root, func(watch.Event) {}, Options{Ignore: []string{"Scratch"}, Logger: testutil.QuietLogger()})
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.Ignored(filepath.Join(root, ".compile")))
	assert.True(t, w.Ignored(filepath.Join(root, ".git", "index")))
	assert.True(t, w.Ignored(filepath.Join(root, "App.xcodeproj", "project.pbxproj")))
	assert.True(t, w.Ignored(filepath.Join(root, "Pods", "Lib", "a.swift")))
	assert.True(t, w.Ignored(filepath.Join(root, "sub", "debug.log")))
	assert.True(t, w.Ignored(filepath.Join(root, "Scratch", "x.swift")))
	assert.False(t, w.Ignored(filepath.Join(root, "Sources", "App.swift")))
	assert.False(t, w.Ignored(filepath.Join(root, "project.yml")))
	assert.False(t, w.Ignored(root))
}

func TestWatcherDeliversEvents(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Sources"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))

	sink := &eventSink{}
	w, err := New(root, sink.handle, Options{Logger: testutil.QuietLogger()})
	require.NoError(t, err)
	assert.Equal(t, 2, w.Dirs())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	src := filepath.Join(root, "Sources", "App.swift")
	require.NoError(t, os.WriteFile(src, []byte("let x = 1\n"), 0644))
	require.Eventually(t, func() bool { return sink.has(src) }, 2*time.Second, 10*time.Millisecond)

	compileDB := filepath.Join(root, ".compile")
	require.NoError(t, os.WriteFile(compileDB, []byte("[]"), 0644))

	nested := filepath.Join(root, "Sources", "Feature")
	require.NoError(t, os.Mkdir(nested, 0755))
	require.Eventually(t, func() bool { return w.Dirs() == 3 }, 2*time.Second, 10*time.Millisecond)

	file := filepath.Join(nested, "Feature.swift")
	require.NoError(t, os.WriteFile(file, []byte("struct F {}\n"), 0644))
	require.Eventually(t, func() bool { return sink.has(file) }, 2*time.Second, 10*time.Millisecond)

	assert.False(t, sink.has(compileDB))
}

func TestConvertOp(t *testing.T) {
	assert.Equal(t, watch.Create|watch.Write, convertOp(fsnotify.Create|fsnotify.Write))
	assert.Equal(t, watch.Op(0), convertOp(0))
}
