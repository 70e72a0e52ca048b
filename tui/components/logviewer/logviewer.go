// Package logviewer is a scrolling bubbletea view over broadcast messages
// and tailed log files.
package logviewer

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/tui/theme"
	"github.com/hpcloud/tail"
)

// LineMsg carries one rendered line into the viewer.
type LineMsg struct {
	Source string
	Line   string
}

// ClosedMsg is sent when every source has ended.
type ClosedMsg struct{}

// Model is the TUI component for viewing logs.
type Model struct {
	viewport viewport.Model
	follow   bool
	ready    bool
	closed   bool
	width    int
	height   int
	lines    []string

	mu      sync.Mutex
	tails   []*tail.Tail
	pending *sync.WaitGroup
	feed    chan tea.Msg
}

// New creates a new log viewer model.
func New(width, height int) *Model {
	return &Model{
		viewport: viewport.New(width, height),
		follow:   true,
		width:    width,
		height:   height,
		feed:     make(chan tea.Msg, 256),
		pending:  &sync.WaitGroup{},
	}
}

// Attach streams broadcast messages into the viewer.
func (m *Model) Attach(msgs <-chan models.Message) tea.Cmd {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		for msg := range msgs {
			m.feed <- LineMsg{Line: FormatMessage(msg)}
		}
	}()
	m.closeWhenDrained()
	return m.waitForLine()
}

// Tail follows the given files, keyed by a display name.
func (m *Model) Tail(files map[string]string) tea.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	for source, path := range files {
		t, err := tail.TailFile(path, tail.Config{
			Follow:   true,
			ReOpen:   true,
			Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
			Logger:   stdlog.New(io.Discard, "", 0),
		})
		if err != nil {
			m.feed <- LineMsg{Source: source, Line: theme.DefaultTheme.Error.Render(err.Error())}
			continue
		}
		m.tails = append(m.tails, t)

		m.pending.Add(1)
		go func(source string, t *tail.Tail) {
			defer m.pending.Done()
			for line := range t.Lines {
				m.feed <- LineMsg{Source: source, Line: FormatLogLine(line.Text)}
			}
		}(source, t)
	}
	m.closeWhenDrained()
	return m.waitForLine()
}

// Stop halts all tailing operations.
func (m *Model) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tails {
		_ = t.Stop()
	}
	m.tails = nil
}

// Lines returns the rendered lines received so far.
func (m *Model) Lines() []string {
	return m.lines
}

// Following reports whether new lines scroll the view.
func (m *Model) Following() bool {
	return m.follow
}

func (m *Model) closeWhenDrained() {
	wg := m.pending
	feed := m.feed
	go func() {
		wg.Wait()
		feed <- ClosedMsg{}
	}()
}

func (m *Model) waitForLine() tea.Cmd {
	feed := m.feed
	return func() tea.Msg {
		return <-feed
	}
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height
		m.ready = true
		m.render()
	case LineMsg:
		line := msg.Line
		if msg.Source != "" {
			line = SourceLabel(msg.Source) + " " + line
		}
		m.lines = append(m.lines, line)
		m.render()
		cmds = append(cmds, m.waitForLine())
	case ClosedMsg:
		m.closed = true
	case tea.KeyMsg:
		switch msg.String() {
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.viewport.GotoBottom()
			}
		case "g":
			m.follow = false
			m.viewport.GotoTop()
		case "G":
			m.follow = true
			m.viewport.GotoBottom()
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return tea.Batch(cmds...)
}

// Closed reports whether every source has ended.
func (m *Model) Closed() bool {
	return m.closed
}

// render wraps lines to the viewport width, leaving a column for the scrollbar.
func (m *Model) render() {
	if !m.ready {
		return
	}
	wrap := lipgloss.NewStyle().Width(max(1, m.viewport.Width-1))
	wrapped := make([]string, len(m.lines))
	for i, line := range m.lines {
		wrapped[i] = wrap.Render(line)
	}
	m.viewport.SetContent(strings.Join(wrapped, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// View renders the log viewer with scrollbar.
func (m *Model) View() string {
	if !m.ready {
		return "Waiting for output..."
	}
	return overlayScrollbar(&m.viewport)
}

// FormatMessage renders a broadcast message as a single line.
func FormatMessage(msg models.Message) string {
	t := theme.DefaultTheme
	switch msg.Kind {
	case models.KindNotify:
		icon := theme.Icons.ForLevel(string(msg.Level))
		return theme.RenderStatus(string(msg.Level), icon+" "+msg.Text)
	case models.KindEvent:
		text := msg.Text
		if msg.Event != nil && msg.Event.Target != "" {
			text = fmt.Sprintf("%s %s", msg.Event.Name, msg.Event.Target)
		}
		if msg.Event != nil && msg.Event.Success != nil {
			if *msg.Event.Success {
				return t.Muted.Render("event: "+text) + " " + t.Success.Render("ok")
			}
			return t.Muted.Render("event: "+text) + " " + t.Error.Render("failed")
		}
		return t.Muted.Render("event: " + text)
	default:
		if msg.Level == models.LevelError {
			return t.Error.Render(msg.Text)
		}
		return msg.Text
	}
}

// SourceLabel renders the bracketed name of a line's source.
func SourceLabel(source string) string {
	return "[" + theme.DefaultTheme.Accent.Render(source) + "]"
}

// FormatLogLine renders a daemon log line, pretty-printing JSON entries.
func FormatLogLine(line string) string {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line
	}

	msg, _ := entry["msg"].(string)
	level, _ := entry["level"].(string)
	component, _ := entry["component"].(string)
	ts, _ := entry["time"].(string)

	var parts []string
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		parts = append(parts, parsed.Format("15:04:05"))
	}
	parts = append(parts, theme.RenderStatus(levelStatus(level), strings.ToUpper(level)))
	if component != "" {
		parts = append(parts, "["+theme.DefaultTheme.Accent.Render(component)+"]")
	}
	parts = append(parts, msg)
	return strings.Join(parts, " ")
}

func levelStatus(level string) string {
	switch strings.ToLower(level) {
	case "error", "fatal", "panic":
		return "error"
	case "warning", "warn":
		return "warning"
	default:
		return "info"
	}
}
