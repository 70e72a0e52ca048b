package cmd

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/buildhub/cli"
	"github.com/grovetools/buildhub/logging"
	"github.com/grovetools/buildhub/pkg/daemon"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/tui/components/logviewer"
	"github.com/grovetools/buildhub/tui/theme"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// NewAttachCmd follows a project's broadcast.
func NewAttachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Follow a project's build output",
		Long: `Stream log lines, notifications and events broadcast for the project at
--root. With --socket, read a broadcast socket directly instead of going
through the daemon control API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			socket, _ := cmd.Flags().GetString("socket")
			plain, _ := cmd.Flags().GetBool("plain")

			var (
				title string
				msgs  <-chan models.Message
				err   error
			)
			if socket != "" {
				title = socket
				msgs, err = daemon.Attach(cmd.Context(), socket)
			} else {
				c, cerr := clientFromFlags(cmd)
				if cerr != nil {
					return cerr
				}
				client, cerr := connect()
				if cerr != nil {
					return cerr
				}
				defer client.Close()
				title = c.Root
				msgs, err = client.Stream(cmd.Context(), c.Root)
			}
			if err != nil {
				return err
			}

			jsonOutput := cli.GetOptions(cmd).JSONOutput
			if plain || jsonOutput || !isatty.IsTerminal(os.Stdout.Fd()) {
				return printMessages(cmd, msgs, jsonOutput)
			}

			defer logging.Redirect(io.Discard)()
			p := tea.NewProgram(newAttachModel(title, msgs), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			if stderrors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
	addClientFlags(cmd)
	cmd.Flags().String("socket", "", "Broadcast socket to read directly")
	cmd.Flags().Bool("plain", false, "Print lines instead of opening the viewer")
	return cmd
}

func printMessages(cmd *cobra.Command, msgs <-chan models.Message, jsonOutput bool) error {
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for msg := range msgs {
		if jsonOutput {
			if err := enc.Encode(msg); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(out, logviewer.FormatMessage(msg))
	}
	return nil
}

// attachModel frames the log viewer with a title and a status bar.
type attachModel struct {
	title  string
	msgs   <-chan models.Message
	viewer *logviewer.Model
	width  int
}

func newAttachModel(title string, msgs <-chan models.Message) *attachModel {
	return &attachModel{title: title, msgs: msgs, viewer: logviewer.New(80, 20)}
}

func (m *attachModel) Init() tea.Cmd {
	return m.viewer.Attach(m.msgs)
}

func (m *attachModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.viewer.Stop()
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		// Title and status bar take one row each.
		return m, m.viewer.Update(tea.WindowSizeMsg{Width: msg.Width, Height: max(1, msg.Height-2)})
	}
	return m, m.viewer.Update(msg)
}

func (m *attachModel) View() string {
	t := theme.DefaultTheme
	header := t.Header.Render(m.title)

	status := "following"
	if !m.viewer.Following() {
		status = "paused"
	}
	if m.viewer.Closed() {
		status = "stream closed"
	}
	bar := t.StatusBar.Width(m.width).Render(fmt.Sprintf(" %s  %d lines  f follow  g/G top/bottom  q quit", status, len(m.viewer.Lines())))

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewer.View(), bar)
}
