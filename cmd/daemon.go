package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/shlex"
	"github.com/grovetools/buildhub/cli"
	"github.com/grovetools/buildhub/config"
	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/internal/daemon/broadcast"
	"github.com/grovetools/buildhub/internal/daemon/collector"
	"github.com/grovetools/buildhub/internal/daemon/engine"
	"github.com/grovetools/buildhub/internal/daemon/pidfile"
	"github.com/grovetools/buildhub/internal/daemon/project"
	"github.com/grovetools/buildhub/internal/daemon/server"
	"github.com/grovetools/buildhub/internal/daemon/state"
	"github.com/grovetools/buildhub/logging"
	"github.com/grovetools/buildhub/pkg/daemon"
	"github.com/grovetools/buildhub/pkg/paths"
	"github.com/grovetools/buildhub/tui/components/logviewer"
	"github.com/grovetools/buildhub/util/pathutil"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewDaemonCmd returns the daemon command with subcommands.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the buildhub daemon",
		Long:  "Start, stop and inspect the per-user build daemon.",
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	cmd.AddCommand(newDaemonLogsCmd())

	return cmd
}

// settingsFromConfig maps the configuration file onto project settings.
func settingsFromConfig(cfg *config.Config) (project.Settings, error) {
	serverCmd, err := shlex.Split(cfg.Build.ServerCommand)
	if err != nil {
		return project.Settings{}, errors.ConfigInvalid(fmt.Sprintf("build.server_command: %v", err))
	}
	cacheDir := cfg.Build.CacheDir
	if cacheDir != "" {
		cacheDir = pathutil.Expand(cacheDir)
	}
	return project.Settings{
		BuildTool:     cfg.Build.Tool,
		ExtraArgs:     cfg.Build.ExtraArgs,
		CacheDir:      cacheDir,
		ServerCommand: serverCmd,
		Generators: project.GeneratorCommands{
			XcodeGen: cfg.Generators.XcodeGen,
			Tuist:    cfg.Generators.Tuist,
		},
		Ignore: cfg.Watch.Ignore,
	}, nil
}

// daemonParts is everything a running daemon is assembled from.
type daemonParts struct {
	engine *engine.Engine
	server *server.Server
}

func assemble(cfg *config.Config) (*daemonParts, error) {
	logger := logging.NewLogger("buildhubd")

	settings, err := settingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	broadcastDir := cfg.Daemon.BroadcastDir
	if broadcastDir != "" {
		broadcastDir = pathutil.Expand(broadcastDir)
	}

	st := state.New(state.Options{
		Project: settings,
		Broadcast: broadcast.Options{
			Dir:          broadcastDir,
			WriteTimeout: cfg.Daemon.WriteTimeoutDuration(),
			Logger:       logging.NewLogger("broadcast"),
		},
		Debounce: cfg.Daemon.DebounceDuration(),
		Logger:   logging.NewLogger("state"),
	})

	eng := engine.New(st, logger, engine.Options{
		CompileOnOpen: *cfg.Daemon.CompileOnOpen,
		ServerConfig:  *cfg.Daemon.ServerConfig,
	})
	eng.Register(collector.NewReapCollector(cfg.Daemon.ReapIntervalDuration(), logging.NewLogger("reaper")))

	srv := server.New(logger)
	srv.SetEngine(eng)
	srv.SetRunningConfig(&server.RunningConfig{
		Debounce:      cfg.Daemon.DebounceDuration(),
		WriteTimeout:  cfg.Daemon.WriteTimeoutDuration(),
		BuildTool:     cfg.Build.Tool,
		CompileOnOpen: *cfg.Daemon.CompileOnOpen,
		StartedAt:     time.Now(),
	})

	return &daemonParts{engine: eng, server: srv}, nil
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long:  "Start the buildhub daemon in foreground mode.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("buildhubd")
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return errors.IO(err, "create", paths.StateDir())
			}

			pidPath := paths.PidFilePath()
			sockPath := paths.SocketPath()

			if err := pidfile.Acquire(pidPath); err != nil {
				return err
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			parts, err := assemble(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				parts.engine.Start(gctx)
				return nil
			})
			g.Go(func() error {
				logger.WithField("pid", os.Getpid()).Info("Starting daemon")
				return parts.server.ListenAndServe(sockPath)
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("Received stop signal")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.ShutdownTimeoutDuration())
				defer cancel()

				if err := parts.server.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}
				parts.engine.Shutdown()
				return nil
			})

			return g.Wait()
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			pidPath := paths.PidFilePath()

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return err
			}
			if !running {
				pretty.InfoPretty("Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeProcess, fmt.Sprintf("find process %d", pid))
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return errors.Wrap(err, errors.ErrCodeProcess, "send stop signal").WithDetail("pid", pid)
			}

			pretty.Success(fmt.Sprintf("Sent SIGTERM to process %d", pid))
			return nil
		},
	}
}

// daemonStatus is the machine-readable form of daemon status.
type daemonStatus struct {
	Running  bool                  `json:"running"`
	PID      int                   `json:"pid,omitempty"`
	Socket   string                `json:"socket"`
	Projects []daemonStatusProject `json:"projects,omitempty"`
}

type daemonStatusProject struct {
	Root    string `json:"root"`
	Clients int    `json:"clients"`
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			status := daemonStatus{Socket: paths.SocketPath()}

			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return err
			}
			status.Running = running
			status.PID = pid

			if running {
				if client, err := daemon.Connect(status.Socket); err == nil {
					defer client.Close()
					if projects, err := client.State(cmd.Context()); err == nil {
						for _, p := range projects {
							status.Projects = append(status.Projects, daemonStatusProject{Root: p.Root, Clients: p.Clients})
						}
					}
				}
			}

			if cli.GetOptions(cmd).JSONOutput {
				return json.NewEncoder(out).Encode(status)
			}

			pretty := logging.NewPrettyLogger().WithWriter(out)
			if !status.Running {
				pretty.WarnPretty("Daemon is not running")
				return nil
			}
			pretty.Success("Daemon is running")
			pretty.Field("pid", status.PID)
			pretty.Path("socket", status.Socket)
			pretty.Field("projects", len(status.Projects))
			for _, p := range status.Projects {
				pretty.Field("  "+p.Root, fmt.Sprintf("%d client(s)", p.Clients))
			}
			return nil
		},
	}
}

// daemonComponents are the loggers a running daemon writes to.
var daemonComponents = []string{"buildhubd", "state", "broadcast", "watch", "fswatch", "reaper"}

func newDaemonLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon logs",
		Long: `Print today's daemon log files. With --follow, keep printing new entries.

Examples:
  # Follow every daemon component
  buildhub daemon logs -f

  # Only the broadcast hub and the scheduler
  buildhub daemon logs -C broadcast,watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			follow, _ := cmd.Flags().GetBool("follow")
			raw, _ := cmd.Flags().GetBool("raw")
			components, _ := cmd.Flags().GetStringSlice("component")
			if len(components) == 0 {
				components = daemonComponents
			}

			files := make(map[string]string)
			now := time.Now()
			for _, c := range components {
				path := logging.LogFilePath(c, now)
				if _, err := os.Stat(path); err != nil && !follow {
					continue
				}
				files[c] = path
			}
			if len(files) == 0 {
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).InfoPretty("No daemon logs for today")
				return nil
			}
			return tailLogs(cmd.Context(), cmd.OutOrStdout(), files, follow, raw)
		},
	}
	cmd.Flags().BoolP("follow", "f", false, "Follow log output")
	cmd.Flags().Bool("raw", false, "Print entries unformatted")
	cmd.Flags().StringSliceP("component", "C", nil, "Only show these components (comma-separated)")
	return cmd
}

// tailedLine is one line read from a component log.
type tailedLine struct {
	component string
	text      string
	err       error
}

// tailLogs copies every file to w, prefixing each line with its component.
// Without follow it stops once every file reaches end of file.
func tailLogs(ctx context.Context, w io.Writer, files map[string]string, follow, raw bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan tailedLine)
	var tails []*tail.Tail
	defer func() {
		for _, t := range tails {
			_ = t.Stop()
			t.Cleanup()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for component, path := range files {
		t, err := tail.TailFile(path, tail.Config{
			Follow:    follow,
			ReOpen:    follow,
			MustExist: !follow,
			Logger:    stdlog.New(io.Discard, "", 0),
		})
		if err != nil {
			return errors.IO(err, "tail", path)
		}
		tails = append(tails, t)

		g.Go(func() error {
			for line := range t.Lines {
				select {
				case lines <- tailedLine{component: component, text: line.Text, err: line.Err}:
				case <-gctx.Done():
					return nil
				}
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line.err != nil {
				return errors.IO(line.err, "read", files[line.component])
			}
			text := line.text
			if !raw {
				text = logviewer.FormatLogLine(text)
			}
			fmt.Fprintf(w, "%s %s\n", logviewer.SourceLabel(line.component), text)
		}
	}
}
