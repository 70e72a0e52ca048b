// Package cmd implements the buildhub command tree.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/grovetools/buildhub/cli"
	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/pkg/daemon"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/pkg/profiling"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the buildhub CLI.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"buildhub",
		"Build daemon that shares builds, logs and compile databases across editors",
	)
	root.Long = `buildhub runs a per-user daemon that builds Xcode projects on behalf of
every editor attached to them, broadcasts build output to each attached
client and keeps the compile database used by sourcekit-lsp current.`

	profiler := profiling.NewCobraProfiler()
	profiler.AddFlags(root)
	root.PersistentPreRunE = profiler.PreRun
	root.PersistentPostRun = profiler.PostRun

	root.AddCommand(NewDaemonCmd())
	root.AddCommand(NewOpenCmd())
	root.AddCommand(NewDropCmd())
	root.AddCommand(NewBuildCmd())
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewStateCmd())
	root.AddCommand(NewAttachCmd())
	root.AddCommand(NewConfigCmd())
	root.AddCommand(NewPathsCmd())
	root.AddCommand(cli.NewVersionCommand("buildhub"))

	return root
}

// addClientFlags registers the flags identifying the calling client.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("root", "", "Project root (default: current directory)")
	cmd.Flags().Int("pid", 0, "Client process id (default: parent process)")
}

// clientFromFlags resolves the client identity for a command.
func clientFromFlags(cmd *cobra.Command) (models.Client, error) {
	root, _ := cmd.Flags().GetString("root")
	pid, _ := cmd.Flags().GetInt("pid")

	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return models.Client{}, errors.IO(err, "getwd", ".")
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return models.Client{}, errors.InvalidInput("invalid root: " + err.Error())
	}
	if pid <= 0 {
		pid = os.Getppid()
	}
	return models.Client{PID: pid, Root: abs}, nil
}

// connect dials the running daemon.
func connect() (daemon.Client, error) {
	defer profiling.Start("connect").Stop()
	return daemon.New()
}
