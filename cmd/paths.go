package cmd

import (
	"encoding/json"

	"github.com/grovetools/buildhub/cli"
	"github.com/grovetools/buildhub/logging"
	"github.com/grovetools/buildhub/pkg/paths"
	"github.com/spf13/cobra"
)

type pathEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func buildhubPaths() []pathEntry {
	return []pathEntry{
		{"config", paths.ConfigDir()},
		{"state", paths.StateDir()},
		{"cache", paths.CacheDir()},
		{"logs", paths.LogDir()},
		{"runtime", paths.RuntimeDir()},
		{"broadcast", paths.BroadcastDir()},
		{"socket", paths.SocketPath()},
		{"pidfile", paths.PidFilePath()},
	}
}

// NewPathsCmd prints the directories and files buildhub uses.
func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print buildhub directories",
		Long:  "Print the directories and files buildhub uses. BUILDHUB_HOME relocates all of them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := buildhubPaths()
			if cli.GetOptions(cmd).JSONOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			for _, e := range entries {
				pretty.Path(e.Name, e.Path)
			}
			return nil
		},
	}
}
