package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/grovetools/buildhub/cli"
	"github.com/grovetools/buildhub/logging"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/pkg/profiling"
	"github.com/grovetools/buildhub/tui/theme"
	"github.com/spf13/cobra"
)

// NewOpenCmd registers a client with a project.
func NewOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Attach a client to a project",
		Long: `Register a client with the project at --root, opening the project if it is
not already open, and print the broadcast socket the client should read.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			client, err := connect()
			if err != nil {
				return err
			}
			defer client.Close()

			span := profiling.Start("register")
			resp, err := client.Register(cmd.Context(), c)
			span.Stop()
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(resp)
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			pretty.Success(fmt.Sprintf("Registered pid %d", c.PID))
			pretty.Path("root", c.Root)
			pretty.Path("socket", resp.Socket)
			return nil
		},
	}
	addClientFlags(cmd)
	return cmd
}

// NewDropCmd detaches a client from a project.
func NewDropCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Detach a client from a project",
		Long:  "Detach a client. The project closes when its last client is dropped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			client, err := connect()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Drop(cmd.Context(), c); err != nil {
				return err
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).
				Success(fmt.Sprintf("Dropped pid %d from %s", c.PID, c.Root))
			return nil
		},
	}
	addClientFlags(cmd)
	return cmd
}

// NewStateCmd prints the daemon's open projects.
func NewStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "List open projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			defer client.Close()

			projects, err := client.State(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(projects)
			}
			printProjects(cmd, projects)
			return nil
		},
	}
}

func printProjects(cmd *cobra.Command, projects []models.ProjectInfo) {
	out := cmd.OutOrStdout()
	t := theme.DefaultTheme
	if len(projects) == 0 {
		fmt.Fprintln(out, t.Muted.Render("No open projects"))
		return
	}
	for i, p := range projects {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s %s\n", t.Header.Render(p.Name), t.Muted.Render(p.Root))
		fmt.Fprintf(out, "  generator  %s\n", p.Generator)
		fmt.Fprintf(out, "  clients    %d\n", p.Clients)
		fmt.Fprintf(out, "  socket     %s\n", p.Socket)
		if len(p.Targets) > 0 {
			fmt.Fprintf(out, "  targets    %s\n", strings.Join(p.Targets, ", "))
		}
		for _, r := range p.Registrations {
			fmt.Fprintf(out, "  %s %s\n", theme.Icons.Running, r)
		}
	}
}
