package cmd

import (
	"fmt"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/logging"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/grovetools/buildhub/pkg/profiling"
	"github.com/spf13/cobra"
)

func addBuildFlags(cmd *cobra.Command) {
	addClientFlags(cmd)
	cmd.Flags().String("configuration", "Debug", "Build configuration")
	cmd.Flags().String("scheme", "", "Build a scheme instead of a target")
	cmd.Flags().Bool("watch", false, "Rebuild whenever project sources change")
	cmd.Flags().Bool("stop", false, "Stop watching this request")
}

// requestFromFlags reads the shared build and run flags. Arguments after
// the target are passed to the build tool.
func requestFromFlags(cmd *cobra.Command, args []string) (models.Client, models.BuildSettings, models.Operation, error) {
	c, err := clientFromFlags(cmd)
	if err != nil {
		return models.Client{}, models.BuildSettings{}, "", err
	}

	configuration, _ := cmd.Flags().GetString("configuration")
	scheme, _ := cmd.Flags().GetString("scheme")
	watch, _ := cmd.Flags().GetBool("watch")
	stop, _ := cmd.Flags().GetBool("stop")

	op := models.OpOnce
	switch {
	case watch && stop:
		return models.Client{}, models.BuildSettings{}, "", errors.InvalidInput("--watch and --stop are mutually exclusive")
	case watch:
		op = models.OpWatch
	case stop:
		op = models.OpStop
	}

	settings := models.BuildSettings{Configuration: configuration, Scheme: scheme}
	if len(args) > 0 {
		settings.Target = args[0]
		settings.Args = args[1:]
	}
	if settings.Target == "" && settings.Scheme == "" {
		return models.Client{}, models.BuildSettings{}, "", errors.InvalidInput("a target or --scheme is required")
	}
	return c, settings, op, nil
}

func describe(op models.Operation, verb string, s models.BuildSettings) string {
	switch op {
	case models.OpWatch:
		return fmt.Sprintf("Watching %s (%s)", s.Target+s.Scheme, verb)
	case models.OpStop:
		return fmt.Sprintf("Stopped watching %s", s.Target+s.Scheme)
	default:
		return fmt.Sprintf("Queued %s of %s", verb, s.Target+s.Scheme)
	}
}

// NewBuildCmd sends a build request to the daemon.
func NewBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [target] [-- build-tool-args...]",
		Short: "Build a target",
		Long: `Build a target of the project at --root. Output is broadcast to every
client attached to the project; use 'buildhub attach' to follow it.

Examples:
  buildhub build App
  buildhub build --scheme App --configuration Release
  buildhub build App --watch
  buildhub build App --stop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, settings, op, err := requestFromFlags(cmd, args)
			if err != nil {
				return err
			}
			client, err := connect()
			if err != nil {
				return err
			}
			defer client.Close()

			req := models.BuildRequest{Client: c, Settings: settings, Operation: op}
			span := profiling.Start("request")
			err = client.Build(cmd.Context(), req)
			span.Stop()
			if err != nil {
				return err
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success(describe(op, "build", settings))
			return nil
		},
	}
	addBuildFlags(cmd)
	return cmd
}

// NewRunCmd sends a run request to the daemon.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [target] [-- build-tool-args...]",
		Short: "Build and launch a target",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, settings, op, err := requestFromFlags(cmd, args)
			if err != nil {
				return err
			}
			device, _ := cmd.Flags().GetString("device")

			client, err := connect()
			if err != nil {
				return err
			}
			defer client.Close()

			req := models.RunRequest{Client: c, Settings: settings, Device: device, Operation: op}
			span := profiling.Start("request")
			err = client.Run(cmd.Context(), req)
			span.Stop()
			if err != nil {
				return err
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success(describe(op, "run", settings))
			return nil
		},
	}
	addBuildFlags(cmd)
	cmd.Flags().String("device", "", "Simulator or device to run on")
	return cmd
}
