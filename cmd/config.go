package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/grovetools/buildhub/cli"
	"github.com/grovetools/buildhub/config"
	"github.com/grovetools/buildhub/errors"
	"github.com/spf13/cobra"
)

// NewConfigCmd groups the configuration commands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect buildhub configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSchemaCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults and environment expansion are applied.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			if cli.GetOptions(cmd).JSONOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
			}
			f := config.Format(format)
			if f != config.FormatTOML && f != config.FormatYAML {
				return errors.InvalidInput(fmt.Sprintf("unknown format %q", format))
			}
			data, err := cfg.Marshal(f)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().String("format", string(config.FormatTOML), "Output format (toml or yaml)")
	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema for buildhub configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path := cli.GetOptions(cmd).ConfigFile; path != "" {
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			}
			path, err := config.FindConfigFile()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
