package main

import (
	"os"

	"github.com/grovetools/buildhub/cli"
	"github.com/grovetools/buildhub/cmd"
	"github.com/grovetools/buildhub/tui"
)

func main() {
	tui.InitializeTUI()

	rootCmd := cmd.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		_ = cli.NewErrorHandler(verbose).Handle(err)
		os.Exit(1)
	}
}
