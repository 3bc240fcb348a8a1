package main

import (
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// cfgFile overrides the config file search path.
	cfgFile string
)

// rootCmd is the base command. It carries the global flags and dispatches
// to the subcommands; invoking it without one prints help.
var rootCmd = &cobra.Command{
	Use:   "autolabel",
	Short: "Traffic-scene auto-labeling pipeline",
	Long: `Autolabel labels traffic-scene images and videos with a vision model.

It runs in two modes: "serve" starts the dashboard API with live progress
streaming over WebSocket, "run" executes a single labeling pass over a
batch of images and exits.`,
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default ./autolabel.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
}
