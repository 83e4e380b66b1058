package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spigell/hh-checkpoint/internal/checkpoint"
)

// Actual version can be specified in build command.
var version = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the checkpoint schema version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s version: %s (checkpoint schema: %d)\n", app, version, checkpoint.SchemaVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
