package main

import (
	"fmt"

	"github.com/reglet-dev/krew-wasm/internal/version"
	"github.com/spf13/cobra"
)

// versionCmd implements the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of krew-wasm",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "krew-wasm version %s\n", version.Get().Full())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
