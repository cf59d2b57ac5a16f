package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newPullCmd())
}

func newPullCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "pull <uri>",
		Short: "Pull a module into the store",
		Long: `Pull a WebAssembly module and install it under the name derived from the
artifact: its file name without tag and .wasm extension.

Supported origins are OCI registries (registry://), HTTP(S) downloads and
local files, which are linked in place instead of copied.`,
		Example: `  # Pull from an OCI registry
  krew-wasm pull registry://ghcr.io/krew-wasm/plugins/pod-privileged:v0.1.0

  # Replace an installed module with the same name
  krew-wasm pull -f https://example.com/plugins/hello.wasm

  # Install a local build
  krew-wasm pull ./target/wasm32-wasip1/release/hello.wasm`,
		Args: cobra.ExactArgs(1),
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			name, err := ctx.Container.ModuleService().Pull(ctx.Context, args[0], force)
			if err != nil {
				return fmt.Errorf("failed to pull module: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"module was pulled successfully. Make sure to add %s to your $PATH so that `kubectl` can find the %s plugin\n",
				ctx.Container.Config().Store.BinRoot, name.LauncherName())
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an installed module with the same name")

	return cmd
}
