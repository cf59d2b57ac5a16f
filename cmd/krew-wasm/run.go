package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <path> [-- args...]",
		Short: "Run a module file without installing it",
		Long: `Run a WebAssembly module straight from the filesystem. The module sees
kubectl-<file name> as its program name followed by args.`,
		Example: `  krew-wasm run ./hello.wasm -- get pods -A`,
		Args:    cobra.MinimumNArgs(1),
		RunE: withContainer(func(ctx *CommandContext, _ *cobra.Command, args []string) error {
			return ctx.Container.ModuleService().RunFile(ctx.Context, args[0], moduleArgs(args[1:]))
		}),
	}

	// Everything after the path belongs to the module.
	cmd.Flags().SetInterspersed(false)

	return cmd
}

// moduleArgs drops the "--" separating the path from the module's arguments.
// With interspersed flags disabled, pflag keeps it once a positional was seen.
func moduleArgs(rest []string) []string {
	if len(rest) > 0 && rest[0] == "--" {
		return rest[1:]
	}
	return rest
}
