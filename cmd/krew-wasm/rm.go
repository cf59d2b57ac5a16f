package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRmCmd())
}

func newRmCmd() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:     "rm <name>",
		Short:   "Remove a module from the store",
		Example: `  krew-wasm rm pod-privileged`,
		Args:    cobra.ExactArgs(1),
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
			removed, err := ctx.Container.ModuleService().Remove(ctx.Context, args[0], interactive)
			if err != nil {
				return fmt.Errorf("failed to remove module: %w", err)
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "module %s removed\n", args[0])
			}
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask for confirmation before removing")

	return cmd
}
