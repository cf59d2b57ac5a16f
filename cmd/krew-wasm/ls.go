package main

import (
	"fmt"

	"github.com/reglet-dev/krew-wasm/internal/infrastructure/output"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newLsCmd())
}

func newLsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List installed modules",
		Example: `  krew-wasm ls
  krew-wasm ls -o json`,
		Args: cobra.NoArgs,
		RunE: withContainer(func(ctx *CommandContext, cmd *cobra.Command, _ []string) error {
			formatter, err := output.NewFormatterFactory().Create(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			modules, err := ctx.Container.ModuleService().List()
			if err != nil {
				return fmt.Errorf("failed to list modules: %w", err)
			}

			return formatter.Format(modules)
		}),
	}

	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table, json, yaml")

	return cmd
}
