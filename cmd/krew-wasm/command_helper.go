package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/krew-wasm/internal/infrastructure/container"
	"github.com/spf13/cobra"
)

// CommandContext provides common command dependencies.
type CommandContext struct {
	Container *container.Container
	Logger    *slog.Logger
	Context   context.Context
}

// CommandHandler is a function that executes with initialized dependencies.
type CommandHandler func(*CommandContext, *cobra.Command, []string) error

// withContainer wraps a command handler with config loading and container
// initialization.
func withContainer(handler CommandHandler) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newContainer()
		if err != nil {
			return err
		}

		return handler(&CommandContext{
			Container: c,
			Logger:    c.Logger(),
			Context:   cmd.Context(),
		}, cmd, args)
	}
}

// newContainer builds the container from the loaded configuration and creates
// the store directories.
func newContainer() (*container.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	c, err := container.New(container.Options{
		Config: cfg,
		Logger: slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := c.Store().Ensure(); err != nil {
		return nil, err
	}
	return c, nil
}
