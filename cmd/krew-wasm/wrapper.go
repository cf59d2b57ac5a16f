package main

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"github.com/reglet-dev/krew-wasm/internal/domain/values"
	"github.com/spf13/viper"
)

// runWrapper runs the installed module named by argv0 (kubectl-<name>) with the
// process's own argv. There is no flag parsing: every argument belongs to the module.
func runWrapper(ctx context.Context, argv0 string) error {
	initConfig()
	setupLogging(viper.GetBool("verbose"))

	name, err := values.ModuleNameFromLauncher(argv0)
	if err != nil {
		return apperrors.New(apperrors.KindNotFound, "wrapper", err)
	}

	c, err := newContainer()
	if err != nil {
		return err
	}

	err = c.ModuleService().RunInstalled(ctx, name)
	if errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("cannot find wasm plugin %s at %s, use `krew-wasm pull` to pull it to the store: %w",
			name, c.Store().Layout().AliasPath(name), err)
	}
	return err
}
