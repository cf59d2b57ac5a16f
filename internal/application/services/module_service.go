package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"github.com/reglet-dev/krew-wasm/internal/application/ports"
	"github.com/reglet-dev/krew-wasm/internal/domain/entities"
	"github.com/reglet-dev/krew-wasm/internal/domain/execution"
	"github.com/reglet-dev/krew-wasm/internal/domain/values"
)

// ModuleService orchestrates the module use cases shared by the native
// command line and the kubectl-<name> wrapper mode.
type ModuleService struct {
	repository ports.ModuleRepository
	runner     ports.ModuleRunner
	confirmer  ports.Confirmer
	logger     *slog.Logger
}

// NewModuleService creates a module service. confirmer may be nil, in which
// case interactive removal behaves like a plain removal.
func NewModuleService(
	repository ports.ModuleRepository,
	runner ports.ModuleRunner,
	confirmer ports.Confirmer,
	logger *slog.Logger,
) *ModuleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModuleService{
		repository: repository,
		runner:     runner,
		confirmer:  confirmer,
		logger:     logger,
	}
}

// Pull fetches origin and installs it. It returns the installed module name.
func (s *ModuleService) Pull(ctx context.Context, origin string, force bool) (values.ModuleName, error) {
	name, err := s.repository.Pull(ctx, origin, force)
	if err != nil {
		return values.ModuleName{}, err
	}
	s.logger.InfoContext(ctx, "module installed", "name", name.String(), "origin", origin, "force", force)
	return name, nil
}

// Remove uninstalls the module called name. With interactive set and a
// terminal attached, the user is asked first; removed is false if they decline.
func (s *ModuleService) Remove(ctx context.Context, name string, interactive bool) (removed bool, err error) {
	moduleName, err := parseName("services.remove", name)
	if err != nil {
		return false, err
	}

	if interactive && s.confirmer != nil && s.confirmer.IsInteractive() {
		target, err := s.repository.Resolve(moduleName)
		if err != nil {
			return false, err
		}
		ok, err := s.confirmer.Confirm(
			fmt.Sprintf("Remove %s?", moduleName.LauncherName()),
			fmt.Sprintf("Module %q points at %s", moduleName, target),
		)
		if err != nil {
			return false, fmt.Errorf("confirmation failed: %w", err)
		}
		if !ok {
			s.logger.InfoContext(ctx, "removal cancelled", "name", moduleName.String())
			return false, nil
		}
	}

	if err := s.repository.Remove(moduleName); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "module removed", "name", moduleName.String())
	return true, nil
}

// List returns the installed modules sorted by name.
func (s *ModuleService) List() ([]entities.InstalledModule, error) {
	return s.repository.List()
}

// RunInstalled runs an installed module with the host's own argv. This is the
// wrapper-mode entry point: argv[0] is already kubectl-<name>.
func (s *ModuleService) RunInstalled(ctx context.Context, name values.ModuleName) error {
	path, err := s.repository.Resolve(name)
	if err != nil {
		return err
	}
	return s.run(ctx, path, execution.InheritArgs())
}

// RunFile runs the module file at path with args. The module sees
// kubectl-<file name> as argv[0].
func (s *ModuleService) RunFile(ctx context.Context, path string, args []string) error {
	return s.run(ctx, path, execution.ExplicitArgs(values.LauncherNameForFile(path), args))
}

func (s *ModuleService) run(ctx context.Context, path string, args execution.ArgPolicy) error {
	outcome, err := s.runner.Run(ctx, path, args)
	if err != nil {
		return err
	}
	return OutcomeError(outcome)
}

// OutcomeError converts a run outcome into the error the command line exits
// with: nil when clean, an *apperrors.ExitError carrying the module's own code,
// or a Trapped error.
func OutcomeError(outcome execution.Outcome) error {
	switch outcome.Kind {
	case execution.ExitedCleanly:
		return nil
	case execution.ExitedWithCode:
		return &apperrors.ExitError{Code: outcome.Code}
	default:
		return apperrors.New(apperrors.KindTrapped, "", errors.New(outcome.Reason))
	}
}

func parseName(op, raw string) (values.ModuleName, error) {
	name, err := values.NewModuleName(raw)
	if err != nil {
		return values.ModuleName{}, apperrors.New(apperrors.KindNotFound, op, err)
	}
	return name, nil
}
