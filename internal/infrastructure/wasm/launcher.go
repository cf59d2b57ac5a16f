package wasm

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/reglet-dev/krew-wasm/internal/domain/execution"
	"github.com/reglet-dev/krew-wasm/internal/domain/values"
	"github.com/reglet-dev/krew-wasm/internal/infrastructure/wasm/hostfuncs"
)

// Launcher runs module files, one fresh engine and sandbox per call.
// It implements ports.ModuleRunner.
type Launcher struct {
	host   *CapabilityHost
	logger *slog.Logger
	config EngineConfig
}

// NewLauncher creates a launcher.
func NewLauncher(host *CapabilityHost, cfg EngineConfig, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{host: host, config: cfg, logger: logger}
}

// Run executes the module at path. The module is compiled before the sandbox is
// built, so a missing or malformed file is reported ahead of cluster problems.
func (l *Launcher) Run(ctx context.Context, path string, args execution.ArgPolicy) (execution.Outcome, error) {
	runID := values.NewRunID()
	name := strings.TrimSuffix(filepath.Base(path), ".wasm")
	logger := l.logger.With("run_id", runID.String(), "module", name)

	ctx = hostfuncs.WithModuleName(ctx, name)
	ctx = hostfuncs.WithRunID(ctx, runID.String())

	engine, err := NewEngine(l.config, logger)
	if err != nil {
		return execution.Outcome{}, err
	}
	defer func() {
		_ = engine.Close(ctx)
	}()

	if err := engine.Load(ctx, path); err != nil {
		return execution.Outcome{}, err
	}

	sandbox, err := l.host.Build(ctx, args)
	if err != nil {
		return execution.Outcome{}, err
	}

	if err := engine.Link(ctx, sandbox); err != nil {
		return execution.Outcome{}, err
	}

	logger.DebugContext(ctx, "running module", "path", path)
	return engine.Run(ctx)
}
