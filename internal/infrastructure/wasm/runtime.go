package wasm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"github.com/reglet-dev/krew-wasm/internal/domain/execution"
	"github.com/reglet-dev/krew-wasm/internal/infrastructure/wasm/hostfuncs"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// EngineConfig configures the runtime of an execution.
type EngineConfig struct {
	// CacheDir enables the on-disk compilation cache when set.
	CacheDir string
	// MemoryLimitMB: 0 = default (256MB), -1 = unlimited, >0 = explicit limit.
	MemoryLimitMB int
}

// Engine loads, links and runs a single module. It is one-shot and
// forward-only: NotLoaded -> Loaded -> Linked -> Running -> Finished.
type Engine struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule
	module   api.Module
	logger   *slog.Logger
	name     string
	config   EngineConfig
	state    EngineState
}

// NewEngine validates cfg and returns an engine in the NotLoaded state.
func NewEngine(cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch {
	case cfg.MemoryLimitMB == 0:
		cfg.MemoryLimitMB = 256
		logger.Debug("using default WASM memory limit", "mb", cfg.MemoryLimitMB)
	case cfg.MemoryLimitMB == -1:
		logger.Warn("WASM memory limit disabled (unlimited memory)")
	case cfg.MemoryLimitMB > 0:
		if cfg.MemoryLimitMB < 64 {
			logger.Warn("WASM memory limit very low, modules may fail", "mb", cfg.MemoryLimitMB)
		}
	default:
		return nil, apperrors.Newf(apperrors.KindConfigError, "engine.new", "invalid WASM memory limit: %d (must be >= -1)", cfg.MemoryLimitMB)
	}

	return &Engine{config: cfg, logger: logger, state: StateNotLoaded}, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() EngineState {
	return e.state
}

func (e *Engine) expect(op string, want EngineState) error {
	if e.state != want {
		return fmt.Errorf("%s: engine is %s, want %s", op, e.state, want)
	}
	return nil
}

// Load reads and compiles the module at path.
func (e *Engine) Load(ctx context.Context, path string) error {
	const op = "engine.load"
	if err := e.expect(op, StateNotLoaded); err != nil {
		return err
	}

	//nolint:gosec // G304: path is a module the user installed or named explicitly
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.New(apperrors.KindNotFound, op, fmt.Errorf("cannot find %s", path))
		}
		return apperrors.New(apperrors.KindFilesystemError, op, err)
	}

	e.runtime = wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig(ctx))

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = e.Close(ctx)
		return apperrors.New(apperrors.KindCompileError, op, fmt.Errorf("%s: %w", path, err))
	}

	e.compiled = compiled
	e.name = strings.TrimSuffix(filepath.Base(path), ".wasm")
	e.state = StateLoaded
	e.logger.DebugContext(ctx, "module compiled", "path", path, "imports", len(compiled.ImportedFunctions()))
	return nil
}

func (e *Engine) runtimeConfig(ctx context.Context) wazero.RuntimeConfig {
	config := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	if e.config.MemoryLimitMB > 0 {
		// 1 page = 64KB, so 1 MB = 16 pages.
		config = config.WithMemoryLimitPages(uint32(e.config.MemoryLimitMB * 16)) //nolint:gosec // G115: bounded by config validation
	}

	if e.config.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(e.config.CacheDir)
		if err != nil {
			e.logger.WarnContext(ctx, "compilation cache disabled", "dir", e.config.CacheDir, "error", err)
		} else {
			e.cache = cache
			config = config.WithCompilationCache(cache)
		}
	}

	return config
}

// Link instantiates WASI, the network host module and the module itself
// against sandbox. Every import must be provided by one of the host modules.
func (e *Engine) Link(ctx context.Context, sandbox *SandboxContext) error {
	const op = "engine.link"
	if err := e.expect(op, StateLoaded); err != nil {
		return err
	}

	for _, def := range e.compiled.ImportedFunctions() {
		moduleName, name, _ := def.Import()
		if !providedModules[moduleName] {
			return apperrors.Newf(apperrors.KindLinkError, op, "unresolved import %s.%s", moduleName, name)
		}
	}
	if memories := e.compiled.ImportedMemories(); len(memories) > 0 {
		moduleName, name, _ := memories[0].Import()
		return apperrors.Newf(apperrors.KindLinkError, op, "unresolved memory import %s.%s", moduleName, name)
	}

	start, ok := e.compiled.ExportedFunctions()[StartFunction]
	if !ok {
		return apperrors.Newf(apperrors.KindLinkError, op, "module does not export %s", StartFunction)
	}
	if len(start.ParamTypes()) != 0 || len(start.ResultTypes()) != 0 {
		return apperrors.Newf(apperrors.KindLinkError, op, "%s must take no parameters and return no results", StartFunction)
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
		return apperrors.New(apperrors.KindLinkError, op, fmt.Errorf("failed to instantiate WASI: %w", err))
	}
	if err := hostfuncs.RegisterNetwork(ctx, e.runtime, sandbox.Network); err != nil {
		return apperrors.New(apperrors.KindLinkError, op, fmt.Errorf("failed to register host functions: %w", err))
	}

	module, err := e.runtime.InstantiateModule(ctx, e.compiled, sandbox.moduleConfig(e.name))
	if err != nil {
		return apperrors.New(apperrors.KindLinkError, op, err)
	}

	e.module = module
	e.state = StateLinked
	return nil
}

// Run invokes _start and maps its termination to an outcome.
func (e *Engine) Run(ctx context.Context) (execution.Outcome, error) {
	const op = "engine.run"
	if err := e.expect(op, StateLinked); err != nil {
		return execution.Outcome{}, err
	}

	e.state = StateRunning
	_, err := e.module.ExportedFunction(StartFunction).Call(ctx)
	e.state = StateFinished

	outcome := outcomeOf(ctx, err)
	e.logger.DebugContext(ctx, "module finished", "outcome", outcome.String())
	return outcome, nil
}

// outcomeOf classifies the error returned by _start. The codes wazero uses
// for cancellation are only treated as such when ctx is done; a guest may
// pass the same values to proc_exit.
func outcomeOf(ctx context.Context, err error) execution.Outcome {
	if err == nil {
		return execution.Clean()
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if ctx.Err() != nil {
			switch code {
			case sys.ExitCodeContextCanceled:
				return execution.Trap("execution cancelled")
			case sys.ExitCodeDeadlineExceeded:
				return execution.Trap("execution deadline exceeded")
			}
		}
		return execution.Exited(int(int32(code)))
	}

	return execution.Trap(err.Error())
}

// Close releases the runtime. It is safe to call in any state.
func (e *Engine) Close(ctx context.Context) error {
	var err error
	if e.runtime != nil {
		err = e.runtime.Close(ctx)
		e.runtime = nil
	}
	if e.cache != nil {
		err = errors.Join(err, e.cache.Close(ctx))
		e.cache = nil
	}
	e.state = StateClosed
	return err
}
