// Package container provides dependency injection for the application.
package container

import (
	"log/slog"

	"github.com/reglet-dev/krew-wasm/internal/application/ports"
	"github.com/reglet-dev/krew-wasm/internal/application/services"
	"github.com/reglet-dev/krew-wasm/internal/infrastructure/kubeconfig"
	"github.com/reglet-dev/krew-wasm/internal/infrastructure/prompt"
	"github.com/reglet-dev/krew-wasm/internal/infrastructure/registry"
	"github.com/reglet-dev/krew-wasm/internal/infrastructure/store"
	"github.com/reglet-dev/krew-wasm/internal/infrastructure/system"
	"github.com/reglet-dev/krew-wasm/internal/infrastructure/wasm"
	"github.com/reglet-dev/krew-wasm/internal/version"
)

// Container holds all application dependencies.
type Container struct {
	config        *system.Config
	store         *store.Store
	launcher      *wasm.Launcher
	moduleService *services.ModuleService
	logger        *slog.Logger
}

// Options configure the container.
type Options struct {
	Logger *slog.Logger
	// Config is the loaded system configuration. Defaults apply when nil.
	Config *system.Config
	// Confirmer overrides the terminal prompter used by rm --interactive.
	Confirmer ports.Confirmer
	// HostOptions are appended to the capability host defaults.
	HostOptions []wasm.HostOption
}

// New creates a new dependency injection container. Nothing touches the
// filesystem or the network until a service method is called.
func New(opts Options) (*Container, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = system.DefaultConfig()
	}
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}

	userAgent := version.Get().UserAgent()

	fetcherOpts := []registry.Option{
		registry.WithUserAgent(userAgent),
		registry.WithLogger(opts.Logger),
		registry.WithPlainHTTP(cfg.Registry.PlainHTTP...),
	}
	if creds, err := registry.DockerCredentialStore(cfg.Registry.DockerConfig); err != nil {
		opts.Logger.Debug("registry credentials unavailable, pulling anonymously", "error", err)
	} else {
		fetcherOpts = append(fetcherOpts, registry.WithCredentialStore(creds))
	}
	fetcher := registry.NewFetcher(fetcherOpts...)

	moduleStore, err := store.New(store.NewLayout(cfg.Store.Root, cfg.Store.BinRoot), fetcher, store.WithLogger(opts.Logger))
	if err != nil {
		return nil, err
	}

	readerOpts := []kubeconfig.Option{kubeconfig.WithLogger(opts.Logger)}
	if cfg.Kubeconfig != "" {
		readerOpts = append(readerOpts, kubeconfig.WithPath(cfg.Kubeconfig))
	}

	hostOpts := append([]wasm.HostOption{
		wasm.WithUserAgent(userAgent),
		wasm.WithHostLogger(opts.Logger),
	}, opts.HostOptions...)
	host := wasm.NewCapabilityHost(kubeconfig.NewReader(readerOpts...), hostOpts...)

	launcher := wasm.NewLauncher(host, wasm.EngineConfig{
		CacheDir:      cfg.CompilationCacheDir(),
		MemoryLimitMB: cfg.Runtime.WasmMemoryLimitMB,
	}, opts.Logger)

	confirmer := opts.Confirmer
	if confirmer == nil {
		confirmer = prompt.NewTerminalPrompter()
	}

	return &Container{
		config:        cfg,
		store:         moduleStore,
		launcher:      launcher,
		moduleService: services.NewModuleService(moduleStore, launcher, confirmer, opts.Logger),
		logger:        opts.Logger,
	}, nil
}

// Config returns the resolved system configuration.
func (c *Container) Config() *system.Config {
	return c.config
}

// Store returns the module store.
func (c *Container) Store() *store.Store {
	return c.store
}

// ModuleService returns the module use cases.
func (c *Container) ModuleService() *services.ModuleService {
	return c.moduleService
}

// Logger returns the application logger.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}
