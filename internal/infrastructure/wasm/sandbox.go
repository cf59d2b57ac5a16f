package wasm

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"github.com/reglet-dev/krew-wasm/internal/application/ports"
	"github.com/reglet-dev/krew-wasm/internal/domain/execution"
	"github.com/reglet-dev/krew-wasm/internal/infrastructure/wasm/hostfuncs"
	"github.com/tetratelabs/wazero"
)

// SandboxContext is the capability bundle of one execution. It is immutable
// once built and used for exactly one run.
type SandboxContext struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Network backs the kube_outbound_http host module.
	Network *hostfuncs.Network
	// Endpoint is the single destination Network may reach.
	Endpoint hostfuncs.Endpoint

	// Home is pre-opened at the same path inside the guest.
	Home string
	Args []string
	Env  []string
}

// moduleConfig builds the wazero module configuration for the sandbox.
// Start functions are disabled: _start is invoked explicitly by Run.
func (s *SandboxContext) moduleConfig(name string) wazero.ModuleConfig {
	config := wazero.NewModuleConfig().
		WithName(name).
		WithArgs(s.Args...).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(s.Home, s.Home)).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader).
		WithStdin(s.Stdin).
		WithStdout(s.Stdout).
		WithStderr(s.Stderr).
		WithStartFunctions()

	for _, kv := range s.Env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		config = config.WithEnv(key, value)
	}

	return config
}

// CapabilityHost assembles sandbox contexts.
type CapabilityHost struct {
	clusters  ports.ClusterConfigReader
	homeDir   func() (string, error)
	environ   func() []string
	hostArgs  func() []string
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	logger    *slog.Logger
	userAgent string
}

// HostOption configures a CapabilityHost.
type HostOption func(*CapabilityHost)

// WithHomeDir overrides the home directory lookup.
func WithHomeDir(fn func() (string, error)) HostOption {
	return func(h *CapabilityHost) {
		h.homeDir = fn
	}
}

// WithEnviron overrides the environment snapshot source.
func WithEnviron(fn func() []string) HostOption {
	return func(h *CapabilityHost) {
		h.environ = fn
	}
}

// WithHostArgs overrides the host argv used by InheritArgs.
func WithHostArgs(fn func() []string) HostOption {
	return func(h *CapabilityHost) {
		h.hostArgs = fn
	}
}

// WithStdio sets the streams handed to the guest.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) HostOption {
	return func(h *CapabilityHost) {
		h.stdin, h.stdout, h.stderr = stdin, stdout, stderr
	}
}

// WithUserAgent sets the default User-Agent of outbound requests.
func WithUserAgent(ua string) HostOption {
	return func(h *CapabilityHost) {
		h.userAgent = ua
	}
}

// WithHostLogger sets the logger.
func WithHostLogger(logger *slog.Logger) HostOption {
	return func(h *CapabilityHost) {
		h.logger = logger
	}
}

// NewCapabilityHost creates a capability host reading the cluster from clusters.
// By default the sandbox inherits the process's home, environment, argv and stdio.
func NewCapabilityHost(clusters ports.ClusterConfigReader, opts ...HostOption) *CapabilityHost {
	h := &CapabilityHost{
		clusters: clusters,
		homeDir:  os.UserHomeDir,
		environ:  os.Environ,
		hostArgs: func() []string { return os.Args },
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Build assembles the sandbox context of one execution. The allowed network
// endpoint is computed fresh from the current cluster configuration.
func (h *CapabilityHost) Build(ctx context.Context, policy execution.ArgPolicy) (*SandboxContext, error) {
	const op = "sandbox.build"

	home, err := h.homeDir()
	if err != nil || home == "" {
		return nil, apperrors.New(apperrors.KindConfigError, op, fmt.Errorf("cannot find home directory: %w", err))
	}

	cluster, err := h.clusters.CurrentCluster(ctx)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindUnknown {
			return nil, apperrors.New(apperrors.KindConfigError, op, err)
		}
		return nil, err
	}

	mediator, err := hostfuncs.NewMediator(cluster.Server)
	if err != nil {
		return nil, err
	}

	client, err := hostfuncs.NewHTTPClient(cluster, mediator)
	if err != nil {
		return nil, err
	}

	logger := h.logger
	if id, ok := hostfuncs.RunIDFromContext(ctx); ok {
		logger = logger.With("run_id", id)
	}

	sandbox := &SandboxContext{
		Home:     home,
		Args:     policy.Resolve(h.hostArgs()),
		Env:      append([]string(nil), h.environ()...),
		Stdin:    h.stdin,
		Stdout:   h.stdout,
		Stderr:   h.stderr,
		Network:  hostfuncs.NewNetwork(client, h.userAgent, logger),
		Endpoint: mediator.AllowedEndpoint(),
	}

	logger.DebugContext(ctx, "sandbox built",
		"home", sandbox.Home,
		"args", len(sandbox.Args),
		"inherit_args", policy.Inherit(),
		"endpoint", sandbox.Endpoint.String())

	return sandbox, nil
}
