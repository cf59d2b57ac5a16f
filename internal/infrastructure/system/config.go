// Package system provides infrastructure for system-level configuration.
// This includes loading the config file (~/.krew-wasm/config.yaml) and
// resolving the default store locations.
package system

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
)

const (
	// BinaryName is the name the host executable is installed as.
	BinaryName = "krew-wasm"

	storeDirName = "krew-wasm-store"
)

// Config represents the global configuration file (~/.krew-wasm/config.yaml).
// It is constructed once at startup and passed to every component that needs it.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Registry RegistryConfig `yaml:"registry"`
	// Kubeconfig overrides $KUBECONFIG and ~/.kube/config.
	Kubeconfig string        `yaml:"kubeconfig"`
	Runtime    RuntimeConfig `yaml:"runtime"`
}

// StoreConfig locates the module store.
type StoreConfig struct {
	// Root holds the canonical area and the "all" alias directory.
	Root string `yaml:"root"`
	// BinRoot holds the kubectl-<name> launcher symlinks; it must be on $PATH.
	BinRoot string `yaml:"bin_root"`
}

// RegistryConfig configures OCI registry access.
type RegistryConfig struct {
	// DockerConfig is the credentials file (default ~/.docker/config.json).
	DockerConfig string `yaml:"docker_config"`
	// PlainHTTP lists registry hosts reached over plain HTTP.
	PlainHTTP []string `yaml:"plain_http"`
}

// RuntimeConfig configures the WASM runtime.
type RuntimeConfig struct {
	// WasmMemoryLimitMB: 0 = default (256MB), -1 = unlimited.
	WasmMemoryLimitMB int `yaml:"wasm_memory_limit_mb"`
	// CompilationCache enables the on-disk compilation cache under the store root.
	CompilationCache bool `yaml:"compilation_cache"`
}

// ConfigLoader loads system configuration from disk.
type ConfigLoader struct{}

// NewConfigLoader creates a new system config loader.
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// DefaultConfig returns a Config with safe defaults for all fields.
// This is used when no system config file exists.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			PlainHTTP: []string{},
		},
		Runtime: RuntimeConfig{
			WasmMemoryLimitMB: 0, // 0 means use runtime default
			CompilationCache:  true,
		},
	}
}

// DefaultConfigPath returns ~/.krew-wasm/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", apperrors.New(apperrors.KindConfigError, "system.config", fmt.Errorf("cannot find home directory: %w", err))
	}
	return filepath.Join(home, "."+BinaryName, "config.yaml"), nil
}

// Load loads the system configuration from the specified path and checks it
// against the config schema.
// If the file does not exist, returns DefaultConfig() with safe defaults.
func (l *ConfigLoader) Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	//nolint:gosec // G304: path is user-provided config file, validated to exist above
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}
	if err := validateConfigDocument(data); err != nil {
		return nil, apperrors.New(apperrors.KindConfigError, "system.config", fmt.Errorf("%s: %w", path, err))
	}

	return config, nil
}

// ResolvePaths fills in the default store locations for any path left empty:
// the store root under the user cache directory, the bin root under ~/.krew-wasm.
func (c *Config) ResolvePaths() error {
	if c.Store.Root == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return apperrors.New(apperrors.KindConfigError, "system.config", fmt.Errorf("cannot find cache directory: %w", err))
		}
		c.Store.Root = filepath.Join(cacheDir, BinaryName, storeDirName)
	}

	if c.Store.BinRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return apperrors.New(apperrors.KindConfigError, "system.config", fmt.Errorf("cannot find home directory: %w", err))
		}
		c.Store.BinRoot = filepath.Join(home, "."+BinaryName, "bin")
	}

	var err error
	if c.Store.Root, err = filepath.Abs(c.Store.Root); err != nil {
		return apperrors.New(apperrors.KindConfigError, "system.config", err)
	}
	if c.Store.BinRoot, err = filepath.Abs(c.Store.BinRoot); err != nil {
		return apperrors.New(apperrors.KindConfigError, "system.config", err)
	}

	return nil
}

// CompilationCacheDir returns the wazero compilation cache directory, or "" when disabled.
func (c *Config) CompilationCacheDir() string {
	if !c.Runtime.CompilationCache || c.Store.Root == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(c.Store.Root), "compilation-cache")
}
