package values

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LauncherPrefix is prepended to a module name to form the kubectl plugin executable name.
const LauncherPrefix = "kubectl-"

// ModuleName represents a validated module identifier.
// Module names are store-unique and become file names, so they may not
// contain path separators.
type ModuleName struct {
	value string
}

// NewModuleName creates a ModuleName with validation
func NewModuleName(name string) (ModuleName, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ModuleName{}, fmt.Errorf("module name cannot be empty")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return ModuleName{}, fmt.Errorf("invalid module name %q", name)
	}
	return ModuleName{value: name}, nil
}

// MustNewModuleName creates a ModuleName or panics
func MustNewModuleName(name string) ModuleName {
	mn, err := NewModuleName(name)
	if err != nil {
		panic(err)
	}
	return mn
}

// ModuleNameFromArtifact derives a module name from the base name of a fetched
// artifact: a trailing ":<tag>" is removed, then a ".wasm" extension.
//
//	pod-privileged:v0.1.9 -> pod-privileged
//	hello.wasm            -> hello
func ModuleNameFromArtifact(path string) (ModuleName, error) {
	base := filepath.Base(path)
	if idx := strings.LastIndex(base, ":"); idx >= 0 && idx < len(base)-1 {
		base = base[:idx]
	}
	base = strings.TrimSuffix(base, ".wasm")
	return NewModuleName(base)
}

// ModuleNameFromLauncher derives the module name from the executable name the
// host was invoked as (argv[0]). Names without the kubectl- prefix are used as is.
func ModuleNameFromLauncher(argv0 string) (ModuleName, error) {
	base := filepath.Base(argv0)
	return NewModuleName(strings.TrimPrefix(base, LauncherPrefix))
}

// LauncherNameForFile returns the argv[0] a plugin run straight from a file sees:
// the file name without ".wasm", prefixed with kubectl- unless it already is.
func LauncherNameForFile(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".wasm")
	if strings.HasPrefix(name, LauncherPrefix) {
		return name
	}
	return LauncherPrefix + name
}

// String returns the string representation
func (m ModuleName) String() string {
	return m.value
}

// LauncherName returns the kubectl plugin executable name, kubectl-<name>.
func (m ModuleName) LauncherName() string {
	return LauncherPrefix + m.value
}
