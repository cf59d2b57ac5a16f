package main

import (
	"path/filepath"
	"strings"

	"github.com/reglet-dev/krew-wasm/internal/infrastructure/system"
)

// InvocationMode is how the process was started. It is resolved once from argv[0].
type InvocationMode int

const (
	// ModeNative is the krew-wasm command line.
	ModeNative InvocationMode = iota
	// ModeWrapper is an invocation through a kubectl-<name> launcher symlink.
	ModeWrapper
)

// String returns the mode name.
func (m InvocationMode) String() string {
	if m == ModeWrapper {
		return "wrapper"
	}
	return "native"
}

// ResolveMode returns ModeNative when the executable name is krew-wasm and
// ModeWrapper for any other name.
func ResolveMode(argv0 string) InvocationMode {
	base := strings.TrimSuffix(filepath.Base(argv0), ".exe")
	if base == system.BinaryName {
		return ModeNative
	}
	return ModeWrapper
}
