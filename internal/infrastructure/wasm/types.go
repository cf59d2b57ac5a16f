// Package wasm runs kubectl plugins compiled to WebAssembly with wazero.
// Each execution gets a fresh runtime, a fresh sandbox context and a single
// pass through the engine state machine.
package wasm

import (
	"fmt"

	"github.com/reglet-dev/krew-wasm/internal/infrastructure/wasm/hostfuncs"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// EngineState is the position of an Engine in its one-shot lifecycle.
type EngineState int

const (
	// StateNotLoaded is the initial state.
	StateNotLoaded EngineState = iota
	// StateLoaded means the module is compiled.
	StateLoaded
	// StateLinked means the module is instantiated against a sandbox context.
	StateLinked
	// StateRunning means _start is executing.
	StateRunning
	// StateFinished means the run produced an outcome.
	StateFinished
	// StateClosed means the runtime was released.
	StateClosed
)

var stateNames = map[EngineState]string{
	StateNotLoaded: "not loaded",
	StateLoaded:    "loaded",
	StateLinked:    "linked",
	StateRunning:   "running",
	StateFinished:  "finished",
	StateClosed:    "closed",
}

// String returns the state name.
func (s EngineState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StartFunction is the entry point every module must export as () -> ().
const StartFunction = "_start"

// providedModules lists the import modules the host satisfies.
var providedModules = map[string]bool{
	wasi_snapshot_preview1.ModuleName: true,
	hostfuncs.NetworkModuleName:       true,
}
