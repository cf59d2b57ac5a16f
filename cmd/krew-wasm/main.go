// Command krew-wasm pulls kubectl plugins compiled to WebAssembly and runs them
// in a sandbox that may only talk to the current cluster's API server.
//
// The binary has two personalities. Invoked as krew-wasm it is a store manager
// (pull, rm, ls, run). Invoked through a kubectl-<name> symlink it runs the
// installed module <name> with its own argv.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var err error
	switch ResolveMode(os.Args[0]) {
	case ModeWrapper:
		err = runWrapper(ctx, os.Args[0])
	default:
		err = executeNative(ctx, os.Args[1:])
	}

	stop()
	os.Exit(exitCodeFor(err))
}
