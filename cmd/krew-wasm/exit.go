package main

import (
	"errors"
	"log/slog"

	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
)

// exitCodeFor maps a command result onto the process exit status and reports
// failures on stderr. A module's explicit exit code is passed through silently.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *apperrors.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	slog.Error("command failed", "error", err, "kind", apperrors.KindOf(err).String())
	return 1
}
