package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the native command line once, capturing stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	err := executeNative(context.Background(), args)
	return out.String(), err
}

// The command tree and viper are process globals, so this test is not parallel.
func TestNativeCommands(t *testing.T) {
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("KREW_WASM_STORE_ROOT", filepath.Join(root, "store"))
	t.Setenv("KREW_WASM_BIN_ROOT", filepath.Join(root, "bin"))
	t.Setenv("KUBECONFIG", filepath.Join(root, "missing-kubeconfig"))

	config := filepath.Join(root, "config.yaml")
	module := filepath.Join(root, "hello.wasm")
	require.NoError(t, os.WriteFile(module, []byte("not wasm"), 0o600))

	out, err := execute(t, "--config", config, "pull", module)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(root, "bin"))
	assert.Contains(t, out, "kubectl-hello")

	_, err = os.Lstat(filepath.Join(root, "bin", "kubectl-hello"))
	require.NoError(t, err)

	_, err = execute(t, "--config", config, "pull", module)
	assert.ErrorIs(t, err, apperrors.ErrNameCollision)

	out, err = execute(t, "--config", config, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "LOCATION")
	assert.Contains(t, out, module+" (not in the store)")

	out, err = execute(t, "--config", config, "ls", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "hello"`)
	assert.Contains(t, out, `"in_store": false`)

	_, err = execute(t, "--config", config, "run", module, "--", "get", "pods")
	assert.ErrorIs(t, err, apperrors.ErrCompileError)
	assert.Equal(t, 1, exitCodeFor(err))

	out, err = execute(t, "--config", config, "rm", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "module hello removed")

	_, err = execute(t, "--config", config, "rm", "hello")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	out, err = execute(t, "--config", config, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "krew-wasm version")
}
