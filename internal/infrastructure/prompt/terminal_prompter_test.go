package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalPrompter_IsInteractive(t *testing.T) {
	t.Parallel()

	f, err := os.Create(filepath.Join(t.TempDir(), "stdin"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	assert.False(t, (&TerminalPrompter{stdin: f}).IsInteractive(), "regular file")
	assert.False(t, (&TerminalPrompter{}).IsInteractive(), "no stdin")

	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	assert.False(t, (&TerminalPrompter{stdin: r}).IsInteractive(), "pipe")
}

func TestNewTerminalPrompter(t *testing.T) {
	t.Setenv("ACCESSIBLE", "1")

	p := NewTerminalPrompter()
	assert.True(t, p.accessible)
	assert.Same(t, os.Stdin, p.stdin)
}
