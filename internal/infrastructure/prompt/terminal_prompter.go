// Package prompt asks the user for decisions on the terminal.
package prompt

import (
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/huh"
)

// TerminalPrompter confirms destructive actions with a huh form.
// It implements ports.Confirmer.
type TerminalPrompter struct {
	stdin      *os.File
	output     io.Writer
	accessible bool
}

// NewTerminalPrompter creates a prompter reading stdin and drawing on stderr.
// Setting ACCESSIBLE in the environment switches huh to its line-based mode.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		stdin:      os.Stdin,
		output:     os.Stderr,
		accessible: os.Getenv("ACCESSIBLE") != "",
	}
}

// IsInteractive checks if stdin is a terminal.
func (p *TerminalPrompter) IsInteractive() bool {
	if p.stdin == nil {
		return false
	}
	fileInfo, err := p.stdin.Stat()
	if err != nil {
		return false
	}
	// A character device is a terminal; pipes and files are not.
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// Confirm asks a yes/no question. Aborting the form (Ctrl+C, Esc) counts as no.
func (p *TerminalPrompter) Confirm(title, description string) (bool, error) {
	var confirmed bool

	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Affirmative("Remove").
			Negative("Keep").
			Value(&confirmed),
	)).
		WithInput(p.stdin).
		WithOutput(p.output).
		WithAccessible(p.accessible).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return confirmed, nil
}
