// Package execution models a single sandboxed plugin run: the argument policy
// it is started with and the way it terminated.
package execution

import "fmt"

// OutcomeKind is the terminal state of a run.
type OutcomeKind int

const (
	// ExitedCleanly means the entry point returned, or the program exited with status 0.
	ExitedCleanly OutcomeKind = iota
	// ExitedWithCode means the program requested termination with a non-zero status.
	ExitedWithCode
	// Trapped means any other abnormal termination.
	Trapped
)

// String returns the outcome kind name.
func (k OutcomeKind) String() string {
	switch k {
	case ExitedCleanly:
		return "exited cleanly"
	case ExitedWithCode:
		return "exited with code"
	case Trapped:
		return "trapped"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome describes how a plugin run terminated.
type Outcome struct {
	// Reason is a human-readable diagnostic, set for Trapped.
	Reason string
	Kind   OutcomeKind
	// Code is the status the program passed to its exit call.
	Code int
}

// Clean returns the outcome of a run whose entry point returned normally.
func Clean() Outcome {
	return Outcome{Kind: ExitedCleanly}
}

// Exited returns the outcome of an explicit exit. Status 0 is a clean exit.
func Exited(code int) Outcome {
	if code == 0 {
		return Clean()
	}
	return Outcome{Kind: ExitedWithCode, Code: code}
}

// Trap returns the outcome of an abnormal termination.
func Trap(reason string) Outcome {
	return Outcome{Kind: Trapped, Reason: reason}
}

// ExitCode maps the outcome onto the host process exit status:
// 0 when clean, the program's own code on explicit exit, 1 for a trap.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case ExitedCleanly:
		return 0
	case ExitedWithCode:
		return o.Code
	default:
		return 1
	}
}

// String describes the outcome.
func (o Outcome) String() string {
	switch o.Kind {
	case ExitedWithCode:
		return fmt.Sprintf("plugin exited with code %d", o.Code)
	case Trapped:
		return "wasm evaluation error: " + o.Reason
	default:
		return o.Kind.String()
	}
}
