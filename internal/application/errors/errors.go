// Package apperrors defines application-level error types.
//
// Every failure surfaced by the store, the network mediator, the capability host
// and the execution engine carries a Kind. Callers classify errors with errors.Is
// against the Err* sentinels, or with KindOf.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is the zero value, used for errors that did not originate here.
	KindUnknown Kind = iota
	// KindNotFound indicates a module or path is missing.
	KindNotFound
	// KindNameCollision indicates the install target is already occupied.
	KindNameCollision
	// KindFetchFailure indicates the artifact could not be retrieved.
	KindFetchFailure
	// KindCompileError indicates malformed module bytes.
	KindCompileError
	// KindLinkError indicates an import/export mismatch.
	KindLinkError
	// KindTrapped indicates a runtime fault during execution.
	KindTrapped
	// KindUnknownScheme indicates no port could be inferred for a URL.
	KindUnknownScheme
	// KindConfigError indicates there is no usable cluster context or home directory.
	KindConfigError
	// KindFilesystemError indicates a store mutation failed.
	KindFilesystemError
	// KindCapabilityDenied indicates an outbound call was rejected by the network mediator.
	KindCapabilityDenied
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown error",
	KindNotFound:         "not found",
	KindNameCollision:    "name collision",
	KindFetchFailure:     "fetch failure",
	KindCompileError:     "compile error",
	KindLinkError:        "link error",
	KindTrapped:          "wasm evaluation error",
	KindUnknownScheme:    "unknown scheme",
	KindConfigError:      "configuration error",
	KindFilesystemError:  "filesystem error",
	KindCapabilityDenied: "capability denied",
}

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure.
type Error struct {
	Err  error
	Op   string // operation that failed, e.g. "store.pull"
	Kind Kind
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrNameCollision    = &Error{Kind: KindNameCollision}
	ErrFetchFailure     = &Error{Kind: KindFetchFailure}
	ErrCompileError     = &Error{Kind: KindCompileError}
	ErrLinkError        = &Error{Kind: KindLinkError}
	ErrTrapped          = &Error{Kind: KindTrapped}
	ErrUnknownScheme    = &Error{Kind: KindUnknownScheme}
	ErrConfigError      = &Error{Kind: KindConfigError}
	ErrFilesystemError  = &Error{Kind: KindFilesystemError}
	ErrCapabilityDenied = &Error{Kind: KindCapabilityDenied}
)

// New creates a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ExitError carries an explicit process exit code requested by a module.
// It is not a failure kind: the CLI exits with Code and prints nothing.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exit status %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
