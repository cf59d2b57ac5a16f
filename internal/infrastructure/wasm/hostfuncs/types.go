// Package hostfuncs provides the host side of the kube_outbound_http module:
// the network mediator, the HTTP transport built on it, and the host function
// guests call to reach the cluster API server.
package hostfuncs

import "context"

type contextKey struct {
	name string
}

var (
	moduleNameKey = &contextKey{name: "module_name"}
	runIDKey      = &contextKey{name: "run_id"}
)

// WithModuleName adds the module name to the context.
func WithModuleName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, moduleNameKey, name)
}

// ModuleNameFromContext retrieves the module name from the context.
func ModuleNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(moduleNameKey).(string)
	return name, ok
}

// WithRunID adds the execution's run ID to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext retrieves the run ID from the context.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok
}
