package execution

// ArgPolicy decides the argument vector a plugin sees.
type ArgPolicy struct {
	args    []string
	inherit bool
}

// InheritArgs passes the host process's own argv through unchanged. This is used
// when the host is invoked as kubectl-<name>, so argv[0] is already the plugin name.
func InheritArgs() ArgPolicy {
	return ArgPolicy{inherit: true}
}

// ExplicitArgs uses the given vector, with element 0 forced to launcherName.
func ExplicitArgs(launcherName string, args []string) ArgPolicy {
	vector := make([]string, 0, len(args)+1)
	vector = append(vector, launcherName)
	vector = append(vector, args...)
	return ArgPolicy{args: vector}
}

// Inherit reports whether the host argv is passed through.
func (p ArgPolicy) Inherit() bool {
	return p.inherit
}

// Resolve returns the argument vector for the plugin given the host's argv.
func (p ArgPolicy) Resolve(hostArgs []string) []string {
	if p.inherit {
		return append([]string(nil), hostArgs...)
	}
	return append([]string(nil), p.args...)
}
