// Package store implements the on-disk module store: a canonical area laid out
// by artifact origin, a flat alias directory mapping module names to artifacts,
// and a bin directory of kubectl-<name> launchers pointing back at the host.
package store

import (
	"path/filepath"
	"strings"

	"github.com/reglet-dev/krew-wasm/internal/domain/values"
)

// aliasDirName is the alias directory under the store root.
const aliasDirName = "all"

// Layout is the explicit path configuration of a store.
type Layout struct {
	// StoreRoot holds the canonical area and the alias directory. It is never removed.
	StoreRoot string
	// AliasRoot holds one symlink per installed module.
	AliasRoot string
	// BinRoot holds the kubectl-<name> launcher symlinks.
	BinRoot string
}

// NewLayout returns the layout rooted at storeRoot with launchers in binRoot.
func NewLayout(storeRoot, binRoot string) Layout {
	storeRoot = filepath.Clean(storeRoot)
	return Layout{
		StoreRoot: storeRoot,
		AliasRoot: filepath.Join(storeRoot, aliasDirName),
		BinRoot:   filepath.Clean(binRoot),
	}
}

// AliasPath returns the alias symlink for name.
func (l Layout) AliasPath(name values.ModuleName) string {
	return filepath.Join(l.AliasRoot, name.String())
}

// LauncherPath returns the kubectl-<name> launcher symlink for name.
func (l Layout) LauncherPath(name values.ModuleName) string {
	return filepath.Join(l.BinRoot, name.LauncherName())
}

// InCanonicalArea reports whether path lies strictly below the store root and
// outside the alias directory.
func (l Layout) InCanonicalArea(path string) bool {
	return within(l.StoreRoot, path) && !within(l.AliasRoot, path) && filepath.Clean(path) != l.AliasRoot
}

// DescribeOrigin reconstructs the origin URI of a canonical artifact from its
// path relative to the store root: registry/ghcr.io/org/name:tag becomes
// registry://ghcr.io/org/name:tag. Paths outside the canonical area are
// reported verbatim with a marker.
func (l Layout) DescribeOrigin(target string) string {
	if !l.InCanonicalArea(target) {
		return target + " (not in the store)"
	}

	rel, err := filepath.Rel(l.StoreRoot, target)
	if err != nil {
		return target + " (not in the store)"
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	var b strings.Builder
	b.WriteString(parts[0])
	b.WriteString(":/")
	for _, part := range parts[1:] {
		b.WriteString("/")
		b.WriteString(part)
	}
	return b.String()
}

// within reports whether path is strictly below root.
func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
