package entities

import "github.com/reglet-dev/krew-wasm/internal/domain/values"

// InstalledModule is one entry of the alias directory.
type InstalledModule struct {
	// Target is the path the alias symlink points at.
	Target string
	// Origin is where the module came from: a URI reconstructed from the
	// canonical store layout, or the target annotated as outside the store.
	Origin string
	Name   values.ModuleName
	// InStore is false for modules added from an arbitrary filesystem location.
	InStore bool
}
