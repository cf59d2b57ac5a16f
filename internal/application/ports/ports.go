// Package ports defines interfaces for infrastructure dependencies.
// These are the "ports" in hexagonal architecture - abstractions that
// the application layer depends on but doesn't implement.
package ports

import (
	"context"

	"github.com/reglet-dev/krew-wasm/internal/domain/entities"
	"github.com/reglet-dev/krew-wasm/internal/domain/execution"
	"github.com/reglet-dev/krew-wasm/internal/domain/values"
)

// ArtifactFetcher materializes a module artifact on the local filesystem.
type ArtifactFetcher interface {
	// Fetch retrieves uri and places it under destinationRoot, laid out by origin.
	// Artifacts that already live on the local filesystem are not copied; their
	// path is returned as is.
	Fetch(ctx context.Context, uri, destinationRoot string) (string, error)
}

// Cluster is the subset of the active kubeconfig cluster the sandbox needs.
type Cluster struct {
	// Server is the API server URL of the current context's cluster.
	Server string
	// TLSServerName overrides the name used for certificate verification.
	TLSServerName string

	CertificateAuthorityData []byte
	ClientCertificateData    []byte
	ClientKeyData            []byte

	InsecureSkipTLSVerify bool
}

// ClusterConfigReader reads the active cluster configuration.
type ClusterConfigReader interface {
	// CurrentCluster returns the cluster of the current context.
	CurrentCluster(ctx context.Context) (*Cluster, error)
}

// ModuleRepository is the on-disk module store.
type ModuleRepository interface {
	// Pull fetches origin and installs it under the name derived from the artifact.
	Pull(ctx context.Context, origin string, force bool) (values.ModuleName, error)
	// Remove uninstalls a module and prunes empty store directories.
	Remove(name values.ModuleName) error
	// List enumerates installed modules.
	List() ([]entities.InstalledModule, error)
	// Resolve returns the artifact path for an installed module.
	Resolve(name values.ModuleName) (string, error)
}

// ModuleRunner executes a module file inside a freshly built sandbox.
type ModuleRunner interface {
	Run(ctx context.Context, path string, args execution.ArgPolicy) (execution.Outcome, error)
}

// Confirmer asks the user for a yes/no decision.
type Confirmer interface {
	IsInteractive() bool
	Confirm(title, description string) (bool, error)
}
