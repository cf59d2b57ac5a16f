// Package kubeconfig reads the active cluster from kubeconfig files.
package kubeconfig

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"github.com/reglet-dev/krew-wasm/internal/application/ports"
)

// EnvVar is the environment variable holding the kubeconfig search list.
const EnvVar = "KUBECONFIG"

const op = "kubeconfig.current_cluster"

// file is the subset of a kubeconfig document that is read.
type file struct {
	CurrentContext string         `yaml:"current-context"`
	Clusters       []namedCluster `yaml:"clusters"`
	Contexts       []namedContext `yaml:"contexts"`
	Users          []namedUser    `yaml:"users"`
}

type namedCluster struct {
	Name    string  `yaml:"name"`
	Cluster cluster `yaml:"cluster"`
}

type cluster struct {
	Server                   string `yaml:"server"`
	TLSServerName            string `yaml:"tls-server-name"`
	CertificateAuthority     string `yaml:"certificate-authority"`
	CertificateAuthorityData string `yaml:"certificate-authority-data"`
	InsecureSkipTLSVerify    bool   `yaml:"insecure-skip-tls-verify"`
}

type namedContext struct {
	Name    string      `yaml:"name"`
	Context contextSpec `yaml:"context"`
}

type contextSpec struct {
	Cluster string `yaml:"cluster"`
	User    string `yaml:"user"`
}

type namedUser struct {
	Name string `yaml:"name"`
	User user   `yaml:"user"`
}

type user struct {
	ClientCertificate     string `yaml:"client-certificate"`
	ClientCertificateData string `yaml:"client-certificate-data"`
	ClientKey             string `yaml:"client-key"`
	ClientKeyData         string `yaml:"client-key-data"`
}

// located remembers the directory of the file an entry came from, so relative
// file references resolve against it.
type located[T any] struct {
	value T
	dir   string
}

// merged is the first-wins union of every kubeconfig in the search list.
type merged struct {
	clusters       map[string]located[cluster]
	contexts       map[string]contextSpec
	users          map[string]located[user]
	currentContext string
}

// Reader implements ports.ClusterConfigReader over kubeconfig files.
type Reader struct {
	logger   *slog.Logger
	getenv   func(string) string
	homeDir  func() (string, error)
	explicit string
}

// Option configures a Reader.
type Option func(*Reader)

// WithPath reads exactly path, ignoring $KUBECONFIG.
func WithPath(path string) Option {
	return func(r *Reader) {
		r.explicit = path
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithEnvironment overrides environment and home directory lookups.
func WithEnvironment(getenv func(string) string, homeDir func() (string, error)) Option {
	return func(r *Reader) {
		r.getenv = getenv
		r.homeDir = homeDir
	}
}

// NewReader creates a kubeconfig reader.
func NewReader(opts ...Option) *Reader {
	r := &Reader{
		logger:  slog.Default(),
		getenv:  os.Getenv,
		homeDir: os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CurrentCluster returns the cluster referenced by the current context.
func (r *Reader) CurrentCluster(ctx context.Context) (*ports.Cluster, error) {
	paths, err := r.searchPaths()
	if err != nil {
		return nil, err
	}

	m, err := r.load(ctx, paths)
	if err != nil {
		return nil, err
	}

	if m.currentContext == "" {
		return nil, apperrors.Newf(apperrors.KindConfigError, op, "no current-context set in %v", paths)
	}
	kctx, ok := m.contexts[m.currentContext]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindConfigError, op, "context %q not found", m.currentContext)
	}
	c, ok := m.clusters[kctx.Cluster]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindConfigError, op, "cluster %q of context %q not found", kctx.Cluster, m.currentContext)
	}
	if c.value.Server == "" {
		return nil, apperrors.Newf(apperrors.KindConfigError, op, "cluster %q has no server", kctx.Cluster)
	}

	out := &ports.Cluster{
		Server:                c.value.Server,
		TLSServerName:         c.value.TLSServerName,
		InsecureSkipTLSVerify: c.value.InsecureSkipTLSVerify,
	}
	if out.CertificateAuthorityData, err = dataOrFile(c.value.CertificateAuthorityData, c.value.CertificateAuthority, c.dir); err != nil {
		return nil, apperrors.New(apperrors.KindConfigError, op, fmt.Errorf("cluster %q certificate authority: %w", kctx.Cluster, err))
	}

	if u, ok := m.users[kctx.User]; ok {
		if out.ClientCertificateData, err = dataOrFile(u.value.ClientCertificateData, u.value.ClientCertificate, u.dir); err != nil {
			return nil, apperrors.New(apperrors.KindConfigError, op, fmt.Errorf("user %q client certificate: %w", kctx.User, err))
		}
		if out.ClientKeyData, err = dataOrFile(u.value.ClientKeyData, u.value.ClientKey, u.dir); err != nil {
			return nil, apperrors.New(apperrors.KindConfigError, op, fmt.Errorf("user %q client key: %w", kctx.User, err))
		}
	}

	r.logger.DebugContext(ctx, "resolved cluster", "context", m.currentContext, "cluster", kctx.Cluster, "server", out.Server)
	return out, nil
}

func (r *Reader) searchPaths() ([]string, error) {
	if r.explicit != "" {
		return []string{r.explicit}, nil
	}
	if env := r.getenv(EnvVar); env != "" {
		var paths []string
		for _, p := range filepath.SplitList(env) {
			if p != "" {
				paths = append(paths, p)
			}
		}
		if len(paths) > 0 {
			return paths, nil
		}
	}

	home, err := r.homeDir()
	if err != nil || home == "" {
		return nil, apperrors.Newf(apperrors.KindConfigError, op, "cannot find home directory: %v", err)
	}
	return []string{filepath.Join(home, ".kube", "config")}, nil
}

func (r *Reader) load(ctx context.Context, paths []string) (*merged, error) {
	m := &merged{
		clusters: make(map[string]located[cluster]),
		contexts: make(map[string]contextSpec),
		users:    make(map[string]located[user]),
	}

	read := 0
	for _, path := range paths {
		//nolint:gosec // G304: kubeconfig paths come from the user's environment
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				r.logger.DebugContext(ctx, "kubeconfig not found", "path", path)
				continue
			}
			return nil, apperrors.New(apperrors.KindConfigError, op, err)
		}

		var f file
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, apperrors.New(apperrors.KindConfigError, op, fmt.Errorf("parse %s: %w", path, err))
		}
		read++

		dir := filepath.Dir(path)
		if m.currentContext == "" {
			m.currentContext = f.CurrentContext
		}
		for _, c := range f.Clusters {
			if _, ok := m.clusters[c.Name]; !ok {
				m.clusters[c.Name] = located[cluster]{value: c.Cluster, dir: dir}
			}
		}
		for _, c := range f.Contexts {
			if _, ok := m.contexts[c.Name]; !ok {
				m.contexts[c.Name] = c.Context
			}
		}
		for _, u := range f.Users {
			if _, ok := m.users[u.Name]; !ok {
				m.users[u.Name] = located[user]{value: u.User, dir: dir}
			}
		}
	}

	if read == 0 {
		return nil, apperrors.Newf(apperrors.KindConfigError, op, "no kubeconfig found in %v", paths)
	}
	return m, nil
}

// dataOrFile returns base64-decoded inline data, else the contents of path
// resolved against dir, else nil.
func dataOrFile(data, path, dir string) ([]byte, error) {
	if data != "" {
		return base64.StdEncoding.DecodeString(data)
	}
	if path == "" {
		return nil, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	//nolint:gosec // G304: referenced from the user's kubeconfig
	return os.ReadFile(path)
}
