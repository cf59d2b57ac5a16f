// Package registry fetches module artifacts from OCI registries, HTTP(S)
// servers and the local filesystem, laying them out in the store's canonical area.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// URI schemes understood by the fetcher.
const (
	SchemeRegistry = "registry"
	SchemeHTTPS    = "https"
	SchemeHTTP     = "http"
	SchemeFile     = "file"
)

// Layer media types recognised as a WASM module.
const (
	MediaTypeWasmLayer       = "application/vnd.wasm.content.layer.v1+wasm"
	MediaTypeModuleWasmLayer = "application/vnd.module.wasm.content.layer.v1+wasm"
)

const dockerManifestMediaType = "application/vnd.docker.distribution.manifest.v2+json"

// maxManifestBytes bounds manifest downloads.
const maxManifestBytes = 4 * 1024 * 1024

// Fetcher materializes module artifacts under a destination root.
type Fetcher struct {
	httpClient  *http.Client
	credentials credentials.Store
	plainHTTP   map[string]bool
	logger      *slog.Logger
	userAgent   string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for registry and HTTP(S) downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithCredentialStore sets the registry credential store.
func WithCredentialStore(store credentials.Store) Option {
	return func(f *Fetcher) {
		f.credentials = store
	}
}

// WithPlainHTTP marks registry hosts that are reached over plain HTTP.
func WithPlainHTTP(hosts ...string) Option {
	return func(f *Fetcher) {
		for _, h := range hosts {
			f.plainHTTP[h] = true
		}
	}
}

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a fetcher. Without options it uses the oras retrying
// HTTP client and anonymous registry access.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: retry.DefaultClient,
		plainHTTP:  make(map[string]bool),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// DockerCredentialStore opens the docker credential store at path, or the
// default docker config location when path is empty.
func DockerCredentialStore(path string) (credentials.Store, error) {
	var (
		store *credentials.DynamicStore
		err   error
	)
	if path == "" {
		store, err = credentials.NewStoreFromDocker(credentials.StoreOptions{})
	} else {
		store, err = credentials.NewStore(path, credentials.StoreOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("open docker credential store: %w", err)
	}
	return store, nil
}

// Fetch retrieves uri below destinationRoot and returns the local path.
//
//	registry://<host>/<repo>[:tag|@digest] -> <root>/registry/<host>/<repo dirs>/<name>:<tag>
//	https://<host>/<path>                 -> <root>/https/<host>/<path>
//	file://<path> or a plain path         -> <path>, not copied
func (f *Fetcher) Fetch(ctx context.Context, uri, destinationRoot string) (string, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return f.local(uri)
	}

	switch scheme {
	case SchemeRegistry:
		return f.fetchOCI(ctx, rest, destinationRoot)
	case SchemeHTTPS, SchemeHTTP:
		return f.fetchHTTP(ctx, uri, destinationRoot)
	case SchemeFile:
		return f.local(rest)
	default:
		return "", apperrors.Newf(apperrors.KindFetchFailure, "registry.fetch", "unsupported scheme %q in %s", scheme, uri)
	}
}

func (f *Fetcher) local(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperrors.New(apperrors.KindNotFound, "registry.fetch", err)
		}
		return "", apperrors.New(apperrors.KindFetchFailure, "registry.fetch", err)
	}
	if info.IsDir() {
		return "", apperrors.Newf(apperrors.KindFetchFailure, "registry.fetch", "%s is a directory", path)
	}
	return filepath.Abs(path)
}

func (f *Fetcher) fetchOCI(ctx context.Context, raw, destinationRoot string) (string, error) {
	const op = "registry.fetch"

	ref, err := registry.ParseReference(raw)
	if err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, err)
	}
	if ref.Reference == "" {
		ref.Reference = "latest"
	}

	repo, err := remote.NewRepository(ref.Registry + "/" + ref.Repository)
	if err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, err)
	}
	repo.PlainHTTP = f.plainHTTP[ref.Registry]
	repo.Client = f.authClient()

	f.logger.DebugContext(ctx, "fetching manifest", "registry", ref.Registry, "repository", ref.Repository, "reference", ref.Reference)

	desc, rc, err := repo.FetchReference(ctx, ref.Reference)
	if err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, fmt.Errorf("fetch manifest %s: %w", raw, err))
	}
	defer rc.Close()

	if desc.MediaType != ocispec.MediaTypeImageManifest && desc.MediaType != dockerManifestMediaType {
		return "", apperrors.Newf(apperrors.KindFetchFailure, op, "unsupported manifest media type %q", desc.MediaType)
	}
	if desc.Size > maxManifestBytes {
		return "", apperrors.Newf(apperrors.KindFetchFailure, op, "manifest too large (%d bytes)", desc.Size)
	}

	manifestBytes, err := content.ReadAll(rc, desc)
	if err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, fmt.Errorf("read manifest: %w", err))
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, fmt.Errorf("decode manifest: %w", err))
	}

	layer, err := wasmLayer(manifest)
	if err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, fmt.Errorf("%s: %w", raw, err))
	}

	f.logger.DebugContext(ctx, "fetching module layer",
		"digest", layer.Digest.String(), "size", layer.Size, "title", layer.Annotations[ocispec.AnnotationTitle])

	blob, err := repo.Fetch(ctx, layer)
	if err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, fmt.Errorf("fetch layer %s: %w", layer.Digest, err))
	}
	defer blob.Close()

	dest := filepath.Join(append([]string{destinationRoot}, registryPath(ref)...)...)
	verified := content.NewVerifyReader(blob, layer)
	if err := writeFile(dest, verified, verified.Verify); err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, err)
	}

	return dest, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, raw, destinationRoot string) (string, error) {
	const op = "registry.fetch"

	u, err := url.Parse(raw)
	if err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, err)
	}

	segments, err := pathSegments(u.Path)
	if err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, fmt.Errorf("%s: %w", raw, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.logger.DebugContext(ctx, "downloading module", "url", u.Redacted())

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Newf(apperrors.KindFetchFailure, op, "GET %s: unexpected status %s", u.Redacted(), resp.Status)
	}

	parts := append([]string{u.Scheme, u.Host}, segments...)
	dest := filepath.Join(destinationRoot, filepath.Join(parts...))
	if err := writeFile(dest, resp.Body, nil); err != nil {
		return "", apperrors.New(apperrors.KindFetchFailure, op, err)
	}

	return dest, nil
}

func (f *Fetcher) authClient() *auth.Client {
	client := &auth.Client{
		Client: f.httpClient,
		Cache:  auth.NewCache(),
	}
	if f.credentials != nil {
		client.Credential = credentials.Credential(f.credentials)
	}
	if f.userAgent != "" {
		client.SetUserAgent(f.userAgent)
	}
	return client
}

// wasmLayer picks the module layer: the first with a WASM media type, or the
// only layer of a single-layer manifest.
func wasmLayer(manifest ocispec.Manifest) (ocispec.Descriptor, error) {
	for _, layer := range manifest.Layers {
		switch layer.MediaType {
		case MediaTypeWasmLayer, MediaTypeModuleWasmLayer:
			return layer, nil
		}
	}
	if len(manifest.Layers) == 1 {
		return manifest.Layers[0], nil
	}
	return ocispec.Descriptor{}, fmt.Errorf("no wasm layer among %d layers", len(manifest.Layers))
}

// registryPath returns the canonical-area path elements for ref. Digest
// references are stored as <name>:<algorithm>-<hex>.
func registryPath(ref registry.Reference) []string {
	segments := strings.Split(ref.Repository, "/")
	last := segments[len(segments)-1]

	tag := ref.Reference
	if err := ref.ValidateReferenceAsDigest(); err == nil {
		tag = strings.Replace(tag, ":", "-", 1)
	}

	parts := []string{SchemeRegistry, ref.Registry}
	parts = append(parts, segments[:len(segments)-1]...)
	return append(parts, last+":"+tag)
}

func pathSegments(p string) ([]string, error) {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		switch s {
		case "", ".":
			continue
		case "..":
			return nil, errors.New("path traversal in URL")
		}
		segments = append(segments, s)
	}
	if len(segments) == 0 {
		return nil, errors.New("URL has no file name")
	}
	return segments, nil
}

// writeFile streams r into dest through a temporary file in the same
// directory. verify, when set, runs before the file is moved into place.
// Directories created for dest are removed again when the write fails.
func writeFile(dest string, r io.Reader, verify func() error) (err error) {
	dir := filepath.Dir(dest)
	created := firstMissingDir(dir)
	//nolint:gosec // G301: store directories are user-owned and must be traversable
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	defer func() {
		if err != nil && created != "" {
			_ = os.RemoveAll(created)
		}
	}()

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if verify != nil {
		if err := verify(); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("verify %s: %w", dest, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dest)
}

// firstMissingDir returns the outermost ancestor of dir, dir included, that
// does not exist yet, or "" when dir already exists.
func firstMissingDir(dir string) string {
	missing := ""
	for {
		if _, err := os.Stat(dir); err == nil || !errors.Is(err, fs.ErrNotExist) {
			return missing
		}
		missing = dir
		parent := filepath.Dir(dir)
		if parent == dir {
			return missing
		}
		dir = parent
	}
}
