package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oras.land/oras-go/v2/registry"
)

var wasmBytes = []byte("\x00asm\x01\x00\x00\x00")

// testRegistry serves a single repository over the OCI distribution API.
type testRegistry struct {
	blobs     map[digest.Digest][]byte
	manifests map[string][]byte
	repo      string
}

func newTestRegistry(t *testing.T, repo, tag string, layers []ocispec.Descriptor, blobs map[digest.Digest][]byte) (*httptest.Server, digest.Digest) {
	t.Helper()

	config := []byte("{}")
	configDigest := digest.FromBytes(config)
	blobs[configDigest] = config

	manifest, err := json.Marshal(ocispec.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config: ocispec.Descriptor{
			MediaType: "application/vnd.wasm.config.v1+json",
			Digest:    configDigest,
			Size:      int64(len(config)),
		},
		Layers: layers,
	})
	require.NoError(t, err)
	manifestDigest := digest.FromBytes(manifest)

	reg := &testRegistry{
		repo:  repo,
		blobs: blobs,
		manifests: map[string][]byte{
			tag:                     manifest,
			manifestDigest.String(): manifest,
		},
	}

	srv := httptest.NewServer(reg)
	t.Cleanup(srv.Close)
	return srv, manifestDigest
}

func (reg *testRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/v2/" + reg.repo + "/"
	if r.URL.Path == "/v2/" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}

	kind, ref, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, prefix), "/")
	var (
		body      []byte
		mediaType string
		ok        bool
	)
	switch kind {
	case "manifests":
		body, ok = reg.manifests[ref]
		mediaType = ocispec.MediaTypeImageManifest
	case "blobs":
		body, ok = reg.blobs[digest.Digest(ref)]
		mediaType = "application/octet-stream"
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Docker-Content-Digest", digest.FromBytes(body).String())
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

func wasmLayerFixture(body []byte) (ocispec.Descriptor, map[digest.Digest][]byte) {
	d := digest.FromBytes(body)
	return ocispec.Descriptor{
		MediaType: MediaTypeWasmLayer,
		Digest:    d,
		Size:      int64(len(body)),
		Annotations: map[string]string{
			ocispec.AnnotationTitle: "module.wasm",
		},
	}, map[digest.Digest][]byte{d: body}
}

func newRegistryFetcher(srv *httptest.Server) (*Fetcher, string) {
	host := strings.TrimPrefix(srv.URL, "http://")
	return NewFetcher(WithHTTPClient(srv.Client()), WithPlainHTTP(host), WithUserAgent("krew-wasm/test")), host
}

func TestFetcher_OCITag(t *testing.T) {
	t.Parallel()

	layer, blobs := wasmLayerFixture(wasmBytes)
	srv, _ := newTestRegistry(t, "plugins/hello", "v1.0.0", []ocispec.Descriptor{layer}, blobs)
	fetcher, host := newRegistryFetcher(srv)
	root := t.TempDir()

	path, err := fetcher.Fetch(context.Background(), "registry://"+host+"/plugins/hello:v1.0.0", root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "registry", host, "plugins", "hello:v1.0.0"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, wasmBytes, data)
}

func TestFetcher_OCIDigest(t *testing.T) {
	t.Parallel()

	layer, blobs := wasmLayerFixture(wasmBytes)
	srv, manifestDigest := newTestRegistry(t, "plugins/hello", "v1.0.0", []ocispec.Descriptor{layer}, blobs)
	fetcher, host := newRegistryFetcher(srv)
	root := t.TempDir()

	path, err := fetcher.Fetch(context.Background(), "registry://"+host+"/plugins/hello@"+manifestDigest.String(), root)
	require.NoError(t, err)

	assert.Equal(t, "hello:sha256-"+manifestDigest.Encoded(), filepath.Base(path))
	assert.FileExists(t, path)
}

func TestFetcher_OCISingleUntypedLayer(t *testing.T) {
	t.Parallel()

	layer, blobs := wasmLayerFixture(wasmBytes)
	layer.MediaType = "application/octet-stream"
	srv, _ := newTestRegistry(t, "hello", "latest", []ocispec.Descriptor{layer}, blobs)
	fetcher, host := newRegistryFetcher(srv)

	path, err := fetcher.Fetch(context.Background(), "registry://"+host+"/hello", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "hello:latest", filepath.Base(path))
}

func TestFetcher_OCINoWasmLayer(t *testing.T) {
	t.Parallel()

	first, blobs := wasmLayerFixture([]byte("a"))
	second, more := wasmLayerFixture([]byte("b"))
	first.MediaType = "text/plain"
	second.MediaType = "text/plain"
	for d, b := range more {
		blobs[d] = b
	}
	srv, _ := newTestRegistry(t, "plugins/hello", "v1", []ocispec.Descriptor{first, second}, blobs)
	fetcher, host := newRegistryFetcher(srv)

	_, err := fetcher.Fetch(context.Background(), "registry://"+host+"/plugins/hello:v1", t.TempDir())
	assert.ErrorIs(t, err, apperrors.ErrFetchFailure)
	assert.ErrorContains(t, err, "no wasm layer")
}

func TestFetcher_OCICorruptLayer(t *testing.T) {
	t.Parallel()

	layer, _ := wasmLayerFixture(wasmBytes)
	tampered := map[digest.Digest][]byte{layer.Digest: []byte("\x00asm\x02\x00\x00\x00")}
	srv, _ := newTestRegistry(t, "plugins/hello", "v1", []ocispec.Descriptor{layer}, tampered)
	fetcher, host := newRegistryFetcher(srv)
	root := t.TempDir()

	_, err := fetcher.Fetch(context.Background(), "registry://"+host+"/plugins/hello:v1", root)
	assert.ErrorIs(t, err, apperrors.ErrFetchFailure)
	assert.NoFileExists(t, filepath.Join(root, "registry", host, "plugins", "hello:v1"))
	assert.NoDirExists(t, filepath.Join(root, "registry"))
}

func TestWriteFile_FailedVerifyRemovesCreatedDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	existing := filepath.Join(root, "registry")
	require.NoError(t, os.Mkdir(existing, 0o755))
	dest := filepath.Join(existing, "ghcr.io", "org", "tool:v1")

	err := writeFile(dest, strings.NewReader("wasm"), func() error { return errors.New("digest mismatch") })
	require.ErrorContains(t, err, "digest mismatch")

	assert.NoDirExists(t, filepath.Join(existing, "ghcr.io"))
	assert.DirExists(t, existing)

	require.NoError(t, writeFile(dest, strings.NewReader("wasm"), nil))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "wasm", string(data))
}

func TestFetcher_OCIUnknownTag(t *testing.T) {
	t.Parallel()

	layer, blobs := wasmLayerFixture(wasmBytes)
	srv, _ := newTestRegistry(t, "plugins/hello", "v1", []ocispec.Descriptor{layer}, blobs)
	fetcher, host := newRegistryFetcher(srv)

	_, err := fetcher.Fetch(context.Background(), "registry://"+host+"/plugins/hello:v2", t.TempDir())
	assert.ErrorIs(t, err, apperrors.ErrFetchFailure)
}

func TestFetcher_HTTPS(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/plugins/hello.wasm" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("User-Agent") != "krew-wasm/test" {
			http.Error(w, "unexpected user agent", http.StatusBadRequest)
			return
		}
		_, _ = w.Write(wasmBytes)
	}))
	t.Cleanup(srv.Close)

	fetcher := NewFetcher(WithHTTPClient(srv.Client()), WithUserAgent("krew-wasm/test"))
	root := t.TempDir()
	host := strings.TrimPrefix(srv.URL, "https://")

	path, err := fetcher.Fetch(context.Background(), srv.URL+"/plugins/hello.wasm", root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "https", host, "plugins", "hello.wasm"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, wasmBytes, data)

	_, err = fetcher.Fetch(context.Background(), srv.URL+"/plugins/missing.wasm", root)
	assert.ErrorIs(t, err, apperrors.ErrFetchFailure)
}

func TestFetcher_Local(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	module := filepath.Join(dir, "hello.wasm")
	require.NoError(t, os.WriteFile(module, wasmBytes, 0o600))

	fetcher := NewFetcher()
	root := t.TempDir()

	path, err := fetcher.Fetch(context.Background(), "file://"+module, root)
	require.NoError(t, err)
	assert.Equal(t, module, path)

	path, err = fetcher.Fetch(context.Background(), module, root)
	require.NoError(t, err)
	assert.Equal(t, module, path)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = fetcher.Fetch(context.Background(), filepath.Join(dir, "missing.wasm"), root)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = fetcher.Fetch(context.Background(), dir, root)
	assert.ErrorIs(t, err, apperrors.ErrFetchFailure)
}

func TestFetcher_UnsupportedScheme(t *testing.T) {
	t.Parallel()

	_, err := NewFetcher().Fetch(context.Background(), "ftp://example.com/hello.wasm", t.TempDir())
	assert.ErrorIs(t, err, apperrors.ErrFetchFailure)
}

func TestRegistryPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want []string
	}{
		{"ghcr.io/flavio/krew-wasm-plugins/pod-privileged:v0.1.9", []string{"registry", "ghcr.io", "flavio", "krew-wasm-plugins", "pod-privileged:v0.1.9"}},
		{"localhost:5000/hello:latest", []string{"registry", "localhost:5000", "hello:latest"}},
		{
			"ghcr.io/org/hello@sha256:0000000000000000000000000000000000000000000000000000000000000000",
			[]string{"registry", "ghcr.io", "org", "hello:sha256-0000000000000000000000000000000000000000000000000000000000000000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			ref, err := registry.ParseReference(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, registryPath(ref))
		})
	}
}

func TestPathSegments(t *testing.T) {
	t.Parallel()

	segments, err := pathSegments("/a/./b//c.wasm")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c.wasm"}, segments)

	_, err = pathSegments("/a/../../etc/passwd")
	assert.Error(t, err)

	_, err = pathSegments("/")
	assert.Error(t, err)
}
