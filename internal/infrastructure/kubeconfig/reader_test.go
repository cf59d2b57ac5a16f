package kubeconfig

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const primary = `
apiVersion: v1
kind: Config
current-context: kind-dev
clusters:
- name: kind-dev
  cluster:
    server: https://127.0.0.1:6443
    certificate-authority-data: %CA%
- name: staging
  cluster:
    server: https://api.staging.example.com
    tls-server-name: kubernetes
    certificate-authority: certs/ca.crt
contexts:
- name: kind-dev
  context:
    cluster: kind-dev
    user: kind-dev
- name: staging
  context:
    cluster: staging
    user: staging
users:
- name: kind-dev
  user:
    client-certificate-data: %CERT%
    client-key-data: %KEY%
- name: staging
  user:
    client-certificate: certs/client.crt
    client-key: certs/client.key
`

func writeKubeconfig(t *testing.T, dir, name, body string) string {
	t.Helper()

	replacer := strings.NewReplacer(
		"%CA%", base64.StdEncoding.EncodeToString([]byte("ca-pem")),
		"%CERT%", base64.StdEncoding.EncodeToString([]byte("cert-pem")),
		"%KEY%", base64.StdEncoding.EncodeToString([]byte("key-pem")),
	)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(replacer.Replace(body)), 0o600))
	return path
}

func env(values map[string]string, home string) Option {
	return WithEnvironment(
		func(k string) string { return values[k] },
		func() (string, error) {
			if home == "" {
				return "", errors.New("$HOME is not defined")
			}
			return home, nil
		},
	)
}

func TestReader_CurrentCluster_InlineData(t *testing.T) {
	t.Parallel()

	path := writeKubeconfig(t, t.TempDir(), "config", primary)

	cluster, err := NewReader(WithPath(path)).CurrentCluster(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://127.0.0.1:6443", cluster.Server)
	assert.Equal(t, []byte("ca-pem"), cluster.CertificateAuthorityData)
	assert.Equal(t, []byte("cert-pem"), cluster.ClientCertificateData)
	assert.Equal(t, []byte("key-pem"), cluster.ClientKeyData)
	assert.False(t, cluster.InsecureSkipTLSVerify)
}

func TestReader_CurrentCluster_FileReferences(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "certs"), 0o755))
	for name, body := range map[string]string{"ca.crt": "file-ca", "client.crt": "file-cert", "client.key": "file-key"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "certs", name), []byte(body), 0o600))
	}
	path := writeKubeconfig(t, dir, "config", strings.Replace(primary, "current-context: kind-dev", "current-context: staging", 1))

	cluster, err := NewReader(WithPath(path)).CurrentCluster(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://api.staging.example.com", cluster.Server)
	assert.Equal(t, "kubernetes", cluster.TLSServerName)
	assert.Equal(t, []byte("file-ca"), cluster.CertificateAuthorityData)
	assert.Equal(t, []byte("file-cert"), cluster.ClientCertificateData)
	assert.Equal(t, []byte("file-key"), cluster.ClientKeyData)
}

func TestReader_KubeconfigListMerge(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	overlay := writeKubeconfig(t, dir, "overlay", `
current-context: remote
contexts:
- name: remote
  context:
    cluster: kind-dev
clusters:
- name: kind-dev
  cluster:
    server: https://10.0.0.5:6443
    insecure-skip-tls-verify: true
`)
	base := writeKubeconfig(t, dir, "base", primary)
	missing := filepath.Join(dir, "missing")

	reader := NewReader(env(map[string]string{
		EnvVar: strings.Join([]string{missing, overlay, base}, string(os.PathListSeparator)),
	}, ""))

	cluster, err := reader.CurrentCluster(context.Background())
	require.NoError(t, err)

	// The first file defining a name wins.
	assert.Equal(t, "https://10.0.0.5:6443", cluster.Server)
	assert.True(t, cluster.InsecureSkipTLSVerify)
	assert.Nil(t, cluster.ClientCertificateData)
}

func TestReader_DefaultsToHomeKubeconfig(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".kube"), 0o755))
	writeKubeconfig(t, filepath.Join(home, ".kube"), "config", primary)

	cluster, err := NewReader(env(nil, home)).CurrentCluster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://127.0.0.1:6443", cluster.Server)
}

func TestReader_ConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"no current context", "clusters: []\n", "no current-context"},
		{"unknown context", "current-context: ghost\n", `context "ghost" not found`},
		{"unknown cluster", "current-context: a\ncontexts:\n- name: a\n  context:\n    cluster: b\n", `cluster "b" of context "a" not found`},
		{"no server", "current-context: a\ncontexts:\n- name: a\n  context:\n    cluster: b\nclusters:\n- name: b\n  cluster: {}\n", "has no server"},
		{"bad yaml", "current-context: [\n", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeKubeconfig(t, t.TempDir(), "config", tt.body)
			_, err := NewReader(WithPath(path)).CurrentCluster(context.Background())

			assert.ErrorIs(t, err, apperrors.ErrConfigError)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestReader_NoKubeconfig(t *testing.T) {
	t.Parallel()

	_, err := NewReader(env(nil, t.TempDir())).CurrentCluster(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConfigError)

	_, err = NewReader(env(nil, "")).CurrentCluster(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConfigError)
}
