package hostfuncs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
	"github.com/reglet-dev/krew-wasm/internal/application/ports"
)

const maxRedirects = 10

// mediatedTransport is an http.RoundTripper that passes every request, redirects
// included, through the mediator. Rewritten requests are dialed at the literal
// IP they named while TLS and the Host header use the rewritten name.
type mediatedTransport struct {
	base     *http.Transport
	mediator *Mediator
}

// RoundTrip implements http.RoundTripper.
func (t *mediatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rw, err := t.mediator.AuthorizeAndRewrite(req.URL)
	if err != nil {
		return nil, err
	}
	if !rw.Direct() {
		return t.base.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	out.URL = rw.URL
	out.Host = rw.URL.Host

	// Clone base transport settings and pin the dial to the literal IP.
	pinned := t.base.Clone()
	pinned.DisableKeepAlives = true
	target := rw.Target.String()
	pinned.DialContext = func(dialCtx context.Context, network, _ string) (net.Conn, error) {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		return dialer.DialContext(dialCtx, network, target)
	}
	if out.URL.Scheme == "https" && pinned.TLSClientConfig.ServerName == "" {
		pinned.TLSClientConfig.ServerName = KubernetesServiceName
	}

	return pinned.RoundTrip(out)
}

// NewHTTPClient returns the client used on behalf of modules. It trusts the
// cluster CA, presents the kubeconfig client certificate when one is set, and
// rejects anything the mediator does not authorize before a socket is opened.
func NewHTTPClient(cluster *ports.Cluster, mediator *Mediator) (*http.Client, error) {
	tlsConfig, err := clusterTLSConfig(cluster)
	if err != nil {
		return nil, err
	}

	base := &http.Transport{
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       tlsConfig,
	}

	return &http.Client{
		Transport: &mediatedTransport{base: base, mediator: mediator},
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}, nil
}

func clusterTLSConfig(cluster *ports.Cluster) (*tls.Config, error) {
	const op = "hostfuncs.tls"

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: cluster.TLSServerName,
		//nolint:gosec // G402: honours insecure-skip-tls-verify from the user's kubeconfig
		InsecureSkipVerify: cluster.InsecureSkipTLSVerify,
	}

	if len(cluster.CertificateAuthorityData) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cluster.CertificateAuthorityData) {
			return nil, apperrors.New(apperrors.KindConfigError, op, errors.New("no certificates found in cluster certificate authority"))
		}
		cfg.RootCAs = pool
	}

	if len(cluster.ClientCertificateData) > 0 && len(cluster.ClientKeyData) > 0 {
		cert, err := tls.X509KeyPair(cluster.ClientCertificateData, cluster.ClientKeyData)
		if err != nil {
			return nil, apperrors.New(apperrors.KindConfigError, op, fmt.Errorf("client certificate: %w", err))
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
