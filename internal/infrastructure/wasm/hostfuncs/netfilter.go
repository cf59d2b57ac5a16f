package hostfuncs

import (
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/reglet-dev/krew-wasm/internal/application/errors"
)

// KubernetesServiceName replaces literal IP hosts so that HTTP routing and
// certificate verification see a name the API server certificate carries.
const KubernetesServiceName = "kubernetes.default.svc"

// Endpoint is a network destination: a host name or literal IP, and a port.
type Endpoint struct {
	Host string
	Port uint16
}

// String returns host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// Equal compares ports exactly, IP hosts as addresses and names case-insensitively.
func (e Endpoint) Equal(other Endpoint) bool {
	if e.Port != other.Port {
		return false
	}
	a, errA := netip.ParseAddr(e.Host)
	b, errB := netip.ParseAddr(other.Host)
	if errA == nil && errB == nil {
		return a.Unmap() == b.Unmap()
	}
	if errA == nil || errB == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSuffix(e.Host, "."), strings.TrimSuffix(other.Host, "."))
}

// ResolvePort returns the explicit port of u, or the default port of its
// scheme (http 80, https 443). A URL without a scheme is treated as http.
func ResolvePort(u *url.URL) (uint16, error) {
	if p := u.Port(); p != "" {
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return 0, apperrors.Newf(apperrors.KindUnknownScheme, "mediator.port", "invalid port %q", p)
		}
		return uint16(port), nil
	}

	switch strings.ToLower(u.Scheme) {
	case "", "http":
		return 80, nil
	case "https":
		return 443, nil
	default:
		return 0, apperrors.Newf(apperrors.KindUnknownScheme, "mediator.port", "no port and unknown scheme %q in %s", u.Scheme, u.Redacted())
	}
}

// EndpointOf returns the destination u addresses.
func EndpointOf(u *url.URL) (Endpoint, error) {
	port, err := ResolvePort(u)
	if err != nil {
		return Endpoint{}, err
	}
	host := u.Hostname()
	if host == "" {
		return Endpoint{}, apperrors.Newf(apperrors.KindCapabilityDenied, "mediator.endpoint", "URL %s has no host", u.Redacted())
	}
	return Endpoint{Host: host, Port: port}, nil
}

// ParseEndpoint parses a URL and returns the destination it addresses.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, apperrors.New(apperrors.KindConfigError, "mediator.endpoint", err)
	}
	return EndpointOf(u)
}

// Rewrite is the effective form of an outbound request.
type Rewrite struct {
	// URL is the request URL to send. For literal IP hosts the host is
	// KubernetesServiceName; scheme, explicit port, path and query are kept.
	URL *url.URL
	// Target is the socket address to dial instead of resolving URL's host.
	// It is only valid for rewritten requests.
	Target netip.AddrPort
}

// Direct reports whether the request must be dialed at Target.
func (r Rewrite) Direct() bool {
	return r.Target.IsValid()
}

// rewrite substitutes a literal IP host with KubernetesServiceName. Named
// hosts are returned unchanged with no direct target.
func rewrite(u *url.URL, ep Endpoint) Rewrite {
	effective := *u

	addr, err := netip.ParseAddr(ep.Host)
	if err != nil {
		return Rewrite{URL: &effective}
	}

	if port := u.Port(); port != "" {
		effective.Host = net.JoinHostPort(KubernetesServiceName, port)
	} else {
		effective.Host = KubernetesServiceName
	}
	return Rewrite{
		URL:    &effective,
		Target: netip.AddrPortFrom(addr.Unmap(), ep.Port),
	}
}

// Mediator authorizes outbound requests against the single endpoint a module
// may reach: the API server of the active cluster. It holds no other state.
type Mediator struct {
	allowed Endpoint
}

// NewMediator derives the allowed endpoint from the API server URL.
func NewMediator(apiServer string) (*Mediator, error) {
	ep, err := ParseEndpoint(apiServer)
	if err != nil {
		return nil, err
	}
	return &Mediator{allowed: ep}, nil
}

// AllowedEndpoint returns the only destination requests may address.
func (m *Mediator) AllowedEndpoint() Endpoint {
	return m.allowed
}

// AuthorizeAndRewrite rejects u unless it addresses the allowed endpoint, then
// rewrites literal IP hosts. Authorization compares the destination before the rewrite.
func (m *Mediator) AuthorizeAndRewrite(u *url.URL) (Rewrite, error) {
	ep, err := EndpointOf(u)
	if err != nil {
		return Rewrite{}, err
	}
	if !ep.Equal(m.allowed) {
		return Rewrite{}, apperrors.Newf(apperrors.KindCapabilityDenied, "mediator.authorize",
			"%s is not the cluster API server %s", ep, m.allowed)
	}
	return rewrite(u, ep), nil
}
