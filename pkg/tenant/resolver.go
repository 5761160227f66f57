package tenant

import (
	"net"
	"net/http"
	"strings"
)

// Header names read and written by the tenant middleware.
const (
	HeaderTenant     = "X-Tenant"
	HeaderTenantType = "X-Tenant-Type"
)

// Candidate is the unvalidated outcome of resolution. Slug is set only when
// Type is TypeTenant.
type Candidate struct {
	Type Type
	Slug string
}

// HostResolver extracts a tenant candidate from a request. It performs no
// I/O and does not check the slug format.
type HostResolver struct {
	rootDomains []string
}

// NewHostResolver creates a resolver for the given root domains, matched in
// order. Domains are compared case-insensitively.
func NewHostResolver(rootDomains ...string) *HostResolver {
	roots := make([]string, 0, len(rootDomains))
	for _, d := range rootDomains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			roots = append(roots, d)
		}
	}
	return &HostResolver{rootDomains: roots}
}

// Resolve classifies r. The X-Tenant header wins unless it names one of the
// reserved contexts; otherwise the Host header decides.
func (h *HostResolver) Resolve(r *http.Request) Candidate {
	if v := strings.TrimSpace(r.Header.Get(HeaderTenant)); v != "" && !isReservedHeader(v) {
		return Candidate{Type: TypeTenant, Slug: v}
	}
	return h.ResolveHost(r.Host)
}

// ResolveHost classifies a raw Host header value.
func (h *HostResolver) ResolveHost(hostport string) Candidate {
	host := stripPort(hostport)
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return Candidate{Type: TypePublic}
	}

	lower := strings.ToLower(host)
	if lower == "localhost" {
		return Candidate{Type: TypePublic}
	}
	if ip := net.ParseIP(host); ip != nil {
		// Loopback is the local passthrough; other literal addresses carry no
		// tenant label either.
		return Candidate{Type: TypePublic}
	}

	for _, root := range h.rootDomains {
		if lower == root {
			return Candidate{Type: TypePublic}
		}
		if strings.HasSuffix(lower, "."+root) {
			label := host[:strings.IndexByte(host, '.')]
			return classifyLabel(label)
		}
	}

	if strings.Count(host, ".") >= 2 {
		return Candidate{Type: TypeTenant, Slug: host[:strings.IndexByte(host, '.')]}
	}
	return Candidate{Type: TypePublic}
}

func classifyLabel(label string) Candidate {
	switch strings.ToLower(label) {
	case "api", "panel":
		return Candidate{Type: TypeGlobal}
	case "www":
		return Candidate{Type: TypePublic}
	default:
		return Candidate{Type: TypeTenant, Slug: label}
	}
}

func isReservedHeader(v string) bool {
	switch strings.ToLower(v) {
	case "api", "panel", "public":
		return true
	}
	return false
}

func stripPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	// Bracketed IPv6 without a port.
	return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]")
}
