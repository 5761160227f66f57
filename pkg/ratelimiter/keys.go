package ratelimiter

import (
	"hash/fnv"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/weeklype/tenantrouter/pkg/tenant"
)

// maxKeyLength bounds storage keys; longer composites are hashed.
const maxKeyLength = 64

// KeyFunc extracts a rate limit key from the request.
type KeyFunc func(r *http.Request) string

// TenantKey keys by the resolved tenant context ("tenant:acme",
// "tenant:global"). It returns "" when no tenant context is present.
func TenantKey(r *http.Request) string {
	tc := tenant.FromContext(r.Context())
	if tc == nil {
		return ""
	}
	return "tenant:" + tc.Slug()
}

// IPKey keys by client address. Run chi's RealIP middleware first when the
// service sits behind a proxy.
func IPKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return ""
	}
	return "ip:" + addr
}

// Composite joins the non-empty keys of keyFuncs with ':'. Keys longer than
// 64 bytes are hashed with FNV-1a.
func Composite(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(keyFuncs))
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}
		if len(parts) == 0 {
			return ""
		}

		combined := strings.Join(parts, ":")
		if len(combined) > maxKeyLength {
			h := fnv.New64a()
			h.Write([]byte(combined))
			return strconv.FormatUint(h.Sum64(), 36)
		}
		return combined
	}
}
