// Package tenant resolves the tenant an HTTP request belongs to and binds a
// validated tenant context, including the tenant's database handle, to the
// request.
//
// Resolution is split into three steps owned by separate types:
//
//  1. HostResolver turns the Host and X-Tenant headers into a Candidate. It is
//     pure string parsing and never performs I/O.
//  2. Validator applies the hard gates in order: slug format, registry
//     existence, lifecycle status. Format failures never reach the registry.
//     When the registry is unreachable, production fails closed while other
//     environments fall back to an allow-list.
//  3. Middleware asks a Pools implementation (package tenantdb) for a lease on
//     the tenant's connection pool and stores a Context on the request.
//
// # Context
//
// Context is a closed set of variants: Global (administrative hosts such as
// api.<root> and panel.<root>), Public (anonymous endpoints, bare root
// domains, localhost) and *Bound (a validated tenant with its DB). Handlers
// switch on the concrete type:
//
//	switch tc := tenant.FromContext(r.Context()).(type) {
//	case *tenant.Bound:
//		rows, err := tc.DB().Query(ctx, "SELECT ...")
//	case tenant.Global:
//	case tenant.Public:
//	}
//
// # Errors
//
// Every rejection is an *Error carrying a stable Kind and HTTP status.
// WriteError renders them as {"error": kind, "message": text}; details of the
// underlying cause are added only when the request context carries a
// non-production environment.
package tenant
