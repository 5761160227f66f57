// Package router assembles the HTTP surface of the tenant router.
//
// The chi middleware chain is request id, real IP, access log, panic
// recovery and environment. Probes live at /healthz and /readyz and bypass
// tenant resolution. Everything else runs through tenant.Middleware and the
// rate limiter:
//
//	GET    /v1/tenant          resolved context, bearer token required
//	GET    /v1/public/ping     resolved context, bearer token optional
//	GET    /admin/pools        pool registry snapshot, global context + admin role
//	DELETE /admin/pools/{slug} evict a pool and its cached catalog record
package router
