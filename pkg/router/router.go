package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/weeklype/tenantrouter/pkg/authctx"
	"github.com/weeklype/tenantrouter/pkg/environment"
	"github.com/weeklype/tenantrouter/pkg/httpserver"
	"github.com/weeklype/tenantrouter/pkg/logger"
	"github.com/weeklype/tenantrouter/pkg/ratelimiter"
	"github.com/weeklype/tenantrouter/pkg/tenant"
	"github.com/weeklype/tenantrouter/pkg/tenantdb"
)

// AdminRole is the token role allowed on /admin routes.
const AdminRole = "admin"

// PoolRegistry is the pool registry as seen by the router.
type PoolRegistry interface {
	tenant.Pools
	Stats() tenantdb.Stats
	Evict(ctx context.Context, slug string) bool
}

// CacheInvalidator drops cached catalog records.
type CacheInvalidator interface {
	Invalidate(slug string)
}

// Deps are the router's collaborators. Resolver, Validator, Pools and Auth
// are required; the rest are optional.
type Deps struct {
	Logger      *slog.Logger
	Environment environment.Environment

	Resolver  *tenant.HostResolver
	Validator *tenant.Validator
	Pools     PoolRegistry
	Auth      *authctx.Binder

	Simulator tenant.Simulator
	Cache     CacheInvalidator
	// ResolveLimiter is keyed by client address and runs before tenant
	// resolution; Limiter is keyed by tenant and client and runs after it.
	ResolveLimiter *ratelimiter.Bucket
	Limiter        *ratelimiter.Bucket

	// ConcealNotFound renders unknown tenants as a generic Forbidden.
	ConcealNotFound bool

	Readiness    []httpserver.Check
	ProbeTimeout time.Duration

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// New builds the HTTP handler.
func New(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = logger.Discard()
	}

	errorHandler := tenant.WriteError
	if d.ConcealNotFound {
		errorHandler = tenant.ConcealNotFound(errorHandler)
	}

	tenantOpts := []tenant.Option{
		tenant.WithErrorHandler(errorHandler),
		tenant.WithLogger(log),
	}
	if d.Simulator != nil {
		tenantOpts = append(tenantOpts, tenant.WithSimulator(d.Simulator))
	}

	h := &handlers{pools: d.Pools, cache: d.Cache, errorHandler: errorHandler, logger: log}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(log),
		middleware.Recoverer,
		environment.Middleware(d.Environment),
	)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(log, d.ProbeTimeout, d.Readiness...))

	r.Group(func(r chi.Router) {
		if d.ResolveLimiter != nil {
			r.Use(ratelimiter.Middleware(d.ResolveLimiter, ratelimiter.IPKey,
				ratelimiter.WithLogger(log),
				ratelimiter.WithErrorHandler(errorHandler),
			))
		}
		r.Use(tenant.Middleware(d.Resolver, d.Validator, d.Pools, tenantOpts...))
		if d.Limiter != nil {
			r.Use(ratelimiter.Middleware(d.Limiter,
				ratelimiter.Composite(ratelimiter.TenantKey, ratelimiter.IPKey),
				ratelimiter.WithLogger(log),
				ratelimiter.WithErrorHandler(errorHandler),
			))
		}

		r.Route("/v1", func(r chi.Router) {
			r.With(d.Auth.Require()).Get("/tenant", h.tenantInfo)
			r.With(d.Auth.Optional()).Get("/public/ping", h.ping)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireType(tenant.TypeGlobal, errorHandler), d.Auth.Require(), authctx.RequireRole(AdminRole))
			r.Get("/pools", h.poolStats)
			r.Delete("/pools/{slug}", h.evictPool)
		})
	})

	var otelOpts []otelhttp.Option
	if d.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(d.TracerProvider))
	}
	if d.MeterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(d.MeterProvider))
	}
	otelOpts = append(otelOpts, otelhttp.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/healthz" && r.URL.Path != "/readyz"
	}))
	return otelhttp.NewHandler(r, "tenantrouter", otelOpts...)
}

// requireType rejects requests whose tenant context is not of type t.
func requireType(t tenant.Type, errorHandler tenant.ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc := tenant.FromContext(r.Context())
			if tc == nil || tc.Type() != t {
				errorHandler(w, r, tenant.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
