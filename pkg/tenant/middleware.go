package tenant

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/weeklype/tenantrouter/pkg/logger"
)

// Middleware resolves, validates and binds the tenant of every request.
// Global and Public requests pass through with their context variant; tenant
// requests are rejected unless validation succeeds and a database handle is
// obtained. The pool lease is held until the downstream handler returns.
func Middleware(resolver *HostResolver, validator *Validator, pools Pools, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		errorHandler: WriteError,
		logger:       validator.logger,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	simulate := cfg.simulator != nil && !validator.Environment().IsProduction()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			cand := resolver.Resolve(r)
			switch cand.Type {
			case TypeGlobal:
				serveWith(w, r, next, Global{})
				return
			case TypePublic:
				serveWith(w, r, next, Public{})
				return
			}

			w.Header().Set(HeaderTenant, cand.Slug)
			w.Header().Set(HeaderTenantType, string(TypeTenant))

			ctx := r.Context()
			v, err := validator.Validate(ctx, cand.Slug)
			if err != nil {
				kind, _ := ErrorKindOf(err)
				cfg.logger.DebugContext(ctx, "tenant rejected",
					logger.Tenant(cand.Slug), logger.ErrorKind(string(kind)), logger.Error(err))
				cfg.errorHandler(w, r, err)
				return
			}

			if simulate && v.Source == SourceFallback {
				serveWith(w, r, next, NewBound(v, cfg.simulator.ForTenant(v.Slug)))
				return
			}

			if pools == nil {
				cfg.errorHandler(w, r, fmt.Errorf("%w: no pool registry configured", ErrDatabaseUnavailable))
				return
			}
			lease, err := pools.Acquire(ctx, v)
			if err != nil {
				if !errors.Is(err, ErrDatabaseUnavailable) {
					err = fmt.Errorf("%w: %w", ErrDatabaseUnavailable, err)
				}
				cfg.logger.ErrorContext(ctx, "tenant database unavailable",
					logger.Tenant(v.Slug), logger.Error(err))
				cfg.errorHandler(w, r, err)
				return
			}
			defer lease.Release()

			serveWith(w, r, next, NewBound(v, lease.DB()))
		})
	}
}

func serveWith(w http.ResponseWriter, r *http.Request, next http.Handler, tc Context) {
	w.Header().Set(HeaderTenant, tc.Slug())
	w.Header().Set(HeaderTenantType, string(tc.Type()))
	next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
}
