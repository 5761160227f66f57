package router_test

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weeklype/tenantrouter/pkg/environment"
	"github.com/weeklype/tenantrouter/pkg/httpserver"
	"github.com/weeklype/tenantrouter/pkg/logger"
	"github.com/weeklype/tenantrouter/pkg/ratelimiter"
	"github.com/weeklype/tenantrouter/pkg/router"
	"github.com/weeklype/tenantrouter/pkg/simulation"
	"github.com/weeklype/tenantrouter/pkg/tenant"
	"github.com/weeklype/tenantrouter/pkg/tenantdb"
)

func TestScenario_ActiveTenantBySubdomain(t *testing.T) {
	t.Parallel()
	h := newHarness(t, environment.Production)

	for range 3 {
		rec := h.do(http.MethodGet, "acme.weekly.pe", "/v1/public/ping", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "acme", rec.Header().Get(tenant.HeaderTenant))
		assert.Equal(t, "tenant", rec.Header().Get(tenant.HeaderTenantType))

		info := decode[router.TenantInfo](t, rec)
		assert.Equal(t, tenant.TypeTenant, info.Type)
		assert.Equal(t, "acme", info.Slug)
		assert.Equal(t, "weekly_acme", info.Database)
		assert.Equal(t, tenant.SourceRegistry, info.Source)
		assert.False(t, info.Authenticated)
	}

	assert.Equal(t, 1, h.conn.count("acme"), "pool constructed once")
	assert.Equal(t, 1, h.pools.Len())
}

func TestScenario_HeaderOverridesGlobalHost(t *testing.T) {
	t.Parallel()
	h := newHarness(t, environment.Production)

	rec := h.do(http.MethodGet, "api.weekly.pe", "/v1/public/ping", map[string]string{tenant.HeaderTenant: "acme"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "acme", rec.Header().Get(tenant.HeaderTenant))
	assert.Equal(t, "tenant", rec.Header().Get(tenant.HeaderTenantType))
}

func TestScenario_UnknownTenant(t *testing.T) {
	t.Parallel()
	h := newHarness(t, environment.Production)

	rec := h.do(http.MethodGet, "ghost.weekly.pe", "/v1/public/ping", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, tenant.KindNotFound, decode[tenant.ErrorResponse](t, rec).Error)
	assert.Equal(t, 0, h.pools.Len())
}

func TestScenario_SuspendedTenant(t *testing.T) {
	t.Parallel()
	h := newHarness(t, environment.Production)
	h.static.Put(tenant.Record{ID: 1, Slug: "acme", Status: tenant.StatusSuspended})

	rec := h.do(http.MethodGet, "acme.weekly.pe", "/v1/public/ping", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, tenant.KindTenantSuspended, decode[tenant.ErrorResponse](t, rec).Error)
	assert.Equal(t, 0, h.conn.count("acme"))
}

func TestScenario_InvalidFormat(t *testing.T) {
	t.Parallel()
	h := newHarness(t, environment.Production)

	rec := h.do(http.MethodGet, "bad_slug!.weekly.pe", "/v1/public/ping", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[tenant.ErrorResponse](t, rec)
	assert.Equal(t, tenant.KindInvalidFormat, resp.Error)
	assert.Empty(t, resp.Details, "no details in production")
	assert.Zero(t, h.catalog.calls.Load(), "registry never queried")
}

func TestScenario_DevelopmentFallback(t *testing.T) {
	t.Parallel()

	t.Run("pool", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, environment.Development)
		h.static.SetUnavailable(errors.New("dial tcp 127.0.0.1:5432: connection refused"))

		rec := h.do(http.MethodGet, "acme.weekly.pe", "/v1/public/ping", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		info := decode[router.TenantInfo](t, rec)
		assert.Equal(t, tenant.SourceFallback, info.Source)
		assert.Equal(t, "weekly_acme", info.Database)
		assert.Equal(t, 1, h.conn.count("acme"))
	})

	t.Run("simulation", func(t *testing.T) {
		t.Parallel()
		sim, err := simulation.New(environment.Development)
		require.NoError(t, err)
		h := newHarness(t, environment.Development, func(_ *harness, d *router.Deps) { d.Simulator = sim })
		h.static.SetUnavailable(errors.New("connection refused"))

		rec := h.do(http.MethodGet, "acme.weekly.pe", "/v1/tenant", bearer(h.token(t, "acme", "owner")))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, tenant.SourceFallback, decode[router.TenantInfo](t, rec).Source)
		assert.Equal(t, 0, h.conn.count("acme"), "simulation replaces the pool")
	})

	t.Run("production is terminal", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, environment.Production)
		h.static.SetUnavailable(errors.New("connection refused"))

		rec := h.do(http.MethodGet, "acme.weekly.pe", "/v1/public/ping", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, tenant.KindRegistryUnavailable, decode[tenant.ErrorResponse](t, rec).Error)
	})

	t.Run("allow list", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, environment.Development, func(h *harness, d *router.Deps) {
			d.Validator = tenant.NewValidator(h.catalog, environment.Development,
				tenant.WithAllowList([]string{"beta"}),
				tenant.WithValidatorLogger(logger.Discard()),
			)
		})
		h.static.SetUnavailable(errors.New("connection refused"))

		rec := h.do(http.MethodGet, "acme.weekly.pe", "/v1/public/ping", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, tenant.KindNotFound, decode[tenant.ErrorResponse](t, rec).Error)
	})
}

func TestGlobalAndPublicContexts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, environment.Production)

	tests := []struct {
		host string
		typ  tenant.Type
	}{
		{"api.weekly.pe", tenant.TypeGlobal},
		{"panel.weekly.pe", tenant.TypeGlobal},
		{"weekly.pe", tenant.TypePublic},
		{"www.weekly.pe", tenant.TypePublic},
		{"localhost:8080", tenant.TypePublic},
	}
	for _, tt := range tests {
		rec := h.do(http.MethodGet, tt.host, "/v1/public/ping", nil)
		require.Equal(t, http.StatusOK, rec.Code, tt.host)
		assert.Equal(t, string(tt.typ), rec.Header().Get(tenant.HeaderTenantType), tt.host)
		assert.Equal(t, tt.typ, decode[router.TenantInfo](t, rec).Type, tt.host)
	}
	assert.Zero(t, h.catalog.calls.Load())
	assert.Equal(t, 0, h.pools.Len())
}

func TestTenantRoute_Auth(t *testing.T) {
	t.Parallel()
	h := newHarness(t, environment.Development)

	t.Run("valid token", func(t *testing.T) {
		rec := h.do(http.MethodGet, "beta.weekly.pe", "/v1/tenant", bearer(h.token(t, "beta", "owner")))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		info := decode[router.TenantInfo](t, rec)
		assert.True(t, info.Authenticated)
		assert.Equal(t, "u-1", info.UserID)
		assert.Equal(t, "owner", info.Role)
		assert.Equal(t, "beta_custom", info.Database)
		assert.Equal(t, tenant.StatusActive, info.Status)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := h.do(http.MethodGet, "beta.weekly.pe", "/v1/tenant", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, tenant.KindTokenInvalid, decode[tenant.ErrorResponse](t, rec).Error)
	})

	t.Run("token for another tenant", func(t *testing.T) {
		rec := h.do(http.MethodGet, "beta.weekly.pe", "/v1/tenant", bearer(h.token(t, "acme", "owner")))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, tenant.KindTenantMismatch, decode[tenant.ErrorResponse](t, rec).Error)
	})

	t.Run("optional route ignores a mismatched token", func(t *testing.T) {
		rec := h.do(http.MethodGet, "beta.weekly.pe", "/v1/public/ping", bearer(h.token(t, "acme", "owner")))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, decode[router.TenantInfo](t, rec).Authenticated)
	})

	t.Run("optional route binds a matching token", func(t *testing.T) {
		rec := h.do(http.MethodGet, "beta.weekly.pe", "/v1/public/ping", bearer(h.token(t, "beta", "staff")))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[router.TenantInfo](t, rec).Authenticated)
	})
}

func TestAdminPools(t *testing.T) {
	t.Parallel()
	h := newHarness(t, environment.Production)
	admin := bearer(h.token(t, "global", router.AdminRole))

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "acme.weekly.pe", "/v1/public/ping", nil).Code)

	rec := h.do(http.MethodGet, "api.weekly.pe", "/admin/pools", admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decode[tenantdb.Stats](t, rec)
	assert.Equal(t, 1, stats.Pools)
	require.Len(t, stats.Entries, 1)
	assert.Equal(t, "acme", stats.Entries[0].Slug)
	assert.Equal(t, "weekly_acme", stats.Entries[0].Database)

	rec = h.do(http.MethodDelete, "api.weekly.pe", "/admin/pools/acme", admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, router.EvictResult{Slug: "acme", Evicted: true}, decode[router.EvictResult](t, rec))
	assert.Equal(t, 0, h.pools.Len())
	assert.Equal(t, []string{"acme"}, h.cache.invalidated)

	rec = h.do(http.MethodDelete, "api.weekly.pe", "/admin/pools/acme", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[router.EvictResult](t, rec).Evicted)

	rec = h.do(http.MethodDelete, "api.weekly.pe", "/admin/pools/x", admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// the next request rebuilds the pool
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "acme.weekly.pe", "/v1/public/ping", nil).Code)
	assert.Equal(t, 2, h.conn.count("acme"))
}

func TestAdminPools_Rejections(t *testing.T) {
	t.Parallel()
	h := newHarness(t, environment.Production)

	tests := []struct {
		name   string
		host   string
		header map[string]string
		code   int
		kind   tenant.Kind
	}{
		{"no token", "api.weekly.pe", nil, http.StatusUnauthorized, tenant.KindTokenInvalid},
		{"wrong role", "api.weekly.pe", bearer(h.token(t, "global", "staff")), http.StatusForbidden, tenant.KindForbidden},
		{"tenant token", "api.weekly.pe", bearer(h.token(t, "acme", router.AdminRole)), http.StatusUnauthorized, tenant.KindTenantMismatch},
		{"tenant host", "acme.weekly.pe", bearer(h.token(t, "acme", router.AdminRole)), http.StatusForbidden, tenant.KindForbidden},
		{"public host", "weekly.pe", bearer(h.token(t, "public", router.AdminRole)), http.StatusForbidden, tenant.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodGet, tt.host, "/admin/pools", tt.header)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode[tenant.ErrorResponse](t, rec).Error)
		})
	}
}

func TestConcealNotFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, environment.Production, func(_ *harness, d *router.Deps) { d.ConcealNotFound = true })

	rec := h.do(http.MethodGet, "ghost.weekly.pe", "/v1/public/ping", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, tenant.KindForbidden, decode[tenant.ErrorResponse](t, rec).Error)

	rec = h.do(http.MethodGet, "frozen.weekly.pe", "/v1/public/ping", nil)
	assert.Equal(t, tenant.KindTenantSuspended, decode[tenant.ErrorResponse](t, rec).Error)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	limiter, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	h := newHarness(t, environment.Production, func(_ *harness, d *router.Deps) { d.Limiter = limiter })

	for i := range 2 {
		rec := h.do(http.MethodGet, "acme.weekly.pe", "/v1/public/ping", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, strconv.Itoa(1-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := h.do(http.MethodGet, "acme.weekly.pe", "/v1/public/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, tenant.KindRateLimited, decode[tenant.ErrorResponse](t, rec).Error)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = h.do(http.MethodGet, "beta.weekly.pe", "/v1/public/ping", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "buckets are per tenant")
}

func TestResolveRateLimit(t *testing.T) {
	t.Parallel()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	limiter, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	h := newHarness(t, environment.Production, func(_ *harness, d *router.Deps) { d.ResolveLimiter = limiter })

	for _, slug := range []string{"ghost-1", "ghost-2"} {
		rec := h.do(http.MethodGet, slug+".weekly.pe", "/v1/public/ping", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	}

	rec := h.do(http.MethodGet, "ghost-3.weekly.pe", "/v1/public/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, tenant.KindRateLimited, decode[tenant.ErrorResponse](t, rec).Error)
	assert.EqualValues(t, 2, h.catalog.calls.Load(), "limited requests never reach the registry")

	rec = h.do(http.MethodGet, "ghost-4.weekly.pe", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "probes are not limited")
}

func TestProbes(t *testing.T) {
	t.Parallel()

	var ready error
	h := newHarness(t, environment.Production, func(_ *harness, d *router.Deps) {
		d.Readiness = []httpserver.Check{{Name: "registry", Probe: func(context.Context) error { return ready }}}
	})

	rec := h.do(http.MethodGet, "ghost.weekly.pe", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ALIVE", rec.Body.String())
	assert.Empty(t, rec.Header().Get(tenant.HeaderTenant), "probes skip tenant resolution")

	rec = h.do(http.MethodGet, "ghost.weekly.pe", "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ready = errors.New("registry down")
	rec = h.do(http.MethodGet, "ghost.weekly.pe", "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, h.catalog.calls.Load())
}

func TestReservedTenantSlugs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, environment.Production)
	h.static.Put(tenant.Record{ID: 9, Slug: "global", Status: tenant.StatusActive})
	h.static.Put(tenant.Record{ID: 10, Slug: "public", Status: tenant.StatusActive})
	platform := bearer(h.token(t, "global", router.AdminRole))

	tests := []struct {
		name   string
		host   string
		header map[string]string
	}{
		{"global subdomain", "global.weekly.pe", platform},
		{"public subdomain", "public.weekly.pe", platform},
		{"global header", "acme.weekly.pe", map[string]string{"Authorization": platform["Authorization"], tenant.HeaderTenant: "global"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodGet, tt.host, "/v1/tenant", tt.header)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tenant.KindInvalidFormat, decode[tenant.ErrorResponse](t, rec).Error)
		})
	}

	assert.Zero(t, h.catalog.calls.Load(), "reserved slugs never reach the registry")
	assert.Zero(t, h.pools.Len())

	rec := h.do(http.MethodGet, "api.weekly.pe", "/admin/pools", platform)
	assert.Equal(t, http.StatusOK, rec.Code, "platform token still works on the global host")
}
