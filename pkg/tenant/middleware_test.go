package tenant_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weeklype/tenantrouter/pkg/environment"
	"github.com/weeklype/tenantrouter/pkg/tenant"
)

type captured struct {
	called bool
	tc     tenant.Context
}

func captureHandler(c *captured) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.called = true
		c.tc = tenant.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

type harness struct {
	catalog *fakeCatalog
	pools   *fakePools
	handler http.Handler
	seen    *captured
}

func newHarness(env environment.Environment, cat *fakeCatalog, opts ...tenant.Option) *harness {
	h := &harness{catalog: cat, pools: &fakePools{}, seen: &captured{}}
	mw := tenant.Middleware(
		tenant.NewHostResolver("weekly.pe"),
		newValidator(cat, env, tenant.WithAllowList(nil)),
		h.pools,
		opts...,
	)
	h.handler = environment.Middleware(env)(mw(captureHandler(h.seen)))
	return h
}

func (h *harness) do(host string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/tenant", nil)
	req.Host = host
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ActiveTenant(t *testing.T) {
	t.Parallel()

	h := newHarness(environment.Production, newFakeCatalog(active("acme")))
	rec := h.do("acme.weekly.pe", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "acme", rec.Header().Get(tenant.HeaderTenant))
	assert.Equal(t, "tenant", rec.Header().Get(tenant.HeaderTenantType))

	require.True(t, h.seen.called)
	bound, ok := h.seen.tc.(*tenant.Bound)
	require.True(t, ok)
	assert.Equal(t, "acme", bound.Slug())
	assert.True(t, bound.Validated())
	assert.Equal(t, "weekly_acme", bound.DB().(*fakeDB).name)

	assert.EqualValues(t, 1, h.pools.acquired.Load())
	assert.EqualValues(t, 1, h.pools.released.Load(), "lease must be released after the handler returns")
}

func TestMiddleware_HeaderOverride(t *testing.T) {
	t.Parallel()

	h := newHarness(environment.Production, newFakeCatalog(active("acme"), active("beta")))
	rec := h.do("acme.weekly.pe", map[string]string{tenant.HeaderTenant: "beta"})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "beta", h.seen.tc.Slug())
	assert.Equal(t, "weekly_beta", h.seen.tc.DB().(*fakeDB).name)
}

func TestMiddleware_GlobalAndPublic(t *testing.T) {
	t.Parallel()

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
		t.Run(tt.host, func(t *testing.T) {
			t.Parallel()

			h := newHarness(environment.Production, newFakeCatalog())
			rec := h.do(tt.host, nil)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, string(tt.typ), rec.Header().Get(tenant.HeaderTenantType))
			assert.Equal(t, string(tt.typ), rec.Header().Get(tenant.HeaderTenant))
			assert.Equal(t, tt.typ, h.seen.tc.Type())
			assert.Nil(t, h.seen.tc.DB())
			assert.False(t, h.seen.tc.Validated())
			assert.Zero(t, h.catalog.calls.Load())
			assert.Zero(t, h.pools.acquired.Load())
		})
	}
}

func TestMiddleware_Rejections(t *testing.T) {
	t.Parallel()

	suspended := active("frozen")
	suspended.Status = tenant.StatusSuspended
	cancelled := active("gone")
	cancelled.Status = tenant.StatusCancelled

	tests := []struct {
		name   string
		host   string
		status int
		kind   tenant.Kind
	}{
		{"invalid format", "bad_slug!.weekly.pe", http.StatusBadRequest, tenant.KindInvalidFormat},
		{"unknown tenant", "ghost.weekly.pe", http.StatusForbidden, tenant.KindNotFound},
		{"suspended tenant", "frozen.weekly.pe", http.StatusForbidden, tenant.KindTenantSuspended},
		{"cancelled tenant", "gone.weekly.pe", http.StatusForbidden, tenant.KindTenantCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(environment.Production, newFakeCatalog(suspended, cancelled))
			rec := h.do(tt.host, nil)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, decodeError(t, rec).Error)
			assert.False(t, h.seen.called)
			assert.Zero(t, h.pools.acquired.Load())
		})
	}
}

func TestMiddleware_InvalidFormatNeverQueriesCatalog(t *testing.T) {
	t.Parallel()

	h := newHarness(environment.Production, newFakeCatalog())
	rec := h.do("weekly.pe", map[string]string{tenant.HeaderTenant: "x"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.catalog.calls.Load())
}

func TestMiddleware_RegistryDown(t *testing.T) {
	t.Parallel()

	outage := fmt.Errorf("%w: timeout", tenant.ErrRegistryUnavailable)

	t.Run("production returns 500", func(t *testing.T) {
		t.Parallel()

		cat := newFakeCatalog()
		cat.err = outage
		h := newHarness(environment.Production, cat, tenant.WithSimulator(fakeSimulator{}))
		rec := h.do("acme.weekly.pe", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, tenant.KindRegistryUnavailable, body.Error)
		assert.Empty(t, body.Details)
		assert.False(t, h.seen.called)
	})

	t.Run("development binds simulator", func(t *testing.T) {
		t.Parallel()

		cat := newFakeCatalog()
		cat.err = outage
		h := newHarness(environment.Development, cat, tenant.WithSimulator(fakeSimulator{}))
		rec := h.do("acme.weekly.pe", nil)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		bound, ok := h.seen.tc.(*tenant.Bound)
		require.True(t, ok)
		assert.Equal(t, tenant.SourceFallback, bound.Tenant.Source)
		assert.Equal(t, "sim:acme", bound.DB().(*fakeDB).name)
		assert.Zero(t, h.pools.acquired.Load())
	})

	t.Run("development without simulator uses pools", func(t *testing.T) {
		t.Parallel()

		cat := newFakeCatalog()
		cat.err = outage
		h := newHarness(environment.Development, cat)
		rec := h.do("acme.weekly.pe", nil)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.EqualValues(t, 1, h.pools.acquired.Load())
	})
}

func TestMiddleware_SimulatorIgnoredForRegistryTenants(t *testing.T) {
	t.Parallel()

	h := newHarness(environment.Development, newFakeCatalog(active("acme")), tenant.WithSimulator(fakeSimulator{}))
	rec := h.do("acme.weekly.pe", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "weekly_acme", h.seen.tc.DB().(*fakeDB).name)
}

func TestMiddleware_DatabaseUnavailable(t *testing.T) {
	t.Parallel()

	h := newHarness(environment.Development, newFakeCatalog(active("acme")))
	h.pools.err = fmt.Errorf("dial: connection refused")
	rec := h.do("acme.weekly.pe", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, tenant.KindDatabaseUnavailable, body.Error)
	assert.Contains(t, body.Details, "connection refused")
	assert.False(t, h.seen.called)
}

func TestMiddleware_SkipPaths(t *testing.T) {
	t.Parallel()

	cat := newFakeCatalog()
	seen := &captured{}
	mw := tenant.Middleware(tenant.NewHostResolver("weekly.pe"), newValidator(cat, environment.Production), nil,
		tenant.WithSkipPaths("/healthz"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Host = "bad_slug!.weekly.pe"
	rec := httptest.NewRecorder()
	mw(captureHandler(seen)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, seen.called)
	assert.Nil(t, seen.tc)
}

func TestMiddleware_ConcealNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(environment.Production, newFakeCatalog(),
		tenant.WithErrorHandler(tenant.ConcealNotFound(tenant.WriteError)))
	rec := h.do("ghost.weekly.pe", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, tenant.KindForbidden, decodeError(t, rec).Error)
}
