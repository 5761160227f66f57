package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/weeklype/tenantrouter/pkg/authctx"
	"github.com/weeklype/tenantrouter/pkg/catalog"
	"github.com/weeklype/tenantrouter/pkg/environment"
	"github.com/weeklype/tenantrouter/pkg/jwt"
	"github.com/weeklype/tenantrouter/pkg/logger"
	"github.com/weeklype/tenantrouter/pkg/router"
	"github.com/weeklype/tenantrouter/pkg/tenant"
	"github.com/weeklype/tenantrouter/pkg/tenantdb"
)

const testSecret = "router-test-secret"

type countingCatalog struct {
	next  tenant.Catalog
	calls atomic.Int64
}

func (c *countingCatalog) Lookup(ctx context.Context, slug string) (tenant.Record, error) {
	c.calls.Add(1)
	return c.next.Lookup(ctx, slug)
}

type fakeHandle struct {
	database string
	closed   atomic.Int32
}

func (h *fakeHandle) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("SELECT 1"), nil
}
func (h *fakeHandle) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (h *fakeHandle) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (h *fakeHandle) Ping(context.Context) error                              { return nil }
func (h *fakeHandle) Close()                                                  { h.closed.Add(1) }

type fakeConnector struct {
	mu      sync.Mutex
	handles map[string][]*fakeHandle
}

func (c *fakeConnector) Connect(_ context.Context, t tenant.Validated) (tenantdb.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := &fakeHandle{database: t.DatabaseName}
	c.handles[t.Slug] = append(c.handles[t.Slug], h)
	return h, nil
}

func (c *fakeConnector) count(slug string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles[slug])
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *fakeCache) Invalidate(slug string) {
	c.mu.Lock()
	c.invalidated = append(c.invalidated, slug)
	c.mu.Unlock()
}

type harness struct {
	handler http.Handler
	static  *catalog.Static
	catalog *countingCatalog
	pools   *tenantdb.Registry
	conn    *fakeConnector
	cache   *fakeCache
	tokens  *jwt.Service
}

func newHarness(t *testing.T, env environment.Environment, configure ...func(*harness, *router.Deps)) *harness {
	t.Helper()

	static := catalog.NewStatic(
		tenant.Record{ID: 1, Slug: "acme", DisplayName: "Acme", Status: tenant.StatusActive},
		tenant.Record{ID: 2, Slug: "beta", DisplayName: "Beta", Status: tenant.StatusActive, DatabaseName: "beta_custom"},
		tenant.Record{ID: 3, Slug: "frozen", DisplayName: "Frozen", Status: tenant.StatusSuspended},
	)
	counting := &countingCatalog{next: static}
	conn := &fakeConnector{handles: make(map[string][]*fakeHandle)}
	pools := tenantdb.New(conn, tenantdb.WithLogger(logger.Discard()))
	t.Cleanup(func() { _ = pools.Shutdown(context.Background()) })

	tokens, err := jwt.New(testSecret)
	require.NoError(t, err)

	h := &harness{static: static, catalog: counting, pools: pools, conn: conn, cache: &fakeCache{}, tokens: tokens}

	deps := router.Deps{
		Logger:      logger.Discard(),
		Environment: env,
		Resolver:    tenant.NewHostResolver("weekly.pe"),
		Validator:   tenant.NewValidator(counting, env, tenant.WithValidatorLogger(logger.Discard())),
		Pools:       pools,
		Auth:        authctx.New(tokens, authctx.WithLogger(logger.Discard())),
		Cache:       h.cache,
	}
	for _, fn := range configure {
		fn(h, &deps)
	}
	h.handler = router.New(deps)
	return h
}

func (h *harness) token(t *testing.T, tenantSlug, role string) string {
	t.Helper()
	tok, err := h.tokens.Generate(jwt.Claims{UserID: "u-1", Role: role, Tenant: tenantSlug}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) do(method, host, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Host = host
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
