package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/weeklype/tenantrouter/pkg/authctx"
	"github.com/weeklype/tenantrouter/pkg/logger"
	"github.com/weeklype/tenantrouter/pkg/tenant"
)

type handlers struct {
	pools        PoolRegistry
	cache        CacheInvalidator
	errorHandler tenant.ErrorHandler
	logger       *slog.Logger
}

// TenantInfo describes the resolved context of a request.
type TenantInfo struct {
	Type          tenant.Type   `json:"type"`
	Slug          string        `json:"slug"`
	Database      string        `json:"database,omitempty"`
	Status        tenant.Status `json:"status,omitempty"`
	Source        tenant.Source `json:"source,omitempty"`
	Authenticated bool          `json:"authenticated"`
	UserID        string        `json:"user_id,omitempty"`
	Role          string        `json:"role,omitempty"`
}

// EvictResult is the body of DELETE /admin/pools/{slug}.
type EvictResult struct {
	Slug    string `json:"slug"`
	Evicted bool   `json:"evicted"`
}

func describe(r *http.Request) TenantInfo {
	var info TenantInfo
	if tc := tenant.FromContext(r.Context()); tc != nil {
		info.Type, info.Slug = tc.Type(), tc.Slug()
	}
	if b, ok := tenant.BoundFromContext(r.Context()); ok {
		info.Database = b.Tenant.DatabaseName
		info.Status = b.Tenant.Status
		info.Source = b.Tenant.Source
	}
	if ac, ok := authctx.FromContext(r.Context()); ok {
		info.Authenticated = true
		info.UserID, info.Role = ac.UserID, ac.Role
	}
	return info
}

// tenantInfo also pings the bound database, so a 200 proves the handle works.
func (h *handlers) tenantInfo(w http.ResponseWriter, r *http.Request) {
	if b, ok := tenant.BoundFromContext(r.Context()); ok {
		if err := b.DB().Ping(r.Context()); err != nil {
			h.logger.ErrorContext(r.Context(), "tenant database ping failed",
				logger.Tenant(b.Slug()), logger.Error(err))
			h.errorHandler(w, r, fmt.Errorf("%w: %w", tenant.ErrDatabaseUnavailable, err))
			return
		}
	}
	writeJSON(w, http.StatusOK, describe(r))
}

func (h *handlers) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, describe(r))
}

func (h *handlers) poolStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pools.Stats())
}

func (h *handlers) evictPool(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !tenant.ValidSlug(slug) {
		h.errorHandler(w, r, tenant.ErrInvalidFormat)
		return
	}

	evicted := h.pools.Evict(r.Context(), slug)
	if h.cache != nil {
		h.cache.Invalidate(slug)
	}
	ac, _ := authctx.FromContext(r.Context())
	h.logger.InfoContext(r.Context(), "tenant pool evicted by administrator",
		logger.Tenant(slug), logger.UserID(ac.UserID), slog.Bool("evicted", evicted))

	writeJSON(w, http.StatusOK, EvictResult{Slug: slug, Evicted: evicted})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
