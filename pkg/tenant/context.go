package tenant

import (
	"context"
	"log/slog"

	"github.com/weeklype/tenantrouter/pkg/logger"
)

// Type is the coarse classification exposed in the X-Tenant-Type header.
type Type string

const (
	TypeGlobal Type = "global"
	TypeTenant Type = "tenant"
	TypePublic Type = "public"
)

// Context is the tenant context of a single request. The set of
// implementations is closed: Global, Public and *Bound.
type Context interface {
	Type() Type
	// Slug is the resolved slug for tenants, or "global"/"public".
	Slug() string
	// DB is the tenant database, nil for Global and Public.
	DB() DB
	// Validated reports whether the tenant passed validation.
	Validated() bool

	sealed()
}

// Global is the administrative context served on api/panel hosts.
type Global struct{}

func (Global) Type() Type      { return TypeGlobal }
func (Global) Slug() string    { return string(TypeGlobal) }
func (Global) DB() DB          { return nil }
func (Global) Validated() bool { return false }
func (Global) sealed()         {}

// Public is the anonymous context with no tenant.
type Public struct{}

func (Public) Type() Type      { return TypePublic }
func (Public) Slug() string    { return string(TypePublic) }
func (Public) DB() DB          { return nil }
func (Public) Validated() bool { return false }
func (Public) sealed()         {}

// Bound is a validated tenant together with its database handle.
type Bound struct {
	Tenant Validated
	db     DB
}

// NewBound binds db to a validated tenant.
func NewBound(t Validated, db DB) *Bound {
	return &Bound{Tenant: t, db: db}
}

func (b *Bound) Type() Type      { return TypeTenant }
func (b *Bound) Slug() string    { return b.Tenant.Slug }
func (b *Bound) DB() DB          { return b.db }
func (b *Bound) Validated() bool { return true }
func (b *Bound) sealed()         {}

type contextKey struct{}

// WithContext stores tc on ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext returns the tenant context of the request, or nil when the
// tenant middleware did not run.
func FromContext(ctx context.Context) Context {
	tc, _ := ctx.Value(contextKey{}).(Context)
	return tc
}

// BoundFromContext returns the bound tenant, if any.
func BoundFromContext(ctx context.Context) (*Bound, bool) {
	b, ok := FromContext(ctx).(*Bound)
	return b, ok
}

// DBFromContext returns the tenant database bound to ctx.
func DBFromContext(ctx context.Context) (DB, error) {
	b, ok := BoundFromContext(ctx)
	if !ok || b.DB() == nil {
		return nil, ErrNoTenantInContext
	}
	return b.DB(), nil
}

// LoggerExtractor returns a ContextExtractor for the logger that adds the
// resolved tenant slug and type.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		tc := FromContext(ctx)
		if tc == nil {
			return slog.Attr{}, false
		}
		return slog.Group("tenant",
			slog.String("slug", tc.Slug()),
			slog.String("type", string(tc.Type())),
		), true
	}
}
