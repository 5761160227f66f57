package tenant

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Status is the lifecycle state of a tenant as recorded in the registry.
// Transitions (active → suspended → cancelled) are written elsewhere; this
// package only observes them.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Record is one onboarded business as stored in the shared registry.
type Record struct {
	ID           int64  `json:"id"`
	Slug         string `json:"slug"`
	DisplayName  string `json:"display_name"`
	Status       Status `json:"status"`
	DatabaseName string `json:"database_name,omitempty"` // empty means derived from the slug
}

// Source tells whether a tenant was vouched for by the registry or admitted
// by the non-production fallback.
type Source string

const (
	SourceRegistry Source = "registry"
	SourceFallback Source = "fallback"
)

// Validated is the immutable result of a successful validation.
type Validated struct {
	Slug         string `json:"slug"`
	Status       Status `json:"status"`
	DatabaseName string `json:"database_name"`
	Source       Source `json:"source"`
}

// DB is the handle business handlers use to reach a tenant's database.
// *pgxpool.Pool satisfies it, as does the in-memory simulation.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Catalog looks tenants up in the shared registry.
// Implementations return ErrNotFound for unknown slugs and wrap every other
// failure in ErrRegistryUnavailable.
type Catalog interface {
	Lookup(ctx context.Context, slug string) (Record, error)
}

// Lease pins a tenant pool for the duration of a request.
type Lease interface {
	DB() DB
	Release()
}

// Pools hands out leases on per-tenant connection pools.
type Pools interface {
	Acquire(ctx context.Context, t Validated) (Lease, error)
}

// Simulator provides stand-in databases for tenants admitted by the
// development fallback while the registry is unreachable.
type Simulator interface {
	ForTenant(slug string) DB
}

// DatabaseName derives the database of a tenant: prefix_slug, or the slug
// itself when prefix is empty.
func DatabaseName(prefix, slug string) string {
	if prefix == "" {
		return slug
	}
	return prefix + "_" + slug
}
