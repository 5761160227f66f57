package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/weeklype/tenantrouter/pkg/pg"
	"github.com/weeklype/tenantrouter/pkg/tenant"
)

// Defaults for the registry client.
const (
	DefaultTable         = "tenants"
	DefaultLookupTimeout = 2 * time.Second
)

// Querier is the subset of *pgxpool.Pool used by Client.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Client looks tenants up in the registry table.
type Client struct {
	db      Querier
	query   string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTable sets the registry table, optionally schema-qualified
// ("registry.tenants"). The name is quoted as an identifier.
func WithTable(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.query = lookupQuery(name)
		}
	}
}

// WithLookupTimeout bounds a single lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a registry client on top of db.
func New(db Querier, opts ...Option) *Client {
	c := &Client{
		db:      db,
		query:   lookupQuery(DefaultTable),
		timeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the registry record for slug. Slugs are matched exactly.
func (c *Client) Lookup(ctx context.Context, slug string) (tenant.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		rec    tenant.Record
		status string
	)
	// pgxpool releases the connection inside Scan on every path.
	err := c.db.QueryRow(ctx, c.query, slug).Scan(
		&rec.ID, &rec.Slug, &rec.DisplayName, &status, &rec.DatabaseName,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return tenant.Record{}, fmt.Errorf("%w: %s", tenant.ErrNotFound, slug)
		}
		return tenant.Record{}, fmt.Errorf("%w: %w", tenant.ErrRegistryUnavailable, err)
	}
	rec.Status = tenant.Status(status)
	return rec, nil
}

func lookupQuery(table string) string {
	ident := pgx.Identifier(strings.Split(table, ".")).Sanitize()
	return "SELECT id, slug, display_name, status, COALESCE(database_name, '') FROM " + ident + " WHERE slug = $1 LIMIT 1"
}
