package tenantdb

import (
	"context"
	"fmt"

	"github.com/weeklype/tenantrouter/pkg/pg"
	"github.com/weeklype/tenantrouter/pkg/tenant"
)

// Handle is a live tenant pool. *pgxpool.Pool satisfies it.
type Handle interface {
	tenant.DB
	Close()
}

// Connector opens the pool of one tenant database.
type Connector interface {
	Connect(ctx context.Context, t tenant.Validated) (Handle, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, t tenant.Validated) (Handle, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context, t tenant.Validated) (Handle, error) {
	return f(ctx, t)
}

// PGConnector opens pgx pools against the tenant's database on a shared
// server configuration.
type PGConnector struct {
	base pg.Config
}

// NewPGConnector uses base for everything but the database name.
func NewPGConnector(base pg.Config) *PGConnector {
	return &PGConnector{base: base}
}

// Connect opens and pings the pool of t.
func (c *PGConnector) Connect(ctx context.Context, t tenant.Validated) (Handle, error) {
	pool, err := pg.Connect(ctx, c.base.WithDatabase(t.DatabaseName))
	if err != nil {
		if pg.IsUndefinedDatabaseError(err) {
			return nil, fmt.Errorf("database %q does not exist: %w", t.DatabaseName, err)
		}
		return nil, err
	}
	return pool, nil
}
