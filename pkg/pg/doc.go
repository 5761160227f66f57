// Package pg opens and verifies PostgreSQL connection pools with pgx/v5.
//
// It is used twice by the tenant router: once for the small pool dedicated to
// the shared tenant registry, and once per tenant database by the pool
// registry in package tenantdb.
//
//	base := pg.Config{Host: "db", Port: 5432, User: "app", MaxConns: 10, ConnectTimeout: 5 * time.Second}
//
//	registry, err := pg.Open(ctx, base.WithDatabase("weekly_registry"))
//	tenantPool, err := pg.Connect(ctx, base.WithDatabase("weekly_acme"))
//
// Open never touches the network; Connect pings every attempt and closes the
// pool again when the ping fails. Error helpers classify pgx errors so callers
// can distinguish missing rows, missing databases and connectivity failures.
package pg
