// Package tenantdb keeps one connection pool per tenant database and hands
// out leases on them.
//
// Pools are created lazily on first use. Concurrent first requests for the
// same slug share a single construction through singleflight; the
// construction runs under its own connect timeout and is not cancelled when
// the request that triggered it goes away, while every waiter still honours
// its own context. A failed construction is never cached.
//
// Pools live until an administrator evicts them, the background janitor
// reclaims them after an idle period, or the registry is shut down. A pool
// with outstanding leases is never reclaimed by the janitor, and an evicted
// pool is closed only after its last lease is released.
//
//	reg := tenantdb.New(tenantdb.NewPGConnector(baseCfg),
//		tenantdb.WithMaxPools(500),
//		tenantdb.WithIdleTTL(30*time.Minute),
//	)
//	reg.Init(ctx)
//	defer reg.Shutdown(ctx)
//
//	lease, err := reg.Acquire(ctx, validated)
//	if err != nil {
//		return err
//	}
//	defer lease.Release()
//	row := lease.DB().QueryRow(ctx, "SELECT 1")
package tenantdb
