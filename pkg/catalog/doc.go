// Package catalog implements tenant.Catalog against the shared registry
// database.
//
// Client issues a single parameterized query per lookup through a small,
// dedicated pgx pool and enforces a per-lookup timeout. Static is an in-memory
// catalog for local development and tests. Cached puts a ristretto TTL cache
// in front of any catalog; only successful lookups are cached, so unknown
// slugs and outages always reach the underlying catalog.
package catalog
