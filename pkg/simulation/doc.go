// Package simulation provides an in-memory stand-in for a tenant database.
//
// It is used outside production when the tenant registry is unreachable and
// a tenant was admitted by the development fallback. Every tenant gets the
// same deterministic dataset (services, staff, clients, reservations) with
// tenant-specific client names, so local work continues without a database
// server.
//
// Only a small family of read queries is understood:
//
//	SELECT 1
//	SELECT <cols|*|count(*)> FROM <table> [WHERE id = $1] [ORDER BY <col> [DESC]] [LIMIT <n>]
//
// Anything else fails with ErrUnsupportedQuery.
package simulation
