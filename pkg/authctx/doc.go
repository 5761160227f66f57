// Package authctx binds an authenticated identity to a request that already
// carries a tenant context.
//
// A token is accepted only when its tenant claim equals the slug of the
// resolved tenant context ("global" or "public" for the non-tenant
// variants). A valid token for one tenant is therefore rejected on another
// tenant's host, and every such mismatch is audited at warn level.
//
// Require rejects requests that cannot be bound. Optional lets them through
// without an identity.
package authctx
