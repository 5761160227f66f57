package tenantdb

import "errors"

var (
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("tenantdb: registry closed")
	// ErrPoolLimit is returned when the maximum number of live pools is reached.
	ErrPoolLimit = errors.New("tenantdb: pool limit reached")
	// ErrSlugMismatch signals a pool keyed under a different tenant.
	ErrSlugMismatch = errors.New("tenantdb: pool belongs to a different tenant")
)
