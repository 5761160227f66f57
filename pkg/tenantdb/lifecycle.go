package tenantdb

import (
	"context"
	"fmt"
	"time"

	"github.com/weeklype/tenantrouter/pkg/logger"
)

// Init starts the idle janitor. It is safe to call more than once; the
// janitor stops when ctx is cancelled or on Shutdown.
func (r *Registry) Init(ctx context.Context) {
	r.startOnce.Do(func() {
		if r.opts.idleTTL <= 0 {
			close(r.done)
			return
		}
		go r.janitor(ctx)
	})
}

func (r *Registry) janitor(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep closes pools that have no leases and have been idle longer than the
// idle TTL. Without it a process serving many tenants would keep a pool, and
// its connections, open for every tenant it has ever seen. The janitor calls
// it on every sweep interval; it returns the evicted slugs.
func (r *Registry) Sweep(ctx context.Context) []string {
	if r.opts.idleTTL <= 0 {
		return nil
	}
	cutoff := r.opts.now().Add(-r.opts.idleTTL).UnixNano()

	var idle []*entry
	r.mu.Lock()
	for slug, e := range r.pools {
		if e.leases.Load() == 0 && e.lastUsed.Load() < cutoff {
			delete(r.pools, slug)
			idle = append(idle, e)
		}
	}
	r.mu.Unlock()

	slugs := make([]string, 0, len(idle))
	for _, e := range idle {
		r.retire(e)
		r.metrics.evict(ctx, "idle")
		r.opts.logger.InfoContext(ctx, "idle tenant pool closed",
			logger.Tenant(e.slug), logger.Component("tenantdb"), logger.Event("pool_idle_evicted"))
		slugs = append(slugs, e.slug)
	}
	return slugs
}

// Shutdown closes every pool and rejects further use with ErrClosed. Pools
// with outstanding leases are closed when released, or forcibly once ctx is
// done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := make([]*entry, 0, len(r.pools))
	for _, e := range r.pools {
		entries = append(entries, e)
	}
	clear(r.pools)
	r.mu.Unlock()

	close(r.stop)
	r.startOnce.Do(func() { close(r.done) })
	<-r.done

	for _, e := range entries {
		r.retire(e)
		r.metrics.evict(ctx, "shutdown")
	}

	var forced int
	for _, e := range entries {
		select {
		case <-e.closed:
		case <-ctx.Done():
			forced++
			go e.close()
		}
	}
	if forced > 0 {
		return fmt.Errorf("tenantdb: force-closed %d leased pools: %w", forced, ctx.Err())
	}
	return nil
}
