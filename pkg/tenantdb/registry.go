package tenantdb

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/singleflight"

	"github.com/weeklype/tenantrouter/pkg/logger"
	"github.com/weeklype/tenantrouter/pkg/tenant"
)

type entry struct {
	slug      string
	database  string
	db        Handle
	createdAt time.Time
	lastUsed  atomic.Int64 // unix nanoseconds
	leases    atomic.Int64
	retired   atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}
}

func (e *entry) close() {
	e.closeOnce.Do(func() {
		e.db.Close()
		close(e.closed)
	})
}

// Registry owns the per-tenant pools. Each tenant gets at most one pool per
// process: concurrent first requests for a slug share a single construction,
// and a tenant can never be handed another tenant's pool because entries are
// keyed by the validated slug alone. Failed constructions are not stored, so
// the next request retries. The zero value is not usable; call New.
type Registry struct {
	connector Connector
	opts      options
	metrics   *instruments

	group singleflight.Group

	mu     sync.RWMutex
	pools  map[string]*entry
	closed bool

	startOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New creates a registry that opens pools with connector. The idle janitor
// does not run until Init is called, so tests and one-shot tools start no
// background goroutines.
func New(connector Connector, opts ...Option) *Registry {
	o := options{
		connectTimeout: DefaultConnectTimeout,
		maxPools:       DefaultMaxPools,
		idleTTL:        DefaultIdleTTL,
		sweepInterval:  DefaultSweepInterval,
		logger:         slog.Default(),
		meterProvider:  otel.GetMeterProvider(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		connector: connector,
		opts:      o,
		pools:     make(map[string]*entry),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	m, err := newInstruments(o.meterProvider, r.openPools)
	if err != nil {
		o.logger.Warn("tenantdb: metrics disabled", logger.Error(err))
		m, _ = newInstruments(noop.NewMeterProvider(), r.openPools)
	}
	r.metrics = m
	return r
}

// Acquire returns a lease on the pool of t, creating the pool on first use.
// The pool is not reclaimed by the janitor, and Evict defers closing it,
// until the lease is released. The tenant middleware holds one lease for the
// duration of each request.
//
// Construction runs detached from ctx and is bounded by the connect timeout:
// a caller that gives up stops waiting, but the pool is still built for the
// requests queued behind it. Errors wrap tenant.ErrDatabaseUnavailable, with
// ErrPoolLimit when the pool cap is reached and ErrClosed after Shutdown.
func (r *Registry) Acquire(ctx context.Context, t tenant.Validated) (tenant.Lease, error) {
	e, err := r.acquire(ctx, t)
	if err != nil {
		return nil, err
	}
	return &lease{registry: r, entry: e}, nil
}

// GetOrCreate returns the pool of t without holding a lease on it. It suits
// callers that only need the pool to exist, such as warm-up; request paths
// should use Acquire so the pool cannot be swept while in use.
func (r *Registry) GetOrCreate(ctx context.Context, t tenant.Validated) (tenant.DB, error) {
	e, err := r.acquire(ctx, t)
	if err != nil {
		return nil, err
	}
	r.release(e)
	return e.db, nil
}

func (r *Registry) acquire(ctx context.Context, t tenant.Validated) (*entry, error) {
	// An entry may be evicted between construction and leasing; retry a few
	// times before giving up.
	for range 3 {
		e, err := r.lease(t.Slug)
		if err != nil {
			return nil, err
		}
		if e == nil {
			if err := r.construct(ctx, t); err != nil {
				return nil, err
			}
			continue
		}
		if e.slug != t.Slug {
			r.release(e)
			return nil, fmt.Errorf("%w: %w: want %q, got %q", tenant.ErrDatabaseUnavailable, ErrSlugMismatch, t.Slug, e.slug)
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: pool for %q evicted during acquisition", tenant.ErrDatabaseUnavailable, t.Slug)
}

// lease pins an existing entry. It returns nil when no entry exists.
func (r *Registry) lease(slug string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("%w: %w", tenant.ErrDatabaseUnavailable, ErrClosed)
	}
	e, ok := r.pools[slug]
	if !ok {
		return nil, nil
	}
	e.leases.Add(1)
	e.lastUsed.Store(r.opts.now().UnixNano())
	return e, nil
}

func (r *Registry) release(e *entry) {
	e.lastUsed.Store(r.opts.now().UnixNano())
	if e.leases.Add(-1) == 0 && e.retired.Load() {
		e.close()
	}
}

// construct waits for the shared construction of t's pool.
func (r *Registry) construct(ctx context.Context, t tenant.Validated) error {
	ch := r.group.DoChan(t.Slug, func() (any, error) {
		return nil, r.create(context.WithoutCancel(ctx), t)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", tenant.ErrDatabaseUnavailable, ctx.Err())
	}
}

func (r *Registry) create(ctx context.Context, t tenant.Validated) error {
	if exists, err := r.admit(t.Slug); err != nil || exists {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.connectTimeout)
	defer cancel()

	start := r.opts.now()
	db, err := r.connector.Connect(ctx, t)
	if err != nil {
		r.metrics.failures.Add(ctx, 1)
		r.opts.logger.ErrorContext(ctx, "tenant pool construction failed",
			logger.Tenant(t.Slug), logger.Component("tenantdb"), logger.Error(err))
		return fmt.Errorf("%w: %s: %w", tenant.ErrDatabaseUnavailable, t.Slug, err)
	}

	now := r.opts.now()
	e := &entry{
		slug:      t.Slug,
		database:  t.DatabaseName,
		db:        db,
		createdAt: now,
		closed:    make(chan struct{}),
	}
	e.lastUsed.Store(now.UnixNano())

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		db.Close()
		return fmt.Errorf("%w: %w", tenant.ErrDatabaseUnavailable, ErrClosed)
	case r.pools[t.Slug] != nil:
		// Already present; keep the existing pool.
		r.mu.Unlock()
		db.Close()
		return nil
	case r.opts.maxPools > 0 && len(r.pools) >= r.opts.maxPools:
		r.mu.Unlock()
		db.Close()
		return fmt.Errorf("%w: %w", tenant.ErrDatabaseUnavailable, ErrPoolLimit)
	}
	r.pools[t.Slug] = e
	r.mu.Unlock()

	r.metrics.constructed.Add(ctx, 1)
	r.opts.logger.InfoContext(ctx, "tenant pool created",
		logger.Tenant(t.Slug), logger.Component("tenantdb"), logger.Duration(now.Sub(start)))
	return nil
}

// admit reports whether a pool for slug already exists and rejects
// constructions that could never be stored.
func (r *Registry) admit(slug string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, fmt.Errorf("%w: %w", tenant.ErrDatabaseUnavailable, ErrClosed)
	}
	if _, ok := r.pools[slug]; ok {
		return true, nil
	}
	if r.opts.maxPools > 0 && len(r.pools) >= r.opts.maxPools {
		return false, fmt.Errorf("%w: %w", tenant.ErrDatabaseUnavailable, ErrPoolLimit)
	}
	return false, nil
}

// Evict removes the pool of slug so the next request rebuilds it, which is
// how operators pick up a moved database or a changed status without a
// restart. The pool is closed once its last lease is released, so in-flight
// requests finish on the old pool. It reports whether a pool was present.
func (r *Registry) Evict(ctx context.Context, slug string) bool {
	r.mu.Lock()
	e, ok := r.pools[slug]
	if ok {
		delete(r.pools, slug)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	r.retire(e)
	r.metrics.evict(ctx, "admin")
	r.opts.logger.InfoContext(ctx, "tenant pool evicted",
		logger.Tenant(slug), logger.Component("tenantdb"), logger.Event("pool_evicted"))
	return true
}

func (r *Registry) retire(e *entry) {
	e.retired.Store(true)
	if e.leases.Load() == 0 {
		e.close()
	}
}

// Len returns the number of live pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

func (r *Registry) openPools() int64 {
	return int64(r.Len())
}

// PoolStats describes one live pool.
type PoolStats struct {
	Slug       string    `json:"slug"`
	Database   string    `json:"database"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	Leases     int64     `json:"leases"`
}

// Stats is a point-in-time snapshot of the registry.
type Stats struct {
	Pools    int         `json:"pools"`
	MaxPools int         `json:"max_pools"`
	Entries  []PoolStats `json:"entries"`
}

// Stats returns a snapshot ordered by slug. It takes the registry lock only
// long enough to copy the entries and is cheap enough for an admin endpoint.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	s := Stats{Pools: len(r.pools), MaxPools: r.opts.maxPools, Entries: make([]PoolStats, 0, len(r.pools))}
	for _, e := range r.pools {
		s.Entries = append(s.Entries, PoolStats{
			Slug:       e.slug,
			Database:   e.database,
			CreatedAt:  e.createdAt,
			LastUsedAt: time.Unix(0, e.lastUsed.Load()),
			Leases:     e.leases.Load(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(s.Entries, func(i, j int) bool { return s.Entries[i].Slug < s.Entries[j].Slug })
	return s
}

type lease struct {
	registry *Registry
	entry    *entry
	once     sync.Once
}

func (l *lease) DB() tenant.DB { return l.entry.db }

// Release is idempotent.
func (l *lease) Release() {
	l.once.Do(func() { l.registry.release(l.entry) })
}
