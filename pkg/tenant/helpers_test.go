package tenant_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/weeklype/tenantrouter/pkg/tenant"
)

type fakeCatalog struct {
	mu      sync.Mutex
	records map[string]tenant.Record
	err     error
	calls   atomic.Int64
}

func newFakeCatalog(records ...tenant.Record) *fakeCatalog {
	c := &fakeCatalog{records: make(map[string]tenant.Record)}
	for _, r := range records {
		c.records[r.Slug] = r
	}
	return c
}

func (c *fakeCatalog) Lookup(_ context.Context, slug string) (tenant.Record, error) {
	c.calls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return tenant.Record{}, c.err
	}
	rec, ok := c.records[slug]
	if !ok {
		return tenant.Record{}, tenant.ErrNotFound
	}
	return rec, nil
}

type fakeDB struct {
	name string
}

func (d *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("SELECT 0"), nil
}

func (d *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (d *fakeDB) Ping(context.Context) error { return nil }

type fakeLease struct {
	db       *fakeDB
	released *atomic.Int64
}

func (l *fakeLease) DB() tenant.DB { return l.db }
func (l *fakeLease) Release()      { l.released.Add(1) }

type fakePools struct {
	err      error
	acquired atomic.Int64
	released atomic.Int64
}

func (p *fakePools) Acquire(_ context.Context, v tenant.Validated) (tenant.Lease, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.acquired.Add(1)
	return &fakeLease{db: &fakeDB{name: v.DatabaseName}, released: &p.released}, nil
}

type fakeSimulator struct{}

func (fakeSimulator) ForTenant(slug string) tenant.DB { return &fakeDB{name: "sim:" + slug} }

func active(slug string) tenant.Record {
	return tenant.Record{ID: 1, Slug: slug, DisplayName: slug, Status: tenant.StatusActive}
}
