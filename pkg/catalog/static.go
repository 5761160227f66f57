package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/weeklype/tenantrouter/pkg/tenant"
)

// Static is an in-memory catalog.
type Static struct {
	mu      sync.RWMutex
	records map[string]tenant.Record
	down    error
}

// NewStatic creates a catalog holding records.
func NewStatic(records ...tenant.Record) *Static {
	s := &Static{records: make(map[string]tenant.Record, len(records))}
	for _, r := range records {
		s.records[r.Slug] = r
	}
	return s
}

// Put adds or replaces a record.
func (s *Static) Put(rec tenant.Record) {
	s.mu.Lock()
	s.records[rec.Slug] = rec
	s.mu.Unlock()
}

// Remove deletes a record.
func (s *Static) Remove(slug string) {
	s.mu.Lock()
	delete(s.records, slug)
	s.mu.Unlock()
}

// SetUnavailable makes every lookup fail with ErrRegistryUnavailable wrapping
// cause. A nil cause restores normal operation.
func (s *Static) SetUnavailable(cause error) {
	s.mu.Lock()
	s.down = cause
	s.mu.Unlock()
}

// Lookup implements tenant.Catalog.
func (s *Static) Lookup(ctx context.Context, slug string) (tenant.Record, error) {
	if err := ctx.Err(); err != nil {
		return tenant.Record{}, fmt.Errorf("%w: %w", tenant.ErrRegistryUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.down != nil {
		return tenant.Record{}, fmt.Errorf("%w: %w", tenant.ErrRegistryUnavailable, s.down)
	}
	rec, ok := s.records[slug]
	if !ok {
		return tenant.Record{}, fmt.Errorf("%w: %s", tenant.ErrNotFound, slug)
	}
	return rec, nil
}
