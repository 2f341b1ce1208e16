package contract

import (
	"context"
	"sort"
	"sync"

	"github.com/clauseworks/contractd/pkg/fault"
)

// MemoryStore implements Store in memory. Thread-safe via RWMutex; the CAS
// in Update happens under the write lock, so it is atomic with respect to
// concurrent callers.
type MemoryStore struct {
	mu        sync.RWMutex
	contracts map[string]*Contract // key: tenantID + "/" + id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contracts: make(map[string]*Contract)}
}

func key(tenantID, id string) string { return tenantID + "/" + id }

func (s *MemoryStore) Create(ctx context.Context, c *Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(c.TenantID, c.ID)
	if _, exists := s.contracts[k]; exists {
		return fault.Conflict("contract %s already exists", c.ID)
	}
	s.contracts[k] = c.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, id string) (*Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[key(tenantID, id)]
	if !ok {
		return nil, fault.NotFound("contract %s not found", id)
	}
	return c.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, c *Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(c.TenantID, c.ID)
	stored, ok := s.contracts[k]
	if !ok {
		return fault.NotFound("contract %s not found", c.ID)
	}
	if stored.Version != c.Version {
		return fault.Conflict("contract %s version mismatch: have %d, want %d", c.ID, stored.Version, c.Version)
	}
	c.Version++
	s.contracts[k] = c.Clone()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, f Filter) ([]*Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Contract
	for _, c := range s.contracts {
		if c.TenantID != tenantID || !matches(c, f) {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func matches(c *Contract, f Filter) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.ClientID != "" {
		p := c.ClientParty()
		if p == nil || p.ID != f.ClientID {
			return false
		}
	}
	if f.EndDateFrom != nil || f.EndDateTo != nil {
		if c.EndDate == nil {
			return false
		}
		if f.EndDateFrom != nil && c.EndDate.Before(*f.EndDateFrom) {
			return false
		}
		if f.EndDateTo != nil && c.EndDate.After(*f.EndDateTo) {
			return false
		}
	}
	return true
}
