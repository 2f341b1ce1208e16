package renewal

import (
	"context"
	"sort"
	"sync"

	"github.com/clauseworks/contractd/pkg/fault"
)

// MemoryRuleStore implements RuleStore in memory. Thread-safe via RWMutex.
type MemoryRuleStore struct {
	mu      sync.RWMutex
	rules   map[string]*Rule // key: tenantID + "/" + id
	nextPos int64
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{rules: make(map[string]*Rule)}
}

func storeKey(tenantID, id string) string { return tenantID + "/" + id }

func (s *MemoryRuleStore) Create(ctx context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(r.TenantID, r.ID)
	if _, exists := s.rules[k]; exists {
		return fault.Conflict("rule %s already exists", r.ID)
	}
	s.nextPos++
	r.Position = s.nextPos
	cp := *r
	s.rules[k] = &cp
	return nil
}

func (s *MemoryRuleStore) Get(ctx context.Context, tenantID, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[storeKey(tenantID, id)]
	if !ok {
		return nil, fault.NotFound("renewal rule %s not found", id)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryRuleStore) Update(ctx context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(r.TenantID, r.ID)
	stored, ok := s.rules[k]
	if !ok {
		return fault.NotFound("renewal rule %s not found", r.ID)
	}
	r.Position = stored.Position
	cp := *r
	s.rules[k] = &cp
	return nil
}

func (s *MemoryRuleStore) Delete(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(tenantID, id)
	if _, ok := s.rules[k]; !ok {
		return fault.NotFound("renewal rule %s not found", id)
	}
	delete(s.rules, k)
	return nil
}

func (s *MemoryRuleStore) List(ctx context.Context, tenantID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Rule
	for _, r := range s.rules {
		if r.TenantID == tenantID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *MemoryRuleStore) ListActive(ctx context.Context, tenantID string) ([]*Rule, error) {
	all, err := s.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []*Rule
	for _, r := range all {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// MemoryProposalStore implements ProposalStore in memory. The pending
// invariant and the pending-only update are both enforced under the write
// lock, making them atomic with respect to concurrent callers.
type MemoryProposalStore struct {
	mu        sync.RWMutex
	proposals map[string]*Proposal // key: tenantID + "/" + id
}

func NewMemoryProposalStore() *MemoryProposalStore {
	return &MemoryProposalStore{proposals: make(map[string]*Proposal)}
}

func (s *MemoryProposalStore) Create(ctx context.Context, p *Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status == ProposalPending {
		for _, existing := range s.proposals {
			if existing.TenantID == p.TenantID && existing.ContractID == p.ContractID && existing.Status == ProposalPending {
				return fault.Conflict("contract %s already has a pending renewal proposal", p.ContractID)
			}
		}
	}
	cp := *p
	s.proposals[storeKey(p.TenantID, p.ID)] = &cp
	return nil
}

func (s *MemoryProposalStore) Get(ctx context.Context, tenantID, id string) (*Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[storeKey(tenantID, id)]
	if !ok {
		return nil, fault.NotFound("renewal proposal %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryProposalStore) UpdateFromPending(ctx context.Context, p *Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(p.TenantID, p.ID)
	stored, ok := s.proposals[k]
	if !ok {
		return fault.NotFound("renewal proposal %s not found", p.ID)
	}
	if stored.Status != ProposalPending {
		return fault.Conflict("renewal proposal %s is no longer pending (status=%s)", p.ID, stored.Status)
	}
	cp := *p
	s.proposals[k] = &cp
	return nil
}

func (s *MemoryProposalStore) List(ctx context.Context, tenantID string, f ProposalFilter) ([]*Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Proposal
	for _, p := range s.proposals {
		if p.TenantID != tenantID {
			continue
		}
		if f.ContractID != "" && p.ContractID != f.ContractID {
			continue
		}
		if f.RuleID != "" && p.RuleID != f.RuleID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryProposalStore) ExistsForContract(ctx context.Context, tenantID, contractID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.proposals {
		if p.TenantID == tenantID && p.ContractID == contractID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryProposalStore) HasPendingForRule(ctx context.Context, tenantID, ruleID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.proposals {
		if p.TenantID == tenantID && p.RuleID == ruleID && p.Status == ProposalPending {
			return true, nil
		}
	}
	return false, nil
}
