package renewal

import (
	"context"
)

// RuleStore persists tenant renewal rules. List returns rules in insertion
// order; rule matching is first-match-wins in that order.
type RuleStore interface {
	Create(ctx context.Context, r *Rule) error
	Get(ctx context.Context, tenantID, id string) (*Rule, error)
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string) ([]*Rule, error)
	ListActive(ctx context.Context, tenantID string) ([]*Rule, error)
}

// ProposalFilter narrows a proposal listing.
type ProposalFilter struct {
	ContractID string
	RuleID     string
	Status     ProposalStatus
}

// ProposalStore persists renewal proposals. Create must enforce the
// at-most-one-PENDING-per-contract invariant atomically with respect to
// concurrent creators (a unique constraint or the store's own lock), and
// return a conflict fault on violation. A plain check-then-insert is not
// acceptable here.
type ProposalStore interface {
	Create(ctx context.Context, p *Proposal) error
	Get(ctx context.Context, tenantID, id string) (*Proposal, error)

	// UpdateFromPending persists the processed proposal iff the stored
	// status is still PENDING. Returns a conflict fault otherwise, so two
	// racing approvals cannot both execute.
	UpdateFromPending(ctx context.Context, p *Proposal) error

	List(ctx context.Context, tenantID string, f ProposalFilter) ([]*Proposal, error)

	// ExistsForContract reports whether any proposal, in any status,
	// references the contract. The sweep's idempotency guard.
	ExistsForContract(ctx context.Context, tenantID, contractID string) (bool, error)

	// HasPendingForRule reports whether any PENDING proposal references
	// the rule. Blocks rule deletion.
	HasPendingForRule(ctx context.Context, tenantID, ruleID string) (bool, error)
}
