package renewal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clauseworks/contractd/pkg/contract"
	"github.com/clauseworks/contractd/pkg/fault"
	"github.com/clauseworks/contractd/pkg/notify"
)

// systemActor is recorded as the approver on auto-approved proposals.
const systemActor = "system"

// CreateProposal creates a renewal proposal for an ACTIVE contract with an
// end date. When ruleID is empty the first applicable active rule is
// resolved; a contract with no applicable rule still gets a proposal with
// the default renewal type and period.
//
// When the resolved rule has auto-approve set, the proposal is promoted
// to AUTO_RENEWED and the executor runs immediately.
func (e *Engine) CreateProposal(ctx context.Context, tenantID, contractID, actor, ruleID string) (*Proposal, error) {
	c, err := e.contracts.Get(ctx, tenantID, contractID)
	if err != nil {
		return nil, err
	}
	if c.EndDate == nil {
		return nil, fault.Validation("contract %s has no end date and cannot be renewed", contractID)
	}
	if c.Status != contract.StatusActive {
		return nil, fault.Validation("contract %s is %s, only ACTIVE contracts can be renewed", contractID, c.Status)
	}

	pending, err := e.proposals.List(ctx, tenantID, ProposalFilter{ContractID: contractID, Status: ProposalPending})
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return nil, fault.Validation("contract %s already has a pending renewal proposal", contractID)
	}

	var rule *Rule
	if ruleID != "" {
		if rule, err = e.rules.Get(ctx, tenantID, ruleID); err != nil {
			return nil, err
		}
	} else {
		if rule, err = e.FindApplicableRule(ctx, tenantID, c); err != nil {
			return nil, err
		}
	}

	renewalType := ExtendCurrent
	periodMonths := e.defaults.periodMonths()
	var adjustment *PriceAdjustment
	if rule != nil {
		renewalType = rule.RenewalType
		periodMonths = rule.RenewalPeriodMonths
		adjustment = rule.PriceAdjustment
	}

	proposedStart := *c.EndDate
	proposedEnd := proposedStart.AddDate(0, periodMonths, 0)
	proposedValue, note := ApplyAdjustment(c.Value, adjustment)

	now := e.clock()
	p := &Proposal{
		ID:                  uuid.New().String(),
		TenantID:            tenantID,
		ContractID:          contractID,
		CurrentEndDate:      *c.EndDate,
		ProposedStartDate:   proposedStart,
		ProposedEndDate:     proposedEnd,
		RenewalPeriodMonths: periodMonths,
		RenewalType:         renewalType,
		CurrentValue:        c.Value,
		ProposedValue:       proposedValue,
		AdjustmentNote:      note,
		Status:              ProposalPending,
		CreatedAt:           now,
	}
	if rule != nil {
		p.RuleID = rule.ID
	}

	// Auto-approved proposals are still inserted as PENDING so the
	// store's pending-only unique gate arbitrates concurrent creators;
	// the winner flips its row to AUTO_RENEWED before executing.
	if err := e.proposals.Create(ctx, p); err != nil {
		if fault.IsConflict(err) {
			// A concurrent creator won the unique constraint race.
			return nil, fault.Validation("contract %s already has a pending renewal proposal", contractID).Wrap(err)
		}
		return nil, err
	}

	if rule != nil && rule.AutoApprove {
		p.Status = ProposalAutoRenewed
		p.ApprovedBy = systemActor
		p.ProcessedAt = &now
		if err := e.proposals.UpdateFromPending(ctx, p); err != nil {
			return nil, err
		}
		if err := e.execute(ctx, p, systemActor); err != nil {
			return nil, err
		}
	} else {
		if err := e.contracts.MarkRenewalStatus(ctx, tenantID, contractID, contract.RenewalPending); err != nil {
			e.logger.ErrorContext(ctx, "failed to mark contract renewal status",
				"tenant_id", tenantID, "contract_id", contractID, "error", err)
		}
	}

	e.notifyForRule(ctx, rule, c, p)
	return p, nil
}

// GetProposal returns a tenant's proposal by id.
func (e *Engine) GetProposal(ctx context.Context, tenantID, id string) (*Proposal, error) {
	return e.proposals.Get(ctx, tenantID, id)
}

// ListProposals returns the tenant's proposals matching the filter.
func (e *Engine) ListProposals(ctx context.Context, tenantID string, f ProposalFilter) ([]*Proposal, error) {
	return e.proposals.List(ctx, tenantID, f)
}

// DecisionAction is the human decision on a pending proposal.
type DecisionAction string

const (
	ActionApprove DecisionAction = "APPROVE"
	ActionDecline DecisionAction = "DECLINE"
)

// Decision carries a human approve/decline on a pending proposal.
// ModifyTerms lets the approver override the proposed value and end date.
type Decision struct {
	Action        DecisionAction
	Notes         string
	DeclineReason string
	ModifyTerms   bool
	NewValue      *decimal.Decimal
	NewEndDate    *time.Time
}

// ProcessProposal applies a human decision to a PENDING proposal. Approval
// invokes the executor; the proposal is persisted through a pending-only
// update so a racing second decision fails with a conflict.
func (e *Engine) ProcessProposal(ctx context.Context, tenantID, proposalID, actor string, d Decision) (*Proposal, error) {
	p, err := e.proposals.Get(ctx, tenantID, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != ProposalPending {
		return nil, fault.Validation("proposal %s is %s, only PENDING proposals can be processed", proposalID, p.Status)
	}

	now := e.clock()
	switch d.Action {
	case ActionApprove:
		if d.ModifyTerms {
			if d.NewValue != nil {
				p.ProposedValue = d.NewValue
			}
			if d.NewEndDate != nil {
				p.ProposedEndDate = *d.NewEndDate
			}
		}
		p.Status = ProposalApproved
		p.Notes = d.Notes
		p.ApprovedBy = actor
		p.ProcessedAt = &now
		if err := e.proposals.UpdateFromPending(ctx, p); err != nil {
			return nil, err
		}
		if err := e.execute(ctx, p, actor); err != nil {
			return nil, err
		}
	case ActionDecline:
		p.Status = ProposalDeclined
		p.Notes = d.Notes
		p.DeclineReason = d.DeclineReason
		p.DeclinedBy = actor
		p.ProcessedAt = &now
		if err := e.proposals.UpdateFromPending(ctx, p); err != nil {
			return nil, err
		}
		if err := e.contracts.MarkRenewalStatus(ctx, tenantID, p.ContractID, contract.RenewalDeclined); err != nil {
			e.logger.ErrorContext(ctx, "failed to mark contract renewal status",
				"tenant_id", tenantID, "contract_id", p.ContractID, "error", err)
		}
	default:
		return nil, fault.Validation("unknown decision action %q", d.Action)
	}

	return p, nil
}

// notifyForRule dispatches a renewal notification when the rule asks for
// one. Failures are logged and swallowed: notification must never fail
// proposal creation.
func (e *Engine) notifyForRule(ctx context.Context, rule *Rule, c *contract.Contract, p *Proposal) {
	if rule == nil || !rule.Notifications.Enabled || e.notifier == nil {
		return
	}
	msg := notify.Message{
		TenantID:   c.TenantID,
		Template:   "contract_renewal_proposed",
		Channels:   rule.Notifications.Channels,
		Recipients: rule.Notifications.Recipients,
		Payload: map[string]any{
			"contract_id":       c.ID,
			"contract_title":    c.Title,
			"proposal_id":       p.ID,
			"proposal_status":   p.Status,
			"proposed_end_date": p.ProposedEndDate,
		},
		CreatedAt: e.clock(),
	}
	if err := e.notifier.Notify(ctx, msg); err != nil {
		e.logger.WarnContext(ctx, "renewal notification failed",
			"tenant_id", c.TenantID, "contract_id", c.ID, "rule_id", rule.ID, "error", err)
	}
}
