// Package renewal implements the rule-driven renewal engine: tenant
// renewal rules, eligibility evaluation, price adjustment, the proposal
// workflow, the executor that applies approved proposals, and the periodic
// sweep that ties rules to expiring contracts.
package renewal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/clauseworks/contractd/pkg/contract"
	"github.com/clauseworks/contractd/pkg/fault"
)

// TriggerKind decides when a rule fires.
type TriggerKind string

const (
	TriggerDaysBeforeExpiry TriggerKind = "DAYS_BEFORE_EXPIRY"
	TriggerManual           TriggerKind = "MANUAL"
	TriggerAutoOnExpiry     TriggerKind = "AUTO_ON_EXPIRY"
)

// RenewalType is the execution strategy applied when a proposal is approved.
type RenewalType string

const (
	ExtendCurrent RenewalType = "EXTEND_CURRENT"
	NewContract   RenewalType = "NEW_CONTRACT"
	Renegotiate   RenewalType = "RENEGOTIATE"
)

// AdjustmentKind selects the price adjustment arithmetic.
type AdjustmentKind string

const (
	AdjustPercentage  AdjustmentKind = "PERCENTAGE"
	AdjustFixedAmount AdjustmentKind = "FIXED_AMOUNT"
)

// PriceAdjustment describes how the proposed value is derived from the
// current contract value.
type PriceAdjustment struct {
	Kind  AdjustmentKind  `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Conditions narrow a rule's applicability beyond the contract-type match.
type Conditions struct {
	MinContractValue *decimal.Decimal `json:"min_contract_value,omitempty"`
	MaxContractValue *decimal.Decimal `json:"max_contract_value,omitempty"`
	ExcludeClientIDs []string         `json:"exclude_client_ids,omitempty"`
}

// NotificationSettings control renewal notifications for a rule.
type NotificationSettings struct {
	Enabled    bool     `json:"enabled"`
	Channels   []string `json:"channels,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
}

// Rule is a tenant-scoped policy describing when and how to renew
// contracts of given types.
type Rule struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`

	ContractTypes []contract.Type `json:"contract_types"`

	Trigger     TriggerKind `json:"trigger"`
	TriggerDays int         `json:"trigger_days,omitempty"`

	RenewalType         RenewalType `json:"renewal_type"`
	AutoApprove         bool        `json:"auto_approve"`
	RenewalPeriodMonths int         `json:"renewal_period_months"`

	PriceAdjustment *PriceAdjustment     `json:"price_adjustment,omitempty"`
	Conditions      *Conditions          `json:"conditions,omitempty"`
	Notifications   NotificationSettings `json:"notifications"`

	// Position preserves insertion order; rule matching is first-match-wins
	// in this order.
	Position int64 `json:"position"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate enforces the rule field bounds at creation/update time.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fault.Validation("rule name is required")
	}
	if len(r.ContractTypes) == 0 {
		return fault.Validation("rule must apply to at least one contract type")
	}
	for _, t := range r.ContractTypes {
		if !contract.IsValidType(t) {
			return fault.Validation("unknown contract type %q", t)
		}
	}

	switch r.Trigger {
	case TriggerDaysBeforeExpiry:
		if r.TriggerDays < 1 || r.TriggerDays > 365 {
			return fault.Validation("trigger days must be between 1 and 365, got %d", r.TriggerDays)
		}
	case TriggerManual, TriggerAutoOnExpiry:
		if r.TriggerDays != 0 {
			return fault.Validation("trigger days is only valid with DAYS_BEFORE_EXPIRY")
		}
	default:
		return fault.Validation("unknown trigger kind %q", r.Trigger)
	}

	switch r.RenewalType {
	case ExtendCurrent, NewContract, Renegotiate:
	default:
		return fault.Validation("unknown renewal type %q", r.RenewalType)
	}

	if r.RenewalPeriodMonths < 1 || r.RenewalPeriodMonths > 120 {
		return fault.Validation("renewal period must be between 1 and 120 months, got %d", r.RenewalPeriodMonths)
	}

	if adj := r.PriceAdjustment; adj != nil {
		switch adj.Kind {
		case AdjustPercentage:
			if adj.Value.LessThan(decimal.NewFromInt(-50)) || adj.Value.GreaterThan(decimal.NewFromInt(100)) {
				return fault.Validation("percentage adjustment must be between -50 and 100, got %s", adj.Value)
			}
		case AdjustFixedAmount:
			// Unconstrained.
		default:
			return fault.Validation("unknown price adjustment kind %q", adj.Kind)
		}
	}

	return nil
}

// ProposalStatus is the decision state of a renewal proposal.
type ProposalStatus string

const (
	ProposalPending     ProposalStatus = "PENDING"
	ProposalApproved    ProposalStatus = "APPROVED"
	ProposalDeclined    ProposalStatus = "DECLINED"
	ProposalAutoRenewed ProposalStatus = "AUTO_RENEWED"
)

// Proposal is a single renewal decision record for one contract,
// optionally generated from one rule.
type Proposal struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	ContractID string `json:"contract_id"`
	RuleID     string `json:"rule_id,omitempty"`

	CurrentEndDate    time.Time `json:"current_end_date"`
	ProposedStartDate time.Time `json:"proposed_start_date"`
	ProposedEndDate   time.Time `json:"proposed_end_date"`

	RenewalPeriodMonths int         `json:"renewal_period_months"`
	RenewalType         RenewalType `json:"renewal_type"`

	CurrentValue   *decimal.Decimal `json:"current_value,omitempty"`
	ProposedValue  *decimal.Decimal `json:"proposed_value,omitempty"`
	AdjustmentNote string           `json:"adjustment_note,omitempty"`

	Status        ProposalStatus `json:"status"`
	Notes         string         `json:"notes,omitempty"`
	DeclineReason string         `json:"decline_reason,omitempty"`

	ApprovedBy  string     `json:"approved_by,omitempty"`
	DeclinedBy  string     `json:"declined_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
