package renewal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clauseworks/contractd/pkg/contract"
	"github.com/clauseworks/contractd/pkg/fault"
	"github.com/clauseworks/contractd/pkg/notify"
)

// Defaults apply when a proposal is created without an applicable rule.
type Defaults struct {
	// RenewalPeriodMonths for rule-less proposals. 12 when unset.
	RenewalPeriodMonths int
	// LookaheadBufferDays widens the sweep's expiring-contracts query past
	// the rule's trigger window. 5 when unset.
	LookaheadBufferDays int
}

func (d Defaults) periodMonths() int {
	if d.RenewalPeriodMonths > 0 {
		return d.RenewalPeriodMonths
	}
	return 12
}

func (d Defaults) lookaheadDays() int {
	if d.LookaheadBufferDays > 0 {
		return d.LookaheadBufferDays
	}
	return 5
}

// Engine is the renewal engine: rule management, the proposal workflow,
// the executor, and the sweep.
type Engine struct {
	rules     RuleStore
	proposals ProposalStore
	contracts *contract.Service
	notifier  notify.Notifier
	defaults  Defaults
	metrics   *metrics
	logger    *slog.Logger
	clock     func() time.Time
}

// NewEngine creates a renewal engine.
func NewEngine(rules RuleStore, proposals ProposalStore, contracts *contract.Service, notifier notify.Notifier, defaults Defaults) *Engine {
	return &Engine{
		rules:     rules,
		proposals: proposals,
		contracts: contracts,
		notifier:  notifier,
		defaults:  defaults,
		metrics:   newMetrics(),
		logger:    slog.Default().With("component", "renewal"),
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// RuleInput carries the caller-supplied fields of a rule.
type RuleInput struct {
	Name                string
	Active              bool
	ContractTypes       []contract.Type
	Trigger             TriggerKind
	TriggerDays         int
	RenewalType         RenewalType
	AutoApprove         bool
	RenewalPeriodMonths int
	PriceAdjustment     *PriceAdjustment
	Conditions          *Conditions
	Notifications       NotificationSettings
}

// CreateRule validates and stores a new renewal rule.
func (e *Engine) CreateRule(ctx context.Context, tenantID string, in RuleInput) (*Rule, error) {
	now := e.clock()
	r := &Rule{
		ID:                  uuid.New().String(),
		TenantID:            tenantID,
		Name:                in.Name,
		Active:              in.Active,
		ContractTypes:       in.ContractTypes,
		Trigger:             in.Trigger,
		TriggerDays:         in.TriggerDays,
		RenewalType:         in.RenewalType,
		AutoApprove:         in.AutoApprove,
		RenewalPeriodMonths: in.RenewalPeriodMonths,
		PriceAdjustment:     in.PriceAdjustment,
		Conditions:          in.Conditions,
		Notifications:       in.Notifications,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := e.rules.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRule returns a tenant's rule by id.
func (e *Engine) GetRule(ctx context.Context, tenantID, id string) (*Rule, error) {
	return e.rules.Get(ctx, tenantID, id)
}

// ListRules returns all of the tenant's rules in insertion order.
func (e *Engine) ListRules(ctx context.Context, tenantID string) ([]*Rule, error) {
	return e.rules.List(ctx, tenantID)
}

// UpdateRule replaces a rule's fields after re-validation.
func (e *Engine) UpdateRule(ctx context.Context, tenantID, id string, in RuleInput) (*Rule, error) {
	r, err := e.rules.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	r.Name = in.Name
	r.Active = in.Active
	r.ContractTypes = in.ContractTypes
	r.Trigger = in.Trigger
	r.TriggerDays = in.TriggerDays
	r.RenewalType = in.RenewalType
	r.AutoApprove = in.AutoApprove
	r.RenewalPeriodMonths = in.RenewalPeriodMonths
	r.PriceAdjustment = in.PriceAdjustment
	r.Conditions = in.Conditions
	r.Notifications = in.Notifications
	r.UpdatedAt = e.clock()

	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := e.rules.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRule removes a rule. Deletion is blocked while the rule has
// pending proposals.
func (e *Engine) DeleteRule(ctx context.Context, tenantID, id string) error {
	if _, err := e.rules.Get(ctx, tenantID, id); err != nil {
		return err
	}
	pending, err := e.proposals.HasPendingForRule(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if pending {
		return fault.Validation("rule %s has pending renewal proposals and cannot be deleted", id)
	}
	return e.rules.Delete(ctx, tenantID, id)
}

// FindApplicableRule returns the first active rule for which the contract
// is eligible, in insertion order. A nil rule with a nil error means no
// rule applies; that is not an error condition.
func (e *Engine) FindApplicableRule(ctx context.Context, tenantID string, c *contract.Contract) (*Rule, error) {
	active, err := e.rules.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, r := range active {
		if Eligible(c, r) {
			return r, nil
		}
	}
	return nil, nil
}
