package contract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clauseworks/contractd/pkg/activity"
	"github.com/clauseworks/contractd/pkg/fault"
)

// Signer is the narrow view of the signing collaborator the lifecycle
// needs: open a workflow, get back an opaque id.
type Signer interface {
	RequestSignature(ctx context.Context, c *Contract) (string, error)
}

// Service drives the contract lifecycle state machine. Every transition
// re-reads the contract, checks the guard, and writes back through the
// store's compare-and-swap, so two racing requests cannot both succeed
// from the same precondition state.
type Service struct {
	store  Store
	log    activity.Recorder
	signer Signer
	logger *slog.Logger
	clock  func() time.Time
}

// NewService creates a lifecycle service.
func NewService(store Store, log activity.Recorder, signer Signer) *Service {
	return &Service{
		store:  store,
		log:    log,
		signer: signer,
		logger: slog.Default().With("component", "contract"),
		clock:  time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// CreateInput carries the caller-supplied fields for a new contract.
type CreateInput struct {
	Type                Type
	Title               string
	Content             string
	Terms               []Term
	Parties             []Party
	StartDate           time.Time
	EndDate             *time.Time
	Value               *decimal.Decimal
	Currency            string
	AutoRenewal         bool
	RenewalPeriodMonths int
	Metadata            map[string]any
}

// Create validates the input and produces a contract in DRAFT.
func (s *Service) Create(ctx context.Context, tenantID, actor string, in CreateInput) (*Contract, error) {
	if !IsValidType(in.Type) {
		return nil, fault.Validation("unknown contract type %q", in.Type)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fault.Validation("contract title is required")
	}
	if err := ValidateParties(in.Parties); err != nil {
		return nil, err
	}
	if err := ValidateDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	now := s.clock()
	c := &Contract{
		ID:                  uuid.New().String(),
		TenantID:            tenantID,
		Type:                in.Type,
		Title:               in.Title,
		Content:             in.Content,
		Terms:               in.Terms,
		Parties:             in.Parties,
		StartDate:           in.StartDate,
		EndDate:             in.EndDate,
		Value:               in.Value,
		Currency:            in.Currency,
		AutoRenewal:         in.AutoRenewal,
		RenewalPeriodMonths: in.RenewalPeriodMonths,
		Metadata:            in.Metadata,
		Status:              StatusDraft,
		RenewalStatus:       RenewalNone,
		CreatedAt:           now,
		UpdatedAt:           now,
		Version:             1,
	}

	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}

	s.record(ctx, c, activity.ContractCreated,
		fmt.Sprintf("Contract %q created", c.Title), actor, nil)
	return c, nil
}

// Get returns a tenant's contract by id.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Contract, error) {
	return s.store.Get(ctx, tenantID, id)
}

// ListQuery narrows a contract listing.
type ListQuery struct {
	Status             Status
	Type               Type
	ClientID           string
	ExpiringWithinDays int
}

// List returns the tenant's contracts matching the query.
func (s *Service) List(ctx context.Context, tenantID string, q ListQuery) ([]*Contract, error) {
	f := Filter{Status: q.Status, Type: q.Type, ClientID: q.ClientID}
	if q.ExpiringWithinDays > 0 {
		now := s.clock()
		to := now.AddDate(0, 0, q.ExpiringWithinDays)
		f.EndDateFrom = &now
		f.EndDateTo = &to
	}
	return s.store.List(ctx, tenantID, f)
}

// ExpiringWithin returns ACTIVE contracts whose end date falls within the
// next `days` days. This is the expiring-contracts query the renewal sweep
// runs per rule.
func (s *Service) ExpiringWithin(ctx context.Context, tenantID string, days int) ([]*Contract, error) {
	now := s.clock()
	to := now.AddDate(0, 0, days)
	return s.store.List(ctx, tenantID, Filter{
		Status:      StatusActive,
		EndDateFrom: &now,
		EndDateTo:   &to,
	})
}

// UpdatePatch carries the mutable contract fields. Nil pointers leave the
// stored field unchanged; metadata is shallow-merged.
type UpdatePatch struct {
	Title               *string
	Content             *string
	Terms               *[]Term
	Parties             *[]Party
	StartDate           *time.Time
	EndDate             *time.Time
	Value               *decimal.Decimal
	Currency            *string
	AutoRenewal         *bool
	RenewalPeriodMonths *int
	Metadata            map[string]any
}

// Update applies a patch to a non-terminal contract. Parties and date
// ordering are re-validated when the patch touches them.
func (s *Service) Update(ctx context.Context, tenantID, id, actor string, patch UpdatePatch) (*Contract, error) {
	c, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, fault.Validation("cannot update contract in %s state", c.Status)
	}

	if patch.Parties != nil {
		if err := ValidateParties(*patch.Parties); err != nil {
			return nil, err
		}
	}
	start := c.StartDate
	if patch.StartDate != nil {
		start = *patch.StartDate
	}
	end := c.EndDate
	if patch.EndDate != nil {
		end = patch.EndDate
	}
	if err := ValidateDates(start, end); err != nil {
		return nil, err
	}

	var changed []string
	apply := func(name string, set func()) {
		set()
		changed = append(changed, name)
	}
	if patch.Title != nil {
		apply("title", func() { c.Title = *patch.Title })
	}
	if patch.Content != nil {
		apply("content", func() { c.Content = *patch.Content })
	}
	if patch.Terms != nil {
		apply("terms", func() { c.Terms = *patch.Terms })
	}
	if patch.Parties != nil {
		apply("parties", func() { c.Parties = *patch.Parties })
	}
	if patch.StartDate != nil {
		apply("start_date", func() { c.StartDate = *patch.StartDate })
	}
	if patch.EndDate != nil {
		apply("end_date", func() { c.EndDate = patch.EndDate })
	}
	if patch.Value != nil {
		apply("value", func() { c.Value = patch.Value })
	}
	if patch.Currency != nil {
		apply("currency", func() { c.Currency = *patch.Currency })
	}
	if patch.AutoRenewal != nil {
		apply("auto_renewal", func() { c.AutoRenewal = *patch.AutoRenewal })
	}
	if patch.RenewalPeriodMonths != nil {
		apply("renewal_period_months", func() { c.RenewalPeriodMonths = *patch.RenewalPeriodMonths })
	}
	if patch.Metadata != nil {
		apply("metadata", func() {
			if c.Metadata == nil {
				c.Metadata = make(map[string]any, len(patch.Metadata))
			}
			for k, v := range patch.Metadata {
				c.Metadata[k] = v
			}
		})
	}

	if len(changed) == 0 {
		return c, nil
	}

	c.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	s.record(ctx, c, activity.ContractUpdated,
		fmt.Sprintf("Contract updated: %s", strings.Join(changed, ", ")), actor,
		map[string]any{"changed_fields": changed})
	return c, nil
}

// SendForSignature moves a DRAFT contract to PENDING_SIGNATURE, opening a
// workflow with the signing collaborator.
func (s *Service) SendForSignature(ctx context.Context, tenantID, id, actor string) (*Contract, error) {
	c, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusDraft {
		return nil, fault.Validation("cannot send contract for signature from %s state, must be DRAFT", c.Status)
	}

	workflowID, err := s.signer.RequestSignature(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("request signature: %w", err)
	}

	c.Status = StatusPendingSignature
	c.SignatureWorkflowID = workflowID
	c.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	s.record(ctx, c, activity.SignatureRequested,
		"Contract sent for signature", actor,
		map[string]any{"signature_workflow_id": workflowID})
	return c, nil
}

// Activate moves a fully-signed PENDING_SIGNATURE contract to ACTIVE.
func (s *Service) Activate(ctx context.Context, tenantID, id, actor string) (*Contract, error) {
	c, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusPendingSignature {
		return nil, fault.Validation("cannot activate contract from %s state, must be PENDING_SIGNATURE", c.Status)
	}
	if !c.FullySigned() {
		return nil, fault.Validation("cannot activate contract: not all parties have signed")
	}

	now := s.clock()
	c.Status = StatusActive
	c.ActivatedAt = &now
	c.UpdatedAt = now
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	s.record(ctx, c, activity.ContractActivated, "Contract activated", actor, nil)
	return c, nil
}

// Suspend moves an ACTIVE contract to SUSPENDED.
func (s *Service) Suspend(ctx context.Context, tenantID, id, actor, reason string) (*Contract, error) {
	c, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, fault.Validation("cannot suspend contract from %s state, must be ACTIVE", c.Status)
	}

	if reason == "" {
		reason = "No reason provided"
	}
	c.Status = StatusSuspended
	c.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	s.record(ctx, c, activity.ContractSuspended,
		fmt.Sprintf("Contract suspended: %s", reason), actor,
		map[string]any{"reason": reason})
	return c, nil
}

// Reactivate moves a SUSPENDED contract back to ACTIVE.
func (s *Service) Reactivate(ctx context.Context, tenantID, id, actor string) (*Contract, error) {
	c, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusSuspended {
		return nil, fault.Validation("cannot reactivate contract from %s state, must be SUSPENDED", c.Status)
	}

	c.Status = StatusActive
	c.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	s.record(ctx, c, activity.ContractReactivated, "Contract reactivated", actor, nil)
	return c, nil
}

// Terminate forcibly closes a contract from any non-terminal state. The
// permissive guard is intentional: forced closure must work even for
// drafts and contracts stuck in signature.
func (s *Service) Terminate(ctx context.Context, tenantID, id, actor, reason string, terminationDate *time.Time) (*Contract, error) {
	c, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, fault.Validation("cannot terminate contract in %s state", c.Status)
	}

	now := s.clock()
	terminatedAt := now
	if terminationDate != nil {
		terminatedAt = *terminationDate
	}
	c.Status = StatusTerminated
	c.TerminatedAt = &terminatedAt
	c.UpdatedAt = now
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	desc := "Contract terminated"
	if reason != "" {
		desc = fmt.Sprintf("Contract terminated: %s", reason)
	}
	s.record(ctx, c, activity.ContractTerminated, desc, actor,
		map[string]any{"reason": reason, "terminated_at": terminatedAt})
	return c, nil
}

// Cancel abandons a contract that is not ACTIVE. Active contracts must go
// through Terminate instead.
func (s *Service) Cancel(ctx context.Context, tenantID, id, actor, reason string) (*Contract, error) {
	c, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusActive {
		return nil, fault.Validation("cannot cancel an ACTIVE contract, terminate it instead")
	}
	if c.Status.IsTerminal() {
		return nil, fault.Validation("cannot cancel contract in %s state", c.Status)
	}

	c.Status = StatusCancelled
	c.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	desc := "Contract cancelled"
	if reason != "" {
		desc = fmt.Sprintf("Contract cancelled: %s", reason)
	}
	s.record(ctx, c, activity.ContractCancelled, desc, actor,
		map[string]any{"reason": reason})
	return c, nil
}

// Extend rewrites the end date and value of a contract in place. Used by
// the renewal executor for EXTEND_CURRENT renewals; the lifecycle status
// is untouched.
func (s *Service) Extend(ctx context.Context, tenantID, id, actor string, newEnd time.Time, newValue *decimal.Decimal, renewalStatus RenewalStatus, proposalID string) (*Contract, error) {
	c, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, fault.Validation("cannot extend contract in %s state, must be ACTIVE", c.Status)
	}
	if err := ValidateDates(c.StartDate, &newEnd); err != nil {
		return nil, err
	}

	c.EndDate = &newEnd
	if newValue != nil {
		c.Value = newValue
	}
	c.RenewalStatus = renewalStatus
	c.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	s.record(ctx, c, activity.ContractRenewed,
		fmt.Sprintf("Contract extended to %s", newEnd.Format("2006-01-02")), actor,
		map[string]any{"renewal_proposal_id": proposalID, "new_end_date": newEnd})
	return c, nil
}

// MarkRenewalStatus records the outcome of the contract's latest renewal
// proposal without touching the lifecycle state.
func (s *Service) MarkRenewalStatus(ctx context.Context, tenantID, id string, status RenewalStatus) error {
	c, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	c.RenewalStatus = status
	c.UpdatedAt = s.clock()
	return s.store.Update(ctx, c)
}

// ExpireOverdue moves ACTIVE contracts whose end date has passed to
// EXPIRED. Invoked periodically by the external scheduler alongside the
// renewal sweep. Returns the number of contracts expired.
func (s *Service) ExpireOverdue(ctx context.Context, tenantID, actor string) (int, error) {
	now := s.clock()
	all, err := s.store.List(ctx, tenantID, Filter{Status: StatusActive, EndDateTo: &now})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, c := range all {
		c.Status = StatusExpired
		c.UpdatedAt = now
		if err := s.store.Update(ctx, c); err != nil {
			s.logger.ErrorContext(ctx, "failed to expire contract",
				"tenant_id", tenantID, "contract_id", c.ID, "error", err)
			continue
		}
		s.record(ctx, c, activity.ContractExpired, "Contract expired", actor, nil)
		expired++
	}
	return expired, nil
}

// Activity returns the contract's append-only audit trail.
func (s *Service) Activity(ctx context.Context, tenantID, contractID string) ([]activity.Entry, error) {
	if _, err := s.store.Get(ctx, tenantID, contractID); err != nil {
		return nil, err
	}
	return s.log.ListByContract(ctx, tenantID, contractID)
}

// record appends an activity entry. Append failures are logged, not
// propagated: the state transition has already committed.
func (s *Service) record(ctx context.Context, c *Contract, typ activity.EventType, desc, actor string, metadata map[string]any) {
	e := activity.New(c.TenantID, c.ID, typ, desc, actor, s.clock(), metadata)
	if err := s.log.Append(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "failed to append activity",
			"tenant_id", c.TenantID, "contract_id", c.ID, "type", typ, "error", err)
	}
}
