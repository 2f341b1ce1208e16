package renewal_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauseworks/contractd/pkg/activity"
	"github.com/clauseworks/contractd/pkg/contract"
	"github.com/clauseworks/contractd/pkg/fault"
	"github.com/clauseworks/contractd/pkg/renewal"
	"github.com/clauseworks/contractd/pkg/signing"
)

const year = 365 * 24 * time.Hour

func TestCreateProposal_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unknown contract", func(t *testing.T) {
		_, err := f.engine.CreateProposal(ctx, "tenant-1", "missing", "tester", "")
		assert.True(t, fault.IsNotFound(err))
	})

	t.Run("no end date", func(t *testing.T) {
		signedAt := f.now
		c, err := f.contracts.Create(ctx, "tenant-1", "tester", contract.CreateInput{
			Type:  contract.TypeMembership,
			Title: "Open ended",
			Parties: []contract.Party{
				{ID: "company-1", Name: "Acme", Email: "legal@acme.test", Role: contract.RoleCompany, SignedAt: &signedAt},
				{ID: "client-1", Name: "Jane", Email: "jane@client.test", Role: contract.RoleClient, SignedAt: &signedAt},
			},
			StartDate: f.now,
		})
		require.NoError(t, err)
		_, err = f.contracts.SendForSignature(ctx, "tenant-1", c.ID, "tester")
		require.NoError(t, err)
		_, err = f.contracts.Activate(ctx, "tenant-1", c.ID, "tester")
		require.NoError(t, err)

		_, err = f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
		assert.True(t, fault.IsValidation(err))
	})

	t.Run("contract not active", func(t *testing.T) {
		c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)
		_, err := f.contracts.Suspend(ctx, "tenant-1", c.ID, "tester", "")
		require.NoError(t, err)

		_, err = f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
		assert.True(t, fault.IsValidation(err))
	})
}

func TestCreateProposal_AtMostOnePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)

	first, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)
	assert.Equal(t, renewal.ProposalPending, first.Status)

	_, err = f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))

	// A resolved proposal clears the way for a new one.
	_, err = f.engine.ProcessProposal(ctx, "tenant-1", first.ID, "boss", renewal.Decision{
		Action: renewal.ActionDecline,
	})
	require.NoError(t, err)

	second, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateProposal_DefaultsWithoutRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)

	p, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)

	assert.Empty(t, p.RuleID)
	assert.Equal(t, renewal.ExtendCurrent, p.RenewalType)
	assert.Equal(t, 12, p.RenewalPeriodMonths)
	assert.Equal(t, *c.EndDate, p.ProposedStartDate)
	assert.Equal(t, c.EndDate.AddDate(0, 12, 0), p.ProposedEndDate)
	// No rule means no adjustment: proposed value equals current value.
	require.NotNil(t, p.ProposedValue)
	assert.True(t, c.Value.Equal(*p.ProposedValue))
	assert.Empty(t, p.AdjustmentNote)

	got, err := f.contracts.Get(ctx, "tenant-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.RenewalPending, got.RenewalStatus)
}

func TestCreateProposal_RuleAdjustmentAndPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule, err := f.engine.CreateRule(ctx, "tenant-1", membershipRule(func(in *renewal.RuleInput) {
		in.RenewalPeriodMonths = 6
		in.PriceAdjustment = &renewal.PriceAdjustment{Kind: renewal.AdjustPercentage, Value: dec("5")}
	}))
	require.NoError(t, err)

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)

	p, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)

	assert.Equal(t, rule.ID, p.RuleID)
	assert.Equal(t, 6, p.RenewalPeriodMonths)
	assert.Equal(t, c.EndDate.AddDate(0, 6, 0), p.ProposedEndDate)
	require.NotNil(t, p.ProposedValue)
	assert.True(t, dec("315").Equal(*p.ProposedValue), "got %s", p.ProposedValue)
	assert.NotEmpty(t, p.AdjustmentNote)
}

func TestCreateProposal_AutoApproveExtends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateRule(ctx, "tenant-1", membershipRule(func(in *renewal.RuleInput) {
		in.AutoApprove = true
		in.PriceAdjustment = &renewal.PriceAdjustment{Kind: renewal.AdjustPercentage, Value: dec("5")}
	}))
	require.NoError(t, err)

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)
	originalEnd := *c.EndDate

	p, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)

	assert.Equal(t, renewal.ProposalAutoRenewed, p.Status)
	assert.Equal(t, "system", p.ApprovedBy)
	require.NotNil(t, p.ProcessedAt)

	got, err := f.contracts.Get(ctx, "tenant-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusActive, got.Status)
	assert.Equal(t, contract.RenewalAutoRenewed, got.RenewalStatus)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, originalEnd.AddDate(0, 12, 0), *got.EndDate)
	require.NotNil(t, got.Value)
	assert.True(t, dec("315").Equal(*got.Value))
}

// barrierProposalStore holds every Create at a barrier until all expected
// creators have passed the duplicate checks, forcing the worst-case
// interleaving onto the store's pending-only unique gate.
type barrierProposalStore struct {
	renewal.ProposalStore
	insertGate sync.WaitGroup
}

func (s *barrierProposalStore) Create(ctx context.Context, p *renewal.Proposal) error {
	s.insertGate.Done()
	s.insertGate.Wait()
	return s.ProposalStore.Create(ctx, p)
}

func TestCreateProposal_ConcurrentAutoApproveExecutesOnce(t *testing.T) {
	f := &fixture{now: engineNow, notifier: &captureNotifier{}}
	clock := func() time.Time { return f.now }
	f.contracts = contract.NewService(
		contract.NewMemoryStore(),
		activity.NewMemoryRecorder(),
		signing.NewStubWorkflow(),
	).WithClock(clock)

	store := &barrierProposalStore{ProposalStore: renewal.NewMemoryProposalStore()}
	store.insertGate.Add(2)
	f.engine = renewal.NewEngine(
		renewal.NewMemoryRuleStore(),
		store,
		f.contracts,
		f.notifier,
		renewal.Defaults{},
	).WithClock(clock)

	ctx := context.Background()
	rule, err := f.engine.CreateRule(ctx, "tenant-1", membershipRule(func(in *renewal.RuleInput) {
		in.AutoApprove = true
		in.PriceAdjustment = &renewal.PriceAdjustment{Kind: renewal.AdjustPercentage, Value: dec("5")}
	}))
	require.NoError(t, err)

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)
	originalEnd := *c.EndDate

	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "sweeper", rule.ID)
			errs <- err
		}()
	}
	first, second := <-errs, <-errs

	// Exactly one creator wins; the loser surfaces as a duplicate-pending
	// validation error.
	if first == nil {
		require.Error(t, second)
		assert.True(t, fault.IsValidation(second))
	} else {
		require.NoError(t, second)
		assert.True(t, fault.IsValidation(first))
	}

	proposals, err := f.engine.ListProposals(ctx, "tenant-1", renewal.ProposalFilter{ContractID: c.ID})
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, renewal.ProposalAutoRenewed, proposals[0].Status)

	// The contract is extended exactly once.
	got, err := f.contracts.Get(ctx, "tenant-1", c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, originalEnd.AddDate(0, 12, 0), *got.EndDate)
	require.NotNil(t, got.Value)
	assert.True(t, dec("315").Equal(*got.Value))
}

func TestProcessProposal_Approve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)
	p, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)

	got, err := f.engine.ProcessProposal(ctx, "tenant-1", p.ID, "boss", renewal.Decision{
		Action: renewal.ActionApprove,
		Notes:  "looks good",
	})
	require.NoError(t, err)

	assert.Equal(t, renewal.ProposalApproved, got.Status)
	assert.Equal(t, "boss", got.ApprovedBy)
	assert.Equal(t, "looks good", got.Notes)
	require.NotNil(t, got.ProcessedAt)

	updated, err := f.contracts.Get(ctx, "tenant-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.RenewalApproved, updated.RenewalStatus)
	assert.Equal(t, p.ProposedEndDate, *updated.EndDate)
}

func TestProcessProposal_ApproveWithModifiedTerms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)
	p, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)

	overrideValue := dec("280")
	overrideEnd := c.EndDate.AddDate(0, 3, 0)
	got, err := f.engine.ProcessProposal(ctx, "tenant-1", p.ID, "boss", renewal.Decision{
		Action:      renewal.ActionApprove,
		ModifyTerms: true,
		NewValue:    &overrideValue,
		NewEndDate:  &overrideEnd,
	})
	require.NoError(t, err)

	assert.True(t, overrideValue.Equal(*got.ProposedValue))
	assert.Equal(t, overrideEnd, got.ProposedEndDate)

	updated, err := f.contracts.Get(ctx, "tenant-1", c.ID)
	require.NoError(t, err)
	assert.True(t, overrideValue.Equal(*updated.Value))
	assert.Equal(t, overrideEnd, *updated.EndDate)
}

func TestProcessProposal_Decline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)
	originalEnd := *c.EndDate
	p, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)

	got, err := f.engine.ProcessProposal(ctx, "tenant-1", p.ID, "boss", renewal.Decision{
		Action:        renewal.ActionDecline,
		DeclineReason: "price too high",
	})
	require.NoError(t, err)

	assert.Equal(t, renewal.ProposalDeclined, got.Status)
	assert.Equal(t, "boss", got.DeclinedBy)
	assert.Equal(t, "price too high", got.DeclineReason)

	// The contract itself is untouched apart from its renewal status.
	updated, err := f.contracts.Get(ctx, "tenant-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.RenewalDeclined, updated.RenewalStatus)
	assert.Equal(t, originalEnd, *updated.EndDate)
	assert.True(t, dec("300").Equal(*updated.Value))
}

func TestProcessProposal_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)
	p, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)

	_, err = f.engine.ProcessProposal(ctx, "tenant-1", p.ID, "boss", renewal.Decision{
		Action: renewal.ActionApprove,
	})
	require.NoError(t, err)

	_, err = f.engine.ProcessProposal(ctx, "tenant-1", p.ID, "boss", renewal.Decision{
		Action: renewal.ActionDecline,
	})
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))
}

func TestProcessProposal_UnknownAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)
	p, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)

	_, err = f.engine.ProcessProposal(ctx, "tenant-1", p.ID, "boss", renewal.Decision{Action: "ESCALATE"})
	assert.True(t, fault.IsValidation(err))
}

func TestExecute_NewContract(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateRule(ctx, "tenant-1", membershipRule(func(in *renewal.RuleInput) {
		in.RenewalType = renewal.NewContract
		in.PriceAdjustment = &renewal.PriceAdjustment{Kind: renewal.AdjustFixedAmount, Value: dec("50")}
	}))
	require.NoError(t, err)

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)
	p, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)

	_, err = f.engine.ProcessProposal(ctx, "tenant-1", p.ID, "boss", renewal.Decision{
		Action: renewal.ActionApprove,
	})
	require.NoError(t, err)

	// Original is terminated.
	original, err := f.contracts.Get(ctx, "tenant-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusTerminated, original.Status)
	assert.Equal(t, contract.RenewalApproved, original.RenewalStatus)

	// Successor is a fresh draft linked back via metadata, with cleared
	// signatures and the adjusted value.
	all, err := f.contracts.List(ctx, "tenant-1", contract.ListQuery{Status: contract.StatusDraft})
	require.NoError(t, err)
	require.Len(t, all, 1)
	successor := all[0]

	assert.Equal(t, c.ID, successor.Metadata["renewedFrom"])
	assert.Equal(t, p.ID, successor.Metadata["renewalProposalId"])
	assert.Equal(t, c.Title, successor.Title)
	assert.Equal(t, p.ProposedStartDate, successor.StartDate)
	require.NotNil(t, successor.EndDate)
	assert.Equal(t, p.ProposedEndDate, *successor.EndDate)
	require.NotNil(t, successor.Value)
	assert.True(t, dec("350").Equal(*successor.Value))
	for _, party := range successor.Parties {
		assert.Nil(t, party.SignedAt)
	}
}

func TestCreateProposal_NotificationDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateRule(ctx, "tenant-1", membershipRule(func(in *renewal.RuleInput) {
		in.Notifications = renewal.NotificationSettings{
			Enabled:    true,
			Channels:   []string{"email"},
			Recipients: []string{"ops@clauseworks.test"},
		}
	}))
	require.NoError(t, err)

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)
	p, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", "")
	require.NoError(t, err)

	require.Len(t, f.notifier.messages, 1)
	msg := f.notifier.messages[0]
	assert.Equal(t, "contract_renewal_proposed", msg.Template)
	assert.Equal(t, []string{"email"}, msg.Channels)
	assert.Equal(t, p.ID, msg.Payload["proposal_id"])
}

func TestListProposals_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c1 := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", year)
	c2 := f.activeContract(t, "tenant-1", contract.TypeMembership, "400", year)

	p1, err := f.engine.CreateProposal(ctx, "tenant-1", c1.ID, "tester", "")
	require.NoError(t, err)
	_, err = f.engine.CreateProposal(ctx, "tenant-1", c2.ID, "tester", "")
	require.NoError(t, err)
	_, err = f.engine.ProcessProposal(ctx, "tenant-1", p1.ID, "boss", renewal.Decision{
		Action: renewal.ActionDecline,
	})
	require.NoError(t, err)

	pending, err := f.engine.ListProposals(ctx, "tenant-1", renewal.ProposalFilter{Status: renewal.ProposalPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, c2.ID, pending[0].ContractID)

	byContract, err := f.engine.ListProposals(ctx, "tenant-1", renewal.ProposalFilter{ContractID: c1.ID})
	require.NoError(t, err)
	require.Len(t, byContract, 1)
	assert.Equal(t, renewal.ProposalDeclined, byContract[0].Status)

	other, err := f.engine.ListProposals(ctx, "tenant-2", renewal.ProposalFilter{})
	require.NoError(t, err)
	assert.Empty(t, other)
}
