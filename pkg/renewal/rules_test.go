package renewal_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauseworks/contractd/pkg/activity"
	"github.com/clauseworks/contractd/pkg/contract"
	"github.com/clauseworks/contractd/pkg/fault"
	"github.com/clauseworks/contractd/pkg/notify"
	"github.com/clauseworks/contractd/pkg/renewal"
	"github.com/clauseworks/contractd/pkg/signing"
)

var engineNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine    *renewal.Engine
	contracts *contract.Service
	notifier  *captureNotifier
	now       time.Time
}

type captureNotifier struct {
	messages []notify.Message
}

func (n *captureNotifier) Notify(ctx context.Context, msg notify.Message) error {
	n.messages = append(n.messages, msg)
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: engineNow, notifier: &captureNotifier{}}
	clock := func() time.Time { return f.now }

	f.contracts = contract.NewService(
		contract.NewMemoryStore(),
		activity.NewMemoryRecorder(),
		signing.NewStubWorkflow(),
	).WithClock(clock)

	f.engine = renewal.NewEngine(
		renewal.NewMemoryRuleStore(),
		renewal.NewMemoryProposalStore(),
		f.contracts,
		f.notifier,
		renewal.Defaults{},
	).WithClock(clock)
	return f
}

// activeContract creates a contract and walks it to ACTIVE with the given
// end date and value.
func (f *fixture) activeContract(t *testing.T, tenantID string, typ contract.Type, value string, endsIn time.Duration) *contract.Contract {
	t.Helper()
	ctx := context.Background()

	signedAt := f.now
	end := f.now.Add(endsIn)
	in := contract.CreateInput{
		Type:  typ,
		Title: "Fixture contract",
		Parties: []contract.Party{
			{ID: "company-1", Name: "Acme", Email: "legal@acme.test", Role: contract.RoleCompany, SignedAt: &signedAt},
			{ID: "client-1", Name: "Jane", Email: "jane@client.test", Role: contract.RoleClient, SignedAt: &signedAt},
		},
		StartDate: f.now,
		EndDate:   &end,
		Currency:  "EUR",
	}
	if value != "" {
		v := dec(value)
		in.Value = &v
	}

	c, err := f.contracts.Create(ctx, tenantID, "tester", in)
	require.NoError(t, err)
	_, err = f.contracts.SendForSignature(ctx, tenantID, c.ID, "tester")
	require.NoError(t, err)
	c, err = f.contracts.Activate(ctx, tenantID, c.ID, "tester")
	require.NoError(t, err)
	return c
}

func membershipRule(mutate ...func(*renewal.RuleInput)) renewal.RuleInput {
	in := renewal.RuleInput{
		Name:                "membership renewals",
		Active:              true,
		ContractTypes:       []contract.Type{contract.TypeMembership},
		Trigger:             renewal.TriggerDaysBeforeExpiry,
		TriggerDays:         30,
		RenewalType:         renewal.ExtendCurrent,
		RenewalPeriodMonths: 12,
	}
	for _, m := range mutate {
		m(&in)
	}
	return in
}

func TestCreateRule_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*renewal.RuleInput)
	}{
		{"empty name", func(in *renewal.RuleInput) { in.Name = "" }},
		{"no contract types", func(in *renewal.RuleInput) { in.ContractTypes = nil }},
		{"unknown contract type", func(in *renewal.RuleInput) {
			in.ContractTypes = []contract.Type{"LEASE"}
		}},
		{"trigger days zero", func(in *renewal.RuleInput) { in.TriggerDays = 0 }},
		{"trigger days over year", func(in *renewal.RuleInput) { in.TriggerDays = 366 }},
		{"trigger days on manual trigger", func(in *renewal.RuleInput) {
			in.Trigger = renewal.TriggerManual
		}},
		{"unknown trigger", func(in *renewal.RuleInput) { in.Trigger = "ON_DEMAND" }},
		{"unknown renewal type", func(in *renewal.RuleInput) { in.RenewalType = "ROLLOVER" }},
		{"period zero", func(in *renewal.RuleInput) { in.RenewalPeriodMonths = 0 }},
		{"period too long", func(in *renewal.RuleInput) { in.RenewalPeriodMonths = 121 }},
		{"percentage below floor", func(in *renewal.RuleInput) {
			in.PriceAdjustment = &renewal.PriceAdjustment{Kind: renewal.AdjustPercentage, Value: dec("-51")}
		}},
		{"percentage above cap", func(in *renewal.RuleInput) {
			in.PriceAdjustment = &renewal.PriceAdjustment{Kind: renewal.AdjustPercentage, Value: dec("101")}
		}},
		{"unknown adjustment kind", func(in *renewal.RuleInput) {
			in.PriceAdjustment = &renewal.PriceAdjustment{Kind: "MULTIPLIER", Value: dec("2")}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateRule(ctx, "tenant-1", membershipRule(tt.mutate))
			require.Error(t, err)
			assert.True(t, fault.IsValidation(err))
		})
	}
}

func TestCreateRule_BoundaryValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, in := range []renewal.RuleInput{
		membershipRule(func(in *renewal.RuleInput) { in.TriggerDays = 1 }),
		membershipRule(func(in *renewal.RuleInput) { in.TriggerDays = 365 }),
		membershipRule(func(in *renewal.RuleInput) { in.RenewalPeriodMonths = 120 }),
		membershipRule(func(in *renewal.RuleInput) {
			in.PriceAdjustment = &renewal.PriceAdjustment{Kind: renewal.AdjustPercentage, Value: dec("-50")}
		}),
		membershipRule(func(in *renewal.RuleInput) {
			in.PriceAdjustment = &renewal.PriceAdjustment{Kind: renewal.AdjustPercentage, Value: dec("100")}
		}),
		membershipRule(func(in *renewal.RuleInput) {
			// Fixed amounts have no range constraint.
			in.PriceAdjustment = &renewal.PriceAdjustment{Kind: renewal.AdjustFixedAmount, Value: dec("-99999")}
		}),
	} {
		_, err := f.engine.CreateRule(ctx, "tenant-1", in)
		assert.NoError(t, err)
	}
}

func TestRuleCRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.CreateRule(ctx, "tenant-1", membershipRule())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got, err := f.engine.GetRule(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	// Tenant scoping.
	_, err = f.engine.GetRule(ctx, "tenant-2", created.ID)
	assert.True(t, fault.IsNotFound(err))

	updated, err := f.engine.UpdateRule(ctx, "tenant-1", created.ID, membershipRule(func(in *renewal.RuleInput) {
		in.Name = "renamed"
		in.TriggerDays = 45
	}))
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, 45, updated.TriggerDays)

	// Updates must re-validate.
	_, err = f.engine.UpdateRule(ctx, "tenant-1", created.ID, membershipRule(func(in *renewal.RuleInput) {
		in.TriggerDays = 0
	}))
	assert.True(t, fault.IsValidation(err))

	require.NoError(t, f.engine.DeleteRule(ctx, "tenant-1", created.ID))
	_, err = f.engine.GetRule(ctx, "tenant-1", created.ID)
	assert.True(t, fault.IsNotFound(err))
}

func TestListRules_InsertionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	names := []string{"first", "second", "third"}
	for _, name := range names {
		_, err := f.engine.CreateRule(ctx, "tenant-1", membershipRule(func(in *renewal.RuleInput) {
			in.Name = name
		}))
		require.NoError(t, err)
	}

	rules, err := f.engine.ListRules(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	for i, name := range names {
		assert.Equal(t, name, rules[i].Name)
	}
}

func TestFindApplicableRule_FirstMatchWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	min := decimal.NewFromInt(500)
	highValue, err := f.engine.CreateRule(ctx, "tenant-1", membershipRule(func(in *renewal.RuleInput) {
		in.Name = "high value"
		in.Conditions = &renewal.Conditions{MinContractValue: &min}
	}))
	require.NoError(t, err)

	catchAll, err := f.engine.CreateRule(ctx, "tenant-1", membershipRule(func(in *renewal.RuleInput) {
		in.Name = "catch all"
	}))
	require.NoError(t, err)

	// Inactive rules never match.
	_, err = f.engine.CreateRule(ctx, "tenant-1", membershipRule(func(in *renewal.RuleInput) {
		in.Name = "disabled"
		in.Active = false
	}))
	require.NoError(t, err)

	cheap := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", 365*24*time.Hour)
	rich := f.activeContract(t, "tenant-1", contract.TypeMembership, "900", 365*24*time.Hour)

	got, err := f.engine.FindApplicableRule(ctx, "tenant-1", cheap)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, catchAll.ID, got.ID)

	got, err = f.engine.FindApplicableRule(ctx, "tenant-1", rich)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, highValue.ID, got.ID)

	// No applicable rule is nil/nil, not an error.
	event := f.activeContract(t, "tenant-1", contract.TypeEventSpace, "300", 365*24*time.Hour)
	got, err = f.engine.FindApplicableRule(ctx, "tenant-1", event)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteRule_BlockedByPendingProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule, err := f.engine.CreateRule(ctx, "tenant-1", membershipRule())
	require.NoError(t, err)

	c := f.activeContract(t, "tenant-1", contract.TypeMembership, "300", 365*24*time.Hour)
	p, err := f.engine.CreateProposal(ctx, "tenant-1", c.ID, "tester", rule.ID)
	require.NoError(t, err)
	require.Equal(t, renewal.ProposalPending, p.Status)

	err = f.engine.DeleteRule(ctx, "tenant-1", rule.ID)
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))

	// Once the proposal is resolved, deletion goes through.
	_, err = f.engine.ProcessProposal(ctx, "tenant-1", p.ID, "boss", renewal.Decision{
		Action: renewal.ActionDecline,
	})
	require.NoError(t, err)
	assert.NoError(t, f.engine.DeleteRule(ctx, "tenant-1", rule.ID))
}
