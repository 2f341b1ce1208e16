package renewal_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauseworks/contractd/pkg/fault"
	"github.com/clauseworks/contractd/pkg/renewal"
)

func pendingProposal(id, tenantID, contractID string) *renewal.Proposal {
	return &renewal.Proposal{
		ID:         id,
		TenantID:   tenantID,
		ContractID: contractID,
		Status:     renewal.ProposalPending,
		CreatedAt:  time.Now(),
	}
}

func TestMemoryProposalStore_PendingInvariant(t *testing.T) {
	store := renewal.NewMemoryProposalStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, pendingProposal("p-1", "tenant-1", "c-1")))

	err := store.Create(ctx, pendingProposal("p-2", "tenant-1", "c-1"))
	require.Error(t, err)
	assert.True(t, fault.IsConflict(err))

	// Pending for a different contract or tenant is fine.
	assert.NoError(t, store.Create(ctx, pendingProposal("p-3", "tenant-1", "c-2")))
	assert.NoError(t, store.Create(ctx, pendingProposal("p-4", "tenant-2", "c-1")))

	// Non-pending statuses do not trip the invariant.
	resolved := pendingProposal("p-5", "tenant-1", "c-1")
	resolved.Status = renewal.ProposalDeclined
	assert.NoError(t, store.Create(ctx, resolved))
}

func TestMemoryProposalStore_ConcurrentCreateSingleWinner(t *testing.T) {
	store := renewal.NewMemoryProposalStore()
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Create(ctx, pendingProposal(fmt.Sprintf("p-%d", i), "tenant-1", "c-1"))
		}(i)
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(t, fault.IsConflict(err))
		}
	}
	assert.Equal(t, 1, wins)
}

func TestMemoryProposalStore_UpdateFromPending(t *testing.T) {
	store := renewal.NewMemoryProposalStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, pendingProposal("p-1", "tenant-1", "c-1")))

	approved, err := store.Get(ctx, "tenant-1", "p-1")
	require.NoError(t, err)
	approved.Status = renewal.ProposalApproved
	require.NoError(t, store.UpdateFromPending(ctx, approved))

	// A second decision on the same proposal loses.
	declined, err := store.Get(ctx, "tenant-1", "p-1")
	require.NoError(t, err)
	declined.Status = renewal.ProposalDeclined
	err = store.UpdateFromPending(ctx, declined)
	require.Error(t, err)
	assert.True(t, fault.IsConflict(err))

	got, err := store.Get(ctx, "tenant-1", "p-1")
	require.NoError(t, err)
	assert.Equal(t, renewal.ProposalApproved, got.Status)
}

func TestMemoryProposalStore_ExistsForContract(t *testing.T) {
	store := renewal.NewMemoryProposalStore()
	ctx := context.Background()

	resolved := pendingProposal("p-1", "tenant-1", "c-1")
	resolved.Status = renewal.ProposalDeclined
	require.NoError(t, store.Create(ctx, resolved))

	// Any status counts; the sweep's guard is status-agnostic.
	exists, err := store.ExistsForContract(ctx, "tenant-1", "c-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ExistsForContract(ctx, "tenant-1", "c-2")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = store.ExistsForContract(ctx, "tenant-2", "c-1")
	require.NoError(t, err)
	assert.False(t, exists)
}
