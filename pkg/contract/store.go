package contract

import (
	"context"
	"time"
)

// Filter narrows a contract listing. Zero values mean "no constraint".
type Filter struct {
	Status   Status
	Type     Type
	ClientID string // id of a CLIENT-role party

	// End-date window, used by the expiring-contracts query.
	EndDateFrom *time.Time
	EndDateTo   *time.Time
}

// Store persists contracts. Update is a compare-and-swap on the contract's
// Version field: implementations must fail with a conflict fault when the
// stored version differs, so that two racing transitions cannot both
// succeed from the same precondition state.
type Store interface {
	Create(ctx context.Context, c *Contract) error

	// Get returns the contract or a not-found fault. Lookups are always
	// tenant-scoped; an id owned by another tenant is indistinguishable
	// from a missing one.
	Get(ctx context.Context, tenantID, id string) (*Contract, error)

	// Update replaces the stored contract iff the stored version equals
	// c.Version, then increments c.Version. Returns a conflict fault on
	// version mismatch and a not-found fault if the row is gone.
	Update(ctx context.Context, c *Contract) error

	List(ctx context.Context, tenantID string, f Filter) ([]*Contract, error)
}
