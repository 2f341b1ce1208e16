// Package contract owns the contract entity and its lifecycle state machine.
// All transitions are guarded: a transition invoked from the wrong state
// fails with a validation fault and leaves the contract untouched.
package contract

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type is the closed set of contract categories.
type Type string

const (
	TypeMembership  Type = "MEMBERSHIP"
	TypeService     Type = "SERVICE"
	TypeEventSpace  Type = "EVENT_SPACE"
	TypeMeetingRoom Type = "MEETING_ROOM"
	TypeCustom      Type = "CUSTOM"
)

// ValidTypes lists every accepted contract type.
var ValidTypes = []Type{TypeMembership, TypeService, TypeEventSpace, TypeMeetingRoom, TypeCustom}

// IsValidType reports whether t is a known contract type.
func IsValidType(t Type) bool {
	for _, v := range ValidTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of a contract.
//
//	DRAFT → PENDING_SIGNATURE → ACTIVE ⇄ SUSPENDED → TERMINATED
//
// CANCELLED is reachable from every non-ACTIVE, non-terminal state.
// TERMINATED and CANCELLED are absorbing.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusPendingSignature Status = "PENDING_SIGNATURE"
	StatusActive           Status = "ACTIVE"
	StatusSuspended        Status = "SUSPENDED"
	StatusExpired          Status = "EXPIRED"
	StatusTerminated       Status = "TERMINATED"
	StatusCancelled        Status = "CANCELLED"
)

// IsTerminal reports whether s is an absorbing state.
func (s Status) IsTerminal() bool {
	return s == StatusTerminated || s == StatusCancelled
}

// RenewalStatus tracks the outcome of the contract's most recent renewal
// proposal. It is distinct from the lifecycle status.
type RenewalStatus string

const (
	RenewalNone        RenewalStatus = "NONE"
	RenewalPending     RenewalStatus = "PENDING"
	RenewalApproved    RenewalStatus = "APPROVED"
	RenewalDeclined    RenewalStatus = "DECLINED"
	RenewalAutoRenewed RenewalStatus = "AUTO_RENEWED"
)

// PartyRole identifies which side of the agreement a party is on.
type PartyRole string

const (
	RoleClient  PartyRole = "CLIENT"
	RoleCompany PartyRole = "COMPANY"
	RoleWitness PartyRole = "WITNESS"
)

// Party is one signatory on a contract. SignedAt is written back by the
// signing collaborator once the party has signed.
type Party struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     PartyRole  `json:"role"`
	SignedAt *time.Time `json:"signed_at,omitempty"`
}

// Term is one ordered clause of the contract body.
type Term struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// Contract is a tenant's agreement record.
type Contract struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	Type    Type    `json:"type"`
	Title   string  `json:"title"`
	Content string  `json:"content"` // opaque rendered text
	Terms   []Term  `json:"terms,omitempty"`
	Parties []Party `json:"parties"`

	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	Value    *decimal.Decimal `json:"value,omitempty"`
	Currency string           `json:"currency"` // ISO 4217 code

	AutoRenewal         bool           `json:"auto_renewal"`
	RenewalPeriodMonths int            `json:"renewal_period_months,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`

	Status        Status        `json:"status"`
	RenewalStatus RenewalStatus `json:"renewal_status"`

	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`

	// SignatureWorkflowID references the external signing workflow opened
	// by sendForSignature. Opaque to this package.
	SignatureWorkflowID string `json:"signature_workflow_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version supports optimistic concurrency in the store. Incremented on
	// every successful update.
	Version int64 `json:"version"`
}

// ClientParty returns the first CLIENT-role party, or nil.
func (c *Contract) ClientParty() *Party {
	for i := range c.Parties {
		if c.Parties[i].Role == RoleClient {
			return &c.Parties[i]
		}
	}
	return nil
}

// FullySigned reports whether every party has a recorded signature.
func (c *Contract) FullySigned() bool {
	if len(c.Parties) == 0 {
		return false
	}
	for _, p := range c.Parties {
		if p.SignedAt == nil {
			return false
		}
	}
	return true
}

// DaysUntilExpiry returns the whole days between now and the end date,
// rounding partial days up. Returns false if no end date is set.
func (c *Contract) DaysUntilExpiry(now time.Time) (int, bool) {
	if c.EndDate == nil {
		return 0, false
	}
	d := c.EndDate.Sub(now)
	days := int(d.Hours() / 24)
	if d > 0 && d%(24*time.Hour) != 0 {
		days++
	}
	return days, true
}

// Clone returns a deep copy. Stores return clones so callers can never
// mutate shared state.
func (c *Contract) Clone() *Contract {
	out := *c
	out.Terms = append([]Term(nil), c.Terms...)
	out.Parties = append([]Party(nil), c.Parties...)
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
