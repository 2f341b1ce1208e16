// Package activity is the append-only audit trail for contract lifecycle
// events. Entries are keyed by contract id, ordered by time, and never
// mutated or deleted. The renewal sweep and reporting consumers read it.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes a lifecycle event.
type EventType string

const (
	ContractCreated     EventType = "CONTRACT_CREATED"
	ContractUpdated     EventType = "CONTRACT_UPDATED"
	SignatureRequested  EventType = "SIGNATURE_REQUESTED"
	ContractActivated   EventType = "CONTRACT_ACTIVATED"
	ContractSuspended   EventType = "CONTRACT_SUSPENDED"
	ContractReactivated EventType = "CONTRACT_REACTIVATED"
	ContractTerminated  EventType = "CONTRACT_TERMINATED"
	ContractCancelled   EventType = "CONTRACT_CANCELLED"
	ContractExpired     EventType = "CONTRACT_EXPIRED"
	ContractRenewed     EventType = "CONTRACT_RENEWED"
)

// Entry is one immutable audit record.
type Entry struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	ContractID  string         `json:"contract_id"`
	Type        EventType      `json:"type"`
	Description string         `json:"description"`
	Actor       string         `json:"actor"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Recorder is the append-only log abstraction injected into the lifecycle
// and renewal components.
type Recorder interface {
	Append(ctx context.Context, e Entry) error
	ListByContract(ctx context.Context, tenantID, contractID string) ([]Entry, error)
}

// New builds an Entry with a fresh id and the given timestamp.
func New(tenantID, contractID string, typ EventType, description, actor string, at time.Time, metadata map[string]any) Entry {
	return Entry{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		ContractID:  contractID,
		Type:        typ,
		Description: description,
		Actor:       actor,
		Timestamp:   at,
		Metadata:    metadata,
	}
}
