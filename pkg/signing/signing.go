// Package signing is the narrow interface to the external e-signature
// collaborator. The lifecycle core only needs to open a workflow and, later,
// observe per-party SignedAt timestamps that the collaborator writes back.
package signing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clauseworks/contractd/pkg/contract"
)

// Workflow requests signatures for a contract and returns an opaque
// workflow identifier.
type Workflow interface {
	RequestSignature(ctx context.Context, c *contract.Contract) (workflowID string, err error)
}

// StubWorkflow generates workflow ids locally. Used in development and
// tests; a production deployment wires the real signing service here.
type StubWorkflow struct{}

func NewStubWorkflow() *StubWorkflow { return &StubWorkflow{} }

func (s *StubWorkflow) RequestSignature(ctx context.Context, c *contract.Contract) (string, error) {
	return fmt.Sprintf("sig-%s", uuid.New().String()), nil
}
