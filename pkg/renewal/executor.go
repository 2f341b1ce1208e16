package renewal

import (
	"context"
	"fmt"

	"github.com/clauseworks/contractd/pkg/contract"
)

// renewedFromKey and renewalProposalKey annotate a successor contract's
// metadata, linking it back to the contract it replaced.
const (
	renewedFromKey      = "renewedFrom"
	renewalProposalKey  = "renewalProposalId"
	newContractTermNote = "Contract renewed with new contract"
)

// execute applies an approved or auto-approved proposal to the contract
// graph. EXTEND_CURRENT and RENEGOTIATE rewrite the original in place;
// NEW_CONTRACT creates a linked successor and terminates the original.
// Failures surface to the caller; they must not be silently swallowed.
func (e *Engine) execute(ctx context.Context, p *Proposal, actor string) error {
	renewalStatus := contract.RenewalApproved
	if p.Status == ProposalAutoRenewed {
		renewalStatus = contract.RenewalAutoRenewed
	}

	switch p.RenewalType {
	case ExtendCurrent, Renegotiate:
		// RENEGOTIATE reaches here only through human approval; once
		// approved its effect is the same in-place extension.
		_, err := e.contracts.Extend(ctx, p.TenantID, p.ContractID, actor,
			p.ProposedEndDate, p.ProposedValue, renewalStatus, p.ID)
		if err != nil {
			return fmt.Errorf("extend contract %s: %w", p.ContractID, err)
		}
		return nil

	case NewContract:
		original, err := e.contracts.Get(ctx, p.TenantID, p.ContractID)
		if err != nil {
			return err
		}

		meta := make(map[string]any, len(original.Metadata)+2)
		for k, v := range original.Metadata {
			meta[k] = v
		}
		meta[renewedFromKey] = original.ID
		meta[renewalProposalKey] = p.ID

		successor, err := e.contracts.Create(ctx, p.TenantID, actor, contract.CreateInput{
			Type:                original.Type,
			Title:               original.Title,
			Content:             original.Content,
			Terms:               original.Terms,
			Parties:             clearSignatures(original.Parties),
			StartDate:           p.ProposedStartDate,
			EndDate:             &p.ProposedEndDate,
			Value:               p.ProposedValue,
			Currency:            original.Currency,
			AutoRenewal:         original.AutoRenewal,
			RenewalPeriodMonths: original.RenewalPeriodMonths,
			Metadata:            meta,
		})
		if err != nil {
			return fmt.Errorf("create successor for contract %s: %w", p.ContractID, err)
		}

		if _, err := e.contracts.Terminate(ctx, p.TenantID, original.ID, actor, newContractTermNote, nil); err != nil {
			return fmt.Errorf("terminate contract %s after creating successor %s: %w", original.ID, successor.ID, err)
		}
		if err := e.contracts.MarkRenewalStatus(ctx, p.TenantID, original.ID, renewalStatus); err != nil {
			e.logger.ErrorContext(ctx, "failed to mark renewal status on renewed contract",
				"tenant_id", p.TenantID, "contract_id", original.ID, "error", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown renewal type %q on proposal %s", p.RenewalType, p.ID)
	}
}

// clearSignatures copies the parties with signature timestamps removed; a
// successor contract needs fresh signatures.
func clearSignatures(parties []contract.Party) []contract.Party {
	out := make([]contract.Party, len(parties))
	copy(out, parties)
	for i := range out {
		out[i].SignedAt = nil
	}
	return out
}
