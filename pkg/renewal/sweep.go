package renewal

import (
	"context"
)

// SweepResult aggregates what one sweep run did. Per-contract failures are
// logged with contract and rule identifiers but are not part of the
// result.
type SweepResult struct {
	Created       int `json:"created"`
	Processed     int `json:"processed"`
	Notifications int `json:"notifications"`
}

// Sweep iterates the tenant's active DAYS_BEFORE_EXPIRY rules, finds
// contracts inside each rule's trigger window, and idempotently creates
// renewal proposals. Intended to be invoked repeatedly (e.g. once daily by
// an external scheduler) without building up duplicates: a contract is
// only acted on inside a one-day trigger window, and never when any
// proposal for it already exists.
func (e *Engine) Sweep(ctx context.Context, tenantID string) (SweepResult, error) {
	var res SweepResult

	rules, err := e.rules.ListActive(ctx, tenantID)
	if err != nil {
		return res, err
	}

	now := e.clock()
	for _, rule := range rules {
		if rule.Trigger != TriggerDaysBeforeExpiry {
			continue
		}

		// Look slightly past the trigger window; the per-contract window
		// check below is what actually gates creation.
		expiring, err := e.contracts.ExpiringWithin(ctx, tenantID, rule.TriggerDays+e.defaults.lookaheadDays())
		if err != nil {
			e.logger.ErrorContext(ctx, "sweep: expiring-contracts query failed",
				"tenant_id", tenantID, "rule_id", rule.ID, "error", err)
			e.metrics.add(ctx, e.metrics.sweepFailures, tenantID)
			continue
		}

		for _, c := range expiring {
			days, ok := c.DaysUntilExpiry(now)
			if !ok {
				continue
			}
			// One-day trigger window: act only when the contract is at
			// (or just inside) the rule's trigger distance, so repeated
			// sweep runs do not reprocess the same contract.
			if days < rule.TriggerDays-1 || days > rule.TriggerDays {
				continue
			}
			if !Eligible(c, rule) {
				continue
			}

			// Idempotency guard: skip contracts that already have any
			// proposal, in any status.
			exists, err := e.proposals.ExistsForContract(ctx, tenantID, c.ID)
			if err != nil {
				e.logger.ErrorContext(ctx, "sweep: proposal lookup failed",
					"tenant_id", tenantID, "rule_id", rule.ID, "contract_id", c.ID, "error", err)
				e.metrics.add(ctx, e.metrics.sweepFailures, tenantID)
				continue
			}
			if exists {
				continue
			}

			p, err := e.CreateProposal(ctx, tenantID, c.ID, systemActor, rule.ID)
			if err != nil {
				// Per-item failure policy: log with identifiers, keep
				// sweeping.
				e.logger.ErrorContext(ctx, "sweep: proposal creation failed",
					"tenant_id", tenantID, "rule_id", rule.ID, "contract_id", c.ID, "error", err)
				e.metrics.add(ctx, e.metrics.sweepFailures, tenantID)
				continue
			}

			res.Created++
			e.metrics.add(ctx, e.metrics.proposalsCreated, tenantID)
			if p.Status == ProposalAutoRenewed {
				res.Processed++
				e.metrics.add(ctx, e.metrics.autoRenewals, tenantID)
			}
			if rule.Notifications.Enabled {
				res.Notifications++
				e.metrics.add(ctx, e.metrics.notifications, tenantID)
			}
		}
	}

	return res, nil
}
