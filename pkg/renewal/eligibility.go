package renewal

import (
	"github.com/clauseworks/contractd/pkg/contract"
)

// Eligible reports whether a rule applies to a contract:
// the contract's type must be in the rule's type set, the contract value
// must sit within the rule's min/max bounds (skipped when the contract has
// no value), and the contract's client must not be excluded.
func Eligible(c *contract.Contract, r *Rule) bool {
	typeMatch := false
	for _, t := range r.ContractTypes {
		if t == c.Type {
			typeMatch = true
			break
		}
	}
	if !typeMatch {
		return false
	}

	if cond := r.Conditions; cond != nil {
		if c.Value != nil {
			if cond.MinContractValue != nil && c.Value.LessThan(*cond.MinContractValue) {
				return false
			}
			if cond.MaxContractValue != nil && c.Value.GreaterThan(*cond.MaxContractValue) {
				return false
			}
		}
		if client := c.ClientParty(); client != nil {
			for _, excluded := range cond.ExcludeClientIDs {
				if excluded == client.ID {
					return false
				}
			}
		}
	}

	return true
}
