package renewal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ApplyAdjustment computes the proposed value from a base value and an
// adjustment spec, plus a human-readable explanation.
//
// With no adjustment, or a nil base value, the base passes through
// unchanged with no explanation. Range validation happens at rule-creation
// time; the calculation itself never clamps, so a pathological
// configuration may drive the proposed value to zero or below.
func ApplyAdjustment(base *decimal.Decimal, adj *PriceAdjustment) (*decimal.Decimal, string) {
	if base == nil || adj == nil {
		return base, ""
	}

	switch adj.Kind {
	case AdjustPercentage:
		factor := decimal.NewFromInt(1).Add(adj.Value.Div(hundred))
		proposed := base.Mul(factor)
		return &proposed, fmt.Sprintf("%s%% adjustment applied", adj.Value)
	case AdjustFixedAmount:
		proposed := base.Add(adj.Value)
		return &proposed, fmt.Sprintf("fixed adjustment of %s applied", adj.Value)
	default:
		return base, ""
	}
}
