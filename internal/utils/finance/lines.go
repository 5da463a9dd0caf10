package finance

import (
	"fmt"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// BuildLines decomposes a priced booking into its ordered line items:
// OFFERER_REVENUE (the reimbursed amount), OFFERER_CONTRIBUTION (zero or
// negative, when the offerer opted into a lower cap) and
// PASS_CULTURE_COMMISSION (the balancing remainder). The lines always sum
// exactly to the booking price; this is checked before returning and a
// mismatch is a fatal caller bug, never silently rounded away.
func BuildLines(price, reimbursed, contribution decimal.Decimal) ([]domain.PricingLine, error) {
	if reimbursed.GreaterThan(price) {
		return nil, fmt.Errorf("reimbursed amount %s exceeds booking price %s", reimbursed.String(), price.String())
	}
	if contribution.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("offerer contribution must not be positive, got %s", contribution.String())
	}

	commission := price.Sub(reimbursed).Sub(contribution)

	lines := []domain.PricingLine{
		{Kind: domain.LineOffererRevenue, Amount: reimbursed},
	}
	if !contribution.IsZero() {
		lines = append(lines, domain.PricingLine{Kind: domain.LineOffererContribution, Amount: contribution})
	}
	lines = append(lines, domain.PricingLine{Kind: domain.LinePassCultureCommission, Amount: commission})

	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Amount)
	}
	if !sum.Equal(price) {
		return nil, fmt.Errorf("%w: lines sum to %s, booking price is %s",
			domain.ErrLineSumMismatch, sum.String(), price.String())
	}
	return lines, nil
}

// BuildCompensationLines produces the line items of an incident compensation
// pricing: the revenue is negated so that aggregating it claws the money
// back. The booking price of a compensation pricing is zero (no new sale),
// so revenue and commission mirror each other.
func BuildCompensationLines(reimbursed decimal.Decimal) []domain.PricingLine {
	return []domain.PricingLine{
		{Kind: domain.LineOffererRevenue, Amount: reimbursed.Neg()},
		{Kind: domain.LinePassCultureCommission, Amount: reimbursed},
	}
}

// NetAmount sums the revenue and contribution lines: the cash the pricing
// moves into its cashflow.
func NetAmount(lines []domain.PricingLine) decimal.Decimal {
	net := decimal.Zero
	for _, line := range lines {
		if line.Kind == domain.LineOffererRevenue || line.Kind == domain.LineOffererContribution {
			net = net.Add(line.Amount)
		}
	}
	return net
}
