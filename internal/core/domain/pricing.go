package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PricingStatus lifecycle: VALIDATED on creation (a pricing is only persisted
// once its lines pass the sum invariant), PROCESSED once included in a
// cashflow, INVOICED once that cashflow is invoiced. REJECTED flags a pricing
// whose stored lines no longer satisfy the invariant; it is excluded from
// aggregation until manually corrected. CANCELLED is reserved for incident
// compensation flows; history is never mutated otherwise.
type PricingStatus string

const (
	PricingValidated PricingStatus = "VALIDATED"
	PricingRejected  PricingStatus = "REJECTED"
	PricingProcessed PricingStatus = "PROCESSED"
	PricingInvoiced  PricingStatus = "INVOICED"
	PricingCancelled PricingStatus = "CANCELLED"
)

// PricingLineKind tags one signed component of a pricing.
//
// Sign convention (all lines sum exactly to the booking price):
//   - OFFERER_REVENUE carries the gross amount the rule reimburses. Positive
//     for normal pricings, negative for incident compensations.
//   - OFFERER_CONTRIBUTION is zero or negative: an offerer that opted into a
//     lower reimbursement cap gives part of the revenue back.
//   - PASS_CULTURE_COMMISSION is the balancing remainder
//     (price - revenue - contribution), non-negative for normal pricings.
//
// The cash a pricing moves into its cashflow is revenue + contribution.
type PricingLineKind string

const (
	LineOffererRevenue        PricingLineKind = "OFFERER_REVENUE"
	LineOffererContribution   PricingLineKind = "OFFERER_CONTRIBUTION"
	LinePassCultureCommission PricingLineKind = "PASS_CULTURE_COMMISSION"
)

var (
	ErrLineSumMismatch = errors.New("pricing lines do not sum to the booking price")
	ErrNoLines         = errors.New("pricing must have at least one line")
)

// PricingLine is one signed component of a pricing. It never exists outside
// its owning pricing (cascade-deleted with it).
type PricingLine struct {
	PricingLineID string          `json:"pricingLineID"` // Primary key (UUID)
	PricingID     string          `json:"pricingID"`     // FK -> Pricing (Not Null)
	Kind          PricingLineKind `json:"kind"`
	Amount        decimal.Decimal `json:"amount"` // Signed, euros
}

// Pricing is the computed result for one finance event. It is built complete,
// lines included, before any persistence call and never mutated afterwards;
// only its status advances.
type Pricing struct {
	PricingID      string          `json:"pricingID"`      // Primary key (UUID)
	FinanceEventID string          `json:"financeEventID"` // FK -> FinanceEvent; at most one non-cancelled pricing per event
	PricingPointID string          `json:"pricingPointID"`
	BookingPrice   decimal.Decimal `json:"bookingPrice"` // Total booking price the lines must sum to
	Amount         decimal.Decimal `json:"amount"`       // Cash to move: revenue + contribution lines
	Status         PricingStatus   `json:"status"`
	Rule           RuleReference   `json:"rule"`
	ValueDate      time.Time       `json:"valueDate"`
	Lines          []PricingLine   `json:"lines"`
	AuditFields
}

// NetAmount sums the revenue and contribution lines, i.e. the cash this
// pricing contributes to a cashflow.
func (p *Pricing) NetAmount() decimal.Decimal {
	net := decimal.Zero
	for _, line := range p.Lines {
		if line.Kind == LineOffererRevenue || line.Kind == LineOffererContribution {
			net = net.Add(line.Amount)
		}
	}
	return net
}

// ValidateLines enforces the core invariant: the lines sum exactly to the
// booking price. A violation means rate resolution is broken and must never
// be silently corrected.
func (p *Pricing) ValidateLines() error {
	if len(p.Lines) == 0 {
		return ErrNoLines
	}
	sum := decimal.Zero
	for _, line := range p.Lines {
		sum = sum.Add(line.Amount)
	}
	if !sum.Equal(p.BookingPrice) {
		return fmt.Errorf("%w: pricing %s lines sum to %s, booking price is %s",
			ErrLineSumMismatch, p.PricingID, sum.String(), p.BookingPrice.String())
	}
	return nil
}
