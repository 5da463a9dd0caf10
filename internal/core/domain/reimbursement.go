package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RuleSpecificity ranks how narrowly a reimbursement rule is scoped.
// A category-scoped custom rule beats an offerer-wide one, which beats the
// standard rate table. Two applicable rules at equal specificity are a data
// integrity violation and must fail loudly.
type RuleSpecificity int

const (
	SpecificityStandard RuleSpecificity = iota
	SpecificityOfferer
	SpecificityOffererCategory
)

// RuleKind tags the reimbursement rule variants.
type RuleKind string

const (
	RuleStandardRate     RuleKind = "STANDARD_RATE"
	RuleCustomAmount     RuleKind = "CUSTOM_AMOUNT"
	RuleCustomPercentage RuleKind = "CUSTOM_PERCENTAGE"
)

// Timespan is a half-open validity range [Start, End). A nil End means the
// rule is open-ended.
type Timespan struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the span.
func (ts Timespan) Contains(t time.Time) bool {
	if t.Before(ts.Start) {
		return false
	}
	return ts.End == nil || t.Before(*ts.End)
}

// Overlaps reports whether two spans share any instant.
func (ts Timespan) Overlaps(other Timespan) bool {
	if ts.End != nil && !other.Start.Before(*ts.End) {
		return false
	}
	if other.End != nil && !ts.Start.Before(*other.End) {
		return false
	}
	return true
}

// CustomReimbursementRule overrides the standard rate for one offerer,
// optionally narrowed to one offer category, during its timespan. Exactly one
// of Amount / Rate is set, matching the rule kind.
type CustomReimbursementRule struct {
	RuleID     string           `json:"ruleID"` // Primary key (UUID)
	Kind       RuleKind         `json:"kind"`   // CUSTOM_AMOUNT or CUSTOM_PERCENTAGE
	OffererID  string           `json:"offererID"`
	CategoryID *string          `json:"categoryID,omitempty"` // Nil means offerer-wide
	Amount     *decimal.Decimal `json:"amount,omitempty"`     // Flat reimbursed amount in euros
	Rate       *decimal.Decimal `json:"rate,omitempty"`       // Fraction in [0, 1]
	Timespan   Timespan         `json:"timespan"`
	AuditFields
}

// Specificity implements the ranking used by the resolver.
func (r CustomReimbursementRule) Specificity() RuleSpecificity {
	if r.CategoryID != nil && *r.CategoryID != "" {
		return SpecificityOffererCategory
	}
	return SpecificityOfferer
}

// AppliesTo reports whether the rule covers the given booking coordinates.
func (r CustomReimbursementRule) AppliesTo(offererID, categoryID string, bookingDate time.Time) bool {
	if r.OffererID != offererID {
		return false
	}
	if r.CategoryID != nil && *r.CategoryID != "" && *r.CategoryID != categoryID {
		return false
	}
	return r.Timespan.Contains(bookingDate)
}

// ReimbursedAmount computes what the rule reimburses for a booking price.
func (r CustomReimbursementRule) ReimbursedAmount(price decimal.Decimal) decimal.Decimal {
	if r.Kind == RuleCustomAmount && r.Amount != nil {
		return *r.Amount
	}
	if r.Rate != nil {
		return price.Mul(*r.Rate).Round(2)
	}
	return decimal.Zero
}

// StandardRateStep is one step of the degressive standard rate: bookings are
// reimbursed at Rate while the pricing point's cumulative yearly revenue
// stays below UpTo. A nil UpTo marks the last, unbounded step.
type StandardRateStep struct {
	UpTo *decimal.Decimal `json:"upTo,omitempty"` // Cumulative yearly revenue threshold in euros
	Rate decimal.Decimal  `json:"rate"`           // Fraction in [0, 1]
}

// StandardRateTable is the default reimbursement schedule applied when no
// custom rule matches. Steps are ordered by ascending threshold.
type StandardRateTable struct {
	Steps []StandardRateStep `json:"steps"`
}

// DefaultStandardRateTable returns the degressive schedule: 100% up to
// 20 000 EUR of cumulative yearly revenue, 95% to 40 000, 92% to 150 000,
// 90% above.
func DefaultStandardRateTable() StandardRateTable {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	t20k, t40k, t150k := d("20000"), d("40000"), d("150000")
	return StandardRateTable{Steps: []StandardRateStep{
		{UpTo: &t20k, Rate: d("1")},
		{UpTo: &t40k, Rate: d("0.95")},
		{UpTo: &t150k, Rate: d("0.92")},
		{UpTo: nil, Rate: d("0.90")},
	}}
}

// ParseStandardRateTable builds a rate table from its compact text form:
// comma-separated "threshold:rate" steps with ascending thresholds, the last
// step omitting its threshold to mark the unbounded tail, e.g.
// "20000:1,40000:0.95,150000:0.92,:0.90".
func ParseStandardRateTable(s string) (StandardRateTable, error) {
	var table StandardRateTable
	parts := strings.Split(s, ",")
	for i, part := range parts {
		threshold, rateStr, found := strings.Cut(strings.TrimSpace(part), ":")
		if !found {
			return StandardRateTable{}, fmt.Errorf("rate table step %q: want threshold:rate", part)
		}
		rate, err := decimal.NewFromString(rateStr)
		if err != nil {
			return StandardRateTable{}, fmt.Errorf("rate table step %q: %w", part, err)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return StandardRateTable{}, fmt.Errorf("rate table step %q: rate must be in [0, 1]", part)
		}
		step := StandardRateStep{Rate: rate}
		if threshold != "" {
			upTo, err := decimal.NewFromString(threshold)
			if err != nil {
				return StandardRateTable{}, fmt.Errorf("rate table step %q: %w", part, err)
			}
			if i > 0 && table.Steps[i-1].UpTo != nil && !table.Steps[i-1].UpTo.LessThan(upTo) {
				return StandardRateTable{}, fmt.Errorf("rate table step %q: thresholds must be ascending", part)
			}
			step.UpTo = &upTo
		} else if i != len(parts)-1 {
			return StandardRateTable{}, fmt.Errorf("rate table step %q: only the last step may omit its threshold", part)
		}
		table.Steps = append(table.Steps, step)
	}
	if table.Steps[len(table.Steps)-1].UpTo != nil {
		return StandardRateTable{}, errors.New("rate table must end with an unbounded step")
	}
	return table, nil
}

// RateFor returns the applicable rate given the pricing point's cumulative
// yearly revenue before this booking.
func (t StandardRateTable) RateFor(cumulativeRevenue decimal.Decimal) decimal.Decimal {
	for _, step := range t.Steps {
		if step.UpTo == nil || cumulativeRevenue.LessThan(*step.UpTo) {
			return step.Rate
		}
	}
	// Empty table means full reimbursement; only reachable with a broken config.
	return decimal.NewFromInt(1)
}

// ReimbursedAmount applies the step rate to a booking price.
func (t StandardRateTable) ReimbursedAmount(price, cumulativeRevenue decimal.Decimal) decimal.Decimal {
	return price.Mul(t.RateFor(cumulativeRevenue)).Round(2)
}

// RuleReference identifies which rule produced a pricing, for audit.
type RuleReference struct {
	Kind   RuleKind `json:"kind"`
	RuleID string   `json:"ruleID,omitempty"` // Empty for the standard table
}
