package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingLineResponse is one signed component of a pricing.
type PricingLineResponse struct {
	Kind   string          `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

// PricingResponse is the API representation of a pricing.
type PricingResponse struct {
	PricingID      string                `json:"pricingID"`
	FinanceEventID string                `json:"financeEventID"`
	PricingPointID string                `json:"pricingPointID"`
	BookingPrice   decimal.Decimal       `json:"bookingPrice"`
	Amount         decimal.Decimal       `json:"amount"`
	Status         string                `json:"status"`
	RuleKind       string                `json:"ruleKind"`
	RuleID         string                `json:"ruleID,omitempty"`
	ValueDate      time.Time             `json:"valueDate"`
	Lines          []PricingLineResponse `json:"lines"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// ListPricingsResponse is a paginated pricing listing.
type ListPricingsResponse struct {
	Pricings  []PricingResponse `json:"pricings"`
	NextToken *string           `json:"nextToken,omitempty"`
}

// EventFailure reports one finance event the pricing job could not price.
type EventFailure struct {
	FinanceEventID string `json:"financeEventID"`
	Reason         string `json:"reason"`
}

// PriceEventsSummary is the pricing job report: how many events were priced,
// how many still wait on pricing-point configuration, and which ones failed.
type PriceEventsSummary struct {
	PricedCount       int            `json:"pricedCount"`
	StillPendingCount int            `json:"stillPendingCount"`
	Failures          []EventFailure `json:"failures,omitempty"`
}
