package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// GenerateCashflowsRequest triggers one aggregation run. A zero cutoff date
// falls back to the configured lookback period.
type GenerateCashflowsRequest struct {
	CutoffDate time.Time `json:"cutoffDate"`
}

// CashflowResponse is the API representation of a cashflow.
type CashflowResponse struct {
	CashflowID           string          `json:"cashflowID"`
	BatchID              string          `json:"batchID"`
	ReimbursementPointID string          `json:"reimbursementPointID"`
	Amount               decimal.Decimal `json:"amount"`
	Status               string          `json:"status"`
	InvoiceID            *string         `json:"invoiceID,omitempty"`
	PricingIDs           []string        `json:"pricingIDs,omitempty"`
}

// CashflowBatchResponse is the API representation of a batch.
type CashflowBatchResponse struct {
	BatchID    string             `json:"batchID"`
	Label      string             `json:"label"`
	CutoffDate time.Time          `json:"cutoffDate"`
	CreatedAt  time.Time          `json:"createdAt"`
	Cashflows  []CashflowResponse `json:"cashflows,omitempty"`
}

// ListBatchesResponse wraps a list of batches.
type ListBatchesResponse struct {
	Batches []CashflowBatchResponse `json:"batches"`
}

// PointFailure reports one reimbursement point whose cashflow creation was
// aborted. Other points in the same run proceed independently.
type PointFailure struct {
	ReimbursementPointID string `json:"reimbursementPointID"`
	Reason               string `json:"reason"`
}

// CashflowGenerationSummary is the aggregation job report.
type CashflowGenerationSummary struct {
	BatchID       string          `json:"batchID"`
	Label         string          `json:"label"`
	CashflowCount int             `json:"cashflowCount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	FailedPoints  []PointFailure  `json:"failedPoints,omitempty"`
}
