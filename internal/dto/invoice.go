package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// GenerateInvoicesRequest triggers invoice generation for a closed batch.
type GenerateInvoicesRequest struct {
	BatchID string `json:"batchID" binding:"required"`
}

// InvoiceResponse is the API representation of an invoice. The access token
// is only exposed through the URL field at creation time.
type InvoiceResponse struct {
	InvoiceID            string          `json:"invoiceID"`
	Reference            string          `json:"reference"`
	ReimbursementPointID string          `json:"reimbursementPointID"`
	Amount               decimal.Decimal `json:"amount"`
	Status               string          `json:"status"`
	URL                  string          `json:"url,omitempty"`
	CashflowIDs          []string        `json:"cashflowIDs,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
}

// ListInvoicesResponse is a paginated invoice listing.
type ListInvoicesResponse struct {
	Invoices  []InvoiceResponse `json:"invoices"`
	NextToken *string           `json:"nextToken,omitempty"`
}

// SkippedCashflow reports one cashflow invoice generation could not cover;
// it stays eligible for the next run.
type SkippedCashflow struct {
	CashflowID string `json:"cashflowID"`
	Reason     string `json:"reason"`
}

// InvoiceGenerationSummary is the invoice job report.
type InvoiceGenerationSummary struct {
	CreatedCount     int               `json:"createdCount"`
	AlreadyInvoiced  int               `json:"alreadyInvoiced"`
	SkippedCashflows []SkippedCashflow `json:"skippedCashflows,omitempty"`
	Invoices         []InvoiceResponse `json:"invoices,omitempty"`
}
