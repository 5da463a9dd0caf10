package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CashflowBatchLabelPrefix prefixes the monotonic batch labels (VIR1, VIR2...).
const CashflowBatchLabelPrefix = "VIR"

// CashflowBatch is a named, dated grouping of cashflows. Its label is unique
// and monotonically assigned, which also guards against the aggregation job
// running twice for the same period.
type CashflowBatch struct {
	BatchID    string    `json:"batchID"` // Primary key (UUID)
	Label      string    `json:"label"`   // Unique, e.g. VIR42
	CutoffDate time.Time `json:"cutoffDate"`
	AuditFields
}

// BatchLabel formats the label for the nth batch.
func BatchLabel(n int64) string {
	return fmt.Sprintf("%s%d", CashflowBatchLabelPrefix, n)
}

// CashflowStatus: PENDING until the bank file is produced, SENT afterwards.
type CashflowStatus string

const (
	CashflowPending CashflowStatus = "PENDING"
	CashflowSent    CashflowStatus = "SENT"
)

// Cashflow aggregates the pricings of one reimbursement point within one
// batch into a single bank-transfer-ready amount. The amount is signed: a
// negative cashflow means money owed back after an incident. A pricing
// belongs to at most one cashflow (unique constraint on the join table plus
// the VALIDATED -> PROCESSED status gate).
type Cashflow struct {
	CashflowID           string          `json:"cashflowID"` // Primary key (UUID)
	BatchID              string          `json:"batchID"`    // FK -> CashflowBatch
	ReimbursementPointID string          `json:"reimbursementPointID"`
	Amount               decimal.Decimal `json:"amount"` // Signed net, euros
	Status               CashflowStatus  `json:"status"`
	InvoiceID            *string         `json:"invoiceID,omitempty"` // Set once invoiced
	PricingIDs           []string        `json:"pricingIDs,omitempty"`
	AuditFields
}
