package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InvoiceStatus: PENDING on creation, PAID once the bank transfer is
// confirmed by the accounting system. PAID is terminal and never reverts.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "PENDING"
	InvoicePaid    InvoiceStatus = "PAID"
)

// Invoice aggregates the cashflows of one reimbursement point for one batch
// into a document the offerer can retrieve through a durable token URL.
// Immutable once paid.
type Invoice struct {
	InvoiceID            string          `json:"invoiceID"` // Primary key (UUID)
	Reference            string          `json:"reference"` // Unique, e.g. F24000123
	ReimbursementPointID string          `json:"reimbursementPointID"`
	Amount               decimal.Decimal `json:"amount"` // Sum of the linked cashflows' nets
	AccessToken          string          `json:"-"`      // Opaque crypto-random token, unique
	Status               InvoiceStatus   `json:"status"`
	CashflowIDs          []string        `json:"cashflowIDs,omitempty"`
	AuditFields
}

// InvoiceReference formats the unique reference for the nth invoice of a
// two-digit year, e.g. InvoiceReference("F", 24, 123) == "F240000123".
func InvoiceReference(prefix string, year int, n int64) string {
	return fmt.Sprintf("%s%02d%07d", prefix, year%100, n)
}
