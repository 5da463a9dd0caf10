package repositories

import (
	"context"
	"time"

	"github.com/pass-culture/finance_backend/internal/core/domain"
)

// InvoiceReader defines read operations for invoices.
type InvoiceReader interface {
	// FindInvoiceByID retrieves an invoice with its cashflow ids.
	FindInvoiceByID(ctx context.Context, invoiceID string) (*domain.Invoice, error)

	// FindInvoiceByToken retrieves an invoice through its durable access token.
	FindInvoiceByToken(ctx context.Context, token string) (*domain.Invoice, error)

	// ListInvoicesByReimbursementPoint retrieves a paginated list of invoices
	// using token-based pagination, newest first.
	ListInvoicesByReimbursementPoint(ctx context.Context, reimbursementPointID string, limit int, nextToken *string) ([]domain.Invoice, *string, error)

	// NextReferenceSequence reserves and returns the next invoice sequence
	// number for the given year.
	NextReferenceSequence(ctx context.Context, year int) (int64, error)
}

// InvoiceWriter defines write operations for invoices.
type InvoiceWriter interface {
	// SaveInvoice inserts an invoice, links its cashflows, stamps their
	// invoice_id, and flips the cashflows' pricings PROCESSED -> INVOICED
	// inside a single database transaction.
	SaveInvoice(ctx context.Context, invoice domain.Invoice) error

	// MarkInvoicePaid transitions an invoice PENDING -> PAID. Returns
	// apperrors.ErrNotFound when the invoice was not PENDING.
	MarkInvoicePaid(ctx context.Context, invoiceID string, updatedBy string, updatedAt time.Time) error
}

// InvoiceRepositoryFacade combines all invoice repository interfaces.
type InvoiceRepositoryFacade interface {
	InvoiceReader
	InvoiceWriter
}
