package services

import (
	"context"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/pass-culture/finance_backend/internal/dto"
)

// InvoiceReaderSvc defines read operations for invoices.
type InvoiceReaderSvc interface {
	// GetInvoiceByID retrieves an invoice.
	GetInvoiceByID(ctx context.Context, invoiceID string) (*domain.Invoice, error)

	// GetInvoiceByToken retrieves an invoice through its durable access token.
	GetInvoiceByToken(ctx context.Context, token string) (*domain.Invoice, error)

	// ListInvoicesByReimbursementPoint retrieves a paginated invoice listing,
	// newest first.
	ListInvoicesByReimbursementPoint(ctx context.Context, reimbursementPointID string, limit int, nextToken *string) ([]domain.Invoice, *string, error)
}

// InvoiceJobSvc runs invoice generation and payment confirmation.
type InvoiceJobSvc interface {
	// GenerateInvoices creates one PENDING invoice per reimbursement point
	// holding un-invoiced cashflows in the batch. Re-running on an invoiced
	// batch creates nothing new.
	GenerateInvoices(ctx context.Context, batchID string, userID string) (*dto.InvoiceGenerationSummary, error)

	// MarkInvoicePaid transitions an invoice PENDING -> PAID; PAID is terminal.
	MarkInvoicePaid(ctx context.Context, invoiceID string, userID string) error
}

// InvoiceSvcFacade combines all invoice service interfaces.
type InvoiceSvcFacade interface {
	InvoiceReaderSvc
	InvoiceJobSvc
}
