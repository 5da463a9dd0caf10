package services

import (
	"context"
	"time"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/pass-culture/finance_backend/internal/dto"
)

// CashflowReaderSvc defines read operations for batches and cashflows.
type CashflowReaderSvc interface {
	// GetBatchByID retrieves a batch with its cashflows.
	GetBatchByID(ctx context.Context, batchID string) (*domain.CashflowBatch, []domain.Cashflow, error)

	// ListBatches retrieves recent batches, newest first.
	ListBatches(ctx context.Context, limit int) ([]domain.CashflowBatch, error)
}

// CashflowJobSvc runs the periodic aggregation job.
type CashflowJobSvc interface {
	// GenerateCashflows creates a new batch and one cashflow per
	// reimbursement point from the VALIDATED pricings up to the cutoff.
	// A failing reimbursement point is reported and skipped; the others
	// proceed independently.
	GenerateCashflows(ctx context.Context, cutoff time.Time, userID string) (*dto.CashflowGenerationSummary, error)

	// MarkBatchSent transitions every PENDING cashflow of a batch to SENT
	// once the bank transfer file has been handed over.
	MarkBatchSent(ctx context.Context, batchID string, userID string) error
}

// CashflowSvcFacade combines all cashflow service interfaces.
type CashflowSvcFacade interface {
	CashflowReaderSvc
	CashflowJobSvc
}
