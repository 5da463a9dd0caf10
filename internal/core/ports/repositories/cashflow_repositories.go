package repositories

import (
	"context"

	"github.com/pass-culture/finance_backend/internal/core/domain"
)

// CashflowReader defines read operations for cashflow batches and cashflows.
type CashflowReader interface {
	// FindBatchByID retrieves a batch by its identifier.
	FindBatchByID(ctx context.Context, batchID string) (*domain.CashflowBatch, error)

	// ListBatches retrieves batches ordered by descending label number.
	ListBatches(ctx context.Context, limit int) ([]domain.CashflowBatch, error)

	// ListCashflowsByBatch retrieves the cashflows of a batch with their
	// linked pricing ids, ordered by reimbursement point.
	ListCashflowsByBatch(ctx context.Context, batchID string) ([]domain.Cashflow, error)

	// FindCashflowByID retrieves a cashflow with its linked pricing ids.
	FindCashflowByID(ctx context.Context, cashflowID string) (*domain.Cashflow, error)
}

// CashflowWriter defines write operations for cashflow batches and cashflows.
type CashflowWriter interface {
	// CreateBatch inserts a new batch with the next monotonic label, relying
	// on the unique label constraint to serialize concurrent runs.
	CreateBatch(ctx context.Context, batch domain.CashflowBatch) (*domain.CashflowBatch, error)

	// SaveCashflow inserts a cashflow, its pricing links, and flips the
	// linked pricings VALIDATED -> PROCESSED inside a single database
	// transaction. The whole insert fails if any pricing was not VALIDATED.
	SaveCashflow(ctx context.Context, cashflow domain.Cashflow) error

	// MarkCashflowsSent transitions cashflows PENDING -> SENT.
	MarkCashflowsSent(ctx context.Context, cashflowIDs []string, updatedBy string) error
}

// CashflowRepositoryFacade combines all cashflow repository interfaces.
type CashflowRepositoryFacade interface {
	CashflowReader
	CashflowWriter
}
