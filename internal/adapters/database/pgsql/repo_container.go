package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"

	portsrepo "github.com/pass-culture/finance_backend/internal/core/ports/repositories"
)

// NewRepositoryProvider creates the pgsql-backed repository set sharing one
// connection pool.
func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		BookingRepo:      newPgxBookingRepository(dbPool),
		FinanceEventRepo: newPgxFinanceEventRepository(dbPool),
		RuleRepo:         newPgxReimbursementRuleRepository(dbPool),
		PricingRepo:      newPgxPricingRepository(dbPool),
		CashflowRepo:     newPgxCashflowRepository(dbPool),
		InvoiceRepo:      newPgxInvoiceRepository(dbPool),
	}
}
