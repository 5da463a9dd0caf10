package services

import (
	"fmt"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	portsrepo "github.com/pass-culture/finance_backend/internal/core/ports/repositories"
	portssvc "github.com/pass-culture/finance_backend/internal/core/ports/services"
	"github.com/pass-culture/finance_backend/internal/platform/config"
)

// NewServiceContainer creates a new service container with properly initialized dependencies
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider) (*portssvc.ServiceContainer, error) {
	rateTable := domain.DefaultStandardRateTable()
	if cfg.StandardRateTable != "" {
		parsed, err := domain.ParseStandardRateTable(cfg.StandardRateTable)
		if err != nil {
			return nil, fmt.Errorf("invalid STANDARD_RATE_TABLE: %w", err)
		}
		rateTable = parsed
	}

	container := &portssvc.ServiceContainer{}

	// Reimbursement first since pricing depends on its resolver.
	container.Reimbursement = NewReimbursementService(repos.RuleRepo, rateTable)

	container.FinanceEvent = NewFinanceEventService(repos.BookingRepo, repos.FinanceEventRepo)
	container.Pricing = NewPricingService(repos.BookingRepo, repos.FinanceEventRepo, repos.PricingRepo, container.Reimbursement, cfg.PricingBatchSize)
	container.Cashflow = NewCashflowService(repos.PricingRepo, repos.CashflowRepo, cfg.CashflowCutoffPeriod)
	container.Invoice = NewInvoiceService(repos.CashflowRepo, repos.InvoiceRepo, cfg.InvoiceRefPrefix)

	return container, nil
}
