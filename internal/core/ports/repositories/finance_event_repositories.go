package repositories

import (
	"context"
	"time"

	"github.com/pass-culture/finance_backend/internal/core/domain"
)

// FinanceEventReader defines read operations for finance events.
type FinanceEventReader interface {
	// FindEventByID retrieves a finance event by its identifier.
	FindEventByID(ctx context.Context, financeEventID string) (*domain.FinanceEvent, error)

	// FindEventByBookingID retrieves the original (non-incident) event for a booking, if any.
	FindEventByBookingID(ctx context.Context, bookingID string) (*domain.FinanceEvent, error)

	// ListReadyEvents retrieves READY events in ascending sequence order.
	// Events without a pricing point are included; the pricing job decides
	// whether it can price them.
	ListReadyEvents(ctx context.Context, limit int) ([]domain.FinanceEvent, error)

	// ListPendingPricingPoint retrieves READY events whose venue has no
	// pricing point configured, for observability.
	ListPendingPricingPoint(ctx context.Context) ([]domain.FinanceEvent, error)
}

// FinanceEventWriter defines write operations for finance events.
type FinanceEventWriter interface {
	// SaveEvent persists a new finance event.
	SaveEvent(ctx context.Context, event domain.FinanceEvent) error

	// MarkEventReady promotes a PENDING event to READY, stamping the value
	// date and filling the pricing point when one is provided. Also backfills
	// a READY event whose pricing point arrived late. A nil pricingPointID
	// leaves the stored one untouched. PRICED events are never updated;
	// returns apperrors.ErrNotFound when no row was in an updatable state.
	MarkEventReady(ctx context.Context, financeEventID string, pricingPointID *string, valueDate time.Time, updatedBy string, updatedAt time.Time) error
}

// FinanceEventRepositoryFacade combines all finance event repository interfaces.
type FinanceEventRepositoryFacade interface {
	FinanceEventReader
	FinanceEventWriter
}
