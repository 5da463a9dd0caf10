package services

import (
	"context"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/pass-culture/finance_backend/internal/dto"
)

// FinanceEventReaderSvc defines read operations for finance events.
type FinanceEventReaderSvc interface {
	// GetEventByID retrieves a finance event.
	GetEventByID(ctx context.Context, financeEventID string) (*domain.FinanceEvent, error)

	// ListPendingEvents retrieves READY events stuck on a venue with no
	// pricing point configured. These are "still pending", not errors.
	ListPendingEvents(ctx context.Context) ([]domain.FinanceEvent, error)
}

// FinanceEventWriterSvc defines the tracker's write operations.
type FinanceEventWriterSvc interface {
	// RecordBookingEvent consumes one booking lifecycle tuple and advances
	// the finance event state machine accordingly.
	RecordBookingEvent(ctx context.Context, req dto.BookingEventRequest, userID string) (*domain.FinanceEvent, error)

	// RecordIncident creates a compensating finance event for a booking that
	// was wrongly priced; the original event and pricing are never mutated.
	RecordIncident(ctx context.Context, req dto.RecordIncidentRequest, userID string) (*domain.FinanceEvent, error)
}

// FinanceEventSvcFacade combines all finance event service interfaces.
type FinanceEventSvcFacade interface {
	FinanceEventReaderSvc
	FinanceEventWriterSvc
}
