package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pass-culture/finance_backend/internal/apperrors"
	"github.com/pass-culture/finance_backend/internal/core/domain"
	portsrepo "github.com/pass-culture/finance_backend/internal/core/ports/repositories"
	portssvc "github.com/pass-culture/finance_backend/internal/core/ports/services"
	"github.com/pass-culture/finance_backend/internal/dto"
	"github.com/pass-culture/finance_backend/internal/middleware"
)

var (
	ErrBookingAlreadyPriced = errors.New("booking already has a priced finance event")
	ErrBookingNotTracked    = errors.New("booking has no finance event to compensate")
	ErrEventNotCompensable  = errors.New("only priced finance events can be compensated")
)

// financeEventService is the tracker: it consumes booking lifecycle tuples
// and drives the PENDING -> READY -> PRICED state machine.
type financeEventService struct {
	bookingRepo portsrepo.BookingRepositoryFacade
	eventRepo   portsrepo.FinanceEventRepositoryFacade
}

// NewFinanceEventService creates a new FinanceEventService.
func NewFinanceEventService(bookingRepo portsrepo.BookingRepositoryFacade, eventRepo portsrepo.FinanceEventRepositoryFacade) portssvc.FinanceEventSvcFacade {
	return &financeEventService{
		bookingRepo: bookingRepo,
		eventRepo:   eventRepo,
	}
}

var _ portssvc.FinanceEventSvcFacade = (*financeEventService)(nil)

// RecordBookingEvent consumes one (booking, kind, status, date) tuple from
// the bookings module. BOOKED creates a PENDING event; USED (and incident
// cancellations) promote to READY; duplicates against an already PRICED
// event are rejected as a caller-side sequencing bug.
func (s *financeEventService) RecordBookingEvent(ctx context.Context, req dto.BookingEventRequest, userID string) (*domain.FinanceEvent, error) {
	logger := middleware.GetLoggerFromCtx(ctx)
	now := time.Now().UTC()

	booking := domain.Booking{
		BookingID:   req.BookingID,
		Kind:        domain.BookingKind(req.Kind),
		Status:      domain.BookingStatus(req.Status),
		Price:       req.Price,
		BookingDate: req.BookingDate,
		UsedAt:      req.UsedAt,
		VenueID:     req.VenueID,
		OffererID:   req.OffererID,
		CategoryID:  req.CategoryID,
	}
	if booking.Price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: booking price must be positive", apperrors.ErrValidation)
	}
	booking.CreatedAt = now
	booking.CreatedBy = userID
	booking.LastUpdatedAt = now
	booking.LastUpdatedBy = userID

	stored, err := s.bookingRepo.FindBookingByID(ctx, booking.BookingID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up booking %s: %w", booking.BookingID, err)
	}

	// A reimbursed booking is immutable; a late replay must not regress it.
	// The upsert carries the same guard at the SQL level.
	if stored == nil || stored.Status != domain.BookingReimbursed {
		if err := s.bookingRepo.UpsertBooking(ctx, booking); err != nil {
			return nil, fmt.Errorf("failed to upsert booking %s: %w", booking.BookingID, err)
		}
	}

	existing, err := s.eventRepo.FindEventByBookingID(ctx, booking.BookingID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up finance event for booking %s: %w", booking.BookingID, err)
	}

	switch booking.Status {
	case domain.BookingBooked:
		if existing != nil {
			return existing, nil
		}
		event, err := s.createEvent(ctx, booking, domain.EventPending, domain.MotiveBookingUsed, req.PricingPointID, nil, userID, now)
		if err != nil {
			return nil, err
		}
		return event, nil

	case domain.BookingUsed:
		if existing != nil {
			switch existing.Status {
			case domain.EventPriced:
				return nil, fmt.Errorf("booking %s: %w", booking.BookingID, ErrBookingAlreadyPriced)
			case domain.EventReady:
				// Replayed USED notification. It may carry the pricing point
				// the venue lacked when the event first became READY; without
				// the backfill the event would wait on configuration forever.
				if req.PricingPointID == nil || existing.PricingPointID != nil {
					return existing, nil
				}
				if err := s.eventRepo.MarkEventReady(ctx, existing.FinanceEventID, req.PricingPointID, existing.ValueDate, userID, now); err != nil {
					return nil, fmt.Errorf("failed to backfill pricing point on finance event %s: %w", existing.FinanceEventID, err)
				}
				existing.PricingPointID = req.PricingPointID
				logger.Info("Finance event pricing point backfilled", slog.String("finance_event_id", existing.FinanceEventID))
				return existing, nil
			default:
				// Promotion stamps the use date as value date and picks up the
				// pricing point from the tuple; the BOOKED-time event may
				// predate both.
				valueDate := booking.UsedDate()
				if err := s.eventRepo.MarkEventReady(ctx, existing.FinanceEventID, req.PricingPointID, valueDate, userID, now); err != nil {
					return nil, fmt.Errorf("failed to promote finance event %s: %w", existing.FinanceEventID, err)
				}
				existing.Status = domain.EventReady
				existing.ValueDate = valueDate
				if req.PricingPointID != nil {
					existing.PricingPointID = req.PricingPointID
				}
				logger.Info("Finance event ready", slog.String("finance_event_id", existing.FinanceEventID))
				return existing, nil
			}
		}
		event, err := s.createEvent(ctx, booking, domain.EventReady, domain.MotiveBookingUsed, req.PricingPointID, nil, userID, now)
		if err != nil {
			return nil, err
		}
		logger.Info("Finance event ready", slog.String("finance_event_id", event.FinanceEventID))
		return event, nil

	case domain.BookingCancelled, domain.BookingReimbursed:
		// Plain cancellations and reimbursement confirmations carry no
		// pricing work; incidents go through RecordIncident.
		if existing == nil {
			return nil, fmt.Errorf("booking %s: %w", booking.BookingID, apperrors.ErrNotFound)
		}
		return existing, nil

	default:
		return nil, fmt.Errorf("%w: unknown booking status %s", apperrors.ErrValidation, booking.Status)
	}
}

func (s *financeEventService) createEvent(ctx context.Context, booking domain.Booking, status domain.FinanceEventStatus, motive domain.FinanceEventMotive, pricingPointID *string, originEventID *string, userID string, now time.Time) (*domain.FinanceEvent, error) {
	event := domain.FinanceEvent{
		FinanceEventID: uuid.NewString(),
		Status:         status,
		Motive:         motive,
		VenueID:        booking.VenueID,
		PricingPointID: pricingPointID,
		ValueDate:      booking.UsedDate(),
		OriginEventID:  originEventID,
	}
	bookingID := booking.BookingID
	if booking.Kind == domain.CollectiveBooking {
		event.CollectiveBookingID = &bookingID
	} else {
		event.IndividualBookingID = &bookingID
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	event.CreatedAt = now
	event.CreatedBy = userID
	event.LastUpdatedAt = now
	event.LastUpdatedBy = userID

	if err := s.eventRepo.SaveEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to save finance event for booking %s: %w", booking.BookingID, err)
	}
	return &event, nil
}

// RecordIncident creates a compensating READY event for a booking whose
// original event was already priced. The original pricing is never mutated;
// the compensation pricing will claw the money back with negative lines.
func (s *financeEventService) RecordIncident(ctx context.Context, req dto.RecordIncidentRequest, userID string) (*domain.FinanceEvent, error) {
	logger := middleware.GetLoggerFromCtx(ctx)
	now := time.Now().UTC()

	booking, err := s.bookingRepo.FindBookingByID(ctx, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to find booking %s: %w", req.BookingID, err)
	}

	original, err := s.eventRepo.FindEventByBookingID(ctx, req.BookingID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("booking %s: %w", req.BookingID, ErrBookingNotTracked)
		}
		return nil, fmt.Errorf("failed to look up finance event for booking %s: %w", req.BookingID, err)
	}
	if original.Status != domain.EventPriced {
		return nil, fmt.Errorf("finance event %s is %s: %w", original.FinanceEventID, original.Status, ErrEventNotCompensable)
	}

	event, err := s.createEvent(ctx, *booking, domain.EventReady, domain.MotiveBookingCancelledIncident, original.PricingPointID, &original.FinanceEventID, userID, now)
	if err != nil {
		return nil, err
	}
	logger.Info("Incident recorded",
		slog.String("booking_id", req.BookingID),
		slog.String("origin_event_id", original.FinanceEventID),
		slog.String("finance_event_id", event.FinanceEventID),
	)
	return event, nil
}

// GetEventByID retrieves a finance event.
func (s *financeEventService) GetEventByID(ctx context.Context, financeEventID string) (*domain.FinanceEvent, error) {
	event, err := s.eventRepo.FindEventByID(ctx, financeEventID)
	if err != nil {
		return nil, fmt.Errorf("failed to find finance event %s: %w", financeEventID, err)
	}
	return event, nil
}

// ListPendingEvents retrieves READY events stuck on a venue without a
// pricing point. They are surfaced as "still pending", never as errors.
func (s *financeEventService) ListPendingEvents(ctx context.Context) ([]domain.FinanceEvent, error) {
	events, err := s.eventRepo.ListPendingPricingPoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending finance events: %w", err)
	}
	return events, nil
}
