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
	"github.com/pass-culture/finance_backend/internal/utils/finance"
)

var (
	ErrEventNotReady          = errors.New("finance event is not ready for pricing")
	ErrEventAlreadyHasPricing = errors.New("finance event already has a non-cancelled pricing")
	ErrPricingNotCancellable  = errors.New("only unbatched pricings can be cancelled")
)

// defaultReadyEventsPageSize caps how many events one job run loads when no
// batch size is configured.
const defaultReadyEventsPageSize = 1000

// pricingService runs the nightly pricing job: it turns READY finance events
// into validated pricings with their line decomposition.
type pricingService struct {
	bookingRepo portsrepo.BookingRepositoryFacade
	eventRepo   portsrepo.FinanceEventRepositoryFacade
	pricingRepo portsrepo.PricingRepositoryFacade
	resolver    portssvc.RuleResolverSvc
	batchSize   int
}

// NewPricingService creates a new PricingService.
func NewPricingService(bookingRepo portsrepo.BookingRepositoryFacade, eventRepo portsrepo.FinanceEventRepositoryFacade, pricingRepo portsrepo.PricingRepositoryFacade, resolver portssvc.RuleResolverSvc, batchSize int) portssvc.PricingSvcFacade {
	if batchSize <= 0 {
		batchSize = defaultReadyEventsPageSize
	}
	return &pricingService{
		bookingRepo: bookingRepo,
		eventRepo:   eventRepo,
		pricingRepo: pricingRepo,
		resolver:    resolver,
		batchSize:   batchSize,
	}
}

var _ portssvc.PricingSvcFacade = (*pricingService)(nil)

// PriceReadyEvents prices every READY event with a configured pricing point,
// in ascending event order so repeated runs produce identical pricings.
// Events without a pricing point stay READY and are counted as still
// pending. A failure on one event is reported and does not abort the run.
func (s *pricingService) PriceReadyEvents(ctx context.Context, userID string) (*dto.PriceEventsSummary, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	events, err := s.eventRepo.ListReadyEvents(ctx, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready finance events: %w", err)
	}

	summary := &dto.PriceEventsSummary{}
	for _, event := range events {
		if event.PricingPointID == nil || *event.PricingPointID == "" {
			summary.StillPendingCount++
			continue
		}
		if err := s.priceEvent(ctx, event, userID); err != nil {
			logger.Error("Failed to price finance event",
				slog.String("finance_event_id", event.FinanceEventID),
				slog.String("error", err.Error()),
			)
			summary.Failures = append(summary.Failures, dto.EventFailure{
				FinanceEventID: event.FinanceEventID,
				Reason:         err.Error(),
			})
			continue
		}
		summary.PricedCount++
	}

	logger.Info("Pricing job finished",
		slog.Int("priced", summary.PricedCount),
		slog.Int("still_pending", summary.StillPendingCount),
		slog.Int("failed", len(summary.Failures)),
	)
	return summary, nil
}

// priceEvent prices a single finance event: eligibility check, rule
// resolution, line construction, atomic persistence.
func (s *pricingService) priceEvent(ctx context.Context, event domain.FinanceEvent, userID string) error {
	if event.Status != domain.EventReady {
		return fmt.Errorf("finance event %s is %s: %w", event.FinanceEventID, event.Status, ErrEventNotReady)
	}

	// At-most-once: a finance event is consumed exactly once by the resolver.
	existing, err := s.pricingRepo.FindActivePricingByEventID(ctx, event.FinanceEventID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("failed to check existing pricing for event %s: %w", event.FinanceEventID, err)
	}
	if existing != nil {
		return fmt.Errorf("finance event %s: %w", event.FinanceEventID, ErrEventAlreadyHasPricing)
	}

	booking, err := s.bookingRepo.FindBookingByID(ctx, event.BookingID())
	if err != nil {
		return fmt.Errorf("failed to find booking %s: %w", event.BookingID(), err)
	}

	pricing, err := s.buildPricing(ctx, event, *booking)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	pricing.CreatedAt = now
	pricing.CreatedBy = userID
	pricing.LastUpdatedAt = now
	pricing.LastUpdatedBy = userID

	// SavePricing also flips the event READY -> PRICED in the same database
	// transaction, which is the dedup gate under concurrent runs.
	if err := s.pricingRepo.SavePricing(ctx, *pricing); err != nil {
		return fmt.Errorf("failed to save pricing for event %s: %w", event.FinanceEventID, err)
	}
	return nil
}

// buildPricing constructs the complete pricing aggregate, lines included,
// before any persistence call.
func (s *pricingService) buildPricing(ctx context.Context, event domain.FinanceEvent, booking domain.Booking) (*domain.Pricing, error) {
	pricingPointID := *event.PricingPointID

	var lines []domain.PricingLine
	var bookingPrice decimal.Decimal
	var ref domain.RuleReference

	if event.Motive == domain.MotiveBookingCancelledIncident {
		// Compensation: claw back what the original pricing paid out.
		original, err := s.pricingRepo.FindActivePricingByEventID(ctx, *event.OriginEventID)
		if err != nil {
			return nil, fmt.Errorf("failed to find original pricing for event %s: %w", *event.OriginEventID, err)
		}
		lines = finance.BuildCompensationLines(original.Amount)
		bookingPrice = decimal.Zero
		ref = original.Rule
	} else {
		revenue, err := s.pricingRepo.GetYearlyRevenue(ctx, pricingPointID, event.ValueDate)
		if err != nil {
			return nil, fmt.Errorf("failed to compute yearly revenue for pricing point %s: %w", pricingPointID, err)
		}
		reimbursed, resolvedRef, err := s.resolver.ResolveForBooking(ctx, booking, revenue)
		if err != nil {
			return nil, err
		}
		lines, err = finance.BuildLines(booking.Price, reimbursed, decimal.Zero)
		if err != nil {
			return nil, err
		}
		bookingPrice = booking.Price
		ref = resolvedRef
	}

	pricing := &domain.Pricing{
		PricingID:      uuid.NewString(),
		FinanceEventID: event.FinanceEventID,
		PricingPointID: pricingPointID,
		BookingPrice:   bookingPrice,
		Amount:         finance.NetAmount(lines),
		Status:         domain.PricingValidated,
		Rule:           ref,
		ValueDate:      event.ValueDate,
		Lines:          lines,
	}
	for i := range pricing.Lines {
		pricing.Lines[i].PricingLineID = uuid.NewString()
		pricing.Lines[i].PricingID = pricing.PricingID
	}

	// The invariant is checked before persistence; a violation here means
	// rate resolution is broken and the pricing must not be stored.
	if err := pricing.ValidateLines(); err != nil {
		return nil, err
	}
	return pricing, nil
}

// CancelPricing marks a pricing CANCELLED. The transition is only allowed
// while the pricing has not been claimed by a cashflow (VALIDATED or
// REJECTED); the finance event stays PRICED, a correction goes through the
// incident flow instead.
func (s *pricingService) CancelPricing(ctx context.Context, pricingID string, userID string) error {
	pricing, err := s.pricingRepo.FindPricingByID(ctx, pricingID)
	if err != nil {
		return fmt.Errorf("failed to find pricing %s: %w", pricingID, err)
	}
	if pricing.Status != domain.PricingValidated && pricing.Status != domain.PricingRejected {
		return fmt.Errorf("pricing %s is %s: %w", pricingID, pricing.Status, ErrPricingNotCancellable)
	}

	now := time.Now().UTC()
	if err := s.pricingRepo.CancelPricing(ctx, pricingID, userID, now); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Lost the race against an aggregation run claiming the pricing.
			return fmt.Errorf("pricing %s: %w", pricingID, ErrPricingNotCancellable)
		}
		return fmt.Errorf("failed to cancel pricing %s: %w", pricingID, err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Pricing cancelled", slog.String("pricing_id", pricingID))
	return nil
}

// GetPricingByID retrieves a pricing with its lines.
func (s *pricingService) GetPricingByID(ctx context.Context, pricingID string) (*domain.Pricing, error) {
	pricing, err := s.pricingRepo.FindPricingByID(ctx, pricingID)
	if err != nil {
		return nil, fmt.Errorf("failed to find pricing %s: %w", pricingID, err)
	}
	return pricing, nil
}

// ListPricingsByPricingPoint retrieves a paginated pricing listing.
func (s *pricingService) ListPricingsByPricingPoint(ctx context.Context, pricingPointID string, limit int, nextToken *string) ([]domain.Pricing, *string, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	pricings, token, err := s.pricingRepo.ListPricingsByPricingPoint(ctx, pricingPointID, limit, nextToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pricings for pricing point %s: %w", pricingPointID, err)
	}
	return pricings, token, nil
}
