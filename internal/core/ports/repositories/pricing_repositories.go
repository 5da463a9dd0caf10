package repositories

import (
	"context"
	"time"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// PricingReader defines read operations for pricings and their lines.
type PricingReader interface {
	// FindPricingByID retrieves a pricing with its lines.
	FindPricingByID(ctx context.Context, pricingID string) (*domain.Pricing, error)

	// FindActivePricingByEventID retrieves the non-cancelled pricing of a
	// finance event, if any. Used for at-most-once enforcement.
	FindActivePricingByEventID(ctx context.Context, financeEventID string) (*domain.Pricing, error)

	// ListPricingsByPricingPoint retrieves a paginated list of pricings for a
	// pricing point using token-based pagination, newest first.
	ListPricingsByPricingPoint(ctx context.Context, pricingPointID string, limit int, nextToken *string) ([]domain.Pricing, *string, error)

	// ListValidatedPricingsUntil retrieves VALIDATED pricings with value date
	// on or before the cutoff, lines included, grouped by reimbursement point
	// and ordered by ascending pricing id within each point so that repeated
	// runs reproduce the same ordering.
	ListValidatedPricingsUntil(ctx context.Context, cutoff time.Time) (map[string][]domain.Pricing, error)

	// GetYearlyRevenue sums the booking prices already priced for a pricing
	// point during the civil year of asOf, for the standard rate step lookup.
	GetYearlyRevenue(ctx context.Context, pricingPointID string, asOf time.Time) (decimal.Decimal, error)
}

// PricingWriter defines write operations for pricings.
type PricingWriter interface {
	// SavePricing persists a pricing and its lines and flips the finance
	// event READY -> PRICED inside a single database transaction.
	SavePricing(ctx context.Context, pricing domain.Pricing) error

	// UpdatePricingStatus transitions a pricing's status, guarded by the
	// expected prior status. Returns apperrors.ErrNotFound when no row was in
	// the expected state.
	UpdatePricingStatus(ctx context.Context, pricingID string, from, to domain.PricingStatus, updatedBy string, updatedAt time.Time) error

	// CancelPricing marks a pricing CANCELLED while it is still VALIDATED or
	// REJECTED. Returns apperrors.ErrNotFound when the pricing was already
	// batched or does not exist.
	CancelPricing(ctx context.Context, pricingID string, updatedBy string, updatedAt time.Time) error
}

// PricingRepositoryFacade combines all pricing repository interfaces.
type PricingRepositoryFacade interface {
	PricingReader
	PricingWriter
}
