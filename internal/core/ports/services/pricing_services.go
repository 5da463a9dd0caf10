package services

import (
	"context"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/pass-culture/finance_backend/internal/dto"
)

// PricingReaderSvc defines read operations for pricings.
type PricingReaderSvc interface {
	// GetPricingByID retrieves a pricing with its lines.
	GetPricingByID(ctx context.Context, pricingID string) (*domain.Pricing, error)

	// ListPricingsByPricingPoint retrieves a paginated pricing listing.
	ListPricingsByPricingPoint(ctx context.Context, pricingPointID string, limit int, nextToken *string) ([]domain.Pricing, *string, error)
}

// PricingJobSvc runs the periodic pricing job.
type PricingJobSvc interface {
	// PriceReadyEvents prices every READY finance event with a known pricing
	// point, in ascending event order. Individual failures are reported in
	// the summary and do not abort the run.
	PriceReadyEvents(ctx context.Context, userID string) (*dto.PriceEventsSummary, error)
}

// PricingWriterSvc mutates individual pricings.
type PricingWriterSvc interface {
	// CancelPricing marks a pricing CANCELLED. Only pricings that have not
	// been batched yet (VALIDATED or REJECTED) can be cancelled; the finance
	// event keeps its PRICED status and is not re-opened.
	CancelPricing(ctx context.Context, pricingID string, userID string) error
}

// PricingSvcFacade combines all pricing service interfaces.
type PricingSvcFacade interface {
	PricingReaderSvc
	PricingJobSvc
	PricingWriterSvc
}
