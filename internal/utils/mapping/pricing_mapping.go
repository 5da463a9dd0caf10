package mapping

import (
	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/pass-culture/finance_backend/internal/dto"
)

// ToPricingResponse converts a domain Pricing with its lines to its API representation
func ToPricingResponse(d domain.Pricing) dto.PricingResponse {
	lines := make([]dto.PricingLineResponse, len(d.Lines))
	for i, line := range d.Lines {
		lines[i] = dto.PricingLineResponse{
			Kind:   string(line.Kind),
			Amount: line.Amount,
		}
	}
	return dto.PricingResponse{
		PricingID:      d.PricingID,
		FinanceEventID: d.FinanceEventID,
		PricingPointID: d.PricingPointID,
		BookingPrice:   d.BookingPrice,
		Amount:         d.Amount,
		Status:         string(d.Status),
		RuleKind:       string(d.Rule.Kind),
		RuleID:         d.Rule.RuleID,
		ValueDate:      d.ValueDate,
		Lines:          lines,
		CreatedAt:      d.CreatedAt,
	}
}

// ToPricingResponseSlice converts a slice of domain Pricings
func ToPricingResponseSlice(ds []domain.Pricing) []dto.PricingResponse {
	responses := make([]dto.PricingResponse, len(ds))
	for i, d := range ds {
		responses[i] = ToPricingResponse(d)
	}
	return responses
}
