package mapping

import (
	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/pass-culture/finance_backend/internal/dto"
)

// ToFinanceEventResponse converts a domain FinanceEvent to its API representation
func ToFinanceEventResponse(d domain.FinanceEvent) dto.FinanceEventResponse {
	return dto.FinanceEventResponse{
		FinanceEventID:      d.FinanceEventID,
		Status:              string(d.Status),
		Motive:              string(d.Motive),
		IndividualBookingID: d.IndividualBookingID,
		CollectiveBookingID: d.CollectiveBookingID,
		VenueID:             d.VenueID,
		PricingPointID:      d.PricingPointID,
		ValueDate:           d.ValueDate,
		OriginEventID:       d.OriginEventID,
		CreatedAt:           d.CreatedAt,
	}
}

// ToFinanceEventResponseSlice converts a slice of domain FinanceEvents
func ToFinanceEventResponseSlice(ds []domain.FinanceEvent) []dto.FinanceEventResponse {
	responses := make([]dto.FinanceEventResponse, len(ds))
	for i, d := range ds {
		responses[i] = ToFinanceEventResponse(d)
	}
	return responses
}
