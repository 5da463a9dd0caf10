package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingEventRequest is the lifecycle tuple the bookings module pushes when
// a booking changes state. Venue/offerer fields are a read-only snapshot of
// the offerers module's configuration at event time.
type BookingEventRequest struct {
	BookingID      string          `json:"bookingID" binding:"required"`
	Kind           string          `json:"kind" binding:"required,oneof=INDIVIDUAL COLLECTIVE"`
	Status         string          `json:"status" binding:"required,oneof=BOOKED USED CANCELLED REIMBURSED"`
	Price          decimal.Decimal `json:"price" binding:"required"`
	BookingDate    time.Time       `json:"bookingDate" binding:"required"`
	UsedAt         *time.Time      `json:"usedAt,omitempty"`
	VenueID        string          `json:"venueID" binding:"required"`
	OffererID      string          `json:"offererID" binding:"required"`
	CategoryID     string          `json:"categoryID" binding:"required"`
	PricingPointID *string         `json:"pricingPointID,omitempty"`
}

// RecordIncidentRequest asks for a compensating finance event after a booking
// was wrongly marked used. The resulting pricing carries negative revenue.
type RecordIncidentRequest struct {
	BookingID string `json:"bookingID" binding:"required"`
}

// FinanceEventResponse is the API representation of a finance event.
type FinanceEventResponse struct {
	FinanceEventID      string     `json:"financeEventID"`
	Status              string     `json:"status"`
	Motive              string     `json:"motive"`
	IndividualBookingID *string    `json:"individualBookingID,omitempty"`
	CollectiveBookingID *string    `json:"collectiveBookingID,omitempty"`
	VenueID             string     `json:"venueID"`
	PricingPointID      *string    `json:"pricingPointID,omitempty"`
	ValueDate           time.Time  `json:"valueDate"`
	OriginEventID       *string    `json:"originEventID,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// ListFinanceEventsResponse wraps a list of finance events.
type ListFinanceEventsResponse struct {
	Events []FinanceEventResponse `json:"events"`
}
