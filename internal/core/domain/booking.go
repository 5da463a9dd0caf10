package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingKind distinguishes individual beneficiary bookings from collective
// (school group) bookings. A finance event references exactly one of the two.
type BookingKind string

const (
	IndividualBooking BookingKind = "INDIVIDUAL"
	CollectiveBooking BookingKind = "COLLECTIVE"
)

// BookingStatus mirrors the lifecycle owned by the bookings module.
type BookingStatus string

const (
	BookingBooked     BookingStatus = "BOOKED"
	BookingUsed       BookingStatus = "USED"
	BookingCancelled  BookingStatus = "CANCELLED"
	BookingReimbursed BookingStatus = "REIMBURSED"
)

// Booking is the finance-side read model of a reservation. It is fed by the
// bookings module through the event ingestion endpoint and is never the
// source of truth for the reservation itself. Immutable once REIMBURSED.
type Booking struct {
	BookingID   string          `json:"bookingID"` // Primary key (UUID from the bookings module)
	Kind        BookingKind     `json:"kind"`
	Status      BookingStatus   `json:"status"`
	Price       decimal.Decimal `json:"price"` // Total price in euros, always positive
	BookingDate time.Time       `json:"bookingDate"`
	UsedAt      *time.Time      `json:"usedAt,omitempty"`
	VenueID     string          `json:"venueID"`
	OffererID   string          `json:"offererID"`
	CategoryID  string          `json:"categoryID"` // Offer subcategory, scopes custom rules
	AuditFields
}

// UsedDate is the date rules are matched against: the moment the booking was
// used when known, the booking date otherwise.
func (b Booking) UsedDate() time.Time {
	if b.UsedAt != nil {
		return *b.UsedAt
	}
	return b.BookingDate
}
