package repositories

import (
	"context"

	"github.com/pass-culture/finance_backend/internal/core/domain"
)

// BookingReader defines read operations for the booking read model.
type BookingReader interface {
	// FindBookingByID retrieves a booking by its identifier.
	FindBookingByID(ctx context.Context, bookingID string) (*domain.Booking, error)
}

// BookingWriter defines write operations for the booking read model.
type BookingWriter interface {
	// UpsertBooking inserts or refreshes the finance-side copy of a booking.
	UpsertBooking(ctx context.Context, booking domain.Booking) error
}

// BookingRepositoryFacade combines booking read-model operations.
type BookingRepositoryFacade interface {
	BookingReader
	BookingWriter
}
