package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pass-culture/finance_backend/internal/apperrors"
	"github.com/pass-culture/finance_backend/internal/core/domain"
	portsrepo "github.com/pass-culture/finance_backend/internal/core/ports/repositories"
)

type PgxBookingRepository struct {
	BaseRepository
}

func newPgxBookingRepository(pool *pgxpool.Pool) portsrepo.BookingRepositoryFacade {
	return &PgxBookingRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.BookingRepositoryFacade = (*PgxBookingRepository)(nil)

// FindBookingByID retrieves a booking by its ID.
func (r *PgxBookingRepository) FindBookingByID(ctx context.Context, bookingID string) (*domain.Booking, error) {
	query := `
		SELECT booking_id, kind, status, price, booking_date, used_at, venue_id, offerer_id, category_id,
		       created_at, created_by, last_updated_at, last_updated_by
		FROM bookings
		WHERE booking_id = $1;
	`
	var booking domain.Booking
	err := r.Pool.QueryRow(ctx, query, bookingID).Scan(
		&booking.BookingID,
		&booking.Kind,
		&booking.Status,
		&booking.Price,
		&booking.BookingDate,
		&booking.UsedAt,
		&booking.VenueID,
		&booking.OffererID,
		&booking.CategoryID,
		&booking.CreatedAt,
		&booking.CreatedBy,
		&booking.LastUpdatedAt,
		&booking.LastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking by ID %s: %w", bookingID, err)
	}
	return &booking, nil
}

// UpsertBooking inserts the finance-side copy of a booking or refreshes it
// with the latest snapshot from the bookings module. The creation audit
// fields are preserved on conflict, and a REIMBURSED row is never updated:
// the booking is immutable from that point on.
func (r *PgxBookingRepository) UpsertBooking(ctx context.Context, booking domain.Booking) error {
	query := `
		INSERT INTO bookings (booking_id, kind, status, price, booking_date, used_at, venue_id, offerer_id, category_id,
		                      created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (booking_id) DO UPDATE SET
			status = EXCLUDED.status,
			used_at = EXCLUDED.used_at,
			last_updated_at = EXCLUDED.last_updated_at,
			last_updated_by = EXCLUDED.last_updated_by
		WHERE bookings.status <> $14;
	`
	_, err := r.Pool.Exec(ctx, query,
		booking.BookingID,
		booking.Kind,
		booking.Status,
		booking.Price,
		booking.BookingDate,
		booking.UsedAt,
		booking.VenueID,
		booking.OffererID,
		booking.CategoryID,
		booking.CreatedAt,
		booking.CreatedBy,
		booking.LastUpdatedAt,
		booking.LastUpdatedBy,
		domain.BookingReimbursed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert booking %s: %w", booking.BookingID, err)
	}
	return nil
}
