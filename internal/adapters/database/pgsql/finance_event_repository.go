package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pass-culture/finance_backend/internal/apperrors"
	"github.com/pass-culture/finance_backend/internal/core/domain"
	portsrepo "github.com/pass-culture/finance_backend/internal/core/ports/repositories"
)

type PgxFinanceEventRepository struct {
	BaseRepository
}

func newPgxFinanceEventRepository(pool *pgxpool.Pool) portsrepo.FinanceEventRepositoryFacade {
	return &PgxFinanceEventRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.FinanceEventRepositoryFacade = (*PgxFinanceEventRepository)(nil)

const financeEventColumns = `
	finance_event_id, sequence, status, motive, individual_booking_id, collective_booking_id,
	venue_id, pricing_point_id, value_date, origin_event_id,
	created_at, created_by, last_updated_at, last_updated_by`

func scanFinanceEvent(row pgx.Row) (*domain.FinanceEvent, error) {
	var event domain.FinanceEvent
	err := row.Scan(
		&event.FinanceEventID,
		&event.Sequence,
		&event.Status,
		&event.Motive,
		&event.IndividualBookingID,
		&event.CollectiveBookingID,
		&event.VenueID,
		&event.PricingPointID,
		&event.ValueDate,
		&event.OriginEventID,
		&event.CreatedAt,
		&event.CreatedBy,
		&event.LastUpdatedAt,
		&event.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// FindEventByID retrieves a finance event by its ID.
func (r *PgxFinanceEventRepository) FindEventByID(ctx context.Context, financeEventID string) (*domain.FinanceEvent, error) {
	query := `SELECT ` + financeEventColumns + ` FROM finance_events WHERE finance_event_id = $1;`
	event, err := scanFinanceEvent(r.Pool.QueryRow(ctx, query, financeEventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find finance event by ID %s: %w", financeEventID, err)
	}
	return event, nil
}

// FindEventByBookingID retrieves the original event for a booking. Incident
// compensation events reference the original and are excluded here.
func (r *PgxFinanceEventRepository) FindEventByBookingID(ctx context.Context, bookingID string) (*domain.FinanceEvent, error) {
	query := `
		SELECT ` + financeEventColumns + `
		FROM finance_events
		WHERE (individual_booking_id = $1 OR collective_booking_id = $1)
		  AND origin_event_id IS NULL
		ORDER BY sequence
		LIMIT 1;
	`
	event, err := scanFinanceEvent(r.Pool.QueryRow(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find finance event for booking %s: %w", bookingID, err)
	}
	return event, nil
}

// ListReadyEvents retrieves READY events in ascending sequence order, which
// keeps the pricing job deterministic across runs.
func (r *PgxFinanceEventRepository) ListReadyEvents(ctx context.Context, limit int) ([]domain.FinanceEvent, error) {
	query := `
		SELECT ` + financeEventColumns + `
		FROM finance_events
		WHERE status = $1
		ORDER BY sequence
		LIMIT $2;
	`
	return r.queryEvents(ctx, query, domain.EventReady, limit)
}

// ListPendingPricingPoint retrieves READY events stuck without a pricing point.
func (r *PgxFinanceEventRepository) ListPendingPricingPoint(ctx context.Context) ([]domain.FinanceEvent, error) {
	query := `
		SELECT ` + financeEventColumns + `
		FROM finance_events
		WHERE status = $1 AND pricing_point_id IS NULL
		ORDER BY sequence;
	`
	return r.queryEvents(ctx, query, domain.EventReady)
}

func (r *PgxFinanceEventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]domain.FinanceEvent, error) {
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query finance events: %w", err)
	}
	defer rows.Close()

	events := []domain.FinanceEvent{}
	for rows.Next() {
		event, err := scanFinanceEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finance event row: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating finance event rows: %w", err)
	}
	return events, nil
}

// SaveEvent persists a new finance event. The sequence is assigned by the
// database so that ingestion order is a single monotonic series.
func (r *PgxFinanceEventRepository) SaveEvent(ctx context.Context, event domain.FinanceEvent) error {
	query := `
		INSERT INTO finance_events (finance_event_id, status, motive, individual_booking_id, collective_booking_id,
		                            venue_id, pricing_point_id, value_date, origin_event_id,
		                            created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`
	_, err := r.Pool.Exec(ctx, query,
		event.FinanceEventID,
		event.Status,
		event.Motive,
		event.IndividualBookingID,
		event.CollectiveBookingID,
		event.VenueID,
		event.PricingPointID,
		event.ValueDate,
		event.OriginEventID,
		event.CreatedAt,
		event.CreatedBy,
		event.LastUpdatedAt,
		event.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return fmt.Errorf("failed to insert finance event %s: %w", event.FinanceEventID, err)
	}
	return nil
}

// MarkEventReady promotes an event to READY and stamps the value date. The
// pricing point is only ever filled in, never cleared: a nil pricingPointID
// keeps whatever the row already carries. The status guard makes the update a
// no-op on PRICED events, so a racing pricing run cannot be undone.
func (r *PgxFinanceEventRepository) MarkEventReady(ctx context.Context, financeEventID string, pricingPointID *string, valueDate time.Time, updatedBy string, updatedAt time.Time) error {
	query := `
		UPDATE finance_events
		SET status = $2,
		    pricing_point_id = COALESCE($3, pricing_point_id),
		    value_date = $4,
		    last_updated_at = $5, last_updated_by = $6
		WHERE finance_event_id = $1 AND status IN ($2, $7);
	`
	cmdTag, err := r.Pool.Exec(ctx, query, financeEventID, domain.EventReady, pricingPointID, valueDate, updatedAt, updatedBy, domain.EventPending)
	if err != nil {
		return fmt.Errorf("failed to mark finance event %s ready: %w", financeEventID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
