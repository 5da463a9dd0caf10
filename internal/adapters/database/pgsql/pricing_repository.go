package pgsql

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pass-culture/finance_backend/internal/apperrors"
	"github.com/pass-culture/finance_backend/internal/core/domain"
	portsrepo "github.com/pass-culture/finance_backend/internal/core/ports/repositories"
	"github.com/pass-culture/finance_backend/internal/utils/pagination"
)

type PgxPricingRepository struct {
	BaseRepository
}

func newPgxPricingRepository(pool *pgxpool.Pool) portsrepo.PricingRepositoryFacade {
	return &PgxPricingRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.PricingRepositoryFacade = (*PgxPricingRepository)(nil)

const pricingColumns = `
	pricing_id, finance_event_id, pricing_point_id, booking_price, amount, status,
	rule_kind, rule_id, value_date,
	created_at, created_by, last_updated_at, last_updated_by`

func scanPricing(row pgx.Row) (*domain.Pricing, error) {
	var pricing domain.Pricing
	var ruleID *string
	err := row.Scan(
		&pricing.PricingID,
		&pricing.FinanceEventID,
		&pricing.PricingPointID,
		&pricing.BookingPrice,
		&pricing.Amount,
		&pricing.Status,
		&pricing.Rule.Kind,
		&ruleID,
		&pricing.ValueDate,
		&pricing.CreatedAt,
		&pricing.CreatedBy,
		&pricing.LastUpdatedAt,
		&pricing.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if ruleID != nil {
		pricing.Rule.RuleID = *ruleID
	}
	return &pricing, nil
}

// FindPricingByID retrieves a pricing with its lines.
func (r *PgxPricingRepository) FindPricingByID(ctx context.Context, pricingID string) (*domain.Pricing, error) {
	query := `SELECT ` + pricingColumns + ` FROM pricings WHERE pricing_id = $1;`
	pricing, err := scanPricing(r.Pool.QueryRow(ctx, query, pricingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find pricing by ID %s: %w", pricingID, err)
	}

	lines, err := r.findLinesByPricingIDs(ctx, []string{pricingID})
	if err != nil {
		return nil, err
	}
	pricing.Lines = lines[pricingID]
	return pricing, nil
}

// FindActivePricingByEventID retrieves the non-cancelled pricing of a finance
// event, lines included.
func (r *PgxPricingRepository) FindActivePricingByEventID(ctx context.Context, financeEventID string) (*domain.Pricing, error) {
	query := `
		SELECT ` + pricingColumns + `
		FROM pricings
		WHERE finance_event_id = $1 AND status != $2
		LIMIT 1;
	`
	pricing, err := scanPricing(r.Pool.QueryRow(ctx, query, financeEventID, domain.PricingCancelled))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active pricing for event %s: %w", financeEventID, err)
	}

	lines, err := r.findLinesByPricingIDs(ctx, []string{pricing.PricingID})
	if err != nil {
		return nil, err
	}
	pricing.Lines = lines[pricing.PricingID]
	return pricing, nil
}

// ListPricingsByPricingPoint retrieves a paginated list of pricings for a
// pricing point using token-based pagination, newest first.
func (r *PgxPricingRepository) ListPricingsByPricingPoint(ctx context.Context, pricingPointID string, limit int, nextToken *string) ([]domain.Pricing, *string, error) {
	if limit <= 0 {
		limit = 20
	}
	// Fetch one extra row to determine whether a next page exists.
	fetchLimit := limit + 1

	baseQuery := `SELECT ` + pricingColumns + ` FROM pricings WHERE pricing_point_id = $1`
	orderByClause := `ORDER BY value_date DESC, created_at DESC`

	var rows pgx.Rows
	var err error
	args := []interface{}{pricingPointID}

	if nextToken != nil && *nextToken != "" {
		lastValueDate, lastCreatedAt, decodeErr := pagination.DecodeToken(*nextToken)
		if decodeErr != nil {
			return nil, nil, fmt.Errorf("%w: invalid nextToken: %v", apperrors.ErrValidation, decodeErr)
		}
		cursorClause := `AND (value_date, created_at) < ($2, $3)`
		args = append(args, lastValueDate, lastCreatedAt)

		query := baseQuery + " " + cursorClause + " " + orderByClause + " LIMIT $" + strconv.Itoa(len(args)+1) + ";"
		args = append(args, fetchLimit)
		rows, err = r.Pool.Query(ctx, query, args...)
	} else {
		query := baseQuery + " " + orderByClause + " LIMIT $" + strconv.Itoa(len(args)+1) + ";"
		args = append(args, fetchLimit)
		rows, err = r.Pool.Query(ctx, query, args...)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query pricings for pricing point %s: %w", pricingPointID, err)
	}
	defer rows.Close()

	pricings := make([]domain.Pricing, 0, fetchLimit)
	for rows.Next() {
		pricing, scanErr := scanPricing(rows)
		if scanErr != nil {
			return nil, nil, fmt.Errorf("failed to scan pricing row for pricing point %s: %w", pricingPointID, scanErr)
		}
		pricings = append(pricings, *pricing)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating pricing rows for pricing point %s: %w", pricingPointID, err)
	}

	var nextTokenVal *string
	if len(pricings) > limit {
		last := pricings[limit-1]
		token := pagination.EncodeToken(last.ValueDate, last.CreatedAt)
		nextTokenVal = &token
		pricings = pricings[:limit]
	}

	if err := r.attachLines(ctx, pricings); err != nil {
		return nil, nil, err
	}
	return pricings, nextTokenVal, nil
}

// ListValidatedPricingsUntil retrieves VALIDATED pricings with value date on
// or before the cutoff, grouped by reimbursement point. The pricing point
// doubles as the reimbursement point: both designate the venue carrying the
// bank coordinates.
func (r *PgxPricingRepository) ListValidatedPricingsUntil(ctx context.Context, cutoff time.Time) (map[string][]domain.Pricing, error) {
	query := `
		SELECT p.pricing_point_id, ` + prefixedPricingColumns("p") + `
		FROM pricings p
		WHERE p.status = $1 AND p.value_date <= $2
		ORDER BY p.pricing_point_id, p.pricing_id;
	`
	rows, err := r.Pool.Query(ctx, query, domain.PricingValidated, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query validated pricings until %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	byPoint := make(map[string][]domain.Pricing)
	var pricingIDs []string
	index := make(map[string]struct {
		point string
		pos   int
	})
	for rows.Next() {
		var point string
		var pricing domain.Pricing
		var ruleID *string
		if err := rows.Scan(
			&point,
			&pricing.PricingID,
			&pricing.FinanceEventID,
			&pricing.PricingPointID,
			&pricing.BookingPrice,
			&pricing.Amount,
			&pricing.Status,
			&pricing.Rule.Kind,
			&ruleID,
			&pricing.ValueDate,
			&pricing.CreatedAt,
			&pricing.CreatedBy,
			&pricing.LastUpdatedAt,
			&pricing.LastUpdatedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan validated pricing row: %w", err)
		}
		if ruleID != nil {
			pricing.Rule.RuleID = *ruleID
		}
		byPoint[point] = append(byPoint[point], pricing)
		pricingIDs = append(pricingIDs, pricing.PricingID)
		index[pricing.PricingID] = struct {
			point string
			pos   int
		}{point, len(byPoint[point]) - 1}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating validated pricing rows: %w", err)
	}

	lines, err := r.findLinesByPricingIDs(ctx, pricingIDs)
	if err != nil {
		return nil, err
	}
	for pricingID, pricingLines := range lines {
		loc := index[pricingID]
		byPoint[loc.point][loc.pos].Lines = pricingLines
	}
	return byPoint, nil
}

// GetYearlyRevenue sums the booking prices already priced for a pricing point
// during the civil year of asOf. Rejected and cancelled pricings do not count.
func (r *PgxPricingRepository) GetYearlyRevenue(ctx context.Context, pricingPointID string, asOf time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(booking_price), 0)
		FROM pricings
		WHERE pricing_point_id = $1
		  AND status NOT IN ($2, $3)
		  AND date_part('year', value_date) = $4;
	`
	var revenue decimal.Decimal
	err := r.Pool.QueryRow(ctx, query, pricingPointID, domain.PricingRejected, domain.PricingCancelled, asOf.Year()).Scan(&revenue)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum yearly revenue for pricing point %s: %w", pricingPointID, err)
	}
	return revenue, nil
}

// SavePricing persists a pricing with its lines and flips the finance event
// READY -> PRICED within one database transaction. Losing the status race on
// the event (another job run already priced it) aborts the whole insert.
func (r *PgxPricingRepository) SavePricing(ctx context.Context, pricing domain.Pricing) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	pricingQuery := `
		INSERT INTO pricings (pricing_id, finance_event_id, pricing_point_id, booking_price, amount, status,
		                      rule_kind, rule_id, value_date,
		                      created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`
	var ruleID *string
	if pricing.Rule.RuleID != "" {
		ruleID = &pricing.Rule.RuleID
	}
	_, err = tx.Exec(ctx, pricingQuery,
		pricing.PricingID,
		pricing.FinanceEventID,
		pricing.PricingPointID,
		pricing.BookingPrice,
		pricing.Amount,
		pricing.Status,
		pricing.Rule.Kind,
		ruleID,
		pricing.ValueDate,
		pricing.CreatedAt,
		pricing.CreatedBy,
		pricing.LastUpdatedAt,
		pricing.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return fmt.Errorf("failed to insert pricing %s: %w", pricing.PricingID, err)
	}

	batch := &pgx.Batch{}
	lineQuery := `
		INSERT INTO pricing_lines (pricing_line_id, pricing_id, kind, amount)
		VALUES ($1, $2, $3, $4);
	`
	for _, line := range pricing.Lines {
		batch.Queue(lineQuery, line.PricingLineID, line.PricingID, line.Kind, line.Amount)
	}
	br := tx.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to insert lines for pricing %s: %w", pricing.PricingID, err)
	}

	eventQuery := `
		UPDATE finance_events
		SET status = $3, last_updated_at = $4, last_updated_by = $5
		WHERE finance_event_id = $1 AND status = $2;
	`
	cmdTag, err := tx.Exec(ctx, eventQuery,
		pricing.FinanceEventID, domain.EventReady, domain.EventPriced,
		pricing.LastUpdatedAt, pricing.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to mark finance event %s priced: %w", pricing.FinanceEventID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("finance event %s was not READY: %w", pricing.FinanceEventID, apperrors.ErrDuplicate)
	}

	return r.Commit(ctx, tx)
}

// UpdatePricingStatus transitions a pricing's status with a compare-and-swap
// on the prior status.
func (r *PgxPricingRepository) UpdatePricingStatus(ctx context.Context, pricingID string, from, to domain.PricingStatus, updatedBy string, updatedAt time.Time) error {
	query := `
		UPDATE pricings
		SET status = $3, last_updated_at = $4, last_updated_by = $5
		WHERE pricing_id = $1 AND status = $2;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, pricingID, from, to, updatedAt, updatedBy)
	if err != nil {
		return fmt.Errorf("failed to update status of pricing %s: %w", pricingID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// CancelPricing marks a pricing CANCELLED with a compare-and-swap on the two
// unbatched statuses. Once a cashflow claimed the pricing the row no longer
// matches and the update is a no-op.
func (r *PgxPricingRepository) CancelPricing(ctx context.Context, pricingID string, updatedBy string, updatedAt time.Time) error {
	query := `
		UPDATE pricings
		SET status = $2, last_updated_at = $3, last_updated_by = $4
		WHERE pricing_id = $1 AND status IN ($5, $6);
	`
	cmdTag, err := r.Pool.Exec(ctx, query, pricingID, domain.PricingCancelled, updatedAt, updatedBy, domain.PricingValidated, domain.PricingRejected)
	if err != nil {
		return fmt.Errorf("failed to cancel pricing %s: %w", pricingID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// findLinesByPricingIDs loads the lines of a set of pricings in one query.
func (r *PgxPricingRepository) findLinesByPricingIDs(ctx context.Context, pricingIDs []string) (map[string][]domain.PricingLine, error) {
	if len(pricingIDs) == 0 {
		return map[string][]domain.PricingLine{}, nil
	}
	query := `
		SELECT pricing_line_id, pricing_id, kind, amount
		FROM pricing_lines
		WHERE pricing_id = ANY($1)
		ORDER BY pricing_id, pricing_line_id;
	`
	rows, err := r.Pool.Query(ctx, query, pricingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query pricing lines: %w", err)
	}
	defer rows.Close()

	lines := make(map[string][]domain.PricingLine)
	for rows.Next() {
		var line domain.PricingLine
		if err := rows.Scan(&line.PricingLineID, &line.PricingID, &line.Kind, &line.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan pricing line row: %w", err)
		}
		lines[line.PricingID] = append(lines[line.PricingID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pricing line rows: %w", err)
	}
	return lines, nil
}

// attachLines populates Lines on a slice of pricings in place.
func (r *PgxPricingRepository) attachLines(ctx context.Context, pricings []domain.Pricing) error {
	ids := make([]string, 0, len(pricings))
	for _, p := range pricings {
		ids = append(ids, p.PricingID)
	}
	lines, err := r.findLinesByPricingIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range pricings {
		pricings[i].Lines = lines[pricings[i].PricingID]
	}
	return nil
}

// prefixedPricingColumns qualifies the pricing column list with a table alias.
func prefixedPricingColumns(alias string) string {
	return alias + `.pricing_id, ` + alias + `.finance_event_id, ` + alias + `.pricing_point_id, ` +
		alias + `.booking_price, ` + alias + `.amount, ` + alias + `.status, ` +
		alias + `.rule_kind, ` + alias + `.rule_id, ` + alias + `.value_date, ` +
		alias + `.created_at, ` + alias + `.created_by, ` + alias + `.last_updated_at, ` + alias + `.last_updated_by`
}
