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

type PgxCashflowRepository struct {
	BaseRepository
}

func newPgxCashflowRepository(pool *pgxpool.Pool) portsrepo.CashflowRepositoryFacade {
	return &PgxCashflowRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.CashflowRepositoryFacade = (*PgxCashflowRepository)(nil)

// FindBatchByID retrieves a cashflow batch by its ID.
func (r *PgxCashflowRepository) FindBatchByID(ctx context.Context, batchID string) (*domain.CashflowBatch, error) {
	query := `
		SELECT batch_id, label, cutoff_date, created_at, created_by, last_updated_at, last_updated_by
		FROM cashflow_batches
		WHERE batch_id = $1;
	`
	var batch domain.CashflowBatch
	err := r.Pool.QueryRow(ctx, query, batchID).Scan(
		&batch.BatchID,
		&batch.Label,
		&batch.CutoffDate,
		&batch.CreatedAt,
		&batch.CreatedBy,
		&batch.LastUpdatedAt,
		&batch.LastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find cashflow batch by ID %s: %w", batchID, err)
	}
	return &batch, nil
}

// ListBatches retrieves batches ordered by descending label number.
func (r *PgxCashflowRepository) ListBatches(ctx context.Context, limit int) ([]domain.CashflowBatch, error) {
	query := `
		SELECT batch_id, label, cutoff_date, created_at, created_by, last_updated_at, last_updated_by
		FROM cashflow_batches
		ORDER BY batch_number DESC
		LIMIT $1;
	`
	rows, err := r.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cashflow batches: %w", err)
	}
	defer rows.Close()

	batches := []domain.CashflowBatch{}
	for rows.Next() {
		var batch domain.CashflowBatch
		if err := rows.Scan(
			&batch.BatchID,
			&batch.Label,
			&batch.CutoffDate,
			&batch.CreatedAt,
			&batch.CreatedBy,
			&batch.LastUpdatedAt,
			&batch.LastUpdatedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cashflow batch row: %w", err)
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cashflow batch rows: %w", err)
	}
	return batches, nil
}

// ListCashflowsByBatch retrieves the cashflows of a batch with their linked
// pricing ids.
func (r *PgxCashflowRepository) ListCashflowsByBatch(ctx context.Context, batchID string) ([]domain.Cashflow, error) {
	query := `
		SELECT cashflow_id, batch_id, reimbursement_point_id, amount, status, invoice_id,
		       created_at, created_by, last_updated_at, last_updated_by
		FROM cashflows
		WHERE batch_id = $1
		ORDER BY reimbursement_point_id;
	`
	rows, err := r.Pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cashflows for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	cashflows := []domain.Cashflow{}
	for rows.Next() {
		var cashflow domain.Cashflow
		if err := rows.Scan(
			&cashflow.CashflowID,
			&cashflow.BatchID,
			&cashflow.ReimbursementPointID,
			&cashflow.Amount,
			&cashflow.Status,
			&cashflow.InvoiceID,
			&cashflow.CreatedAt,
			&cashflow.CreatedBy,
			&cashflow.LastUpdatedAt,
			&cashflow.LastUpdatedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cashflow row for batch %s: %w", batchID, err)
		}
		cashflows = append(cashflows, cashflow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cashflow rows for batch %s: %w", batchID, err)
	}

	if err := r.attachPricingIDs(ctx, cashflows); err != nil {
		return nil, err
	}
	return cashflows, nil
}

// FindCashflowByID retrieves a cashflow with its linked pricing ids.
func (r *PgxCashflowRepository) FindCashflowByID(ctx context.Context, cashflowID string) (*domain.Cashflow, error) {
	query := `
		SELECT cashflow_id, batch_id, reimbursement_point_id, amount, status, invoice_id,
		       created_at, created_by, last_updated_at, last_updated_by
		FROM cashflows
		WHERE cashflow_id = $1;
	`
	var cashflow domain.Cashflow
	err := r.Pool.QueryRow(ctx, query, cashflowID).Scan(
		&cashflow.CashflowID,
		&cashflow.BatchID,
		&cashflow.ReimbursementPointID,
		&cashflow.Amount,
		&cashflow.Status,
		&cashflow.InvoiceID,
		&cashflow.CreatedAt,
		&cashflow.CreatedBy,
		&cashflow.LastUpdatedAt,
		&cashflow.LastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find cashflow by ID %s: %w", cashflowID, err)
	}

	flows := []domain.Cashflow{cashflow}
	if err := r.attachPricingIDs(ctx, flows); err != nil {
		return nil, err
	}
	return &flows[0], nil
}

// CreateBatch reserves the next monotonic batch number and inserts the batch
// under its formatted label. The unique constraints on number and label make
// a concurrent duplicate run fail instead of producing two batches with the
// same number.
func (r *PgxCashflowRepository) CreateBatch(ctx context.Context, batch domain.CashflowBatch) (*domain.CashflowBatch, error) {
	tx, err := r.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Rollback(ctx, tx)

	var next int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(batch_number), 0) + 1 FROM cashflow_batches;`).Scan(&next); err != nil {
		return nil, fmt.Errorf("failed to reserve cashflow batch number: %w", err)
	}
	batch.Label = domain.BatchLabel(next)

	query := `
		INSERT INTO cashflow_batches (batch_id, batch_number, label, cutoff_date,
		                              created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err = tx.Exec(ctx, query,
		batch.BatchID,
		next,
		batch.Label,
		batch.CutoffDate,
		batch.CreatedAt,
		batch.CreatedBy,
		batch.LastUpdatedAt,
		batch.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to insert cashflow batch %s: %w", batch.BatchID, err)
	}

	if err := r.Commit(ctx, tx); err != nil {
		return nil, err
	}
	return &batch, nil
}

// SaveCashflow inserts a cashflow with its pricing links and flips the linked
// pricings VALIDATED -> PROCESSED in one database transaction. A pricing
// already claimed by another cashflow makes the whole insert fail.
func (r *PgxCashflowRepository) SaveCashflow(ctx context.Context, cashflow domain.Cashflow) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	cashflowQuery := `
		INSERT INTO cashflows (cashflow_id, batch_id, reimbursement_point_id, amount, status,
		                       created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err = tx.Exec(ctx, cashflowQuery,
		cashflow.CashflowID,
		cashflow.BatchID,
		cashflow.ReimbursementPointID,
		cashflow.Amount,
		cashflow.Status,
		cashflow.CreatedAt,
		cashflow.CreatedBy,
		cashflow.LastUpdatedAt,
		cashflow.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cashflow %s: %w", cashflow.CashflowID, err)
	}

	// The unique constraint on cashflow_pricings.pricing_id is the second
	// double-batching gate, on top of the status guard below.
	batch := &pgx.Batch{}
	linkQuery := `INSERT INTO cashflow_pricings (cashflow_id, pricing_id) VALUES ($1, $2);`
	for _, pricingID := range cashflow.PricingIDs {
		batch.Queue(linkQuery, cashflow.CashflowID, pricingID)
	}
	br := tx.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return fmt.Errorf("failed to link pricings to cashflow %s: %w", cashflow.CashflowID, err)
	}

	statusQuery := `
		UPDATE pricings
		SET status = $2, last_updated_at = $3, last_updated_by = $4
		WHERE pricing_id = ANY($1) AND status = $5;
	`
	cmdTag, err := tx.Exec(ctx, statusQuery,
		cashflow.PricingIDs, domain.PricingProcessed,
		cashflow.LastUpdatedAt, cashflow.LastUpdatedBy,
		domain.PricingValidated,
	)
	if err != nil {
		return fmt.Errorf("failed to mark pricings processed for cashflow %s: %w", cashflow.CashflowID, err)
	}
	if int(cmdTag.RowsAffected()) != len(cashflow.PricingIDs) {
		return fmt.Errorf("cashflow %s: %d of %d pricings were not VALIDATED: %w",
			cashflow.CashflowID, len(cashflow.PricingIDs)-int(cmdTag.RowsAffected()), len(cashflow.PricingIDs), apperrors.ErrDuplicate)
	}

	return r.Commit(ctx, tx)
}

// MarkCashflowsSent transitions cashflows PENDING -> SENT.
func (r *PgxCashflowRepository) MarkCashflowsSent(ctx context.Context, cashflowIDs []string, updatedBy string) error {
	query := `
		UPDATE cashflows
		SET status = $2, last_updated_at = $3, last_updated_by = $4
		WHERE cashflow_id = ANY($1) AND status = $5;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, cashflowIDs, domain.CashflowSent, time.Now().UTC(), updatedBy, domain.CashflowPending)
	if err != nil {
		return fmt.Errorf("failed to mark cashflows sent: %w", err)
	}
	if int(cmdTag.RowsAffected()) != len(cashflowIDs) {
		return apperrors.ErrNotFound
	}
	return nil
}

// attachPricingIDs populates PricingIDs on a slice of cashflows in place.
func (r *PgxCashflowRepository) attachPricingIDs(ctx context.Context, cashflows []domain.Cashflow) error {
	if len(cashflows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(cashflows))
	for _, c := range cashflows {
		ids = append(ids, c.CashflowID)
	}

	query := `
		SELECT cashflow_id, pricing_id
		FROM cashflow_pricings
		WHERE cashflow_id = ANY($1)
		ORDER BY cashflow_id, pricing_id;
	`
	rows, err := r.Pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to query cashflow pricing links: %w", err)
	}
	defer rows.Close()

	links := make(map[string][]string)
	for rows.Next() {
		var cashflowID, pricingID string
		if err := rows.Scan(&cashflowID, &pricingID); err != nil {
			return fmt.Errorf("failed to scan cashflow pricing link: %w", err)
		}
		links[cashflowID] = append(links[cashflowID], pricingID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating cashflow pricing links: %w", err)
	}

	for i := range cashflows {
		cashflows[i].PricingIDs = links[cashflows[i].CashflowID]
	}
	return nil
}
