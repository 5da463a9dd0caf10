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
	"github.com/pass-culture/finance_backend/internal/utils/pagination"
)

type PgxInvoiceRepository struct {
	BaseRepository
}

func newPgxInvoiceRepository(pool *pgxpool.Pool) portsrepo.InvoiceRepositoryFacade {
	return &PgxInvoiceRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.InvoiceRepositoryFacade = (*PgxInvoiceRepository)(nil)

const invoiceColumns = `
	invoice_id, reference, reimbursement_point_id, amount, access_token, status,
	created_at, created_by, last_updated_at, last_updated_by`

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := row.Scan(
		&invoice.InvoiceID,
		&invoice.Reference,
		&invoice.ReimbursementPointID,
		&invoice.Amount,
		&invoice.AccessToken,
		&invoice.Status,
		&invoice.CreatedAt,
		&invoice.CreatedBy,
		&invoice.LastUpdatedAt,
		&invoice.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindInvoiceByID retrieves an invoice with its cashflow ids.
func (r *PgxInvoiceRepository) FindInvoiceByID(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_id = $1;`
	return r.findOne(ctx, query, invoiceID)
}

// FindInvoiceByToken retrieves an invoice through its durable access token.
func (r *PgxInvoiceRepository) FindInvoiceByToken(ctx context.Context, token string) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE access_token = $1;`
	return r.findOne(ctx, query, token)
}

func (r *PgxInvoiceRepository) findOne(ctx context.Context, query string, arg any) (*domain.Invoice, error) {
	invoice, err := scanInvoice(r.Pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find invoice: %w", err)
	}

	invoices := []domain.Invoice{*invoice}
	if err := r.attachCashflowIDs(ctx, invoices); err != nil {
		return nil, err
	}
	return &invoices[0], nil
}

// ListInvoicesByReimbursementPoint retrieves a page of invoices for a
// reimbursement point, newest first, using token-based pagination.
func (r *PgxInvoiceRepository) ListInvoicesByReimbursementPoint(ctx context.Context, reimbursementPointID string, limit int, nextToken *string) ([]domain.Invoice, *string, error) {
	fetchLimit := limit + 1

	var query string
	var args []any
	if nextToken != nil && *nextToken != "" {
		fields, err := pagination.DecodeMultiFieldToken(*nextToken)
		if err != nil || len(fields) != 2 {
			return nil, nil, fmt.Errorf("invalid pagination token: %w", apperrors.ErrValidation)
		}
		cursorCreatedAt, err := time.Parse(time.RFC3339Nano, fields[0])
		if err != nil {
			return nil, nil, fmt.Errorf("invalid pagination token: %w", apperrors.ErrValidation)
		}
		query = `
			SELECT ` + invoiceColumns + `
			FROM invoices
			WHERE reimbursement_point_id = $1
			  AND (created_at, invoice_id) < ($2, $3)
			ORDER BY created_at DESC, invoice_id DESC
			LIMIT $4;
		`
		args = []any{reimbursementPointID, cursorCreatedAt, fields[1], fetchLimit}
	} else {
		query = `
			SELECT ` + invoiceColumns + `
			FROM invoices
			WHERE reimbursement_point_id = $1
			ORDER BY created_at DESC, invoice_id DESC
			LIMIT $2;
		`
		args = []any{reimbursementPointID, fetchLimit}
	}

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query invoices for reimbursement point %s: %w", reimbursementPointID, err)
	}
	defer rows.Close()

	invoices := []domain.Invoice{}
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}
		invoices = append(invoices, *invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating invoice rows: %w", err)
	}

	var newNextToken *string
	if len(invoices) == fetchLimit {
		invoices = invoices[:limit]
		last := invoices[limit-1]
		token := pagination.EncodeMultiFieldToken(last.CreatedAt.Format(time.RFC3339Nano), last.InvoiceID)
		newNextToken = &token
	}

	if err := r.attachCashflowIDs(ctx, invoices); err != nil {
		return nil, nil, err
	}
	return invoices, newNextToken, nil
}

// NextReferenceSequence reserves the next invoice number for a year. The
// upsert keeps the counter row per year and is atomic under concurrency.
func (r *PgxInvoiceRepository) NextReferenceSequence(ctx context.Context, year int) (int64, error) {
	query := `
		INSERT INTO invoice_sequences (year, last_value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value;
	`
	var next int64
	if err := r.Pool.QueryRow(ctx, query, year).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to reserve invoice sequence for year %d: %w", year, err)
	}
	return next, nil
}

// SaveInvoice inserts the invoice, links its cashflows, stamps their
// invoice_id, and flips the cashflows' pricings PROCESSED -> INVOICED in one
// database transaction. A cashflow already claimed by another invoice makes
// the whole insert fail.
func (r *PgxInvoiceRepository) SaveInvoice(ctx context.Context, invoice domain.Invoice) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	invoiceQuery := `
		INSERT INTO invoices (invoice_id, reference, reimbursement_point_id, amount, access_token, status,
		                      created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err = tx.Exec(ctx, invoiceQuery,
		invoice.InvoiceID,
		invoice.Reference,
		invoice.ReimbursementPointID,
		invoice.Amount,
		invoice.AccessToken,
		invoice.Status,
		invoice.CreatedAt,
		invoice.CreatedBy,
		invoice.LastUpdatedAt,
		invoice.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return fmt.Errorf("failed to insert invoice %s: %w", invoice.InvoiceID, err)
	}

	batch := &pgx.Batch{}
	linkQuery := `INSERT INTO invoice_cashflows (invoice_id, cashflow_id) VALUES ($1, $2);`
	for _, cashflowID := range invoice.CashflowIDs {
		batch.Queue(linkQuery, invoice.InvoiceID, cashflowID)
	}
	br := tx.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return fmt.Errorf("failed to link cashflows to invoice %s: %w", invoice.InvoiceID, err)
	}

	// The invoice_id IS NULL guard makes rerunning invoice generation safe:
	// a cashflow carries at most one invoice, ever.
	stampQuery := `
		UPDATE cashflows
		SET invoice_id = $2, last_updated_at = $3, last_updated_by = $4
		WHERE cashflow_id = ANY($1) AND invoice_id IS NULL;
	`
	cmdTag, err := tx.Exec(ctx, stampQuery,
		invoice.CashflowIDs, invoice.InvoiceID,
		invoice.LastUpdatedAt, invoice.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to stamp cashflows for invoice %s: %w", invoice.InvoiceID, err)
	}
	if int(cmdTag.RowsAffected()) != len(invoice.CashflowIDs) {
		return fmt.Errorf("invoice %s: %d of %d cashflows were already invoiced: %w",
			invoice.InvoiceID, len(invoice.CashflowIDs)-int(cmdTag.RowsAffected()), len(invoice.CashflowIDs), apperrors.ErrDuplicate)
	}

	pricingQuery := `
		UPDATE pricings
		SET status = $2, last_updated_at = $3, last_updated_by = $4
		WHERE status = $5
		  AND pricing_id IN (
		      SELECT cp.pricing_id
		      FROM cashflow_pricings cp
		      WHERE cp.cashflow_id = ANY($1)
		  );
	`
	_, err = tx.Exec(ctx, pricingQuery,
		invoice.CashflowIDs, domain.PricingInvoiced,
		invoice.LastUpdatedAt, invoice.LastUpdatedBy,
		domain.PricingProcessed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark pricings invoiced for invoice %s: %w", invoice.InvoiceID, err)
	}

	return r.Commit(ctx, tx)
}

// MarkInvoicePaid transitions an invoice PENDING -> PAID with a
// compare-and-swap on the prior status.
func (r *PgxInvoiceRepository) MarkInvoicePaid(ctx context.Context, invoiceID string, updatedBy string, updatedAt time.Time) error {
	query := `
		UPDATE invoices
		SET status = $2, last_updated_at = $3, last_updated_by = $4
		WHERE invoice_id = $1 AND status = $5;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, invoiceID, domain.InvoicePaid, updatedAt, updatedBy, domain.InvoicePending)
	if err != nil {
		return fmt.Errorf("failed to mark invoice %s paid: %w", invoiceID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// attachCashflowIDs populates CashflowIDs on a slice of invoices in place.
func (r *PgxInvoiceRepository) attachCashflowIDs(ctx context.Context, invoices []domain.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.InvoiceID)
	}

	query := `
		SELECT invoice_id, cashflow_id
		FROM invoice_cashflows
		WHERE invoice_id = ANY($1)
		ORDER BY invoice_id, cashflow_id;
	`
	rows, err := r.Pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to query invoice cashflow links: %w", err)
	}
	defer rows.Close()

	links := make(map[string][]string)
	for rows.Next() {
		var invoiceID, cashflowID string
		if err := rows.Scan(&invoiceID, &cashflowID); err != nil {
			return fmt.Errorf("failed to scan invoice cashflow link: %w", err)
		}
		links[invoiceID] = append(links[invoiceID], cashflowID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating invoice cashflow links: %w", err)
	}

	for i := range invoices {
		invoices[i].CashflowIDs = links[invoices[i].InvoiceID]
	}
	return nil
}
