package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pass-culture/finance_backend/internal/apperrors"
	"github.com/pass-culture/finance_backend/internal/core/domain"
	portsrepo "github.com/pass-culture/finance_backend/internal/core/ports/repositories"
	portssvc "github.com/pass-culture/finance_backend/internal/core/ports/services"
	"github.com/pass-culture/finance_backend/internal/dto"
	"github.com/pass-culture/finance_backend/internal/middleware"
	"github.com/pass-culture/finance_backend/internal/utils"
)

var ErrInvoiceAlreadyPaid = errors.New("invoice is already paid")

// invoiceTokenBytes sizes the invoice access token (hex doubles the length).
const invoiceTokenBytes = 32

// defaultInvoiceRefPrefix leads invoice references when none is configured.
const defaultInvoiceRefPrefix = "F"

// invoiceService generates invoices from closed cashflow batches and drives
// the PENDING -> PAID transition.
type invoiceService struct {
	cashflowRepo portsrepo.CashflowRepositoryFacade
	invoiceRepo  portsrepo.InvoiceRepositoryFacade
	refPrefix    string
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(cashflowRepo portsrepo.CashflowRepositoryFacade, invoiceRepo portsrepo.InvoiceRepositoryFacade, refPrefix string) portssvc.InvoiceSvcFacade {
	if refPrefix == "" {
		refPrefix = defaultInvoiceRefPrefix
	}
	return &invoiceService{
		cashflowRepo: cashflowRepo,
		invoiceRepo:  invoiceRepo,
		refPrefix:    refPrefix,
	}
}

var _ portssvc.InvoiceSvcFacade = (*invoiceService)(nil)

// GenerateInvoices creates one PENDING invoice per reimbursement point with
// un-invoiced cashflows in the batch. Cashflows already carrying an invoice
// are counted and skipped, which makes re-running the job a no-op. Cashflows
// without a reimbursement point are skipped, surfaced in the summary, and
// stay eligible for the next run.
func (s *invoiceService) GenerateInvoices(ctx context.Context, batchID string, userID string) (*dto.InvoiceGenerationSummary, error) {
	logger := middleware.GetLoggerFromCtx(ctx)
	now := time.Now().UTC()

	if _, err := s.cashflowRepo.FindBatchByID(ctx, batchID); err != nil {
		return nil, fmt.Errorf("failed to find cashflow batch %s: %w", batchID, err)
	}

	cashflows, err := s.cashflowRepo.ListCashflowsByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cashflows for batch %s: %w", batchID, err)
	}

	summary := &dto.InvoiceGenerationSummary{}

	// Group the batch's eligible cashflows per reimbursement point.
	byPoint := make(map[string][]domain.Cashflow)
	for _, cashflow := range cashflows {
		if cashflow.InvoiceID != nil {
			summary.AlreadyInvoiced++
			continue
		}
		if cashflow.ReimbursementPointID == "" {
			summary.SkippedCashflows = append(summary.SkippedCashflows, dto.SkippedCashflow{
				CashflowID: cashflow.CashflowID,
				Reason:     "no reimbursement point configured",
			})
			continue
		}
		byPoint[cashflow.ReimbursementPointID] = append(byPoint[cashflow.ReimbursementPointID], cashflow)
	}

	for point, pointCashflows := range byPoint {
		invoice, err := s.createInvoice(ctx, point, pointCashflows, userID, now)
		if err != nil {
			logger.Error("Failed to generate invoice",
				slog.String("reimbursement_point_id", point),
				slog.String("batch_id", batchID),
				slog.String("error", err.Error()),
			)
			for _, cashflow := range pointCashflows {
				summary.SkippedCashflows = append(summary.SkippedCashflows, dto.SkippedCashflow{
					CashflowID: cashflow.CashflowID,
					Reason:     err.Error(),
				})
			}
			continue
		}
		summary.CreatedCount++
		summary.Invoices = append(summary.Invoices, dto.InvoiceResponse{
			InvoiceID:            invoice.InvoiceID,
			Reference:            invoice.Reference,
			ReimbursementPointID: invoice.ReimbursementPointID,
			Amount:               invoice.Amount,
			Status:               string(invoice.Status),
			URL:                  InvoiceURL(invoice.AccessToken),
			CashflowIDs:          invoice.CashflowIDs,
			CreatedAt:            invoice.CreatedAt,
		})
	}

	logger.Info("Invoice generation finished",
		slog.String("batch_id", batchID),
		slog.Int("created", summary.CreatedCount),
		slog.Int("already_invoiced", summary.AlreadyInvoiced),
		slog.Int("skipped", len(summary.SkippedCashflows)),
	)
	return summary, nil
}

func (s *invoiceService) createInvoice(ctx context.Context, point string, cashflows []domain.Cashflow, userID string, now time.Time) (*domain.Invoice, error) {
	seq, err := s.invoiceRepo.NextReferenceSequence(ctx, now.Year())
	if err != nil {
		return nil, fmt.Errorf("failed to reserve invoice reference: %w", err)
	}
	token, err := utils.GenerateSecureRandomString(invoiceTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate invoice token: %w", err)
	}

	amount := decimal.Zero
	ids := make([]string, 0, len(cashflows))
	for _, cashflow := range cashflows {
		amount = amount.Add(cashflow.Amount)
		ids = append(ids, cashflow.CashflowID)
	}

	invoice := domain.Invoice{
		InvoiceID:            uuid.NewString(),
		Reference:            domain.InvoiceReference(s.refPrefix, now.Year(), seq),
		ReimbursementPointID: point,
		Amount:               amount,
		AccessToken:          token,
		Status:               domain.InvoicePending,
		CashflowIDs:          ids,
	}
	invoice.CreatedAt = now
	invoice.CreatedBy = userID
	invoice.LastUpdatedAt = now
	invoice.LastUpdatedBy = userID

	// SaveInvoice links the cashflows and flips their pricings PROCESSED ->
	// INVOICED in the same database transaction.
	if err := s.invoiceRepo.SaveInvoice(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to save invoice for reimbursement point %s: %w", point, err)
	}
	return &invoice, nil
}

// MarkInvoicePaid transitions an invoice PENDING -> PAID. The update is a
// compare-and-swap on the status column; PAID never reverts.
func (s *invoiceService) MarkInvoicePaid(ctx context.Context, invoiceID string, userID string) error {
	invoice, err := s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to find invoice %s: %w", invoiceID, err)
	}
	if invoice.Status == domain.InvoicePaid {
		return fmt.Errorf("invoice %s: %w", invoiceID, ErrInvoiceAlreadyPaid)
	}

	now := time.Now().UTC()
	if err := s.invoiceRepo.MarkInvoicePaid(ctx, invoiceID, userID, now); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Lost the race against another confirmation; the invoice is paid.
			return fmt.Errorf("invoice %s: %w", invoiceID, ErrInvoiceAlreadyPaid)
		}
		return fmt.Errorf("failed to mark invoice %s paid: %w", invoiceID, err)
	}

	middleware.GetLoggerFromCtx(ctx).Info("Invoice paid", slog.String("invoice_id", invoiceID))
	return nil
}

// GetInvoiceByID retrieves an invoice.
func (s *invoiceService) GetInvoiceByID(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice %s: %w", invoiceID, err)
	}
	return invoice, nil
}

// GetInvoiceByToken retrieves an invoice through its durable access token.
func (s *invoiceService) GetInvoiceByToken(ctx context.Context, token string) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.FindInvoiceByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice by token: %w", err)
	}
	return invoice, nil
}

// ListInvoicesByReimbursementPoint retrieves a paginated invoice listing.
func (s *invoiceService) ListInvoicesByReimbursementPoint(ctx context.Context, reimbursementPointID string, limit int, nextToken *string) ([]domain.Invoice, *string, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	invoices, token, err := s.invoiceRepo.ListInvoicesByReimbursementPoint(ctx, reimbursementPointID, limit, nextToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list invoices for reimbursement point %s: %w", reimbursementPointID, err)
	}
	return invoices, token, nil
}

// InvoiceURL builds the durable access URL path for an invoice token.
func InvoiceURL(token string) string {
	return "/api/v1/invoices/token/" + token
}
