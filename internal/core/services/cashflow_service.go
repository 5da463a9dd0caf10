package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	portsrepo "github.com/pass-culture/finance_backend/internal/core/ports/repositories"
	portssvc "github.com/pass-culture/finance_backend/internal/core/ports/services"
	"github.com/pass-culture/finance_backend/internal/dto"
	"github.com/pass-culture/finance_backend/internal/middleware"
)

var ErrCutoffInFuture = errors.New("cashflow cutoff date must not be in the future")

// defaultCutoffPeriod is the lookback used when a run gives no cutoff date.
const defaultCutoffPeriod = 15 * 24 * time.Hour

// cashflowService runs the periodic aggregation job: it folds validated
// pricings into one cashflow per reimbursement point under a fresh batch.
type cashflowService struct {
	pricingRepo  portsrepo.PricingRepositoryFacade
	cashflowRepo portsrepo.CashflowRepositoryFacade
	cutoffPeriod time.Duration
}

// NewCashflowService creates a new CashflowService.
func NewCashflowService(pricingRepo portsrepo.PricingRepositoryFacade, cashflowRepo portsrepo.CashflowRepositoryFacade, cutoffPeriod time.Duration) portssvc.CashflowSvcFacade {
	if cutoffPeriod <= 0 {
		cutoffPeriod = defaultCutoffPeriod
	}
	return &cashflowService{
		pricingRepo:  pricingRepo,
		cashflowRepo: cashflowRepo,
		cutoffPeriod: cutoffPeriod,
	}
}

var _ portssvc.CashflowSvcFacade = (*cashflowService)(nil)

// GenerateCashflows creates the batch first (its unique monotonic label
// serializes concurrent runs), then one cashflow per reimbursement point.
// A reimbursement point whose pricings fail validation is skipped and
// reported; the other points proceed independently.
func (s *cashflowService) GenerateCashflows(ctx context.Context, cutoff time.Time, userID string) (*dto.CashflowGenerationSummary, error) {
	logger := middleware.GetLoggerFromCtx(ctx)
	now := time.Now().UTC()

	if cutoff.IsZero() {
		cutoff = now.Add(-s.cutoffPeriod)
	}
	if cutoff.After(now) {
		return nil, ErrCutoffInFuture
	}

	batch := domain.CashflowBatch{
		BatchID:    uuid.NewString(),
		CutoffDate: cutoff,
	}
	batch.CreatedAt = now
	batch.CreatedBy = userID
	batch.LastUpdatedAt = now
	batch.LastUpdatedBy = userID

	// The repository assigns the next label; the unique constraint makes a
	// concurrent duplicate run fail here, before anything is aggregated.
	created, err := s.cashflowRepo.CreateBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to create cashflow batch: %w", err)
	}

	byPoint, err := s.pricingRepo.ListValidatedPricingsUntil(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list validated pricings: %w", err)
	}

	summary := &dto.CashflowGenerationSummary{
		BatchID:     created.BatchID,
		Label:       created.Label,
		TotalAmount: decimal.Zero,
	}

	// Deterministic point order so repeated runs and their exports line up.
	points := make([]string, 0, len(byPoint))
	for point := range byPoint {
		points = append(points, point)
	}
	sort.Strings(points)

	for _, point := range points {
		pricings := byPoint[point]
		amount, err := s.buildCashflowAmount(ctx, pricings, userID, now)
		if err != nil {
			logger.Error("Cashflow creation aborted for reimbursement point",
				slog.String("reimbursement_point_id", point),
				slog.String("batch_label", created.Label),
				slog.String("error", err.Error()),
			)
			summary.FailedPoints = append(summary.FailedPoints, dto.PointFailure{
				ReimbursementPointID: point,
				Reason:               err.Error(),
			})
			continue
		}

		cashflow := domain.Cashflow{
			CashflowID:           uuid.NewString(),
			BatchID:              created.BatchID,
			ReimbursementPointID: point,
			Amount:               amount,
			Status:               domain.CashflowPending,
			PricingIDs:           pricingIDs(pricings),
		}
		cashflow.CreatedAt = now
		cashflow.CreatedBy = userID
		cashflow.LastUpdatedAt = now
		cashflow.LastUpdatedBy = userID

		// SaveCashflow flips the pricings VALIDATED -> PROCESSED in the same
		// database transaction; a pricing already claimed by another batch
		// makes the whole insert fail rather than double-count.
		if err := s.cashflowRepo.SaveCashflow(ctx, cashflow); err != nil {
			logger.Error("Failed to save cashflow",
				slog.String("reimbursement_point_id", point),
				slog.String("error", err.Error()),
			)
			summary.FailedPoints = append(summary.FailedPoints, dto.PointFailure{
				ReimbursementPointID: point,
				Reason:               err.Error(),
			})
			continue
		}

		summary.CashflowCount++
		summary.TotalAmount = summary.TotalAmount.Add(amount)
	}

	logger.Info("Cashflow generation finished",
		slog.String("batch_label", created.Label),
		slog.Int("cashflows", summary.CashflowCount),
		slog.Int("failed_points", len(summary.FailedPoints)),
	)
	return summary, nil
}

// buildCashflowAmount validates every pricing of a reimbursement point and
// sums their nets in ascending pricing id order. A line-sum violation marks
// the offending pricing REJECTED and aborts the whole point.
func (s *cashflowService) buildCashflowAmount(ctx context.Context, pricings []domain.Pricing, userID string, now time.Time) (decimal.Decimal, error) {
	sort.Slice(pricings, func(i, j int) bool {
		return pricings[i].PricingID < pricings[j].PricingID
	})

	amount := decimal.Zero
	for i := range pricings {
		pricing := &pricings[i]
		if err := pricing.ValidateLines(); err != nil {
			// Never auto-corrected: the pricing is parked REJECTED with full
			// context logged and stays out of aggregation until fixed.
			if markErr := s.pricingRepo.UpdatePricingStatus(ctx, pricing.PricingID, domain.PricingValidated, domain.PricingRejected, userID, now); markErr != nil {
				return decimal.Zero, fmt.Errorf("line-sum violation on pricing %s (also failed to mark rejected: %v): %w", pricing.PricingID, markErr, err)
			}
			return decimal.Zero, err
		}
		amount = amount.Add(pricing.NetAmount())
	}
	return amount, nil
}

func pricingIDs(pricings []domain.Pricing) []string {
	ids := make([]string, 0, len(pricings))
	for _, p := range pricings {
		ids = append(ids, p.PricingID)
	}
	return ids
}

// MarkBatchSent transitions every PENDING cashflow of a batch to SENT.
func (s *cashflowService) MarkBatchSent(ctx context.Context, batchID string, userID string) error {
	cashflows, err := s.cashflowRepo.ListCashflowsByBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to list cashflows for batch %s: %w", batchID, err)
	}

	pending := make([]string, 0, len(cashflows))
	for _, cashflow := range cashflows {
		if cashflow.Status == domain.CashflowPending {
			pending = append(pending, cashflow.CashflowID)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	if err := s.cashflowRepo.MarkCashflowsSent(ctx, pending, userID); err != nil {
		return fmt.Errorf("failed to mark cashflows of batch %s sent: %w", batchID, err)
	}
	middleware.GetLoggerFromCtx(ctx).Info("Cashflow batch marked sent",
		slog.String("batch_id", batchID),
		slog.Int("cashflows", len(pending)),
	)
	return nil
}

// GetBatchByID retrieves a batch and its cashflows.
func (s *cashflowService) GetBatchByID(ctx context.Context, batchID string) (*domain.CashflowBatch, []domain.Cashflow, error) {
	batch, err := s.cashflowRepo.FindBatchByID(ctx, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find cashflow batch %s: %w", batchID, err)
	}
	cashflows, err := s.cashflowRepo.ListCashflowsByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list cashflows for batch %s: %w", batchID, err)
	}
	return batch, cashflows, nil
}

// ListBatches retrieves recent batches, newest first.
func (s *cashflowService) ListBatches(ctx context.Context, limit int) ([]domain.CashflowBatch, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	batches, err := s.cashflowRepo.ListBatches(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cashflow batches: %w", err)
	}
	return batches, nil
}
