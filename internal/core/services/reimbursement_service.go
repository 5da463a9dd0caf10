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
)

var (
	ErrAmbiguousRule      = errors.New("multiple reimbursement rules match at equal specificity")
	ErrRuleShapeInvalid   = errors.New("rule must carry exactly the value its kind requires")
	ErrRuleRateOutOfRange = errors.New("rule rate must be within [0, 1]")
	ErrRuleOverlap        = errors.New("rule timespan overlaps an existing rule at the same specificity")
	ErrRuleTimespan       = errors.New("rule timespan end must be after its start")
)

// reimbursementService administers custom reimbursement rules and resolves
// the rule applicable to a booking.
type reimbursementService struct {
	ruleRepo  portsrepo.ReimbursementRuleRepositoryFacade
	rateTable domain.StandardRateTable
}

// NewReimbursementService creates a new ReimbursementService. The standard
// rate table is injected explicitly so that correctness-critical state never
// lives in a process-wide singleton.
func NewReimbursementService(ruleRepo portsrepo.ReimbursementRuleRepositoryFacade, rateTable domain.StandardRateTable) portssvc.ReimbursementSvcFacade {
	return &reimbursementService{
		ruleRepo:  ruleRepo,
		rateTable: rateTable,
	}
}

var _ portssvc.ReimbursementSvcFacade = (*reimbursementService)(nil)

// ResolveForBooking returns the reimbursed amount for a booking and the rule
// that produced it. Custom rules win over the standard table; among custom
// rules the most specific scope wins; two matches at equal specificity are a
// data integrity violation and fail loudly.
func (s *reimbursementService) ResolveForBooking(ctx context.Context, booking domain.Booking, cumulativeRevenue decimal.Decimal) (decimal.Decimal, domain.RuleReference, error) {
	rules, err := s.ruleRepo.ListApplicableRules(ctx, booking.OffererID, booking.CategoryID, booking.UsedDate())
	if err != nil {
		return decimal.Zero, domain.RuleReference{}, fmt.Errorf("failed to list applicable rules for offerer %s: %w", booking.OffererID, err)
	}

	best, err := pickMostSpecific(rules)
	if err != nil {
		return decimal.Zero, domain.RuleReference{}, fmt.Errorf("offerer %s, category %s: %w", booking.OffererID, booking.CategoryID, err)
	}

	var amount decimal.Decimal
	var ref domain.RuleReference
	if best != nil {
		amount = best.ReimbursedAmount(booking.Price)
		ref = domain.RuleReference{Kind: best.Kind, RuleID: best.RuleID}
	} else {
		amount = s.rateTable.ReimbursedAmount(booking.Price, cumulativeRevenue)
		ref = domain.RuleReference{Kind: domain.RuleStandardRate}
	}

	// The reimbursed amount must land inside [0, price]; anything else means
	// a mis-configured rule and must not be silently clamped.
	if amount.IsNegative() || amount.GreaterThan(booking.Price) {
		return decimal.Zero, domain.RuleReference{}, fmt.Errorf("%w: rule %s yields %s for price %s",
			apperrors.ErrValidation, ref.RuleID, amount.String(), booking.Price.String())
	}
	return amount, ref, nil
}

// pickMostSpecific returns the single most specific rule, nil when none
// apply, or ErrAmbiguousRule when specificity cannot break the tie.
func pickMostSpecific(rules []domain.CustomReimbursementRule) (*domain.CustomReimbursementRule, error) {
	var best *domain.CustomReimbursementRule
	ambiguous := false
	for i := range rules {
		rule := &rules[i]
		if best == nil || rule.Specificity() > best.Specificity() {
			best = rule
			ambiguous = false
			continue
		}
		if rule.Specificity() == best.Specificity() {
			ambiguous = true
		}
	}
	if ambiguous {
		return nil, fmt.Errorf("%w: %d candidates", ErrAmbiguousRule, len(rules))
	}
	return best, nil
}

// CreateRule persists a custom rule after validating its shape and checking
// that no existing rule overlaps it at the same specificity.
func (s *reimbursementService) CreateRule(ctx context.Context, req dto.CreateRuleRequest, creatorUserID string) (*domain.CustomReimbursementRule, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	rule := domain.CustomReimbursementRule{
		RuleID:     uuid.NewString(),
		Kind:       domain.RuleKind(req.Kind),
		OffererID:  req.OffererID,
		CategoryID: req.CategoryID,
		Amount:     req.Amount,
		Rate:       req.Rate,
		Timespan:   domain.Timespan{Start: req.Start, End: req.End},
	}
	if err := validateRuleShape(rule); err != nil {
		return nil, err
	}

	// Overlap check: a new rule may not share any instant with an existing
	// rule of the same scope, otherwise the resolver would have to fail
	// loudly later. Checked here by construction, enforced again at resolve.
	existing, err := s.ruleRepo.ListRulesByOfferer(ctx, req.OffererID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for offerer %s: %w", req.OffererID, err)
	}
	for _, other := range existing {
		if other.Specificity() != rule.Specificity() {
			continue
		}
		if rule.Specificity() == domain.SpecificityOffererCategory && *other.CategoryID != *rule.CategoryID {
			continue
		}
		if other.Timespan.Overlaps(rule.Timespan) {
			return nil, fmt.Errorf("%w: existing rule %s", ErrRuleOverlap, other.RuleID)
		}
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.CreatedBy = creatorUserID
	rule.LastUpdatedAt = now
	rule.LastUpdatedBy = creatorUserID

	if err := s.ruleRepo.SaveRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	logger.Info("Custom reimbursement rule created",
		slog.String("rule_id", rule.RuleID),
		slog.String("offerer_id", rule.OffererID),
		slog.String("kind", string(rule.Kind)),
	)
	return &rule, nil
}

func validateRuleShape(rule domain.CustomReimbursementRule) error {
	if rule.Timespan.End != nil && !rule.Timespan.End.After(rule.Timespan.Start) {
		return ErrRuleTimespan
	}
	switch rule.Kind {
	case domain.RuleCustomAmount:
		if rule.Amount == nil || rule.Rate != nil {
			return ErrRuleShapeInvalid
		}
		if rule.Amount.IsNegative() {
			return fmt.Errorf("%w: amount must not be negative", apperrors.ErrValidation)
		}
	case domain.RuleCustomPercentage:
		if rule.Rate == nil || rule.Amount != nil {
			return ErrRuleShapeInvalid
		}
		if rule.Rate.IsNegative() || rule.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return ErrRuleRateOutOfRange
		}
	default:
		return fmt.Errorf("%w: unknown rule kind %s", apperrors.ErrValidation, rule.Kind)
	}
	return nil
}

// ListRulesByOfferer retrieves every custom rule of an offerer.
func (s *reimbursementService) ListRulesByOfferer(ctx context.Context, offererID string) ([]domain.CustomReimbursementRule, error) {
	rules, err := s.ruleRepo.ListRulesByOfferer(ctx, offererID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for offerer %s: %w", offererID, err)
	}
	return rules, nil
}

// TerminateRule closes a rule's validity timespan.
func (s *reimbursementService) TerminateRule(ctx context.Context, ruleID string, req dto.TerminateRuleRequest, updaterUserID string) error {
	rule, err := s.ruleRepo.FindRuleByID(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("failed to find rule %s: %w", ruleID, err)
	}
	if !req.End.After(rule.Timespan.Start) {
		return ErrRuleTimespan
	}
	if rule.Timespan.End != nil && req.End.After(*rule.Timespan.End) {
		return fmt.Errorf("%w: rule already ends earlier", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	if err := s.ruleRepo.TerminateRule(ctx, ruleID, req.End, updaterUserID, now); err != nil {
		return fmt.Errorf("failed to terminate rule %s: %w", ruleID, err)
	}
	return nil
}
