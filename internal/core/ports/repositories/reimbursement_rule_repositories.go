package repositories

import (
	"context"
	"time"

	"github.com/pass-culture/finance_backend/internal/core/domain"
)

// ReimbursementRuleReader defines read operations for custom reimbursement rules.
type ReimbursementRuleReader interface {
	// FindRuleByID retrieves a rule by its identifier.
	FindRuleByID(ctx context.Context, ruleID string) (*domain.CustomReimbursementRule, error)

	// ListRulesByOfferer retrieves every rule scoped to an offerer, category
	// rules included, ordered by timespan start.
	ListRulesByOfferer(ctx context.Context, offererID string) ([]domain.CustomReimbursementRule, error)

	// ListApplicableRules retrieves the rules whose scope matches the offerer
	// and category and whose timespan contains the booking date. Specificity
	// ranking is the resolver's job, not the query's.
	ListApplicableRules(ctx context.Context, offererID, categoryID string, bookingDate time.Time) ([]domain.CustomReimbursementRule, error)
}

// ReimbursementRuleWriter defines write operations for custom reimbursement rules.
type ReimbursementRuleWriter interface {
	// SaveRule persists a new custom rule.
	SaveRule(ctx context.Context, rule domain.CustomReimbursementRule) error

	// TerminateRule closes a rule's timespan at the given instant.
	TerminateRule(ctx context.Context, ruleID string, end time.Time, updatedBy string, updatedAt time.Time) error
}

// ReimbursementRuleRepositoryFacade combines rule repository interfaces.
type ReimbursementRuleRepositoryFacade interface {
	ReimbursementRuleReader
	ReimbursementRuleWriter
}
