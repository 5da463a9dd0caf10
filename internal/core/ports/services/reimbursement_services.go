package services

import (
	"context"

	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/pass-culture/finance_backend/internal/dto"
	"github.com/shopspring/decimal"
)

// RuleResolverSvc resolves the reimbursement rule applicable to one booking.
type RuleResolverSvc interface {
	// ResolveForBooking returns the reimbursed amount and the rule that
	// produced it. cumulativeRevenue is the pricing point's yearly revenue
	// before this booking, used by the standard step table. Two custom rules
	// matching at equal specificity fail with ErrAmbiguousRule.
	ResolveForBooking(ctx context.Context, booking domain.Booking, cumulativeRevenue decimal.Decimal) (decimal.Decimal, domain.RuleReference, error)
}

// RuleReaderSvc defines read operations for custom rules.
type RuleReaderSvc interface {
	// ListRulesByOfferer retrieves every custom rule of an offerer.
	ListRulesByOfferer(ctx context.Context, offererID string) ([]domain.CustomReimbursementRule, error)
}

// RuleWriterSvc defines write operations for custom rules.
type RuleWriterSvc interface {
	// CreateRule persists a custom rule after validating its shape and that
	// it does not overlap an existing rule at the same specificity.
	CreateRule(ctx context.Context, req dto.CreateRuleRequest, creatorUserID string) (*domain.CustomReimbursementRule, error)

	// TerminateRule closes a rule's validity timespan.
	TerminateRule(ctx context.Context, ruleID string, req dto.TerminateRuleRequest, updaterUserID string) error
}

// ReimbursementSvcFacade combines rule resolution and administration.
type ReimbursementSvcFacade interface {
	RuleResolverSvc
	RuleReaderSvc
	RuleWriterSvc
}
