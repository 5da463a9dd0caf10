package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateRuleRequest creates a custom reimbursement rule. Exactly one of
// amount / rate must be set, matching the kind.
type CreateRuleRequest struct {
	Kind       string           `json:"kind" binding:"required,oneof=CUSTOM_AMOUNT CUSTOM_PERCENTAGE"`
	OffererID  string           `json:"offererID" binding:"required"`
	CategoryID *string          `json:"categoryID,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Rate       *decimal.Decimal `json:"rate,omitempty"`
	Start      time.Time        `json:"start" binding:"required"`
	End        *time.Time       `json:"end,omitempty"`
}

// TerminateRuleRequest closes a rule's validity timespan.
type TerminateRuleRequest struct {
	End time.Time `json:"end" binding:"required"`
}

// RuleResponse is the API representation of a custom reimbursement rule.
type RuleResponse struct {
	RuleID     string           `json:"ruleID"`
	Kind       string           `json:"kind"`
	OffererID  string           `json:"offererID"`
	CategoryID *string          `json:"categoryID,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Rate       *decimal.Decimal `json:"rate,omitempty"`
	Start      time.Time        `json:"start"`
	End        *time.Time       `json:"end,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// ListRulesResponse wraps a list of rules.
type ListRulesResponse struct {
	Rules []RuleResponse `json:"rules"`
}
