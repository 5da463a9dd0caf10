package mapping

import (
	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/pass-culture/finance_backend/internal/dto"
)

// ToRuleResponse converts a domain CustomReimbursementRule to its API representation
func ToRuleResponse(d domain.CustomReimbursementRule) dto.RuleResponse {
	return dto.RuleResponse{
		RuleID:     d.RuleID,
		Kind:       string(d.Kind),
		OffererID:  d.OffererID,
		CategoryID: d.CategoryID,
		Amount:     d.Amount,
		Rate:       d.Rate,
		Start:      d.Timespan.Start,
		End:        d.Timespan.End,
		CreatedAt:  d.CreatedAt,
	}
}

// ToRuleResponseSlice converts a slice of domain CustomReimbursementRules
func ToRuleResponseSlice(ds []domain.CustomReimbursementRule) []dto.RuleResponse {
	responses := make([]dto.RuleResponse, len(ds))
	for i, d := range ds {
		responses[i] = ToRuleResponse(d)
	}
	return responses
}
