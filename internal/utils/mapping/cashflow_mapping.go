package mapping

import (
	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/pass-culture/finance_backend/internal/dto"
)

// ToCashflowResponse converts a domain Cashflow to its API representation
func ToCashflowResponse(d domain.Cashflow) dto.CashflowResponse {
	return dto.CashflowResponse{
		CashflowID:           d.CashflowID,
		BatchID:              d.BatchID,
		ReimbursementPointID: d.ReimbursementPointID,
		Amount:               d.Amount,
		Status:               string(d.Status),
		InvoiceID:            d.InvoiceID,
		PricingIDs:           d.PricingIDs,
	}
}

// ToCashflowResponseSlice converts a slice of domain Cashflows
func ToCashflowResponseSlice(ds []domain.Cashflow) []dto.CashflowResponse {
	responses := make([]dto.CashflowResponse, len(ds))
	for i, d := range ds {
		responses[i] = ToCashflowResponse(d)
	}
	return responses
}

// ToCashflowBatchResponse converts a domain CashflowBatch, optionally with its
// cashflows, to its API representation
func ToCashflowBatchResponse(d domain.CashflowBatch, cashflows []domain.Cashflow) dto.CashflowBatchResponse {
	resp := dto.CashflowBatchResponse{
		BatchID:    d.BatchID,
		Label:      d.Label,
		CutoffDate: d.CutoffDate,
		CreatedAt:  d.CreatedAt,
	}
	if len(cashflows) > 0 {
		resp.Cashflows = ToCashflowResponseSlice(cashflows)
	}
	return resp
}
