package mapping

import (
	"github.com/pass-culture/finance_backend/internal/core/domain"
	"github.com/pass-culture/finance_backend/internal/dto"
)

// ToInvoiceResponse converts a domain Invoice to its API representation. The
// URL field is left empty; only creation-time responses expose the token URL.
func ToInvoiceResponse(d domain.Invoice) dto.InvoiceResponse {
	return dto.InvoiceResponse{
		InvoiceID:            d.InvoiceID,
		Reference:            d.Reference,
		ReimbursementPointID: d.ReimbursementPointID,
		Amount:               d.Amount,
		Status:               string(d.Status),
		CashflowIDs:          d.CashflowIDs,
		CreatedAt:            d.CreatedAt,
	}
}

// ToInvoiceResponseSlice converts a slice of domain Invoices
func ToInvoiceResponseSlice(ds []domain.Invoice) []dto.InvoiceResponse {
	responses := make([]dto.InvoiceResponse, len(ds))
	for i, d := range ds {
		responses[i] = ToInvoiceResponse(d)
	}
	return responses
}
