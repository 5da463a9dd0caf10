package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pass-culture/finance_backend/internal/apperrors"
	portssvc "github.com/pass-culture/finance_backend/internal/core/ports/services"
	"github.com/pass-culture/finance_backend/internal/core/services"
	"github.com/pass-culture/finance_backend/internal/dto"
	"github.com/pass-culture/finance_backend/internal/middleware"
	"github.com/pass-culture/finance_backend/internal/utils/mapping"
)

// invoiceHandler handles HTTP requests related to invoices.
type invoiceHandler struct {
	invoiceService portssvc.InvoiceSvcFacade
}

// newInvoiceHandler creates a new invoiceHandler.
func newInvoiceHandler(invoiceService portssvc.InvoiceSvcFacade) *invoiceHandler {
	return &invoiceHandler{
		invoiceService: invoiceService,
	}
}

// runInvoices godoc
// @Summary Run invoice generation for a batch
// @Description Creates one PENDING invoice per reimbursement point holding un-invoiced cashflows in the batch; re-running creates nothing new
// @Tags invoices
// @Accept  json
// @Produce  json
// @Param   request body dto.GenerateInvoicesRequest true "Batch ID"
// @Success 200 {object} dto.InvoiceGenerationSummary "Job summary"
// @Failure 400 {object} map[string]string "Invalid request format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Batch not found"
// @Failure 500 {object} map[string]string "Invoice generation failed"
// @Router /invoices/run [post]
func (h *invoiceHandler) runInvoices(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	req := dto.GenerateInvoicesRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for GenerateInvoices", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	summary, err := h.invoiceService.GenerateInvoices(c.Request.Context(), req.BatchID, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Batch not found for invoice generation", slog.String("batch_id", req.BatchID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		logger.Error("Invoice generation failed", slog.String("error", err.Error()), slog.String("batch_id", req.BatchID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invoice generation failed"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// getInvoice godoc
// @Summary Get an invoice
// @Tags invoices
// @Produce  json
// @Param   invoiceID path string true "Invoice ID"
// @Success 200 {object} dto.InvoiceResponse "The invoice"
// @Failure 404 {object} map[string]string "Invoice not found"
// @Failure 500 {object} map[string]string "Failed to retrieve invoice"
// @Router /invoices/{invoiceID} [get]
func (h *invoiceHandler) getInvoice(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	invoiceID := c.Param("invoiceID")

	invoice, err := h.invoiceService.GetInvoiceByID(c.Request.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Invoice not found", slog.String("invoice_id", invoiceID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		logger.Error("Failed to get invoice", slog.String("error", err.Error()), slog.String("invoice_id", invoiceID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve invoice"})
		return
	}

	c.JSON(http.StatusOK, mapping.ToInvoiceResponse(*invoice))
}

// listInvoices godoc
// @Summary List a reimbursement point's invoices
// @Description Retrieves a paginated invoice listing, newest first
// @Tags invoices
// @Produce  json
// @Param   reimbursementPointID query string true "Reimbursement Point ID"
// @Param   limit query int false "Page size (default 20, max 100)"
// @Param   nextToken query string false "Pagination token from a previous response"
// @Success 200 {object} dto.ListInvoicesResponse "A page of invoices"
// @Failure 400 {object} map[string]string "Missing reimbursementPointID or bad token"
// @Failure 500 {object} map[string]string "Failed to list invoices"
// @Router /invoices [get]
func (h *invoiceHandler) listInvoices(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	reimbursementPointID := c.Query("reimbursementPointID")
	if reimbursementPointID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reimbursementPointID query parameter is required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	var nextToken *string
	if token := c.Query("nextToken"); token != "" {
		nextToken = &token
	}

	invoices, newNextToken, err := h.invoiceService.ListInvoicesByReimbursementPoint(c.Request.Context(), reimbursementPointID, limit, nextToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to list invoices", slog.String("error", err.Error()), slog.String("reimbursement_point_id", reimbursementPointID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invoices"})
		return
	}

	c.JSON(http.StatusOK, dto.ListInvoicesResponse{
		Invoices:  mapping.ToInvoiceResponseSlice(invoices),
		NextToken: newNextToken,
	})
}

// markInvoicePaid godoc
// @Summary Mark an invoice as paid
// @Description Transitions the invoice PENDING to PAID; PAID is terminal and never reverts
// @Tags invoices
// @Produce  json
// @Param   invoiceID path string true "Invoice ID"
// @Success 204 "Invoice marked paid"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Invoice not found"
// @Failure 409 {object} map[string]string "Invoice already paid"
// @Failure 500 {object} map[string]string "Failed to mark invoice paid"
// @Router /invoices/{invoiceID}/paid [put]
func (h *invoiceHandler) markInvoicePaid(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	invoiceID := c.Param("invoiceID")

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.invoiceService.MarkInvoicePaid(c.Request.Context(), invoiceID, userID); err != nil {
		switch {
		case errors.Is(err, services.ErrInvoiceAlreadyPaid):
			logger.Warn("Invoice already paid", slog.String("invoice_id", invoiceID))
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrNotFound):
			logger.Warn("Invoice not found", slog.String("invoice_id", invoiceID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		default:
			logger.Error("Failed to mark invoice paid", slog.String("error", err.Error()), slog.String("invoice_id", invoiceID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark invoice paid"})
		}
		return
	}

	logger.Info("Invoice marked paid", slog.String("invoice_id", invoiceID))
	c.Status(http.StatusNoContent)
}

// getInvoiceByToken godoc
// @Summary Get an invoice through its access token
// @Description Durable, unauthenticated invoice access for offerers holding the token URL
// @Tags invoices
// @Produce  json
// @Param   token path string true "Access token"
// @Success 200 {object} dto.InvoiceResponse "The invoice"
// @Failure 404 {object} map[string]string "Invoice not found"
// @Failure 500 {object} map[string]string "Failed to retrieve invoice"
// @Router /invoices/token/{token} [get]
func (h *invoiceHandler) getInvoiceByToken(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	token := c.Param("token")

	invoice, err := h.invoiceService.GetInvoiceByToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Deliberately indistinguishable from an unknown invoice id.
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		logger.Error("Failed to get invoice by token", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve invoice"})
		return
	}

	c.JSON(http.StatusOK, mapping.ToInvoiceResponse(*invoice))
}

// registerInvoiceRoutes registers authenticated invoice routes
func registerInvoiceRoutes(group *gin.RouterGroup, invoiceService portssvc.InvoiceSvcFacade) {
	handler := newInvoiceHandler(invoiceService)

	invoices := group.Group("/invoices")
	{
		invoices.POST("/run", handler.runInvoices)
		invoices.GET("", handler.listInvoices)
		invoices.GET("/:invoiceID", handler.getInvoice)
		invoices.PUT("/:invoiceID/paid", handler.markInvoicePaid)
	}
}

// registerPublicInvoiceRoutes registers the token access route outside the
// authenticated group; the token itself is the credential.
func registerPublicInvoiceRoutes(r *gin.Engine, invoiceService portssvc.InvoiceSvcFacade) {
	handler := newInvoiceHandler(invoiceService)
	r.GET("/api/v1/invoices/token/:token", handler.getInvoiceByToken)
}
