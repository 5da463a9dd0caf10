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

// cashflowHandler handles HTTP requests related to cashflow batches.
type cashflowHandler struct {
	cashflowService portssvc.CashflowSvcFacade
}

// newCashflowHandler creates a new cashflowHandler.
func newCashflowHandler(cashflowService portssvc.CashflowSvcFacade) *cashflowHandler {
	return &cashflowHandler{
		cashflowService: cashflowService,
	}
}

// runCashflows godoc
// @Summary Run the cashflow aggregation job
// @Description Creates a new batch and one cashflow per reimbursement point from the VALIDATED pricings up to the cutoff
// @Tags cashflows
// @Accept  json
// @Produce  json
// @Param   request body dto.GenerateCashflowsRequest true "Cutoff date"
// @Success 200 {object} dto.CashflowGenerationSummary "Job summary"
// @Failure 400 {object} map[string]string "Invalid request format or cutoff in the future"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 409 {object} map[string]string "A batch for this period already exists"
// @Failure 500 {object} map[string]string "Cashflow generation failed"
// @Router /cashflows/run [post]
func (h *cashflowHandler) runCashflows(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	req := dto.GenerateCashflowsRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for GenerateCashflows", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	summary, err := h.cashflowService.GenerateCashflows(c.Request.Context(), req.CutoffDate, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCutoffInFuture):
			logger.Warn("Cashflow cutoff in the future")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrDuplicate):
			logger.Warn("Concurrent cashflow generation detected")
			c.JSON(http.StatusConflict, gin.H{"error": "A cashflow batch is already being generated"})
		default:
			logger.Error("Cashflow generation failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Cashflow generation failed"})
		}
		return
	}

	c.JSON(http.StatusOK, summary)
}

// listBatches godoc
// @Summary List cashflow batches
// @Description Retrieves recent batches, newest first
// @Tags cashflows
// @Produce  json
// @Param   limit query int false "Page size (default 20, max 100)"
// @Success 200 {object} dto.ListBatchesResponse "Recent batches"
// @Failure 500 {object} map[string]string "Failed to list batches"
// @Router /cashflow-batches [get]
func (h *cashflowHandler) listBatches(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	batches, err := h.cashflowService.ListBatches(c.Request.Context(), limit)
	if err != nil {
		logger.Error("Failed to list cashflow batches", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list batches"})
		return
	}

	resp := dto.ListBatchesResponse{Batches: make([]dto.CashflowBatchResponse, len(batches))}
	for i, batch := range batches {
		resp.Batches[i] = mapping.ToCashflowBatchResponse(batch, nil)
	}
	c.JSON(http.StatusOK, resp)
}

// getBatch godoc
// @Summary Get a cashflow batch
// @Description Retrieves a batch with its cashflows and their pricing links
// @Tags cashflows
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Success 200 {object} dto.CashflowBatchResponse "The batch"
// @Failure 404 {object} map[string]string "Batch not found"
// @Failure 500 {object} map[string]string "Failed to retrieve batch"
// @Router /cashflow-batches/{batchID} [get]
func (h *cashflowHandler) getBatch(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	batchID := c.Param("batchID")

	batch, cashflows, err := h.cashflowService.GetBatchByID(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Cashflow batch not found", slog.String("batch_id", batchID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		logger.Error("Failed to get cashflow batch", slog.String("error", err.Error()), slog.String("batch_id", batchID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve batch"})
		return
	}

	c.JSON(http.StatusOK, mapping.ToCashflowBatchResponse(*batch, cashflows))
}

// markBatchSent godoc
// @Summary Mark a cashflow batch as sent
// @Description Transitions every PENDING cashflow of the batch to SENT once the bank transfer file was handed over
// @Tags cashflows
// @Produce  json
// @Param   batchID path string true "Batch ID"
// @Success 204 "Batch marked sent"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Batch not found"
// @Failure 500 {object} map[string]string "Failed to mark batch sent"
// @Router /cashflow-batches/{batchID}/sent [put]
func (h *cashflowHandler) markBatchSent(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	batchID := c.Param("batchID")

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.cashflowService.MarkBatchSent(c.Request.Context(), batchID, userID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Cashflow batch not found", slog.String("batch_id", batchID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		logger.Error("Failed to mark batch sent", slog.String("error", err.Error()), slog.String("batch_id", batchID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark batch sent"})
		return
	}

	c.Status(http.StatusNoContent)
}

// registerCashflowRoutes registers cashflow batch routes
func registerCashflowRoutes(group *gin.RouterGroup, cashflowService portssvc.CashflowSvcFacade) {
	handler := newCashflowHandler(cashflowService)

	group.POST("/cashflows/run", handler.runCashflows)

	batches := group.Group("/cashflow-batches")
	{
		batches.GET("", handler.listBatches)
		batches.GET("/:batchID", handler.getBatch)
		batches.PUT("/:batchID/sent", handler.markBatchSent)
	}
}
