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

// pricingHandler handles HTTP requests related to pricings.
type pricingHandler struct {
	pricingService portssvc.PricingSvcFacade
}

// newPricingHandler creates a new pricingHandler.
func newPricingHandler(pricingService portssvc.PricingSvcFacade) *pricingHandler {
	return &pricingHandler{
		pricingService: pricingService,
	}
}

// runPricing godoc
// @Summary Run the pricing job
// @Description Prices every READY finance event with a known pricing point, in ascending event order; individual failures are reported, not fatal
// @Tags pricings
// @Produce  json
// @Success 200 {object} dto.PriceEventsSummary "Job summary"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Pricing job failed"
// @Router /pricings/run [post]
func (h *pricingHandler) runPricing(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	summary, err := h.pricingService.PriceReadyEvents(c.Request.Context(), userID)
	if err != nil {
		logger.Error("Pricing job failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Pricing job failed"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// getPricing godoc
// @Summary Get a pricing
// @Description Retrieves a pricing with its lines
// @Tags pricings
// @Produce  json
// @Param   pricingID path string true "Pricing ID"
// @Success 200 {object} dto.PricingResponse "The pricing"
// @Failure 404 {object} map[string]string "Pricing not found"
// @Failure 500 {object} map[string]string "Failed to retrieve pricing"
// @Router /pricings/{pricingID} [get]
func (h *pricingHandler) getPricing(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	pricingID := c.Param("pricingID")

	pricing, err := h.pricingService.GetPricingByID(c.Request.Context(), pricingID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Pricing not found", slog.String("pricing_id", pricingID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Pricing not found"})
			return
		}
		logger.Error("Failed to get pricing", slog.String("error", err.Error()), slog.String("pricing_id", pricingID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve pricing"})
		return
	}

	c.JSON(http.StatusOK, mapping.ToPricingResponse(*pricing))
}

// listPricings godoc
// @Summary List a pricing point's pricings
// @Description Retrieves a paginated pricing listing, newest value date first
// @Tags pricings
// @Produce  json
// @Param   pricingPointID query string true "Pricing Point ID"
// @Param   limit query int false "Page size (default 20, max 100)"
// @Param   nextToken query string false "Pagination token from a previous response"
// @Success 200 {object} dto.ListPricingsResponse "A page of pricings"
// @Failure 400 {object} map[string]string "Missing pricingPointID or bad token"
// @Failure 500 {object} map[string]string "Failed to list pricings"
// @Router /pricings [get]
func (h *pricingHandler) listPricings(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	pricingPointID := c.Query("pricingPointID")
	if pricingPointID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pricingPointID query parameter is required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	var nextToken *string
	if token := c.Query("nextToken"); token != "" {
		nextToken = &token
	}

	pricings, newNextToken, err := h.pricingService.ListPricingsByPricingPoint(c.Request.Context(), pricingPointID, limit, nextToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to list pricings", slog.String("error", err.Error()), slog.String("pricing_point_id", pricingPointID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list pricings"})
		return
	}

	c.JSON(http.StatusOK, dto.ListPricingsResponse{
		Pricings:  mapping.ToPricingResponseSlice(pricings),
		NextToken: newNextToken,
	})
}

// cancelPricing godoc
// @Summary Cancel a pricing
// @Description Marks a pricing CANCELLED; only pricings not yet claimed by a cashflow can be cancelled
// @Tags pricings
// @Param   pricingID path string true "Pricing ID"
// @Success 204 "Pricing cancelled"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Pricing not found"
// @Failure 409 {object} map[string]string "Pricing already batched"
// @Failure 500 {object} map[string]string "Failed to cancel pricing"
// @Router /pricings/{pricingID}/cancel [put]
func (h *pricingHandler) cancelPricing(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	pricingID := c.Param("pricingID")

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	err := h.pricingService.CancelPricing(c.Request.Context(), pricingID, userID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			logger.Warn("Pricing not found", slog.String("pricing_id", pricingID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Pricing not found"})
		case errors.Is(err, services.ErrPricingNotCancellable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to cancel pricing", slog.String("error", err.Error()), slog.String("pricing_id", pricingID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel pricing"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// registerPricingRoutes registers pricing routes
func registerPricingRoutes(group *gin.RouterGroup, pricingService portssvc.PricingSvcFacade) {
	handler := newPricingHandler(pricingService)

	pricings := group.Group("/pricings")
	{
		pricings.POST("/run", handler.runPricing)
		pricings.GET("", handler.listPricings)
		pricings.GET("/:pricingID", handler.getPricing)
		pricings.PUT("/:pricingID/cancel", handler.cancelPricing)
	}
}
