package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pass-culture/finance_backend/internal/apperrors"
	portssvc "github.com/pass-culture/finance_backend/internal/core/ports/services"
	"github.com/pass-culture/finance_backend/internal/core/services"
	"github.com/pass-culture/finance_backend/internal/dto"
	"github.com/pass-culture/finance_backend/internal/middleware"
	"github.com/pass-culture/finance_backend/internal/utils/mapping"
)

// financeEventHandler handles HTTP requests related to finance events.
type financeEventHandler struct {
	financeEventService portssvc.FinanceEventSvcFacade
}

// newFinanceEventHandler creates a new financeEventHandler.
func newFinanceEventHandler(financeEventService portssvc.FinanceEventSvcFacade) *financeEventHandler {
	return &financeEventHandler{
		financeEventService: financeEventService,
	}
}

// recordBookingEvent godoc
// @Summary Ingest a booking lifecycle event
// @Description Consumes one booking lifecycle tuple from the bookings module and advances the finance event state machine
// @Tags finance-events
// @Accept  json
// @Produce  json
// @Param   event body dto.BookingEventRequest true "Booking lifecycle tuple"
// @Success 200 {object} dto.FinanceEventResponse "The resulting finance event"
// @Failure 400 {object} map[string]string "Invalid request format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 409 {object} map[string]string "Booking already priced"
// @Failure 500 {object} map[string]string "Failed to record booking event"
// @Router /bookings/events [post]
func (h *financeEventHandler) recordBookingEvent(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	req := dto.BookingEventRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for RecordBookingEvent", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	event, err := h.financeEventService.RecordBookingEvent(c.Request.Context(), req, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBookingAlreadyPriced):
			logger.Warn("Booking already priced", slog.String("booking_id", req.BookingID))
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrValidation):
			logger.Warn("Validation error recording booking event", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to record booking event", slog.String("error", err.Error()), slog.String("booking_id", req.BookingID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record booking event"})
		}
		return
	}

	logger.Info("Booking event recorded", slog.String("booking_id", req.BookingID), slog.String("finance_event_id", event.FinanceEventID))
	c.JSON(http.StatusOK, mapping.ToFinanceEventResponse(*event))
}

// recordIncident godoc
// @Summary Record a booking incident
// @Description Creates a compensating finance event for a booking that was wrongly marked used; the original event and pricing are never mutated
// @Tags finance-events
// @Accept  json
// @Produce  json
// @Param   incident body dto.RecordIncidentRequest true "Incident"
// @Success 200 {object} dto.FinanceEventResponse "The compensating finance event"
// @Failure 400 {object} map[string]string "Invalid request format"
// @Failure 404 {object} map[string]string "Booking not found"
// @Failure 409 {object} map[string]string "Booking has no priced event to compensate"
// @Failure 500 {object} map[string]string "Failed to record incident"
// @Router /bookings/incidents [post]
func (h *financeEventHandler) recordIncident(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	req := dto.RecordIncidentRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for RecordIncident", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	event, err := h.financeEventService.RecordIncident(c.Request.Context(), req, userID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			logger.Warn("Booking not found for incident", slog.String("booking_id", req.BookingID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		case errors.Is(err, services.ErrEventNotCompensable):
			logger.Warn("Booking has no priced event to compensate", slog.String("booking_id", req.BookingID))
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to record incident", slog.String("error", err.Error()), slog.String("booking_id", req.BookingID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record incident"})
		}
		return
	}

	logger.Info("Incident recorded", slog.String("booking_id", req.BookingID), slog.String("finance_event_id", event.FinanceEventID))
	c.JSON(http.StatusOK, mapping.ToFinanceEventResponse(*event))
}

// listPendingEvents godoc
// @Summary List finance events waiting on pricing-point configuration
// @Description Retrieves READY events whose venue has no pricing point configured yet
// @Tags finance-events
// @Produce  json
// @Success 200 {object} dto.ListFinanceEventsResponse "Pending events"
// @Failure 500 {object} map[string]string "Failed to list pending events"
// @Router /finance-events/pending [get]
func (h *financeEventHandler) listPendingEvents(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	events, err := h.financeEventService.ListPendingEvents(c.Request.Context())
	if err != nil {
		logger.Error("Failed to list pending finance events", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list pending events"})
		return
	}

	c.JSON(http.StatusOK, dto.ListFinanceEventsResponse{Events: mapping.ToFinanceEventResponseSlice(events)})
}

// getFinanceEvent godoc
// @Summary Get a finance event
// @Description Retrieves a finance event by its ID
// @Tags finance-events
// @Produce  json
// @Param   financeEventID path string true "Finance Event ID"
// @Success 200 {object} dto.FinanceEventResponse "The finance event"
// @Failure 404 {object} map[string]string "Finance event not found"
// @Failure 500 {object} map[string]string "Failed to retrieve finance event"
// @Router /finance-events/{financeEventID} [get]
func (h *financeEventHandler) getFinanceEvent(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	financeEventID := c.Param("financeEventID")

	event, err := h.financeEventService.GetEventByID(c.Request.Context(), financeEventID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.Warn("Finance event not found", slog.String("finance_event_id", financeEventID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Finance event not found"})
			return
		}
		logger.Error("Failed to get finance event", slog.String("error", err.Error()), slog.String("finance_event_id", financeEventID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve finance event"})
		return
	}

	c.JSON(http.StatusOK, mapping.ToFinanceEventResponse(*event))
}

// registerFinanceEventRoutes registers booking ingestion and finance event routes
func registerFinanceEventRoutes(group *gin.RouterGroup, financeEventService portssvc.FinanceEventSvcFacade) {
	handler := newFinanceEventHandler(financeEventService)

	bookings := group.Group("/bookings")
	{
		bookings.POST("/events", handler.recordBookingEvent)
		bookings.POST("/incidents", handler.recordIncident)
	}

	events := group.Group("/finance-events")
	{
		events.GET("/pending", handler.listPendingEvents)
		events.GET("/:financeEventID", handler.getFinanceEvent)
	}
}
