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

// ruleHandler handles HTTP requests related to custom reimbursement rules.
type ruleHandler struct {
	reimbursementService portssvc.ReimbursementSvcFacade
}

// newRuleHandler creates a new ruleHandler.
func newRuleHandler(reimbursementService portssvc.ReimbursementSvcFacade) *ruleHandler {
	return &ruleHandler{
		reimbursementService: reimbursementService,
	}
}

// createRule godoc
// @Summary Create a custom reimbursement rule
// @Description Creates a custom rule overriding the standard rate for one offerer, optionally scoped to a category
// @Tags reimbursement-rules
// @Accept  json
// @Produce  json
// @Param   rule body dto.CreateRuleRequest true "Rule"
// @Success 201 {object} dto.RuleResponse "The created rule"
// @Failure 400 {object} map[string]string "Invalid request format or rule shape"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 409 {object} map[string]string "Overlapping rule at the same specificity"
// @Failure 500 {object} map[string]string "Failed to create rule"
// @Router /reimbursement-rules [post]
func (h *ruleHandler) createRule(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	req := dto.CreateRuleRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for CreateRule", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	creatorUserID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Creator user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	rule, err := h.reimbursementService.CreateRule(c.Request.Context(), req, creatorUserID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRuleOverlap):
			logger.Warn("Overlapping reimbursement rule", slog.String("offerer_id", req.OffererID))
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrValidation):
			logger.Warn("Validation error creating rule", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to create rule", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rule"})
		}
		return
	}

	logger.Info("Reimbursement rule created", slog.String("rule_id", rule.RuleID), slog.String("offerer_id", rule.OffererID))
	c.JSON(http.StatusCreated, mapping.ToRuleResponse(*rule))
}

// listRules godoc
// @Summary List an offerer's custom reimbursement rules
// @Tags reimbursement-rules
// @Produce  json
// @Param   offererID query string true "Offerer ID"
// @Success 200 {object} dto.ListRulesResponse "The offerer's rules"
// @Failure 400 {object} map[string]string "Missing offererID"
// @Failure 500 {object} map[string]string "Failed to list rules"
// @Router /reimbursement-rules [get]
func (h *ruleHandler) listRules(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	offererID := c.Query("offererID")
	if offererID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offererID query parameter is required"})
		return
	}

	rules, err := h.reimbursementService.ListRulesByOfferer(c.Request.Context(), offererID)
	if err != nil {
		logger.Error("Failed to list rules", slog.String("error", err.Error()), slog.String("offerer_id", offererID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rules"})
		return
	}

	c.JSON(http.StatusOK, dto.ListRulesResponse{Rules: mapping.ToRuleResponseSlice(rules)})
}

// terminateRule godoc
// @Summary Terminate a custom reimbursement rule
// @Description Closes the rule's validity timespan; bookings after the end date fall back to less specific rules
// @Tags reimbursement-rules
// @Accept  json
// @Produce  json
// @Param   ruleID path string true "Rule ID"
// @Param   termination body dto.TerminateRuleRequest true "Termination"
// @Success 204 "Rule terminated"
// @Failure 400 {object} map[string]string "Invalid request format or end date"
// @Failure 404 {object} map[string]string "Rule not found"
// @Failure 500 {object} map[string]string "Failed to terminate rule"
// @Router /reimbursement-rules/{ruleID}/terminate [put]
func (h *ruleHandler) terminateRule(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	ruleID := c.Param("ruleID")

	req := dto.TerminateRuleRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to bind JSON for TerminateRule", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	updaterUserID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("Updater user ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.reimbursementService.TerminateRule(c.Request.Context(), ruleID, req, updaterUserID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			logger.Warn("Rule not found", slog.String("rule_id", ruleID))
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		case errors.Is(err, apperrors.ErrValidation):
			logger.Warn("Validation error terminating rule", slog.String("error", err.Error()), slog.String("rule_id", ruleID))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to terminate rule", slog.String("error", err.Error()), slog.String("rule_id", ruleID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to terminate rule"})
		}
		return
	}

	logger.Info("Reimbursement rule terminated", slog.String("rule_id", ruleID))
	c.Status(http.StatusNoContent)
}

// registerRuleRoutes registers custom reimbursement rule routes
func registerRuleRoutes(group *gin.RouterGroup, reimbursementService portssvc.ReimbursementSvcFacade) {
	handler := newRuleHandler(reimbursementService)

	rules := group.Group("/reimbursement-rules")
	{
		rules.POST("", handler.createRule)
		rules.GET("", handler.listRules)
		rules.PUT("/:ruleID/terminate", handler.terminateRule)
	}
}
