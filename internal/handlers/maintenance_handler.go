package handlers

import (
	"net/http"
	"strconv"

	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/SAP-F-2025/exam-session-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type MaintenanceHandler struct {
	BaseHandler
	maintenanceService services.MaintenanceService
	retentionDays      int
}

func NewMaintenanceHandler(maintenanceService services.MaintenanceService, retentionDays int, logger utils.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		BaseHandler:        NewBaseHandler(logger),
		maintenanceService: maintenanceService,
		retentionDays:      retentionDays,
	}
}

// FinalizeExpired auto-submits every expired session
// @Summary Finalize expired sessions
// @Tags cron
// @Produce json
// @Param X-Cron-Secret header string true "Cron secret"
// @Success 200 {object} SuccessResponse{data=services.FinalizeExpiredResponse}
// @Router /cron/finalize-expired [post]
func (h *MaintenanceHandler) FinalizeExpired(c *gin.Context) {
	resp, err := h.maintenanceService.FinalizeExpired(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Expired sessions finalized", resp, "count", resp.Count, "failed", resp.Failed)
}

// Retention deletes abandoned drafts, sessions, attempts and empty records
// @Summary Retention sweep
// @Tags cron
// @Produce json
// @Param X-Cron-Secret header string true "Cron secret"
// @Param retention_days query int false "Override the configured retention"
// @Success 200 {object} SuccessResponse{data=repositories.RetentionResult}
// @Failure 400 {object} ErrorResponse
// @Router /cron/retention [post]
func (h *MaintenanceHandler) Retention(c *gin.Context) {
	days := h.retentionDays
	if raw := c.Query("retention_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid retention_days",
				Details: err.Error(),
			})
			return
		}
		days = n
	}

	result, err := h.maintenanceService.Retention(c.Request.Context(), days)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Retention sweep completed", result, "retention_days", days)
}

// CleanupDuplicates keeps only the newest session row of one student
// @Summary Remove duplicate sessions
// @Tags cron
// @Produce json
// @Param X-Cron-Secret header string true "Cron secret"
// @Param student_id query string true "Student ID"
// @Success 200 {object} SuccessResponse{data=map[string]int64}
// @Failure 400 {object} ErrorResponse
// @Router /cron/cleanup-duplicates [post]
func (h *MaintenanceHandler) CleanupDuplicates(c *gin.Context) {
	studentID := c.Query("student_id")
	if studentID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "student_id is required"})
		return
	}

	removed, err := h.maintenanceService.CleanupDuplicateSessions(c.Request.Context(), studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Duplicate sessions removed", gin.H{"removed": removed}, "student_id", studentID, "removed", removed)
}
