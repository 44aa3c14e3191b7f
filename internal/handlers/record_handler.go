package handlers

import (
	"fmt"
	"net/http"

	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/SAP-F-2025/exam-session-service/internal/utils"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type RecordHandler struct {
	BaseHandler
	recordService services.RecordService
}

func NewRecordHandler(recordService services.RecordService, logger utils.Logger) *RecordHandler {
	return &RecordHandler{
		BaseHandler:   NewBaseHandler(logger),
		recordService: recordService,
	}
}

// ListTestRecords lists the student's test records
// @Summary List test records
// @Tags student
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 50)"
// @Param sort query string false "asc or desc"
// @Success 200 {object} services.TestRecordPage
// @Failure 400 {object} ErrorResponse
// @Router /student/test-records [get]
func (h *RecordHandler) ListTestRecords(c *gin.Context) {
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	var query services.RecordListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query parameters",
			Details: err.Error(),
		})
		return
	}

	page, err := h.recordService.TestRecords(c.Request.Context(), studentID, &query)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// ExportTestRecords downloads the student's completed attempts as xlsx
// @Summary Export test records
// @Tags student
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Router /student/test-records/export [get]
func (h *RecordHandler) ExportTestRecords(c *gin.Context) {
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	export, err := h.recordService.ExportTestRecords(c.Request.Context(), studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Exported test records", "bytes", len(export.Data))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	c.Data(http.StatusOK, xlsxContentType, export.Data)
}

// DashboardSummary returns recent attempts and best scores
// @Summary Dashboard summary
// @Tags student
// @Produce json
// @Success 200 {object} services.DashboardSummary
// @Router /student/dashboard/summary [get]
func (h *RecordHandler) DashboardSummary(c *gin.Context) {
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	summary, err := h.recordService.Dashboard(c.Request.Context(), studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// SetFeedback stores tutor feedback on a test record
// @Summary Set record feedback
// @Tags tutor
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param request body services.SetFeedbackRequest true "Feedback"
// @Success 200 {object} SuccessResponse{data=models.TestRecord}
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tutor/test-records/{id}/feedback [put]
func (h *RecordHandler) SetFeedback(c *gin.Context) {
	recordID := ParseStringIDParam(c, "id")
	if recordID == "" {
		return
	}
	principal, ok := getPrincipal(c)
	if !ok {
		return
	}

	var req services.SetFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	record, err := h.recordService.SetFeedback(c.Request.Context(), principal, recordID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Feedback saved", record, "record_id", recordID)
}
