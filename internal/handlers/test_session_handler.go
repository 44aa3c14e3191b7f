package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/SAP-F-2025/exam-session-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type TestSessionHandler struct {
	BaseHandler
	sessionService services.TestSessionService
}

func NewTestSessionHandler(sessionService services.TestSessionService, logger utils.Logger) *TestSessionHandler {
	return &TestSessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
	}
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindWith(obj, binding.JSON); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// PrepareTest builds a test plan for one or more categories
// @Summary Prepare test
// @Description Resolves the test record and picks a published package per requested category
// @Tags tests
// @Accept json
// @Produce json
// @Param request body services.PrepareTestRequest true "Categories to prepare"
// @Success 200 {object} services.PrepareTestResponse
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /tests/prepare [post]
func (h *TestSessionHandler) PrepareTest(c *gin.Context) {
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	var req services.PrepareTestRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Preparing test", "categories", len(req.CategoryIDs), "create_new_record", req.CreateNewRecord)

	resp, err := h.sessionService.Prepare(c.Request.Context(), studentID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// StartTest starts a new attempt or resumes the student's live one
// @Summary Start or resume test
// @Tags tests
// @Accept json
// @Produce json
// @Param request body services.StartTestRequest true "Package and category"
// @Success 200 {object} services.StartTestResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tests/start [post]
func (h *TestSessionHandler) StartTest(c *gin.Context) {
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	var req services.StartTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Starting test", "package_id", req.PackageID, "category_id", req.CategoryID)

	resp, err := h.sessionService.StartOrResume(c.Request.Context(), studentID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ForceCleanup removes the student's live session so a new test can start
// @Summary Force session cleanup
// @Tags tests
// @Produce json
// @Success 200 {object} SuccessResponse{data=services.CleanupResponse}
// @Router /tests/force-cleanup [post]
func (h *TestSessionHandler) ForceCleanup(c *gin.Context) {
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	resp, err := h.sessionService.ForceCleanup(c.Request.Context(), studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Session cleaned up", resp, "attempt_id", resp.AttemptID)
}

// GetTest returns the package content and restored state for play
// @Summary Get test for play
// @Tags tests
// @Produce json
// @Param id path string true "Attempt ID"
// @Param X-Session-Token header string false "Session token"
// @Success 200 {object} services.PlayResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tests/{id} [get]
func (h *TestSessionHandler) GetTest(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	resp, err := h.sessionService.GetForPlay(c.Request.Context(), studentID, attemptID, sessionToken(c, ""))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SaveAnswers stores draft answers and UI state
// @Summary Save answers
// @Tags tests
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param X-Session-Token header string true "Session token"
// @Param request body services.SaveProgressRequest true "Draft answers"
// @Success 200 {object} services.SaveProgressResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/save-answers [post]
func (h *TestSessionHandler) SaveAnswers(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	var req services.SaveProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.SessionToken = sessionToken(c, req.SessionToken)

	resp, err := h.sessionService.SaveProgress(c.Request.Context(), studentID, attemptID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// BeaconSave is the page-unload save. Browsers send it as text/plain and
// ignore the response, so it always answers 200.
// @Summary Beacon save
// @Tags tests
// @Accept plain
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.SaveProgressResponse
// @Router /tests/{id}/beacon-save [post]
func (h *TestSessionHandler) BeaconSave(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	var req services.SaveProgressRequest
	if err := c.ShouldBindWith(&req, binding.JSON); err != nil {
		h.LogWarn(c, "Discarding malformed beacon payload", "attempt_id", attemptID, "error", err)
		c.JSON(http.StatusOK, &services.SaveProgressResponse{Reason: services.ReasonSaveFailed})
		return
	}
	req.SessionToken = sessionToken(c, req.SessionToken)

	c.JSON(http.StatusOK, h.sessionService.BeaconSave(c.Request.Context(), studentID, attemptID, &req))
}

// SubmitTest grades and finalizes the attempt
// @Summary Submit test
// @Tags tests
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param X-Session-Token header string false "Session token"
// @Param request body services.SubmitTestRequest false "Final answers"
// @Success 200 {object} services.SubmitTestResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /tests/{id}/submit [post]
func (h *TestSessionHandler) SubmitTest(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	var req services.SubmitTestRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.SessionToken = sessionToken(c, req.SessionToken)

	h.LogRequest(c, "Submitting test", "attempt_id", attemptID, "answers", len(req.Answers))

	resp, err := h.sessionService.Submit(c.Request.Context(), studentID, attemptID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RestoreTest returns saved answers for an in-progress attempt
// @Summary Restore answers
// @Tags tests
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.RestoreResponse
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/restore [get]
func (h *TestSessionHandler) RestoreTest(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	resp, err := h.sessionService.Restore(c.Request.Context(), studentID, attemptID, sessionToken(c, ""))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CleanupTest discards an in-progress attempt when the student leaves
// @Summary Discard attempt
// @Tags tests
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} SuccessResponse{data=services.CleanupResponse}
// @Router /tests/{id}/cleanup [post]
func (h *TestSessionHandler) CleanupTest(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	resp, err := h.sessionService.Discard(c.Request.Context(), studentID, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Attempt discarded", resp, "attempt_id", attemptID)
}

// PackageStatus reports whether the attempt's package is still published
// @Summary Package status
// @Tags tests
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.PackageStatusResponse
// @Failure 404 {object} ErrorResponse
// @Router /tests/{id}/package-status [get]
func (h *TestSessionHandler) PackageStatus(c *gin.Context) {
	attemptID := ParseStringIDParam(c, "id")
	if attemptID == "" {
		return
	}
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	resp, err := h.sessionService.PackageStatus(c.Request.Context(), studentID, attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ActiveSession returns the student's live session or null
// @Summary Active session
// @Tags student
// @Produce json
// @Success 200 {object} SuccessResponse{data=services.ActiveSessionInfo}
// @Router /student/active-session [get]
func (h *TestSessionHandler) ActiveSession(c *gin.Context) {
	studentID, ok := getUserID(c)
	if !ok {
		return
	}

	info, err := h.sessionService.ActiveSession(c.Request.Context(), studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"active_session": info})
}
