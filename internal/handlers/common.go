package handlers

import (
	"errors"
	"net/http"

	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/SAP-F-2025/exam-session-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error codes returned alongside session and conflict errors so clients can
// branch without parsing messages.
const (
	CodeSessionNotFound       = "SESSION_NOT_FOUND"
	CodeInvalidSessionToken   = "INVALID_SESSION_TOKEN"
	CodeSessionExpired        = "SESSION_EXPIRED"
	CodeActiveSession         = "ACTIVE_SESSION"
	CodeWrongAttempt          = "WRONG_ATTEMPT"
	CodePackageDraft          = "PACKAGE_DRAFT"
	CodeCategoryCompleted     = "CATEGORY_COMPLETED"
	CodeAttemptCompleted      = "ATTEMPT_COMPLETED"
	CodeNoCategoriesAvailable = "NO_CATEGORIES_AVAILABLE"
)

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

// NewBaseHandler creates a new base handler with logging capability
func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

// log prefers the request-scoped logger, which already carries request_id,
// method and path.
func (h *BaseHandler) log(c *gin.Context) utils.Logger {
	return utils.LoggerFromContext(c, h.logger).With("user_id", h.extractUserID(c))
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	h.log(c).Info(message, additionalFields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	h.log(c).LogError(err, message, additionalFields...)
}

func (h *BaseHandler) LogDebug(c *gin.Context, message string, additionalFields ...interface{}) {
	h.log(c).Debug(message, additionalFields...)
}

func (h *BaseHandler) LogInfo(c *gin.Context, message string, additionalFields ...interface{}) {
	h.log(c).Info(message, additionalFields...)
}

func (h *BaseHandler) LogWarn(c *gin.Context, message string, additionalFields ...interface{}) {
	h.log(c).Warn(message, additionalFields...)
}

// Helper method to extract user ID from context
func (h *BaseHandler) extractUserID(c *gin.Context) interface{} {
	if userID, exists := c.Get(ContextUserID); exists {
		return userID
	}
	return nil
}

// RespondWithError sends a consistent error response and logs it
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, message string, err error, details ...interface{}) {
	errorResp := ErrorResponse{
		Message: message,
	}

	if len(details) > 0 {
		errorResp.Details = details[0]
	}

	if err != nil {
		h.LogError(c, err, message, "status_code", statusCode)
	} else {
		h.LogWarn(c, message, "status_code", statusCode)
	}

	c.JSON(statusCode, errorResp)
}

// RespondWithSuccess sends a consistent success response and logs it
func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}, additionalFields ...interface{}) {
	fields := []interface{}{"status_code", statusCode}
	fields = append(fields, additionalFields...)
	h.LogInfo(c, message, fields...)

	c.JSON(statusCode, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// handleServiceError maps service errors to HTTP responses. Anything not
// listed is a 500 and is logged with the underlying error.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var activeSession *services.ActiveSessionError
	if errors.As(err, &activeSession) {
		code, message := CodeActiveSession, "Another test is in progress"
		if activeSession.Reason == services.ReasonWrongAttempt {
			code, message = CodeWrongAttempt, "Session is bound to another attempt"
		}
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: message,
			Code:    code,
			Details: activeSession,
		})
		return
	}

	var noCategories *services.NoCategoriesAvailableError
	if errors.As(err, &noCategories) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "No categories available",
			Code:    CodeNoCategoriesAvailable,
			Details: noCategories,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule":    businessRuleError.Rule,
				"context": businessRuleError.Context,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
		})
	// Session rejections
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "No active session for this attempt",
			Code:    CodeSessionNotFound,
		})
	case errors.Is(err, services.ErrInvalidSessionToken):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Invalid session token",
			Code:    CodeInvalidSessionToken,
		})
	case errors.Is(err, services.ErrSessionExpired):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Session expired",
			Code:    CodeSessionExpired,
		})
	// Conflicts
	case errors.Is(err, services.ErrPackageUnavailable):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Question package is no longer available",
			Code:    CodePackageDraft,
		})
	case errors.Is(err, services.ErrCategoryCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Category already completed in this test record",
			Code:    CodeCategoryCompleted,
		})
	case errors.Is(err, services.ErrAttemptCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Attempt already completed",
			Code:    CodeAttemptCompleted,
		})
	// Not found
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Attempt not found",
		})
	case errors.Is(err, services.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Test record not found",
		})
	case errors.Is(err, services.ErrCategoryNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Category not found",
		})
	case errors.Is(err, services.ErrPackageNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Question package not found",
		})
	case errors.Is(err, services.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "internal server error",
		})
	}
}
