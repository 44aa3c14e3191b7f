package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/exam-session-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")

	// Session errors
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidSessionToken = errors.New("invalid session token")
	ErrSessionExpired      = errors.New("session expired")

	// Attempt errors
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrAttemptCompleted   = errors.New("attempt already completed")
	ErrPackageUnavailable = errors.New("question package is no longer available")
	ErrCategoryCompleted  = errors.New("category already completed in this test record")

	// Content and record errors
	ErrCategoryNotFound = errors.New("category not found")
	ErrPackageNotFound  = errors.New("question package not found")
	ErrRecordNotFound   = errors.New("test record not found")
)

// ActiveSession reasons
const (
	ReasonActiveSession = "active_session"
	ReasonWrongAttempt  = "wrong_attempt"
)

// ===== CUSTOM ERROR TYPES =====

type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// ActiveSessionError means the student's live session is bound to another
// attempt: either a different test is in progress or the client asked for
// the wrong attempt.
type ActiveSessionError struct {
	ActiveAttemptID string `json:"active_attempt_id"`
	CategoryName    string `json:"category_name,omitempty"`
	Reason          string `json:"reason"`
}

func (e *ActiveSessionError) Error() string {
	if e.Reason == ReasonWrongAttempt {
		return fmt.Sprintf("session is bound to attempt %s", e.ActiveAttemptID)
	}
	return fmt.Sprintf("another test is in progress (attempt %s)", e.ActiveAttemptID)
}

// NoCategoriesAvailableError is returned by Prepare when no requested
// category can be turned into a test.
type NoCategoriesAvailableError struct {
	Unavailable []UnavailableCategory `json:"unavailable_categories"`
}

func (e *NoCategoriesAvailableError) Error() string {
	return fmt.Sprintf("no categories available (%d unavailable)", len(e.Unavailable))
}

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

// ===== ERROR HELPERS =====

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrPackageNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}

func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrPackageUnavailable) ||
		errors.Is(err, ErrCategoryCompleted) ||
		errors.Is(err, ErrAttemptCompleted)
}

// IsSessionRejection covers every reason a session-bound call is refused.
func IsSessionRejection(err error) bool {
	var ase *ActiveSessionError
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrInvalidSessionToken) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.As(err, &ase)
}
