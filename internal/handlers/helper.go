package handlers

import (
	"net/http"
	"strings"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/gin-gonic/gin"
)

const (
	SessionTokenHeader = "X-Session-Token"
	sessionTokenQuery  = "session_token"
)

func ParseStringIDParam(c *gin.Context, param string) string {
	idStr := c.Param(param)
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID cannot be empty",
		})
		return ""
	}
	return idStr
}

// sessionToken reads the attempt's session token from the header, then the
// query string, then the request body.
func sessionToken(c *gin.Context, fromBody string) string {
	if token := strings.TrimSpace(c.GetHeader(SessionTokenHeader)); token != "" {
		return token
	}
	if token := strings.TrimSpace(c.Query(sessionTokenQuery)); token != "" {
		return token
	}
	return strings.TrimSpace(fromBody)
}

// getUserID writes a 401 and returns false when the auth middleware did not
// identify the caller.
func getUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}
	return userID, true
}

func getPrincipal(c *gin.Context) (models.Principal, bool) {
	userID, ok := getUserID(c)
	if !ok {
		return models.Principal{}, false
	}
	role, _ := c.Get(ContextUserRole)
	typed, _ := role.(models.UserRole)
	if typed == "" {
		typed = models.RoleStudent
	}
	return models.Principal{UserID: userID, Role: typed}, true
}
