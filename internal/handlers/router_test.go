package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/SAP-F-2025/exam-session-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret  = "test-secret"
	testCronSecret = "cron-secret"
)

type routerEnv struct {
	t           *testing.T
	router      *gin.Engine
	sessions    *mockSessionService
	records     *mockRecordService
	maintenance *mockMaintenanceService
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	env := &routerEnv{
		t:           t,
		router:      gin.New(),
		sessions:    &mockSessionService{},
		records:     &mockRecordService{},
		maintenance: &mockMaintenanceService{},
	}
	env.router.Use(utils.LoggerMiddleware(logger))

	NewHandlerManager(env.sessions, env.records, env.maintenance, RouterConfig{
		JWTSecret:     testJWTSecret,
		CronSecret:    testCronSecret,
		RetentionDays: 7,
	}, logger).SetupRoutes(env.router)

	t.Cleanup(func() {
		env.sessions.AssertExpectations(t)
		env.records.AssertExpectations(t)
		env.maintenance.AssertExpectations(t)
	})
	return env
}

func signToken(t *testing.T, secret, sub, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &AuthClaims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

type requestOption func(*http.Request)

func asUser(t *testing.T, sub, role string) requestOption {
	token := signToken(t, testJWTSecret, sub, role)
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (e *routerEnv) do(method, path, body string, opts ...requestOption) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	env := newRouterEnv(t)
	rec := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "exam-session-service")
}

func TestAuth_RejectsMissingAndForgedTokens(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/student/active-session", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged := signToken(t, "other-secret", "student-1", "STUDENT")
	rec = env.do(http.MethodGet, "/api/v1/student/active-session", "", withHeader("Authorization", "Bearer "+forged))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	noSubject := signToken(t, testJWTSecret, "", "STUDENT")
	rec = env.do(http.MethodGet, "/api/v1/student/active-session", "", withHeader("Authorization", "Bearer "+noSubject))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartTest(t *testing.T) {
	env := newRouterEnv(t)
	expires := time.Date(2026, 1, 1, 10, 10, 0, 0, time.UTC)

	env.sessions.On("StartOrResume", mock.Anything, "student-1", &services.StartTestRequest{
		PackageID:  "pkg-1",
		CategoryID: "cat-1",
	}).Return(&services.StartTestResponse{
		AttemptID:        "att-1",
		SessionToken:     "tok",
		RecordID:         "rec-1",
		PackageID:        "pkg-1",
		ExpiresAt:        expires,
		RemainingSeconds: 600,
	}, nil).Once()

	rec := env.do(http.MethodPost, "/api/v1/tests/start", `{"package_id":"pkg-1","category_id":"cat-1"}`, asUser(t, "student-1", "student"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp services.StartTestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "att-1", resp.AttemptID)
	assert.Equal(t, 600, resp.RemainingSeconds)
}

func TestStartTest_InvalidPayload(t *testing.T) {
	env := newRouterEnv(t)
	rec := env.do(http.MethodPost, "/api/v1/tests/start", `{"package_id":`, asUser(t, "student-1", "STUDENT"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request payload", decodeError(t, rec).Message)
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", services.ValidationErrors{{Field: "package_id", Message: "is required"}}, http.StatusBadRequest, ""},
		{"active session", &services.ActiveSessionError{ActiveAttemptID: "att-9", CategoryName: "Reading", Reason: services.ReasonActiveSession}, http.StatusForbidden, CodeActiveSession},
		{"package draft", services.ErrPackageUnavailable, http.StatusConflict, CodePackageDraft},
		{"category completed", services.ErrCategoryCompleted, http.StatusConflict, CodeCategoryCompleted},
		{"category missing", services.ErrCategoryNotFound, http.StatusNotFound, ""},
		{"session expired", services.ErrSessionExpired, http.StatusForbidden, CodeSessionExpired},
		{"no categories", &services.NoCategoriesAvailableError{}, http.StatusUnprocessableEntity, CodeNoCategoriesAvailable},
		{"unexpected", assert.AnError, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newRouterEnv(t)
			env.sessions.On("StartOrResume", mock.Anything, "student-1", mock.Anything).Return(nil, tt.err).Once()

			rec := env.do(http.MethodPost, "/api/v1/tests/start", `{"package_id":"pkg-1","category_id":"cat-1"}`, asUser(t, "student-1", "STUDENT"))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestStartTest_ActiveSessionDetails(t *testing.T) {
	env := newRouterEnv(t)
	env.sessions.On("StartOrResume", mock.Anything, "student-1", mock.Anything).Return(nil, &services.ActiveSessionError{
		ActiveAttemptID: "att-9",
		CategoryName:    "Reading",
		Reason:          services.ReasonActiveSession,
	}).Once()

	rec := env.do(http.MethodPost, "/api/v1/tests/start", `{"package_id":"pkg-2","category_id":"cat-2"}`, asUser(t, "student-1", "STUDENT"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		Code    string                       `json:"code"`
		Details services.ActiveSessionError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeActiveSession, body.Code)
	assert.Equal(t, "att-9", body.Details.ActiveAttemptID)
	assert.Equal(t, "Reading", body.Details.CategoryName)
}

func TestSaveAnswers_UsesHeaderToken(t *testing.T) {
	env := newRouterEnv(t)
	env.sessions.On("SaveProgress", mock.Anything, "student-1", "att-1", mock.MatchedBy(func(req *services.SaveProgressRequest) bool {
		return req.SessionToken == "header-token" &&
			len(req.Answers) == 1 &&
			req.Answers[0].ItemID == "q1" &&
			req.Answers[0].Value.Key() == "B"
	})).Return(&services.SaveProgressResponse{Saved: true, SavedCount: 1}, nil).Once()

	rec := env.do(http.MethodPost, "/api/v1/tests/att-1/save-answers",
		`{"session_token":"body-token","answers":[{"item_id":"q1","type":"MULTIPLE_CHOICE","value":"B"}]}`,
		asUser(t, "student-1", "STUDENT"),
		withHeader(SessionTokenHeader, "header-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"saved":true,"saved_count":1}`, rec.Body.String())
}

func TestBeaconSave(t *testing.T) {
	env := newRouterEnv(t)
	env.sessions.On("BeaconSave", mock.Anything, "student-1", "att-1", mock.MatchedBy(func(req *services.SaveProgressRequest) bool {
		return req.SessionToken == "tok" && len(req.Answers) == 1
	})).Return(&services.SaveProgressResponse{Saved: true, SavedCount: 1}).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/att-1/beacon-save",
		strings.NewReader(`{"session_token":"tok","answers":[{"item_id":"q1","type":"MULTIPLE_CHOICE","value":"A"}]}`))
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	asUser(t, "student-1", "STUDENT")(req)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"saved":true,"saved_count":1}`, rec.Body.String())

	malformed := env.do(http.MethodPost, "/api/v1/tests/att-1/beacon-save", `not json`, asUser(t, "student-1", "STUDENT"))
	require.Equal(t, http.StatusOK, malformed.Code)
	assert.JSONEq(t, `{"saved":false,"saved_count":0,"reason":"save_failed"}`, malformed.Body.String())
}

func TestSubmitTest_EmptyBody(t *testing.T) {
	env := newRouterEnv(t)
	completed := time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC)
	env.sessions.On("Submit", mock.Anything, "student-1", "att-1", &services.SubmitTestRequest{SessionToken: "tok"}).
		Return(&services.SubmitTestResponse{AttemptID: "att-1", TotalScore: 75, CompletedAt: completed}, nil).Once()

	rec := env.do(http.MethodPost, "/api/v1/tests/att-1/submit?session_token=tok", "", asUser(t, "student-1", "STUDENT"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp services.SubmitTestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 75, resp.TotalScore)
}

func TestGetTest_PassesSessionToken(t *testing.T) {
	env := newRouterEnv(t)
	env.sessions.On("GetForPlay", mock.Anything, "student-1", "att-1", "tok").
		Return(nil, services.ErrInvalidSessionToken).Once()

	rec := env.do(http.MethodGet, "/api/v1/tests/att-1", "", asUser(t, "student-1", "STUDENT"), withHeader(SessionTokenHeader, "tok"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeInvalidSessionToken, decodeError(t, rec).Code)
}

func TestCleanupAndPackageStatus(t *testing.T) {
	env := newRouterEnv(t)
	env.sessions.On("Discard", mock.Anything, "student-1", "att-1").
		Return(&services.CleanupResponse{AttemptID: "att-1", DeletedSessions: 1, DeletedAttempts: 1}, nil).Once()
	env.sessions.On("PackageStatus", mock.Anything, "student-1", "att-1").
		Return(&services.PackageStatusResponse{AttemptID: "att-1", PackageID: "pkg-1", Status: models.PackageDraft}, nil).Once()

	rec := env.do(http.MethodPost, "/api/v1/tests/att-1/cleanup", "", asUser(t, "student-1", "STUDENT"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted_attempts":1`)

	rec = env.do(http.MethodGet, "/api/v1/tests/att-1/package-status", "", asUser(t, "student-1", "STUDENT"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"DRAFT"`)
}

func TestActiveSession_Null(t *testing.T) {
	env := newRouterEnv(t)
	env.sessions.On("ActiveSession", mock.Anything, "student-1").Return(nil, nil).Once()

	rec := env.do(http.MethodGet, "/api/v1/student/active-session", "", asUser(t, "student-1", "STUDENT"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active_session":null}`, rec.Body.String())
}

func TestListTestRecords_BindsQuery(t *testing.T) {
	env := newRouterEnv(t)
	env.records.On("TestRecords", mock.Anything, "student-1", &services.RecordListQuery{Page: 2, PageSize: 5, Sort: "asc"}).
		Return(&services.TestRecordPage{Total: 6, Page: 2, PageSize: 5}, nil).Once()

	rec := env.do(http.MethodGet, "/api/v1/student/test-records?page=2&page_size=5&sort=asc", "", asUser(t, "student-1", "STUDENT"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":6`)

	rec = env.do(http.MethodGet, "/api/v1/student/test-records?page=two", "", asUser(t, "student-1", "STUDENT"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportTestRecords(t *testing.T) {
	env := newRouterEnv(t)
	env.records.On("ExportTestRecords", mock.Anything, "student-1").
		Return(&services.RecordExport{FileName: "test-records-20260101.xlsx", Data: []byte("PK")}, nil).Once()

	rec := env.do(http.MethodGet, "/api/v1/student/test-records/export", "", asUser(t, "student-1", "STUDENT"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "test-records-20260101.xlsx")
	assert.Equal(t, "PK", rec.Body.String())
}

func TestSetFeedback_RequiresReviewer(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(http.MethodPut, "/api/v1/tutor/test-records/rec-1/feedback", `{"feedback":"nice"}`, asUser(t, "student-1", "STUDENT"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	feedback := "nice"
	env.records.On("SetFeedback", mock.Anything, models.Principal{UserID: "tutor-1", Role: models.RoleTutor}, "rec-1", &services.SetFeedbackRequest{Feedback: "nice"}).
		Return(&models.TestRecord{ID: "rec-1", Feedback: &feedback}, nil).Once()

	rec = env.do(http.MethodPut, "/api/v1/tutor/test-records/rec-1/feedback", `{"feedback":"nice"}`, asUser(t, "tutor-1", "tutor"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Feedback saved"`)
}

func TestCron_RequiresSecret(t *testing.T) {
	env := newRouterEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/cron/finalize-expired", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	env.maintenance.On("FinalizeExpired", mock.Anything).
		Return(&services.FinalizeExpiredResponse{Count: 2, AttemptIDs: []string{"a", "b"}}, nil).Once()
	rec = env.do(http.MethodPost, "/api/v1/cron/finalize-expired", "", withHeader(CronSecretHeader, testCronSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)
}

func TestCron_Retention(t *testing.T) {
	env := newRouterEnv(t)
	env.maintenance.On("Retention", mock.Anything, 7).Return(&repositories.RetentionResult{DeletedSessions: 3}, nil).Once()
	env.maintenance.On("Retention", mock.Anything, 30).Return(&repositories.RetentionResult{}, nil).Once()

	rec := env.do(http.MethodPost, "/api/v1/cron/retention", "", withHeader(CronSecretHeader, testCronSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted_sessions":3`)

	rec = env.do(http.MethodPost, "/api/v1/cron/retention?retention_days=30", "", withHeader(CronSecretHeader, testCronSecret))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/cron/retention?retention_days=abc", "", withHeader(CronSecretHeader, testCronSecret))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCron_CleanupDuplicates(t *testing.T) {
	env := newRouterEnv(t)
	env.maintenance.On("CleanupDuplicateSessions", mock.Anything, "student-1").Return(int64(2), nil).Once()

	rec := env.do(http.MethodPost, "/api/v1/cron/cleanup-duplicates?student_id=student-1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/cron/cleanup-duplicates?student_id=student-1", "", withHeader(CronSecretHeader, testCronSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"removed":2`)

	rec = env.do(http.MethodPost, "/api/v1/cron/cleanup-duplicates", "", withHeader(CronSecretHeader, testCronSecret))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCron_DisabledWithoutSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/cron", CronSecretMiddleware(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cron", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
