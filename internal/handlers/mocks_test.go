package handlers

import (
	"context"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/stretchr/testify/mock"
)

type mockSessionService struct {
	mock.Mock
}

func (m *mockSessionService) Prepare(ctx context.Context, studentID string, req *services.PrepareTestRequest) (*services.PrepareTestResponse, error) {
	args := m.Called(ctx, studentID, req)
	resp, _ := args.Get(0).(*services.PrepareTestResponse)
	return resp, args.Error(1)
}

func (m *mockSessionService) StartOrResume(ctx context.Context, studentID string, req *services.StartTestRequest) (*services.StartTestResponse, error) {
	args := m.Called(ctx, studentID, req)
	resp, _ := args.Get(0).(*services.StartTestResponse)
	return resp, args.Error(1)
}

func (m *mockSessionService) GetForPlay(ctx context.Context, studentID, attemptID, sessionToken string) (*services.PlayResponse, error) {
	args := m.Called(ctx, studentID, attemptID, sessionToken)
	resp, _ := args.Get(0).(*services.PlayResponse)
	return resp, args.Error(1)
}

func (m *mockSessionService) SaveProgress(ctx context.Context, studentID, attemptID string, req *services.SaveProgressRequest) (*services.SaveProgressResponse, error) {
	args := m.Called(ctx, studentID, attemptID, req)
	resp, _ := args.Get(0).(*services.SaveProgressResponse)
	return resp, args.Error(1)
}

func (m *mockSessionService) BeaconSave(ctx context.Context, studentID, attemptID string, req *services.SaveProgressRequest) *services.SaveProgressResponse {
	args := m.Called(ctx, studentID, attemptID, req)
	resp, _ := args.Get(0).(*services.SaveProgressResponse)
	return resp
}

func (m *mockSessionService) Submit(ctx context.Context, studentID, attemptID string, req *services.SubmitTestRequest) (*services.SubmitTestResponse, error) {
	args := m.Called(ctx, studentID, attemptID, req)
	resp, _ := args.Get(0).(*services.SubmitTestResponse)
	return resp, args.Error(1)
}

func (m *mockSessionService) Restore(ctx context.Context, studentID, attemptID, sessionToken string) (*services.RestoreResponse, error) {
	args := m.Called(ctx, studentID, attemptID, sessionToken)
	resp, _ := args.Get(0).(*services.RestoreResponse)
	return resp, args.Error(1)
}

func (m *mockSessionService) PackageStatus(ctx context.Context, studentID, attemptID string) (*services.PackageStatusResponse, error) {
	args := m.Called(ctx, studentID, attemptID)
	resp, _ := args.Get(0).(*services.PackageStatusResponse)
	return resp, args.Error(1)
}

func (m *mockSessionService) Discard(ctx context.Context, studentID, attemptID string) (*services.CleanupResponse, error) {
	args := m.Called(ctx, studentID, attemptID)
	resp, _ := args.Get(0).(*services.CleanupResponse)
	return resp, args.Error(1)
}

func (m *mockSessionService) ForceCleanup(ctx context.Context, studentID string) (*services.CleanupResponse, error) {
	args := m.Called(ctx, studentID)
	resp, _ := args.Get(0).(*services.CleanupResponse)
	return resp, args.Error(1)
}

func (m *mockSessionService) ActiveSession(ctx context.Context, studentID string) (*services.ActiveSessionInfo, error) {
	args := m.Called(ctx, studentID)
	resp, _ := args.Get(0).(*services.ActiveSessionInfo)
	return resp, args.Error(1)
}

type mockRecordService struct {
	mock.Mock
}

func (m *mockRecordService) TestRecords(ctx context.Context, studentID string, query *services.RecordListQuery) (*services.TestRecordPage, error) {
	args := m.Called(ctx, studentID, query)
	resp, _ := args.Get(0).(*services.TestRecordPage)
	return resp, args.Error(1)
}

func (m *mockRecordService) ExportTestRecords(ctx context.Context, studentID string) (*services.RecordExport, error) {
	args := m.Called(ctx, studentID)
	resp, _ := args.Get(0).(*services.RecordExport)
	return resp, args.Error(1)
}

func (m *mockRecordService) Dashboard(ctx context.Context, studentID string) (*services.DashboardSummary, error) {
	args := m.Called(ctx, studentID)
	resp, _ := args.Get(0).(*services.DashboardSummary)
	return resp, args.Error(1)
}

func (m *mockRecordService) SetFeedback(ctx context.Context, principal models.Principal, recordID string, req *services.SetFeedbackRequest) (*models.TestRecord, error) {
	args := m.Called(ctx, principal, recordID, req)
	resp, _ := args.Get(0).(*models.TestRecord)
	return resp, args.Error(1)
}

type mockMaintenanceService struct {
	mock.Mock
}

func (m *mockMaintenanceService) FinalizeExpired(ctx context.Context) (*services.FinalizeExpiredResponse, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*services.FinalizeExpiredResponse)
	return resp, args.Error(1)
}

func (m *mockMaintenanceService) Retention(ctx context.Context, retentionDays int) (*repositories.RetentionResult, error) {
	args := m.Called(ctx, retentionDays)
	resp, _ := args.Get(0).(*repositories.RetentionResult)
	return resp, args.Error(1)
}

func (m *mockMaintenanceService) CleanupDuplicateSessions(ctx context.Context, studentID string) (int64, error) {
	args := m.Called(ctx, studentID)
	return args.Get(0).(int64), args.Error(1)
}
