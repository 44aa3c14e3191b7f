package services

import (
	"context"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
)

// TestSessionService drives an attempt from start to finalization. It is the
// only component that changes attempt state.
type TestSessionService interface {
	Prepare(ctx context.Context, studentID string, req *PrepareTestRequest) (*PrepareTestResponse, error)
	StartOrResume(ctx context.Context, studentID string, req *StartTestRequest) (*StartTestResponse, error)
	GetForPlay(ctx context.Context, studentID, attemptID, sessionToken string) (*PlayResponse, error)
	SaveProgress(ctx context.Context, studentID, attemptID string, req *SaveProgressRequest) (*SaveProgressResponse, error)
	// BeaconSave never fails; storage errors degrade to zero saved answers.
	BeaconSave(ctx context.Context, studentID, attemptID string, req *SaveProgressRequest) *SaveProgressResponse
	Submit(ctx context.Context, studentID, attemptID string, req *SubmitTestRequest) (*SubmitTestResponse, error)
	Restore(ctx context.Context, studentID, attemptID, sessionToken string) (*RestoreResponse, error)
	PackageStatus(ctx context.Context, studentID, attemptID string) (*PackageStatusResponse, error)
	Discard(ctx context.Context, studentID, attemptID string) (*CleanupResponse, error)
	ForceCleanup(ctx context.Context, studentID string) (*CleanupResponse, error)
	ActiveSession(ctx context.Context, studentID string) (*ActiveSessionInfo, error)
}

type RecordService interface {
	TestRecords(ctx context.Context, studentID string, query *RecordListQuery) (*TestRecordPage, error)
	ExportTestRecords(ctx context.Context, studentID string) (*RecordExport, error)
	Dashboard(ctx context.Context, studentID string) (*DashboardSummary, error)
	SetFeedback(ctx context.Context, principal models.Principal, recordID string, req *SetFeedbackRequest) (*models.TestRecord, error)
}

type MaintenanceService interface {
	FinalizeExpired(ctx context.Context) (*FinalizeExpiredResponse, error)
	Retention(ctx context.Context, retentionDays int) (*repositories.RetentionResult, error)
	CleanupDuplicateSessions(ctx context.Context, studentID string) (int64, error)
}
