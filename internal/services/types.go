package services

import (
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

// ===== TEST PLAN =====

type PrepareTestRequest struct {
	CategoryIDs     []string `json:"category_ids" validate:"omitempty,dive,required"`
	RecordID        *string  `json:"record_id"`
	CreateNewRecord bool     `json:"create_new_record"`
}

type UnavailableCategory struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	Reason       string `json:"reason"`
}

const ReasonNoPublishedPackages = "no_published_packages"

type PrepareTestResponse struct {
	RecordID              *string                   `json:"record_id"`
	Categories            []models.PreparedCategory `json:"categories"`
	UnavailableCategories []UnavailableCategory     `json:"unavailable_categories"`
}

// ===== LIFECYCLE =====

type StartTestRequest struct {
	PackageID          string                    `json:"package_id" validate:"required"`
	CategoryID         string                    `json:"category_id" validate:"required"`
	RecordID           *string                   `json:"record_id"`
	TestMeta           *models.TestPlan          `json:"test_meta"`
	PreparedCategories []models.PreparedCategory `json:"prepared_categories"`
}

type StartTestResponse struct {
	AttemptID        string    `json:"attempt_id"`
	SessionToken     string    `json:"session_token"`
	RecordID         string    `json:"record_id"`
	PackageID        string    `json:"package_id"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Resumed          bool      `json:"resumed"`
}

type PlayResponse struct {
	AttemptID        string                        `json:"attempt_id"`
	RecordID         *string                       `json:"record_id"`
	Package          *models.QuestionPackage       `json:"package"`
	TotalQuestions   int                           `json:"total_questions"`
	ExpiresAt        time.Time                     `json:"expires_at"`
	RemainingSeconds int                           `json:"remaining_seconds"`
	RestoredAnswers  map[string]models.AnswerValue `json:"restored_answers"`
	AudioCounts      map[string]int                `json:"audio_counts"`
	CurrentPageIndex int                           `json:"current_page_index"`
	TestPlan         *models.TestPlan              `json:"test_plan,omitempty"`
}

type SaveProgressRequest struct {
	SessionToken     string                   `json:"session_token"`
	Answers          []models.SubmittedAnswer `json:"answers" validate:"dive"`
	CurrentPageIndex *int                     `json:"current_page_index" validate:"omitempty,min=0"`
	AudioCounts      map[string]int           `json:"audio_counts"`
	Meta             *models.TestPlan         `json:"meta"`
}

const (
	ReasonSessionExpired   = "session_expired"
	ReasonAlreadyCompleted = "already_completed"
	ReasonSaveFailed       = "save_failed"
)

type SaveProgressResponse struct {
	Saved      bool   `json:"saved"`
	SavedCount int    `json:"saved_count"`
	Reason     string `json:"reason,omitempty"`
}

type SubmitTestRequest struct {
	SessionToken string                   `json:"session_token"`
	Answers      []models.SubmittedAnswer `json:"answers" validate:"dive"`
}

// SubmitTestResponse reports the graded result. For an attempt that was
// already finalized only the recorded score is returned.
type SubmitTestResponse struct {
	AttemptID        string    `json:"attempt_id"`
	TotalScore       int       `json:"total_score"`
	CorrectCount     int       `json:"correct_count"`
	TotalQuestions   int       `json:"total_questions"`
	CompletedAt      time.Time `json:"completed_at"`
	RecordID         *string   `json:"record_id"`
	AlreadyCompleted bool      `json:"already_completed"`
	AutoSubmitted    bool      `json:"auto_submitted"`
}

type RestoreResponse struct {
	AttemptID    string                        `json:"attempt_id"`
	Answers      map[string]models.AnswerValue `json:"answers"`
	AudioCounts  map[string]int                `json:"audio_counts"`
	SessionToken string                        `json:"session_token"`
	Count        int                           `json:"count"`
}

type PackageStatusResponse struct {
	AttemptID string               `json:"attempt_id"`
	PackageID string               `json:"package_id"`
	Status    models.PackageStatus `json:"status"`
}

type ActiveSessionInfo struct {
	AttemptID        string    `json:"attempt_id"`
	PackageID        string    `json:"package_id"`
	CategoryID       string    `json:"category_id"`
	CategoryName     string    `json:"category_name"`
	RecordID         *string   `json:"record_id"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

type CleanupResponse struct {
	AttemptID       string `json:"attempt_id,omitempty"`
	DeletedSessions int64  `json:"deleted_sessions"`
	DeletedAnswers  int64  `json:"deleted_answers"`
	DeletedAttempts int64  `json:"deleted_attempts"`
}

// ===== RECORDS =====

type RecordListQuery struct {
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size"`
	Sort     string `form:"sort" validate:"sort_order"`
}

const (
	DefaultRecordPageSize = 10
	MaxRecordPageSize     = 50
)

type CategoryScore struct {
	CategoryName string `json:"category_name"`
	Score        int    `json:"score"`
}

type TestRecordSummary struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	AverageScore    *float64        `json:"average_score"`
	Feedback        *string         `json:"feedback"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at"`
	Categories      []CategoryScore `json:"categories"`
	AttemptsCount   int             `json:"attempts_count"`
	LatestAttemptID string          `json:"latest_attempt_id"`
}

type TestRecordPage struct {
	Records   []TestRecordSummary `json:"records"`
	Total     int64               `json:"total"`
	Page      int                 `json:"page"`
	PageSize  int                 `json:"page_size"`
	BestScore *TestRecordSummary  `json:"best_score,omitempty"`
}

type SetFeedbackRequest struct {
	Feedback string `json:"feedback" validate:"max=2000"`
}

type AttemptSummary struct {
	AttemptID    string     `json:"attempt_id"`
	RecordID     *string    `json:"record_id"`
	CategoryName string     `json:"category_name"`
	PackageTitle string     `json:"package_title"`
	Score        int        `json:"score"`
	CompletedAt  *time.Time `json:"completed_at"`
}

type DashboardCategory struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	CompletedInCurrentRecord bool   `json:"completed_in_current_record"`
}

type DashboardSummary struct {
	RecentAttempts []AttemptSummary    `json:"recent_attempts"`
	BestScores     []CategoryScore     `json:"best_scores"`
	Categories     []DashboardCategory `json:"categories"`
	OverallAverage int                 `json:"overall_average"`
	BestAverage    float64             `json:"best_average"`
	RecordCount    int64               `json:"record_count"`
	ActiveRecordID *string             `json:"active_record_id"`
	AllComplete    bool                `json:"all_complete"`
	ActiveSession  *ActiveSessionInfo  `json:"active_session"`
}

type RecordExport struct {
	FileName string
	Data     []byte
}

// ===== MAINTENANCE =====

type FinalizeExpiredResponse struct {
	Count      int      `json:"count"`
	AttemptIDs []string `json:"attempt_ids"`
	Failed     int      `json:"failed"`
}
