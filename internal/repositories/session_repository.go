package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionRepository interface for the active session table
type SessionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, session *models.ActiveSession) error

	// GetByStudent returns the most recently active row, expired or not.
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string) (*models.ActiveSession, error)
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) (*models.ActiveSession, error)
	ListByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.ActiveSession, error)
	// FindLive returns the newest unexpired session whose attempt is still open.
	FindLive(ctx context.Context, tx *gorm.DB, studentID string, now time.Time) (*models.ActiveSession, error)
	// ListExpired returns sessions with expires_at before the cutoff. An empty
	// studentID matches every student; limit 0 means no limit.
	ListExpired(ctx context.Context, tx *gorm.DB, studentID string, before time.Time, limit int) ([]*models.ActiveSession, error)

	Touch(ctx context.Context, tx *gorm.DB, attemptID string, at time.Time) error
	UpdateMetadata(ctx context.Context, tx *gorm.DB, id string, metadata datatypes.JSON, at time.Time) error

	DeleteByStudent(ctx context.Context, tx *gorm.DB, studentID string) (int64, error)
	DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) (int64, error)
	DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []string) (int64, error)
}
