package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"gorm.io/gorm"
)

// RecordRepository interface for test record operations
type RecordRepository interface {
	Create(ctx context.Context, tx *gorm.DB, record *models.TestRecord) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.TestRecord, error)
	GetForStudent(ctx context.Context, tx *gorm.DB, id, studentID string) (*models.TestRecord, error)
	// LockByID serializes writers of one record inside tx.
	LockByID(ctx context.Context, tx *gorm.DB, id string) error

	// Record resolution order used when a test starts
	GetLatestWithIncomplete(ctx context.Context, tx *gorm.DB, studentID string) (*models.TestRecord, error)
	GetLatest(ctx context.Context, tx *gorm.DB, studentID string) (*models.TestRecord, error)

	UpdateAverage(ctx context.Context, tx *gorm.DB, id string, average *float64) error
	UpdateFeedback(ctx context.Context, tx *gorm.DB, id string, feedback *string) error

	// ListWithCompleted pages records that have at least one completed attempt.
	// Only completed attempts are preloaded, oldest completion first.
	ListWithCompleted(ctx context.Context, tx *gorm.DB, studentID string, filters RecordFilters) ([]*models.TestRecord, int64, error)
	// ListAllWithCompleted is the unpaged variant ordered by creation, oldest first.
	ListAllWithCompleted(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.TestRecord, error)
	// ListRecent returns the newest records with completed attempts and their packages preloaded.
	ListRecent(ctx context.Context, tx *gorm.DB, studentID string, limit int) ([]*models.TestRecord, error)
	Count(ctx context.Context, tx *gorm.DB, studentID string) (int64, error)

	// DeleteEmpty removes records without any attempt. An empty studentID
	// matches every student; a zero createdBefore matches every age.
	DeleteEmpty(ctx context.Context, tx *gorm.DB, studentID string, createdBefore time.Time) (int64, error)
}
