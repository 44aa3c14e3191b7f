package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"gorm.io/gorm"
)

// AttemptRepository interface for test attempt operations
type AttemptRepository interface {
	// Basic operations
	Create(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.TestAttempt, error)
	// GetForStudent loads the attempt with its package and category.
	GetForStudent(ctx context.Context, tx *gorm.DB, id, studentID string) (*models.TestAttempt, error)

	// Record queries
	FindInRecordByCategory(ctx context.Context, tx *gorm.DB, recordID, studentID, categoryID string) (*models.TestAttempt, error)
	CountIncompleteInRecord(ctx context.Context, tx *gorm.DB, recordID, studentID string) (int64, error)
	ListByRecord(ctx context.Context, tx *gorm.DB, recordID string) ([]*models.TestAttempt, error)
	ListCompletedByStudent(ctx context.Context, tx *gorm.DB, studentID string, limit int) ([]*models.TestAttempt, error)

	// Complete writes the final score once. It reports false when the attempt
	// was already completed, in which case nothing is changed.
	Complete(ctx context.Context, tx *gorm.DB, id string, completion AttemptCompletion) (bool, error)

	// Deletion never touches completed attempts.
	DeleteIncomplete(ctx context.Context, tx *gorm.DB, id, studentID string) (int64, error)
	// DeleteIncompleteStartedBefore only removes attempts without an active session.
	DeleteIncompleteStartedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// AnswerRepository is the draft answer store.
type AnswerRepository interface {
	// Upsert replaces the draft for (attempt, item).
	Upsert(ctx context.Context, tx *gorm.DB, answer *models.TemporaryAnswer) error
	// UpsertAudioCount creates the draft if needed and only touches the play counter.
	UpsertAudioCount(ctx context.Context, tx *gorm.DB, attemptID, itemID string, count int) error

	ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) ([]*models.TemporaryAnswer, error)
	DeleteByAttempts(ctx context.Context, tx *gorm.DB, attemptIDs ...string) (int64, error)
	// DeleteCreatedBefore leaves drafts of attempts that still hold a session.
	DeleteCreatedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}
