package postgres

import (
	"context"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"gorm.io/gorm"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	return repositories.Translate(a.getDB(tx).WithContext(ctx).Create(attempt).Error)
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := a.getDB(tx).WithContext(ctx).Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetForStudent(ctx context.Context, tx *gorm.DB, id, studentID string) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := a.getDB(tx).WithContext(ctx).
		Preload("Package.Category").
		Where("id = ? AND student_id = ?", id, studentID).
		First(&attempt).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &attempt, nil
}

// FindInRecordByCategory prefers an open attempt over completed ones.
func (a *AttemptPostgreSQL) FindInRecordByCategory(ctx context.Context, tx *gorm.DB, recordID, studentID, categoryID string) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := a.getDB(tx).WithContext(ctx).
		Where("record_id = ? AND student_id = ?", recordID, studentID).
		Where("package_id IN (SELECT id FROM question_packages WHERE category_id = ?)", categoryID).
		Order("CASE WHEN completed_at IS NULL THEN 0 ELSE 1 END").
		Order("started_at DESC").
		First(&attempt).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) CountIncompleteInRecord(ctx context.Context, tx *gorm.DB, recordID, studentID string) (int64, error) {
	var count int64
	err := a.getDB(tx).WithContext(ctx).
		Model(&models.TestAttempt{}).
		Where("record_id = ? AND student_id = ? AND completed_at IS NULL", recordID, studentID).
		Count(&count).Error
	return count, err
}

func (a *AttemptPostgreSQL) ListByRecord(ctx context.Context, tx *gorm.DB, recordID string) ([]*models.TestAttempt, error) {
	var attempts []*models.TestAttempt
	if err := a.getDB(tx).WithContext(ctx).
		Preload("Package.Category").
		Where("record_id = ?", recordID).
		Order("started_at ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) ListCompletedByStudent(ctx context.Context, tx *gorm.DB, studentID string, limit int) ([]*models.TestAttempt, error) {
	query := a.getDB(tx).WithContext(ctx).
		Where("student_id = ? AND completed_at IS NOT NULL", studentID).
		Order("completed_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var attempts []*models.TestAttempt
	if err := query.Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// Complete relies on the completed_at IS NULL guard: of two racing
// finalizers only one sees a row affected.
func (a *AttemptPostgreSQL) Complete(ctx context.Context, tx *gorm.DB, id string, completion repositories.AttemptCompletion) (bool, error) {
	res := a.getDB(tx).WithContext(ctx).
		Model(&models.TestAttempt{}).
		Where("id = ? AND completed_at IS NULL", id).
		Updates(map[string]interface{}{
			"completed_at":  completion.CompletedAt,
			"total_score":   completion.TotalScore,
			"package_title": completion.PackageTitle,
			"category_name": completion.CategoryName,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (a *AttemptPostgreSQL) DeleteIncomplete(ctx context.Context, tx *gorm.DB, id, studentID string) (int64, error) {
	query := a.getDB(tx).WithContext(ctx).Where("id = ? AND completed_at IS NULL", id)
	if studentID != "" {
		query = query.Where("student_id = ?", studentID)
	}
	res := query.Delete(&models.TestAttempt{})
	return res.RowsAffected, res.Error
}

// DeleteIncompleteStartedBefore skips attempts that still hold a session so an
// attempt awaiting finalization is never lost.
func (a *AttemptPostgreSQL) DeleteIncompleteStartedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := a.getDB(tx).WithContext(ctx).
		Where("completed_at IS NULL AND started_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM active_sessions s WHERE s.attempt_id = test_attempts.id)").
		Delete(&models.TestAttempt{})
	return res.RowsAffected, res.Error
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	return conn(a.db, tx)
}
