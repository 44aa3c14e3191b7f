package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	hasCompletedAttempt = "EXISTS (SELECT 1 FROM test_attempts ta WHERE ta.record_id = test_records.id AND ta.completed_at IS NOT NULL)"
	hasOpenAttempt      = "EXISTS (SELECT 1 FROM test_attempts ta WHERE ta.record_id = test_records.id AND ta.completed_at IS NULL)"
	hasNoAttempt        = "NOT EXISTS (SELECT 1 FROM test_attempts ta WHERE ta.record_id = test_records.id)"
)

type RecordPostgreSQL struct {
	db *gorm.DB
}

func NewRecordPostgreSQL(db *gorm.DB) repositories.RecordRepository {
	return &RecordPostgreSQL{db: db}
}

func (r *RecordPostgreSQL) Create(ctx context.Context, tx *gorm.DB, record *models.TestRecord) error {
	return repositories.Translate(r.getDB(tx).WithContext(ctx).Create(record).Error)
}

func (r *RecordPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.TestRecord, error) {
	var record models.TestRecord
	if err := r.getDB(tx).WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &record, nil
}

// LockByID takes a row lock on the record for the rest of tx.
func (r *RecordPostgreSQL) LockByID(ctx context.Context, tx *gorm.DB, id string) error {
	var record models.TestRecord
	err := r.getDB(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		First(&record).Error
	return repositories.Translate(err)
}

func (r *RecordPostgreSQL) GetForStudent(ctx context.Context, tx *gorm.DB, id, studentID string) (*models.TestRecord, error) {
	var record models.TestRecord
	if err := r.getDB(tx).WithContext(ctx).
		Where("id = ? AND student_id = ?", id, studentID).
		First(&record).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &record, nil
}

func (r *RecordPostgreSQL) GetLatestWithIncomplete(ctx context.Context, tx *gorm.DB, studentID string) (*models.TestRecord, error) {
	var record models.TestRecord
	if err := r.getDB(tx).WithContext(ctx).
		Where("student_id = ?", studentID).
		Where(hasOpenAttempt).
		Order("created_at DESC").
		First(&record).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &record, nil
}

func (r *RecordPostgreSQL) GetLatest(ctx context.Context, tx *gorm.DB, studentID string) (*models.TestRecord, error) {
	var record models.TestRecord
	if err := r.getDB(tx).WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		First(&record).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &record, nil
}

func (r *RecordPostgreSQL) UpdateAverage(ctx context.Context, tx *gorm.DB, id string, average *float64) error {
	return r.getDB(tx).WithContext(ctx).
		Model(&models.TestRecord{}).
		Where("id = ?", id).
		Update("average_score", average).Error
}

func (r *RecordPostgreSQL) UpdateFeedback(ctx context.Context, tx *gorm.DB, id string, feedback *string) error {
	res := r.getDB(tx).WithContext(ctx).
		Model(&models.TestRecord{}).
		Where("id = ?", id).
		Update("feedback", feedback)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *RecordPostgreSQL) ListWithCompleted(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.RecordFilters) ([]*models.TestRecord, int64, error) {
	var total int64
	if err := r.completedQuery(ctx, tx, studentID).Model(&models.TestRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	direction := "DESC"
	if strings.EqualFold(filters.SortOrder, "asc") {
		direction = "ASC"
	}
	query := r.completedQuery(ctx, tx, studentID).Order("created_at " + direction)
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var records []*models.TestRecord
	if err := query.Preload("Attempts", completedAttempts).Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *RecordPostgreSQL) ListAllWithCompleted(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.TestRecord, error) {
	var records []*models.TestRecord
	if err := r.completedQuery(ctx, tx, studentID).
		Order("created_at ASC").
		Preload("Attempts", completedAttempts).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *RecordPostgreSQL) ListRecent(ctx context.Context, tx *gorm.DB, studentID string, limit int) ([]*models.TestRecord, error) {
	query := r.getDB(tx).WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []*models.TestRecord
	if err := query.
		Preload("Attempts", completedAttempts).
		Preload("Attempts.Package").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *RecordPostgreSQL) Count(ctx context.Context, tx *gorm.DB, studentID string) (int64, error) {
	var count int64
	err := r.getDB(tx).WithContext(ctx).
		Model(&models.TestRecord{}).
		Where("student_id = ?", studentID).
		Count(&count).Error
	return count, err
}

func (r *RecordPostgreSQL) DeleteEmpty(ctx context.Context, tx *gorm.DB, studentID string, createdBefore time.Time) (int64, error) {
	query := r.getDB(tx).WithContext(ctx).Where(hasNoAttempt)
	if studentID != "" {
		query = query.Where("student_id = ?", studentID)
	}
	if !createdBefore.IsZero() {
		query = query.Where("created_at < ?", createdBefore)
	}
	res := query.Delete(&models.TestRecord{})
	return res.RowsAffected, res.Error
}

func (r *RecordPostgreSQL) completedQuery(ctx context.Context, tx *gorm.DB, studentID string) *gorm.DB {
	return r.getDB(tx).WithContext(ctx).
		Where("student_id = ?", studentID).
		Where(hasCompletedAttempt)
}

func (r *RecordPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	return conn(r.db, tx)
}

func completedAttempts(db *gorm.DB) *gorm.DB {
	return db.Where("completed_at IS NOT NULL").Order("completed_at ASC")
}
