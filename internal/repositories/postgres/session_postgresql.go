package postgres

import (
	"context"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SessionPostgreSQL struct {
	db *gorm.DB
}

func NewSessionPostgreSQL(db *gorm.DB) repositories.SessionRepository {
	return &SessionPostgreSQL{db: db}
}

func (s *SessionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, session *models.ActiveSession) error {
	return repositories.Translate(s.getDB(tx).WithContext(ctx).Create(session).Error)
}

func (s *SessionPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string) (*models.ActiveSession, error) {
	var session models.ActiveSession
	if err := s.getDB(tx).WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("last_activity DESC").
		First(&session).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) (*models.ActiveSession, error) {
	var session models.ActiveSession
	if err := s.getDB(tx).WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("last_activity DESC").
		First(&session).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &session, nil
}

func (s *SessionPostgreSQL) ListByStudent(ctx context.Context, tx *gorm.DB, studentID string) ([]*models.ActiveSession, error) {
	var sessions []*models.ActiveSession
	if err := s.getDB(tx).WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("last_activity DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *SessionPostgreSQL) FindLive(ctx context.Context, tx *gorm.DB, studentID string, now time.Time) (*models.ActiveSession, error) {
	var session models.ActiveSession
	if err := s.getDB(tx).WithContext(ctx).
		Where("student_id = ? AND expires_at > ?", studentID, now).
		Where("attempt_id IN (SELECT id FROM test_attempts WHERE completed_at IS NULL)").
		Order("last_activity DESC").
		First(&session).Error; err != nil {
		return nil, repositories.Translate(err)
	}
	return &session, nil
}

func (s *SessionPostgreSQL) ListExpired(ctx context.Context, tx *gorm.DB, studentID string, before time.Time, limit int) ([]*models.ActiveSession, error) {
	query := s.getDB(tx).WithContext(ctx).Where("expires_at < ?", before)
	if studentID != "" {
		query = query.Where("student_id = ?", studentID)
	}
	query = query.Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var sessions []*models.ActiveSession
	if err := query.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *SessionPostgreSQL) Touch(ctx context.Context, tx *gorm.DB, attemptID string, at time.Time) error {
	return s.getDB(tx).WithContext(ctx).
		Model(&models.ActiveSession{}).
		Where("attempt_id = ?", attemptID).
		Update("last_activity", at).Error
}

func (s *SessionPostgreSQL) UpdateMetadata(ctx context.Context, tx *gorm.DB, id string, metadata datatypes.JSON, at time.Time) error {
	return s.getDB(tx).WithContext(ctx).
		Model(&models.ActiveSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"metadata":      metadata,
			"last_activity": at,
		}).Error
}

func (s *SessionPostgreSQL) DeleteByStudent(ctx context.Context, tx *gorm.DB, studentID string) (int64, error) {
	res := s.getDB(tx).WithContext(ctx).
		Where("student_id = ?", studentID).
		Delete(&models.ActiveSession{})
	return res.RowsAffected, res.Error
}

func (s *SessionPostgreSQL) DeleteByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) (int64, error) {
	res := s.getDB(tx).WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Delete(&models.ActiveSession{})
	return res.RowsAffected, res.Error
}

func (s *SessionPostgreSQL) DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.getDB(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&models.ActiveSession{})
	return res.RowsAffected, res.Error
}

func (s *SessionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	return conn(s.db, tx)
}
