package postgres

import (
	"context"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var answerConflictColumns = []clause.Column{{Name: "attempt_id"}, {Name: "item_id"}}

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

func (a *AnswerPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, answer *models.TemporaryAnswer) error {
	return a.getDB(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   answerConflictColumns,
			DoUpdates: clause.AssignmentColumns([]string{"selected_key", "text_answer", "audio_play_count", "updated_at"}),
		}).
		Create(answer).Error
}

func (a *AnswerPostgreSQL) UpsertAudioCount(ctx context.Context, tx *gorm.DB, attemptID, itemID string, count int) error {
	answer := &models.TemporaryAnswer{
		AttemptID:      attemptID,
		ItemID:         itemID,
		AudioPlayCount: models.CapAudioPlays(count),
	}
	return a.getDB(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   answerConflictColumns,
			DoUpdates: clause.AssignmentColumns([]string{"audio_play_count", "updated_at"}),
		}).
		Create(answer).Error
}

func (a *AnswerPostgreSQL) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) ([]*models.TemporaryAnswer, error) {
	var answers []*models.TemporaryAnswer
	if err := a.getDB(tx).WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("created_at ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) DeleteByAttempts(ctx context.Context, tx *gorm.DB, attemptIDs ...string) (int64, error) {
	if len(attemptIDs) == 0 {
		return 0, nil
	}
	res := a.getDB(tx).WithContext(ctx).
		Where("attempt_id IN ?", attemptIDs).
		Delete(&models.TemporaryAnswer{})
	return res.RowsAffected, res.Error
}

func (a *AnswerPostgreSQL) DeleteCreatedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := a.getDB(tx).WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM active_sessions s WHERE s.attempt_id = temporary_answers.attempt_id)").
		Delete(&models.TemporaryAnswer{})
	return res.RowsAffected, res.Error
}

func (a *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	return conn(a.db, tx)
}
