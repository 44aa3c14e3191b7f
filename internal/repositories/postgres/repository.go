package postgres

import (
	"context"

	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"gorm.io/gorm"
)

type repository struct {
	db       *gorm.DB
	packages repositories.PackageRepository
	records  repositories.RecordRepository
	attempts repositories.AttemptRepository
	answers  repositories.AnswerRepository
	sessions repositories.SessionRepository
}

func NewRepository(db *gorm.DB) repositories.Repository {
	return &repository{
		db:       db,
		packages: NewPackagePostgreSQL(db),
		records:  NewRecordPostgreSQL(db),
		attempts: NewAttemptPostgreSQL(db),
		answers:  NewAnswerPostgreSQL(db),
		sessions: NewSessionPostgreSQL(db),
	}
}

func (r *repository) Package() repositories.PackageRepository { return r.packages }
func (r *repository) Record() repositories.RecordRepository   { return r.records }
func (r *repository) Attempt() repositories.AttemptRepository { return r.attempts }
func (r *repository) Answer() repositories.AnswerRepository   { return r.answers }
func (r *repository) Session() repositories.SessionRepository { return r.sessions }
func (r *repository) DB() *gorm.DB                            { return r.db }

func (r *repository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// conn picks the transaction when one is given.
func conn(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}
