package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository groups the per-aggregate repositories behind one handle. Every
// method of every repository takes an optional tx; nil means "use the pool".
type Repository interface {
	Package() PackageRepository
	Record() RecordRepository
	Attempt() AttemptRepository
	Answer() AnswerRepository
	Session() SessionRepository

	// WithTransaction runs fn inside one database transaction. Returning an
	// error rolls everything back.
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	DB() *gorm.DB
}

// ===== SHARED FILTER STRUCTS =====

type RecordFilters struct {
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	SortOrder string `json:"sort_order"` // "asc", "desc" by created_at
}

type AttemptCompletion struct {
	CompletedAt  time.Time `json:"completed_at"`
	TotalScore   int       `json:"total_score"`
	PackageTitle *string   `json:"package_title"`
	CategoryName *string   `json:"category_name"`
}

type RetentionResult struct {
	Cutoff            time.Time `json:"cutoff"`
	FinalizedAttempts int64     `json:"finalized_attempts"`
	FailedFinalize    int64     `json:"failed_finalize"`
	DeletedAnswers    int64     `json:"deleted_answers"`
	DeletedSessions   int64     `json:"deleted_sessions"`
	DeletedAttempts   int64     `json:"deleted_attempts"`
	DeletedRecords    int64     `json:"deleted_records"`
}
