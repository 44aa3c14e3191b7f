package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TestAttempt is one student's pass at one question package.
// CompletedAt and TotalScore are written once, at finalization.
type TestAttempt struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	StudentID   string     `json:"student_id" gorm:"not null;size:64;index"`
	PackageID   string     `json:"package_id" gorm:"not null;size:36;index"`
	RecordID    *string    `json:"record_id" gorm:"size:36;index"`
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	CompletedAt *time.Time `json:"completed_at" gorm:"index"`
	TotalScore  *int       `json:"total_score"`

	// Snapshots taken at completion so history survives package edits
	PackageTitle *string `json:"package_title" gorm:"size:200"`
	CategoryName *string `json:"category_name" gorm:"size:200"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Package *QuestionPackage `json:"package,omitempty" gorm:"foreignKey:PackageID"`
}

func (a *TestAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (a *TestAttempt) IsCompleted() bool {
	return a.CompletedAt != nil
}

// Score returns the recorded score, 0 when not graded yet.
func (a *TestAttempt) Score() int {
	if a.TotalScore == nil {
		return 0
	}
	return *a.TotalScore
}

// RecordedCategory returns the snapshot category name, falling back to the live one.
func (a *TestAttempt) RecordedCategory() string {
	if a.CategoryName != nil && *a.CategoryName != "" {
		return *a.CategoryName
	}
	if a.Package != nil && a.Package.Category != nil {
		return a.Package.Category.Name
	}
	return "Uncategorized"
}

func (a *TestAttempt) RecordedPackageTitle() string {
	if a.PackageTitle != nil && *a.PackageTitle != "" {
		return *a.PackageTitle
	}
	if a.Package != nil {
		return a.Package.Title
	}
	return "Unknown"
}

// TestRecord groups the attempts of one multi-category run.
type TestRecord struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	StudentID    string    `json:"student_id" gorm:"not null;size:64;index"`
	AverageScore *float64  `json:"average_score"`
	Feedback     *string   `json:"feedback" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time `json:"updated_at"`

	Attempts []TestAttempt `json:"attempts,omitempty" gorm:"foreignKey:RecordID"`
}

func (r *TestRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
