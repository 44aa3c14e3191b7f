package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActiveSession binds a student to the one attempt they are currently taking.
// The unique index on StudentID is what keeps a student to a single live session.
type ActiveSession struct {
	ID           string         `json:"id" gorm:"primaryKey;size:36"`
	StudentID    string         `json:"student_id" gorm:"not null;size:64;uniqueIndex"`
	AttemptID    string         `json:"attempt_id" gorm:"not null;size:36;index"`
	SessionToken string         `json:"-" gorm:"not null;size:128"`
	PackageID    string         `json:"package_id" gorm:"not null;size:36"`
	CategoryID   string         `json:"category_id" gorm:"size:36"`
	CategoryName string         `json:"category_name" gorm:"size:200"`
	RecordID     *string        `json:"record_id" gorm:"size:36"`
	ExpiresAt    time.Time      `json:"expires_at" gorm:"not null;index"`
	LastActivity time.Time      `json:"last_activity" gorm:"not null"`
	Metadata     datatypes.JSON `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	Attempt *TestAttempt `json:"-" gorm:"foreignKey:AttemptID"`
}

func (s *ActiveSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (s *ActiveSession) IsExpired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// RemainingSeconds never goes below zero.
func (s *ActiveSession) RemainingSeconds(now time.Time) int {
	if !s.ExpiresAt.After(now) {
		return 0
	}
	return int(s.ExpiresAt.Sub(now) / time.Second)
}

// Metadata keys
const (
	MetaCurrentPageIndex = "current_page_index"
	MetaAudioCounts      = "audio_counts"
	MetaTestPlan         = "test_plan"
	MetaLastSyncAt       = "last_sync_at"
)

// SessionMetadata is the free-form resumable state of a session. Unknown keys
// written by clients are preserved across saves.
type SessionMetadata map[string]json.RawMessage

func DecodeSessionMetadata(raw datatypes.JSON) SessionMetadata {
	meta := SessionMetadata{}
	if len(raw) == 0 {
		return meta
	}
	if err := json.Unmarshal(raw, &meta); err != nil || meta == nil {
		return SessionMetadata{}
	}
	return meta
}

func (m SessionMetadata) Encode() (datatypes.JSON, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func (m SessionMetadata) PageIndex() int {
	var idx int
	if raw, ok := m[MetaCurrentPageIndex]; ok {
		_ = json.Unmarshal(raw, &idx)
	}
	return idx
}

func (m SessionMetadata) AudioCounts() map[string]int {
	counts := map[string]int{}
	if raw, ok := m[MetaAudioCounts]; ok {
		_ = json.Unmarshal(raw, &counts)
	}
	return counts
}

func (m SessionMetadata) TestPlan() *TestPlan {
	raw, ok := m[MetaTestPlan]
	if !ok || string(raw) == "null" {
		return nil
	}
	var plan TestPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil
	}
	return &plan
}

func (m SessionMetadata) Set(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m[key] = b
	return nil
}

// TestPlan describes a multi-category run so any device can resume it.
type TestPlan struct {
	CategoryIDs          []string           `json:"category_ids"`
	CompletedCategoryIDs []string           `json:"completed_category_ids"`
	RecordID             string             `json:"record_id,omitempty"`
	CategoryNames        map[string]string  `json:"category_names,omitempty"`
	PreparedCategories   []PreparedCategory `json:"prepared_categories,omitempty"`
	Mode                 string             `json:"mode"`
	CurrentCategoryID    string             `json:"current_category_id,omitempty"`
}

const (
	PlanModeSingle   = "single"
	PlanModeMultiple = "multiple"
)

// PreparedCategory is one category of a prepared test plan.
type PreparedCategory struct {
	CategoryID      string `json:"category_id"`
	CategoryName    string `json:"category_name"`
	PackageID       string `json:"package_id"`
	TotalQuestions  int    `json:"total_questions"`
	DurationMinutes int    `json:"duration_minutes"`
}
