package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the lifecycle transitions published by this service
type EventType string

const (
	EventAttemptStarted       EventType = "attempt.started"
	EventAttemptResumed       EventType = "attempt.resumed"
	EventAttemptSubmitted     EventType = "attempt.submitted"
	EventAttemptAutoSubmitted EventType = "attempt.auto_submitted"
	EventAttemptDiscarded     EventType = "attempt.discarded"
	EventSessionForceCleaned  EventType = "session.force_cleaned"
)

const (
	EventSource  = "exam-session-service"
	EventVersion = "1.0"
)

// LifecycleEvent is the envelope of every published event
type LifecycleEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	StudentID string                 `json:"student_id"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func NewLifecycleEvent(eventType EventType, studentID string, data interface{}) *LifecycleEvent {
	return &LifecycleEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    EventSource,
		Version:   EventVersion,
		StudentID: studentID,
		Data:      data,
	}
}

// Event payloads

type AttemptStartedEvent struct {
	AttemptID    string    `json:"attempt_id"`
	StudentID    string    `json:"student_id"`
	PackageID    string    `json:"package_id"`
	CategoryID   string    `json:"category_id"`
	CategoryName string    `json:"category_name"`
	RecordID     string    `json:"record_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type AttemptFinalizedEvent struct {
	AttemptID      string    `json:"attempt_id"`
	StudentID      string    `json:"student_id"`
	RecordID       string    `json:"record_id,omitempty"`
	TotalScore     int       `json:"total_score"`
	CorrectCount   int       `json:"correct_count"`
	TotalQuestions int       `json:"total_questions"`
	CompletedAt    time.Time `json:"completed_at"`
}

type AttemptDiscardedEvent struct {
	AttemptID string `json:"attempt_id"`
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

type SessionForceCleanedEvent struct {
	StudentID  string   `json:"student_id"`
	AttemptIDs []string `json:"attempt_ids"`
}
