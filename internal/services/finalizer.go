package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/grading"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"gorm.io/gorm"
)

type Option func(*lifecycle)

// WithClock replaces the wall clock. Every expiry decision goes through it.
func WithClock(now func() time.Time) Option {
	return func(l *lifecycle) { l.now = now }
}

func WithEngine(engine *grading.Engine) Option {
	return func(l *lifecycle) { l.engine = engine }
}

// WithPackagePicker replaces the random choice of a package among the
// published ones of a category. pick returns an index in [0, n).
func WithPackagePicker(pick func(n int) int) Option {
	return func(l *lifecycle) { l.pick = pick }
}

// lifecycle holds what every service needs to finalize attempts: lazy
// auto-submit runs from read paths of all of them.
type lifecycle struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	engine    *grading.Engine
	now       func() time.Time
	pick      func(n int) int
}

func newLifecycle(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, opts ...Option) *lifecycle {
	l := &lifecycle{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		engine:    grading.NewEngine(),
		now:       time.Now,
		pick:      rand.IntN,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lifecycle) clock() time.Time {
	return l.now().UTC()
}

type finalizeTrigger int

const (
	triggerManual finalizeTrigger = iota
	triggerAuto
)

type finalizeOutcome struct {
	Attempt          *models.TestAttempt
	Result           grading.Result
	AlreadyCompleted bool
	AverageScore     *float64
}

// finalize grades the attempt and writes its score exactly once. Drafts are
// graded with overrides applied on top; nil overrides grade the drafts alone.
// All changes share one transaction: the score, the draft and session
// deletion and the record average. A caller that loses the race gets the
// recorded attempt back with AlreadyCompleted set.
func (l *lifecycle) finalize(ctx context.Context, attemptID string, overrides map[string]grading.Response, completedAt time.Time, trigger finalizeTrigger) (*finalizeOutcome, error) {
	var out finalizeOutcome

	err := l.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		attempt, err := l.repo.Attempt().GetByID(ctx, tx, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to load attempt: %w", err)
		}
		if attempt.IsCompleted() {
			out.Attempt = attempt
			out.AlreadyCompleted = true
			return l.discardLeftovers(ctx, tx, attemptID)
		}

		var (
			items        []models.QuestionItem
			packageTitle *string
			categoryName *string
		)
		content, err := l.repo.Package().GetPackageContent(ctx, tx, attempt.PackageID)
		switch {
		case err == nil:
			items = content.Items()
			packageTitle = &content.Title
			if name := content.CategoryName(); name != "" {
				categoryName = &name
			}
		case repositories.IsNotFoundError(err):
			l.logger.Warn("Package missing at finalization, grading as empty",
				"attempt_id", attemptID,
				"package_id", attempt.PackageID)
		default:
			return fmt.Errorf("failed to load package content: %w", err)
		}

		drafts, err := l.repo.Answer().ListByAttempt(ctx, tx, attemptID)
		if err != nil {
			return fmt.Errorf("failed to load draft answers: %w", err)
		}
		responses := make(map[string]grading.Response, len(drafts)+len(overrides))
		for _, d := range drafts {
			responses[d.ItemID] = grading.FromDraft(*d)
		}
		for itemID, resp := range overrides {
			responses[itemID] = resp
		}
		result := l.engine.Grade(items, responses)

		completed, err := l.repo.Attempt().Complete(ctx, tx, attemptID, repositories.AttemptCompletion{
			CompletedAt:  completedAt,
			TotalScore:   result.TotalScore,
			PackageTitle: packageTitle,
			CategoryName: categoryName,
		})
		if err != nil {
			return fmt.Errorf("failed to complete attempt: %w", err)
		}
		if !completed {
			current, err := l.repo.Attempt().GetByID(ctx, tx, attemptID)
			if err != nil {
				return fmt.Errorf("failed to reload attempt: %w", err)
			}
			out.Attempt = current
			out.AlreadyCompleted = true
			return nil
		}

		if err := l.discardLeftovers(ctx, tx, attemptID); err != nil {
			return err
		}

		if attempt.RecordID != nil {
			avg, err := l.recomputeAverage(ctx, tx, *attempt.RecordID)
			if err != nil {
				return err
			}
			out.AverageScore = avg
		}

		attempt.CompletedAt = &completedAt
		attempt.TotalScore = &result.TotalScore
		attempt.PackageTitle = packageTitle
		attempt.CategoryName = categoryName
		out.Attempt = attempt
		out.Result = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.AlreadyCompleted {
		l.logger.Debug("Attempt already finalized", "attempt_id", attemptID)
		return &out, nil
	}

	eventType := events.EventAttemptSubmitted
	if trigger == triggerAuto {
		eventType = events.EventAttemptAutoSubmitted
	}
	l.logger.Info("Attempt finalized",
		"attempt_id", attemptID,
		"student_id", out.Attempt.StudentID,
		"total_score", out.Result.TotalScore,
		"auto", trigger == triggerAuto)
	l.publish(ctx, eventType, out.Attempt.StudentID, events.AttemptFinalizedEvent{
		AttemptID:      attemptID,
		StudentID:      out.Attempt.StudentID,
		RecordID:       derefString(out.Attempt.RecordID),
		TotalScore:     out.Result.TotalScore,
		CorrectCount:   out.Result.CorrectCount,
		TotalQuestions: out.Result.TotalQuestions,
		CompletedAt:    completedAt,
	})
	return &out, nil
}

func (l *lifecycle) discardLeftovers(ctx context.Context, tx *gorm.DB, attemptID string) error {
	if _, err := l.repo.Answer().DeleteByAttempts(ctx, tx, attemptID); err != nil {
		return fmt.Errorf("failed to delete draft answers: %w", err)
	}
	if _, err := l.repo.Session().DeleteByAttempt(ctx, tx, attemptID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// recomputeAverage rebuilds the record average from every completed attempt.
// The record row is locked first so concurrent finalizations in one record
// see each other's scores.
func (l *lifecycle) recomputeAverage(ctx context.Context, tx *gorm.DB, recordID string) (*float64, error) {
	if err := l.repo.Record().LockByID(ctx, tx, recordID); err != nil {
		return nil, fmt.Errorf("failed to lock record: %w", err)
	}
	attempts, err := l.repo.Attempt().ListByRecord(ctx, tx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list record attempts: %w", err)
	}
	avg := averageScore(attempts)
	if err := l.repo.Record().UpdateAverage(ctx, tx, recordID, avg); err != nil {
		return nil, fmt.Errorf("failed to update record average: %w", err)
	}
	return avg, nil
}

// averageScore is the mean of completed scores rounded to two decimals, nil
// when nothing is completed.
func averageScore(attempts []*models.TestAttempt) *float64 {
	sum, n := 0, 0
	for _, a := range attempts {
		if a.IsCompleted() && a.TotalScore != nil {
			sum += *a.TotalScore
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := round2(float64(sum) / float64(n))
	return &avg
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// maybeFinalizeIfExpired auto-submits the attempt behind an expired session.
// It returns nil for a live session.
func (l *lifecycle) maybeFinalizeIfExpired(ctx context.Context, session *models.ActiveSession) (*finalizeOutcome, error) {
	if !session.IsExpired(l.clock()) {
		return nil, nil
	}

	out, err := l.finalize(ctx, session.AttemptID, nil, session.ExpiresAt, triggerAuto)
	if errors.Is(err, ErrAttemptNotFound) {
		l.logger.Warn("Removing session without attempt", "session_id", session.ID, "attempt_id", session.AttemptID)
		if _, derr := l.repo.Session().DeleteByAttempt(ctx, nil, session.AttemptID); derr != nil {
			return nil, derr
		}
		return nil, nil
	}
	return out, err
}

// autoSubmitExpired finalizes every expired session of the student. Failures
// are logged and never surface to the read path that triggered it.
func (l *lifecycle) autoSubmitExpired(ctx context.Context, studentID string) int {
	sessions, err := l.repo.Session().ListExpired(ctx, nil, studentID, l.clock(), 0)
	if err != nil {
		l.logger.Warn("Failed to list expired sessions", "student_id", studentID, "error", err)
		return 0
	}

	finalized := 0
	for _, session := range sessions {
		out, err := l.maybeFinalizeIfExpired(ctx, session)
		if err != nil {
			l.logger.Error("Auto-submit failed",
				"student_id", studentID,
				"attempt_id", session.AttemptID,
				"error", err)
			continue
		}
		if out != nil && !out.AlreadyCompleted {
			finalized++
		}
	}
	return finalized
}

func (l *lifecycle) publish(ctx context.Context, eventType events.EventType, studentID string, data interface{}) {
	if l.publisher == nil {
		return
	}
	event := events.NewLifecycleEvent(eventType, studentID, data)
	if err := l.publisher.PublishLifecycleEvent(ctx, event); err != nil {
		l.logger.Warn("Failed to publish lifecycle event",
			"event_type", eventType,
			"student_id", studentID,
			"error", err)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
