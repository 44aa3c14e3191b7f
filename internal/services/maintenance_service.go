package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"gorm.io/gorm"
)

type maintenanceService struct {
	*lifecycle
}

func NewMaintenanceService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, opts ...Option) MaintenanceService {
	return &maintenanceService{lifecycle: newLifecycle(repo, publisher, logger, opts...)}
}

// FinalizeExpired auto-submits every expired session. One failing attempt
// does not stop the sweep.
func (s *maintenanceService) FinalizeExpired(ctx context.Context) (*FinalizeExpiredResponse, error) {
	sessions, err := s.repo.Session().ListExpired(ctx, nil, "", s.clock(), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	resp := &FinalizeExpiredResponse{AttemptIDs: []string{}}
	for _, session := range sessions {
		out, err := s.maybeFinalizeIfExpired(ctx, session)
		if err != nil {
			resp.Failed++
			s.logger.Error("Failed to finalize expired session",
				"session_id", session.ID,
				"attempt_id", session.AttemptID,
				"error", err)
			continue
		}
		if out != nil && !out.AlreadyCompleted {
			resp.AttemptIDs = append(resp.AttemptIDs, session.AttemptID)
		}
	}
	resp.Count = len(resp.AttemptIDs)

	s.logger.Info("Finalized expired sessions", "count", resp.Count, "failed", resp.Failed)
	return resp, nil
}

// Retention deletes stale working data older than retentionDays. Expired
// sessions are finalized first so no answered attempt is dropped ungraded;
// completed attempts are never touched.
func (s *maintenanceService) Retention(ctx context.Context, retentionDays int) (*repositories.RetentionResult, error) {
	if retentionDays <= 0 {
		return nil, ValidationErrors{*NewValidationError("retention_days", "must be at least 1", retentionDays)}
	}

	now := s.clock()
	result := &repositories.RetentionResult{Cutoff: now.AddDate(0, 0, -retentionDays)}

	expired, err := s.repo.Session().ListExpired(ctx, nil, "", now, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	for _, session := range expired {
		out, err := s.maybeFinalizeIfExpired(ctx, session)
		if err != nil {
			// the session stays, so its attempt and drafts survive the sweep
			result.FailedFinalize++
			s.logger.Error("Failed to finalize session before retention",
				"session_id", session.ID,
				"attempt_id", session.AttemptID,
				"error", err)
			continue
		}
		result.DeletedSessions++
		if out != nil && !out.AlreadyCompleted {
			result.FinalizedAttempts++
		}
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		if result.DeletedAnswers, err = s.repo.Answer().DeleteCreatedBefore(ctx, tx, result.Cutoff); err != nil {
			return err
		}
		if result.DeletedAttempts, err = s.repo.Attempt().DeleteIncompleteStartedBefore(ctx, tx, result.Cutoff); err != nil {
			return err
		}
		result.DeletedRecords, err = s.repo.Record().DeleteEmpty(ctx, tx, "", result.Cutoff)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("retention sweep failed: %w", err)
	}

	s.logger.Info("Retention sweep finished",
		"cutoff", result.Cutoff,
		"finalized", result.FinalizedAttempts,
		"failed", result.FailedFinalize,
		"answers", result.DeletedAnswers,
		"sessions", result.DeletedSessions,
		"attempts", result.DeletedAttempts,
		"records", result.DeletedRecords)
	return result, nil
}

func (s *maintenanceService) CleanupDuplicateSessions(ctx context.Context, studentID string) (int64, error) {
	if studentID == "" {
		return 0, ValidationErrors{*NewValidationError("student_id", "is required", studentID)}
	}
	return s.cleanupDuplicateSessions(ctx, studentID)
}
