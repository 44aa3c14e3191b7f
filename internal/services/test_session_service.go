package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/cache"
	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/grading"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/validator"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxStartPasses bounds how often a start re-runs its read-check path after
// losing a race on the session row.
const maxStartPasses = 3

var errStartRetry = errors.New("start must re-read session state")

type testSessionService struct {
	*lifecycle
	contentCache *cache.PackageContentCache
	validator    *validator.Validator
}

func NewTestSessionService(
	repo repositories.Repository,
	contentCache *cache.PackageContentCache,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *validator.Validator,
	opts ...Option,
) TestSessionService {
	return &testSessionService{
		lifecycle:    newLifecycle(repo, publisher, logger, opts...),
		contentCache: contentCache,
		validator:    validator,
	}
}

// ===== START / RESUME =====

func (s *testSessionService) StartOrResume(ctx context.Context, studentID string, req *StartTestRequest) (*StartTestResponse, error) {
	s.logger.Info("Starting test attempt",
		"student_id", studentID,
		"package_id", req.PackageID,
		"category_id", req.CategoryID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	for pass := 0; pass < maxStartPasses; pass++ {
		resp, err := s.startOnce(ctx, studentID, req)
		if !errors.Is(err, errStartRetry) {
			return resp, err
		}
		s.logger.Debug("Start lost a race, retrying", "student_id", studentID, "pass", pass)
	}
	return nil, s.activeSessionConflict(ctx, studentID)
}

func (s *testSessionService) startOnce(ctx context.Context, studentID string, req *StartTestRequest) (*StartTestResponse, error) {
	var (
		resumeAttempt *models.TestAttempt
		carriedMeta   datatypes.JSON
	)

	existing, err := s.repo.Session().GetByStudent(ctx, nil, studentID)
	switch {
	case err == nil:
		resumeAttempt, err = s.reconcileSession(ctx, existing, req.CategoryID)
		if err != nil {
			return nil, err
		}
		if resumeAttempt != nil {
			carriedMeta = existing.Metadata
		}
	case !repositories.IsNotFoundError(err):
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}

	if resumeAttempt != nil {
		return s.resume(ctx, studentID, resumeAttempt, req, carriedMeta)
	}

	if _, err := s.repo.Package().GetCategory(ctx, nil, req.CategoryID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to load category: %w", err)
	}

	pkg, err := s.repo.Package().GetPackage(ctx, nil, req.PackageID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to load package: %w", err)
	}
	if pkg.CategoryID != req.CategoryID {
		return nil, ValidationErrors{*NewValidationError("package_id", "does not belong to the category", req.PackageID)}
	}
	if !pkg.IsPublished() {
		return nil, ErrPackageUnavailable
	}

	record, err := s.resolveRecord(ctx, studentID, req.RecordID)
	if err != nil {
		return nil, err
	}

	if record != nil {
		prior, err := s.repo.Attempt().FindInRecordByCategory(ctx, nil, record.ID, studentID, req.CategoryID)
		switch {
		case err == nil && !prior.IsCompleted():
			return s.resume(ctx, studentID, prior, req, nil)
		case err == nil:
			open, err := s.repo.Attempt().CountIncompleteInRecord(ctx, nil, record.ID, studentID)
			if err != nil {
				return nil, fmt.Errorf("failed to count open attempts: %w", err)
			}
			if open > 0 {
				return nil, ErrCategoryCompleted
			}
			// every category of the record is done, the retake opens a new record
			record = nil
		case !repositories.IsNotFoundError(err):
			return nil, fmt.Errorf("failed to look up category attempt: %w", err)
		}
	}

	return s.createAttempt(ctx, studentID, req, pkg, record)
}

// reconcileSession settles the student's current session before a start. It
// returns the attempt to resume when the session belongs to the requested
// category.
func (s *testSessionService) reconcileSession(ctx context.Context, session *models.ActiveSession, categoryID string) (*models.TestAttempt, error) {
	if session.IsExpired(s.clock()) {
		if _, err := s.maybeFinalizeIfExpired(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to auto-submit expired attempt: %w", err)
		}
		return nil, nil
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, session.AttemptID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to load session attempt: %w", err)
	}
	if err != nil || attempt.IsCompleted() {
		s.logger.Info("Removing stale session", "session_id", session.ID, "attempt_id", session.AttemptID)
		if _, err := s.repo.Session().DeleteByAttempt(ctx, nil, session.AttemptID); err != nil {
			return nil, fmt.Errorf("failed to remove stale session: %w", err)
		}
		return nil, nil
	}

	if session.CategoryID == categoryID {
		return attempt, nil
	}
	return nil, &ActiveSessionError{
		ActiveAttemptID: attempt.ID,
		CategoryName:    session.CategoryName,
		Reason:          ReasonActiveSession,
	}
}

// resolveRecord picks the record a new attempt joins: the requested one, else
// the latest with an open attempt, else the latest. nil means a new record.
func (s *testSessionService) resolveRecord(ctx context.Context, studentID string, recordID *string) (*models.TestRecord, error) {
	if recordID != nil && *recordID != "" {
		record, err := s.repo.Record().GetForStudent(ctx, nil, *recordID, studentID)
		if err == nil {
			return record, nil
		}
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to load record: %w", err)
		}
		s.logger.Warn("Requested record not found, starting a new one", "student_id", studentID, "record_id", *recordID)
		return nil, nil
	}

	record, err := s.repo.Record().GetLatestWithIncomplete(ctx, nil, studentID)
	if err == nil {
		return record, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to load open record: %w", err)
	}

	record, err = s.repo.Record().GetLatest(ctx, nil, studentID)
	if err == nil {
		return record, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to load latest record: %w", err)
	}
	return nil, nil
}

func (s *testSessionService) resume(ctx context.Context, studentID string, attempt *models.TestAttempt, req *StartTestRequest, carriedMeta datatypes.JSON) (*StartTestResponse, error) {
	pkg, err := s.repo.Package().GetPackage(ctx, nil, attempt.PackageID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to load package: %w", err)
	}
	if err != nil || !pkg.IsPublished() {
		s.cleanupDraftAttempt(ctx, studentID, attempt)
		return nil, ErrPackageUnavailable
	}

	now := s.clock()
	deadline := sessionDeadline(attempt.StartedAt, pkg.DurationMinutes)
	if !deadline.After(now) {
		// the time-box ran out while no session was live
		if _, err := s.finalize(ctx, attempt.ID, nil, deadline, triggerAuto); err != nil {
			return nil, err
		}
		return nil, errStartRetry
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		current, err := s.repo.Session().GetByStudent(ctx, tx, studentID)
		switch {
		case err == nil && current.AttemptID != attempt.ID:
			return errStartRetry
		case err == nil && len(carriedMeta) == 0:
			carriedMeta = current.Metadata
		case err != nil && !repositories.IsNotFoundError(err):
			return err
		}

		meta := models.DecodeSessionMetadata(carriedMeta)
		if meta.TestPlan() == nil || req.TestMeta != nil {
			plan := buildTestPlan(req, derefString(attempt.RecordID), pkg.CategoryName())
			if err := meta.Set(models.MetaTestPlan, plan); err != nil {
				return err
			}
		}
		encoded, err := meta.Encode()
		if err != nil {
			return err
		}

		if _, err := s.repo.Session().DeleteByStudent(ctx, tx, studentID); err != nil {
			return err
		}
		return s.createSession(ctx, tx, &models.ActiveSession{
			StudentID:    studentID,
			AttemptID:    attempt.ID,
			SessionToken: token,
			PackageID:    pkg.ID,
			CategoryID:   pkg.CategoryID,
			CategoryName: pkg.CategoryName(),
			RecordID:     attempt.RecordID,
			ExpiresAt:    deadline,
			LastActivity: now,
			Metadata:     encoded,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Resumed test attempt", "student_id", studentID, "attempt_id", attempt.ID)
	s.publish(ctx, events.EventAttemptResumed, studentID, events.AttemptStartedEvent{
		AttemptID:    attempt.ID,
		StudentID:    studentID,
		PackageID:    pkg.ID,
		CategoryID:   pkg.CategoryID,
		CategoryName: pkg.CategoryName(),
		RecordID:     derefString(attempt.RecordID),
		ExpiresAt:    deadline,
	})

	return &StartTestResponse{
		AttemptID:        attempt.ID,
		SessionToken:     token,
		RecordID:         derefString(attempt.RecordID),
		PackageID:        pkg.ID,
		ExpiresAt:        deadline,
		RemainingSeconds: int(deadline.Sub(now) / time.Second),
		Resumed:          true,
	}, nil
}

func (s *testSessionService) createAttempt(ctx context.Context, studentID string, req *StartTestRequest, pkg *models.QuestionPackage, record *models.TestRecord) (*StartTestResponse, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock()
	deadline := sessionDeadline(now, pkg.DurationMinutes)
	attempt := &models.TestAttempt{
		StudentID: studentID,
		PackageID: pkg.ID,
		StartedAt: now,
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		// the session row is re-read inside the transaction: any session that
		// appeared since the first check sends the start back to reconcile it
		if _, err := s.repo.Session().GetByStudent(ctx, tx, studentID); err == nil {
			return errStartRetry
		} else if !repositories.IsNotFoundError(err) {
			return err
		}

		if record == nil {
			record = &models.TestRecord{StudentID: studentID}
			if err := s.repo.Record().Create(ctx, tx, record); err != nil {
				return fmt.Errorf("failed to create record: %w", err)
			}
		}
		attempt.RecordID = &record.ID
		if err := s.repo.Attempt().Create(ctx, tx, attempt); err != nil {
			return fmt.Errorf("failed to create attempt: %w", err)
		}

		meta := models.SessionMetadata{}
		if err := meta.Set(models.MetaTestPlan, buildTestPlan(req, record.ID, pkg.CategoryName())); err != nil {
			return err
		}
		if err := meta.Set(models.MetaCurrentPageIndex, 0); err != nil {
			return err
		}
		encoded, err := meta.Encode()
		if err != nil {
			return err
		}

		return s.createSession(ctx, tx, &models.ActiveSession{
			StudentID:    studentID,
			AttemptID:    attempt.ID,
			SessionToken: token,
			PackageID:    pkg.ID,
			CategoryID:   pkg.CategoryID,
			CategoryName: pkg.CategoryName(),
			RecordID:     attempt.RecordID,
			ExpiresAt:    deadline,
			LastActivity: now,
			Metadata:     encoded,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Created test attempt",
		"student_id", studentID,
		"attempt_id", attempt.ID,
		"record_id", record.ID,
		"expires_at", deadline)
	s.publish(ctx, events.EventAttemptStarted, studentID, events.AttemptStartedEvent{
		AttemptID:    attempt.ID,
		StudentID:    studentID,
		PackageID:    pkg.ID,
		CategoryID:   pkg.CategoryID,
		CategoryName: pkg.CategoryName(),
		RecordID:     record.ID,
		ExpiresAt:    deadline,
	})

	return &StartTestResponse{
		AttemptID:        attempt.ID,
		SessionToken:     token,
		RecordID:         record.ID,
		PackageID:        pkg.ID,
		ExpiresAt:        deadline,
		RemainingSeconds: int(deadline.Sub(now) / time.Second),
	}, nil
}

func (s *testSessionService) createSession(ctx context.Context, tx *gorm.DB, session *models.ActiveSession) error {
	if err := s.repo.Session().Create(ctx, tx, session); err != nil {
		if repositories.IsDuplicate(err) {
			return errStartRetry
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *testSessionService) activeSessionConflict(ctx context.Context, studentID string) error {
	session, err := s.repo.Session().GetByStudent(ctx, nil, studentID)
	if err != nil {
		return fmt.Errorf("start kept conflicting without a visible session: %w", err)
	}
	return &ActiveSessionError{
		ActiveAttemptID: session.AttemptID,
		CategoryName:    session.CategoryName,
		Reason:          ReasonActiveSession,
	}
}

// ===== PLAY =====

func (s *testSessionService) GetForPlay(ctx context.Context, studentID, attemptID, sessionToken string) (*PlayResponse, error) {
	session, err := s.sessionForAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if err := checkToken(session, sessionToken); err != nil {
		return nil, err
	}

	if session.IsExpired(s.clock()) {
		if _, err := s.maybeFinalizeIfExpired(ctx, session); err != nil {
			s.logger.Error("Auto-submit on play failed", "attempt_id", attemptID, "error", err)
		}
		return nil, ErrSessionExpired
	}

	attempt, err := s.openAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}

	content, err := s.loadContent(ctx, attempt.PackageID)
	if err != nil {
		return nil, err
	}

	drafts, err := s.repo.Answer().ListByAttempt(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load draft answers: %w", err)
	}
	answers, audio := restoreDrafts(drafts)
	meta := models.DecodeSessionMetadata(session.Metadata)
	audio = mergeAudioCounts(audio, meta.AudioCounts())

	now := s.clock()
	if err := s.repo.Session().Touch(ctx, nil, attemptID, now); err != nil {
		s.logger.Warn("Failed to touch session", "attempt_id", attemptID, "error", err)
	}

	return &PlayResponse{
		AttemptID:        attemptID,
		RecordID:         attempt.RecordID,
		Package:          content,
		TotalQuestions:   grading.CountQuestions(content.Items()),
		ExpiresAt:        session.ExpiresAt,
		RemainingSeconds: session.RemainingSeconds(now),
		RestoredAnswers:  answers,
		AudioCounts:      audio,
		CurrentPageIndex: meta.PageIndex(),
		TestPlan:         meta.TestPlan(),
	}, nil
}

// sessionForAttempt loads the student's session and checks it is bound to attemptID.
func (s *testSessionService) sessionForAttempt(ctx context.Context, studentID, attemptID string) (*models.ActiveSession, error) {
	session, err := s.repo.Session().GetByStudent(ctx, nil, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session.AttemptID != attemptID {
		return nil, &ActiveSessionError{
			ActiveAttemptID: session.AttemptID,
			CategoryName:    session.CategoryName,
			Reason:          ReasonWrongAttempt,
		}
	}
	return session, nil
}

// openAttempt loads an in-progress attempt for play. A completed or vanished
// attempt drops its session; a withdrawn package drops the whole attempt.
func (s *testSessionService) openAttempt(ctx context.Context, studentID, attemptID string) (*models.TestAttempt, error) {
	attempt, err := s.repo.Attempt().GetForStudent(ctx, nil, attemptID, studentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	if err != nil || attempt.IsCompleted() {
		if _, err := s.repo.Session().DeleteByAttempt(ctx, nil, attemptID); err != nil {
			s.logger.Warn("Failed to drop stale session", "attempt_id", attemptID, "error", err)
		}
		return nil, ErrSessionNotFound
	}
	if !attempt.Package.IsPublished() {
		s.cleanupDraftAttempt(ctx, studentID, attempt)
		return nil, ErrPackageUnavailable
	}
	return attempt, nil
}

func (s *testSessionService) loadContent(ctx context.Context, packageID string) (*models.QuestionPackage, error) {
	load := func() (*models.QuestionPackage, error) {
		return s.repo.Package().GetPackageContent(ctx, nil, packageID)
	}

	var (
		content *models.QuestionPackage
		err     error
	)
	if s.contentCache != nil {
		content, err = s.contentCache.GetOrLoad(ctx, packageID, load)
	} else {
		content, err = load()
	}
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to load package content: %w", err)
	}
	return content, nil
}

func restoreDrafts(drafts []*models.TemporaryAnswer) (map[string]models.AnswerValue, map[string]int) {
	answers := make(map[string]models.AnswerValue, len(drafts))
	audio := make(map[string]int)
	for _, d := range drafts {
		switch {
		case d.HasSelection():
			answers[d.ItemID] = models.KeyValue(*d.SelectedKey)
		case len(d.TextAnswer) > 0:
			answers[d.ItemID] = models.SlotsValue(d.TextSlots()...)
		}
		if n := models.CapAudioPlays(d.AudioPlayCount); n > 0 {
			audio[d.ItemID] = n
		}
	}
	return answers, audio
}

// ===== SAVE =====

func (s *testSessionService) SaveProgress(ctx context.Context, studentID, attemptID string, req *SaveProgressRequest) (*SaveProgressResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetForStudent(ctx, nil, attemptID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt.IsCompleted() {
		return &SaveProgressResponse{Saved: true, Reason: ReasonAlreadyCompleted}, nil
	}

	session, err := s.repo.Session().GetByAttempt(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session.StudentID != studentID {
		return nil, ErrSessionNotFound
	}
	now := s.clock()
	if session.IsExpired(now) {
		// drafts already stored are graded when the attempt is finalized
		return &SaveProgressResponse{Saved: false, Reason: ReasonSessionExpired}, nil
	}
	if req.SessionToken == "" || !tokenMatches(session, req.SessionToken) {
		return nil, ErrInvalidSessionToken
	}
	if !attempt.Package.IsPublished() {
		s.cleanupDraftAttempt(ctx, studentID, attempt)
		return nil, ErrPackageUnavailable
	}

	answers := latestAnswers(req.Answers)
	saved := 0
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		answered := make(map[string]bool, len(answers))
		for _, a := range answers {
			draft, err := toDraft(attemptID, a, req.AudioCounts[a.ItemID])
			if err != nil {
				return err
			}
			if err := s.repo.Answer().Upsert(ctx, tx, draft); err != nil {
				return fmt.Errorf("failed to save answer %s: %w", a.ItemID, err)
			}
			answered[a.ItemID] = true
			saved++
		}
		for key, n := range req.AudioCounts {
			if key == "" || isPageCounter(key) || answered[key] {
				continue
			}
			if err := s.repo.Answer().UpsertAudioCount(ctx, tx, attemptID, key, n); err != nil {
				return fmt.Errorf("failed to save audio count %s: %w", key, err)
			}
		}

		current, err := s.repo.Session().GetByAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		meta := models.DecodeSessionMetadata(current.Metadata)
		if err := mergeMetadata(meta, req, now); err != nil {
			return err
		}
		encoded, err := meta.Encode()
		if err != nil {
			return err
		}
		return s.repo.Session().UpdateMetadata(ctx, tx, current.ID, encoded, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Saved progress", "attempt_id", attemptID, "saved", saved)
	return &SaveProgressResponse{Saved: true, SavedCount: saved}, nil
}

func (s *testSessionService) BeaconSave(ctx context.Context, studentID, attemptID string, req *SaveProgressRequest) *SaveProgressResponse {
	resp, err := s.SaveProgress(ctx, studentID, attemptID, req)
	if err != nil {
		s.logger.Warn("Beacon save failed", "student_id", studentID, "attempt_id", attemptID, "error", err)
		return &SaveProgressResponse{Saved: false, SavedCount: 0, Reason: ReasonSaveFailed}
	}
	return resp
}

// latestAnswers keeps the last answer sent for each item, in first-seen order.
func latestAnswers(answers []models.SubmittedAnswer) []models.SubmittedAnswer {
	index := make(map[string]int, len(answers))
	out := make([]models.SubmittedAnswer, 0, len(answers))
	for _, a := range answers {
		if i, ok := index[a.ItemID]; ok {
			out[i] = a
			continue
		}
		index[a.ItemID] = len(out)
		out = append(out, a)
	}
	return out
}

// toDraft stores single keys trimmed and blank slots trimmed and lowercased.
func toDraft(attemptID string, a models.SubmittedAnswer, audioCount int) (*models.TemporaryAnswer, error) {
	draft := &models.TemporaryAnswer{
		AttemptID:      attemptID,
		ItemID:         a.ItemID,
		AudioPlayCount: models.CapAudioPlays(max(a.AudioPlayCount, audioCount)),
	}

	if a.Type.IsSingleKey() {
		if key := strings.TrimSpace(a.Value.Key()); key != "" {
			draft.SelectedKey = &key
		}
		return draft, nil
	}

	slots := a.Value.List()
	for i := range slots {
		slots[i] = strings.ToLower(strings.TrimSpace(slots[i]))
	}
	encoded, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answer %s: %w", a.ItemID, err)
	}
	draft.TextAnswer = datatypes.JSON(encoded)
	return draft, nil
}

// ===== SUBMIT =====

func (s *testSessionService) Submit(ctx context.Context, studentID, attemptID string, req *SubmitTestRequest) (*SubmitTestResponse, error) {
	s.logger.Info("Submitting test attempt", "student_id", studentID, "attempt_id", attemptID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetForStudent(ctx, nil, attemptID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt.IsCompleted() {
		return recordedResult(attempt), nil
	}

	session, err := s.repo.Session().GetByAttempt(ctx, nil, attemptID)
	switch {
	case err == nil:
		if session.StudentID != studentID {
			return nil, ErrSessionNotFound
		}
		if err := checkToken(session, req.SessionToken); err != nil {
			return nil, err
		}
	case repositories.IsNotFoundError(err):
		session = nil
	default:
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if !attempt.Package.IsPublished() {
		s.cleanupDraftAttempt(ctx, studentID, attempt)
		return nil, ErrPackageUnavailable
	}

	deadline := sessionDeadline(attempt.StartedAt, attempt.Package.DurationMinutes)
	if session != nil {
		deadline = session.ExpiresAt
	}

	now := s.clock()
	completedAt := now
	trigger := triggerManual
	overrides := submittedResponses(latestAnswers(req.Answers))
	if now.After(deadline) {
		// graded as submitted but stamped at the end of the time-box
		completedAt = deadline
		trigger = triggerAuto
	}

	out, err := s.finalize(ctx, attemptID, overrides, completedAt, trigger)
	if err != nil {
		return nil, err
	}
	if out.AlreadyCompleted {
		return recordedResult(out.Attempt), nil
	}

	return &SubmitTestResponse{
		AttemptID:      attemptID,
		TotalScore:     out.Result.TotalScore,
		CorrectCount:   out.Result.CorrectCount,
		TotalQuestions: out.Result.TotalQuestions,
		CompletedAt:    completedAt,
		RecordID:       attempt.RecordID,
		AutoSubmitted:  trigger == triggerAuto,
	}, nil
}

func submittedResponses(answers []models.SubmittedAnswer) map[string]grading.Response {
	out := make(map[string]grading.Response, len(answers))
	for _, a := range answers {
		out[a.ItemID] = grading.FromValue(a.Value)
	}
	return out
}

func recordedResult(attempt *models.TestAttempt) *SubmitTestResponse {
	resp := &SubmitTestResponse{
		AttemptID:        attempt.ID,
		TotalScore:       attempt.Score(),
		RecordID:         attempt.RecordID,
		AlreadyCompleted: true,
	}
	if attempt.CompletedAt != nil {
		resp.CompletedAt = *attempt.CompletedAt
	}
	return resp
}

// ===== RESTORE / STATUS =====

func (s *testSessionService) Restore(ctx context.Context, studentID, attemptID, sessionToken string) (*RestoreResponse, error) {
	session, err := s.sessionForAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if err := checkToken(session, sessionToken); err != nil {
		return nil, err
	}
	if session.IsExpired(s.clock()) {
		if _, err := s.maybeFinalizeIfExpired(ctx, session); err != nil {
			s.logger.Error("Auto-submit on restore failed", "attempt_id", attemptID, "error", err)
		}
		return nil, ErrSessionExpired
	}

	drafts, err := s.repo.Answer().ListByAttempt(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load draft answers: %w", err)
	}
	answers, audio := restoreDrafts(drafts)
	audio = mergeAudioCounts(audio, models.DecodeSessionMetadata(session.Metadata).AudioCounts())

	if err := s.repo.Session().Touch(ctx, nil, attemptID, s.clock()); err != nil {
		s.logger.Warn("Failed to touch session", "attempt_id", attemptID, "error", err)
	}

	return &RestoreResponse{
		AttemptID:    attemptID,
		Answers:      answers,
		AudioCounts:  audio,
		SessionToken: session.SessionToken,
		Count:        len(answers),
	}, nil
}

func (s *testSessionService) PackageStatus(ctx context.Context, studentID, attemptID string) (*PackageStatusResponse, error) {
	attempt, err := s.repo.Attempt().GetForStudent(ctx, nil, attemptID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}

	status := models.PackageDraft
	if attempt.Package.IsPublished() {
		status = models.PackagePublished
	}
	return &PackageStatusResponse{
		AttemptID: attemptID,
		PackageID: attempt.PackageID,
		Status:    status,
	}, nil
}

// ===== CLEANUP =====

func (s *testSessionService) Discard(ctx context.Context, studentID, attemptID string) (*CleanupResponse, error) {
	resp := &CleanupResponse{AttemptID: attemptID}

	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		attempt, err := s.repo.Attempt().GetForStudent(ctx, tx, attemptID, studentID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return nil
			}
			return err
		}

		if resp.DeletedSessions, err = s.repo.Session().DeleteByAttempt(ctx, tx, attemptID); err != nil {
			return err
		}
		if attempt.IsCompleted() {
			return nil
		}
		if resp.DeletedAnswers, err = s.repo.Answer().DeleteByAttempts(ctx, tx, attemptID); err != nil {
			return err
		}
		resp.DeletedAttempts, err = s.repo.Attempt().DeleteIncomplete(ctx, tx, attemptID, studentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discard attempt: %w", err)
	}

	if resp.DeletedAttempts > 0 {
		s.logger.Info("Discarded attempt", "student_id", studentID, "attempt_id", attemptID)
		s.publish(ctx, events.EventAttemptDiscarded, studentID, events.AttemptDiscardedEvent{
			AttemptID: attemptID,
			StudentID: studentID,
			Reason:    "discarded",
		})
	}
	return resp, nil
}

// cleanupDraftAttempt removes an in-progress attempt whose package went back
// to draft. Failures are logged; the caller reports the package as unavailable.
func (s *testSessionService) cleanupDraftAttempt(ctx context.Context, studentID string, attempt *models.TestAttempt) {
	attemptID := attempt.ID
	if s.contentCache != nil {
		s.contentCache.Invalidate(ctx, attempt.PackageID)
	}

	var deleted int64
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.Answer().DeleteByAttempts(ctx, tx, attemptID); err != nil {
			return err
		}
		if _, err := s.repo.Session().DeleteByAttempt(ctx, tx, attemptID); err != nil {
			return err
		}
		var err error
		deleted, err = s.repo.Attempt().DeleteIncomplete(ctx, tx, attemptID, studentID)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to clean up attempt on draft package", "attempt_id", attemptID, "error", err)
		return
	}

	s.logger.Warn("Package withdrawn, attempt removed", "student_id", studentID, "attempt_id", attemptID)
	if deleted > 0 {
		s.publish(ctx, events.EventAttemptDiscarded, studentID, events.AttemptDiscardedEvent{
			AttemptID: attemptID,
			StudentID: studentID,
			Reason:    "package_unavailable",
		})
	}
}

func (s *testSessionService) ForceCleanup(ctx context.Context, studentID string) (*CleanupResponse, error) {
	sessions, err := s.repo.Session().ListByStudent(ctx, nil, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	attemptIDs := make([]string, 0, len(sessions))
	for _, session := range sessions {
		attemptIDs = append(attemptIDs, session.AttemptID)
	}

	resp := &CleanupResponse{}
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		if resp.DeletedAnswers, err = s.repo.Answer().DeleteByAttempts(ctx, tx, attemptIDs...); err != nil {
			return err
		}
		resp.DeletedSessions, err = s.repo.Session().DeleteByStudent(ctx, tx, studentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to force cleanup: %w", err)
	}

	s.logger.Info("Force-cleaned sessions", "student_id", studentID, "sessions", resp.DeletedSessions)
	if resp.DeletedSessions > 0 {
		s.publish(ctx, events.EventSessionForceCleaned, studentID, events.SessionForceCleanedEvent{
			StudentID:  studentID,
			AttemptIDs: attemptIDs,
		})
	}
	return resp, nil
}

// ===== LOOKUP =====

func (s *testSessionService) ActiveSession(ctx context.Context, studentID string) (*ActiveSessionInfo, error) {
	s.autoSubmitExpired(ctx, studentID)

	if n, err := s.repo.Record().DeleteEmpty(ctx, nil, studentID, time.Time{}); err != nil {
		s.logger.Warn("Failed to delete empty records", "student_id", studentID, "error", err)
	} else if n > 0 {
		s.logger.Debug("Deleted empty records", "student_id", studentID, "count", n)
	}

	now := s.clock()
	session, err := s.repo.Session().FindLive(ctx, nil, studentID, now)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find live session: %w", err)
	}
	return toActiveSessionInfo(session, now), nil
}

func toActiveSessionInfo(session *models.ActiveSession, now time.Time) *ActiveSessionInfo {
	return &ActiveSessionInfo{
		AttemptID:        session.AttemptID,
		PackageID:        session.PackageID,
		CategoryID:       session.CategoryID,
		CategoryName:     session.CategoryName,
		RecordID:         session.RecordID,
		ExpiresAt:        session.ExpiresAt,
		RemainingSeconds: session.RemainingSeconds(now),
	}
}
