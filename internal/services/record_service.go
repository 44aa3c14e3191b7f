package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/validator"
	"github.com/jinzhu/copier"
)

const recentAttemptsLimit = 3

type recordService struct {
	*lifecycle
	validator *validator.Validator
}

func NewRecordService(
	repo repositories.Repository,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *validator.Validator,
	opts ...Option,
) RecordService {
	return &recordService{
		lifecycle: newLifecycle(repo, publisher, logger, opts...),
		validator: validator,
	}
}

// ===== TEST RECORDS =====

func (s *recordService) TestRecords(ctx context.Context, studentID string, query *RecordListQuery) (*TestRecordPage, error) {
	if err := s.validator.Validate(query); err != nil {
		return nil, err
	}
	s.autoSubmitExpired(ctx, studentID)

	page := max(1, query.Page)
	pageSize := clampPageSize(query.PageSize)

	all, err := s.repo.Record().ListAllWithCompleted(ctx, nil, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	numbers := make(map[string]int, len(all))
	for i, r := range all {
		numbers[r.ID] = i + 1
	}

	records, total, err := s.repo.Record().ListWithCompleted(ctx, nil, studentID, repositories.RecordFilters{
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
		SortOrder: query.Sort,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	resp := &TestRecordPage{
		Records:  make([]TestRecordSummary, 0, len(records)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, r := range records {
		summary, err := summarizeRecord(r, numbers[r.ID])
		if err != nil {
			return nil, err
		}
		resp.Records = append(resp.Records, summary)
	}

	if page == 1 {
		if best := bestRecord(all); best != nil {
			summary, err := summarizeRecord(best, numbers[best.ID])
			if err != nil {
				return nil, err
			}
			resp.BestScore = &summary
		}
	}
	return resp, nil
}

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultRecordPageSize
	case n > MaxRecordPageSize:
		return MaxRecordPageSize
	default:
		return n
	}
}

// summarizeRecord expects only completed attempts to be loaded.
func summarizeRecord(record *models.TestRecord, number int) (TestRecordSummary, error) {
	var out TestRecordSummary
	if err := copier.Copy(&out, record); err != nil {
		return out, fmt.Errorf("failed to map record: %w", err)
	}
	out.Title = fmt.Sprintf("Attempt %d", number)
	avg := recordAverage(record)
	out.AverageScore = &avg

	out.Categories = make([]CategoryScore, 0, len(record.Attempts))
	for i := range record.Attempts {
		a := &record.Attempts[i]
		if !a.IsCompleted() {
			continue
		}
		out.AttemptsCount++
		out.Categories = append(out.Categories, CategoryScore{
			CategoryName: a.RecordedCategory(),
			Score:        a.Score(),
		})
		if out.CompletedAt == nil || a.CompletedAt.After(*out.CompletedAt) {
			at := *a.CompletedAt
			out.CompletedAt = &at
			out.LatestAttemptID = a.ID
		}
	}
	sort.SliceStable(out.Categories, func(i, j int) bool {
		return out.Categories[i].CategoryName < out.Categories[j].CategoryName
	})
	return out, nil
}

// recordAverage prefers the stored average and falls back to the attempts.
func recordAverage(record *models.TestRecord) float64 {
	if record.AverageScore != nil {
		return round2(*record.AverageScore)
	}
	attempts := make([]*models.TestAttempt, len(record.Attempts))
	for i := range record.Attempts {
		attempts[i] = &record.Attempts[i]
	}
	if avg := averageScore(attempts); avg != nil {
		return *avg
	}
	return 0
}

// bestRecord picks the highest average; ties go to the record covering more
// categories, then to the oldest. records must be ordered oldest first.
func bestRecord(records []*models.TestRecord) *models.TestRecord {
	var (
		best        *models.TestRecord
		bestAvg     float64
		bestCovered int
	)
	for _, r := range records {
		avg := recordAverage(r)
		covered := completedCount(r)
		if best == nil || avg > bestAvg || (avg == bestAvg && covered > bestCovered) {
			best, bestAvg, bestCovered = r, avg, covered
		}
	}
	return best
}

func completedCount(record *models.TestRecord) int {
	n := 0
	for i := range record.Attempts {
		if record.Attempts[i].IsCompleted() {
			n++
		}
	}
	return n
}

// ===== DASHBOARD =====

func (s *recordService) Dashboard(ctx context.Context, studentID string) (*DashboardSummary, error) {
	s.autoSubmitExpired(ctx, studentID)
	if _, err := s.cleanupDuplicateSessions(ctx, studentID); err != nil {
		s.logger.Warn("Failed to clean duplicate sessions", "student_id", studentID, "error", err)
	}

	completed, err := s.repo.Attempt().ListCompletedByStudent(ctx, nil, studentID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed attempts: %w", err)
	}

	summary := &DashboardSummary{
		RecentAttempts: make([]AttemptSummary, 0, recentAttemptsLimit),
		BestScores:     bestScoresByCategory(completed),
		Categories:     []DashboardCategory{},
	}
	for i, a := range completed {
		if i == recentAttemptsLimit {
			break
		}
		summary.RecentAttempts = append(summary.RecentAttempts, AttemptSummary{
			AttemptID:    a.ID,
			RecordID:     a.RecordID,
			CategoryName: a.RecordedCategory(),
			PackageTitle: a.RecordedPackageTitle(),
			Score:        a.Score(),
			CompletedAt:  a.CompletedAt,
		})
	}

	doneInActive := map[string]bool{}
	if active, err := s.activeRecord(ctx, studentID); err != nil {
		return nil, err
	} else if active != nil {
		summary.ActiveRecordID = &active.ID
		attempts, err := s.repo.Attempt().ListByRecord(ctx, nil, active.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list record attempts: %w", err)
		}
		for _, a := range attempts {
			if a.IsCompleted() && a.Package != nil {
				doneInActive[a.Package.CategoryID] = true
			}
		}
	}

	categories, err := s.repo.Package().ListCategoriesWithPublished(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	summary.AllComplete = len(categories) > 0
	for _, c := range categories {
		done := doneInActive[c.ID]
		summary.AllComplete = summary.AllComplete && done
		summary.Categories = append(summary.Categories, DashboardCategory{
			ID:                       c.ID,
			Name:                     c.Name,
			CompletedInCurrentRecord: done,
		})
	}

	records, err := s.repo.Record().ListAllWithCompleted(ctx, nil, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if len(records) > 0 {
		sum := 0.0
		for _, r := range records {
			avg := recordAverage(r)
			sum += avg
			summary.BestAverage = math.Max(summary.BestAverage, avg)
		}
		summary.OverallAverage = int(math.Round(sum / float64(len(records))))
	}

	if summary.RecordCount, err = s.repo.Record().Count(ctx, nil, studentID); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	now := s.clock()
	if live, err := s.repo.Session().FindLive(ctx, nil, studentID, now); err == nil {
		summary.ActiveSession = toActiveSessionInfo(live, now)
	} else if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to find live session: %w", err)
	}

	return summary, nil
}

// activeRecord is the newest record with a completed attempt, else the newest.
func (s *recordService) activeRecord(ctx context.Context, studentID string) (*models.TestRecord, error) {
	records, err := s.repo.Record().ListRecent(ctx, nil, studentID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	for _, r := range records {
		if len(r.Attempts) > 0 {
			return r, nil
		}
	}
	if len(records) > 0 {
		return records[0], nil
	}
	return nil, nil
}

func bestScoresByCategory(attempts []*models.TestAttempt) []CategoryScore {
	best := map[string]int{}
	for _, a := range attempts {
		name := a.RecordedCategory()
		if score, ok := best[name]; !ok || a.Score() > score {
			best[name] = a.Score()
		}
	}

	out := make([]CategoryScore, 0, len(best))
	for name, score := range best {
		out = append(out, CategoryScore{CategoryName: name, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryName < out[j].CategoryName })
	return out
}

// ===== FEEDBACK =====

func (s *recordService) SetFeedback(ctx context.Context, principal models.Principal, recordID string, req *SetFeedbackRequest) (*models.TestRecord, error) {
	if !principal.Role.CanReview() {
		return nil, ErrForbidden
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var feedback *string
	if trimmed := strings.TrimSpace(req.Feedback); trimmed != "" {
		feedback = &trimmed
	}
	if err := s.repo.Record().UpdateFeedback(ctx, nil, recordID, feedback); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to update feedback: %w", err)
	}

	s.logger.Info("Record feedback updated", "record_id", recordID, "tutor_id", principal.UserID)
	record, err := s.repo.Record().GetByID(ctx, nil, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload record: %w", err)
	}
	return record, nil
}

// cleanupDuplicateSessions keeps only the most recently active session row.
func (l *lifecycle) cleanupDuplicateSessions(ctx context.Context, studentID string) (int64, error) {
	sessions, err := l.repo.Session().ListByStudent(ctx, nil, studentID)
	if err != nil {
		return 0, err
	}
	if len(sessions) < 2 {
		return 0, nil
	}

	ids := make([]string, 0, len(sessions)-1)
	for _, session := range sessions[1:] {
		ids = append(ids, session.ID)
	}
	n, err := l.repo.Session().DeleteByIDs(ctx, nil, ids)
	if err != nil {
		return 0, err
	}
	l.logger.Warn("Removed duplicate sessions", "student_id", studentID, "count", n)
	return n, nil
}
