package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/cache"
	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/exam-session-service/internal/testutil"
	"github.com/SAP-F-2025/exam-session-service/internal/validator"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	studentID = "student-1"

	readingCategory   = "cat-reading"
	readingPackage    = "pkg-reading"
	listeningCategory = "cat-listening"
	listeningPackage  = "pkg-listening"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	t           *testing.T
	ctx         context.Context
	db          *gorm.DB
	repo        repositories.Repository
	clock       *testClock
	events      *events.MockEventPublisher
	contents    *cache.PackageContentCache
	sessions    TestSessionService
	records     RecordService
	maintenance MaintenanceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	publisher := events.NewMockEventPublisher(logger)
	repo := postgres.NewRepository(db)
	v := validator.New()
	contentCache := cache.NewPackageContentCache(cache.NewMemoryCache(logger), time.Minute, logger)

	opts := []Option{
		WithClock(clock.Now),
		WithPackagePicker(func(int) int { return 0 }),
	}

	return &testEnv{
		t:           t,
		ctx:         context.Background(),
		db:          db,
		repo:        repo,
		clock:       clock,
		events:      publisher,
		contents:    contentCache,
		sessions:    NewTestSessionService(repo, contentCache, publisher, logger, v, opts...),
		records:     NewRecordService(repo, publisher, logger, v, opts...),
		maintenance: NewMaintenanceService(repo, publisher, logger, opts...),
	}
}

// seedContent creates a 10 minute reading package worth 4 questions and a
// 20 minute listening package worth 1.
func (e *testEnv) seedContent() {
	e.t.Helper()
	testutil.SeedCategory(e.t, e.db, readingCategory, "Reading")
	testutil.SeedPackage(e.t, e.db, testutil.PackageFixture{
		ID:              readingPackage,
		CategoryID:      readingCategory,
		Title:           "Reading A",
		DurationMinutes: 10,
		Items: []models.QuestionItem{
			testutil.ChoiceItem("r-1", "A"),
			testutil.BlankItem("r-2", []string{"red"}, []string{"sweet"}, []string{"cold"}),
		},
	})

	testutil.SeedCategory(e.t, e.db, listeningCategory, "Listening")
	testutil.SeedPackage(e.t, e.db, testutil.PackageFixture{
		ID:              listeningPackage,
		CategoryID:      listeningCategory,
		Title:           "Listening A",
		DurationMinutes: 20,
		Items:           []models.QuestionItem{testutil.ChoiceItem("l-1", "B")},
	})
}

func (e *testEnv) start(categoryID, packageID string) *StartTestResponse {
	e.t.Helper()
	resp, err := e.sessions.StartOrResume(e.ctx, studentID, &StartTestRequest{
		PackageID:  packageID,
		CategoryID: categoryID,
	})
	require.NoError(e.t, err)
	return resp
}

func (e *testEnv) save(started *StartTestResponse, answers ...models.SubmittedAnswer) *SaveProgressResponse {
	e.t.Helper()
	resp, err := e.sessions.SaveProgress(e.ctx, studentID, started.AttemptID, &SaveProgressRequest{
		SessionToken: started.SessionToken,
		Answers:      answers,
	})
	require.NoError(e.t, err)
	return resp
}

func (e *testEnv) submit(started *StartTestResponse, answers ...models.SubmittedAnswer) *SubmitTestResponse {
	e.t.Helper()
	resp, err := e.sessions.Submit(e.ctx, studentID, started.AttemptID, &SubmitTestRequest{
		SessionToken: started.SessionToken,
		Answers:      answers,
	})
	require.NoError(e.t, err)
	return resp
}

func (e *testEnv) attempt(id string) *models.TestAttempt {
	e.t.Helper()
	attempt, err := e.repo.Attempt().GetByID(e.ctx, nil, id)
	require.NoError(e.t, err)
	return attempt
}

func (e *testEnv) sessionCount() int64 {
	return testutil.Count(e.t, e.db, &models.ActiveSession{}, "student_id = ?", studentID)
}

func (e *testEnv) draftCount(attemptID string) int64 {
	return testutil.Count(e.t, e.db, &models.TemporaryAnswer{}, "attempt_id = ?", attemptID)
}

func key(itemID, value string) models.SubmittedAnswer {
	return models.SubmittedAnswer{ItemID: itemID, Type: models.ItemMultipleChoice, Value: models.KeyValue(value)}
}

func blanks(itemID string, slots ...string) models.SubmittedAnswer {
	return models.SubmittedAnswer{ItemID: itemID, Type: models.ItemShortAnswer, Value: models.SlotsValue(slots...)}
}
