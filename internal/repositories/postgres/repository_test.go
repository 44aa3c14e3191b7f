package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestRepository(t *testing.T) repositories.Repository {
	db := testutil.NewDB(t)
	testutil.SeedCategory(t, db, "cat-1", "Reading")
	testutil.SeedPackage(t, db, testutil.PackageFixture{
		ID:         "pkg-1",
		CategoryID: "cat-1",
		Items:      testutil.ChoiceItems("q", 2),
	})
	testutil.SeedPackage(t, db, testutil.PackageFixture{
		ID:         "pkg-draft",
		CategoryID: "cat-1",
		Status:     models.PackageDraft,
	})
	return NewRepository(db)
}

func newAttempt(t *testing.T, repo repositories.Repository, startedAt time.Time) *models.TestAttempt {
	ctx := context.Background()
	record := &models.TestRecord{StudentID: "s1"}
	require.NoError(t, repo.Record().Create(ctx, nil, record))
	attempt := &models.TestAttempt{StudentID: "s1", PackageID: "pkg-1", RecordID: &record.ID, StartedAt: startedAt}
	require.NoError(t, repo.Attempt().Create(ctx, nil, attempt))
	return attempt
}

func TestSession_OnePerStudent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Now().UTC()
	attempt := newAttempt(t, repo, now)

	session := func() *models.ActiveSession {
		return &models.ActiveSession{
			StudentID:    "s1",
			AttemptID:    attempt.ID,
			SessionToken: "tok",
			PackageID:    "pkg-1",
			ExpiresAt:    now.Add(time.Hour),
			LastActivity: now,
		}
	}
	require.NoError(t, repo.Session().Create(ctx, nil, session()))

	err := repo.Session().Create(ctx, nil, session())
	require.Error(t, err)
	assert.True(t, repositories.IsDuplicate(err))
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	_, err = repo.Session().GetByStudent(ctx, nil, "s2")
	assert.True(t, repositories.IsNotFoundError(err))
}

func TestSession_FindLiveSkipsExpiredAndCompleted(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Now().UTC()
	attempt := newAttempt(t, repo, now)

	require.NoError(t, repo.Session().Create(ctx, nil, &models.ActiveSession{
		StudentID:    "s1",
		AttemptID:    attempt.ID,
		SessionToken: "tok",
		PackageID:    "pkg-1",
		ExpiresAt:    now.Add(10 * time.Minute),
		LastActivity: now,
	}))

	live, err := repo.Session().FindLive(ctx, nil, "s1", now)
	require.NoError(t, err)
	assert.Equal(t, attempt.ID, live.AttemptID)

	_, err = repo.Session().FindLive(ctx, nil, "s1", now.Add(11*time.Minute))
	assert.True(t, repositories.IsNotFoundError(err))

	expired, err := repo.Session().ListExpired(ctx, nil, "", now.Add(11*time.Minute), 0)
	require.NoError(t, err)
	assert.Len(t, expired, 1)

	ok, err := repo.Attempt().Complete(ctx, nil, attempt.ID, repositories.AttemptCompletion{CompletedAt: now, TotalScore: 50})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = repo.Session().FindLive(ctx, nil, "s1", now)
	assert.True(t, repositories.IsNotFoundError(err))
}

func TestAttempt_CompleteOnce(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Now().UTC()
	attempt := newAttempt(t, repo, now)

	ok, err := repo.Attempt().Complete(ctx, nil, attempt.ID, repositories.AttemptCompletion{CompletedAt: now, TotalScore: 80})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Attempt().Complete(ctx, nil, attempt.ID, repositories.AttemptCompletion{CompletedAt: now.Add(time.Minute), TotalScore: 10})
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.Attempt().GetByID(ctx, nil, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, stored.Score())
	assert.True(t, stored.CompletedAt.Equal(now))

	deleted, err := repo.Attempt().DeleteIncomplete(ctx, nil, attempt.ID, "s1")
	require.NoError(t, err)
	assert.Zero(t, deleted, "completed attempts are never deleted")
}

func TestAnswer_UpsertReplacesDraft(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	attempt := newAttempt(t, repo, time.Now().UTC())

	first, second := "A", "C"
	require.NoError(t, repo.Answer().Upsert(ctx, nil, &models.TemporaryAnswer{AttemptID: attempt.ID, ItemID: "q-1", SelectedKey: &first}))
	require.NoError(t, repo.Answer().UpsertAudioCount(ctx, nil, attempt.ID, "q-1", 2))
	require.NoError(t, repo.Answer().Upsert(ctx, nil, &models.TemporaryAnswer{AttemptID: attempt.ID, ItemID: "q-1", SelectedKey: &second, AudioPlayCount: 2}))
	require.NoError(t, repo.Answer().Upsert(ctx, nil, &models.TemporaryAnswer{
		AttemptID:  attempt.ID,
		ItemID:     "q-2",
		TextAnswer: datatypes.JSON(`["x","y"]`),
	}))

	drafts, err := repo.Answer().ListByAttempt(ctx, nil, attempt.ID)
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	byItem := map[string]*models.TemporaryAnswer{}
	for _, d := range drafts {
		byItem[d.ItemID] = d
	}
	assert.Equal(t, "C", *byItem["q-1"].SelectedKey)
	assert.Equal(t, 2, byItem["q-1"].AudioPlayCount)
	assert.Equal(t, []string{"x", "y"}, byItem["q-2"].TextSlots())

	n, err := repo.Answer().DeleteByAttempts(ctx, nil, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPackage_ContentAndPublication(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	content, err := repo.Package().GetPackageContent(ctx, nil, "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, "Reading", content.CategoryName())
	items := content.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "q-1", items[0].ID)
	require.NotNil(t, items[0].CorrectKey)

	published, err := repo.Package().ListPublishedByCategory(ctx, nil, "cat-1")
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, "pkg-1", published[0].ID)

	_, err = repo.Package().GetPackage(ctx, nil, "pkg-nope")
	assert.True(t, repositories.IsNotFoundError(err))
}

func TestRecord_ResolutionAndCleanup(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Now().UTC()

	open := newAttempt(t, repo, now)
	empty := &models.TestRecord{StudentID: "s1"}
	require.NoError(t, repo.Record().Create(ctx, nil, empty))

	latest, err := repo.Record().GetLatest(ctx, nil, "s1")
	require.NoError(t, err)
	assert.Equal(t, empty.ID, latest.ID)

	withOpen, err := repo.Record().GetLatestWithIncomplete(ctx, nil, "s1")
	require.NoError(t, err)
	assert.Equal(t, *open.RecordID, withOpen.ID)

	n, err := repo.Record().DeleteEmpty(ctx, nil, "s1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := repo.Record().Count(ctx, nil, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecord_LockByID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	attempt := newAttempt(t, repo, time.Now().UTC())

	err := repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := repo.Record().LockByID(ctx, tx, *attempt.RecordID); err != nil {
			return err
		}
		avg := 42.5
		return repo.Record().UpdateAverage(ctx, tx, *attempt.RecordID, &avg)
	})
	require.NoError(t, err)

	record, err := repo.Record().GetByID(ctx, nil, *attempt.RecordID)
	require.NoError(t, err)
	require.NotNil(t, record.AverageScore)
	assert.Equal(t, 42.5, *record.AverageScore)

	err = repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		return repo.Record().LockByID(ctx, tx, "missing")
	})
	assert.True(t, repositories.IsNotFoundError(err))
}

func TestRetentionDeletes_SkipAttemptsWithSession(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Now().UTC()

	held := newAttempt(t, repo, now.Add(-time.Hour))
	orphan := newAttempt(t, repo, now.Add(-time.Hour))
	require.NoError(t, repo.Session().Create(ctx, nil, &models.ActiveSession{
		StudentID:    "s1",
		AttemptID:    held.ID,
		SessionToken: "tok",
		PackageID:    "pkg-1",
		ExpiresAt:    now.Add(-30 * time.Minute),
		LastActivity: now.Add(-time.Hour),
	}))

	key := "A"
	for _, attempt := range []*models.TestAttempt{held, orphan} {
		require.NoError(t, repo.Answer().Upsert(ctx, nil, &models.TemporaryAnswer{AttemptID: attempt.ID, ItemID: "q-1", SelectedKey: &key}))
	}

	cutoff := now.Add(time.Minute)
	n, err := repo.Answer().DeleteCreatedBefore(ctx, nil, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.Attempt().DeleteIncompleteStartedBefore(ctx, nil, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.Attempt().GetByID(ctx, nil, held.ID)
	assert.NoError(t, err, "attempt awaiting finalization survives")
	_, err = repo.Attempt().GetByID(ctx, nil, orphan.ID)
	assert.True(t, repositories.IsNotFoundError(err))

	drafts, err := repo.Answer().ListByAttempt(ctx, nil, held.ID)
	require.NoError(t, err)
	assert.Len(t, drafts, 1)
}
