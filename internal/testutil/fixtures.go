package testutil

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PackageFixture describes a one-page package. Items get their page and
// order assigned on seeding.
type PackageFixture struct {
	ID              string
	CategoryID      string
	Title           string
	Status          models.PackageStatus
	DurationMinutes int
	Items           []models.QuestionItem
}

func SeedCategory(t testing.TB, db *gorm.DB, id, name string) *models.QuestionCategory {
	t.Helper()
	category := &models.QuestionCategory{ID: id, Name: name}
	require.NoError(t, db.Create(category).Error)
	return category
}

func SeedPackage(t testing.TB, db *gorm.DB, f PackageFixture) *models.QuestionPackage {
	t.Helper()

	if f.Status == "" {
		f.Status = models.PackagePublished
	}
	if f.DurationMinutes == 0 {
		f.DurationMinutes = 10
	}
	if f.Title == "" {
		f.Title = f.ID
	}

	pkg := &models.QuestionPackage{
		ID:              f.ID,
		CategoryID:      f.CategoryID,
		Title:           f.Title,
		Status:          f.Status,
		DurationMinutes: f.DurationMinutes,
	}
	require.NoError(t, db.Create(pkg).Error)

	page := &models.QuestionPage{ID: f.ID + "-p1", PackageID: f.ID, PageOrder: 1}
	require.NoError(t, db.Create(page).Error)

	for i := range f.Items {
		item := f.Items[i]
		item.PageID = page.ID
		item.ItemOrder = i + 1
		require.NoError(t, db.Create(&item).Error)
	}
	return pkg
}

// SetPackageStatus flips a package between draft and published.
func SetPackageStatus(t testing.TB, db *gorm.DB, id string, status models.PackageStatus) {
	t.Helper()
	require.NoError(t, db.Model(&models.QuestionPackage{}).Where("id = ?", id).Update("status", status).Error)
}

func ChoiceItem(id, correct string) models.QuestionItem {
	return models.QuestionItem{
		ID:         id,
		Type:       models.ItemMultipleChoice,
		Question:   "Pick one",
		Choices:    datatypes.JSON(`["A","B","C","D"]`),
		CorrectKey: &correct,
	}
}

// BlankItem builds a short-answer template with one acceptable set per blank.
func BlankItem(id string, accepted ...[]string) models.QuestionItem {
	template := ""
	for i := range accepted {
		template += fmt.Sprintf(" [%d]", i+1)
	}
	answerText, _ := json.Marshal(accepted)
	return models.QuestionItem{
		ID:         id,
		Type:       models.ItemShortAnswer,
		Question:   "Fill in:" + template,
		AnswerText: datatypes.JSON(answerText),
	}
}

// ChoiceItems returns n multiple choice items whose correct key is always "A".
func ChoiceItems(prefix string, n int) []models.QuestionItem {
	items := make([]models.QuestionItem, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, ChoiceItem(fmt.Sprintf("%s-%d", prefix, i), "A"))
	}
	return items
}

// Count returns the number of rows of model matching the optional condition.
func Count(t testing.TB, db *gorm.DB, model interface{}, query ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if len(query) > 0 {
		q = q.Where(query[0], query[1:]...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
