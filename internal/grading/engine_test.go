package grading

import (
	"testing"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func strPtr(s string) *string { return &s }

func choiceItem(id, correct string) models.QuestionItem {
	return models.QuestionItem{ID: id, Type: models.ItemMultipleChoice, CorrectKey: strPtr(correct)}
}

func blankItem(id, template, accepted string) models.QuestionItem {
	return models.QuestionItem{
		ID:         id,
		Type:       models.ItemShortAnswer,
		Question:   template,
		AnswerText: datatypes.JSON(accepted),
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Hello,   World  ", "hello world"},
		{"Crème Brûlée!", "creme brulee"},
		{"ÄÖÜ", "aou"},
		{"ﬁne", "fine"},
		{"x²", "x2"},
		{"rock-n-roll", "rock n roll"},
		{"\tTAB\nnewline ", "tab newline"},
		{"", ""},
		{"???", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestBlankCount(t *testing.T) {
	assert.Equal(t, 3, BlankCount("The [1] apple is [2] and [3]."))
	assert.Equal(t, 1, BlankCount("Pick one: []"))
	assert.Equal(t, 0, BlankCount("No blanks here"))
	assert.Equal(t, 2, BlankCount("[a][b]"))
}

func TestCountQuestions(t *testing.T) {
	items := []models.QuestionItem{
		choiceItem("q1", "A"),
		blankItem("q2", "The [1] apple is [2] and [3]", `[["red"],["sweet"],["cold"]]`),
	}
	assert.Equal(t, 4, CountQuestions(items))

	t.Run("multi-blank item without brackets still counts once", func(t *testing.T) {
		items := []models.QuestionItem{blankItem("q1", "Capital of France?", `"paris"`)}
		assert.Equal(t, 1, CountQuestions(items))
	})

	t.Run("grading total matches the counter", func(t *testing.T) {
		res := NewEngine().Grade(items, nil)
		assert.Equal(t, CountQuestions(items), res.TotalQuestions)
	})
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{3, 3, 100},
		{2, 3, 67},
		{1, 3, 33},
		{1, 8, 13},
		{0, 5, 0},
		{0, 0, 0},
		{4, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.correct, tt.total), "%d/%d", tt.correct, tt.total)
	}
}

func TestEngine_PerBlankGrading(t *testing.T) {
	item := blankItem("q1", "The [1] apple is [2] and [3]", `[["red"],["sweet"],["cold"]]`)
	engine := NewEngine()

	tests := []struct {
		name        string
		slots       []string
		wantCorrect int
		wantScore   int
	}{
		{"all blanks after normalization", []string{"Red", "sweet ", "COLD"}, 3, 100},
		{"one wrong blank", []string{"red", "sour", "cold"}, 2, 67},
		{"missing trailing blanks", []string{"red"}, 1, 33},
		{"empty submission", []string{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := engine.Grade([]models.QuestionItem{item}, map[string]Response{
				"q1": {Slots: tt.slots},
			})
			assert.Equal(t, tt.wantCorrect, res.CorrectCount)
			assert.Equal(t, 3, res.TotalQuestions)
			assert.Equal(t, tt.wantScore, res.TotalScore)
		})
	}
}

func TestEngine_AcceptableAlternatives(t *testing.T) {
	engine := NewEngine()

	t.Run("any string in the set matches", func(t *testing.T) {
		item := blankItem("q1", "[1]", `[["colour","color"]]`)
		res := engine.Grade([]models.QuestionItem{item}, map[string]Response{"q1": FromValue(models.KeyValue("Color"))})
		assert.Equal(t, 1, res.CorrectCount)
	})

	t.Run("flat specification is a single blank", func(t *testing.T) {
		item := blankItem("q1", "Capital of France? []", `"Paris"`)
		res := engine.Grade([]models.QuestionItem{item}, map[string]Response{"q1": FromValue(models.KeyValue(" paris "))})
		assert.Equal(t, 1, res.CorrectCount)
		assert.Equal(t, 100, res.TotalScore)
	})

	t.Run("flat entries inside the list are one-answer blanks", func(t *testing.T) {
		item := models.QuestionItem{
			ID:         "q1",
			Type:       models.ItemMatchingDropdown,
			Question:   "[1] [2]",
			AnswerText: datatypes.JSON(`["a", ["b", "B2"]]`),
		}
		res := engine.Grade([]models.QuestionItem{item}, map[string]Response{"q1": FromValue(models.SlotsValue("A", "b2"))})
		assert.Equal(t, 2, res.CorrectCount)
	})

	t.Run("empty acceptable values never match", func(t *testing.T) {
		item := blankItem("q1", "[1]", `[[""]]`)
		res := engine.Grade([]models.QuestionItem{item}, map[string]Response{"q1": FromValue(models.SlotsValue(""))})
		assert.Equal(t, 0, res.CorrectCount)
	})
}

func TestEngine_SingleKey(t *testing.T) {
	engine := NewEngine()
	tfng := models.QuestionItem{ID: "q2", Type: models.ItemTrueFalseNotGiven, CorrectKey: strPtr(" NOT_GIVEN ")}

	tests := []struct {
		name string
		item models.QuestionItem
		key  string
		want int
	}{
		{"exact", choiceItem("q1", "B"), "B", 1},
		{"trimmed both sides", choiceItem("q1", " B "), "B  ", 1},
		{"case sensitive", choiceItem("q1", "B"), "b", 0},
		{"wrong key", choiceItem("q1", "B"), "C", 0},
		{"true false not given", tfng, "NOT_GIVEN", 1},
		{"missing correct key", models.QuestionItem{ID: "q3", Type: models.ItemMultipleChoice}, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := engine.Grade([]models.QuestionItem{tt.item}, map[string]Response{
				tt.item.ID: FromValue(models.KeyValue(tt.key)),
			})
			assert.Equal(t, tt.want, res.CorrectCount)
		})
	}
}

func TestEngine_MixedPackage(t *testing.T) {
	items := []models.QuestionItem{
		choiceItem("q1", "A"),
		blankItem("q2", "The [1] apple is [2] and [3]", `[["red"],["sweet"],["cold"]]`),
		choiceItem("q3", "C"),
		{ID: "q4", Type: models.ItemType("ESSAY")},
	}
	answers := map[string]Response{
		"q1":      FromValue(models.KeyValue("A")),
		"q2":      FromValue(models.SlotsValue("red", "sour", "cold")),
		"q4":      FromValue(models.KeyValue("anything")),
		"unknown": FromValue(models.KeyValue("A")),
	}

	res := NewEngine().Grade(items, answers)

	assert.Equal(t, 3, res.CorrectCount)
	assert.Equal(t, 6, res.TotalQuestions)
	assert.Equal(t, 50, res.TotalScore)
	require.Len(t, res.Items, 4)
	assert.False(t, res.Items[2].Answered)
	assert.False(t, res.Items[3].Answered)
}

type alwaysRight struct{}

func (alwaysRight) Points(item models.QuestionItem, _ Response) int { return ItemQuestionCount(item) }

func TestEngine_WithStrategy(t *testing.T) {
	engine := NewEngine(WithStrategy(models.ItemMultipleChoice, alwaysRight{}))
	res := engine.Grade([]models.QuestionItem{choiceItem("q1", "A")}, map[string]Response{"q1": {Key: "Z"}})
	assert.Equal(t, 100, res.TotalScore)
}

func TestFromDraft(t *testing.T) {
	t.Run("selected key", func(t *testing.T) {
		r := FromDraft(models.TemporaryAnswer{SelectedKey: strPtr("B"), TextAnswer: datatypes.JSON(`["ignored"]`)})
		assert.Equal(t, "B", r.Key)
	})

	t.Run("text slots", func(t *testing.T) {
		r := FromDraft(models.TemporaryAnswer{TextAnswer: datatypes.JSON(`["red","sweet"]`)})
		assert.Equal(t, []string{"red", "sweet"}, r.Slots)
	})

	t.Run("scalar text becomes one slot", func(t *testing.T) {
		r := FromDraft(models.TemporaryAnswer{SelectedKey: strPtr(""), TextAnswer: datatypes.JSON(`"paris"`)})
		assert.Equal(t, []string{"paris"}, r.Slots)
	})
}
