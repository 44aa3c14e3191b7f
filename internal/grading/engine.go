// Package grading scores submitted answers against question items.
// Everything here is pure: no storage, no clock, no logging.
package grading

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
)

// Response is a student's answer to one item.
type Response struct {
	Key   string
	Slots []string
}

// FromValue converts a submitted value into a Response usable by any strategy.
func FromValue(v models.AnswerValue) Response {
	return Response{Key: v.Key(), Slots: v.List()}
}

// FromDraft converts a saved draft. A non-empty selected key wins over text.
func FromDraft(a models.TemporaryAnswer) Response {
	if a.HasSelection() {
		return Response{Key: *a.SelectedKey, Slots: []string{*a.SelectedKey}}
	}
	slots := a.TextSlots()
	return Response{Key: strings.Join(slots, ","), Slots: slots}
}

// Strategy grades one item type.
type Strategy interface {
	// Points returns how many question units of the item were answered correctly.
	Points(item models.QuestionItem, resp Response) int
}

type ItemResult struct {
	ItemID    string `json:"item_id"`
	Points    int    `json:"points"`
	MaxPoints int    `json:"max_points"`
	Answered  bool   `json:"answered"`
}

type Result struct {
	CorrectCount   int          `json:"correct_count"`
	TotalQuestions int          `json:"total_questions"`
	TotalScore     int          `json:"total_score"`
	Items          []ItemResult `json:"items,omitempty"`
}

type Option func(*Engine)

// WithStrategy overrides or adds the strategy used for an item type.
func WithStrategy(t models.ItemType, s Strategy) Option {
	return func(e *Engine) { e.strategies[t] = s }
}

// Engine routes each item to the strategy registered for its type.
type Engine struct {
	strategies map[models.ItemType]Strategy
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		strategies: map[models.ItemType]Strategy{
			models.ItemMultipleChoice:    singleKeyStrategy{},
			models.ItemTrueFalseNotGiven: singleKeyStrategy{},
			models.ItemShortAnswer:       multiBlankStrategy{},
			models.ItemMatchingDropdown:  multiBlankStrategy{},
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Grade scores answers keyed by item id. Items without an answer score zero;
// answers for unknown items are ignored.
func (e *Engine) Grade(items []models.QuestionItem, answers map[string]Response) Result {
	res := Result{Items: make([]ItemResult, 0, len(items))}
	for _, item := range items {
		ir := ItemResult{ItemID: item.ID, MaxPoints: ItemQuestionCount(item)}
		res.TotalQuestions += ir.MaxPoints

		resp, ok := answers[item.ID]
		strategy, known := e.strategies[item.Type]
		if ok && known {
			ir.Answered = true
			ir.Points = strategy.Points(item, resp)
		}
		res.CorrectCount += ir.Points
		res.Items = append(res.Items, ir)
	}
	res.TotalScore = Percentage(res.CorrectCount, res.TotalQuestions)
	return res
}

// Percentage turns a correct/total ratio into an integer 0-100. The ratio is
// rounded to two decimals first, then to the nearest integer.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	pct := math.Round(float64(correct)/float64(total)*100*100) / 100
	return int(math.Round(pct))
}

type singleKeyStrategy struct{}

func (singleKeyStrategy) Points(item models.QuestionItem, resp Response) int {
	if item.CorrectKey == nil {
		return 0
	}
	want := strings.TrimSpace(*item.CorrectKey)
	if want == "" {
		return 0
	}
	if strings.TrimSpace(resp.Key) == want {
		return 1
	}
	return 0
}

type multiBlankStrategy struct{}

// Points scores each blank independently against its acceptable set.
func (multiBlankStrategy) Points(item models.QuestionItem, resp Response) int {
	sets := AcceptableSets(item)
	points := 0
	for i, acceptable := range sets {
		got := ""
		if i < len(resp.Slots) {
			got = Normalize(resp.Slots[i])
		}
		for _, want := range acceptable {
			if want == got {
				points++
				break
			}
		}
	}
	return points
}

// AcceptableSets decodes the normalized acceptable answers per blank. A flat
// value is one blank; a flat entry inside the list is a one-answer blank.
// Values that normalize to nothing are dropped.
func AcceptableSets(item models.QuestionItem) [][]string {
	if len(item.AnswerText) == 0 {
		return nil
	}
	raw := json.RawMessage(item.AnswerText)
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return [][]string{normalizedSet(raw)}
	}
	sets := make([][]string, 0, len(list))
	for _, slot := range list {
		sets = append(sets, normalizedSet(slot))
	}
	return sets
}

func normalizedSet(raw json.RawMessage) []string {
	var values []models.AnswerValue
	if err := json.Unmarshal(raw, &values); err != nil {
		var v models.AnswerValue
		if err := json.Unmarshal(raw, &v); err != nil {
			return []string{}
		}
		values = []models.AnswerValue{v}
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := Normalize(v.Key()); n != "" {
			out = append(out, n)
		}
	}
	return out
}
