package grading

import (
	"regexp"
	"strings"

	"github.com/SAP-F-2025/exam-session-service/internal/models"
	"golang.org/x/text/unicode/norm"
)

var blankPattern = regexp.MustCompile(`\[[^\]]*\]`)

// Normalize prepares free text for comparison: lowercase, decompose and drop
// combining diacritics, turn anything outside [a-z0-9] into a space, then
// collapse and trim whitespace.
func Normalize(s string) string {
	decomposed := norm.NFKD.String(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case r >= 0x0300 && r <= 0x036f:
			continue
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// BlankCount counts bracketed blanks such as "[1]" or "[]" in a template.
func BlankCount(template string) int {
	return len(blankPattern.FindAllStringIndex(template, -1))
}

// ItemQuestionCount is how many question units an item contributes to the
// total: one for single-key items, one per blank (at least one) otherwise.
func ItemQuestionCount(item models.QuestionItem) int {
	if item.Type.IsMultiBlank() {
		return max(1, BlankCount(item.Question))
	}
	return 1
}

// CountQuestions is the total used for progress and for the final percentage.
// Preparation, play and grading all go through here.
func CountQuestions(items []models.QuestionItem) int {
	total := 0
	for _, item := range items {
		total += ItemQuestionCount(item)
	}
	return total
}
