package models

import (
	"time"

	"gorm.io/datatypes"
)

// Question packages are authored elsewhere. This service only reads them.

type PackageStatus string

const (
	PackageDraft     PackageStatus = "DRAFT"
	PackagePublished PackageStatus = "PUBLISHED"
)

type ItemType string

const (
	ItemMultipleChoice    ItemType = "MULTIPLE_CHOICE"
	ItemTrueFalseNotGiven ItemType = "TRUE_FALSE_NOT_GIVEN"
	ItemShortAnswer       ItemType = "SHORT_ANSWER"
	ItemMatchingDropdown  ItemType = "MATCHING_DROPDOWN"
)

// IsSingleKey reports whether the item is answered with one selected key.
func (t ItemType) IsSingleKey() bool {
	return t == ItemMultipleChoice || t == ItemTrueFalseNotGiven
}

// IsMultiBlank reports whether the item is a template with one or more blanks.
func (t ItemType) IsMultiBlank() bool {
	return t == ItemShortAnswer || t == ItemMatchingDropdown
}

func (t ItemType) IsValid() bool {
	return t.IsSingleKey() || t.IsMultiBlank()
}

type QuestionCategory struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"not null;size:200"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Packages []QuestionPackage `json:"packages,omitempty" gorm:"foreignKey:CategoryID"`
}

type QuestionPackage struct {
	ID              string        `json:"id" gorm:"primaryKey;size:36"`
	CategoryID      string        `json:"category_id" gorm:"not null;size:36;index"`
	Title           string        `json:"title" gorm:"not null;size:200"`
	Status          PackageStatus `json:"status" gorm:"not null;size:20;default:DRAFT;index"`
	DurationMinutes int           `json:"duration_minutes" gorm:"not null;default:60"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`

	Category *QuestionCategory `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Pages    []QuestionPage    `json:"pages,omitempty" gorm:"foreignKey:PackageID"`
}

func (p *QuestionPackage) IsPublished() bool {
	return p != nil && p.Status == PackagePublished
}

// Items returns every item of the package in page order then item order.
// Pages and their items must already be loaded in order.
func (p *QuestionPackage) Items() []QuestionItem {
	var items []QuestionItem
	for _, page := range p.Pages {
		items = append(items, page.Items...)
	}
	return items
}

func (p *QuestionPackage) CategoryName() string {
	if p.Category == nil {
		return ""
	}
	return p.Category.Name
}

type QuestionPage struct {
	ID           string         `json:"id" gorm:"primaryKey;size:36"`
	PackageID    string         `json:"package_id" gorm:"not null;size:36;index"`
	PageOrder    int            `json:"page_order" gorm:"not null;default:0"`
	StoryPassage string         `json:"story_passage" gorm:"type:text"`
	Instructions string         `json:"instructions" gorm:"type:text"`
	MediaAssets  datatypes.JSON `json:"media_assets"`

	Items []QuestionItem `json:"items,omitempty" gorm:"foreignKey:PageID"`
}

// QuestionItem carries the correctness specification used by grading.
// CorrectKey is set for single-key items; AnswerText holds the ordered list
// of acceptable-answer sets for multi-blank items.
type QuestionItem struct {
	ID          string         `json:"id" gorm:"primaryKey;size:36"`
	PageID      string         `json:"page_id" gorm:"not null;size:36;index"`
	ItemOrder   int            `json:"item_order" gorm:"not null;default:0"`
	Type        ItemType       `json:"type" gorm:"not null;size:40"`
	Question    string         `json:"question" gorm:"type:text"`
	Choices     datatypes.JSON `json:"choices"`
	CorrectKey  *string        `json:"-" gorm:"size:50"`
	AnswerText  datatypes.JSON `json:"-"`
	MediaAssets datatypes.JSON `json:"media_assets"`
}

// MediaAsset is one entry of a page or item media list.
type MediaAsset struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}
