package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxAudioPlays caps how many times a student may play one media clip.
const MaxAudioPlays = 2

// TemporaryAnswer is the draft answer for one item of an in-progress attempt.
type TemporaryAnswer struct {
	ID             string         `json:"id" gorm:"primaryKey;size:36"`
	AttemptID      string         `json:"attempt_id" gorm:"not null;size:36;uniqueIndex:idx_temporary_answer_attempt_item"`
	ItemID         string         `json:"item_id" gorm:"not null;size:36;uniqueIndex:idx_temporary_answer_attempt_item"`
	SelectedKey    *string        `json:"selected_key" gorm:"size:50"`
	TextAnswer     datatypes.JSON `json:"text_answer"`
	AudioPlayCount int            `json:"audio_play_count" gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (a *TemporaryAnswer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// HasSelection reports whether the draft holds a non-empty selected key.
func (a *TemporaryAnswer) HasSelection() bool {
	return a.SelectedKey != nil && *a.SelectedKey != ""
}

// TextSlots decodes TextAnswer. A stored scalar is treated as a single slot.
func (a *TemporaryAnswer) TextSlots() []string {
	if len(a.TextAnswer) == 0 {
		return []string{}
	}
	var v AnswerValue
	if err := json.Unmarshal(a.TextAnswer, &v); err != nil {
		return []string{}
	}
	return v.List()
}

// CapAudioPlays clamps a play counter to [0, MaxAudioPlays].
func CapAudioPlays(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxAudioPlays {
		return MaxAudioPlays
	}
	return n
}

// AnswerValue is a submitted answer value: a scalar key or one string per blank.
type AnswerValue struct {
	Scalar string
	Slots  []string
	IsList bool
	IsNull bool
}

func KeyValue(key string) AnswerValue {
	return AnswerValue{Scalar: key}
}

func SlotsValue(slots ...string) AnswerValue {
	return AnswerValue{Slots: slots, IsList: true}
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = AnswerValue{}
	if len(data) == 0 || string(data) == "null" {
		v.IsNull = true
		return nil
	}
	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		v.IsList = true
		v.Slots = make([]string, 0, len(raw))
		for _, r := range raw {
			s, err := scalarString(r)
			if err != nil {
				return err
			}
			v.Slots = append(v.Slots, s)
		}
		return nil
	}
	s, err := scalarString(data)
	if err != nil {
		return err
	}
	v.Scalar = s
	return nil
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.IsList:
		if v.Slots == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Slots)
	case v.IsNull:
		return []byte("null"), nil
	default:
		return json.Marshal(v.Scalar)
	}
}

// Key returns the value as a single key. Lists are joined with commas.
func (v AnswerValue) Key() string {
	if v.IsList {
		return strings.Join(v.Slots, ",")
	}
	return v.Scalar
}

// List returns the value as blank slots. A scalar becomes one slot, null none.
func (v AnswerValue) List() []string {
	switch {
	case v.IsList:
		return append([]string{}, v.Slots...)
	case v.IsNull:
		return []string{}
	default:
		return []string{v.Scalar}
	}
}

func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if raw[0] == '{' || raw[0] == '[' {
		return "", fmt.Errorf("unsupported nested answer value %s", string(raw))
	}
	// numbers and booleans keep their literal form
	return string(raw), nil
}

// SubmittedAnswer is one answer as sent by the client.
type SubmittedAnswer struct {
	ItemID         string      `json:"item_id" validate:"required"`
	Type           ItemType    `json:"type" validate:"required,item_type"`
	Value          AnswerValue `json:"value"`
	AudioPlayCount int         `json:"audio_play_count" validate:"min=0"`
}
