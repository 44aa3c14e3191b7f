package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("item_id", "is required", "")

	assert.Equal(t, "item_id", err.Field)
	assert.Equal(t, "is required", err.Message)
	assert.Equal(t, "", err.Value)
	assert.Equal(t, "validation error on field 'item_id': is required", err.Error())
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "validation failed", errs.Error())

	errs = append(errs, *NewValidationError("packageId", "is required", nil))
	assert.Equal(t, "validation failed: packageId is required", errs.Error())

	errs = append(errs, *NewValidationError("categoryId", "is required", nil))
	assert.Equal(t, "validation failed: 2 field errors", errs.Error())
}

func TestNewValidationErrorWithRule(t *testing.T) {
	err := NewValidationErrorWithRule("type", "must be a valid item type", "item_type", "ESSAY")

	assert.Equal(t, "item_type", err.Rule)
	assert.Equal(t, "type", err.Field)
	assert.Equal(t, "ESSAY", err.Value)
}

func TestToValidationErrors_PassThrough(t *testing.T) {
	original := ValidationErrors{{Field: "answers", Message: "is required", Rule: "required"}}
	wrapped := fmt.Errorf("save: %w", original)

	assert.Equal(t, original, ToValidationErrors(wrapped))
	assert.Nil(t, ToValidationErrors(fmt.Errorf("plain")))
}
