package models

import (
	"errors"
	"fmt"
)

// NotFoundError reports an unknown item or date.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// NewItemNotFound builds a NotFoundError for an item id.
func NewItemNotFound(itemID int64) *NotFoundError {
	return &NotFoundError{Resource: "item", Key: fmt.Sprintf("%d", itemID)}
}

// InsufficientHistoryError reports that no baseline exists for a computation.
// It is distinct from an empty result.
type InsufficientHistoryError struct {
	ItemID int64
	Needed string
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for item %d: %s", e.ItemID, e.Needed)
}

// ValidationError reports a malformed input rejected before computation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, format string, a ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, a...)}
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInsufficientHistory reports whether err wraps an InsufficientHistoryError.
func IsInsufficientHistory(err error) bool {
	var ih *InsufficientHistoryError
	return errors.As(err, &ih)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
