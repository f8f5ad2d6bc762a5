package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNotBlocked       = errors.New("ip is not blocked")
	ErrModelUnavailable = errors.New("anomaly model unavailable")
	ErrStorageFailure   = errors.New("storage failure")
	ErrQueueFull        = errors.New("intake queue is full")
)

// ValidationError reports a malformed input. It maps to a client error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
