package queue

import (
	"errors"
	"strings"
)

// ErrClosed is returned to callbacks of operations submitted after Close.
var ErrClosed = errors.New("queue closed")

type ValidationErrorItem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// PayloadValidationError rejects an enqueue whose value does not satisfy
// Config.PayloadSchema.
type PayloadValidationError struct {
	Errors  []ValidationErrorItem `json:"validation_errors"`
	Message string                `json:"error"`
}

func (e *PayloadValidationError) Error() string {
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	return "payload_schema_validation_failed"
}

func IsPayloadValidationError(err error) bool {
	var target *PayloadValidationError
	return errors.As(err, &target)
}
