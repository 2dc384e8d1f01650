package batch

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/batchtrack/pkg/models"
)

var (
	ErrBatchNotFound   = errors.New("batch not found")
	ErrVersionConflict = errors.New("batch was modified by another request")
	ErrAlreadyFinished = errors.New("batch already finished")
	ErrUnknownPhase    = errors.New("unknown phase")
)

// ValidationError describes a rejected field. Index is the entry position
// for entry-level problems and -1 otherwise.
type ValidationError struct {
	Phase   models.Phase
	Field   string
	Index   int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s.entries[%d].%s: %s", e.Phase, e.Index, e.Field, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s", e.Phase, e.Field, e.Message)
}

func fieldError(phase models.Phase, field, msg string) *ValidationError {
	return &ValidationError{Phase: phase, Field: field, Index: -1, Message: msg}
}

func entryError(phase models.Phase, index int, field, msg string) *ValidationError {
	return &ValidationError{Phase: phase, Field: field, Index: index, Message: msg}
}

// IsClientError reports whether err is caused by the request rather than
// by the service or its storage.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrBatchNotFound) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrAlreadyFinished) ||
		errors.Is(err, ErrUnknownPhase)
}
