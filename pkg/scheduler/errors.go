package scheduler

import (
	"fmt"

	"github.com/pkg/errors"
)

// AdmissionReason classifies why AddTask rejected a config.
type AdmissionReason string

const (
	ReasonPoolFull    AdmissionReason = "pool_full"
	ReasonDuplicateID AdmissionReason = "duplicate_id"
	ReasonUnknownType AdmissionReason = "unknown_type"
)

// AdmissionError is returned synchronously by AddTask. Admission never has a
// partial effect: a rejected config leaves no trace in the registry.
type AdmissionError struct {
	Reason AdmissionReason
	TaskID string
	Type   string
}

func (e *AdmissionError) Error() string {
	switch e.Reason {
	case ReasonPoolFull:
		return "task pool is at capacity"
	case ReasonDuplicateID:
		return fmt.Sprintf("task %q already exists", e.TaskID)
	case ReasonUnknownType:
		return fmt.Sprintf("no executor registered for type %q", e.Type)
	}
	return string(e.Reason)
}

// IsAdmissionError reports whether err is an admission rejection and, if so,
// returns it.
func IsAdmissionError(err error) (*AdmissionError, bool) {
	var ae *AdmissionError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

var (
	// ErrTimeout is the failure cause of an attempt that lost its timeout race.
	// For retry purposes it is treated like any executor failure.
	ErrTimeout = errors.New("task timed out")
	// ErrCancelled is the recorded cause of a cancelled task. Cancellation is
	// never retried and never counts as FAILED.
	ErrCancelled = errors.New("task cancelled")
)
