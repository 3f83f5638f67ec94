package engine

import (
	"errors"
	"fmt"
)

// Failure taxonomy for trigger handling and step execution.
var (
	// ErrInputInvalid marks a malformed trigger; rejected synchronously,
	// no state is created.
	ErrInputInvalid = errors.New("invalid trigger input")

	// ErrUnknownSequenceType marks a trigger naming a sequence type that
	// is not in the catalog.
	ErrUnknownSequenceType = errors.New("unknown sequence type")

	// ErrTemplateMissing marks a failed template resolution. Retryable:
	// the template may be deployed before attempts run out. Never
	// substituted with different content.
	ErrTemplateMissing = errors.New("template not found")
)

// StepError wraps a step execution failure with its retry classification.
// Permanent failures (invalid recipient address, unresolvable template
// variables) are marked failed and never retried; everything else is retried
// with bounded backoff by the step worker.
type StepError struct {
	Permanent bool
	Reason    string
	Err       error
}

func (e *StepError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s step failure: %s: %v", kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s step failure: %s", kind, e.Reason)
}

func (e *StepError) Unwrap() error { return e.Err }

// IsRetryable reports whether a step execution error should be retried.
// Unknown errors default to retryable: infrastructure hiccups (store
// unreachable, timeouts) resolve themselves more often than not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StepError
	if errors.As(err, &se) {
		return !se.Permanent
	}
	return true
}
