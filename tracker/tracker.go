// Package tracker is the single atomic create/check path for sequence state.
// Every component that creates instances or records step outcomes goes
// through a Tracker; nothing else mutates sequence state.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nurtura/models"
)

var (
	ErrInstanceNotFound  = errors.New("sequence instance not found")
	ErrStepNotFound      = errors.New("sequence step not found")
	ErrRecipientNotFound = errors.New("recipient not found")
)

// Tracker records which steps of which sequence instances have been
// scheduled and sent, and rejects duplicate instance creation for the same
// (recipient, sequence type) pair.
type Tracker interface {
	// UpsertRecipient creates or refreshes a recipient keyed by email.
	UpsertRecipient(ctx context.Context, r *models.Recipient) error
	RecipientByEmail(ctx context.Context, email string) (*models.Recipient, error)

	// CreateIfAbsent atomically creates an instance with stepCount pending
	// steps, unless a non-terminal instance already exists for the same
	// (recipient, sequence type) pair, in which case it returns that
	// instance with created=false. This is the primary duplicate-trigger
	// defense.
	CreateIfAbsent(ctx context.Context, email, seqType, segment string, anchor time.Time, stepCount int) (*models.SequenceInstance, bool, error)
	Instance(ctx context.Context, instanceID string) (*models.SequenceInstance, error)
	InstancesByRecipient(ctx context.Context, email string) ([]models.SequenceInstance, error)

	// Step transitions enforce monotonicity; re-marking an already-sent
	// step is a successful no-op so retried executions stay safe.
	MarkScheduled(ctx context.Context, instanceID string, stepIndex int, at time.Time) error
	MarkSent(ctx context.Context, instanceID string, stepIndex int, receiptID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, instanceID string, stepIndex int, reason string) error
	StepStatus(ctx context.Context, instanceID string, stepIndex int) (models.StepStatus, error)

	// MarkConverted moves an active instance to the converted terminal
	// state; pending step executions then short-circuit without sending.
	MarkConverted(ctx context.Context, instanceID string) error
	// ConvertByRecipient converts every active instance for a recipient
	// and reports how many it touched.
	ConvertByRecipient(ctx context.Context, email string) (int, error)
}

// ActiveKey builds the uniqueness key held by a non-terminal instance.
func ActiveKey(email, seqType string) string {
	return email + "|" + seqType
}

// stepTransition decides whether a step may move from one status to
// another. apply=false with a nil error is the idempotent no-op path.
func stepTransition(from, to models.StepStatus) (apply bool, err error) {
	if from == to {
		return false, nil
	}
	switch from {
	case models.StepSent, models.StepFailed:
		// Terminal. Late or duplicate marks are no-ops, never regressions.
		return false, nil
	case models.StepPending:
		return true, nil
	case models.StepScheduled:
		if to == models.StepPending {
			return false, fmt.Errorf("step cannot regress from %s to %s", from, to)
		}
		return true, nil
	}
	return false, fmt.Errorf("unknown step status %q", from)
}

// stepsTerminal reports whether every step has reached sent or failed.
func stepsTerminal(steps []models.SequenceStep) bool {
	for _, s := range steps {
		if s.Status != models.StepSent && s.Status != models.StepFailed {
			return false
		}
	}
	return len(steps) > 0
}
