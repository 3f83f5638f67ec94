package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nurtura/models"
	"nurtura/tracker"

	"github.com/sirupsen/logrus"
)

// Deliverer is the transactional email delivery provider. Errors are
// classified retryable vs terminal by the executor, not by the channel.
type Deliverer interface {
	Send(ctx context.Context, to, subject, htmlBody string) (receiptID string, err error)
}

// Notifier is the optional fire-and-forget alert channel. Failures inside a
// Notifier must never affect a step's outcome.
type Notifier interface {
	Notify(message string)
}

// Executor is the unit of work invoked at a step's fire time. It re-checks
// idempotency, resolves template and variables, sends, and records the
// outcome. Concurrent invocations for the same (instance, step) pair are
// expected and safe: at most one observable send happens.
type Executor struct {
	Tracker   tracker.Tracker
	Deliverer Deliverer
	Templates TemplateStore
	Notifier  Notifier     // optional
	Hub       *ProgressHub // optional
	Logger    *logrus.Entry
}

func NewExecutor(tr tracker.Tracker, d Deliverer, logger *logrus.Entry) *Executor {
	return &Executor{
		Tracker:   tr,
		Deliverer: d,
		Templates: DefaultTemplates,
		Logger:    logger,
	}
}

// ExecuteStep runs one step to completion or classification. A nil return
// means the task is finished (sent, short-circuited, or permanently
// failed and recorded); a retryable error asks the scheduler runtime to
// try again later.
func (e *Executor) ExecuteStep(ctx context.Context, instanceID string, stepIndex int) error {
	inst, err := e.Tracker.Instance(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("loading instance %s: %w", instanceID, err)
	}

	// Terminal instances (converted, completed) short-circuit before any
	// per-step check; a converted recipient gets nothing further.
	if inst.Status.Terminal() {
		e.Logger.WithFields(logrus.Fields{
			"instance": instanceID,
			"step":     stepIndex,
			"status":   inst.Status,
		}).Info("Instance terminal, skipping step")
		return nil
	}

	status, err := e.Tracker.StepStatus(ctx, instanceID, stepIndex)
	if err != nil {
		return fmt.Errorf("loading step status: %w", err)
	}
	if status == models.StepSent {
		// True idempotency: success without touching the delivery channel.
		e.Logger.WithFields(logrus.Fields{"instance": instanceID, "step": stepIndex}).
			Info("Step already sent, skipping")
		return nil
	}
	if status == models.StepFailed {
		return nil
	}

	st, ok := SequenceTypeByName(inst.SequenceType)
	if !ok {
		return e.failStep(ctx, inst.InstanceID, stepIndex, fmt.Sprintf("unknown sequence type %q", inst.SequenceType))
	}

	slot, tpl, err := e.Templates.Resolve(st, stepIndex, Segment(inst.Segment))
	if err != nil {
		// Retryable: the missing template may yet be deployed. Never
		// substitute different content.
		return err
	}

	rec, err := e.Tracker.RecipientByEmail(ctx, inst.RecipientEmail)
	if err != nil {
		return fmt.Errorf("loading recipient %s: %w", inst.RecipientEmail, err)
	}
	if rec.IsUnsubscribed || rec.IsBounced {
		return e.failStep(ctx, inst.InstanceID, stepIndex, "recipient is unsubscribed or bounced")
	}

	subject, body, err := RenderEmail(tpl, RecipientVars(rec))
	if err != nil {
		// A schema violation is a content bug; retrying cannot fix it.
		return e.failStep(ctx, inst.InstanceID, stepIndex, fmt.Sprintf("render %s: %v", slot, err))
	}

	receiptID, err := e.Deliverer.Send(ctx, rec.Email, subject, body)
	if err != nil {
		if isPermanentDeliveryError(err) {
			return e.failStep(ctx, inst.InstanceID, stepIndex, fmt.Sprintf("permanent delivery failure: %v", err))
		}
		return &StepError{Reason: "delivery failed", Err: err}
	}

	sentAt := time.Now().UTC()
	if err := e.Tracker.MarkSent(ctx, inst.InstanceID, stepIndex, receiptID, sentAt); err != nil {
		// The send happened; a failed record write must be retried, and
		// the sent short-circuit above absorbs the redundant execution.
		return fmt.Errorf("recording sent step: %w", err)
	}

	e.Logger.WithFields(logrus.Fields{
		"instance":  instanceID,
		"step":      stepIndex,
		"slot":      slot,
		"recipient": rec.Email,
		"receipt":   receiptID,
	}).Info("Step delivered")

	if e.Hub != nil {
		e.Hub.Publish(ProgressEvent{
			InstanceID:   inst.InstanceID,
			SequenceType: inst.SequenceType,
			Recipient:    rec.Email,
			StepIndex:    stepIndex,
			Slot:         slot,
			SentAt:       sentAt,
		})
	}
	return nil
}

// failStep records a terminal per-step failure, alerts, and returns the
// permanent classification so the runtime stops retrying. Sibling steps are
// unaffected.
func (e *Executor) failStep(ctx context.Context, instanceID string, stepIndex int, reason string) error {
	if err := e.Tracker.MarkFailed(ctx, instanceID, stepIndex, reason); err != nil {
		return fmt.Errorf("recording failed step: %w", err)
	}
	e.Logger.WithFields(logrus.Fields{"instance": instanceID, "step": stepIndex}).
		Warnf("Step failed permanently: %s", reason)
	if e.Notifier != nil {
		e.Notifier.Notify(fmt.Sprintf("Step %d of instance %s failed: %s", stepIndex, instanceID, reason))
	}
	return &StepError{Permanent: true, Reason: reason}
}

// SMTP reply codes and phrasings that mean the mailbox will never accept
// this message.
var permanentSMTPMarkers = []string{
	"550", "551", "553", "554",
	"user unknown", "no such user", "mailbox unavailable", "invalid recipient",
}

func isPermanentDeliveryError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentSMTPMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
