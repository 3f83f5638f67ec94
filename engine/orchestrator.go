package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nurtura/models"
	"nurtura/tracker"
	"nurtura/utils"

	"github.com/sirupsen/logrus"
)

// Runtime is the external scheduler contract: eventual at-least-once
// invocation of the step executor at or after the given time. No ordering
// guarantee exists across handles.
type Runtime interface {
	ScheduleAt(ctx context.Context, at time.Time, instanceID string, stepIndex int) (handle string, err error)
}

// AddressChecker vets a recipient address before any state is created.
type AddressChecker interface {
	Check(email string) error
}

// TriggerInput is one inbound trigger event. FirstStepSentAt is mandatory
// for sequence types whose first step is delivered by the external caller;
// it becomes the schedule anchor.
//
// The count fields are pointers so triggers that carry no assessment data
// (payments, call outcomes) are distinguishable from an all-zero
// assessment: absent counts never overwrite a recipient's stored ones.
type TriggerInput struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name" validate:"max=120"`
	Company string `json:"company" validate:"max=160"`

	CriticalCount *int `json:"critical_count" validate:"omitempty,min=0"`
	ElevatedCount *int `json:"elevated_count" validate:"omitempty,min=0"`
	ModerateCount *int `json:"moderate_count" validate:"omitempty,min=0"`
	NominalCount  *int `json:"nominal_count" validate:"omitempty,min=0"`

	SequenceType    string     `json:"sequence_type" validate:"required"`
	FirstStepSentAt *time.Time `json:"first_step_sent_at"`
}

// counts folds the optional count fields into a DiagnosticCounts and
// reports whether the trigger carried any of them.
func (in TriggerInput) counts() (DiagnosticCounts, bool) {
	has := in.CriticalCount != nil || in.ElevatedCount != nil ||
		in.ModerateCount != nil || in.NominalCount != nil
	return DiagnosticCounts{
		Critical: intOrZero(in.CriticalCount),
		Elevated: intOrZero(in.ElevatedCount),
		Moderate: intOrZero(in.ModerateCount),
		Nominal:  intOrZero(in.NominalCount),
	}, has
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// TriggerResult is returned synchronously; all sends happen asynchronously
// afterwards.
type TriggerResult struct {
	InstanceID     string  `json:"instance_id"`
	Segment        Segment `json:"segment"`
	Duplicate      bool    `json:"duplicate"`
	ScheduledSteps int     `json:"scheduled_steps"`
}

// Orchestrator is the entry point invoked by inbound triggers. It owns
// instance creation; per-step status afterwards belongs to the executor.
type Orchestrator struct {
	Tracker tracker.Tracker
	Runtime Runtime
	Profile TimingProfile
	Checker AddressChecker // optional
	Logger  *logrus.Entry
}

func NewOrchestrator(tr tracker.Tracker, rt Runtime, profile TimingProfile, logger *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		Tracker: tr,
		Runtime: rt,
		Profile: profile,
		Logger:  logger,
	}
}

// Trigger validates the input, classifies the recipient, creates the
// sequence instance if absent, and schedules every step this engine owns.
// A duplicate trigger for a live (recipient, type) pair returns the
// existing instance with Duplicate=true and schedules nothing.
func (o *Orchestrator) Trigger(ctx context.Context, in TriggerInput) (*TriggerResult, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputInvalid, err)
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	st, ok := SequenceTypeByName(in.SequenceType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSequenceType, in.SequenceType)
	}
	if st.ExternalFirstStep && in.FirstStepSentAt == nil {
		return nil, fmt.Errorf("%w: sequence type %q requires first_step_sent_at", ErrInputInvalid, in.SequenceType)
	}

	if o.Checker != nil {
		if err := o.Checker.Check(in.Email); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputInvalid, err)
		}
	}

	var existing *models.Recipient
	if rec, err := o.Tracker.RecipientByEmail(ctx, in.Email); err == nil {
		existing = rec
	} else if !errors.Is(err, tracker.ErrRecipientNotFound) {
		return nil, fmt.Errorf("loading recipient: %w", err)
	}

	// Triggers without assessment data (payments, call outcomes) classify
	// and upsert from the recipient's stored counts instead of zeroing them.
	counts, hasCounts := in.counts()
	if !hasCounts && existing != nil {
		counts = DiagnosticCounts{
			Critical: existing.CriticalCount,
			Elevated: existing.ElevatedCount,
			Moderate: existing.ModerateCount,
			Nominal:  existing.NominalCount,
		}
	}
	segment := ClassifySegment(counts)

	now := time.Now().UTC()
	rec := &models.Recipient{
		Email:         in.Email,
		Name:          in.Name,
		Company:       in.Company,
		CriticalCount: counts.Critical,
		ElevatedCount: counts.Elevated,
		ModerateCount: counts.Moderate,
		NominalCount:  counts.Nominal,
		LastTriggerAt: &now,
	}
	if existing != nil {
		if rec.Name == "" {
			rec.Name = existing.Name
		}
		if rec.Company == "" {
			rec.Company = existing.Company
		}
	}
	if err := o.Tracker.UpsertRecipient(ctx, rec); err != nil {
		return nil, fmt.Errorf("upserting recipient: %w", err)
	}

	anchor := now
	if st.ExternalFirstStep {
		anchor = in.FirstStepSentAt.UTC()
	}

	inst, created, err := o.Tracker.CreateIfAbsent(ctx, in.Email, st.Name, string(segment), anchor, len(st.Steps))
	if err != nil {
		return nil, fmt.Errorf("creating sequence instance: %w", err)
	}
	if !created {
		o.Logger.WithFields(logrus.Fields{
			"recipient": in.Email,
			"sequence":  st.Name,
			"instance":  inst.InstanceID,
		}).Info("Duplicate trigger ignored, live instance exists")
		return &TriggerResult{
			InstanceID: inst.InstanceID,
			Segment:    Segment(inst.Segment),
			Duplicate:  true,
		}, nil
	}

	fireTimes := FireTimes(st, anchor, o.Profile)
	scheduled := 0
	for i, step := range st.Steps {
		if step.Index == 1 && st.ExternalFirstStep {
			// Delivered by the caller; record it, never schedule it.
			if err := o.Tracker.MarkSent(ctx, inst.InstanceID, step.Index, "external", anchor); err != nil {
				return nil, fmt.Errorf("recording external first step: %w", err)
			}
			continue
		}
		handle, err := o.Runtime.ScheduleAt(ctx, fireTimes[i], inst.InstanceID, step.Index)
		if err != nil {
			// Instance and unscheduled steps remain visible as pending
			// for the operator; no partial rollback.
			return nil, fmt.Errorf("scheduling step %d: %w", step.Index, err)
		}
		if err := o.Tracker.MarkScheduled(ctx, inst.InstanceID, step.Index, fireTimes[i]); err != nil {
			return nil, fmt.Errorf("marking step %d scheduled: %w", step.Index, err)
		}
		o.Logger.WithFields(logrus.Fields{
			"instance": inst.InstanceID,
			"step":     step.Index,
			"fire_at":  fireTimes[i].Format(time.RFC3339),
			"handle":   handle,
		}).Debug("Step scheduled")
		scheduled++
	}

	o.Logger.WithFields(logrus.Fields{
		"recipient": in.Email,
		"sequence":  st.Name,
		"segment":   segment,
		"instance":  inst.InstanceID,
		"steps":     scheduled,
	}).Info("Sequence instance created")

	return &TriggerResult{
		InstanceID:     inst.InstanceID,
		Segment:        segment,
		ScheduledSteps: scheduled,
	}, nil
}
