package tracker

import (
	"context"
	"sync"
	"time"

	"nurtura/models"

	"github.com/google/uuid"
)

// MemoryTracker is a mutex-guarded in-memory Tracker with the same
// semantics as the Postgres implementation. It backs tests and local runs
// without a database.
type MemoryTracker struct {
	mu         sync.Mutex
	recipients map[string]*models.Recipient
	instances  map[string]*models.SequenceInstance // by instance id
	steps      map[string][]*models.SequenceStep   // by instance id
	activeKeys map[string]string                   // active key -> instance id
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		recipients: make(map[string]*models.Recipient),
		instances:  make(map[string]*models.SequenceInstance),
		steps:      make(map[string][]*models.SequenceStep),
		activeKeys: make(map[string]string),
	}
}

func (t *MemoryTracker) UpsertRecipient(_ context.Context, r *models.Recipient) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Same column set as the Postgres upsert: profile and counts refresh,
	// suppression flags survive.
	if existing, ok := t.recipients[r.Email]; ok {
		existing.Name = r.Name
		existing.Company = r.Company
		existing.CriticalCount = r.CriticalCount
		existing.ElevatedCount = r.ElevatedCount
		existing.ModerateCount = r.ModerateCount
		existing.NominalCount = r.NominalCount
		existing.LastTriggerAt = r.LastTriggerAt
		return nil
	}
	cp := *r
	t.recipients[r.Email] = &cp
	return nil
}

func (t *MemoryTracker) RecipientByEmail(_ context.Context, email string) (*models.Recipient, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.recipients[email]
	if !ok {
		return nil, ErrRecipientNotFound
	}
	cp := *r
	return &cp, nil
}

func (t *MemoryTracker) CreateIfAbsent(_ context.Context, email, seqType, segment string, anchor time.Time, stepCount int) (*models.SequenceInstance, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := ActiveKey(email, seqType)
	if id, ok := t.activeKeys[key]; ok {
		return t.snapshotLocked(id), false, nil
	}

	inst := &models.SequenceInstance{
		InstanceID:     uuid.New().String(),
		RecipientEmail: email,
		SequenceType:   seqType,
		Segment:        segment,
		Status:         models.InstanceActive,
		AnchorAt:       anchor,
		ActiveKey:      &key,
	}
	t.instances[inst.InstanceID] = inst
	for i := 1; i <= stepCount; i++ {
		t.steps[inst.InstanceID] = append(t.steps[inst.InstanceID], &models.SequenceStep{
			InstanceID: inst.InstanceID,
			StepIndex:  i,
			Status:     models.StepPending,
		})
	}
	t.activeKeys[key] = inst.InstanceID
	return t.snapshotLocked(inst.InstanceID), true, nil
}

func (t *MemoryTracker) Instance(_ context.Context, instanceID string) (*models.SequenceInstance, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.instances[instanceID]; !ok {
		return nil, ErrInstanceNotFound
	}
	return t.snapshotLocked(instanceID), nil
}

func (t *MemoryTracker) InstancesByRecipient(_ context.Context, email string) ([]models.SequenceInstance, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []models.SequenceInstance
	for id, inst := range t.instances {
		if inst.RecipientEmail == email {
			out = append(out, *t.snapshotLocked(id))
		}
	}
	return out, nil
}

func (t *MemoryTracker) MarkScheduled(_ context.Context, instanceID string, stepIndex int, at time.Time) error {
	return t.transition(instanceID, stepIndex, models.StepScheduled, func(s *models.SequenceStep) {
		s.ScheduledFor = &at
	})
}

func (t *MemoryTracker) MarkSent(_ context.Context, instanceID string, stepIndex int, receiptID string, sentAt time.Time) error {
	return t.transition(instanceID, stepIndex, models.StepSent, func(s *models.SequenceStep) {
		s.SentAt = &sentAt
		s.ReceiptID = receiptID
	})
}

func (t *MemoryTracker) MarkFailed(_ context.Context, instanceID string, stepIndex int, reason string) error {
	return t.transition(instanceID, stepIndex, models.StepFailed, func(s *models.SequenceStep) {
		s.FailureReason = reason
	})
}

func (t *MemoryTracker) transition(instanceID string, stepIndex int, to models.StepStatus, mutate func(*models.SequenceStep)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	step := t.stepLocked(instanceID, stepIndex)
	if step == nil {
		return ErrStepNotFound
	}
	apply, err := stepTransition(step.Status, to)
	if err != nil {
		return err
	}
	if !apply {
		return nil
	}
	step.Status = to
	mutate(step)

	if to != models.StepSent && to != models.StepFailed {
		return nil
	}
	steps := make([]models.SequenceStep, 0, len(t.steps[instanceID]))
	for _, s := range t.steps[instanceID] {
		steps = append(steps, *s)
	}
	if stepsTerminal(steps) {
		inst := t.instances[instanceID]
		if inst.Status == models.InstanceActive {
			t.releaseLocked(inst, models.InstanceCompleted)
		}
	}
	return nil
}

func (t *MemoryTracker) StepStatus(_ context.Context, instanceID string, stepIndex int) (models.StepStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	step := t.stepLocked(instanceID, stepIndex)
	if step == nil {
		return "", ErrStepNotFound
	}
	return step.Status, nil
}

func (t *MemoryTracker) MarkConverted(_ context.Context, instanceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	inst, ok := t.instances[instanceID]
	if !ok {
		return ErrInstanceNotFound
	}
	if inst.Status == models.InstanceActive {
		t.releaseLocked(inst, models.InstanceConverted)
	}
	return nil
}

func (t *MemoryTracker) ConvertByRecipient(_ context.Context, email string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	converted := 0
	for _, inst := range t.instances {
		if inst.RecipientEmail == email && inst.Status == models.InstanceActive {
			t.releaseLocked(inst, models.InstanceConverted)
			converted++
		}
	}
	return converted, nil
}

// releaseLocked moves an instance to a terminal status and frees its key so
// a later trigger for the same pair may start a fresh instance.
func (t *MemoryTracker) releaseLocked(inst *models.SequenceInstance, to models.InstanceStatus) {
	inst.Status = to
	if inst.ActiveKey != nil {
		delete(t.activeKeys, *inst.ActiveKey)
		inst.ActiveKey = nil
	}
}

func (t *MemoryTracker) stepLocked(instanceID string, stepIndex int) *models.SequenceStep {
	for _, s := range t.steps[instanceID] {
		if s.StepIndex == stepIndex {
			return s
		}
	}
	return nil
}

func (t *MemoryTracker) snapshotLocked(instanceID string) *models.SequenceInstance {
	inst := *t.instances[instanceID]
	inst.Steps = nil
	for _, s := range t.steps[instanceID] {
		inst.Steps = append(inst.Steps, *s)
	}
	return &inst
}
