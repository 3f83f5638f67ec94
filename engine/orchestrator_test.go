package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nurtura/models"
	"nurtura/tracker"
	"nurtura/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scheduledCall struct {
	At         time.Time
	InstanceID string
	StepIndex  int
}

type mockRuntime struct {
	mu    sync.Mutex
	calls []scheduledCall
	err   error
}

func (m *mockRuntime) ScheduleAt(_ context.Context, at time.Time, instanceID string, stepIndex int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.calls = append(m.calls, scheduledCall{At: at, InstanceID: instanceID, StepIndex: stepIndex})
	return "handle-1", nil
}

func (m *mockRuntime) scheduled() []scheduledCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]scheduledCall(nil), m.calls...)
}

type rejectingChecker struct{}

func (rejectingChecker) Check(string) error { return errors.New("disposable email domain") }

func newTestOrchestrator(trk tracker.Tracker, rt Runtime) *Orchestrator {
	return NewOrchestrator(trk, rt, ProfileProduction, testLogger())
}

func TestTriggerNurtureSchedulesFromAnchor(t *testing.T) {
	ctx := context.Background()
	trk := tracker.NewMemoryTracker()
	rt := &mockRuntime{}
	o := newTestOrchestrator(trk, rt)

	anchor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	result, err := o.Trigger(ctx, TriggerInput{
		Email:           "Ada@Example.com",
		Name:            "Ada Lovelace",
		Company:         "Analytical Engines",
		CriticalCount:   utils.Pointer(2),
		ElevatedCount:   utils.Pointer(1),
		SequenceType:    SeqNurture,
		FirstStepSentAt: utils.Pointer(anchor),
	})
	require.NoError(t, err)
	assert.Equal(t, SegmentCritical, result.Segment)
	assert.False(t, result.Duplicate)
	assert.Equal(t, 4, result.ScheduledSteps)

	// Step 1 was delivered externally: recorded sent, never scheduled.
	status, err := trk.StepStatus(ctx, result.InstanceID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StepSent, status)

	calls := rt.scheduled()
	require.Len(t, calls, 4)
	assert.Equal(t, 2, calls[0].StepIndex)
	assert.Equal(t, anchor.Add(24*time.Hour), calls[0].At)
	assert.Equal(t, anchor.Add(72*time.Hour), calls[1].At)
	assert.Equal(t, anchor.Add(96*time.Hour), calls[2].At)
	assert.Equal(t, anchor.Add(144*time.Hour), calls[3].At)

	// Email was normalized before any state was keyed on it.
	rec, err := trk.RecipientByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", rec.Name)
}

func TestTriggerDuplicateReturnsExistingInstance(t *testing.T) {
	ctx := context.Background()
	trk := tracker.NewMemoryTracker()
	rt := &mockRuntime{}
	o := newTestOrchestrator(trk, rt)

	anchor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	in := TriggerInput{
		Email:           "ada@example.com",
		CriticalCount:   utils.Pointer(2),
		SequenceType:    SeqNurture,
		FirstStepSentAt: utils.Pointer(anchor),
	}

	first, err := o.Trigger(ctx, in)
	require.NoError(t, err)
	scheduledBefore := len(rt.scheduled())

	second, err := o.Trigger(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.InstanceID, second.InstanceID)
	assert.Zero(t, second.ScheduledSteps)
	assert.Len(t, rt.scheduled(), scheduledBefore, "duplicate must schedule nothing")
}

func TestTriggerAfterConversionStartsFresh(t *testing.T) {
	ctx := context.Background()
	trk := tracker.NewMemoryTracker()
	rt := &mockRuntime{}
	o := newTestOrchestrator(trk, rt)

	anchor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	in := TriggerInput{
		Email:           "ada@example.com",
		SequenceType:    SeqNurture,
		FirstStepSentAt: utils.Pointer(anchor),
	}

	first, err := o.Trigger(ctx, in)
	require.NoError(t, err)
	require.NoError(t, trk.MarkConverted(ctx, first.InstanceID))

	// Terminal instances release the pair; a new trigger gets a new
	// instance.
	second, err := o.Trigger(ctx, in)
	require.NoError(t, err)
	assert.False(t, second.Duplicate)
	assert.NotEqual(t, first.InstanceID, second.InstanceID)
}

func TestTriggerWithoutCountsKeepsRecipientData(t *testing.T) {
	ctx := context.Background()
	trk := tracker.NewMemoryTracker()
	o := newTestOrchestrator(trk, &mockRuntime{})

	// Assessment trigger establishes the recipient's counts and profile.
	_, err := o.Trigger(ctx, TriggerInput{
		Email:         "ada@example.com",
		Name:          "Ada Lovelace",
		Company:       "Analytical Engines",
		CriticalCount: utils.Pointer(2),
		ElevatedCount: utils.Pointer(1),
		SequenceType:  SeqMissedAppointment,
	})
	require.NoError(t, err)

	// A payment-style trigger carries no counts, name or company; the
	// stored assessment data must survive and drive classification.
	result, err := o.Trigger(ctx, TriggerInput{
		Email:        "ada@example.com",
		SequenceType: SeqOnboardingWelcome,
	})
	require.NoError(t, err)
	assert.Equal(t, SegmentCritical, result.Segment)

	rec, err := trk.RecipientByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.CriticalCount)
	assert.Equal(t, 1, rec.ElevatedCount)
	assert.Equal(t, "Ada Lovelace", rec.Name)
	assert.Equal(t, "Analytical Engines", rec.Company)
}

func TestTriggerExplicitZeroCountsReclassify(t *testing.T) {
	ctx := context.Background()
	trk := tracker.NewMemoryTracker()
	o := newTestOrchestrator(trk, &mockRuntime{})

	_, err := o.Trigger(ctx, TriggerInput{
		Email:         "ada@example.com",
		CriticalCount: utils.Pointer(2),
		SequenceType:  SeqMissedAppointment,
	})
	require.NoError(t, err)

	// A fresh assessment reporting zero findings is real data, not an
	// absent payload: it overwrites the stored counts.
	result, err := o.Trigger(ctx, TriggerInput{
		Email:         "ada@example.com",
		CriticalCount: utils.Pointer(0),
		NominalCount:  utils.Pointer(8),
		SequenceType:  SeqUndecidedFollowup,
	})
	require.NoError(t, err)
	assert.Equal(t, SegmentOptimize, result.Segment)

	rec, err := trk.RecipientByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Zero(t, rec.CriticalCount)
	assert.Equal(t, 8, rec.NominalCount)
}

func TestTriggerValidation(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(tracker.NewMemoryTracker(), &mockRuntime{})

	_, err := o.Trigger(ctx, TriggerInput{Email: "not-an-email", SequenceType: SeqNurture})
	assert.ErrorIs(t, err, ErrInputInvalid)

	_, err = o.Trigger(ctx, TriggerInput{Email: "ada@example.com"})
	assert.ErrorIs(t, err, ErrInputInvalid)

	_, err = o.Trigger(ctx, TriggerInput{Email: "ada@example.com", SequenceType: "spam_blast"})
	assert.ErrorIs(t, err, ErrUnknownSequenceType)

	// Nurture anchors on the externally sent report; without its
	// timestamp the trigger is rejected.
	_, err = o.Trigger(ctx, TriggerInput{Email: "ada@example.com", SequenceType: SeqNurture})
	assert.ErrorIs(t, err, ErrInputInvalid)
}

func TestTriggerCheckerRejection(t *testing.T) {
	ctx := context.Background()
	trk := tracker.NewMemoryTracker()
	o := newTestOrchestrator(trk, &mockRuntime{})
	o.Checker = rejectingChecker{}

	_, err := o.Trigger(ctx, TriggerInput{
		Email:        "ada@mailinator.com",
		SequenceType: SeqMissedAppointment,
	})
	assert.ErrorIs(t, err, ErrInputInvalid)

	// Rejected triggers create no state at all.
	_, err = trk.RecipientByEmail(ctx, "ada@mailinator.com")
	assert.ErrorIs(t, err, tracker.ErrRecipientNotFound)
}

func TestTriggerInternalFirstStepIsScheduled(t *testing.T) {
	ctx := context.Background()
	trk := tracker.NewMemoryTracker()
	rt := &mockRuntime{}
	o := newTestOrchestrator(trk, rt)

	result, err := o.Trigger(ctx, TriggerInput{
		Email:        "ada@example.com",
		SequenceType: SeqMissedAppointment,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ScheduledSteps)

	calls := rt.scheduled()
	require.Len(t, calls, 3)
	assert.Equal(t, 1, calls[0].StepIndex)

	status, err := trk.StepStatus(ctx, result.InstanceID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StepScheduled, status)
}
