package tracker

import (
	"context"
	"testing"
	"time"

	"nurtura/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTracker(t *testing.T) (*MemoryTracker, *models.SequenceInstance) {
	t.Helper()
	trk := NewMemoryTracker()
	anchor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	inst, created, err := trk.CreateIfAbsent(context.Background(), "ada@example.com", "nurture", "CRITICAL", anchor, 3)
	require.NoError(t, err)
	require.True(t, created)
	return trk, inst
}

func TestCreateIfAbsentDuplicate(t *testing.T) {
	ctx := context.Background()
	trk, inst := seedTracker(t)

	again, created, err := trk.CreateIfAbsent(ctx, "ada@example.com", "nurture", "URGENT", time.Now(), 3)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, inst.InstanceID, again.InstanceID)
	// The original segment wins; the duplicate's input is discarded.
	assert.Equal(t, "CRITICAL", again.Segment)

	// A different sequence type for the same recipient is a new pair.
	other, created, err := trk.CreateIfAbsent(ctx, "ada@example.com", "missed_appointment", "CRITICAL", time.Now(), 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, inst.InstanceID, other.InstanceID)
}

func TestCreateIfAbsentSeedsPendingSteps(t *testing.T) {
	_, inst := seedTracker(t)

	require.Len(t, inst.Steps, 3)
	for i, s := range inst.Steps {
		assert.Equal(t, i+1, s.StepIndex)
		assert.Equal(t, models.StepPending, s.Status)
	}
	assert.Equal(t, models.InstanceActive, inst.Status)
	require.NotNil(t, inst.ActiveKey)
	assert.Equal(t, "ada@example.com|nurture", *inst.ActiveKey)
}

func TestStepTransitionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	trk, inst := seedTracker(t)
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, trk.MarkScheduled(ctx, inst.InstanceID, 1, at))
	require.NoError(t, trk.MarkSent(ctx, inst.InstanceID, 1, "receipt-1", at))

	// Sent is terminal: re-marking is a successful no-op and the original
	// receipt survives.
	require.NoError(t, trk.MarkSent(ctx, inst.InstanceID, 1, "receipt-2", at.Add(time.Hour)))
	require.NoError(t, trk.MarkFailed(ctx, inst.InstanceID, 1, "late failure"))

	got, err := trk.Instance(ctx, inst.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, models.StepSent, got.Steps[0].Status)
	assert.Equal(t, "receipt-1", got.Steps[0].ReceiptID)
	assert.Empty(t, got.Steps[0].FailureReason)
}

func TestStepCannotRegressToPending(t *testing.T) {
	// scheduled -> pending is the one transition rejected outright.
	apply, err := stepTransition(models.StepScheduled, models.StepPending)
	assert.False(t, apply)
	assert.Error(t, err)

	apply, err = stepTransition(models.StepScheduled, models.StepSent)
	assert.True(t, apply)
	assert.NoError(t, err)

	apply, err = stepTransition(models.StepSent, models.StepSent)
	assert.False(t, apply)
	assert.NoError(t, err)
}

func TestCompletionReleasesActiveKey(t *testing.T) {
	ctx := context.Background()
	trk, inst := seedTracker(t)
	at := time.Now().UTC()

	require.NoError(t, trk.MarkSent(ctx, inst.InstanceID, 1, "r1", at))
	require.NoError(t, trk.MarkSent(ctx, inst.InstanceID, 2, "r2", at))
	require.NoError(t, trk.MarkFailed(ctx, inst.InstanceID, 3, "bounced"))

	got, err := trk.Instance(ctx, inst.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceCompleted, got.Status)
	assert.Nil(t, got.ActiveKey)

	// The pair is free again.
	_, created, err := trk.CreateIfAbsent(ctx, "ada@example.com", "nurture", "URGENT", time.Now(), 3)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestMarkConverted(t *testing.T) {
	ctx := context.Background()
	trk, inst := seedTracker(t)

	require.NoError(t, trk.MarkConverted(ctx, inst.InstanceID))

	got, err := trk.Instance(ctx, inst.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceConverted, got.Status)
	assert.Nil(t, got.ActiveKey)

	// Converting again is a no-op, not an error.
	require.NoError(t, trk.MarkConverted(ctx, inst.InstanceID))

	assert.ErrorIs(t, trk.MarkConverted(ctx, "missing"), ErrInstanceNotFound)
}

func TestConvertByRecipient(t *testing.T) {
	ctx := context.Background()
	trk, _ := seedTracker(t)
	_, created, err := trk.CreateIfAbsent(ctx, "ada@example.com", "undecided_followup", "URGENT", time.Now(), 3)
	require.NoError(t, err)
	require.True(t, created)

	converted, err := trk.ConvertByRecipient(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, converted)

	// Second pass finds nothing active.
	converted, err = trk.ConvertByRecipient(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Zero(t, converted)

	instances, err := trk.InstancesByRecipient(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	for _, inst := range instances {
		assert.Equal(t, models.InstanceConverted, inst.Status)
	}
}

func TestStepStatusAndLookupErrors(t *testing.T) {
	ctx := context.Background()
	trk, inst := seedTracker(t)

	status, err := trk.StepStatus(ctx, inst.InstanceID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StepPending, status)

	_, err = trk.StepStatus(ctx, inst.InstanceID, 99)
	assert.ErrorIs(t, err, ErrStepNotFound)

	_, err = trk.Instance(ctx, "missing")
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	_, err = trk.RecipientByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrRecipientNotFound)
}

func TestUpsertRecipient(t *testing.T) {
	ctx := context.Background()
	trk := NewMemoryTracker()

	require.NoError(t, trk.UpsertRecipient(ctx, &models.Recipient{Email: "ada@example.com", Name: "Ada", CriticalCount: 1}))
	require.NoError(t, trk.UpsertRecipient(ctx, &models.Recipient{Email: "ada@example.com", Name: "Ada Lovelace", CriticalCount: 2}))

	rec, err := trk.RecipientByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", rec.Name)
	assert.Equal(t, 2, rec.CriticalCount)
}

func TestUpsertRecipientPreservesSuppressionFlags(t *testing.T) {
	ctx := context.Background()
	trk := NewMemoryTracker()

	require.NoError(t, trk.UpsertRecipient(ctx, &models.Recipient{
		Email:          "ada@example.com",
		Name:           "Ada",
		IsUnsubscribed: true,
		IsBounced:      true,
	}))

	// A later trigger refreshes profile and counts only; suppression
	// flags are outside the upsert's column set.
	require.NoError(t, trk.UpsertRecipient(ctx, &models.Recipient{
		Email:         "ada@example.com",
		Name:          "Ada Lovelace",
		CriticalCount: 2,
	}))

	rec, err := trk.RecipientByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", rec.Name)
	assert.Equal(t, 2, rec.CriticalCount)
	assert.True(t, rec.IsUnsubscribed)
	assert.True(t, rec.IsBounced)
}
