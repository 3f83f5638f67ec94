package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUniversalSlot(t *testing.T) {
	st, ok := SequenceTypeByName(SeqNurture)
	require.True(t, ok)

	// Step 3 is universal: every segment resolves to the same slot.
	for _, seg := range []Segment{SegmentCritical, SegmentUrgent, SegmentOptimize} {
		slot, tpl, err := DefaultTemplates.Resolve(st, 3, seg)
		require.NoError(t, err)
		assert.Equal(t, "nurture_case_study", slot)
		assert.NotEmpty(t, tpl.Subject)
	}
}

func TestResolveSegmentVariantSlot(t *testing.T) {
	st, ok := SequenceTypeByName(SeqNurture)
	require.True(t, ok)

	slot, _, err := DefaultTemplates.Resolve(st, 2, SegmentCritical)
	require.NoError(t, err)
	assert.Equal(t, "nurture_findings_critical", slot)

	slot, _, err = DefaultTemplates.Resolve(st, 2, SegmentUrgent)
	require.NoError(t, err)
	assert.Equal(t, "nurture_findings_urgent", slot)

	slot, _, err = DefaultTemplates.Resolve(st, 2, SegmentOptimize)
	require.NoError(t, err)
	assert.Equal(t, "nurture_findings_optimize", slot)
}

func TestResolveMissingVariantFailsClosed(t *testing.T) {
	st, ok := SequenceTypeByName(SeqNurture)
	require.True(t, ok)

	// A store with the urgent variant deleted must refuse to resolve the
	// slot rather than hand back different content.
	store := TemplateStore{}
	for slot, tpl := range DefaultTemplates {
		if slot != "nurture_findings_urgent" {
			store[slot] = tpl
		}
	}

	slot, _, err := store.Resolve(st, 2, SegmentUrgent)
	assert.Equal(t, "nurture_findings_urgent", slot)
	assert.ErrorIs(t, err, ErrTemplateMissing)

	// Sibling variants stay resolvable.
	_, _, err = store.Resolve(st, 2, SegmentCritical)
	assert.NoError(t, err)
}

func TestResolveUnknownStep(t *testing.T) {
	st, ok := SequenceTypeByName(SeqOnboardingWelcome)
	require.True(t, ok)

	_, _, err := DefaultTemplates.Resolve(st, 9, SegmentOptimize)
	assert.Error(t, err)
}

func TestCatalogVariantSlotsHaveAllSegments(t *testing.T) {
	// Every segment-variant slot in the catalog must have a template per
	// segment, except externally delivered steps which we never render.
	for _, st := range []string{SeqNurture, SeqMissedAppointment, SeqUndecidedFollowup, SeqOnboardingWelcome} {
		seq, ok := SequenceTypeByName(st)
		require.True(t, ok)
		for _, step := range seq.Steps {
			if step.Index == 1 && seq.ExternalFirstStep {
				continue
			}
			for _, seg := range []Segment{SegmentCritical, SegmentUrgent, SegmentOptimize} {
				_, _, err := DefaultTemplates.Resolve(seq, step.Index, seg)
				assert.NoError(t, err, "sequence %s step %d segment %s", st, step.Index, seg)
			}
		}
	}
}
