package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimingProfile(t *testing.T) {
	p, err := ParseTimingProfile("production")
	require.NoError(t, err)
	assert.Equal(t, ProfileProduction, p)

	p, err = ParseTimingProfile("accelerated")
	require.NoError(t, err)
	assert.Equal(t, ProfileAccelerated, p)

	_, err = ParseTimingProfile("fast")
	assert.Error(t, err)
}

func TestFireTimesAccumulate(t *testing.T) {
	anchor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	st, ok := SequenceTypeByName(SeqNurture)
	require.True(t, ok)

	times := FireTimes(st, anchor, ProfileProduction)
	require.Len(t, times, 5)

	// Delays are relative to the previous step, so fire times are the
	// running sum of 0, 24, 48, 24, 48 hours.
	assert.Equal(t, anchor, times[0])
	assert.Equal(t, anchor.Add(24*time.Hour), times[1])
	assert.Equal(t, anchor.Add(72*time.Hour), times[2])
	assert.Equal(t, anchor.Add(96*time.Hour), times[3])
	assert.Equal(t, anchor.Add(144*time.Hour), times[4])
}

func TestFireTimesAcceleratedProfile(t *testing.T) {
	anchor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	st, ok := SequenceTypeByName(SeqNurture)
	require.True(t, ok)

	times := FireTimes(st, anchor, ProfileAccelerated)
	require.Len(t, times, 5)

	// Same shape, minutes substituted for hours.
	assert.Equal(t, anchor, times[0])
	assert.Equal(t, anchor.Add(24*time.Minute), times[1])
	assert.Equal(t, anchor.Add(72*time.Minute), times[2])
	assert.Equal(t, anchor.Add(96*time.Minute), times[3])
	assert.Equal(t, anchor.Add(144*time.Minute), times[4])
}

func TestFireTimesMissedAppointment(t *testing.T) {
	anchor := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	st, ok := SequenceTypeByName(SeqMissedAppointment)
	require.True(t, ok)

	times := FireTimes(st, anchor, ProfileProduction)
	require.Len(t, times, 3)
	assert.Equal(t, anchor.Add(1*time.Hour), times[0])
	assert.Equal(t, anchor.Add(25*time.Hour), times[1])
	assert.Equal(t, anchor.Add(97*time.Hour), times[2])
}
