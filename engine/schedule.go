package engine

import (
	"fmt"
	"time"
)

// TimingProfile selects the unit that step delays are interpreted in. It is
// passed explicitly at call time so computed schedules stay reproducible and
// testable without process-wide switches.
type TimingProfile string

const (
	// ProfileProduction interprets delays in hours, as defined.
	ProfileProduction TimingProfile = "production"
	// ProfileAccelerated substitutes minutes for hours, compressing a
	// multi-day sequence into a reviewable one.
	ProfileAccelerated TimingProfile = "accelerated"
)

// ParseTimingProfile validates a profile name from configuration.
func ParseTimingProfile(s string) (TimingProfile, error) {
	switch TimingProfile(s) {
	case ProfileProduction, ProfileAccelerated:
		return TimingProfile(s), nil
	}
	return "", fmt.Errorf("unknown timing profile %q", s)
}

func (p TimingProfile) unit() time.Duration {
	if p == ProfileAccelerated {
		return time.Minute
	}
	return time.Hour
}

// FireTimes computes the absolute fire time for every step of a sequence
// type from the anchor timestamp. Delays accumulate: step N fires at
// anchor + sum(delay[1..N]). A step defined as "wait 24h after the previous
// step" must never collapse into "wait 24h after the anchor".
//
// The returned slice is indexed by position in st.Steps, including any
// externally delivered first step (whose fire time equals the anchor).
func FireTimes(st SequenceType, anchor time.Time, profile TimingProfile) []time.Time {
	unit := profile.unit()
	times := make([]time.Time, len(st.Steps))
	elapsed := time.Duration(0)
	for i, step := range st.Steps {
		elapsed += time.Duration(step.DelayHours) * unit
		times[i] = anchor.Add(elapsed)
	}
	return times
}
