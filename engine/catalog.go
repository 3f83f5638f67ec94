package engine

// The sequence type catalog is static configuration: every sequence the
// engine can run is defined here, not in the database.

// Sequence type names accepted on inbound triggers.
const (
	SeqNurture           = "nurture"
	SeqMissedAppointment = "missed_appointment"
	SeqUndecidedFollowup = "undecided_followup"
	SeqOnboardingWelcome = "onboarding_welcome"
)

// StepDef defines one step of a sequence type. DelayHours is relative to the
// previous step (cumulative when computing fire times). SegmentVariant steps
// resolve to a per-segment template slot; universal steps use Slot as-is.
type StepDef struct {
	Index          int
	DelayHours     int
	Slot           string
	SegmentVariant bool
}

// SequenceType is a named, ordered, delayed message plan. When
// ExternalFirstStep is set, step 1 is delivered by the triggering caller
// (which must supply its send timestamp as the anchor) and is never
// scheduled here.
type SequenceType struct {
	Name              string
	ExternalFirstStep bool
	Steps             []StepDef
}

var catalog = map[string]SequenceType{
	// Primary nurture: the assessment platform emails the report itself
	// (step 1), then we take over.
	SeqNurture: {
		Name:              SeqNurture,
		ExternalFirstStep: true,
		Steps: []StepDef{
			{Index: 1, DelayHours: 0, Slot: "nurture_report"},
			{Index: 2, DelayHours: 24, Slot: "nurture_findings", SegmentVariant: true},
			{Index: 3, DelayHours: 48, Slot: "nurture_case_study"},
			{Index: 4, DelayHours: 24, Slot: "nurture_roi", SegmentVariant: true},
			{Index: 5, DelayHours: 48, Slot: "nurture_wrapup"},
		},
	},
	SeqMissedAppointment: {
		Name: SeqMissedAppointment,
		Steps: []StepDef{
			{Index: 1, DelayHours: 1, Slot: "missed_reschedule", SegmentVariant: true},
			{Index: 2, DelayHours: 24, Slot: "missed_value"},
			{Index: 3, DelayHours: 72, Slot: "missed_last_call"},
		},
	},
	SeqUndecidedFollowup: {
		Name: SeqUndecidedFollowup,
		Steps: []StepDef{
			{Index: 1, DelayHours: 24, Slot: "undecided_recap", SegmentVariant: true},
			{Index: 2, DelayHours: 72, Slot: "undecided_objections"},
			{Index: 3, DelayHours: 96, Slot: "undecided_close"},
		},
	},
	SeqOnboardingWelcome: {
		Name: SeqOnboardingWelcome,
		Steps: []StepDef{
			{Index: 1, DelayHours: 0, Slot: "welcome_kickoff"},
			{Index: 2, DelayHours: 24, Slot: "welcome_setup"},
			{Index: 3, DelayHours: 72, Slot: "welcome_checkin"},
		},
	},
}

// SequenceTypeByName looks up a sequence type definition.
func SequenceTypeByName(name string) (SequenceType, bool) {
	st, ok := catalog[name]
	return st, ok
}

// Step returns the definition for a 1-based step index.
func (st SequenceType) Step(index int) (StepDef, bool) {
	for _, s := range st.Steps {
		if s.Index == index {
			return s, true
		}
	}
	return StepDef{}, false
}
