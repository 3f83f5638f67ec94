package engine

import "fmt"

// EmailTemplate is one renderable email. Required lists the placeholder
// names that must be present and non-empty at render time; Optional maps
// placeholder names to the default substituted when the value is missing.
// Any placeholder outside both sets fails rendering instead of shipping
// literal {{...}} text.
type EmailTemplate struct {
	Subject  string
	Body     string
	Required []string
	Optional map[string]string
}

// TemplateStore maps template slots to templates.
type TemplateStore map[string]EmailTemplate

// Resolve returns the slot and template for a step. Universal steps resolve
// to the step's slot regardless of segment; segment-variant steps resolve to
// "<slot>_<segment>". A missing segment variant fails closed with
// ErrTemplateMissing: the executor must treat that as retryable, never
// substitute different content.
func (s TemplateStore) Resolve(st SequenceType, stepIndex int, seg Segment) (string, EmailTemplate, error) {
	step, ok := st.Step(stepIndex)
	if !ok {
		return "", EmailTemplate{}, fmt.Errorf("sequence %s has no step %d", st.Name, stepIndex)
	}
	slot := step.Slot
	if step.SegmentVariant {
		slot = slot + "_" + seg.slug()
	}
	tpl, ok := s[slot]
	if !ok {
		return slot, EmailTemplate{}, fmt.Errorf("slot %s: %w", slot, ErrTemplateMissing)
	}
	return slot, tpl, nil
}

const bodyWrap = `<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">`

var nameCompany = map[string]string{"FirstName": "there", "Company": "your organization"}

// DefaultTemplates holds the production template set. Slots follow
// "<sequence>_<step>" naming with a segment suffix for variant slots.
var DefaultTemplates = TemplateStore{
	// nurture step 2: findings recap, segment variants
	"nurture_findings_critical": {
		Subject:  "{{.Company}}: {{.CriticalCount}} critical findings need attention now",
		Required: []string{"CriticalCount", "EstimatedExposure"},
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>Your assessment surfaced <strong>{{.CriticalCount}} critical findings</strong>. Left open, issues in this bracket typically represent around <strong>{{.EstimatedExposure}}</strong> of annual exposure for {{.Company}}.</p>
<p>We held a remediation slot for you — grab 20 minutes this week and we'll walk the top three together.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"nurture_findings_urgent": {
		Subject:  "Your assessment results: a few items worth moving on",
		Required: []string{"EstimatedExposure"},
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>Most of {{.Company}}'s results look manageable, but the elevated findings are the kind that get expensive when ignored — roughly <strong>{{.EstimatedExposure}}</strong> a year in our experience.</p>
<p>A short call is usually enough to sort them into "fix now" and "fix next quarter".</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"nurture_findings_optimize": {
		Subject:  "Your assessment results look solid — here's what's next",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>Good news: {{.Company}} came out of the assessment in better shape than most. The remaining findings are optimization work, not fire-fighting.</p>
<p>When you're ready, we can map them onto a quarterly plan.</p>
<p>— The Nurtura team</p>
</body>`,
	},

	// nurture step 3, universal
	"nurture_case_study": {
		Subject:  "How a team like yours closed their findings in 6 weeks",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>A client with a report very similar to yours cleared every critical finding in six weeks without adding headcount. We wrote up how they sequenced the work.</p>
<p>Worth ten minutes if {{.Company}} is planning its next quarter.</p>
<p>— The Nurtura team</p>
</body>`,
	},

	// nurture step 4: ROI framing, segment variants
	"nurture_roi_critical": {
		Subject:  "The cost of waiting: {{.EstimatedExposure}} and counting",
		Required: []string{"EstimatedExposure"},
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>Every month those critical findings stay open, the expected cost to {{.Company}} compounds. Our model puts the current figure near <strong>{{.EstimatedExposure}}</strong>.</p>
<p>Remediation is almost always cheaper than the incident. Shall we price it out?</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"nurture_roi_urgent": {
		Subject:  "A quick ROI sketch for your open findings",
		Required: []string{"EstimatedExposure"},
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>We sketched the numbers for findings like {{.Company}}'s: roughly <strong>{{.EstimatedExposure}}</strong> of avoidable annual cost against a remediation effort measured in weeks.</p>
<p>Happy to share the worksheet — reply and it's yours.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"nurture_roi_optimize": {
		Subject:  "Small fixes, measurable returns",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>With no critical findings on the board, {{.Company}} is in a position most teams envy. The optimization items still carry real returns — usually paying for themselves inside a quarter.</p>
<p>Want the prioritized list?</p>
<p>— The Nurtura team</p>
</body>`,
	},

	// nurture step 5, universal
	"nurture_wrapup": {
		Subject:  "Closing the loop on your assessment",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>This is the last note in the series. Your report stays available, and so do we — whenever {{.Company}} wants to pick the work back up, just reply to this email.</p>
<p>— The Nurtura team</p>
</body>`,
	},

	// missed appointment recovery
	"missed_reschedule_critical": {
		Subject:  "We missed you — and your critical findings can't wait",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>Sorry we missed each other today. Given the critical findings in {{.Company}}'s report, we'd rather not let this slip a week — here's a link to grab any slot that works.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"missed_reschedule_urgent": {
		Subject:  "Missed you today — let's find a better time",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>No trouble at all that today didn't work. Your elevated findings are worth a conversation soon, though — pick any slot from the calendar link and we'll make it quick.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"missed_reschedule_optimize": {
		Subject:  "Missed you today — whenever suits you",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>We missed you today — nothing urgent on {{.Company}}'s report, so reschedule whenever it suits. The calendar link below has our open slots.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"missed_value": {
		Subject:  "What the 20-minute walkthrough covers",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>In case it helps to know what you'd get: the walkthrough covers your top findings, what peers in your bracket did about theirs, and a realistic effort estimate. No slides, no pitch deck.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"missed_last_call": {
		Subject:  "Last note from us about your walkthrough",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>We'll stop nudging after this one. If a walkthrough is ever useful, the booking link keeps working — and your report isn't going anywhere.</p>
<p>— The Nurtura team</p>
</body>`,
	},

	// undecided follow-up
	"undecided_recap_critical": {
		Subject:  "Recapping the call: the critical items, in writing",
		Required: []string{"EstimatedExposure"},
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>Thanks for the conversation. As promised, the short version in writing: the critical findings carry an estimated <strong>{{.EstimatedExposure}}</strong> of exposure, and the remediation plan we sketched fits inside a quarter.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"undecided_recap_urgent": {
		Subject:  "Following up on our call",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>Thanks again for your time. The plan we discussed for {{.Company}}'s elevated findings is written up and attached to your report — no surprises, same numbers we talked through.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"undecided_recap_optimize": {
		Subject:  "Notes from our call",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>Good talking with you. Since nothing on {{.Company}}'s report is burning, the write-up focuses on sequencing the optimization work for best return. It's in your report portal.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"undecided_objections": {
		Subject:  "The three questions everyone asks before deciding",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>Most teams weighing this decision ask the same three things: how much internal time it takes, what happens if findings resurface, and whether the work can pause mid-quarter. We answered all three here, honestly.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"undecided_close": {
		Subject:  "Where would you like to leave it?",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>We'd rather have a clear "not now" than keep emailing. If the timing is wrong, reply with a month and we'll check back then — otherwise this is our last follow-up.</p>
<p>— The Nurtura team</p>
</body>`,
	},

	// onboarding welcome
	"welcome_kickoff": {
		Subject:  "Welcome aboard — here's how we start",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>Welcome! Over the next few days we'll get {{.Company}} set up: account access today, a kickoff call this week, and your remediation board by the end of it.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"welcome_setup": {
		Subject:  "Your workspace is ready",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>Your workspace is live and your findings are imported. Log in, invite your team, and flag anything that looks off — we triage setup questions same-day.</p>
<p>— The Nurtura team</p>
</body>`,
	},
	"welcome_checkin": {
		Subject:  "One-week check-in",
		Required: nil,
		Optional: nameCompany,
		Body: bodyWrap + `
<p>Hi {{.FirstName}},</p>
<p>A week in — how is it going? If anything in the workspace is unclear, reply here and a human answers. Otherwise, see you at the first progress review.</p>
<p>— The Nurtura team</p>
</body>`,
	},
}
