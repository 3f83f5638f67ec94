package engine

import (
	"testing"

	"nurtura/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatedExposure(t *testing.T) {
	assert.Equal(t, 0, EstimatedExposure(DiagnosticCounts{Nominal: 10}))
	assert.Equal(t, 25000, EstimatedExposure(DiagnosticCounts{Critical: 1}))
	assert.Equal(t, 59000, EstimatedExposure(DiagnosticCounts{Critical: 2, Elevated: 1, Moderate: 0}))
	assert.Equal(t, 34500, EstimatedExposure(DiagnosticCounts{Critical: 1, Elevated: 1, Moderate: 1}))
}

func TestRecipientVars(t *testing.T) {
	vars := RecipientVars(&models.Recipient{
		Email:         "ada@example.com",
		Name:          "Ada Lovelace",
		Company:       "Analytical Engines",
		CriticalCount: 2,
		ElevatedCount: 1,
	})

	assert.Equal(t, "Ada Lovelace", vars["Name"])
	assert.Equal(t, "Ada", vars["FirstName"])
	assert.Equal(t, "Analytical Engines", vars["Company"])
	assert.Equal(t, "2", vars["CriticalCount"])
	assert.Equal(t, "$59,000", vars["EstimatedExposure"])
}

func TestRenderEmailSubstitutesVariables(t *testing.T) {
	tpl := EmailTemplate{
		Subject:  "{{.Company}}: {{.CriticalCount}} findings",
		Body:     "<p>Hi {{.FirstName}}, exposure is {{.EstimatedExposure}}.</p>",
		Required: []string{"CriticalCount", "EstimatedExposure"},
		Optional: map[string]string{"FirstName": "there", "Company": "your organization"},
	}

	subject, body, err := RenderEmail(tpl, map[string]string{
		"FirstName":         "Ada",
		"Company":           "Analytical Engines",
		"CriticalCount":     "2",
		"EstimatedExposure": "$59,000",
	})
	require.NoError(t, err)
	assert.Equal(t, "Analytical Engines: 2 findings", subject)
	assert.Contains(t, body, "Hi Ada")
	assert.Contains(t, body, "$59,000")
}

func TestRenderEmailMissingRequiredFails(t *testing.T) {
	tpl := EmailTemplate{
		Subject:  "{{.EstimatedExposure}} at stake",
		Body:     "<p>{{.EstimatedExposure}}</p>",
		Required: []string{"EstimatedExposure"},
	}

	_, _, err := RenderEmail(tpl, map[string]string{})
	assert.ErrorContains(t, err, "EstimatedExposure")

	// Present but empty counts as missing.
	_, _, err = RenderEmail(tpl, map[string]string{"EstimatedExposure": ""})
	assert.Error(t, err)
}

func TestRenderEmailOptionalDefaults(t *testing.T) {
	tpl := EmailTemplate{
		Subject:  "Hello {{.FirstName}}",
		Body:     "<p>Regards to {{.Company}}</p>",
		Optional: map[string]string{"FirstName": "there", "Company": "your organization"},
	}

	subject, body, err := RenderEmail(tpl, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", subject)
	assert.Contains(t, body, "your organization")
}

func TestRenderEmailUndeclaredPlaceholderFails(t *testing.T) {
	// A placeholder outside Required and Optional must fail rendering
	// instead of shipping literal template text.
	tpl := EmailTemplate{
		Subject: "{{.Unlisted}}",
		Body:    "<p>ok</p>",
	}

	_, _, err := RenderEmail(tpl, map[string]string{"Unlisted": "value"})
	assert.Error(t, err)
}
