package engine

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"nurtura/models"
	"nurtura/utils"
)

// Per-severity annualized exposure weights used for the derived currency
// estimate shown in segment-variant templates.
const (
	exposurePerCritical = 25000
	exposurePerElevated = 8000
	exposurePerModerate = 1500
)

// EstimatedExposure computes the rough annual exposure figure, in whole
// dollars, derived from a recipient's finding counts.
func EstimatedExposure(c DiagnosticCounts) int {
	return c.Critical*exposurePerCritical + c.Elevated*exposurePerElevated + c.Moderate*exposurePerModerate
}

// RecipientVars builds the variable set available to templates for one
// recipient, including derived fields.
func RecipientVars(r *models.Recipient) map[string]string {
	counts := DiagnosticCounts{
		Critical: r.CriticalCount,
		Elevated: r.ElevatedCount,
		Moderate: r.ModerateCount,
		Nominal:  r.NominalCount,
	}
	firstName := r.Name
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}
	return map[string]string{
		"Name":              r.Name,
		"FirstName":         firstName,
		"Company":           r.Company,
		"CriticalCount":     fmt.Sprintf("%d", r.CriticalCount),
		"ElevatedCount":     fmt.Sprintf("%d", r.ElevatedCount),
		"EstimatedExposure": utils.FormatCurrency(EstimatedExposure(counts)),
	}
}

// RenderEmail renders a template's subject and body against a variable set.
// Required variables must be present and non-empty; optional variables fall
// back to their stated default. Placeholders outside the template's declared
// schema fail rendering; literal {{...}} text never ships.
func RenderEmail(tpl EmailTemplate, vars map[string]string) (string, string, error) {
	data := make(map[string]string, len(vars))
	for _, name := range tpl.Required {
		v, ok := vars[name]
		if !ok || v == "" {
			return "", "", fmt.Errorf("required template variable %q is missing", name)
		}
		data[name] = v
	}
	for name, fallback := range tpl.Optional {
		if v, ok := vars[name]; ok && v != "" {
			data[name] = v
		} else {
			data[name] = fallback
		}
	}

	subject, err := renderOne("subject", tpl.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err := renderOne("body", tpl.Body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func renderOne(name, text string, data map[string]string) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("error parsing %s template: %w", name, err)
	}
	var out bytes.Buffer
	if err := t.Execute(&out, data); err != nil {
		return "", fmt.Errorf("error executing %s template: %w", name, err)
	}
	return out.String(), nil
}
