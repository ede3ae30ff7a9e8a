package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungjin9288/DecisionDoc-AI/internal/render"
	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
	"github.com/sungjin9288/DecisionDoc-AI/internal/stabilize"
)

func cleanADR() string {
	return strings.Join([]string{
		"# ADR: Adopt queue-based ingestion",
		"",
		"## Goal",
		"",
		"Decouple producers from the ingestion pipeline.",
		"",
		"## Context",
		"",
		"Spiky traffic overwhelms the synchronous path.",
		"",
		"## Constraints",
		"",
		"Keep per-write latency under one second.",
		"",
		"## Decision",
		"",
		"Adopt a durable queue between producers and ingestion.",
		"",
		"## Options",
		"",
		"- Durable queue",
		"- Synchronous retries",
		"",
		"## Risks",
		"",
		"- Queue backlog growth",
		"",
		"## Assumptions",
		"",
		"- Producers tolerate async acks",
		"",
		"## Checks",
		"",
		"- Backlog stays under one minute",
		"",
		"## Next actions",
		"",
		"- Provision the queue",
		"",
	}, "\n")
}

func TestLintCleanDocumentPasses(t *testing.T) {
	result := LintDocument(schema.DocTypeADR, cleanADR())
	assert.True(t, result.Passed(), "violations: %v", result.Violations)
}

func TestLintBannedTokens(t *testing.T) {
	doc := strings.Replace(cleanADR(), "Provision the queue", "TODO pick a queue", 1)
	result := LintDocument(schema.DocTypeADR, doc)
	assert.Contains(t, result.Violations, "adr:banned_token:TODO")
}

func TestLintBannedTokensWordBounded(t *testing.T) {
	// "method" contains no standalone banned token and must not trip the
	// lint, nor should lowercase prose mentioning "todo lists".
	doc := strings.Replace(cleanADR(), "Provision the queue", "Document the method and todo lists", 1)
	result := LintDocument(schema.DocTypeADR, doc)
	assert.True(t, result.Passed(), "violations: %v", result.Violations)
}

func TestLintMissingHeading(t *testing.T) {
	doc := strings.Replace(cleanADR(), "## Risks", "## Hazards", 1)
	result := LintDocument(schema.DocTypeADR, doc)
	assert.Contains(t, result.Violations, "adr:missing:## Risks")
}

func TestLintEmptyCriticalSection(t *testing.T) {
	doc := strings.Replace(cleanADR(),
		"## Decision\n\nAdopt a durable queue between producers and ingestion.\n",
		"## Decision\n\n", 1)
	result := LintDocument(schema.DocTypeADR, doc)
	assert.Contains(t, result.Violations, "adr:empty_section:## Decision")
}

func TestLintReportsAllViolations(t *testing.T) {
	doc := strings.Replace(cleanADR(), "## Risks", "## Hazards", 1)
	doc = strings.Replace(doc, "Provision the queue", "TBD", 1)
	result := LintDocument(schema.DocTypeADR, doc)
	assert.Len(t, result.Violations, 2)
}

func TestValidateCleanADRPasses(t *testing.T) {
	result := ValidateDocument(schema.DocTypeADR, cleanADR())
	assert.True(t, result.Passed(), "violations: %v", result.Violations)
}

func TestValidateADRRequiresTwoOptions(t *testing.T) {
	doc := strings.Replace(cleanADR(), "- Synchronous retries\n", "", 1)
	result := ValidateDocument(schema.DocTypeADR, doc)
	assert.Contains(t, result.Violations, "adr_options_lt_2")
}

func TestValidateMissingHeading(t *testing.T) {
	doc := strings.Replace(cleanADR(), "## Checks", "## Verification", 1)
	result := ValidateDocument(schema.DocTypeADR, doc)
	assert.Contains(t, result.Violations, "missing_heading:## Checks")
}

func TestGateAllOrNothing(t *testing.T) {
	docs := []render.Doc{
		{DocType: schema.DocTypeADR, Markdown: cleanADR()},
		{DocType: schema.DocTypeOnepager, Markdown: "# Onepager: broken"},
	}
	report := Check(docs)
	assert.False(t, report.Passed())
	assert.True(t, report.Lints[0].Passed(), "clean doc should still be reported clean")
	assert.False(t, report.Lints[1].Passed())
	assert.NotEmpty(t, report.ValidationViolations())
}

func TestGatePassesRenderedEmptyBundle(t *testing.T) {
	// A provider response with every optional field missing must still
	// clear the gate after stabilization and placeholder rendering.
	r, err := render.NewRenderer(render.DefaultTemplateVersion)
	require.NoError(t, err)

	req := &schema.GenerateRequest{
		Title:    "Adopt queue-based ingestion",
		Goal:     "Decouple producers from ingestion",
		DocTypes: schema.AllDocTypes(),
	}
	req.Normalize()

	bundle, _ := stabilize.Stabilize(map[string]any{})
	docs, err := r.RenderAll(req, bundle)
	require.NoError(t, err)

	report := Check(docs)
	assert.True(t, report.Passed(), "lints: %v validations: %v",
		report.LintViolations(), report.ValidationViolations())
}
