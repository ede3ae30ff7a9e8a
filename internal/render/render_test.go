package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
	"github.com/sungjin9288/DecisionDoc-AI/internal/stabilize"
)

func testRequest() *schema.GenerateRequest {
	req := &schema.GenerateRequest{
		Title:    "Adopt queue-based ingestion",
		Goal:     "Decouple producers from the ingestion pipeline",
		Context:  "Spiky producer traffic overwhelms the synchronous path",
		DocTypes: schema.AllDocTypes(),
	}
	req.Normalize()
	return req
}

func testBundle(t *testing.T) *schema.Bundle {
	t.Helper()
	bundle, _ := stabilize.Stabilize(map[string]any{
		"adr": map[string]any{
			"decision":     "Adopt a durable queue between producers and ingestion.",
			"options":      []any{"Durable queue", "Synchronous retries"},
			"risks":        []any{"Queue backlog growth"},
			"assumptions":  []any{"Producers tolerate async acks"},
			"checks":       []any{"Backlog stays under one minute"},
			"next_actions": []any{"Provision the queue"},
		},
		"onepager": map[string]any{
			"problem":        "The synchronous path drops writes under load.",
			"recommendation": "Buffer writes through a durable queue.",
			"impact":         []any{"No dropped writes during spikes"},
			"constraints":    "Must keep per-write latency under one second.",
			"checks":         []any{"Load test at 3x peak"},
		},
		"eval_plan": map[string]any{
			"metrics":          []any{"p95 enqueue latency"},
			"test_cases":       []any{"Burst of 10k writes"},
			"failure_criteria": []any{"Any dropped write"},
			"monitoring":       []any{"Queue depth alarm"},
		},
		"ops_checklist": map[string]any{
			"security":    []any{"Queue access scoped to the ingestion role"},
			"reliability": []any{"Dead letter queue configured"},
			"cost":        []any{"Queue sized for peak plus headroom"},
			"operations":  []any{"Runbook for backlog drain"},
		},
	})
	return bundle
}

func TestRenderHeadings(t *testing.T) {
	r, err := NewRenderer(DefaultTemplateVersion)
	require.NoError(t, err)

	req := testRequest()
	bundle := testBundle(t)

	headings := map[schema.DocType][]string{
		schema.DocTypeADR: {
			"# ADR:", "## Goal", "## Context", "## Constraints", "## Decision",
			"## Options", "## Risks", "## Assumptions", "## Checks", "## Next actions",
		},
		schema.DocTypeOnepager: {
			"# Onepager:", "## Problem", "## Recommendation", "## Impact", "## Constraints", "## Checks",
		},
		schema.DocTypeEvalPlan: {
			"# Eval Plan:", "## Metrics", "## Test cases", "## Failure criteria", "## Monitoring",
		},
		schema.DocTypeOpsChecklist: {
			"# Ops Checklist:", "## Security", "## Reliability", "## Cost", "## Operations",
		},
	}

	for dt, want := range headings {
		markdown, err := r.Render(req, bundle, dt)
		require.NoError(t, err, "render %s", dt)
		for _, heading := range want {
			assert.Contains(t, markdown, heading, "%s should carry %q", dt, heading)
		}
		assert.True(t, strings.HasSuffix(markdown, "\n"), "%s should end with a newline", dt)
		assert.False(t, strings.HasSuffix(markdown, "\n\n"), "%s should not end with blank lines", dt)
	}
}

func TestRenderDeterministic(t *testing.T) {
	r, err := NewRenderer(DefaultTemplateVersion)
	require.NoError(t, err)

	req := testRequest()
	bundle := testBundle(t)

	first, err := r.RenderAll(req, bundle)
	require.NoError(t, err)
	second, err := r.RenderAll(req, bundle)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderEmptyBundlePlaceholders(t *testing.T) {
	r, err := NewRenderer(DefaultTemplateVersion)
	require.NoError(t, err)

	req := testRequest()
	bundle, _ := stabilize.Stabilize(map[string]any{})

	markdown, err := r.Render(req, bundle, schema.DocTypeADR)
	require.NoError(t, err)

	assert.Contains(t, markdown, "Not specified.")
	assert.Contains(t, markdown, "- Option A:")
	assert.Contains(t, markdown, "- Option B:")

	// The request narrative still flows into the document even when the
	// provider returned nothing usable.
	assert.Contains(t, markdown, req.Goal)
}

func TestRenderBundleOverridesRequestOnCollision(t *testing.T) {
	r, err := NewRenderer(DefaultTemplateVersion)
	require.NoError(t, err)

	req := testRequest()
	req.Assumptions = []string{"request-level assumption"}
	bundle := testBundle(t)

	markdown, err := r.Render(req, bundle, schema.DocTypeADR)
	require.NoError(t, err)
	assert.Contains(t, markdown, "Producers tolerate async acks")
	assert.NotContains(t, markdown, "request-level assumption")
}

func TestNewRendererUnknownVersion(t *testing.T) {
	_, err := NewRenderer("v999")
	require.Error(t, err)
}
