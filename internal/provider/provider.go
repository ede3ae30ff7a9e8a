// Package provider contains the upstream generator adapters. Each adapter
// takes a normalized prompt and returns the raw bundle JSON plus token
// usage; everything downstream of the adapter (stabilization, rendering,
// gating) is provider-agnostic.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

// ErrorKind classifies adapter failures for the orchestrator's taxonomy.
type ErrorKind string

const (
	ErrKindTimeout  ErrorKind = "timeout"
	ErrKindUpstream ErrorKind = "upstream"
	ErrKindConfig   ErrorKind = "config"
)

// Error is the failure type every adapter returns. The orchestrator maps
// any adapter error onto PROVIDER_FAILED; Kind is kept for logs.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Usage records token consumption for one generation call.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Provider is the generator adapter capability. GenerateBundle performs
// exactly one upstream call and returns the raw (unvalidated) bundle JSON.
type Provider interface {
	Name() string
	GenerateBundle(ctx context.Context, prompt string) (json.RawMessage, Usage, error)
}

// BuildPrompt assembles the normalized prompt sent to every adapter: the
// declared bundle schema, the stability checklist, and the requirement
// fields. Deterministic for a given normalized request.
func BuildPrompt(req *schema.GenerateRequest, schemaVersion string) (string, error) {
	schemaJSON, err := json.Marshal(schema.PromptSchemaJSON())
	if err != nil {
		return "", fmt.Errorf("encode prompt schema: %w", err)
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode requirements: %w", err)
	}
	return fmt.Sprintf(
		"Return ONLY JSON matching this schema. No markdown.\n"+
			"Stability checklist:\n"+
			"- Return one JSON bundle object only.\n"+
			"- Include top-level keys: adr, onepager, eval_plan, ops_checklist.\n"+
			"- Include required fields for each doc section per schema.\n"+
			"- Do not include TODO/TBD/FIXME.\n"+
			"- Keep each doc section sufficiently detailed (target >= 600 chars per doc after rendering).\n"+
			"- Output JSON only, no markdown.\n"+
			"schema_version=%s\n"+
			"schema=%s\n"+
			"requirements=%s",
		schemaVersion, schemaJSON, reqJSON,
	), nil
}

// DecodeRawBundle checks that adapter output is a structurally decodable
// JSON object. This is the precondition the orchestrator verifies before
// handing the value to the stabilizer.
func DecodeRawBundle(raw json.RawMessage) (map[string]any, error) {
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("malformed bundle: %w", err)
	}
	if decoded == nil {
		return nil, fmt.Errorf("malformed bundle: null object")
	}
	return decoded, nil
}
