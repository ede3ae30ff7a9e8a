// Package schema declares the bundle schema, document types, and request
// shapes shared by the generation pipeline. The schema is declarative: the
// stabilizer and validators walk SchemaV1 instead of hard-coding field
// names, so adding a field to a section is a one-line change.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaVersion identifies the bundle schema generated against.
const SchemaVersion = "v1"

// DocType identifies one of the rendered document kinds.
type DocType string

const (
	DocTypeADR          DocType = "adr"
	DocTypeOnepager     DocType = "onepager"
	DocTypeEvalPlan     DocType = "eval_plan"
	DocTypeOpsChecklist DocType = "ops_checklist"
)

// AllDocTypes returns every document type in canonical render order.
func AllDocTypes() []DocType {
	return []DocType{DocTypeADR, DocTypeOnepager, DocTypeEvalPlan, DocTypeOpsChecklist}
}

// ParseDocType converts a string into a DocType.
func ParseDocType(s string) (DocType, error) {
	switch DocType(strings.TrimSpace(strings.ToLower(s))) {
	case DocTypeADR:
		return DocTypeADR, nil
	case DocTypeOnepager:
		return DocTypeOnepager, nil
	case DocTypeEvalPlan:
		return DocTypeEvalPlan, nil
	case DocTypeOpsChecklist:
		return DocTypeOpsChecklist, nil
	}
	return "", fmt.Errorf("unknown doc type %q", s)
}

// GenerateRequest is the validated request the routing layer hands to the
// generation orchestrator.
type GenerateRequest struct {
	Title       string    `json:"title" yaml:"title"`
	Goal        string    `json:"goal" yaml:"goal"`
	Context     string    `json:"context" yaml:"context"`
	Constraints string    `json:"constraints" yaml:"constraints"`
	Priority    string    `json:"priority" yaml:"priority"`
	DocTypes    []DocType `json:"doc_types" yaml:"doc_types"`
	Audience    string    `json:"audience" yaml:"audience"`
	Assumptions []string  `json:"assumptions" yaml:"assumptions"`
}

// DefaultPriority is the priority ordering applied when the caller leaves it
// blank.
const DefaultPriority = "maintainability > security > cost > performance > speed"

// Normalize fills defaults and canonicalizes whitespace so that two requests
// meaning the same thing fingerprint identically. Field order inside
// DocTypes is preserved for rendering; the fingerprinter sorts its own copy.
func (r *GenerateRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Goal = strings.TrimSpace(r.Goal)
	r.Context = strings.TrimSpace(r.Context)
	r.Constraints = strings.TrimSpace(r.Constraints)
	r.Priority = strings.TrimSpace(r.Priority)
	r.Audience = strings.TrimSpace(r.Audience)
	if r.Priority == "" {
		r.Priority = DefaultPriority
	}
	if r.Audience == "" {
		r.Audience = "mixed"
	}
	if len(r.DocTypes) == 0 {
		r.DocTypes = AllDocTypes()
	}
	trimmed := make([]string, 0, len(r.Assumptions))
	for _, a := range r.Assumptions {
		if s := strings.TrimSpace(a); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	r.Assumptions = trimmed
}

// Validate reports whether the normalized request is acceptable.
func (r *GenerateRequest) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if r.Goal == "" {
		return fmt.Errorf("goal is required")
	}
	if len(r.DocTypes) == 0 {
		return fmt.Errorf("at least one doc type is required")
	}
	seen := make(map[DocType]bool, len(r.DocTypes))
	for _, dt := range r.DocTypes {
		if _, err := ParseDocType(string(dt)); err != nil {
			return err
		}
		if seen[dt] {
			return fmt.Errorf("duplicate doc type %q", dt)
		}
		seen[dt] = true
	}
	return nil
}

// SortedDocTypes returns a sorted copy of the requested doc types. Used by
// the fingerprinter, which treats the list as order-insignificant.
func (r *GenerateRequest) SortedDocTypes() []DocType {
	out := make([]DocType, len(r.DocTypes))
	copy(out, r.DocTypes)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
