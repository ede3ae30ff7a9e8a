package schema

// Bundle is the structured generator output for one request. After
// stabilization every declared field is present with a type-correct value;
// the bundle is immutable from that point on.
type Bundle struct {
	SchemaVersion string              `json:"schema_version"`
	ADR           ADRSection          `json:"adr"`
	Onepager      OnepagerSection     `json:"onepager"`
	EvalPlan      EvalPlanSection     `json:"eval_plan"`
	OpsChecklist  OpsChecklistSection `json:"ops_checklist"`
	Provenance    Provenance          `json:"provenance"`
}

// ADRSection holds the architecture decision record content.
type ADRSection struct {
	Decision    string   `json:"decision"`
	Options     []string `json:"options"`
	Risks       []string `json:"risks"`
	Assumptions []string `json:"assumptions"`
	Checks      []string `json:"checks"`
	NextActions []string `json:"next_actions"`
}

// OnepagerSection holds the executive one-pager content.
type OnepagerSection struct {
	Problem        string   `json:"problem"`
	Recommendation string   `json:"recommendation"`
	Impact         []string `json:"impact"`
	Checks         []string `json:"checks"`
}

// EvalPlanSection holds the evaluation plan content.
type EvalPlanSection struct {
	Metrics         []string `json:"metrics"`
	TestCases       []string `json:"test_cases"`
	FailureCriteria []string `json:"failure_criteria"`
	Monitoring      []string `json:"monitoring"`
}

// OpsChecklistSection holds the operations checklist content.
type OpsChecklistSection struct {
	Security    []string `json:"security"`
	Reliability []string `json:"reliability"`
	Cost        []string `json:"cost"`
	Operations  []string `json:"operations"`
}

// Provenance records which provider produced the bundle and what it cost.
type Provenance struct {
	Provider     string `json:"provider"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	TotalTokens  int    `json:"total_tokens,omitempty"`
}

// SectionFields returns the named section as a field map keyed the way the
// schema declares it. The renderer uses this to build template contexts
// without reflection.
func (b *Bundle) SectionFields(dt DocType) map[string]any {
	switch dt {
	case DocTypeADR:
		return map[string]any{
			"decision":     b.ADR.Decision,
			"options":      b.ADR.Options,
			"risks":        b.ADR.Risks,
			"assumptions":  b.ADR.Assumptions,
			"checks":       b.ADR.Checks,
			"next_actions": b.ADR.NextActions,
		}
	case DocTypeOnepager:
		return map[string]any{
			"problem":        b.Onepager.Problem,
			"recommendation": b.Onepager.Recommendation,
			"impact":         b.Onepager.Impact,
			"checks":         b.Onepager.Checks,
		}
	case DocTypeEvalPlan:
		return map[string]any{
			"metrics":          b.EvalPlan.Metrics,
			"test_cases":       b.EvalPlan.TestCases,
			"failure_criteria": b.EvalPlan.FailureCriteria,
			"monitoring":       b.EvalPlan.Monitoring,
		}
	case DocTypeOpsChecklist:
		return map[string]any{
			"security":    b.OpsChecklist.Security,
			"reliability": b.OpsChecklist.Reliability,
			"cost":        b.OpsChecklist.Cost,
			"operations":  b.OpsChecklist.Operations,
		}
	}
	return nil
}
