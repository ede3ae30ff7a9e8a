// Package stabilize repairs raw generator output into a schema-complete
// bundle. It never fails: absent or type-mismatched fields are replaced
// with safe defaults so the rendering stage always receives something it
// can work with. A best-effort document beats no document.
package stabilize

import (
	"fmt"

	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

// Stabilize walks the declared v1 schema over a decoded bundle value. Every
// declared field that is missing or carries the wrong type is replaced with
// its zero value; undeclared fields are dropped. The returned patch list
// names each repaired field as "section.field" ("top_level:section" when a
// whole section was missing) and is intended for logging only.
//
// Stabilize is pure and idempotent: feeding its output back in yields the
// same bundle and an empty patch list.
func Stabilize(raw map[string]any) (*schema.Bundle, []string) {
	b := &schema.Bundle{SchemaVersion: schema.SchemaVersion}
	var patched []string

	for _, section := range schema.SchemaV1() {
		src, ok := raw[string(section.DocType)].(map[string]any)
		if !ok {
			patched = append(patched, fmt.Sprintf("top_level:%s", section.DocType))
			src = map[string]any{}
		}
		for _, field := range section.Fields {
			switch field.Kind {
			case schema.KindString:
				value, ok := src[field.Name].(string)
				if !ok {
					patched = append(patched, fmt.Sprintf("%s.%s", section.DocType, field.Name))
					value = ""
				}
				setString(b, section.DocType, field.Name, value)
			case schema.KindStringList:
				value, ok := asStringList(src[field.Name])
				if !ok {
					patched = append(patched, fmt.Sprintf("%s.%s", section.DocType, field.Name))
					value = nil
				}
				setStringList(b, section.DocType, field.Name, value)
			}
		}
	}
	return b, patched
}

// asStringList accepts either a []string or a JSON-decoded []any whose
// elements are all strings. Anything else is a type mismatch.
func asStringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// setString and setStringList are the exhaustive mapping from declared
// schema fields onto the typed bundle. A field declared in SchemaV1 but
// missing here panics in tests immediately, which is the point: the table
// and the struct cannot drift silently.

func setString(b *schema.Bundle, dt schema.DocType, name, value string) {
	switch {
	case dt == schema.DocTypeADR && name == "decision":
		b.ADR.Decision = value
	case dt == schema.DocTypeOnepager && name == "problem":
		b.Onepager.Problem = value
	case dt == schema.DocTypeOnepager && name == "recommendation":
		b.Onepager.Recommendation = value
	default:
		panic(fmt.Sprintf("undeclared string field %s.%s", dt, name))
	}
}

func setStringList(b *schema.Bundle, dt schema.DocType, name string, value []string) {
	if value == nil {
		value = []string{}
	}
	switch {
	case dt == schema.DocTypeADR && name == "options":
		b.ADR.Options = value
	case dt == schema.DocTypeADR && name == "risks":
		b.ADR.Risks = value
	case dt == schema.DocTypeADR && name == "assumptions":
		b.ADR.Assumptions = value
	case dt == schema.DocTypeADR && name == "checks":
		b.ADR.Checks = value
	case dt == schema.DocTypeADR && name == "next_actions":
		b.ADR.NextActions = value
	case dt == schema.DocTypeOnepager && name == "impact":
		b.Onepager.Impact = value
	case dt == schema.DocTypeOnepager && name == "checks":
		b.Onepager.Checks = value
	case dt == schema.DocTypeEvalPlan && name == "metrics":
		b.EvalPlan.Metrics = value
	case dt == schema.DocTypeEvalPlan && name == "test_cases":
		b.EvalPlan.TestCases = value
	case dt == schema.DocTypeEvalPlan && name == "failure_criteria":
		b.EvalPlan.FailureCriteria = value
	case dt == schema.DocTypeEvalPlan && name == "monitoring":
		b.EvalPlan.Monitoring = value
	case dt == schema.DocTypeOpsChecklist && name == "security":
		b.OpsChecklist.Security = value
	case dt == schema.DocTypeOpsChecklist && name == "reliability":
		b.OpsChecklist.Reliability = value
	case dt == schema.DocTypeOpsChecklist && name == "cost":
		b.OpsChecklist.Cost = value
	case dt == schema.DocTypeOpsChecklist && name == "operations":
		b.OpsChecklist.Operations = value
	default:
		panic(fmt.Sprintf("undeclared list field %s.%s", dt, name))
	}
}
