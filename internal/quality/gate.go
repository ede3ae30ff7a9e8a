package quality

import (
	"github.com/sungjin9288/DecisionDoc-AI/internal/render"
)

// Report is the outcome of running the full gate over a document set.
// Every document is checked by every stage even after the first failure,
// so a caller sees the complete violation list in one pass.
type Report struct {
	Lints       []LintResult       `json:"lints"`
	Validations []ValidationResult `json:"validations"`
}

// LintsPassed reports whether every document cleared the lints.
func (r Report) LintsPassed() bool {
	for _, lint := range r.Lints {
		if !lint.Passed() {
			return false
		}
	}
	return true
}

// ValidationsPassed reports whether every document is structurally sound.
func (r Report) ValidationsPassed() bool {
	for _, v := range r.Validations {
		if !v.Passed() {
			return false
		}
	}
	return true
}

// Passed reports whether the whole set cleared the gate.
func (r Report) Passed() bool {
	return r.LintsPassed() && r.ValidationsPassed()
}

// LintViolations flattens every lint violation across documents.
func (r Report) LintViolations() []string {
	var out []string
	for _, lint := range r.Lints {
		out = append(out, lint.Violations...)
	}
	return out
}

// ValidationViolations flattens every structural violation, prefixed with
// the doc type so mixed-set reports stay readable.
func (r Report) ValidationViolations() []string {
	var out []string
	for _, v := range r.Validations {
		for _, violation := range v.Violations {
			out = append(out, string(v.DocType)+":"+violation)
		}
	}
	return out
}

// Check runs lints and the structural validator over every document.
func Check(docs []render.Doc) Report {
	report := Report{
		Lints:       make([]LintResult, 0, len(docs)),
		Validations: make([]ValidationResult, 0, len(docs)),
	}
	for _, doc := range docs {
		report.Lints = append(report.Lints, LintDocument(doc.DocType, doc.Markdown))
		report.Validations = append(report.Validations, ValidateDocument(doc.DocType, doc.Markdown))
	}
	return report
}
