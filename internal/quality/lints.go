// Package quality holds the deterministic checks a rendered document set
// must clear before a response is returned or persisted. The gate is all
// or nothing: if any document trips any check the whole set is rejected.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

// bannedTokens are placeholder markers a finished document must not carry.
var bannedTokens = []string{"TODO", "TBD", "FIXME"}

// bannedTokenPatterns match each token on word boundaries so substrings
// such as "method" never trip the "TOD" prefix.
var bannedTokenPatterns = func() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(bannedTokens))
	for _, token := range bannedTokens {
		patterns[token] = regexp.MustCompile(`\b` + regexp.QuoteMeta(token) + `\b`)
	}
	return patterns
}()

// requiredHeadings is the heading contract for each doc type. Both the
// lints and the structural validator key off this table so the two stages
// cannot drift apart.
var requiredHeadings = map[schema.DocType][]string{
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

// criticalSections must carry content, not just the heading line.
var criticalSections = map[schema.DocType][]string{
	schema.DocTypeADR:      {"## Goal", "## Decision", "## Options", "## Checks"},
	schema.DocTypeOnepager: {"## Problem", "## Recommendation", "## Checks"},
	schema.DocTypeEvalPlan: {"## Metrics", "## Test cases"},
}

// LintResult lists every lint violation found in one document. Violations
// are stable strings of the form "<doc_type>:<rule>:<detail>".
type LintResult struct {
	DocType    schema.DocType `json:"doc_type"`
	Violations []string       `json:"violations"`
}

// Passed reports whether the document cleared every lint.
func (r LintResult) Passed() bool {
	return len(r.Violations) == 0
}

// LintDocument runs every lint against one rendered document and reports
// all violations rather than stopping at the first.
func LintDocument(dt schema.DocType, markdown string) LintResult {
	result := LintResult{DocType: dt, Violations: []string{}}

	for _, token := range bannedTokens {
		if bannedTokenPatterns[token].MatchString(markdown) {
			result.Violations = append(result.Violations, fmt.Sprintf("%s:banned_token:%s", dt, token))
		}
	}

	for _, heading := range requiredHeadings[dt] {
		if !strings.Contains(markdown, heading) {
			result.Violations = append(result.Violations, fmt.Sprintf("%s:missing:%s", dt, heading))
		}
	}

	for _, heading := range criticalSections[dt] {
		body, ok := sectionBody(markdown, heading)
		if ok && strings.TrimSpace(body) == "" {
			result.Violations = append(result.Violations, fmt.Sprintf("%s:empty_section:%s", dt, heading))
		}
	}

	return result
}

// sectionBody extracts the text between a heading line and the next
// heading of the same or higher level. The second return is false when the
// heading is absent, which the missing-heading lint already reports.
func sectionBody(markdown, heading string) (string, bool) {
	lines := strings.Split(markdown, "\n")
	level := headingLevel(heading)
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), heading) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return "", false
	}
	var body []string
	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		if l := headingLevel(trimmed); l > 0 && l <= level {
			break
		}
		body = append(body, line)
	}
	return strings.Join(body, "\n"), true
}

func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n >= len(line) || line[n] != ' ' {
		return 0
	}
	return n
}
