package quality

import (
	"fmt"
	"strings"

	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

// ValidationResult lists structural problems in one document.
type ValidationResult struct {
	DocType    schema.DocType `json:"doc_type"`
	Violations []string       `json:"violations"`
}

// Passed reports whether the document is structurally sound.
func (r ValidationResult) Passed() bool {
	return len(r.Violations) == 0
}

// ValidateDocument checks the structural contract of a rendered document:
// every heading for its doc type is present, and an ADR enumerates at least
// two options as markdown bullets. The checks overlap the lints on purpose;
// the validator guards structure even if lint configuration is loosened.
func ValidateDocument(dt schema.DocType, markdown string) ValidationResult {
	result := ValidationResult{DocType: dt, Violations: []string{}}

	for _, heading := range requiredHeadings[dt] {
		if !strings.Contains(markdown, heading) {
			result.Violations = append(result.Violations, fmt.Sprintf("missing_heading:%s", heading))
		}
	}

	if dt == schema.DocTypeADR {
		if body, ok := sectionBody(markdown, "## Options"); ok && countBullets(body) < 2 {
			result.Violations = append(result.Violations, "adr_options_lt_2")
		}
	}

	return result
}

func countBullets(body string) int {
	n := 0
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "- ") {
			n++
		}
	}
	return n
}
