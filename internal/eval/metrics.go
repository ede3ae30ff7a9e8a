// Package eval is the offline quality harness: it drives the generation
// pipeline over fixture requests with the deterministic provider, measures
// each rendered set, and writes a JSON and markdown report pair. It never
// runs in the request path.
package eval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sungjin9288/DecisionDoc-AI/internal/quality"
	"github.com/sungjin9288/DecisionDoc-AI/internal/render"
	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

// Version identifies the measurement rules a report was produced under.
const Version = "v1"

// Coverage headings are a narrower probe than the gate's full contract;
// coverage measures how much of the essential structure survived.
var coverageHeadings = map[schema.DocType][]string{
	schema.DocTypeADR:          {"## Context", "## Decision", "## Options"},
	schema.DocTypeOnepager:     {"## Problem", "## Recommendation", "## Impact"},
	schema.DocTypeEvalPlan:     {"## Metrics", "## Test cases", "## Monitoring"},
	schema.DocTypeOpsChecklist: {"## Security", "## Reliability", "## Operations"},
}

const (
	minCoveragePerDoc = 0.8
	minTotalChars     = 2000
)

var bannedTokenRe = regexp.MustCompile(`\b(TODO|TBD|FIXME)\b`)

// Metrics is the measurement of one rendered document set.
type Metrics struct {
	ValidatorPass bool                       `json:"validator_pass"`
	LintPass      bool                       `json:"lint_pass"`
	LintErrors    []string                   `json:"lint_errors,omitempty"`
	Coverage      map[schema.DocType]float64 `json:"required_sections_coverage"`
	BannedTokens  int                        `json:"banned_token_violations"`
	LengthChars   map[string]int             `json:"length_chars"`
	Score         int                        `json:"score"`
	ScoreReasons  []string                   `json:"score_reasons,omitempty"`
	Pass          bool                       `json:"pass"`
	Errors        []string                   `json:"errors,omitempty"`
}

// Measure evaluates one rendered set.
func Measure(docs []render.Doc) Metrics {
	rendered := make(map[schema.DocType]string, len(docs))
	for _, doc := range docs {
		rendered[doc.DocType] = doc.Markdown
	}

	report := quality.Check(docs)
	m := Metrics{
		ValidatorPass: report.ValidationsPassed(),
		LintPass:      report.LintsPassed(),
		LintErrors:    report.LintViolations(),
		Coverage:      coverage(rendered),
		BannedTokens:  bannedTokenCount(rendered),
		LengthChars:   lengthStats(rendered),
	}
	m.Score, m.ScoreReasons = heuristicScore(rendered, m)

	if !m.ValidatorPass {
		m.Errors = append(m.Errors, "validator_failed")
	}
	if !m.LintPass {
		m.Errors = append(m.Errors, "lint_failed")
	}
	if m.BannedTokens > 0 {
		m.Errors = append(m.Errors, "banned_tokens_present")
	}
	for _, dt := range schema.AllDocTypes() {
		if m.Coverage[dt] < minCoveragePerDoc {
			m.Errors = append(m.Errors, fmt.Sprintf("coverage_lt_%.1f:%s", minCoveragePerDoc, dt))
		}
	}
	if m.LengthChars["total"] < minTotalChars {
		m.Errors = append(m.Errors, fmt.Sprintf("total_chars_lt_%d", minTotalChars))
	}
	m.Pass = len(m.Errors) == 0
	return m
}

func coverage(rendered map[schema.DocType]string) map[schema.DocType]float64 {
	out := make(map[schema.DocType]float64, len(coverageHeadings))
	for dt, headings := range coverageHeadings {
		text := rendered[dt]
		matched := 0
		for _, heading := range headings {
			if strings.Contains(text, heading) {
				matched++
			}
		}
		out[dt] = float64(matched) / float64(len(headings))
	}
	return out
}

func bannedTokenCount(rendered map[schema.DocType]string) int {
	total := 0
	for _, text := range rendered {
		total += len(bannedTokenRe.FindAllString(text, -1))
	}
	return total
}

func lengthStats(rendered map[schema.DocType]string) map[string]int {
	lengths := make(map[string]int, len(schema.AllDocTypes())+1)
	total := 0
	for _, dt := range schema.AllDocTypes() {
		n := len(rendered[dt])
		lengths[string(dt)] = n
		total += n
	}
	lengths["total"] = total
	return lengths
}

// heuristicScore condenses the measurements into a single 0 to 100 score.
// It starts at 100 and applies penalties; the reasons list records every
// adjustment so a score is explainable after the fact.
func heuristicScore(rendered map[schema.DocType]string, m Metrics) (int, []string) {
	score := 100.0
	var reasons []string

	if m.BannedTokens > 0 {
		penalty := 30.0 * float64(m.BannedTokens)
		if penalty > 60 {
			penalty = 60
		}
		score -= penalty
		reasons = append(reasons, fmt.Sprintf("banned_token_violations=%d", m.BannedTokens))
	}

	for _, dt := range schema.AllDocTypes() {
		ratio := m.Coverage[dt]
		if deficit := 1.0 - ratio; deficit > 0 {
			penalty := deficit * 40.0
			if penalty > 40 {
				penalty = 40
			}
			score -= penalty
			reasons = append(reasons, fmt.Sprintf("%s_coverage=%.2f", dt, ratio))
		}
	}

	total := m.LengthChars["total"]
	if total < 3000 {
		score -= 30
		reasons = append(reasons, "total_chars_below_3000")
	}
	for _, dt := range schema.AllDocTypes() {
		if m.LengthChars[string(dt)] < 600 {
			score -= 10
			reasons = append(reasons, fmt.Sprintf("%s_chars_below_600", dt))
		}
	}

	for _, dt := range schema.AllDocTypes() {
		if hasRepeatedLines(rendered[dt]) {
			score -= 10
			reasons = append(reasons, "repetition_detected:"+string(dt))
		}
	}

	fullCoverage := true
	for _, dt := range schema.AllDocTypes() {
		if m.Coverage[dt] < 0.95 {
			fullCoverage = false
			break
		}
	}
	if fullCoverage && total >= 8000 {
		score += 5
		reasons = append(reasons, "high_coverage_and_length_bonus")
	}

	bounded := int(score + 0.5)
	if score < 0 {
		bounded = 0
	}
	if bounded > 100 {
		bounded = 100
	}
	if bounded < 0 {
		bounded = 0
	}
	return bounded, reasons
}

// hasRepeatedLines reports whether any non-blank line occurs three or more
// times, a cheap proxy for degenerate provider output.
func hasRepeatedLines(text string) bool {
	counts := map[string]int{}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		counts[trimmed]++
		if counts[trimmed] >= 3 {
			return true
		}
	}
	return false
}
