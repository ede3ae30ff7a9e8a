package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sungjin9288/DecisionDoc-AI/internal/generation"
	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

// Case is one fixture request. Doc types are forced to the full set so
// every case measures every template.
type Case struct {
	ID      string                  `json:"id"`
	Request *schema.GenerateRequest `json:"request"`
}

// Result is one measured case.
type Result struct {
	CaseID  string  `json:"case_id"`
	Metrics Metrics `json:"metrics"`
}

// Summary aggregates a run.
type Summary struct {
	Cases         int `json:"cases"`
	PassCount     int `json:"pass_count"`
	FailCount     int `json:"fail_count"`
	AvgTotalChars int `json:"avg_total_chars"`
	AvgScore      int `json:"avg_score"`
}

// Report is the full run output.
type Report struct {
	EvalVersion     string    `json:"eval_version"`
	TemplateVersion string    `json:"template_version"`
	Provider        string    `json:"provider"`
	GeneratedAt     time.Time `json:"generated_at"`
	Summary         Summary   `json:"summary"`
	Results         []Result  `json:"results"`
}

// Runner drives the generation pipeline over fixture cases.
type Runner struct {
	gen             *generation.Service
	providerName    string
	templateVersion string
	now             func() time.Time
}

// NewRunner creates a runner over a generation service. The service should
// be wired with the deterministic provider so runs are reproducible.
func NewRunner(gen *generation.Service, providerName, templateVersion string) *Runner {
	return &Runner{
		gen:             gen,
		providerName:    providerName,
		templateVersion: templateVersion,
		now:             time.Now,
	}
}

// LoadCases reads fixture requests from dir. Each *.json file holds one
// generate request; the file stem is the case id.
func LoadCases(dir string) ([]Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixtures dir: %w", err)
	}
	var cases []Case
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", entry.Name(), err)
		}
		var req schema.GenerateRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("parse fixture %s: %w", entry.Name(), err)
		}
		cases = append(cases, Case{
			ID:      strings.TrimSuffix(entry.Name(), ".json"),
			Request: &req,
		})
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	return cases, nil
}

// DefaultCases returns the built-in fixture set used when no fixtures
// directory is supplied.
func DefaultCases() []Case {
	return []Case{
		{
			ID: "queue-ingestion",
			Request: &schema.GenerateRequest{
				Title:       "Adopt queue-based ingestion",
				Goal:        "Decouple producers from the ingestion pipeline",
				Context:     "Spiky producer traffic overwhelms the synchronous write path",
				Constraints: "Keep per-write latency under one second",
			},
		},
		{
			ID: "cache-layer",
			Request: &schema.GenerateRequest{
				Title:   "Introduce a read-through cache",
				Goal:    "Cut read latency for the hot catalog endpoints",
				Context: "Catalog reads dominate database load during sales events",
			},
		},
		{
			ID: "minimal-request",
			Request: &schema.GenerateRequest{
				Title: "Split the billing worker",
				Goal:  "Isolate billing retries from the main worker pool",
			},
		},
	}
}

// Run executes every case and assembles the report.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	results := make([]Result, 0, len(cases))
	totalChars, totalScore, passCount := 0, 0, 0

	for _, c := range cases {
		req := *c.Request
		req.DocTypes = schema.AllDocTypes()
		req.Normalize()
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("case %s: %w", c.ID, err)
		}

		generated, err := r.gen.Generate(ctx, &req)
		if err != nil {
			// A pipeline failure is itself a finding, not a run abort.
			results = append(results, Result{
				CaseID: c.ID,
				Metrics: Metrics{
					Pass:   false,
					Errors: []string{"generation_failed"},
				},
			})
			continue
		}

		metrics := Measure(generated.Docs)
		results = append(results, Result{CaseID: c.ID, Metrics: metrics})
		totalChars += metrics.LengthChars["total"]
		totalScore += metrics.Score
		if metrics.Pass {
			passCount++
		}
	}

	summary := Summary{
		Cases:     len(results),
		PassCount: passCount,
		FailCount: len(results) - passCount,
	}
	if len(results) > 0 {
		summary.AvgTotalChars = totalChars / len(results)
		summary.AvgScore = totalScore / len(results)
	}

	return &Report{
		EvalVersion:     Version,
		TemplateVersion: r.templateVersion,
		Provider:        r.providerName,
		GeneratedAt:     r.now().UTC(),
		Summary:         summary,
		Results:         results,
	}, nil
}

// WriteReports writes the JSON and markdown report pair under outDir.
func WriteReports(report *Report, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "eval_report.json"), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "eval_report.md"), []byte(RenderMarkdown(report)), 0o644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}

// RenderMarkdown produces the human-readable report.
func RenderMarkdown(report *Report) string {
	var b strings.Builder
	b.WriteString("# Eval Report\n\n")
	fmt.Fprintf(&b, "- eval_version: `%s`\n", report.EvalVersion)
	fmt.Fprintf(&b, "- template_version: `%s`\n", report.TemplateVersion)
	fmt.Fprintf(&b, "- provider: `%s`\n", report.Provider)
	fmt.Fprintf(&b, "- generated_at: `%s`\n", report.GeneratedAt.Format(time.RFC3339))

	b.WriteString("\n## Summary\n\n")
	b.WriteString("| cases | pass_count | fail_count | avg_total_chars | avg_score |\n")
	b.WriteString("| ---: | ---: | ---: | ---: | ---: |\n")
	s := report.Summary
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n",
		s.Cases, s.PassCount, s.FailCount, s.AvgTotalChars, s.AvgScore)

	b.WriteString("\n## Failures\n\n")
	failed := false
	for _, result := range report.Results {
		if result.Metrics.Pass {
			continue
		}
		failed = true
		fmt.Fprintf(&b, "- `%s`: %s\n", result.CaseID, strings.Join(result.Metrics.Errors, ", "))
	}
	if !failed {
		b.WriteString("- None\n")
	}
	return b.String()
}
