package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sungjin9288/DecisionDoc-AI/internal/eval"
)

var (
	evalCasesDir string
	evalOutDir   string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run the quality evaluation suite",
	Long: `Eval drives the generation pipeline over a set of fixture cases and
scores every produced document set: validator and lint results, section
coverage, banned tokens, length stats, and a heuristic score. The run
writes eval_report.json and eval_report.md under --out and exits
nonzero when any case fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, _, err := buildGenerationService(cmd.Context())
		if err != nil {
			return err
		}

		cases := eval.DefaultCases()
		if evalCasesDir != "" {
			cases, err = eval.LoadCases(evalCasesDir)
			if err != nil {
				return fmt.Errorf("load cases: %w", err)
			}
			if len(cases) == 0 {
				return fmt.Errorf("no case files found in %s", evalCasesDir)
			}
		}

		runner := eval.NewRunner(gen, cfg.Provider.Name, cfg.Render.TemplateVersion)
		report, err := runner.Run(cmd.Context(), cases)
		if err != nil {
			return err
		}
		if err := eval.WriteReports(report, evalOutDir); err != nil {
			return err
		}

		logger.Info("eval run complete",
			zap.Int("cases", report.Summary.Cases),
			zap.Int("pass", report.Summary.PassCount),
			zap.Int("fail", report.Summary.FailCount),
			zap.Int("avg_score", report.Summary.AvgScore),
			zap.String("out_dir", evalOutDir))

		if report.Summary.FailCount > 0 {
			return fmt.Errorf("%d of %d cases failed", report.Summary.FailCount, report.Summary.Cases)
		}
		return nil
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalCasesDir, "cases", "", "directory of *.json case files (built-in cases when empty)")
	evalCmd.Flags().StringVar(&evalOutDir, "out", "eval_out", "directory for the report pair")
}
