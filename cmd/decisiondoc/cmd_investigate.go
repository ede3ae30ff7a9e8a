package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sungjin9288/DecisionDoc-AI/internal/eventlog"
	"github.com/sungjin9288/DecisionDoc-AI/internal/ops"
)

var (
	invStage  string
	invWindow string
	invReason string
	invForce  bool
)

var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "Trigger an incident investigation from the command line",
	Long: `Investigate aggregates request events over the given window, persists
an incident report pair (JSON and markdown), and posts a statuspage
update when the integration is configured. Repeated triggers for the
same stage, window, and reason within the dedup TTL return the existing
incident without re-aggregating; --force bypasses the dedup check.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := eventlog.Open(cfg.Ops.DataDir)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer events.Close()

		inv, closeInv, err := buildInvestigator(events)
		if err != nil {
			return err
		}
		defer closeInv()

		report, err := inv.Investigate(cmd.Context(), ops.Params{
			Stage:  invStage,
			Window: invWindow,
			Reason: invReason,
			Force:  invForce,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	investigateCmd.Flags().StringVar(&invStage, "stage", "", "pipeline stage that failed (required)")
	investigateCmd.Flags().StringVar(&invWindow, "window", "30m", "lookback window as a Go duration")
	investigateCmd.Flags().StringVar(&invReason, "reason", "", "short failure description (required)")
	investigateCmd.Flags().BoolVar(&invForce, "force", false, "re-run even if an incident with the same key exists")
	_ = investigateCmd.MarkFlagRequired("stage")
	_ = investigateCmd.MarkFlagRequired("reason")
}
