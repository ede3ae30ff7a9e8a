package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sungjin9288/DecisionDoc-AI/internal/eventlog"
	"github.com/sungjin9288/DecisionDoc-AI/internal/maintenance"
	"github.com/sungjin9288/DecisionDoc-AI/internal/ops"
	"github.com/sungjin9288/DecisionDoc-AI/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gen, _, err := buildGenerationService(ctx)
		if err != nil {
			return err
		}

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

		maint, err := maintenance.NewWatcher(cfg.Server.MaintenanceMarker, logger)
		if err != nil {
			return fmt.Errorf("watch maintenance marker: %w", err)
		}
		if err := maint.Start(ctx); err != nil {
			return fmt.Errorf("watch maintenance marker: %w", err)
		}
		defer maint.Stop()

		srv := server.New(cfg, logger, gen, inv, maint, events)
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Addr),
			zap.String("env", cfg.Env),
			zap.String("provider", cfg.Provider.Name),
			zap.Bool("cache_enabled", cfg.Cache.Enabled))
		return srv.Start(ctx)
	},
}

// buildInvestigator wires the incident pipeline. The returned close func
// releases the dedup store's database handle.
func buildInvestigator(events ops.WindowAggregator) (*ops.Investigator, func(), error) {
	store, err := storageFromConfig()
	if err != nil {
		return nil, nil, err
	}
	kv, err := ops.OpenSQLiteKV(cfg.Ops.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open dedup store: %w", err)
	}
	sp := ops.NewStatuspageClient(ops.StatuspageConfig{
		BaseURL: cfg.Statuspage.BaseURL,
		APIKey:  cfg.Statuspage.APIKey,
		PageID:  cfg.Statuspage.PageID,
		Timeout: cfg.StatuspageTimeout(),
	})
	inv := ops.NewInvestigator(ops.InvestigatorConfig{
		DedupTTL:       cfg.DedupTTL(),
		NotifyCooldown: cfg.NotifyCooldown(),
		BucketSeconds:  cfg.Ops.BucketSeconds,
		Strict:         cfg.Ops.Strict,
	}, ops.NewDedupStore(kv), events, store, sp, logger)
	return inv, func() { _ = kv.Close() }, nil
}
