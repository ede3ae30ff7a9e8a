// decisiondoc is the service entry point: an HTTP server for decision
// document generation, plus one-shot commands for local generation, eval
// runs, and incident investigations.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sungjin9288/DecisionDoc-AI/internal/cache"
	"github.com/sungjin9288/DecisionDoc-AI/internal/config"
	"github.com/sungjin9288/DecisionDoc-AI/internal/generation"
	"github.com/sungjin9288/DecisionDoc-AI/internal/logging"
	"github.com/sungjin9288/DecisionDoc-AI/internal/provider"
	"github.com/sungjin9288/DecisionDoc-AI/internal/render"
	"github.com/sungjin9288/DecisionDoc-AI/internal/storage"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "decisiondoc",
	Short: "DecisionDoc - decision document generation service",
	Long: `DecisionDoc turns a short requirement statement into a consistent set
of decision documents (ADR, onepager, eval plan, ops checklist), with a
content-addressed response cache, a quality gate over every rendered
document, and operational tooling for incident investigation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func storageFromConfig() (storage.Store, error) {
	store, err := storage.NewLocalStore(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return store, nil
}

// buildGenerationService wires the full generation pipeline from config.
func buildGenerationService(ctx context.Context) (*generation.Service, storage.Store, error) {
	store, err := storageFromConfig()
	if err != nil {
		return nil, nil, err
	}
	renderer, err := render.NewRenderer(cfg.Render.TemplateVersion)
	if err != nil {
		return nil, nil, err
	}
	prov, err := provider.New(ctx, provider.Settings{
		Name:          cfg.Provider.Name,
		Timeout:       cfg.ProviderTimeout(),
		GeminiAPIKey:  cfg.Provider.GeminiAPIKey,
		GeminiModel:   cfg.Provider.GeminiModel,
		OpenAIAPIKey:  cfg.Provider.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Provider.OpenAIBaseURL,
		OpenAIModel:   cfg.Provider.OpenAIModel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("resolve provider: %w", err)
	}
	cacheStore := cache.NewStore(cfg.Cache.Dir, cfg.Cache.Enabled)
	return generation.NewService(prov, cacheStore, store, renderer, logger), store, nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "decisiondoc.yaml", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(investigateCmd)
	rootCmd.AddCommand(evalCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
