package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alex/internal/agent"
	"alex/internal/brokerage"
	"alex/internal/cortex"
	"alex/internal/memory"
	"alex/internal/server"
	"alex/internal/tools"
	"alex/internal/tools/fs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := memory.New(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return err
		}

		gemini, err := cortex.NewGemini(ctx, cfg.Models.GeminiAPIKey, logger)
		if err != nil {
			return err
		}
		defer gemini.Close()

		embedder, err := cortex.NewGeminiEmbedder(gemini, cfg.Models.EmbeddingModel, cfg.Models.EmbeddingDimensions)
		if err != nil {
			return err
		}

		var engineer cortex.Chatter
		if cfg.Models.AnthropicAPIKey != "" {
			claude, err := cortex.NewClaude(cfg.Models.AnthropicAPIKey, logger)
			if err != nil {
				return err
			}
			engineer = claude
		} else {
			logger.Warn("ANTHROPIC_API_KEY not set, engineering turns will use the Pro fallback")
		}

		retriever := memory.NewRetriever(store, embedder,
			cfg.Memory.SearchTopK, cfg.Memory.SearchMinScore, logger)

		summarizer := memory.NewSummarizer(store, gemini, embedder,
			cfg.Models.FlashModel, cfg.Models.ProModel,
			cfg.Memory.DailyBatch, cfg.Memory.WeeklyBatch, cfg.Memory.MonthlyBatch, logger)

		fsToolset, err := fs.NewToolset(cfg.Tools.ProjectRoot, logger)
		if err != nil {
			return err
		}

		ag := agent.New(agent.Options{
			Models:      cfg.Models,
			Chat:        gemini,
			ToolChat:    gemini,
			Engineer:    engineer,
			Embedder:    embedder,
			Retriever:   retriever,
			Store:       store,
			FSTools:     fsToolset.Catalog(),
			ProjectRoot: cfg.Tools.ProjectRoot,
			TradeTools:  buildTradeCatalog(store),
			Log:         logger,
		})

		srv := server.New(server.Options{
			Agent:      ag,
			Memory:     retriever,
			Store:      store,
			Summarizer: summarizer,
			Embedder:   embedder,
			AppEnv:     cfg.AppEnv,
			Log:        logger,
		})

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.ListenAndServe(ctx, cfg.Port)
		})
		return g.Wait()
	},
}

// buildTradeCatalog wires the brokerage client into a per-user tool
// catalog. Missing credentials leave trading unconfigured; the agent
// then answers trade intents with a configuration message.
func buildTradeCatalog(store *memory.Store) agent.TradeCatalogFunc {
	client, err := brokerage.NewClient(cfg.Brokerage, logger)
	if err != nil {
		if !errors.Is(err, brokerage.ErrNotConfigured) {
			logger.Warn("brokerage client unavailable", zap.Error(err))
		}
		return nil
	}

	ledger := brokerage.NewLedger()
	return func(userID string) ([]*tools.Tool, string, error) {
		ts := brokerage.NewToolset(client, ledger, store, userID, logger)
		return ts.Catalog(), client.Mode(), nil
	}
}
