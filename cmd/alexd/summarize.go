package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"alex/internal/cortex"
	"alex/internal/memory"
)

var summarizeTier string

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Run one summarization pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := memory.New(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		gemini, err := cortex.NewGemini(ctx, cfg.Models.GeminiAPIKey, logger)
		if err != nil {
			return err
		}
		defer gemini.Close()

		embedder, err := cortex.NewGeminiEmbedder(gemini, cfg.Models.EmbeddingModel, cfg.Models.EmbeddingDimensions)
		if err != nil {
			return err
		}

		summarizer := memory.NewSummarizer(store, gemini, embedder,
			cfg.Models.FlashModel, cfg.Models.ProModel,
			cfg.Memory.DailyBatch, cfg.Memory.WeeklyBatch, cfg.Memory.MonthlyBatch, logger)

		var out any
		switch summarizeTier {
		case "daily":
			out, err = summarizer.RunDaily(ctx)
		case "weekly":
			out, err = summarizer.RunWeekly(ctx)
		case "monthly":
			out, err = summarizer.RunMonthly(ctx)
		case "all":
			out = summarizer.RunAll(ctx)
		default:
			return fmt.Errorf("unknown tier %q (want daily, weekly, monthly, or all)", summarizeTier)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	summarizeCmd.Flags().StringVarP(&summarizeTier, "tier", "t", "all", "tier to run: daily, weekly, monthly, or all")
}
