// alexd is the Alex agent server daemon. `alexd serve` runs the HTTP
// server; `alexd summarize` runs one summarization pass; `alexd
// migrate` applies the database schema.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"alex/internal/config"
	"alex/internal/logging"

	"go.uber.org/zap"
)

// Exit codes: 0 success, 1 configuration error, 2 runtime failure.
const (
	exitOK      = 0
	exitConfig  = 1
	exitRuntime = 2
)

var (
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "alexd",
	Short: "Alex - stateful conversational agent server",
	Long: `Alex is a conversational agent with persistent, time-indexed memory.

User turns enter over HTTP, are classified and routed through a turn
graph to one of five responder cortexes, and are persisted to Postgres
with pgvector embeddings. A recursive summarization pipeline compresses
interactions into daily, weekly, and monthly summaries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(exitConfig)
		}
		cfg = loaded

		logger, err = logging.New(cfg.AppEnv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(exitConfig)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}
