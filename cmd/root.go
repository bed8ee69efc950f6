package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	flagPath     string
	flagConfig   string
	flagDB       string
	flagProvider string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "readit",
	Short: "Index a codebase and ask questions about it",
	Long: `readit describes every file, class and function of a project with a language
model, stores the descriptions as embeddings, and answers questions from them.

Run without a subcommand to update the index and open the chat.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context(), true)
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagPath, "path", "p", ".", "project root")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.readit/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default <project>/.readit/index.db)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "model provider: openai or ollama (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (overrides config)")
}
