package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"readit/internal/index"
	"readit/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the indexed codebase without reindexing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context(), false)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// runTUI opens the chat, optionally after an incremental index pass.
func runTUI(ctx context.Context, reindex bool) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.engine()
	if err != nil {
		return err
	}

	cfg := tui.Config{Engine: engine}
	if reindex {
		cfg.Index = func(ctx context.Context, approver index.Approver, onProgress index.ProgressFunc) (*index.Stats, error) {
			return a.runIndex(ctx, false, approver, onProgress)
		}
	}
	return tui.Run(ctx, cfg)
}
