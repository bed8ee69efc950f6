package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"readit/internal/index"
	"readit/internal/tui"
)

var (
	flagFull    bool
	flagYes     bool
	flagWorkers int
)

var indexCmd = &cobra.Command{
	Use:     "index [path]",
	Aliases: []string{"init"},
	Short:   "Build or update the semantic index of a codebase",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			flagPath = args[0]
		}
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		if flagWorkers > 0 {
			a.cfg.Workers = flagWorkers
		}

		var approver index.Approver
		if !flagYes {
			approver = index.ApproverFunc(tui.Confirm)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Indexing %s...\n", a.root)
		start := time.Now()

		stats, err := a.runIndex(cmd.Context(), flagFull, approver, nil)
		elapsed := time.Since(start)

		if stats != nil {
			mode := "incremental"
			if stats.Full {
				mode = "full"
			}
			fmt.Fprintf(out, "\nDone in %s (%s, run %s)\n", elapsed.Round(time.Millisecond), mode, stats.RunID)
			fmt.Fprintf(out, "  Files:   %d total, %d changed, %d processed, %d skipped, %d pruned\n",
				stats.FilesTotal, stats.FilesChanged, stats.FilesProcessed, stats.FilesSkipped, stats.FilesPruned)
			fmt.Fprintf(out, "  Rows:    %d\n", stats.Rows)
			fmt.Fprintf(out, "  Summary: %t\n", stats.SummaryUpdated)
			fmt.Fprintf(out, "  Tokens:  %d (analyze %d, embed %d, summary %d)\n",
				stats.Tokens(), stats.AnalyzeTokens, stats.EmbedTokens, stats.SummaryTokens)
		}

		return err
	},
}

func init() {
	indexCmd.Flags().BoolVarP(&flagFull, "full", "f", false, "wipe the index and process every file")
	indexCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "index changed files without asking")
	indexCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel file jobs (default from config)")
	rootCmd.AddCommand(indexCmd)
}
