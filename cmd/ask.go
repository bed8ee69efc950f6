package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question about the indexed codebase",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		engine, err := a.engine()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		usage, err := engine.Ask(cmd.Context(), strings.Join(args, " "), out)
		fmt.Fprintln(out)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\ntokens: %d (embed %d, chat %d)\n", usage.Total(), usage.EmbedTokens, usage.ChatTokens)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
