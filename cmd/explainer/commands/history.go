package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/haivivi/explainer/pkg/cli"
	"github.com/haivivi/explainer/pkg/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or clear recently submitted inputs",
}

var historyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recent inputs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistoryStore()
		if err != nil {
			return err
		}
		defer store.Close()
		entries := history.New(history.Config{Store: store, Logger: slog.Default()}).Load(cmd.Context())
		if structured() {
			return output(cmd, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No history yet.")
			return nil
		}
		for i, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%2d  %s\n", i+1, e)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all recent inputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistoryStore()
		if err != nil {
			return err
		}
		defer store.Close()
		history.New(history.Config{Store: store, Logger: slog.Default()}).Clear(cmd.Context())
		cli.PrintSuccess(cmd.OutOrStdout(), "history cleared")
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
