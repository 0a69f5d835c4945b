package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/explainer/pkg/cli"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [text]",
	Short: "Summarize a text",
	Long: `Ask the AI service for a titled summary of the text.

Examples:
  explainer summarize "The water cycle"
  explainer summarize -f article.yaml -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		req, err := loadTextRequest(args)
		if err != nil {
			return err
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.machine.Summarize(ctx, req.Text); err != nil {
			return errors.New(a.machine.Snapshot().Message)
		}
		sum := a.machine.Snapshot().Summary
		if structured() {
			return output(cmd, sum)
		}
		styles := cli.NewStyles(cli.DefaultTheme)
		fmt.Fprintln(cmd.OutOrStdout(), styles.Title.Render(sum.Title))
		fmt.Fprintln(cmd.OutOrStdout(), sum.Text)
		return nil
	},
}

func init() {
	addTextFlags(summarizeCmd)
	rootCmd.AddCommand(summarizeCmd)
}
