// Package commands implements the explainer CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/explainer/pkg/cli"
)

var (
	verbose      bool
	configPath   string
	contextName  string
	formatOutput string

	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "explainer",
	Short: "Explain any text with generated narration",
	Long: `explainer turns a text into a spoken explanation.

It asks a generative AI service (Gemini or OpenAI) for an explanatory script,
synthesizes it to speech, and plays it. It can also summarize the text,
answer follow-up questions, and export the narration as explanation.wav and
the script as script.txt.

Configuration lives in ~/.explainer/config.yaml as named contexts. Without
any context, GEMINI_API_KEY (or OPENAI_API_KEY with provider openai) is
enough to run.

Examples:
  explainer analyze "The water cycle" --tone friendly --level child
  explainer summarize -f request.yaml -o json
  explainer session
  explainer serve --addr :8080
  explainer config add-context work --provider openai --api-key sk-...`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command. Cancelling ctx interrupts long commands.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.explainer/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context to use (default: current context)")
	rootCmd.PersistentFlags().StringVarP(&formatOutput, "output", "o", "", "output format: yaml, json, raw (default: text)")
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// GetConfig loads the config file once.
func GetConfig() (*cli.Config, error) {
	if globalConfig == nil {
		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// currentContext resolves --context against the config.
func currentContext() (*cli.Context, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		return nil, err
	}
	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	return ctx, nil
}

// structured reports whether -o asks for machine-readable output.
func structured() bool {
	return formatOutput != ""
}

func output(cmd *cobra.Command, v any) error {
	return cli.Output(v, cli.OutputOptions{
		Format: cli.OutputFormat(formatOutput),
		Writer: cmd.OutOrStdout(),
	})
}
