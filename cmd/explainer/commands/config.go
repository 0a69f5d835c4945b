package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/explainer/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage contexts",
	Long: `Manage named contexts in ~/.explainer/config.yaml.

A context holds the AI provider and its credentials, models and voice, the
default tone and level, playback settings and the export destination.

Examples:
  explainer config add-context home --api-key AIza...
  explainer config add-context work --provider openai --model gpt-4o-mini
  explainer config use-context work
  explainer config set audio.rate 1.25
  explainer config set export.s3.bucket my-exports --context work
  explainer config show`,
}

var addContextOpts cli.Context

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Create or replace a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx := addContextOpts
		if err := cfg.AddContext(args[0], &ctx); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "context %q saved", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "switched to context %q", args[0])
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Print the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			return fmt.Errorf("no current context set")
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"ls"},
	Short:   "List contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if structured() {
			return output(cmd, names)
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No contexts configured.")
			fmt.Fprintln(cmd.OutOrStdout(), "Create one with: explainer config add-context <name>")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tPROVIDER\tDEVICE")
		for _, name := range names {
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			c := cfg.Contexts[name]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", current, name, c.ResolvedProvider(), c.ResolvedDevice())
		}
		return w.Flush()
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting of a context",
	Long: "Change one setting of the current context (or --context).\n\nKeys:\n  " +
		joinEnum(cli.Keys),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		name := contextName
		if name == "" {
			name = cfg.CurrentContext
		}
		if name == "" {
			return fmt.Errorf("no current context set; use --context or add-context first")
		}
		c, err := cfg.GetContext(name)
		if err != nil {
			return err
		}
		if err := c.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "%s set in context %q", args[0], name)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a context with secrets masked",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		name := contextName
		if len(args) == 1 {
			name = args[0]
		}
		c, err := cfg.ResolveContext(name)
		if err != nil {
			return err
		}
		return output(cmd, c.Masked())
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Path())
		return nil
	},
}

func init() {
	f := configAddContextCmd.Flags()
	f.StringVar(&addContextOpts.Provider, "provider", "", "gemini (default) or openai")
	f.StringVar(&addContextOpts.APIKey, "api-key", "", "API key (default from GEMINI_API_KEY / OPENAI_API_KEY)")
	f.StringVar(&addContextOpts.BaseURL, "base-url", "", "API base URL")
	f.StringVar(&addContextOpts.Model, "model", "", "text model")
	f.StringVar(&addContextOpts.SpeechModel, "speech-model", "", "speech model")
	f.StringVar(&addContextOpts.Voice, "voice", "", "voice name")
	f.StringVar(&addContextOpts.Language, "language", "", "prompt language (en, es)")
	f.StringVar(&addContextOpts.Tone, "tone", "", "default tone")
	f.StringVar(&addContextOpts.Level, "level", "", "default level")
	f.StringVar(&addContextOpts.Audio.Device, "device", "", "audio device: portaudio (default) or null")
	f.StringVar(&addContextOpts.Export.Dir, "export-dir", "", "export directory (default ~/.explainer/exports)")

	configCmd.AddCommand(
		configAddContextCmd,
		configDeleteContextCmd,
		configUseContextCmd,
		configCurrentContextCmd,
		configListContextsCmd,
		configSetCmd,
		configShowCmd,
		configPathCmd,
	)
	rootCmd.AddCommand(configCmd)
}
