package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/explainer/pkg/ai"
	"github.com/haivivi/explainer/pkg/cli"
	"github.com/haivivi/explainer/pkg/workflow"
)

// textRequest is the request file format of analyze and summarize.
type textRequest struct {
	Text  string `yaml:"text" json:"text"`
	Tone  string `yaml:"tone,omitempty" json:"tone,omitempty"`
	Level string `yaml:"level,omitempty" json:"level,omitempty"`
}

var (
	requestFile  string
	toneFlag     string
	levelFlag    string
	gainFlag     float64
	rateFlag     float64
	noPlay       bool
	exportWhat   string
	exportAtRate bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Explain a text and play the narration",
	Long: `Generate an explanatory script for the text, synthesize it and play it.

The command waits until the narration has finished; Ctrl-C stops it. The
text comes from the arguments or from a YAML/JSON request file (-f, "-" for
stdin) with the fields text, tone and level.

Examples:
  explainer analyze "The water cycle"
  explainer analyze "Photosynthesis" --tone enthusiastic --level expert --rate 1.25
  explainer analyze -f request.yaml --no-play --export all`,
	RunE: runAnalyze,
}

func init() {
	addTextFlags(analyzeCmd)
	analyzeCmd.Flags().StringVar(&toneFlag, "tone", "", "tone: "+joinEnum(ai.Tones))
	analyzeCmd.Flags().StringVar(&levelFlag, "level", "", "level: "+joinEnum(ai.Levels))
	analyzeCmd.Flags().Float64Var(&gainFlag, "gain", 0, "playback gain in [0, 1] (default from context)")
	analyzeCmd.Flags().Float64Var(&rateFlag, "rate", 0, "playback rate in [0.5, 2] (default from context)")
	analyzeCmd.Flags().BoolVar(&noPlay, "no-play", false, "do not wait for the narration; stop it right away")
	analyzeCmd.Flags().StringVar(&exportWhat, "export", "", "save audio, script or all to the export store")
	analyzeCmd.Flags().BoolVar(&exportAtRate, "export-at-rate", false, "render the playback rate into the exported audio")
	rootCmd.AddCommand(analyzeCmd)
}

func addTextFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&requestFile, "file", "f", "", "request file (YAML or JSON, - for stdin)")
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// loadTextRequest merges the request file with arguments and flags.
func loadTextRequest(args []string) (textRequest, error) {
	var req textRequest
	if requestFile != "" {
		if err := cli.LoadRequest(requestFile, &req); err != nil {
			return req, err
		}
	}
	if len(args) > 0 {
		req.Text = strings.Join(args, " ")
	}
	if toneFlag != "" {
		req.Tone = toneFlag
	}
	if levelFlag != "" {
		req.Level = levelFlag
	}
	return req, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
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

	tone, err := ai.ParseTone(firstNonEmpty(req.Tone, a.ctx.Tone))
	if err != nil {
		return err
	}
	level, err := ai.ParseLevel(firstNonEmpty(req.Level, a.ctx.Level))
	if err != nil {
		return err
	}
	if gainFlag != 0 {
		a.machine.SetGain(gainFlag)
	}
	if rateFlag != 0 {
		a.machine.SetRate(rateFlag)
	}

	out := cmd.OutOrStdout()
	err = a.machine.Analyze(ctx, ai.ScriptRequest{Text: req.Text, Tone: tone, Level: level})
	snap := a.machine.Snapshot()
	if err != nil {
		// Show a script produced before the failure.
		if snap.Script != "" && !structured() {
			fmt.Fprintln(out, snap.Script)
		}
		return errors.New(snap.Message)
	}

	if structured() {
		var result any = snap
		if cli.OutputFormat(formatOutput) == cli.FormatRaw {
			result = snap.Script + "\n"
		}
		if err := output(cmd, result); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, snap.Script)
		fmt.Fprintln(cmd.ErrOrStderr())
		cli.PrintSuccess(cmd.ErrOrStderr(), "narration %s at gain %.2f, rate %.2fx", cli.FormatDuration(time.Duration(snap.AudioDuration)), snap.Gain, snap.Rate)
	}

	if noPlay {
		a.machine.Stop()
	} else {
		a.waitPlayback(ctx)
	}
	return exportAfter(cmd, a, snap)
}

func exportAfter(cmd *cobra.Command, a *app, snap workflow.Snapshot) error {
	if exportWhat == "" {
		return nil
	}
	store, err := exportStore(a.ctx)
	if err != nil {
		return err
	}
	rate := 1.0
	if exportAtRate {
		rate = snap.Rate
	}
	saved, err := a.export(cmd.Context(), store, exportWhat, rate)
	for _, f := range saved {
		cli.PrintSuccess(cmd.ErrOrStderr(), "saved %s", f)
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
