package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/explainer/pkg/ai"
	"github.com/haivivi/explainer/pkg/cli"
	"github.com/haivivi/explainer/pkg/workflow"
)

const sessionHelp = `Commands:
  analyze <text>      explain text and play the narration
  summarize <text>    summarize text
  ask <question>      ask about the loaded text
  stop                stop the narration
  replay              play the narration again
  gain <0..1>         set the playback gain
  rate <0.5..2>       set the playback rate
  tone [name]         show or set the tone
  level [name]        show or set the level
  export [what]       save audio, script or all (default all)
  history             list recent inputs
  state               show the current state
  help                show this help
  quit                leave the session`

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Interactive explainer session",
	Long: `Start a line-oriented session on one workflow.

Analyze returns as soon as the narration starts, so stop, gain, rate and
ask work while it plays. State changes are printed as they happen.

` + sessionHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return runSession(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
}

// syncWriter serializes prompt output with transition notices.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

type session struct {
	a      *app
	out    *syncWriter
	styles cli.Styles
	tone   ai.Tone
	level  ai.Level
}

func runSession(ctx context.Context, a *app, in io.Reader, w io.Writer) error {
	tone, err := ai.ParseTone(a.ctx.Tone)
	if err != nil {
		return err
	}
	level, err := ai.ParseLevel(a.ctx.Level)
	if err != nil {
		return err
	}
	s := &session{
		a:      a,
		out:    &syncWriter{w: w},
		styles: cli.NewStyles(cli.DefaultTheme),
		tone:   tone,
		level:  level,
	}
	cancel := a.machine.Subscribe(func(t workflow.Transition) {
		line := "[" + s.styles.State(t.To.String()) + "]"
		if t.Message != "" {
			line += " " + s.styles.Error.Render(t.Message)
		}
		s.out.printf("%s\n", line)
	})
	defer cancel()

	s.out.printf("%s\n", s.styles.Help.Render("Type help for commands."))
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			a.machine.Stop()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := s.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// exec runs one command line and reports whether the session should end.
func (s *session) exec(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	m := s.a.machine
	var err error
	switch strings.ToLower(name) {
	case "":
	case "quit", "exit":
		m.Stop()
		return true
	case "help", "?":
		s.out.printf("%s\n", sessionHelp)
	case "analyze", "a":
		err = m.Analyze(ctx, ai.ScriptRequest{Text: arg, Tone: s.tone, Level: s.level})
		if snap := m.Snapshot(); snap.Script != "" && !errors.Is(err, workflow.ErrBusy) && !errors.Is(err, workflow.ErrValidation) {
			s.out.printf("%s\n", snap.Script)
		}
	case "summarize", "s":
		if err = m.Summarize(ctx, arg); err == nil {
			sum := m.Snapshot().Summary
			s.out.printf("%s\n%s\n", s.styles.Title.Render(sum.Title), sum.Text)
		}
	case "ask", "q":
		if err = m.Answer(ctx, arg); err == nil {
			ex := m.Snapshot().Exchanges
			s.out.printf("%s\n", ex[len(ex)-1].Answer)
		}
	case "stop":
		m.Stop()
	case "replay":
		err = m.Replay()
	case "gain", "rate":
		var v float64
		if v, err = strconv.ParseFloat(arg, 64); err == nil {
			if name == "gain" {
				v = m.SetGain(v)
			} else {
				v = m.SetRate(v)
			}
			s.out.printf("%s %.2f\n", name, v)
		}
	case "tone":
		if arg != "" {
			s.tone, err = parseOr(ai.ParseTone, arg, s.tone)
		}
		s.out.printf("tone %s (%s)\n", s.tone, joinEnum(ai.Tones))
	case "level":
		if arg != "" {
			s.level, err = parseOr(ai.ParseLevel, arg, s.level)
		}
		s.out.printf("level %s (%s)\n", s.level, joinEnum(ai.Levels))
	case "export":
		err = s.export(ctx, arg)
	case "history":
		for i, entry := range m.History(ctx) {
			s.out.printf("%2d  %s\n", i+1, entry)
		}
	case "state":
		s.out.printf("%s\n", s.panel())
	default:
		err = fmt.Errorf("unknown command %q, type help", name)
	}
	if err != nil {
		s.out.printf("%s\n", s.styles.Error.Render(s.errorLine(err)))
	}
	return false
}

func parseOr[T any](parse func(string) (T, error), s string, current T) (T, error) {
	v, err := parse(s)
	if err != nil {
		return current, err
	}
	return v, nil
}

// errorLine prefers the machine's user-facing message for failures it has
// already surfaced as Error.
func (s *session) errorLine(err error) string {
	switch {
	case errors.Is(err, workflow.ErrBusy):
		return "still working, try again when done"
	case errors.Is(err, workflow.ErrNoAudio):
		return "no narration yet, analyze a text first"
	}
	if snap := s.a.machine.Snapshot(); snap.State == workflow.Error && snap.Message != "" {
		return snap.Message
	}
	return err.Error()
}

func (s *session) export(ctx context.Context, what string) error {
	store, err := exportStore(s.a.ctx)
	if err != nil {
		return err
	}
	saved, err := s.a.export(ctx, store, what, 1)
	for _, f := range saved {
		s.out.printf("saved %s\n", f)
	}
	return err
}

func (s *session) panel() string {
	snap := s.a.machine.Snapshot()
	status := s.styles.State(snap.State.String())
	if snap.Playing {
		status += s.styles.Help.Render(fmt.Sprintf("  ♪ %s  gain %.2f  rate %.2fx", cli.FormatDuration(time.Duration(snap.AudioDuration)), snap.Gain, snap.Rate))
	}
	var sections []cli.Section
	if snap.Message != "" {
		sections = append(sections, cli.Section{Label: "Error", Lines: []string{snap.Message}})
	}
	if snap.Input != "" {
		sections = append(sections, cli.Section{Label: "Text", Lines: []string{snap.Input}})
	}
	if snap.Script != "" {
		sections = append(sections, cli.Section{Label: "Script", Lines: []string{snap.Script}})
	}
	if snap.Summary != nil {
		sections = append(sections, cli.Section{Label: "Summary", Lines: []string{snap.Summary.Title, snap.Summary.Text}})
	}
	var qa []string
	for _, ex := range snap.Exchanges {
		qa = append(qa, "Q: "+ex.Question, "A: "+ex.Answer)
	}
	sections = append(sections, cli.Section{Label: "Questions", Lines: qa})
	return cli.Panel{
		Styles:   s.styles,
		Title:    "explainer",
		Status:   status,
		Sections: sections,
		Width:    terminalWidth(),
	}.Render()
}

func terminalWidth() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n >= 40 {
		return n
	}
	return 80
}
