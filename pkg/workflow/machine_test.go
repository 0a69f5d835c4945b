package workflow

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/explainer/pkg/ai"
	"github.com/haivivi/explainer/pkg/audio/pcm"
	"github.com/haivivi/explainer/pkg/history"
	"github.com/haivivi/explainer/pkg/kv"
	"github.com/haivivi/explainer/pkg/playback"
)

const waterScript = "Water evaporates, forms clouds and falls as rain."

// fakeService records calls. When gate is non-nil every call waits for it.
type fakeService struct {
	mu    sync.Mutex
	calls []string
	gate  chan struct{}

	script     string
	scriptErr  error
	speech     string
	speechErr  error
	summary    *ai.Summary
	summaryErr error
	answer     string
	answerErr  error

	speechInput string
}

func (s *fakeService) enter(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (s *fakeService) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeService) GenerateScript(_ context.Context, req ai.ScriptRequest) (string, error) {
	s.enter("script")
	return s.script, s.scriptErr
}

func (s *fakeService) Summarize(_ context.Context, text string) (*ai.Summary, error) {
	s.enter("summary")
	return s.summary, s.summaryErr
}

func (s *fakeService) Answer(_ context.Context, contextText, question string) (string, error) {
	s.enter("answer")
	return s.answer, s.answerErr
}

func (s *fakeService) SynthesizeSpeech(_ context.Context, text string) (string, error) {
	s.enter("speech")
	s.mu.Lock()
	s.speechInput = text
	s.mu.Unlock()
	return s.speech, s.speechErr
}

// fakePlayer keeps completion callbacks so tests decide when playback ends.
type fakePlayer struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	onDone   []func(error)
	gain     float64
	rate     float64
}

func (p *fakePlayer) Start(a *pcm.Audio, gain, rate float64, onDone func(error)) (*playback.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return nil, p.startErr
	}
	p.starts++
	p.gain, p.rate = gain, rate
	p.onDone = append(p.onDone, onDone)
	return nil, nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *fakePlayer) SetGain(v float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gain = playback.ClampGain(v)
	return p.gain
}

func (p *fakePlayer) SetRate(v float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = playback.ClampRate(v)
	return p.rate
}

// complete fires the completion callback of the i-th started session.
func (p *fakePlayer) complete(i int) {
	p.fail(i, nil)
}

// fail ends the i-th started session with an output error.
func (p *fakePlayer) fail(i int, err error) {
	p.mu.Lock()
	fn := p.onDone[i]
	p.mu.Unlock()
	fn(err)
}

func (p *fakePlayer) counts() (starts, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.stops
}

type recorder struct {
	mu sync.Mutex
	ts []Transition
}

func observe(m *Machine) *recorder {
	r := &recorder{}
	m.Subscribe(func(t Transition) {
		r.mu.Lock()
		r.ts = append(r.ts, t)
		r.mu.Unlock()
	})
	return r
}

// states returns the observed path, starting with the first From.
func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ts) == 0 {
		return nil
	}
	out := []State{r.ts[0].From}
	for _, t := range r.ts {
		out = append(out, t.To)
	}
	return out
}

func (r *recorder) last() Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ts[len(r.ts)-1]
}

func speechPayload(samples int) string {
	b := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(int16(i*37)))
	}
	return base64.StdEncoding.EncodeToString(b)
}

func newMachine(t *testing.T, svc *fakeService) (*Machine, *fakePlayer, *history.Log) {
	t.Helper()
	p := &fakePlayer{}
	h := history.New(history.Config{Store: kv.NewMemory()})
	m := New(Config{Service: svc, Player: p, History: h})
	t.Cleanup(func() { m.Close() })
	return m, p, h
}

func waterService() *fakeService {
	return &fakeService{
		script:  waterScript,
		speech:  speechPayload(2400),
		summary: &ai.Summary{Title: "The water cycle", Text: "Water moves between sea, sky and land."},
		answer:  "Because the sun heats it.",
	}
}

func assertStates(t *testing.T, r *recorder, want ...State) {
	t.Helper()
	if got := r.states(); !slices.Equal(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			svc := waterService()
			m, p, h := newMachine(t, svc)
			r := observe(m)

			err := m.Analyze(context.Background(), ai.ScriptRequest{Text: input})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Analyze error = %v, want ErrValidation", err)
			}
			assertStates(t, r, Idle, Error)
			if calls := svc.called(); len(calls) != 0 {
				t.Errorf("collaborator calls = %v, want none", calls)
			}
			if starts, _ := p.counts(); starts != 0 {
				t.Errorf("player started %d times", starts)
			}
			if got := h.Load(context.Background()); len(got) != 0 {
				t.Errorf("history = %q, want empty", got)
			}
			if msg := r.last().Message; msg == "" {
				t.Error("Error transition carries no message")
			}
		})
	}
}

func TestAnalyzeWaterCycle(t *testing.T) {
	svc := waterService()
	m, p, h := newMachine(t, svc)
	r := observe(m)

	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle", Tone: ai.ToneFriendly, Level: ai.LevelChild}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	assertStates(t, r, Idle, Analyzing, Synthesizing, Playing)

	if got := svc.called(); !slices.Equal(got, []string{"script", "speech"}) {
		t.Errorf("calls = %v", got)
	}
	if svc.speechInput != waterScript {
		t.Errorf("speech input = %q, want the script", svc.speechInput)
	}
	snap := m.Snapshot()
	if snap.Script != waterScript || !snap.HasAudio || !snap.Playing {
		t.Errorf("snapshot = %+v", snap)
	}
	if time.Duration(snap.AudioDuration) != 100*time.Millisecond {
		t.Errorf("audio duration = %v, want 100ms", snap.AudioDuration)
	}
	if snap.Tone != ai.ToneFriendly || snap.Level != ai.LevelChild {
		t.Errorf("tone/level = %s/%s", snap.Tone, snap.Level)
	}
	if got := h.Load(context.Background()); !slices.Equal(got, []string{"The water cycle"}) {
		t.Errorf("history = %q", got)
	}

	p.complete(0)
	assertStates(t, r, Idle, Analyzing, Synthesizing, Playing, Idle)
	if m.Snapshot().Playing {
		t.Error("Playing still reported after completion")
	}
}

func TestAnalyzeEmptyAudioKeepsScript(t *testing.T) {
	svc := waterService()
	svc.speech = ""
	m, p, _ := newMachine(t, svc)
	r := observe(m)

	err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"})
	if !errors.Is(err, ai.ErrGeneration) {
		t.Fatalf("Analyze error = %v, want ErrGeneration", err)
	}
	assertStates(t, r, Idle, Analyzing, Synthesizing, Error)

	snap := m.Snapshot()
	if snap.Script != waterScript {
		t.Errorf("script = %q, want it kept after speech failure", snap.Script)
	}
	if snap.HasAudio {
		t.Error("audio loaded after empty payload")
	}
	if starts, _ := p.counts(); starts != 0 {
		t.Errorf("player started %d times", starts)
	}
	if script, err := m.ExportScript(); err != nil || string(script) != waterScript {
		t.Errorf("ExportScript = %q, %v", script, err)
	}
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*fakeService)
		is     error
		states []State
	}{
		{
			name:   "script call fails",
			modify: func(s *fakeService) { s.scriptErr = errors.New("quota exceeded") },
			is:     ai.ErrGeneration,
			states: []State{Idle, Analyzing, Error},
		},
		{
			name:   "empty script",
			modify: func(s *fakeService) { s.script = "  " },
			is:     ai.ErrEmptyPayload,
			states: []State{Idle, Analyzing, Error},
		},
		{
			name: "speech call fails",
			modify: func(s *fakeService) {
				s.speechErr = &ai.GenerationError{Op: "speech", Err: errors.New("voice not found")}
			},
			is:     ai.ErrGeneration,
			states: []State{Idle, Analyzing, Synthesizing, Error},
		},
		{
			name:   "malformed base64",
			modify: func(s *fakeService) { s.speech = "AAD*fw==" },
			is:     pcm.ErrDecode,
			states: []State{Idle, Analyzing, Synthesizing, Error},
		},
		{
			name:   "odd pcm length",
			modify: func(s *fakeService) { s.speech = base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) },
			is:     pcm.ErrDecode,
			states: []State{Idle, Analyzing, Synthesizing, Error},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := waterService()
			tc.modify(svc)
			m, _, _ := newMachine(t, svc)
			r := observe(m)

			err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"})
			if !errors.Is(err, tc.is) {
				t.Fatalf("Analyze error = %v, want %v", err, tc.is)
			}
			assertStates(t, r, tc.states...)
			if m.Snapshot().Message == "" {
				t.Error("no error message")
			}
			if m.Busy() {
				t.Error("Busy() after failure")
			}
		})
	}
}

func TestStopThenLateCompletion(t *testing.T) {
	m, p, _ := newMachine(t, waterService())
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	r := observe(m)

	m.Stop()
	assertStates(t, r, Playing, Idle)
	if _, stops := p.counts(); stops != 1 {
		t.Errorf("player stopped %d times, want 1", stops)
	}

	// The torn down session reports completion late.
	p.complete(0)
	m.Stop()
	assertStates(t, r, Playing, Idle)
	if m.State() != Idle {
		t.Errorf("state = %v, want Idle", m.State())
	}
}

func TestStopOutsidePlaying(t *testing.T) {
	m, p, _ := newMachine(t, waterService())
	r := observe(m)
	m.Stop()
	m.Stop()
	if len(r.states()) != 0 {
		t.Errorf("transitions = %v, want none", r.states())
	}
	if _, stops := p.counts(); stops != 0 {
		t.Errorf("player stopped %d times", stops)
	}
}

func TestBusyGuard(t *testing.T) {
	svc := waterService()
	svc.gate = make(chan struct{})
	m, _, _ := newMachine(t, svc)

	done := make(chan error, 1)
	go func() {
		done <- m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"})
	}()
	waitFor(t, func() bool { return m.State() == Analyzing })

	if !m.Busy() {
		t.Fatal("Busy() = false while analyzing")
	}
	r := observe(m)
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "Photosynthesis"}); !errors.Is(err, ErrBusy) {
		t.Errorf("second Analyze = %v, want ErrBusy", err)
	}
	if err := m.Summarize(context.Background(), "Photosynthesis"); !errors.Is(err, ErrBusy) {
		t.Errorf("Summarize = %v, want ErrBusy", err)
	}
	if err := m.Answer(context.Background(), "Why?"); !errors.Is(err, ErrBusy) {
		t.Errorf("Answer = %v, want ErrBusy", err)
	}
	if err := m.Replay(); !errors.Is(err, ErrBusy) {
		t.Errorf("Replay = %v, want ErrBusy", err)
	}
	if len(r.states()) != 0 {
		t.Errorf("rejected submissions caused transitions %v", r.states())
	}
	if got := svc.called(); !slices.Equal(got, []string{"script"}) {
		t.Errorf("calls = %v, want only the first script call", got)
	}

	close(svc.gate)
	if err := <-done; err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	if m.Snapshot().Input != "The water cycle" {
		t.Error("rejected submission replaced the input")
	}
}

func TestAnswerDuringPlayback(t *testing.T) {
	svc := waterService()
	m, p, _ := newMachine(t, svc)
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	r := observe(m)

	if err := m.Answer(context.Background(), "Why does water evaporate?"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	assertStates(t, r, Playing, Answering, Playing)
	if _, stops := p.counts(); stops != 0 {
		t.Errorf("Answer stopped playback %d times", stops)
	}
	want := []Exchange{{Question: "Why does water evaporate?", Answer: "Because the sun heats it."}}
	if got := m.Snapshot().Exchanges; !slices.Equal(got, want) {
		t.Errorf("exchanges = %v", got)
	}

	// The narration ends while the next answer is pending.
	svc.gate = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- m.Answer(context.Background(), "And then?") }()
	waitFor(t, func() bool { return m.State() == Answering })
	p.complete(0)
	if m.State() != Answering {
		t.Fatalf("completion overrode Answering: %v", m.State())
	}
	close(svc.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	assertStates(t, r, Playing, Answering, Playing, Answering, Idle)
	if n := len(m.Snapshot().Exchanges); n != 2 {
		t.Errorf("exchanges = %d, want 2", n)
	}
}

func TestAnswerValidation(t *testing.T) {
	svc := waterService()
	m, _, _ := newMachine(t, svc)
	r := observe(m)

	if err := m.Answer(context.Background(), "Why?"); !errors.Is(err, ErrNoText) {
		t.Fatalf("Answer without text = %v, want ErrNoText", err)
	}
	assertStates(t, r, Idle, Error)

	if err := m.Summarize(context.Background(), "The water cycle"); err != nil {
		t.Fatal(err)
	}
	if err := m.Answer(context.Background(), "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("Answer(blank) = %v, want ErrValidation", err)
	}
	if got := svc.called(); slices.Contains(got, "answer") {
		t.Errorf("collaborator called for invalid question: %v", got)
	}

	// Answer is accepted from Error once text is loaded.
	if err := m.Answer(context.Background(), "Why?"); err != nil {
		t.Fatalf("Answer from Error: %v", err)
	}
	if m.State() != Idle {
		t.Errorf("state = %v, want Idle", m.State())
	}
}

func TestAnswerFailure(t *testing.T) {
	svc := waterService()
	m, p, _ := newMachine(t, svc)
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	svc.answerErr = errors.New("timeout")
	r := observe(m)

	if err := m.Answer(context.Background(), "Why?"); !errors.Is(err, ai.ErrGeneration) {
		t.Fatalf("Answer = %v, want ErrGeneration", err)
	}
	assertStates(t, r, Playing, Answering, Error)
	if _, stops := p.counts(); stops != 1 {
		t.Errorf("playback not stopped on entering Error")
	}
	if len(m.Snapshot().Exchanges) != 0 {
		t.Error("failed answer appended an exchange")
	}
}

func TestSummarize(t *testing.T) {
	svc := waterService()
	m, p, h := newMachine(t, svc)
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Answer(context.Background(), "Why?"); err != nil {
		t.Fatal(err)
	}
	r := observe(m)

	if err := m.Summarize(context.Background(), "The water cycle"); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	assertStates(t, r, Playing, Summarizing, Idle)

	snap := m.Snapshot()
	if snap.Summary == nil || snap.Summary.Title != "The water cycle" {
		t.Fatalf("summary = %+v", snap.Summary)
	}
	if len(snap.Exchanges) != 0 {
		t.Error("exchanges not cleared")
	}
	if snap.HasAudio || snap.Playing {
		t.Error("narration kept after summarize")
	}
	if snap.Script != waterScript {
		t.Error("script dropped although the text is unchanged")
	}
	if _, stops := p.counts(); stops != 1 {
		t.Errorf("playback stopped %d times, want 1", stops)
	}
	if got := h.Load(context.Background()); !slices.Equal(got, []string{"The water cycle"}) {
		t.Errorf("history = %q", got)
	}

	if err := m.Summarize(context.Background(), "Photosynthesis"); err != nil {
		t.Fatal(err)
	}
	if m.Snapshot().Script != "" {
		t.Error("script kept for a different text")
	}
}

func TestSummarizeNeverPartial(t *testing.T) {
	tests := []struct {
		name    string
		summary *ai.Summary
		err     error
	}{
		{"missing text", &ai.Summary{Title: "Water"}, nil},
		{"missing title", &ai.Summary{Text: "It rains."}, nil},
		{"nil", nil, nil},
		{"call fails", nil, errors.New("503")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := waterService()
			svc.summary, svc.summaryErr = tc.summary, tc.err
			m, _, _ := newMachine(t, svc)
			r := observe(m)

			if err := m.Summarize(context.Background(), "The water cycle"); !errors.Is(err, ai.ErrGeneration) {
				t.Fatalf("Summarize = %v, want ErrGeneration", err)
			}
			assertStates(t, r, Idle, Summarizing, Error)
			if m.Snapshot().Summary != nil {
				t.Error("partial summary exposed")
			}
		})
	}
}

func TestReanalyzeStopsPlayback(t *testing.T) {
	m, p, _ := newMachine(t, waterService())
	ctx := context.Background()
	if err := m.Analyze(ctx, ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Answer(ctx, "Why?"); err != nil {
		t.Fatal(err)
	}
	r := observe(m)
	if err := m.Analyze(ctx, ai.ScriptRequest{Text: "Photosynthesis"}); err != nil {
		t.Fatal(err)
	}
	assertStates(t, r, Playing, Analyzing, Synthesizing, Playing)
	starts, stops := p.counts()
	if starts != 2 || stops != 1 {
		t.Errorf("starts/stops = %d/%d, want 2/1", starts, stops)
	}
	if len(m.Snapshot().Exchanges) != 0 {
		t.Error("exchanges survived a new analyze")
	}

	// completion of the first session is stale
	p.complete(0)
	if m.State() != Playing {
		t.Errorf("state = %v after stale completion, want Playing", m.State())
	}
	p.complete(1)
	if m.State() != Idle {
		t.Errorf("state = %v after completion, want Idle", m.State())
	}
}

func TestPlaybackUnavailable(t *testing.T) {
	m, p, _ := newMachine(t, waterService())
	p.startErr = fmt.Errorf("%w: no speaker", playback.ErrUnavailable)
	r := observe(m)

	err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"})
	if !errors.Is(err, playback.ErrUnavailable) {
		t.Fatalf("Analyze = %v, want ErrUnavailable", err)
	}
	assertStates(t, r, Idle, Analyzing, Synthesizing, Error)
	snap := m.Snapshot()
	if snap.Message != "Audio output is unavailable." {
		t.Errorf("message = %q", snap.Message)
	}
	if snap.Script != waterScript || !snap.HasAudio {
		t.Error("script or audio discarded after playback failure")
	}
	if _, err := m.ExportAudio(); err != nil {
		t.Errorf("ExportAudio after playback failure: %v", err)
	}
}

func TestReplay(t *testing.T) {
	m, p, _ := newMachine(t, waterService())
	if err := m.Replay(); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("Replay without audio = %v, want ErrNoAudio", err)
	}
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	p.complete(0)
	r := observe(m)

	if err := m.Replay(); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	assertStates(t, r, Idle, Playing)
	p.complete(1)
	assertStates(t, r, Idle, Playing, Idle)
}

func TestSubscriberMayCallMachine(t *testing.T) {
	m, _, _ := newMachine(t, waterService())
	r := observe(m)
	m.Subscribe(func(tr Transition) {
		if tr.To == Playing {
			m.Stop()
		}
	})

	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	assertStates(t, r, Idle, Analyzing, Synthesizing, Playing, Idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 1; i < len(r.ts); i++ {
		if r.ts[i].Seq != r.ts[i-1].Seq+1 {
			t.Fatalf("transitions out of order: %v", r.ts)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	m, _, _ := newMachine(t, waterService())
	var n int
	cancel := m.Subscribe(func(Transition) { n++ })
	m.Analyze(context.Background(), ai.ScriptRequest{Text: ""})
	cancel()
	cancel()
	m.Analyze(context.Background(), ai.ScriptRequest{Text: ""})
	if n != 1 {
		t.Errorf("subscriber called %d times, want 1", n)
	}
}

func TestGainRate(t *testing.T) {
	m, p, _ := newMachine(t, waterService())
	if got := m.SetGain(3); got != 1 {
		t.Errorf("SetGain(3) = %v, want 1", got)
	}
	if got := m.SetGain(0.4); got != 0.4 {
		t.Errorf("SetGain(0.4) = %v", got)
	}
	if got := m.SetRate(0.1); got != 0.5 {
		t.Errorf("SetRate(0.1) = %v, want 0.5", got)
	}
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	if p.gain != 0.4 || p.rate != 0.5 {
		t.Errorf("session started at gain %v rate %v", p.gain, p.rate)
	}
	snap := m.Snapshot()
	if snap.Gain != 0.4 || snap.Rate != 0.5 {
		t.Errorf("snapshot gain/rate = %v/%v", snap.Gain, snap.Rate)
	}
}

func TestExports(t *testing.T) {
	m, _, _ := newMachine(t, waterService())
	if _, err := m.ExportAudio(); !errors.Is(err, ErrNoAudio) {
		t.Errorf("ExportAudio = %v, want ErrNoAudio", err)
	}
	if _, err := m.ExportScript(); !errors.Is(err, ErrNoScript) {
		t.Errorf("ExportScript = %v, want ErrNoScript", err)
	}
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}

	wav, err := m.ExportAudio()
	if err != nil {
		t.Fatalf("ExportAudio: %v", err)
	}
	a, err := pcm.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if a.Frames() != 2400 || a.SampleRate != ai.SpeechSampleRate {
		t.Errorf("exported %d frames at %d Hz", a.Frames(), a.SampleRate)
	}

	fast, err := m.ExportAudioAt(2)
	if err != nil {
		t.Fatalf("ExportAudioAt(2): %v", err)
	}
	b, err := pcm.DecodeWAV(fast)
	if err != nil {
		t.Fatal(err)
	}
	if b.Frames() != 1200 {
		t.Errorf("ExportAudioAt(2) frames = %d, want 1200", b.Frames())
	}
	if _, err := m.ExportAudioAt(5); err == nil {
		t.Error("ExportAudioAt(5): expected error")
	}

	script, err := m.ExportScript()
	if err != nil || string(script) != waterScript {
		t.Errorf("ExportScript = %q, %v", script, err)
	}
}

func TestClose(t *testing.T) {
	m, p, _ := newMachine(t, waterService())
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	m.Close()
	if _, stops := p.counts(); stops != 1 {
		t.Error("Close did not stop playback")
	}
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "x"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Analyze after Close = %v, want ErrClosed", err)
	}
	p.complete(0)
}

func TestCloseDropsInFlightResult(t *testing.T) {
	svc := waterService()
	svc.gate = make(chan struct{})
	m, _, _ := newMachine(t, svc)
	done := make(chan error, 1)
	go func() { done <- m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}) }()
	waitFor(t, func() bool { return m.State() == Analyzing })

	m.Close()
	close(svc.gate)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Analyze = %v, want ErrSuperseded", err)
	}
	if m.Snapshot().Script != "" {
		t.Error("stale script applied")
	}
}

// End to end with the real controller; the null device paces 100ms of audio.
func TestNaturalCompletionWithController(t *testing.T) {
	svc := waterService()
	ctrl := playback.NewController(playback.Config{Device: playback.NullDevice{}})
	m := New(Config{Service: svc, Player: ctrl})
	defer m.Close()
	r := observe(m)

	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return m.State() == Idle })
	assertStates(t, r, Idle, Analyzing, Synthesizing, Playing, Idle)
	if ctrl.Playing() {
		t.Error("controller still playing")
	}
}

// failingDevice accepts the first write of each output and fails after.
type failingDevice struct{}

func (failingDevice) Open(pcm.Format) (pcm.WriteCloser, error) {
	return &failingOutput{}, nil
}

type failingOutput struct {
	mu     sync.Mutex
	writes int
}

func (o *failingOutput) Write(pcm.Chunk) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes++
	if o.writes > 1 {
		return errors.New("device unplugged")
	}
	return nil
}

func (o *failingOutput) Close() error { return nil }

func TestPlaybackFailureReachesError(t *testing.T) {
	svc := waterService()
	m, p, _ := newMachine(t, svc)
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	r := observe(m)

	p.fail(0, fmt.Errorf("%w: device unplugged", playback.ErrUnavailable))
	assertStates(t, r, Playing, Error)
	snap := m.Snapshot()
	if snap.Message != "Audio output is unavailable." || snap.Playing {
		t.Errorf("snapshot = %+v", snap)
	}
	if !snap.HasAudio || snap.Script == "" {
		t.Error("failure discarded the narration")
	}

	// A late callback of the failed session changes nothing.
	p.complete(0)
	assertStates(t, r, Playing, Error)
}

func TestPlaybackFailureDuringAnswer(t *testing.T) {
	svc := waterService()
	m, p, _ := newMachine(t, svc)
	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	r := observe(m)

	svc.gate = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- m.Answer(context.Background(), "Why?") }()
	waitFor(t, func() bool { return m.State() == Answering })
	p.fail(0, fmt.Errorf("%w: device unplugged", playback.ErrUnavailable))
	if m.State() != Answering {
		t.Fatalf("failure overrode Answering: %v", m.State())
	}
	close(svc.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	assertStates(t, r, Playing, Answering, Error)
	snap := m.Snapshot()
	if len(snap.Exchanges) != 1 || snap.Message != "Audio output is unavailable." {
		t.Errorf("snapshot = %+v", snap)
	}

	// The next answer starts clean.
	if err := m.Answer(context.Background(), "And then?"); err != nil {
		t.Fatal(err)
	}
	assertStates(t, r, Playing, Answering, Error, Answering, Idle)
}

func TestDeviceFailureWithController(t *testing.T) {
	svc := waterService()
	ctrl := playback.NewController(playback.Config{Device: failingDevice{}, Frame: 2 * time.Millisecond})
	m := New(Config{Service: svc, Player: ctrl})
	defer m.Close()
	r := observe(m)

	if err := m.Analyze(context.Background(), ai.ScriptRequest{Text: "The water cycle"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return m.State() == Error })
	assertStates(t, r, Idle, Analyzing, Synthesizing, Playing, Error)
	if msg := m.Snapshot().Message; msg != "Audio output is unavailable." {
		t.Errorf("message = %q", msg)
	}
	if ctrl.Playing() {
		t.Error("controller still playing")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
