// Package workflow sequences the explainer's actions.
//
// A Machine owns the workflow State, the loaded text, the generated script,
// summary and question/answer exchanges, and the decoded narration. User
// actions enter through its methods:
//
//	Analyze:   Idle → Analyzing → Synthesizing → Playing → Idle
//	Summarize: Idle → Summarizing → Idle
//	Answer:    Idle → Answering → Idle (or back to Playing)
//
// Any failure ends in Error with a user-facing message. Only one action runs
// at a time: while the state is Busy, further submissions fail with ErrBusy
// and leave the state untouched.
//
// Every action and every playback session carries its own token. Results
// and completion callbacks whose token is no longer current are dropped, so
// a late completion from a stopped session never causes a second
// transition.
//
// Transitions are delivered to subscribers in order, outside the machine's
// lock, so a subscriber may call back into the machine.
package workflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/haivivi/explainer/pkg/ai"
	"github.com/haivivi/explainer/pkg/audio/pcm"
	"github.com/haivivi/explainer/pkg/encoding"
	"github.com/haivivi/explainer/pkg/history"
	"github.com/haivivi/explainer/pkg/playback"
)

// Player plays one decoded buffer at a time. *playback.Controller implements
// it. onDone receives nil when the buffer played out and the device error
// when output failed partway.
type Player interface {
	Start(a *pcm.Audio, gain, rate float64, onDone func(error)) (*playback.Session, error)
	Stop()
	SetGain(v float64) float64
	SetRate(v float64) float64
}

// Config configures a Machine.
type Config struct {
	// Service generates scripts, summaries, answers and speech. Required.
	Service ai.Service

	// Player sounds the narration. Required.
	Player Player

	// History records analyzed and summarized inputs. Optional.
	History *history.Log

	// Gain and Rate are the initial playback settings. Zero selects 1.
	Gain float64
	Rate float64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Exchange is one question and its answer.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Snapshot is a copy of everything a presentation layer displays.
type Snapshot struct {
	State         State             `json:"state"`
	Message       string            `json:"message,omitempty"`
	Busy          bool              `json:"busy"`
	Input         string            `json:"input,omitempty"`
	Tone          ai.Tone           `json:"tone,omitempty"`
	Level         ai.Level          `json:"level,omitempty"`
	Script        string            `json:"script,omitempty"`
	Summary       *ai.Summary       `json:"summary,omitempty"`
	Exchanges     []Exchange        `json:"exchanges,omitempty"`
	HasAudio      bool              `json:"has_audio"`
	AudioDuration encoding.Duration `json:"audio_duration,omitempty"`
	Playing       bool              `json:"playing"`
	Gain          float64           `json:"gain"`
	Rate          float64           `json:"rate"`
}

// Machine is the workflow state machine. It is safe for concurrent use.
type Machine struct {
	svc     ai.Service
	player  Player
	history *history.Log
	logger  *slog.Logger

	mu        sync.Mutex
	closed    bool
	state     State
	message   string
	input     string
	tone      ai.Tone
	level     ai.Level
	script    string
	summary   *ai.Summary
	exchanges []Exchange
	audio     *pcm.Audio
	gain      float64
	rate      float64

	action    string // token of the in-flight action
	playToken string // token of the sounding session, "" when silent
	playErr   error  // output failure seen while Answering

	seq     uint64
	pending []Transition
	subs    map[int]func(Transition)
	nextSub int

	emitMu sync.Mutex
}

// New returns a Machine in Idle.
func New(cfg Config) *Machine {
	gain, rate := cfg.Gain, cfg.Rate
	if gain == 0 {
		gain = 1
	}
	if rate == 0 {
		rate = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		svc:     cfg.Service,
		player:  cfg.Player,
		history: cfg.History,
		logger:  logger,
		state:   Idle,
		tone:    ai.ToneNeutral,
		level:   ai.LevelBeginner,
		gain:    playback.ClampGain(gain),
		rate:    playback.ClampRate(rate),
		subs:    make(map[int]func(Transition)),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Busy reports whether an action is in flight.
func (m *Machine) Busy() bool {
	return m.State().Busy()
}

// Snapshot returns a copy of the machine's visible data.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		State:     m.state,
		Message:   m.message,
		Busy:      m.state.Busy(),
		Input:     m.input,
		Tone:      m.tone,
		Level:     m.level,
		Script:    m.script,
		Exchanges: append([]Exchange(nil), m.exchanges...),
		HasAudio:  m.audio != nil,
		Playing:   m.playToken != "",
		Gain:      m.gain,
		Rate:      m.rate,
	}
	if m.summary != nil {
		sum := *m.summary
		s.Summary = &sum
	}
	if m.audio != nil {
		s.AudioDuration = encoding.Duration(m.audio.Duration())
	}
	return s
}

// Subscribe registers fn for every later transition and returns a function
// that removes it. fn runs on the goroutine that caused the transition, after
// the machine's lock is released.
func (m *Machine) Subscribe(fn func(Transition)) (cancel func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// History returns the recorded inputs, newest first.
func (m *Machine) History(ctx context.Context) []string {
	if m.history == nil {
		return []string{}
	}
	return m.history.Load(ctx)
}

// SetGain changes the playback gain, live if audio is sounding, and returns
// the clamped value.
func (m *Machine) SetGain(v float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gain = m.player.SetGain(v)
	return m.gain
}

// SetRate changes the playback rate, live if audio is sounding, and returns
// the clamped value.
func (m *Machine) SetRate(v float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = m.player.SetRate(v)
	return m.rate
}

// Close stops playback and drops the results of in-flight actions.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.action = ""
	m.stopPlaybackLocked()
	m.mu.Unlock()
	return nil
}

// setStateLocked queues a transition. Callers hold m.mu and call flush after
// unlocking.
func (m *Machine) setStateLocked(to State, message string) {
	from := m.state
	m.state = to
	m.message = message
	m.seq++
	t := Transition{
		Seq:     m.seq,
		From:    from,
		To:      to,
		Message: message,
		At:      encoding.Now(),
	}
	m.pending = append(m.pending, t)
	if to == Error {
		m.logger.Info("workflow: transition", "from", from, "to", to, "message", message)
	} else {
		m.logger.Debug("workflow: transition", "from", from, "to", to)
	}
}

// flush delivers queued transitions. Only one goroutine delivers at a time;
// a transition queued while another goroutine is delivering is picked up by
// that goroutine.
func (m *Machine) flush() {
	for {
		if !m.emitMu.TryLock() {
			return
		}
		for {
			m.mu.Lock()
			batch := m.pending
			m.pending = nil
			subs := make([]func(Transition), 0, len(m.subs))
			for id := 0; id < m.nextSub; id++ {
				if fn, ok := m.subs[id]; ok {
					subs = append(subs, fn)
				}
			}
			m.mu.Unlock()

			if len(batch) == 0 {
				break
			}
			for _, t := range batch {
				for _, fn := range subs {
					fn(t)
				}
			}
		}
		m.emitMu.Unlock()

		m.mu.Lock()
		empty := len(m.pending) == 0
		m.mu.Unlock()
		if empty {
			return
		}
	}
}
