package workflow

import (
	"errors"
	"fmt"

	"github.com/haivivi/explainer/pkg/encoding"
)

// State is the observable workflow state.
type State int

const (
	Idle State = iota
	Analyzing
	Synthesizing
	Playing
	Summarizing
	Answering
	// Error holds until the next user action. The message is carried by the
	// Transition and Snapshot.
	Error
)

var stateNames = [...]string{
	Idle:         "Idle",
	Analyzing:    "Analyzing",
	Synthesizing: "Synthesizing",
	Playing:      "Playing",
	Summarizing:  "Summarizing",
	Answering:    "Answering",
	Error:        "Error",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("workflow: unknown state %q", b)
}

// Busy reports whether an action is in flight. New analyze, summarize and
// answer submissions are rejected while busy.
func (s State) Busy() bool {
	switch s {
	case Analyzing, Synthesizing, Summarizing, Answering:
		return true
	}
	return false
}

// Transition is one state change, delivered to subscribers in order.
type Transition struct {
	Seq     uint64          `json:"seq"`
	From    State           `json:"from"`
	To      State           `json:"to"`
	Message string          `json:"message,omitempty"`
	At      encoding.Millis `json:"at"`
}

func (t Transition) String() string {
	if t.Message != "" {
		return fmt.Sprintf("%v→%v (%s)", t.From, t.To, t.Message)
	}
	return fmt.Sprintf("%v→%v", t.From, t.To)
}

var (
	// ErrBusy rejects a submission while another action is in flight.
	ErrBusy = errors.New("workflow: busy")

	// ErrValidation rejects empty or whitespace-only input.
	ErrValidation = errors.New("workflow: input is empty")

	// ErrNoText is returned by Answer before any text was loaded.
	ErrNoText = errors.New("workflow: no text loaded")

	// ErrNoAudio is returned by Replay and audio exports without a
	// synthesized narration.
	ErrNoAudio = errors.New("workflow: no audio")

	// ErrNoScript is returned by ExportScript before a script exists.
	ErrNoScript = errors.New("workflow: no script")

	// ErrSuperseded is returned by an action whose result arrived after the
	// machine moved on (for example after Close).
	ErrSuperseded = errors.New("workflow: action superseded")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("workflow: closed")
)
