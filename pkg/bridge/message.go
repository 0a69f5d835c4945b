package bridge

import (
	"github.com/haivivi/explainer/pkg/encoding"
	"github.com/haivivi/explainer/pkg/workflow"
)

// Request types sent by clients.
const (
	TypeAnalyze   = "analyze"
	TypeSummarize = "summarize"
	TypeAnswer    = "answer"
	TypeStop      = "stop"
	TypeReplay    = "replay"
	TypeGain      = "gain"
	TypeRate      = "rate"
	TypeSnapshot  = "snapshot"
	TypeHistory   = "history"
	TypeExport    = "export"
	TypeFetch     = "fetch"
	TypeDelete    = "delete"
)

// Event types sent to clients, besides TypeSnapshot, TypeHistory, TypeExport
// and TypeFetch replies.
const (
	TypeTransition = "transition"
	TypeAck        = "ack"
	TypeDone       = "done"
	TypeError      = "error"
)

// Request is one client command. ID is echoed on every reply to it.
type Request struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`

	// analyze, summarize
	Text  string `json:"text,omitempty"`
	Tone  string `json:"tone,omitempty"`
	Level string `json:"level,omitempty"`

	// answer
	Question string `json:"question,omitempty"`

	// gain, rate
	Value float64 `json:"value,omitempty"`

	// export: What is "audio" or "script". Rate renders the playback rate
	// into the audio. Save also writes the file to the export store.
	What string  `json:"what,omitempty"`
	Rate float64 `json:"rate,omitempty"`
	Save bool    `json:"save,omitempty"`

	// fetch, delete: Name of a saved export. Defaults to the export file
	// for What.
	Name string `json:"name,omitempty"`
}

// Event is one server message.
type Event struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`

	Transition *workflow.Transition `json:"transition,omitempty"`
	Snapshot   *workflow.Snapshot   `json:"snapshot,omitempty"`
	History    []string             `json:"history,omitempty"`
	Value      *float64             `json:"value,omitempty"`
	File       *File                `json:"file,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// File is an exported file.
type File struct {
	Name        string                 `json:"name"`
	ContentType string                 `json:"content_type"`
	Data        encoding.StdBase64Data `json:"data"`
	// Location is set when the file was saved to the export store.
	Location string `json:"location,omitempty"`
}
