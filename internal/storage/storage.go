package storage

import (
	"time"

	"meowpedia/internal/llm"
)

// Event is one completed turn: the user's question and whatever was shown back.
// Events are appended in chronological order.
type Event struct {
	Timestamp         time.Time      `json:"timestamp"`
	SessionID         string         `json:"session_id"`
	Frontend          string         `json:"frontend"`
	UserMessage       string         `json:"user_message"`
	AssistantResponse string         `json:"assistant_response"`
	IsError           bool           `json:"is_error,omitempty"`
	Citations         []llm.Citation `json:"citations,omitempty"`
	Model             string         `json:"model,omitempty"`
}

// Recorder abstracts persistence of turn events.
// LoadInteractions returns events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) AppendInteraction(Event) error      { return nil }
func (Nop) LoadInteractions() ([]Event, error) { return nil, nil }
