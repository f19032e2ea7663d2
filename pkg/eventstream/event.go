// Package eventstream defines the events reel emits after a chat turn is
// persisted, and the Publisher interface event backends implement.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/reel/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after a completed turn is persisted.
	EventTypeTurnCompleted = "reel.turn.completed"
)

// TurnCompletedEvent is a transport-neutral event payload for a completed turn.
type TurnCompletedEvent struct {
	SchemaVersion int              `json:"schema_version"`
	EventType     string           `json:"event_type"`
	EventID       string           `json:"event_id"`
	EmittedAt     time.Time        `json:"emitted_at"`
	Source        EventSource      `json:"source"`
	RequestMeta   TurnRequestMeta  `json:"request_meta"`
	Conversation  ConversationMeta `json:"conversation"`
	Turn          Turn             `json:"turn"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	// Surface is "cli" or "server".
	Surface string `json:"surface"`
	Model   string `json:"model"`
	APIURL  string `json:"api_url,omitempty"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Reasoning   bool      `json:"reasoning"`
	Attachments int       `json:"attachments"`
}

// ConversationMeta describes the conversation after the turn was appended.
type ConversationMeta struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
}

// Turn is the user message and the assistant reply it produced.
type Turn struct {
	User      llm.Message `json:"user"`
	Assistant llm.Message `json:"assistant"`
}

// NewTurnCompletedEvent stamps a new event with a fresh ID and the current time.
func NewTurnCompletedEvent(source EventSource, meta TurnRequestMeta, conv ConversationMeta, turn Turn) *TurnCompletedEvent {
	return &TurnCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		RequestMeta:   meta,
		Conversation:  conv,
		Turn:          turn,
	}
}
