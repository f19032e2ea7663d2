// Package llm holds reel's conversation data model: messages, their optional
// reasoning side-channel, attachments, and conversations.
package llm

import (
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation.
//
// Content is mutable only while IsStreaming is true. At most the most recent
// assistant message of a conversation may be streaming.
type Message struct {
	ID          string          `json:"id"`
	Role        Role            `json:"role"`
	Content     string          `json:"content"`
	Timestamp   time.Time       `json:"timestamp"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	IsStreaming bool            `json:"isStreaming,omitempty"`
	Reasoning   *ReasoningBlock `json:"reasoning,omitempty"`
}

// ReasoningBlock is the "thinking" side-channel attached to an assistant
// message by providers that emit one.
type ReasoningBlock struct {
	Content     string `json:"content"`
	IsStreaming bool   `json:"isStreaming,omitempty"`

	// IsCollapsed is a display hint. It is false while streaming and flips
	// to true once reasoning completes.
	IsCollapsed bool     `json:"isCollapsed,omitempty"`
	Summary     []string `json:"summary,omitempty"`
}

// NewUserMessage creates a user message stamped with a fresh ID and the
// current time.
func NewUserMessage(content string, attachments []Attachment) Message {
	return Message{
		ID:          uuid.NewString(),
		Role:        RoleUser,
		Content:     content,
		Timestamp:   time.Now(),
		Attachments: attachments,
	}
}

// NewAssistantMessage creates a finalized assistant message. A nil or empty
// reasoning block is dropped.
func NewAssistantMessage(content string, reasoning *ReasoningBlock) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
	if reasoning != nil && reasoning.Content != "" {
		r := *reasoning
		r.IsStreaming = false
		r.IsCollapsed = true
		msg.Reasoning = &r
	}
	return msg
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Reasoning != nil {
		r := *m.Reasoning
		if r.Summary != nil {
			r.Summary = append([]string(nil), r.Summary...)
		}
		out.Reasoning = &r
	}
	return out
}
