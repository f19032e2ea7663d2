// Package storage defines how conversations are persisted. Persistence is a
// best-effort local cache: the in-process conversation store is the source of
// truth while reel runs, and a Driver is what it is reloaded from.
package storage

import (
	"context"

	"github.com/papercomputeco/reel/pkg/llm"
)

// Driver defines the interface for persisting and retrieving conversations in
// a storage backend.
type Driver interface {
	// SaveConversation inserts or replaces a conversation, messages included.
	SaveConversation(ctx context.Context, conv *llm.Conversation) error

	// GetConversation retrieves a conversation by ID. Returns a NotFoundError
	// when it does not exist.
	GetConversation(ctx context.Context, id string) (*llm.Conversation, error)

	// ListConversations returns every conversation, most recently updated first.
	ListConversations(ctx context.Context) ([]*llm.Conversation, error)

	// DeleteConversation removes a conversation. Deleting a missing
	// conversation is not an error.
	DeleteConversation(ctx context.Context, id string) error

	// Clear removes every conversation.
	Clear(ctx context.Context) error

	// Close closes the store and releases any resources.
	Close() error
}

// TrimMessages returns conv with at most limit of its most recent messages.
// A limit of zero or less keeps everything. conv itself is not modified.
func TrimMessages(conv *llm.Conversation, limit int) *llm.Conversation {
	if limit <= 0 || len(conv.Messages) <= limit {
		return conv
	}

	out := *conv
	out.Messages = conv.Messages[len(conv.Messages)-limit:]
	return &out
}
