// Package inmemory provides a map-backed storage driver, used for ephemeral
// sessions and in tests.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of conversations
	mu sync.RWMutex

	// conversations holds deep copies keyed by conversation ID
	conversations map[string]*llm.Conversation
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		conversations: make(map[string]*llm.Conversation),
	}
}

// SaveConversation stores a copy of conv.
func (d *Driver) SaveConversation(_ context.Context, conv *llm.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.conversations[conv.ID] = conv.Clone()
	return nil
}

// GetConversation returns a copy of the stored conversation.
func (d *Driver) GetConversation(_ context.Context, id string) (*llm.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	conv, ok := d.conversations[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return conv.Clone(), nil
}

// ListConversations returns copies of every conversation, most recently
// updated first.
func (d *Driver) ListConversations(_ context.Context) ([]*llm.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*llm.Conversation, 0, len(d.conversations))
	for _, conv := range d.conversations {
		out = append(out, conv.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	return out, nil
}

// DeleteConversation removes a conversation.
func (d *Driver) DeleteConversation(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.conversations, id)
	return nil
}

// Clear removes every conversation.
func (d *Driver) Clear(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.conversations = make(map[string]*llm.Conversation)
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
