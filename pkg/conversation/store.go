// Package conversation holds reel's application state: the list of
// conversations and which one is selected. All mutations go through Store
// methods, which serialize writers and hand snapshots to a Persister so the
// store itself never blocks on storage.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/logger"
	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/utils"
	"github.com/papercomputeco/reel/pkg/worker"
)

const (
	// TitleMaxRunes bounds a title derived from the first user message.
	TitleMaxRunes = 30

	// PlaceholderTitle is displayed for conversations without a title.
	PlaceholderTitle = "New conversation"
)

// ErrNothingToRetry is returned by PrepareRetry when the conversation has no
// user message to re-send.
var ErrNothingToRetry = errors.New("no user message to retry")

// Persister accepts storage jobs. *worker.Pool satisfies it.
type Persister interface {
	Enqueue(job worker.Job) bool
}

// Option configures a Store.
type Option func(*Store)

// WithPersister sends every mutation to p.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the conversation list plus the current selection. It always holds
// at least one conversation. Methods return deep copies; callers never share
// memory with the store.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*llm.Conversation
	currentID     string

	persister Persister
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Store holding one fresh conversation.
func New(opts ...Option) *Store {
	s := &Store{
		conversations: make(map[string]*llm.Conversation),
		logger:        logger.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.createLocked()
	return s
}

// Bootstrap replaces the store's contents with what driver holds and selects
// the most recently updated conversation. An empty driver leaves one fresh
// conversation. A failing driver is logged and treated as empty; persistence
// is a best-effort cache.
func (s *Store) Bootstrap(ctx context.Context, driver storage.Driver) {
	convs, err := driver.ListConversations(ctx)
	if err != nil {
		s.logger.Warn("loading conversations failed, starting empty", "error", err)
		convs = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make(map[string]*llm.Conversation, len(convs))
	s.currentID = ""
	for _, c := range convs {
		s.conversations[c.ID] = c.Clone()
	}

	if len(s.conversations) == 0 {
		s.createLocked()
		return
	}

	s.currentID = s.sortedLocked()[0].ID
	s.logger.Debug("conversations loaded", "count", len(s.conversations), "current", s.currentID)
}

// Current returns the selected conversation.
func (s *Store) Current() *llm.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.conversations[s.currentID].Clone()
}

// CurrentID returns the ID of the selected conversation.
func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.currentID
}

// Get returns a conversation by ID.
func (s *Store) Get(id string) (*llm.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	return conv.Clone(), nil
}

// List returns every conversation, most recently updated first.
func (s *Store) List() []*llm.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked()
	out := make([]*llm.Conversation, len(sorted))
	for i, c := range sorted {
		out[i] = c.Clone()
	}
	return out
}

// Create adds a new empty conversation and selects it.
func (s *Store) Create() *llm.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.createLocked()
	return conv.Clone()
}

// Select makes id the current conversation.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return storage.NotFoundError{ID: id}
	}
	s.currentID = id
	return nil
}

// Rename sets a conversation's title. An empty title is derived again from
// the first user message, so only a conversation without one falls back to
// the placeholder.
func (s *Store) Rename(id, title string) error {
	return s.mutate(id, nil, func(c *llm.Conversation) error {
		c.Title = strings.TrimSpace(title)
		return nil
	})
}

// Delete removes a conversation. Deleting the last conversation replaces it
// with a fresh one; deleting the current conversation selects the most
// recently updated remaining one. It returns the new current conversation.
func (s *Store) Delete(id string) (*llm.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	delete(s.conversations, id)
	s.persist(worker.Job{Op: worker.OpDelete, ConversationID: id})

	if len(s.conversations) == 0 {
		s.createLocked()
	} else if s.currentID == id {
		s.currentID = s.sortedLocked()[0].ID
	}

	return s.conversations[s.currentID].Clone(), nil
}

// Append adds messages to the end of a conversation. The first user message
// of an untitled conversation becomes its title.
func (s *Store) Append(id string, msgs ...llm.Message) error {
	return s.mutate(id, nil, func(c *llm.Conversation) error {
		for _, m := range msgs {
			c.Messages = append(c.Messages, m.Clone())
		}
		return nil
	})
}

// CommitTurn appends the outcome of one exchange: the user message, then the
// assistant message when one was produced. A completed turn is persisted
// together with its turn metadata so an event can be published for it.
func (s *Store) CommitTurn(id string, turn worker.Turn, completed bool) error {
	var jt *worker.Turn
	if completed {
		jt = &turn
	}

	return s.mutate(id, jt, func(c *llm.Conversation) error {
		c.Messages = append(c.Messages, turn.User.Clone())
		if completed {
			c.Messages = append(c.Messages, turn.Assistant.Clone())
		}
		return nil
	})
}

// Replace swaps a conversation's entire message list.
func (s *Store) Replace(id string, msgs []llm.Message) error {
	return s.mutate(id, nil, func(c *llm.Conversation) error {
		c.Messages = make([]llm.Message, len(msgs))
		for i, m := range msgs {
			c.Messages[i] = m.Clone()
		}
		return nil
	})
}

// ClearMessages empties a conversation and resets its title.
func (s *Store) ClearMessages(id string) error {
	return s.mutate(id, nil, func(c *llm.Conversation) error {
		c.Messages = []llm.Message{}
		c.Title = ""
		return nil
	})
}

// History returns a conversation's messages in order.
func (s *Store) History(id string) ([]llm.Message, error) {
	conv, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return conv.Messages, nil
}

// PrepareRetry removes the last exchange so the last user turn can be sent
// again: a trailing assistant message is dropped, then the last user message
// is removed and returned. The caller re-sends its content and attachments.
func (s *Store) PrepareRetry(id string) (llm.Message, error) {
	var retried llm.Message

	err := s.mutate(id, nil, func(c *llm.Conversation) error {
		msgs := c.Messages
		if n := len(msgs); n > 0 && msgs[n-1].Role == llm.RoleAssistant {
			msgs = msgs[:n-1]
		}

		n := len(msgs)
		if n == 0 || msgs[n-1].Role != llm.RoleUser {
			return ErrNothingToRetry
		}

		retried = msgs[n-1].Clone()
		c.Messages = msgs[:n-1]
		return nil
	})

	return retried, err
}

// Reset removes every conversation, including persisted ones, and leaves a
// single fresh conversation.
func (s *Store) Reset() *llm.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make(map[string]*llm.Conversation)
	s.persist(worker.Job{Op: worker.OpClear})

	return s.createLocked().Clone()
}

// Import replaces the store's contents with convs and selects the most
// recently updated one. Conversations without an ID are skipped.
func (s *Store) Import(convs []*llm.Conversation) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make(map[string]*llm.Conversation, len(convs))
	s.persist(worker.Job{Op: worker.OpClear})

	for _, c := range convs {
		if c == nil || c.ID == "" {
			continue
		}
		cp := c.Clone()
		if cp.Messages == nil {
			cp.Messages = []llm.Message{}
		}
		s.conversations[cp.ID] = cp
		s.persist(worker.Job{Op: worker.OpSave, Conversation: cp.Clone()})
	}

	imported := len(s.conversations)
	if imported == 0 {
		s.createLocked()
	} else {
		s.currentID = s.sortedLocked()[0].ID
	}

	return imported
}

// DisplayTitle returns the title shown for a conversation.
func DisplayTitle(c *llm.Conversation) string {
	if c == nil || c.Title == "" {
		return PlaceholderTitle
	}
	return c.Title
}

// DeriveTitle builds a title from the first non-empty user message.
func DeriveTitle(msgs []llm.Message) string {
	for _, m := range msgs {
		if m.Role != llm.RoleUser {
			continue
		}
		text := strings.Join(strings.Fields(m.Content), " ")
		if text == "" {
			continue
		}
		return utils.Truncate(text, TitleMaxRunes)
	}
	return ""
}

// mutate applies fn to a conversation under the write lock, refreshes
// UpdatedAt, derives a missing title and persists the result.
func (s *Store) mutate(id string, turn *worker.Turn, fn func(*llm.Conversation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return storage.NotFoundError{ID: id}
	}

	if err := fn(conv); err != nil {
		return err
	}

	conv.UpdatedAt = s.now()
	if conv.Title == "" {
		conv.Title = DeriveTitle(conv.Messages)
	}

	s.persist(worker.Job{Op: worker.OpSave, Conversation: conv.Clone(), Turn: turn})
	return nil
}

// createLocked adds and selects a fresh conversation. It is persisted on its
// first mutation. Callers hold s.mu.
func (s *Store) createLocked() *llm.Conversation {
	conv := llm.NewConversation()
	now := s.now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	s.conversations[conv.ID] = conv
	s.currentID = conv.ID

	return conv
}

// sortedLocked returns the live conversations ordered by UpdatedAt, newest
// first, ties broken by CreatedAt then ID. Callers hold s.mu.
func (s *Store) sortedLocked() []*llm.Conversation {
	out := make([]*llm.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return out
}

func (s *Store) persist(job worker.Job) {
	if s.persister == nil {
		return
	}
	if !s.persister.Enqueue(job) {
		s.logger.Warn("conversation change not persisted", "op", job.Op.String())
	}
}
