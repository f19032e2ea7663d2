// Package jsonfile provides a storage driver that keeps every conversation in
// a single JSON document on disk. It is reel's default: zero setup, readable,
// and easy to back up.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/storage"
)

// FileName is the default file name inside the .reel directory.
const FileName = "conversations.json"

// fileVersion is written into every document.
const fileVersion = 1

type document struct {
	Version       int                 `json:"version"`
	Conversations []*llm.Conversation `json:"conversations"`
}

// Driver implements storage.Driver on a JSON file. The whole document is
// held in memory and rewritten atomically after every mutation.
type Driver struct {
	mu            sync.RWMutex
	path          string
	conversations map[string]*llm.Conversation
}

// NewDriver opens (or creates on first write) the document at path.
func NewDriver(path string) (*Driver, error) {
	d := &Driver{
		path:          path,
		conversations: make(map[string]*llm.Conversation),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return d, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, conv := range doc.Conversations {
		if conv == nil || conv.ID == "" {
			continue
		}
		if conv.Messages == nil {
			conv.Messages = []llm.Message{}
		}
		d.conversations[conv.ID] = conv
	}

	return d, nil
}

// Path returns the document location.
func (d *Driver) Path() string {
	return d.path
}

// SaveConversation upserts conv and rewrites the document.
func (d *Driver) SaveConversation(_ context.Context, conv *llm.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev, existed := d.conversations[conv.ID]
	d.conversations[conv.ID] = conv.Clone()

	if err := d.flush(); err != nil {
		if existed {
			d.conversations[conv.ID] = prev
		} else {
			delete(d.conversations, conv.ID)
		}
		return err
	}

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

	return d.sorted(), nil
}

// DeleteConversation removes a conversation and rewrites the document.
func (d *Driver) DeleteConversation(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.conversations[id]
	if !ok {
		return nil
	}

	delete(d.conversations, id)
	if err := d.flush(); err != nil {
		d.conversations[id] = prev
		return err
	}

	return nil
}

// Clear removes the document from disk.
func (d *Driver) Clear(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", d.path, err)
	}

	d.conversations = make(map[string]*llm.Conversation)
	return nil
}

// Close is a no-op; every mutation is already on disk.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) sorted() []*llm.Conversation {
	out := make([]*llm.Conversation, 0, len(d.conversations))
	for _, conv := range d.conversations {
		out = append(out, conv.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	return out
}

// flush writes the document to a temp file and renames it over the target.
// Callers must hold d.mu.
func (d *Driver) flush() error {
	data, err := json.MarshalIndent(document{
		Version:       fileVersion,
		Conversations: d.sorted(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conversations: %w", err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".conversations-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", d.path, err)
	}

	return nil
}
