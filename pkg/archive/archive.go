// Package archive reads and writes reel's portable JSON export: every
// conversation plus the configuration with secrets hidden.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/conversation"
	"github.com/papercomputeco/reel/pkg/llm"
)

const (
	// Version is written to every export. Imports accept any 1.x document.
	Version = "1.0.0"

	// Hidden replaces secrets in exported configuration.
	Hidden = "[HIDDEN]"
)

// ErrInvalid is returned for input that is not an export document.
var ErrInvalid = errors.New("invalid export document")

// Config is the exported configuration. APIKey is always Hidden on export
// and ignored on import; keys stay in the credentials file.
type Config struct {
	APIKey string `json:"api_key"`
	config.Config
}

// Document is the export file layout.
type Document struct {
	Version    string    `json:"version"`
	ExportTime time.Time `json:"export_time"`
	Config     *Config   `json:"config,omitempty"`

	Conversations []*llm.Conversation `json:"conversations"`

	// Messages is a flat history written by older single-conversation
	// exports. Read folds it into Conversations.
	Messages []llm.Message `json:"messages,omitempty"`
}

// New builds a document from the current state. cfg may be nil.
func New(cfg *config.Config, convs []*llm.Conversation, now time.Time) *Document {
	doc := &Document{
		Version:       Version,
		ExportTime:    now.UTC(),
		Conversations: make([]*llm.Conversation, 0, len(convs)),
	}

	for _, c := range convs {
		if c != nil {
			doc.Conversations = append(doc.Conversations, c.Clone())
		}
	}

	if cfg != nil {
		redacted := *cfg
		if redacted.Storage.PostgresDSN != "" {
			redacted.Storage.PostgresDSN = Hidden
		}
		doc.Config = &Config{APIKey: Hidden, Config: redacted}
	}

	return doc
}

// Write encodes doc as indented JSON.
func Write(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return nil
}

// Read decodes and validates an export document.
func Read(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if doc.Version != "" && !strings.HasPrefix(doc.Version, "1.") {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalid, doc.Version)
	}

	if len(doc.Messages) > 0 {
		doc.Conversations = append(doc.Conversations, legacyConversation(doc.Messages))
		doc.Messages = nil
	}

	for _, c := range doc.Conversations {
		if c != nil && c.Messages == nil {
			c.Messages = []llm.Message{}
		}
	}

	return &doc, nil
}

// ImportedConfig returns the document's configuration for saving, with
// hidden values restored from current. It returns nil when the document
// carries no configuration.
func (d *Document) ImportedConfig(current *config.Config) *config.Config {
	if d.Config == nil {
		return nil
	}

	cfg := d.Config.Config
	if cfg.Storage.PostgresDSN == Hidden {
		cfg.Storage.PostgresDSN = ""
		if current != nil {
			cfg.Storage.PostgresDSN = current.Storage.PostgresDSN
		}
	}
	return &cfg
}

func legacyConversation(msgs []llm.Message) *llm.Conversation {
	conv := llm.NewConversation()
	conv.Messages = msgs
	conv.Title = conversation.DeriveTitle(msgs)

	var first, last time.Time
	for i := range conv.Messages {
		m := &conv.Messages[i]
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Timestamp.IsZero() {
			continue
		}
		if first.IsZero() || m.Timestamp.Before(first) {
			first = m.Timestamp
		}
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}

	if !first.IsZero() {
		conv.CreatedAt = first
		conv.UpdatedAt = last
	}

	return conv
}
