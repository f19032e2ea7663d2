// Package sqlstore implements storage.Driver over database/sql. It is shared
// by the SQLite and PostgreSQL drivers, which differ only in how they open
// the connection and in placeholder syntax.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/storage"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	// SQLite uses "?" placeholders.
	SQLite Dialect = iota

	// Postgres uses "$1", "$2", ... placeholders.
	Postgres
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		messages   TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS conversations_updated_at_idx ON conversations (updated_at)`,
}

// Store implements storage.Driver on a *sql.DB. Messages are stored as a
// JSON document per conversation; timestamps as unix milliseconds.
type Store struct {
	DB      *sql.DB
	dialect Dialect
}

// New wraps db and creates the schema if needed. The Store takes ownership
// of db and closes it on Close.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{DB: db, dialect: dialect}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return s, nil
}

// SaveConversation upserts conv.
func (s *Store) SaveConversation(ctx context.Context, conv *llm.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}

	messages := conv.Messages
	if messages == nil {
		messages = []llm.Message{}
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}

	_, err = s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO conversations (id, title, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			messages = excluded.messages,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`),
		conv.ID,
		conv.Title,
		string(encoded),
		conv.CreatedAt.UnixMilli(),
		conv.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving conversation %s: %w", conv.ID, err)
	}

	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*llm.Conversation, error) {
	row := s.DB.QueryRowContext(ctx, s.rebind(`
		SELECT id, title, messages, created_at, updated_at
		FROM conversations WHERE id = ?`), id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}

	return conv, nil
}

// ListConversations returns every conversation, most recently updated first.
func (s *Store) ListConversations(ctx context.Context) ([]*llm.Conversation, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, title, messages, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []*llm.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	return out, nil
}

// DeleteConversation removes a conversation.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.DB.ExecContext(ctx, s.rebind(`DELETE FROM conversations WHERE id = ?`), id); err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	return nil
}

// Clear removes every conversation.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clearing conversations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*llm.Conversation, error) {
	var (
		conv             llm.Conversation
		messages         string
		created, updated int64
	)

	if err := row.Scan(&conv.ID, &conv.Title, &messages, &created, &updated); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(messages), &conv.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages of %s: %w", conv.ID, err)
	}
	if conv.Messages == nil {
		conv.Messages = []llm.Message{}
	}

	conv.CreatedAt = time.UnixMilli(created)
	conv.UpdatedAt = time.UnixMilli(updated)

	return &conv, nil
}

// rebind rewrites "?" placeholders for the store's dialect.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
