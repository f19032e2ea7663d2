package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/reel/pkg/chat"
	"github.com/papercomputeco/reel/pkg/conversation"
	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/stream"
)

var (
	listToolName    = "list_conversations"
	listDescription = "List stored reel conversations, most recently updated first, with their IDs, titles and message counts."

	getToolName    = "get_conversation"
	getDescription = "Return every message of a stored reel conversation. Assistant messages include the model's reasoning when it streamed any."

	sendToolName    = "send_message"
	sendDescription = "Send a message to the configured model within a reel conversation and return the complete reply. Omit conversation_id to start a new conversation."
)

// ListInput represents the input arguments for the list_conversations tool.
type ListInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of conversations to return (default: all)"`
}

// ConversationSummary is one entry of a conversation listing.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    string `json:"updated_at"`
}

// ListOutput represents the output of the list_conversations tool.
type ListOutput struct {
	Conversations []ConversationSummary `json:"conversations"`
	Count         int                   `json:"count"`
}

// GetInput represents the input arguments for the get_conversation tool.
type GetInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"the ID of the conversation to read"`
}

// Turn is a single message of a conversation.
type Turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

// GetOutput represents the output of the get_conversation tool.
type GetOutput struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Messages []Turn `json:"messages"`
}

// SendInput represents the input arguments for the send_message tool.
type SendInput struct {
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"the conversation to continue; a new one is started when empty"`
	Message        string `json:"message" jsonschema:"the user message to send"`
	Reasoning      *bool  `json:"reasoning,omitempty" jsonschema:"ask the provider to stream its reasoning (default: configured value)"`
}

// SendOutput represents the output of the send_message tool.
type SendOutput struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	Reasoning      string `json:"reasoning,omitempty"`
}

func (s *Server) handleList(_ context.Context, _ *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, ListOutput, error) {
	convs := s.config.Chat.Store().List()
	if input.Limit > 0 && len(convs) > input.Limit {
		convs = convs[:input.Limit]
	}

	output := ListOutput{Conversations: make([]ConversationSummary, 0, len(convs))}
	for _, c := range convs {
		output.Conversations = append(output.Conversations, ConversationSummary{
			ID:           c.ID,
			Title:        conversation.DisplayTitle(c),
			MessageCount: len(c.Messages),
			UpdatedAt:    c.UpdatedAt.Format(time.RFC3339),
		})
	}
	output.Count = len(output.Conversations)

	return textResult(output)
}

func (s *Server) handleGet(_ context.Context, _ *mcp.CallToolRequest, input GetInput) (*mcp.CallToolResult, GetOutput, error) {
	if input.ConversationID == "" {
		return toolError("conversation_id is required"), GetOutput{}, nil
	}

	conv, err := s.config.Chat.Store().Get(input.ConversationID)
	if err != nil {
		return toolError("Conversation lookup failed: %v", err), GetOutput{}, nil
	}

	output := GetOutput{
		ID:       conv.ID,
		Title:    conversation.DisplayTitle(conv),
		Messages: make([]Turn, 0, len(conv.Messages)),
	}
	for _, m := range conv.Messages {
		output.Messages = append(output.Messages, turnOf(m))
	}

	return textResult(output)
}

func (s *Server) handleSend(ctx context.Context, _ *mcp.CallToolRequest, input SendInput) (*mcp.CallToolResult, SendOutput, error) {
	logger := s.config.Logger

	if input.Message == "" {
		return toolError("message is required"), SendOutput{}, nil
	}

	id := input.ConversationID
	if id == "" {
		id = s.config.Chat.Store().Create().ID
	}

	logger.Debug("MCP send request", "conversation", id)

	result, err := s.config.Chat.Send(ctx, chat.SendRequest{
		ConversationID: id,
		Prompt:         input.Message,
		Reasoning:      input.Reasoning,
	}, stream.Callbacks{})
	switch {
	case errors.Is(err, chat.ErrBusy):
		return toolError("Conversation %s is already streaming a reply", id), SendOutput{}, nil
	case errors.As(err, &storage.NotFoundError{}):
		return toolError("Conversation %s not found", id), SendOutput{}, nil
	case err != nil:
		logger.Error("MCP send failed", "conversation", id, "error", err)
		return toolError("Send failed: %v", err), SendOutput{}, nil
	}

	if result.Message == nil {
		return toolError("The model did not complete a reply: %v", result.Err), SendOutput{}, nil
	}

	output := SendOutput{
		ConversationID: id,
		Reply:          result.Message.Content,
	}
	if r := result.Message.Reasoning; r != nil {
		output.Reasoning = r.Content
	}

	return textResult(output)
}

func turnOf(m llm.Message) Turn {
	t := Turn{Role: string(m.Role), Content: m.Content}
	if m.Reasoning != nil {
		t.Reasoning = m.Reasoning.Content
	}
	return t
}

// textResult returns output both as structured content and as JSON text for
// clients that only read text.
func textResult[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return toolError("Failed to serialize results: %v", err), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
