package server

import (
	"bytes"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/reel/pkg/archive"
	"github.com/papercomputeco/reel/pkg/conversation"
	"github.com/papercomputeco/reel/pkg/storage"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConversationSummary is a conversation without its messages.
type ConversationSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
	Current      bool   `json:"current"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	Streaming    bool   `json:"streaming"`
}

// ListResponse is returned by GET /conversations.
type ListResponse struct {
	Count         int                   `json:"count"`
	CurrentID     string                `json:"current_id"`
	Conversations []ConversationSummary `json:"conversations"`
}

// RenameRequest is the body of PATCH /conversations/:id.
type RenameRequest struct {
	Title string `json:"title"`
}

// DeleteResponse reports the conversation selected after a delete.
type DeleteResponse struct {
	Deleted   string `json:"deleted"`
	CurrentID string `json:"current_id"`
}

// ImportResponse is returned by POST /import.
type ImportResponse struct {
	Imported int `json:"imported"`
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	store := s.chat.Store()
	currentID := store.CurrentID()
	convs := store.List()

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summaries = append(summaries, ConversationSummary{
			ID:           conv.ID,
			Title:        conversation.DisplayTitle(conv),
			MessageCount: len(conv.Messages),
			Current:      conv.ID == currentID,
			CreatedAt:    conv.CreatedAt.UTC().Format(timeLayout),
			UpdatedAt:    conv.UpdatedAt.UTC().Format(timeLayout),
			Streaming:    s.chat.Busy(conv.ID),
		})
	}

	return c.JSON(ListResponse{
		Count:         len(summaries),
		CurrentID:     currentID,
		Conversations: summaries,
	})
}

func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	conv := s.chat.Store().Create()
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	conv, err := s.chat.Store().Get(c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(conv)
}

func (s *Server) handleRenameConversation(c *fiber.Ctx) error {
	var req RenameRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.Title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "title is required"})
	}

	id := c.Params("id")
	if err := s.chat.Store().Rename(id, req.Title); err != nil {
		return s.storeError(c, err)
	}

	conv, err := s.chat.Store().Get(id)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(conv)
}

func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	if s.chat.Busy(id) {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "a response is streaming for this conversation"})
	}

	current, err := s.chat.Store().Delete(id)
	if err != nil {
		return s.storeError(c, err)
	}

	return c.JSON(DeleteResponse{Deleted: id, CurrentID: current.ID})
}

func (s *Server) handleSelectConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.chat.Store().Select(id); err != nil {
		return s.storeError(c, err)
	}

	conv, err := s.chat.Store().Get(id)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(conv)
}

func (s *Server) handleClearMessages(c *fiber.Ctx) error {
	id := c.Params("id")
	if s.chat.Busy(id) {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "a response is streaming for this conversation"})
	}

	if err := s.chat.Store().ClearMessages(id); err != nil {
		return s.storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.chat.Store().Get(id); err != nil {
		return s.storeError(c, err)
	}

	return c.JSON(map[string]bool{"cancelled": s.chat.Cancel(id)})
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	cfg := s.chat.Config()
	doc := archive.New(&cfg, s.chat.Store().List(), s.now())

	var buf bytes.Buffer
	if err := archive.Write(&buf, doc); err != nil {
		s.logger.Error("export failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "export failed"})
	}

	filename := "reel-export-" + s.now().Format("2006-01-02") + ".json"
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	c.Attachment(filename)
	return c.Send(buf.Bytes())
}

// handleImport replaces the stored conversations with those of an export
// document. Configuration in the document is ignored; it is restored with
// "reel conversations import" on the machine that owns the config file.
func (s *Server) handleImport(c *fiber.Ctx) error {
	if s.anyBusy() {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "a response is still streaming"})
	}

	doc, err := archive.Read(bytes.NewReader(c.Body()))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	n := s.chat.Store().Import(doc.Conversations)
	s.logger.Info("conversations imported", "count", n)

	return c.JSON(ImportResponse{Imported: n})
}

func (s *Server) handleClear(c *fiber.Ctx) error {
	if s.anyBusy() {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "a response is still streaming"})
	}

	conv := s.chat.Store().Reset()
	return c.JSON(conv)
}

func (s *Server) anyBusy() bool {
	for _, conv := range s.chat.Store().List() {
		if s.chat.Busy(conv.ID) {
			return true
		}
	}
	return false
}

// storeError maps conversation store errors onto HTTP responses.
func (s *Server) storeError(c *fiber.Ctx, err error) error {
	var nf storage.NotFoundError
	switch {
	case errors.As(err, &nf):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	case errors.Is(err, conversation.ErrNothingToRetry):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("store operation failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
	}
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

