package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/reel/pkg/attachment"
	"github.com/papercomputeco/reel/pkg/chat"
	"github.com/papercomputeco/reel/pkg/sse"
	"github.com/papercomputeco/reel/pkg/stream"
)

// Session event types written to the browser.
const (
	EventStart             = "start"
	EventReasoningStart    = "reasoning_start"
	EventReasoningToken    = "reasoning_token"
	EventReasoningComplete = "reasoning_complete"
	EventToken             = "token"
	EventComplete          = "complete"
	EventError             = "error"
)

// SendRequest is the body of POST /conversations/:id/messages.
type SendRequest struct {
	Content     string           `json:"content"`
	Attachments []AttachmentBody `json:"attachments,omitempty"`
	Reasoning   *bool            `json:"reasoning,omitempty"`
	Model       string           `json:"model,omitempty"`
}

// AttachmentBody is an uploaded file. Data is base64 in JSON.
type AttachmentBody struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data"`
}

// RetryRequest is the optional body of POST /conversations/:id/retry.
type RetryRequest struct {
	Reasoning *bool `json:"reasoning,omitempty"`
}

type textPayload struct {
	Text string `json:"text"`
}

type reasoningPayload struct {
	Content string   `json:"content"`
	Summary []string `json:"summary,omitempty"`
}

type completePayload struct {
	Content   string            `json:"content"`
	Reasoning *reasoningPayload `json:"reasoning,omitempty"`
}

type errorPayload struct {
	Message   string `json:"message"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Status    int    `json:"status,omitempty"`
}

type startPayload struct {
	ConversationID string `json:"conversation_id"`
}

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	id := c.Params("id")

	var req SendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content or attachments required"})
	}

	if status, msg := s.unavailable(id); status != 0 {
		return c.Status(status).JSON(ErrorResponse{Error: msg})
	}

	files := make([]attachment.File, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		mimeType := a.MimeType
		if mimeType == "" {
			mimeType = attachment.DetectType(a.Name, a.Data)
		}
		files = append(files, attachment.File{Name: a.Name, MimeType: mimeType, Data: a.Data})
	}
	attachments, err := attachment.ProcessAll(files)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Error: err.Error()})
	}

	return s.streamSession(c, id, func(ctx context.Context, cb stream.Callbacks) (*stream.Result, error) {
		return s.chat.Send(ctx, chat.SendRequest{
			ConversationID: id,
			Prompt:         req.Content,
			Attachments:    attachments,
			Reasoning:      req.Reasoning,
			Model:          req.Model,
		}, cb)
	})
}

func (s *Server) handleRetry(c *fiber.Ctx) error {
	id := c.Params("id")

	var req RetryRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
		}
	}

	if status, msg := s.unavailable(id); status != 0 {
		return c.Status(status).JSON(ErrorResponse{Error: msg})
	}

	// Fail before the stream opens when there is nothing to retry.
	conv, err := s.chat.Store().Get(id)
	if err != nil {
		return s.storeError(c, err)
	}
	if len(conv.Messages) == 0 {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "no user message to retry"})
	}

	return s.streamSession(c, id, func(ctx context.Context, cb stream.Callbacks) (*stream.Result, error) {
		return s.chat.Retry(ctx, id, req.Reasoning, cb)
	})
}

// unavailable reports why a session cannot start for a conversation, as a
// status code and message. A zero status means it can start.
func (s *Server) unavailable(id string) (int, string) {
	if _, err := s.chat.Store().Get(id); err != nil {
		return fiber.StatusNotFound, err.Error()
	}
	if s.chat.Busy(id) {
		return fiber.StatusConflict, chat.ErrBusy.Error()
	}
	return 0, ""
}

type runFunc func(ctx context.Context, cb stream.Callbacks) (*stream.Result, error)

// streamSession runs a session in the background and streams its callbacks
// to the response as SSE events.
//
// The session writes through an io.Pipe rather than SetBodyStreamWriter:
// pw.Write blocks until fasthttp has consumed the event, so every event is
// flushed to the socket as it is produced. A failed write means the browser
// went away and cancels the session.
func (s *Server) streamSession(c *fiber.Ctx, id string, run runFunc) error {
	s.headerHandler.SetStreamResponseHeaders(c, id)
	c.Status(fiber.StatusOK)

	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	w := &eventWriter{pw: pw, cancel: cancel}

	go func() {
		defer cancel()

		res, err := run(ctx, s.callbacks(id, w))
		switch {
		case errors.Is(err, chat.ErrBusy):
			w.write(EventError, errorPayload{Message: err.Error(), Status: fiber.StatusConflict})
		case err != nil:
			w.write(EventError, errorPayload{Message: err.Error()})
		default:
			s.logger.Debug("session streamed", "conversation", id, "state", res.State.String())
		}

		_ = pw.Close()
	}()

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

func (s *Server) callbacks(id string, w *eventWriter) stream.Callbacks {
	return stream.Callbacks{
		OnStart: func() {
			w.write(EventStart, startPayload{ConversationID: id})
		},
		OnReasoningStart: func() {
			w.write(EventReasoningStart, struct{}{})
		},
		OnReasoningToken: func(text string) {
			w.write(EventReasoningToken, textPayload{Text: text})
		},
		OnReasoningComplete: func(full string, summary []string) {
			w.write(EventReasoningComplete, reasoningPayload{Content: full, Summary: summary})
		},
		OnToken: func(text string) {
			w.write(EventToken, textPayload{Text: text})
		},
		OnComplete: func(full string, reasoning *stream.Reasoning) {
			p := completePayload{Content: full}
			if reasoning != nil {
				p.Reasoning = &reasoningPayload{Content: reasoning.Content, Summary: reasoning.Summary}
			}
			w.write(EventComplete, p)
		},
		OnError: func(err error) {
			p := errorPayload{Message: err.Error(), Cancelled: errors.Is(err, stream.ErrCancelled)}
			var terr *stream.TransportError
			if errors.As(err, &terr) {
				p.Status = terr.StatusCode
			}
			w.write(EventError, p)
		},
	}
}

// eventWriter encodes session events onto the response pipe. After the
// first failed write it drops every event.
type eventWriter struct {
	pw     *io.PipeWriter
	cancel context.CancelFunc
	broken bool
}

func (w *eventWriter) write(event string, payload any) {
	if w.broken {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	if err := sse.WriteEvent(w.pw, sse.Event{Type: event, Data: string(data)}); err != nil {
		w.broken = true
		w.cancel()
	}
}
