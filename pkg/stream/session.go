package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/papercomputeco/reel/pkg/delta"
	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/sse"
	"github.com/papercomputeco/reel/pkg/utils"
)

// readBufferSize is the size of each body read.
const readBufferSize = 32 << 10

// Result is the outcome of one session. It is returned after the terminal
// callback has run.
type Result struct {
	State State

	// UserMessage is the user turn that was sent. It is set whatever the
	// outcome so callers can keep it visible after an error.
	UserMessage llm.Message

	// Message is the finalized assistant message. It is nil unless State is
	// StateCompleted.
	Message *llm.Message

	// Err is the error passed to OnError, or nil on completion.
	Err error
}

// Turn returns the messages to append to the conversation: the user message,
// followed by the assistant message when the session completed.
func (r *Result) Turn() []llm.Message {
	if r.Message == nil {
		return []llm.Message{r.UserMessage}
	}
	return []llm.Message{r.UserMessage, *r.Message}
}

// session is the state owned by a single in-flight exchange.
type session struct {
	ctx    context.Context
	cb     Callbacks
	logger *slog.Logger
	result *Result

	content   strings.Builder
	reasoning strings.Builder
	summary   []string

	reasoningStarted bool
	reasoningClosed  bool
}

// Stream sends req and consumes the streamed response, blocking until the
// session ends. Every outcome, including failures, is reported through
// exactly one of cb.OnComplete or cb.OnError; the same outcome is returned
// as a Result.
//
// Cancelling ctx aborts the in-flight read, suppresses every further
// callback except a single OnError wrapping ErrCancelled, and discards the
// partial assistant message.
func (c *Client) Stream(ctx context.Context, cfg Config, req Request, cb Callbacks) *Result {
	s := &session{
		ctx:    ctx,
		cb:     cb,
		logger: c.logger,
		result: &Result{
			State:       StateIdle,
			UserMessage: llm.NewUserMessage(req.Prompt, req.Attachments),
		},
	}

	messages := make([]llm.Message, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, s.result.UserMessage)

	body, err := json.Marshal(buildRequest(cfg, messages, req.Reasoning))
	if err != nil {
		s.fail(fmt.Errorf("encoding request: %w", err))
		return s.result
	}

	if s.cancelled() {
		return s.result
	}
	s.result.State = StateRequesting

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		s.fail(&TransportError{Message: fmt.Sprintf("invalid API URL %q", cfg.APIURL), Err: err})
		return s.result
	}
	c.headerHandler.SetUpstreamRequestHeaders(httpReq, cfg.APIKey, cfg.Headers)

	c.logger.Debug("sending chat request",
		"url", cfg.APIURL,
		"model", cfg.Model,
		"messages", len(messages),
		"reasoning", req.Reasoning,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if !s.cancelled() {
			s.fail(newNetworkError(err))
		}
		return s.result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		terr := newStatusError(resp)
		c.logger.Debug("chat request rejected",
			"status", resp.StatusCode,
			"message", terr.Message,
		)
		if !s.cancelled() {
			s.fail(terr)
		}
		return s.result
	}

	if s.cancelled() {
		return s.result
	}
	s.cb.start()

	dec := sse.NewDecoder()
	if c.transcript != nil {
		dec = sse.NewTeeDecoder(c.transcript)
	}
	s.consume(resp.Body, dec)

	return s.result
}

// consume reads body until the terminator, end of stream, a read error, or
// cancellation.
func (s *session) consume(body io.Reader, dec *sse.Decoder) {
	buf := make([]byte, readBufferSize)
	teeFailed := false

	for {
		if s.cancelled() {
			return
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			frames, teeErr := dec.Feed(buf[:n])
			if teeErr != nil && !teeFailed {
				teeFailed = true
				s.logger.Warn("writing stream transcript failed", "error", teeErr)
			}

			for _, frame := range frames {
				if s.handleFrame(frame) {
					return
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			if leftover := dec.Close(); leftover != "" {
				s.logger.Warn("discarding unterminated trailing frame",
					"bytes", len(leftover),
					"frame", preview(leftover),
				)
			}
			s.finish()
			return
		}

		if readErr != nil {
			if !s.cancelled() {
				s.fail(newReadError(readErr))
			}
			return
		}
	}
}

// handleFrame dispatches every delta in frame. It returns true once the
// session has reached a terminal state.
func (s *session) handleFrame(frame string) bool {
	deltas, err := delta.Interpret(frame)
	if err != nil {
		s.logger.Debug("skipping malformed frame", "frame", preview(frame), "error", err)
		return false
	}

	for _, d := range deltas {
		if s.cancelled() {
			return true
		}

		switch d.Kind {
		case delta.KindReasoning:
			s.onReasoning(d.Text)
		case delta.KindReasoningSummary:
			s.summary = append(s.summary, d.Text)
		case delta.KindContent:
			s.onContent(d.Text)
		case delta.KindTerminator:
			s.finish()
			return true
		}
	}

	return false
}

func (s *session) onReasoning(text string) {
	// Reasoning that first shows up after content is kept in the message
	// but never opens a phase the caller has already moved past.
	if !s.reasoningStarted && s.content.Len() > 0 {
		s.reasoning.WriteString(text)
		return
	}

	if !s.reasoningStarted {
		s.reasoningStarted = true
		s.result.State = StateReasoningActive
		s.cb.reasoningStart()
		if s.cancelled() {
			return
		}
	}

	s.reasoning.WriteString(text)
	s.cb.reasoningToken(text)
}

func (s *session) onContent(text string) {
	if s.reasoningStarted && !s.reasoningClosed {
		s.closeReasoning()
		if s.cancelled() {
			return
		}
	}

	s.result.State = StateContentActive
	s.content.WriteString(text)
	s.cb.token(text)
}

// closeReasoning ends the reasoning phase. It runs at most once per session.
func (s *session) closeReasoning() {
	s.reasoningClosed = true
	s.cb.reasoningComplete(s.reasoning.String(), s.summaryOrNil())
}

func (s *session) summaryOrNil() []string {
	if len(s.summary) == 0 {
		return nil
	}
	return append([]string(nil), s.summary...)
}

// finish finalizes the assistant message and reports completion.
func (s *session) finish() {
	if s.cancelled() {
		return
	}

	// Reasoning that never gave way to content still gets its completion.
	if s.reasoningStarted && !s.reasoningClosed && s.content.Len() == 0 {
		s.closeReasoning()
		if s.cancelled() {
			return
		}
	}

	var (
		reasoning *Reasoning
		block     *llm.ReasoningBlock
	)
	if s.reasoning.Len() > 0 {
		reasoning = &Reasoning{
			Content: s.reasoning.String(),
			Summary: s.summaryOrNil(),
		}
		block = &llm.ReasoningBlock{
			Content: reasoning.Content,
			Summary: reasoning.Summary,
		}
	}

	msg := llm.NewAssistantMessage(s.content.String(), block)
	s.result.Message = &msg
	s.result.State = StateCompleted

	s.logger.Debug("chat stream completed",
		"content_bytes", s.content.Len(),
		"reasoning_bytes", s.reasoning.Len(),
		"summary_items", len(s.summary),
	)

	s.cb.complete(msg.Content, reasoning)
}

// fail reports a transport or encoding failure.
func (s *session) fail(err error) {
	if s.result.State.Terminal() {
		return
	}
	s.result.State = StateFailed
	s.result.Err = err

	s.logger.Debug("chat stream failed", "error", err)
	s.cb.failed(err)
}

// cancelled reports whether the session must stop. The first time it
// observes a done context it moves the session to StateCancelled and reports
// ErrCancelled; later calls return true without side effects.
func (s *session) cancelled() bool {
	if s.result.State.Terminal() {
		return true
	}
	if s.ctx.Err() == nil {
		return false
	}

	err := ErrCancelled
	if cause := context.Cause(s.ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		err = fmt.Errorf("%w: %w", ErrCancelled, cause)
	}

	s.result.State = StateCancelled
	s.result.Err = err
	s.result.Message = nil

	s.logger.Debug("chat stream cancelled", "cause", context.Cause(s.ctx))
	s.cb.failed(err)
	return true
}

// preview shortens a frame for logging.
func preview(frame string) string {
	return utils.Truncate(frame, 120)
}
