// Package header builds the headers reel sends upstream and the headers it
// returns to browsers on streamed responses.
//
// A streamed exchange has two legs:
//
//	Browser <--> reel serve <--> OpenAI-compatible endpoint
//
// and each leg gets its own header set.
package header

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler manages headers for both legs of a session.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// SessionHeader carries the conversation ID on streamed responses.
const SessionHeader = "X-Reel-Conversation"

// skipCustom is the set of user-configured headers that are never sent
// upstream.
var skipCustom = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection":        {},
	"Transfer-Encoding": {},

	// Go's http.Transport derives Host from the request URL and computes
	// Content-Length from the body.
	"Host":           {},
	"Content-Length": {},
}

// SetUpstreamRequestHeaders sets the JSON content type, a bearer token when
// apiKey is non-empty, and then the caller-configured custom headers. Custom
// headers win over the defaults, so a provider that wants a different auth
// scheme can override Authorization.
func (h *Handler) SetUpstreamRequestHeaders(req *http.Request, apiKey string, custom map[string]string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	for k, v := range custom {
		k = http.CanonicalHeaderKey(k)
		if _, skip := skipCustom[k]; skip {
			continue
		}
		req.Header.Set(k, v)
	}
}

// SetStreamResponseHeaders prepares a fiber response for server-sent events.
func (h *Handler) SetStreamResponseHeaders(c *fiber.Ctx, conversationID string) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// Disable proxy buffering (nginx) so events reach the browser as they
	// are written.
	c.Set("X-Accel-Buffering", "no")

	if conversationID != "" {
		c.Set(SessionHeader, conversationID)
	}
}
