// Package stream drives one chat completion exchange against an
// OpenAI-compatible endpoint. It issues the request, decodes the streamed
// body into deltas, accumulates content and reasoning, and reports progress
// through Callbacks.
//
//	┌────────┐   ┌─────────────┐   ┌─────────────────┐   ┌───────────┐
//	│ Client │──▶│ sse.Decoder │──▶│ delta.Interpret │──▶│ Callbacks │
//	└────────┘   └─────────────┘   └─────────────────┘   └───────────┘
package stream

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/papercomputeco/reel/pkg/header"
	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/logger"
)

// Config is the per-session endpoint and generation configuration.
type Config struct {
	APIURL      string
	APIKey      string
	Model       string
	Temperature float64

	// MaxTokens of zero means unlimited and is omitted from the request.
	MaxTokens int

	// Headers are merged over the default headers.
	Headers map[string]string
}

// Request is one user turn to send.
type Request struct {
	Prompt      string
	Attachments []llm.Attachment

	// History is the ordered list of prior messages in the conversation.
	History []llm.Message

	// Reasoning asks the provider to emit its reasoning side-channel.
	Reasoning bool
}

// Client issues stream sessions. A Client is safe for concurrent use; each
// call to Stream owns its own session state.
type Client struct {
	httpClient    *http.Client
	headerHandler *header.Handler
	logger        *slog.Logger
	transcript    io.Writer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTranscript records every raw response byte of every session to w.
func WithTranscript(w io.Writer) Option {
	return func(c *Client) {
		c.transcript = w
	}
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{},
		headerHandler: header.NewHandler(),
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient builds an HTTP client for streaming sessions. proxyURL routes
// requests through an HTTP(S) proxy when non-empty. headerTimeout bounds the
// wait for response headers only; a streaming body may take arbitrarily long
// and is bounded by the session's context instead.
func NewHTTPClient(proxyURL string, headerTimeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", proxyURL)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	if headerTimeout > 0 {
		transport.ResponseHeaderTimeout = headerTimeout
	}

	return &http.Client{Transport: transport}, nil
}
