package stream

import (
	"strings"

	"github.com/papercomputeco/reel/pkg/llm"
)

// chatRequest is the OpenAI-compatible chat completion request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`

	// Temperature is always sent; zero is a valid setting.
	Temperature float64 `json:"temperature"`

	// MaxTokens is omitted when unset, which providers treat as unlimited.
	MaxTokens *int `json:"max_tokens,omitempty"`

	Stream    bool           `json:"stream"`
	Reasoning *reasoningFlag `json:"reasoning,omitempty"`
}

type reasoningFlag struct {
	Enabled bool `json:"enabled"`
}

// wireMessage is a message in the request. Content is a string, or a
// []contentPart when the message carries images.
type wireMessage struct {
	Role    llm.Role `json:"role"`
	Content any      `json:"content"`
}

// contentPart is one part of a multimodal message.
type contentPart struct {
	Type     string    `json:"type"`
	Text     *string   `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// buildRequest assembles the request body for messages, which already
// includes the new user turn as its last element.
func buildRequest(cfg Config, messages []llm.Message, reasoning bool) chatRequest {
	req := chatRequest{
		Model:       cfg.Model,
		Messages:    make([]wireMessage, 0, len(messages)),
		Temperature: cfg.Temperature,
		Stream:      true,
	}

	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		req.MaxTokens = &maxTokens
	}

	if reasoning {
		req.Reasoning = &reasoningFlag{Enabled: true}
	}

	for _, m := range messages {
		req.Messages = append(req.Messages, toWireMessage(m))
	}

	return req
}

// toWireMessage merges attachments into the outbound content. File
// attachments are appended to the text as inline blocks. Image attachments
// switch the content to a multimodal part list: the merged text first, then
// one image_url part per image in attachment order.
func toWireMessage(m llm.Message) wireMessage {
	var (
		text   strings.Builder
		images []llm.Attachment
	)

	text.WriteString(m.Content)
	for _, a := range m.Attachments {
		if a.IsImage() {
			images = append(images, a)
			continue
		}
		text.WriteString("\n\n[File: ")
		text.WriteString(a.Name)
		text.WriteString("]\n")
		text.WriteString(a.Content)
	}

	if len(images) == 0 {
		return wireMessage{Role: m.Role, Content: text.String()}
	}

	merged := text.String()
	parts := make([]contentPart, 0, len(images)+1)
	parts = append(parts, contentPart{Type: "text", Text: &merged})
	for _, img := range images {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: img.Content},
		})
	}

	return wireMessage{Role: m.Role, Content: parts}
}
