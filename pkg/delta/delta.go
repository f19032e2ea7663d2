// Package delta classifies decoded stream frames into reasoning, summary,
// content and terminator deltas.
package delta

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DataPrefix marks a frame that carries a payload.
	DataPrefix = "data: "

	// TerminatorSentinel is the payload that ends a stream.
	TerminatorSentinel = "[DONE]"

	// summaryDetailType is the reasoning_details entry type whose summary is consumed.
	summaryDetailType = "reasoning.summary"
)

// Kind identifies what a Delta carries.
type Kind int

const (
	KindReasoning Kind = iota
	KindReasoningSummary
	KindContent
	KindTerminator
)

func (k Kind) String() string {
	switch k {
	case KindReasoning:
		return "reasoning"
	case KindReasoningSummary:
		return "reasoning_summary"
	case KindContent:
		return "content"
	case KindTerminator:
		return "terminator"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Delta is one classified unit of a frame. Text is empty for KindTerminator.
type Delta struct {
	Kind Kind
	Text string
}

// chunk is the subset of a chat.completion.chunk payload reel consumes.
type chunk struct {
	Choices []struct {
		Delta struct {
			Reasoning        *string `json:"reasoning"`
			ReasoningDetails []struct {
				Type    string  `json:"type"`
				Summary *string `json:"summary"`
			} `json:"reasoning_details"`
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Interpret classifies a single frame. It returns nil for frames that carry
// nothing reel understands: lines without DataPrefix, payloads with no
// choices, and deltas whose fields are all empty.
//
// A payload that is not valid JSON yields a nil slice and a non-nil error.
// The error is informational; callers log it and keep consuming the stream.
//
// Deltas within one frame are ordered reasoning, then summary items, then
// content.
func Interpret(frame string) ([]Delta, error) {
	frame = strings.TrimSpace(frame)
	// The space after the colon is optional on the wire.
	field := strings.TrimSpace(DataPrefix)
	if !strings.HasPrefix(frame, field) {
		return nil, nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(frame, field))
	if payload == TerminatorSentinel {
		return []Delta{{Kind: KindTerminator}}, nil
	}
	if payload == "" {
		return nil, nil
	}

	var c chunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("decoding frame payload: %w", err)
	}
	if len(c.Choices) == 0 {
		return nil, nil
	}

	d := c.Choices[0].Delta
	var out []Delta

	if d.Reasoning != nil && *d.Reasoning != "" {
		out = append(out, Delta{Kind: KindReasoning, Text: *d.Reasoning})
	}

	for _, detail := range d.ReasoningDetails {
		if detail.Type != summaryDetailType || detail.Summary == nil || *detail.Summary == "" {
			continue
		}
		out = append(out, Delta{Kind: KindReasoningSummary, Text: *detail.Summary})
	}

	if d.Content != nil && *d.Content != "" {
		out = append(out, Delta{Kind: KindContent, Text: *d.Content})
	}

	return out, nil
}
