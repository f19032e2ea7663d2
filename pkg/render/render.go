// Package render is reel's terminal presentation layer. Terminal implements
// the stream callback set, writing reasoning and content to a terminal as
// they arrive; the remaining helpers print stored messages and conversation
// lists.
package render

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/papercomputeco/reel/pkg/cliui"
	"github.com/papercomputeco/reel/pkg/conversation"
	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/stream"
	"github.com/papercomputeco/reel/pkg/utils"
)

var (
	UserPrompt      = cliui.UserLabel.Render("you> ")
	AssistantPrompt = cliui.AssistantLabel.Render("assistant> ")
)

// Option configures a Terminal.
type Option func(*Terminal)

// WithMarkdown buffers content and renders it as markdown on completion
// instead of printing raw tokens.
func WithMarkdown(width int) Option {
	return func(t *Terminal) {
		t.markdown = true
		t.width = width
	}
}

// WithReasoning prints reasoning tokens as they stream. Without it only a
// "thinking" indicator and the final duration are shown.
func WithReasoning(show bool) Option {
	return func(t *Terminal) {
		t.showReasoning = show
	}
}

// WithClock overrides time.Now for durations.
func WithClock(now func() time.Time) Option {
	return func(t *Terminal) {
		t.now = now
	}
}

// Terminal writes one streaming session at a time to out. It is driven from
// the goroutine running the session and is not safe for concurrent sessions.
type Terminal struct {
	out           io.Writer
	markdown      bool
	width         int
	showReasoning bool
	now           func() time.Time

	content        strings.Builder
	reasoningStart time.Time
	midLine        bool
}

// NewTerminal creates a Terminal writing to out.
func NewTerminal(out io.Writer, opts ...Option) *Terminal {
	t := &Terminal{
		out:           out,
		showReasoning: true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Callbacks returns the hooks to pass to stream.Client.Stream.
func (t *Terminal) Callbacks() stream.Callbacks {
	return stream.Callbacks{
		OnStart:             t.onStart,
		OnReasoningStart:    t.onReasoningStart,
		OnReasoningToken:    t.onReasoningToken,
		OnReasoningComplete: t.onReasoningComplete,
		OnToken:             t.onToken,
		OnComplete:          t.onComplete,
		OnError:             t.onError,
	}
}

func (t *Terminal) onStart() {
	t.content.Reset()
	t.reasoningStart = time.Time{}
	t.write(AssistantPrompt)
}

func (t *Terminal) onReasoningStart() {
	t.reasoningStart = t.now()
	t.newline()
	t.write(cliui.DimStyle.Render("  thinking..."))
	t.newline()
}

func (t *Terminal) onReasoningToken(text string) {
	if !t.showReasoning {
		return
	}
	t.write(cliui.ReasoningStyle.Render(text))
}

func (t *Terminal) onReasoningComplete(_ string, summary []string) {
	t.newline()

	elapsed := t.now().Sub(t.reasoningStart)
	t.write(cliui.DimStyle.Render("  thought for " + cliui.FormatDuration(elapsed)))
	t.newline()

	for _, s := range summary {
		t.write(cliui.DimStyle.Render("  • " + s))
		t.newline()
	}
	t.write("\n")
}

func (t *Terminal) onToken(text string) {
	if t.markdown {
		t.content.WriteString(text)
		return
	}
	t.write(text)
}

func (t *Terminal) onComplete(full string, _ *stream.Reasoning) {
	if t.markdown {
		t.write(Markdown(full, t.width))
	}
	t.newline()
	t.write("\n")
}

func (t *Terminal) onError(err error) {
	t.newline()
	if errors.Is(err, stream.ErrCancelled) {
		t.write(cliui.DimStyle.Render("  cancelled") + "\n\n")
		return
	}
	fmt.Fprintf(t.out, "  %s %s\n\n", cliui.FailMark, cliui.ErrorStyle.Render(err.Error()))
	t.midLine = false
}

func (t *Terminal) write(s string) {
	if s == "" {
		return
	}
	_, _ = io.WriteString(t.out, s)
	t.midLine = !strings.HasSuffix(s, "\n")
}

// newline ends the current line if something was written on it.
func (t *Terminal) newline() {
	if t.midLine {
		t.write("\n")
	}
}

// Markdown renders content with glamour, falling back to the raw text.
func Markdown(content string, width int) string {
	out, err := cliui.RenderMarkdown(content, width)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

// Message prints a stored message the way it looked when it streamed.
func Message(w io.Writer, msg llm.Message, markdown bool, width int) {
	if msg.Role == llm.RoleUser {
		fmt.Fprintf(w, "%s%s\n", UserPrompt, msg.Content)
		for _, a := range msg.Attachments {
			fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("[%s: %s]", a.Type, a.Name)))
		}
		fmt.Fprintln(w)
		return
	}

	fmt.Fprint(w, AssistantPrompt)
	if r := msg.Reasoning; r != nil && r.Content != "" {
		fmt.Fprintf(w, "\n  %s\n", cliui.DimStyle.Render(
			fmt.Sprintf("thought: %s", utils.Truncate(strings.Join(strings.Fields(r.Content), " "), 60))))
		for _, s := range r.Summary {
			fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("• "+s))
		}
		fmt.Fprintln(w)
	}

	content := msg.Content
	if markdown {
		content = Markdown(content, width)
	}
	fmt.Fprintf(w, "%s\n\n", content)
}

// History prints every message of a conversation.
func History(w io.Writer, conv *llm.Conversation, markdown bool, width int) {
	for _, m := range conv.Messages {
		Message(w, m, markdown, width)
	}
}

// ConversationList prints one line per conversation, newest first, marking
// the current one.
func ConversationList(w io.Writer, convs []*llm.Conversation, currentID string) {
	if len(convs) == 0 {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("no conversations"))
		return
	}

	for i, c := range convs {
		mark := " "
		if c.ID == currentID {
			mark = cliui.CurrentMark
		}
		fmt.Fprintf(w, "  %s %2d  %s  %s\n",
			mark,
			i+1,
			cliui.NameStyle.Render(utils.Truncate(conversation.DisplayTitle(c), 40)),
			cliui.DimStyle.Render(fmt.Sprintf("%d messages · %s", len(c.Messages), c.UpdatedAt.Format("2006-01-02 15:04"))),
		)
	}
}
